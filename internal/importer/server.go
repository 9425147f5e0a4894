package importer

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/akaufmann/receipt-import/internal/catalog"
)

// CatalogStore is the writable catalog surface the HTTP API manages.
// The import pipeline itself only ever uses the embedded read-only
// Catalog interface.
type CatalogStore interface {
	catalog.Catalog
	SaveShop(shop *catalog.Shop) error
	SaveAddress(address *catalog.ShopAddress) error
	GetShop(id int64) (*catalog.Shop, error)
	ListShops() ([]*catalog.Shop, error)
	ListAddresses(shopID int64) ([]*catalog.ShopAddress, error)
}

// Server handles HTTP requests for receipt parsing and catalog
// management.
type Server struct {
	service   *Service
	store     CatalogStore
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials.
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with a default mux.
func NewServer(service *Service, store CatalogStore, basicAuth BasicAuth) *Server {
	return NewServerWithMux(service, store, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing.
func NewServerWithMux(service *Service, store CatalogStore, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
		store:     store,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			// Ensure CORS headers are set before error response
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Receipt Import"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux.
// Routes must be registered from most specific to least specific to
// avoid conflicts.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/receipts/parse", s.requireAuth(s.handleParseReceipt))

	s.mux.HandleFunc("GET /api/shops/{id}/addresses", s.requireAuth(s.handleListAddresses))
	s.mux.HandleFunc("POST /api/shops/{id}/addresses", s.requireAuth(s.handleCreateAddress))
	s.mux.HandleFunc("GET /api/shops", s.requireAuth(s.handleListShops))
	s.mux.HandleFunc("POST /api/shops", s.requireAuth(s.handleCreateShop))
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	// Wrap the mux with CORS middleware to handle all requests including OPTIONS
	return http.ListenAndServe(addr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
			s.mux.ServeHTTP(w, r)
		})(w, r)
	}))
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
