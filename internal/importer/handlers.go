package importer

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/akaufmann/receipt-import/internal/catalog"
	"github.com/akaufmann/receipt-import/internal/parsing"
)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// parseResponse is the preview payload returned to the review UI.
type parseResponse struct {
	Success    bool            `json:"success"`
	Data       *previewData    `json:"data"`
	Warnings   []string        `json:"warnings"`
	Error      string          `json:"error,omitempty"`
	Confidence string          `json:"confidence"`
	Debug      []parsing.Event `json:"debug,omitempty"`
}

type previewData struct {
	Shop         previewShop    `json:"shop"`
	Address      previewAddress `json:"address"`
	PurchaseDate string         `json:"purchaseDate,omitempty"`
	PurchaseTime string         `json:"purchaseTime,omitempty"`
	Currency     string         `json:"currency"`
	Subtotal     float64        `json:"subtotal"`
	Total        float64        `json:"total"`
	Items        []previewItem  `json:"items"`
}

type previewShop struct {
	Name string `json:"name,omitempty"`
	ID   int64  `json:"id,omitempty"`
}

type previewAddress struct {
	Display string `json:"display,omitempty"`
	ID      int64  `json:"id,omitempty"`
}

type previewItem struct {
	parsing.LineItem
	// Submission-ready integer-cent fields for the purchase form.
	// Discounts submit a zero unit price and their absolute value as
	// the discount amount; regular items the reverse.
	SubmitUnitPrice      int `json:"submitUnitPrice"`
	SubmitDiscountAmount int `json:"submitDiscountAmount"`
}

// handleParseReceipt accepts a multipart receipt upload, runs the
// import pipeline and returns a structured preview. Nothing is saved;
// the uploaded file lives in a temp file that is removed on every
// exit path.
func (s *Server) handleParseReceipt(w http.ResponseWriter, r *http.Request) {
	// 50MB to handle high-resolution phone photos
	maxFormSize := int64(50 << 20)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		message := "Error parsing form"
		if err.Error() == "http: request body too large" {
			message = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeJSONError(w, http.StatusBadRequest, message)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeJSONError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer f.Close()

	if header.Size > maxFormSize {
		writeJSONError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB. Please compress or resize your image.")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSONError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	tmp, err := os.CreateTemp("", "receipt-*"+filepath.Ext(header.Filename))
	if err != nil {
		slog.Error("Error creating temp file", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Error storing file. Please try again.")
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		slog.Error("Error writing temp file", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Error storing file. Please try again.")
		return
	}
	tmp.Close()

	includeDebug := r.URL.Query().Get("debug") == "1" || r.FormValue("debug") == "1"
	var sink parsing.DebugSink
	var recorder *parsing.RecordingSink
	if includeDebug {
		recorder = &parsing.RecordingSink{}
		sink = recorder
	}

	result := s.service.ImportFromFile(tmp.Name(), sink)

	response := parseResponse{
		Success:    result.Success,
		Warnings:   result.Warnings,
		Error:      result.Error,
		Confidence: result.Confidence,
	}
	if result.Success {
		response.Data = formatPreview(result)
	}
	if recorder != nil {
		response.Debug = recorder.Events
	}

	code := http.StatusOK
	if !result.Success {
		code = http.StatusUnprocessableEntity
	}
	setCORSHeaders(w)
	writeJSON(w, code, response)
}

// formatPreview shapes a parsed receipt for the review UI.
func formatPreview(result parsing.Receipt) *previewData {
	items := make([]previewItem, len(result.Items))
	for i, item := range result.Items {
		preview := previewItem{LineItem: item}
		if item.IsDiscount {
			preview.SubmitDiscountAmount = int(math.Round(math.Abs(item.TotalPrice) * 100))
		} else {
			preview.SubmitUnitPrice = int(math.Round(math.Abs(item.UnitPrice) * 100))
		}
		items[i] = preview
	}

	return &previewData{
		Shop:         previewShop{Name: result.ShopName, ID: result.ShopID},
		Address:      previewAddress{Display: result.AddressDisplay, ID: result.AddressID},
		PurchaseDate: result.Date,
		PurchaseTime: result.Time,
		Currency:     result.Currency,
		Subtotal:     result.Subtotal,
		Total:        result.Total,
		Items:        items,
	}
}

// handleListShops returns all catalog shops
func (s *Server) handleListShops(w http.ResponseWriter, r *http.Request) {
	shops, err := s.store.ListShops()
	if err != nil {
		slog.Error("Error listing shops", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, shops)
}

// handleCreateShop creates a catalog shop
func (s *Server) handleCreateShop(w http.ResponseWriter, r *http.Request) {
	var shop catalog.Shop
	if err := json.NewDecoder(r.Body).Decode(&shop); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if shop.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "Shop name is required")
		return
	}

	if err := s.store.SaveShop(&shop); err != nil {
		slog.Error("Error saving shop", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusCreated, shop)
}

// handleListAddresses returns all addresses of one shop
func (s *Server) handleListAddresses(w http.ResponseWriter, r *http.Request) {
	shopID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		corsError(w, "Invalid shop ID", http.StatusBadRequest)
		return
	}

	addresses, err := s.store.ListAddresses(shopID)
	if err != nil {
		slog.Error("Error listing addresses", "shop_id", shopID, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, addresses)
}

// handleCreateAddress creates an address under one shop
func (s *Server) handleCreateAddress(w http.ResponseWriter, r *http.Request) {
	shopID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		corsError(w, "Invalid shop ID", http.StatusBadRequest)
		return
	}

	var address catalog.ShopAddress
	if err := json.NewDecoder(r.Body).Decode(&address); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	address.ShopID = shopID

	if err := s.store.SaveAddress(&address); err != nil {
		slog.Error("Error saving address", "shop_id", shopID, "error", err)
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusCreated, address)
}
