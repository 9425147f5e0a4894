package importer

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/akaufmann/receipt-import/internal/catalog"
	"github.com/akaufmann/receipt-import/internal/extraction"
	"github.com/akaufmann/receipt-import/internal/parsing"
)

// TextExtractor produces normalized receipt text from a file on disk.
type TextExtractor interface {
	Extract(path string) extraction.Result
}

// Service orchestrates receipt import: extraction → detection →
// parsing → catalog matching. Each invocation is independent and
// synchronous; the only shared state is the read-only catalog.
type Service struct {
	extractor TextExtractor
	catalog   catalog.Catalog
	parsers   []parsing.Parser
}

// NewService creates a Service with the default parser registration
// order (Lidl, DM, Decathlon).
func NewService(extractor TextExtractor, cat catalog.Catalog) *Service {
	return &Service{
		extractor: extractor,
		catalog:   cat,
		parsers:   parsing.DefaultParsers(),
	}
}

// NewServiceWithParsers creates a Service with a custom parser list
// for testing.
func NewServiceWithParsers(extractor TextExtractor, cat catalog.Catalog, parsers []parsing.Parser) *Service {
	return &Service{
		extractor: extractor,
		catalog:   cat,
		parsers:   parsers,
	}
}

// SupportedShops returns the shop names of all registered parsers, in
// registration order.
func (s *Service) SupportedShops() []string {
	names := make([]string, len(s.parsers))
	for i, p := range s.parsers {
		names[i] = p.ShopName()
	}
	return names
}

// ImportFromFile runs the full pipeline on a receipt file. The file
// is only read; temp-file cleanup stays with the caller on every exit
// path.
func (s *Service) ImportFromFile(path string, sink parsing.DebugSink) parsing.Receipt {
	result := s.extractor.Extract(path)
	if !result.Success {
		return parsing.Failure("Text extraction failed: " + result.Error)
	}

	return s.ParseText(result.Text, sink)
}

// ParseText runs detection, parsing and catalog matching on
// already-extracted text. Exists so the parsing stages are testable
// without file I/O.
func (s *Service) ParseText(text string, sink parsing.DebugSink) parsing.Receipt {
	if sink == nil {
		sink = parsing.NopSink{}
	}

	if strings.TrimSpace(text) == "" {
		return parsing.Failure("Extracted text is empty")
	}

	parser := parsing.Detect(s.parsers, text)
	if parser == nil {
		return parsing.Failure(
			"Could not identify shop from receipt. Supported shops: " +
				strings.Join(s.SupportedShops(), ", "))
	}

	sink.Emit("parser_detected", map[string]any{"parser": parser.ShopName()})

	parsed := parser.Parse(text, sink)

	return s.matchCatalog(parsed)
}

var (
	postalCodeRe = regexp.MustCompile(`\b(\d{5})\b`)
	streetWordRe = regexp.MustCompile(`^([A-Za-zäöüÄÖÜß]+)`)
)

// matchCatalog resolves the parsed shop name and address string to
// catalog IDs. Best effort: misses become warnings, never failures,
// and the catalog is never written.
func (s *Service) matchCatalog(parsed parsing.Receipt) parsing.Receipt {
	matched := parsed
	if parsed.ShopName == "" {
		return matched
	}

	shop, err := s.catalog.FindShopByName(parsed.ShopName)
	if err != nil {
		slog.Error("Shop lookup failed", "shop", parsed.ShopName, "error", err)
	}
	if shop == nil {
		matched.Warnings = append(matched.Warnings,
			"Shop '"+parsed.ShopName+"' not found in database. Please create it first.")
		return matched
	}
	matched.ShopID = shop.ID

	if parsed.AddressDisplay != "" {
		if address := s.findMatchingAddress(shop.ID, parsed.AddressDisplay); address != nil {
			matched.AddressID = address.ID
			matched.AddressDisplay = address.Display()
			return matched
		}
		matched.Warnings = append(matched.Warnings,
			"Address not found in database. Detected: "+parsed.AddressDisplay)
	}

	// Fall back to the shop's primary (or first) address. When the
	// parser reported no address at all this is the expected path,
	// not an anomaly.
	address, err := s.catalog.PrimaryOrFirstAddress(shop.ID)
	if err != nil {
		slog.Error("Address lookup failed", "shop_id", shop.ID, "error", err)
	}
	if address != nil {
		matched.AddressID = address.ID
		matched.AddressDisplay = address.Display()
		matched.Warnings = append(matched.Warnings,
			"Address auto-selected (first available for this shop)")
	} else if parsed.AddressDisplay == "" {
		matched.Warnings = append(matched.Warnings, "No address found for this shop")
	}

	return matched
}

// findMatchingAddress resolves a parsed address display string to a
// catalog address: by the 5-digit postal code if one is present, else
// by the leading street word as a substring.
func (s *Service) findMatchingAddress(shopID int64, addressDisplay string) *catalog.ShopAddress {
	if m := postalCodeRe.FindStringSubmatch(addressDisplay); m != nil {
		address, err := s.catalog.FindAddressByPostalCode(shopID, m[1])
		if err != nil {
			slog.Error("Address lookup failed", "shop_id", shopID, "error", err)
		}
		if address != nil {
			return address
		}
	}

	if m := streetWordRe.FindStringSubmatch(addressDisplay); m != nil {
		address, err := s.catalog.FindAddressByStreet(shopID, m[1])
		if err != nil {
			slog.Error("Address lookup failed", "shop_id", shopID, "error", err)
		}
		if address != nil {
			return address
		}
	}

	return nil
}
