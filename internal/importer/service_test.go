package importer

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/akaufmann/receipt-import/internal/catalog"
	"github.com/akaufmann/receipt-import/internal/extraction"
	"github.com/akaufmann/receipt-import/internal/parsing"
)

// mockExtractor returns a canned extraction result without touching
// the filesystem.
type mockExtractor struct {
	result extraction.Result
	paths  []string
}

func (m *mockExtractor) Extract(path string) extraction.Result {
	m.paths = append(m.paths, path)
	return m.result
}

// mockCatalog is an in-memory read-only catalog.
type mockCatalog struct {
	shop     *catalog.Shop
	byPostal map[string]*catalog.ShopAddress
	byStreet map[string]*catalog.ShopAddress
	primary  *catalog.ShopAddress
	lookedUp []string
}

func (m *mockCatalog) FindShopByName(name string) (*catalog.Shop, error) {
	m.lookedUp = append(m.lookedUp, name)
	return m.shop, nil
}

func (m *mockCatalog) FindAddressByPostalCode(shopID int64, postalCode string) (*catalog.ShopAddress, error) {
	return m.byPostal[postalCode], nil
}

func (m *mockCatalog) FindAddressByStreet(shopID int64, streetFragment string) (*catalog.ShopAddress, error) {
	return m.byStreet[streetFragment], nil
}

func (m *mockCatalog) PrimaryOrFirstAddress(shopID int64) (*catalog.ShopAddress, error) {
	return m.primary, nil
}

const lidlTextNoAddress = `LIDL
Butter 1,99 A
zu zahlen 1,99`

const lidlTextWithAddress = `LIDL Filiale 042
Kieler Straße 595
22525 Hamburg
Butter 1,99 A
zu zahlen 1,99`

var _ = Describe("Service", func() {
	var (
		extractor *mockExtractor
		cat       *mockCatalog
		service   *Service
	)

	BeforeEach(func() {
		extractor = &mockExtractor{}
		cat = &mockCatalog{
			byPostal: map[string]*catalog.ShopAddress{},
			byStreet: map[string]*catalog.ShopAddress{},
		}
		service = NewService(extractor, cat)
	})

	Describe("SupportedShops", func() {
		It("lists parsers in registration order", func() {
			Expect(service.SupportedShops()).To(Equal([]string{"Lidl", "DM", "Decathlon"}))
		})
	})

	Describe("ParseText", func() {
		It("fails on empty input", func() {
			result := service.ParseText("", nil)

			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(Equal("Extracted text is empty"))
			Expect(result.Confidence).To(Equal(parsing.ConfidenceLow))
		})

		It("fails on whitespace-only input", func() {
			result := service.ParseText("   \n\t\n", nil)
			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(Equal("Extracted text is empty"))
		})

		It("fails for unrecognized vendors and names the supported ones", func() {
			result := service.ParseText("REWE Markt GmbH\nGesamt 12,99", nil)

			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(ContainSubstring("Could not identify shop"))
			Expect(result.Error).To(ContainSubstring("Lidl, DM, Decathlon"))
			Expect(result.Confidence).To(Equal(parsing.ConfidenceLow))
		})

		It("emits the detected parser to the sink", func() {
			sink := &parsing.RecordingSink{}
			service.ParseText(lidlTextNoAddress, sink)

			Expect(sink.Events).NotTo(BeEmpty())
			Expect(sink.Events[0].Event).To(Equal("parser_detected"))
			Expect(sink.Events[0].Context).To(HaveKeyWithValue("parser", "Lidl"))
		})

		It("parses a recognized receipt end to end", func() {
			result := service.ParseText(lidlTextNoAddress, nil)

			Expect(result.Success).To(BeTrue())
			Expect(result.ShopName).To(Equal("Lidl"))
			Expect(result.Items).To(HaveLen(1))
			Expect(result.Total).To(BeNumerically("~", 1.99, 0.001))
		})
	})

	Describe("catalog matching", func() {
		It("warns when the shop is not in the catalog", func() {
			result := service.ParseText(lidlTextNoAddress, nil)

			Expect(result.ShopID).To(BeZero())
			Expect(result.Warnings).To(ContainElement(
				"Shop 'Lidl' not found in database. Please create it first."))
		})

		It("resolves the shop and a detected address by postal code", func() {
			cat.shop = &catalog.Shop{ID: 3, Name: "Lidl"}
			cat.byPostal["22525"] = &catalog.ShopAddress{
				ID: 7, ShopID: 3,
				Street: "Kieler Straße", HouseNumber: "595",
				PostalCode: "22525", City: "Hamburg",
			}

			result := service.ParseText(lidlTextWithAddress, nil)

			Expect(result.ShopID).To(Equal(int64(3)))
			Expect(result.AddressID).To(Equal(int64(7)))
			Expect(result.AddressDisplay).To(Equal("Kieler Straße 595, 22525 Hamburg"))
			Expect(result.Warnings).NotTo(ContainElement(ContainSubstring("Address not found")))
		})

		It("falls back to the street word when the postal code misses", func() {
			cat.shop = &catalog.Shop{ID: 3, Name: "Lidl"}
			cat.byStreet["Kieler"] = &catalog.ShopAddress{
				ID: 8, ShopID: 3,
				Street: "Kieler Straße", HouseNumber: "595",
				PostalCode: "22525", City: "Hamburg",
			}

			result := service.ParseText(lidlTextWithAddress, nil)

			Expect(result.AddressID).To(Equal(int64(8)))
		})

		It("auto-selects the primary address when no address was detected", func() {
			cat.shop = &catalog.Shop{ID: 3, Name: "Lidl"}
			cat.primary = &catalog.ShopAddress{
				ID: 9, ShopID: 3,
				Street: "Krohnstieg", HouseNumber: "41-43",
				PostalCode: "22415", City: "Hamburg", IsPrimary: true,
			}

			result := service.ParseText(lidlTextNoAddress, nil)

			Expect(result.AddressID).To(Equal(int64(9)))
			Expect(result.AddressDisplay).To(Equal("Krohnstieg 41-43, 22415 Hamburg"))
			Expect(result.Warnings).To(ContainElement(
				"Address auto-selected (first available for this shop)"))
		})

		It("keeps the detected address text and falls back when it matches nothing", func() {
			cat.shop = &catalog.Shop{ID: 3, Name: "Lidl"}
			cat.primary = &catalog.ShopAddress{
				ID: 9, ShopID: 3, Street: "Krohnstieg", HouseNumber: "41-43",
			}

			result := service.ParseText(lidlTextWithAddress, nil)

			Expect(result.AddressID).To(Equal(int64(9)))
			Expect(result.Warnings).To(ContainElement(
				"Address not found in database. Detected: Kieler Straße 595, 22525 Hamburg"))
			Expect(result.Warnings).To(ContainElement(
				"Address auto-selected (first available for this shop)"))
		})

		It("warns when the shop has no addresses at all", func() {
			cat.shop = &catalog.Shop{ID: 3, Name: "Lidl"}

			result := service.ParseText(lidlTextNoAddress, nil)

			Expect(result.AddressID).To(BeZero())
			Expect(result.Warnings).To(ContainElement("No address found for this shop"))
		})
	})

	Describe("ImportFromFile", func() {
		It("propagates extraction failures", func() {
			extractor.result = extraction.Failure("OCR extraction failed: boom", "image/png")

			result := service.ImportFromFile("/tmp/receipt.png", nil)

			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(Equal("Text extraction failed: OCR extraction failed: boom"))
			Expect(result.Confidence).To(Equal(parsing.ConfidenceLow))
			Expect(extractor.paths).To(ConsistOf("/tmp/receipt.png"))
		})

		It("parses the extracted text", func() {
			extractor.result = extraction.Result{
				Success:          true,
				Text:             lidlTextNoAddress,
				FileType:         "application/pdf",
				ExtractionMethod: extraction.MethodPDFText,
			}

			result := service.ImportFromFile("/tmp/receipt.pdf", nil)

			Expect(result.Success).To(BeTrue())
			Expect(result.ShopName).To(Equal("Lidl"))
		})
	})
})
