package parsing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("DecathlonParser", func() {
	var parser *DecathlonParser

	BeforeEach(func() {
		parser = NewDecathlonParser()
	})

	Describe("CanParse", func() {
		It("recognizes the plain brand name", func() {
			Expect(parser.CanParse("DECATHLON Deutschland SE & Co. KG")).To(BeTrue())
		})

		It("recognizes OCR output with spaces between letters", func() {
			Expect(parser.CanParse("D E C A T H L O N")).To(BeTrue())
		})

		It("recognizes truncated PDF exports", func() {
			Expect(parser.CanParse("DECAT Deutschland")).To(BeTrue())
		})

		It("rejects other receipts", func() {
			Expect(parser.CanParse("REWE Markt GmbH")).To(BeFalse())
		})
	})

	Describe("Parse", func() {
		invoiceText := `DECATHLON Deutschland SE & Co. KG
Krohnstieg 41-43
22415 Hamburg
RECHNUNGSADRESSE
Max Mustermann
Rechnungsnummer 1 22 0007 0004012438
Rechnungsdatum 08.10.2022
QUECHUA Wanderschuhe MH500 RFID: 0962121
3607083
1
19%
42.01
7.98
49.99 €
Rechnungsbetrag 49.99 €
Kasse: 5 08/10/2022 19:41:56`

		var result Receipt

		BeforeEach(func() {
			result = parser.Parse(invoiceText, nil)
		})

		It("identifies the shop", func() {
			Expect(result.Success).To(BeTrue())
			Expect(result.ShopName).To(Equal("Decathlon"))
		})

		It("extracts the Rechnungsdatum", func() {
			Expect(result.Date).To(Equal("2022-10-08"))
		})

		It("extracts the time from the Kasse footer", func() {
			Expect(result.Time).To(Equal("19:41"))
		})

		It("extracts the shop address from the header block only", func() {
			Expect(result.AddressDisplay).To(Equal("Krohnstieg 41-43, 22415 Hamburg"))
		})

		It("assembles items from the linearized column values", func() {
			Expect(result.Items).To(HaveLen(1))

			item := result.Items[0]
			Expect(item.Name).To(Equal("QUECHUA Wanderschuhe MH500"))
			Expect(item.Quantity).To(Equal(1.0))
			Expect(item.TotalPrice).To(Equal(49.99))
			Expect(item.UnitPrice).To(Equal(49.99))
			Expect(item.Confidence).To(Equal(ConfidenceHigh))
		})

		It("extracts the Rechnungsbetrag total", func() {
			Expect(result.Total).To(BeNumerically("~", 49.99, 0.001))
		})

		It("only warns about the missing payment method", func() {
			Expect(result.Warnings).To(HaveLen(1))
			Expect(result.Confidence).To(Equal(ConfidenceHigh))
		})

		It("emits the receipt number and address events to the sink", func() {
			sink := &RecordingSink{}
			parser.Parse(invoiceText, sink)

			var numbers []string
			for _, e := range sink.Events {
				if e.Event == "receipt_number" {
					numbers = append(numbers, e.Context["number"].(string))
				}
			}
			Expect(numbers).To(ConsistOf("12200070004012438"))
		})
	})

	Describe("Parse with number-first street lines", func() {
		It("normalizes the house number behind the street name", func() {
			text := `DECATHLON Deutschland SE & Co. KG
41-43 Krohnstieg
22415 Hamburg
RECHNUNGSADRESSE`
			result := parser.Parse(text, nil)
			Expect(result.AddressDisplay).To(Equal("Krohnstieg 41-43, 22415 Hamburg"))
		})
	})

	Describe("Parse without complete column values", func() {
		It("falls back to a nearby price with reduced confidence", func() {
			text := `DECATHLON Deutschland SE & Co. KG
Schlafsack Arpenaz RFID: 123456
Preis 12.99 €`
			result := parser.Parse(text, nil)

			Expect(result.Items).To(HaveLen(1))
			Expect(result.Items[0].Name).To(Equal("Schlafsack Arpenaz"))
			Expect(result.Items[0].TotalPrice).To(Equal(12.99))
			Expect(result.Items[0].Confidence).To(Equal(ConfidenceMedium))
			Expect(result.Items[0].Warning).To(ContainSubstring("reduced confidence"))
		})
	})

	Describe("Parse with multi-quantity rows", func() {
		It("derives the unit price from the line total", func() {
			text := `DECATHLON Deutschland SE & Co. KG
Socken 3er Pack RFID: 555001
8123456
2
19%
16.81
3.19
20.00 €
Rechnungsbetrag 20.00 €`
			result := parser.Parse(text, nil)

			Expect(result.Items).To(HaveLen(1))
			Expect(result.Items[0].Quantity).To(Equal(2.0))
			Expect(result.Items[0].TotalPrice).To(Equal(20.00))
			Expect(result.Items[0].UnitPrice).To(BeNumerically("~", 10.00, 0.001))
		})
	})
})
