package parsing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("DMParser", func() {
	var parser *DMParser

	BeforeEach(func() {
		parser = NewDMParser()
	})

	Describe("CanParse", func() {
		It("recognizes dm receipts", func() {
			Expect(parser.CanParse("dm-drogerie markt")).To(BeTrue())
			Expect(parser.CanParse("Mehr auf dm.de")).To(BeTrue())
			Expect(parser.CanParse("dm-Rabatte wurden verrechnet")).To(BeTrue())
		})

		It("rejects other receipts", func() {
			Expect(parser.CanParse("LIDL sagt Danke")).To(BeFalse())
		})
	})

	Describe("Parse", func() {
		receiptText := `dm-drogerie markt
Filiale 2083
Hamburger Straße 10
22083 Hamburg
Prof. Citron. Kerze Basilikum
1,95 1
3x 1,55 Müllbeutel Bio
4,65 1
Coupon Sonderaktion
-1,00
SUMME EUR 5,60
07.06.2024 19:43 Bon-Nr. 5678`

		var result Receipt

		BeforeEach(func() {
			result = parser.Parse(receiptText, nil)
		})

		It("identifies the shop", func() {
			Expect(result.Success).To(BeTrue())
			Expect(result.ShopName).To(Equal("DM"))
		})

		It("extracts date and time", func() {
			Expect(result.Date).To(Equal("2024-06-07"))
			Expect(result.Time).To(Equal("19:43"))
		})

		It("extracts the branch address", func() {
			Expect(result.AddressDisplay).To(Equal("Hamburger Straße 10, 22083 Hamburg"))
		})

		It("joins name lines with the price-quantity line below them", func() {
			Expect(result.Items).To(HaveLen(3))

			Expect(result.Items[0].Name).To(Equal("Prof. Citron. Kerze Basilikum"))
			Expect(result.Items[0].Quantity).To(Equal(1.0))
			Expect(result.Items[0].TotalPrice).To(Equal(1.95))
		})

		It("extracts multi-unit lines with the explicit line total", func() {
			Expect(result.Items[1].Name).To(Equal("Müllbeutel Bio"))
			Expect(result.Items[1].Quantity).To(Equal(3.0))
			Expect(result.Items[1].UnitPrice).To(Equal(1.55))
			Expect(result.Items[1].TotalPrice).To(Equal(4.65))
		})

		It("extracts coupon blocks with the value on the following line", func() {
			Expect(result.Items[2].Name).To(Equal("Coupon Sonderaktion"))
			Expect(result.Items[2].TotalPrice).To(Equal(-1.00))
			Expect(result.Items[2].IsDiscount).To(BeTrue())
		})

		It("extracts the SUMME EUR total", func() {
			Expect(result.Total).To(BeNumerically("~", 5.60, 0.001))
		})

		It("computes the subtotal without discount lines", func() {
			Expect(result.Subtotal).To(BeNumerically("~", 6.60, 0.001))
		})

		It("only warns about the missing payment method", func() {
			Expect(result.Warnings).To(HaveLen(1))
			Expect(result.Confidence).To(Equal(ConfidenceHigh))
		})
	})

	Describe("Parse with refunds", func() {
		It("records cancelled lines as negative discount items", func() {
			result := parser.Parse("ZEILENSTORNO\nShampoo 400ml -2,50 1", nil)

			Expect(result.Items).To(HaveLen(1))
			Expect(result.Items[0].Name).To(Equal("Shampoo 400ml"))
			Expect(result.Items[0].TotalPrice).To(Equal(-2.50))
			Expect(result.Items[0].IsDiscount).To(BeTrue())
		})
	})

	Describe("Parse with implausible times", func() {
		It("rejects hour values above 23", func() {
			result := parser.Parse("dm-drogerie markt\n99:30", nil)
			Expect(result.Time).To(BeEmpty())
			Expect(result.Warnings).To(ContainElement("Could not extract purchase time"))
		})
	})
})
