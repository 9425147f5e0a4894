package parsing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// DecathlonParser parses Decathlon invoices (Rechnung, German
// format). Unlike till slips these are tabular: each item row carries
// an RFID tag in the description and columns for article number,
// quantity, net price, VAT and gross total. PDF text extraction
// linearizes those columns into separate lines, often with long runs
// of blank lines in between.
type DecathlonParser struct{}

func NewDecathlonParser() *DecathlonParser {
	return &DecathlonParser{}
}

// Bounded lookahead for the column values that follow a product
// description line. Exporters insert many blank lines, hence the
// large window.
const decathlonValueWindow = 40

// Smaller window for the reduced-confidence price fallback.
const decathlonPriceWindow = 8

var (
	decathlonSpacedSniffRe = regexp.MustCompile(`D\s*E\s*C\s*A\s*T\s*H\s*L\s*O\s*N`)
	decathlonFragmentRe    = regexp.MustCompile(`(?i)D\s*E\s*C\s*A\s*T`)

	decathlonDateRe     = regexp.MustCompile(`(?i)Rechnungsdatum\s+(\d{2})\.(\d{2})\.(\d{4})`)
	decathlonBareDateRe = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4})`)

	// pdftotext can insert spaces around the colons: "19:41 :56"
	decathlonKasseTimeRe = regexp.MustCompile(`Kasse[:\s]+\d+\s+\d{2}[/.]\d{2}[/.]\d{2,4}\s+(\d{1,2})\s*:\s*(\d{2})(?:\s*:\s*(\d{2}))?`)
	decathlonHMSRe       = regexp.MustCompile(`\b(\d{1,2})\s*:\s*(\d{2})\s*:\s*(\d{2})\b`)
	decathlonHMRe        = regexp.MustCompile(`\b(\d{1,2})\s*:\s*(\d{2})\b`)

	decathlonHeaderStartRe = regexp.MustCompile(`(?i)^DECAT(HLON)?\b`)
	decathlonHeaderEndRe   = regexp.MustCompile(`(?i)^RECHNUNGSADRESSE\b`)
	// Street written number-first: "41-43 Krohnstieg"
	decathlonStreetNumFirstRe = regexp.MustCompile(`^(\d+(?:-\d+)?)\s+([A-Za-zäöüÄÖÜß][A-Za-zäöüÄÖÜß\-\s]+)$`)
	decathlonStreetRe         = regexp.MustCompile(`^([A-Za-zäöüÄÖÜß][A-Za-zäöüÄÖÜß\-\s]+)\s+(\d+(?:-\d+)?)$`)
	decathlonStreetBareRe     = regexp.MustCompile(`^([A-Za-zäöüÄÖÜß][A-Za-zäöüÄÖÜß\-\s]+)$`)
	decathlonPostalCityRe     = regexp.MustCompile(`^(\d{5})\s+([A-Za-zäöüÄÖÜß\-]+)$`)

	decathlonReceiptNumRe = regexp.MustCompile(`(?i)Rechnungsnummer\s+([\d\s]+)`)
	decathlonTransNumRe   = regexp.MustCompile(`(?i)Transaktionsnummer\s+(\d+)`)

	// Product lines end with an RFID marker; OCR mangles the literal
	// ("RFIO", "fifID", "RFiTI"), so the match is tolerant.
	decathlonProductRe  = regexp.MustCompile(`(?i)^(.+?)\s+(?:RFID|RFIO|fifID|RFiTI)[\s:\-'$a-z]*(\d+)`)
	decathlonRFIDStopRe = regexp.MustCompile(`(?i)RFID:`)
	decathlonSectionRe  = regexp.MustCompile(`(?i)^(Zwischensumme|Summe|Rechnungsbetrag|RECHNUNG)`)

	decathlonArticleRe  = regexp.MustCompile(`^(\d{7})$`)
	decathlonIntRe      = regexp.MustCompile(`^(\d+)$`)
	decathlonVATRe      = regexp.MustCompile(`^(\d+)%$`)
	decathlonPriceRe    = regexp.MustCompile(`^(\d+)[.,](\d{2})$`)
	decathlonPriceEURRe = regexp.MustCompile(`^(\d+)[.,](\d{2})\s*€$`)
	decathlonAnyEURRe   = regexp.MustCompile(`(\d+)[.,](\d{2})\s*€`)

	decathlonTotalRe       = regexp.MustCompile(`(?i)Rechnungsbetrag\s+(\d+)[.,](\d{2})\s*€?`)
	decathlonGesamtTotalRe = regexp.MustCompile(`(?i)Gesamt\s+(\d+)[.,](\d{2})\s*€`)
)

func (p *DecathlonParser) CanParse(text string) bool {
	// Collapse whitespace once for flexible matching
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.ToUpper(text))

	return strings.Contains(normalized, "DECATHLON") ||
		// Some PDF exports break the word after "DECAT" and
		// immediately print "Deutschland SE & Co."
		strings.Contains(normalized, "DECATDEUTSCHLANDSE&CO") ||
		// OCR variants sometimes insert spaces between letters
		decathlonSpacedSniffRe.MatchString(text) ||
		decathlonFragmentRe.MatchString(text)
}

func (p *DecathlonParser) ShopName() string {
	return "Decathlon"
}

func (p *DecathlonParser) Parse(text string, sink DebugSink) Receipt {
	if sink == nil {
		sink = NopSink{}
	}

	var warnings []string

	date := p.extractDate(text)
	if date == "" {
		warnings = append(warnings, "Could not extract purchase date")
	}

	tm := p.extractTime(text)
	if tm == "" {
		warnings = append(warnings, "Could not extract purchase time")
	}

	addressDisplay := p.extractAddress(text, sink)

	if number := p.extractReceiptNumber(text); number != "" {
		sink.Emit("receipt_number", map[string]any{"number": number})
	}

	items := p.extractLineItems(text, sink)
	if len(items) == 0 {
		warnings = append(warnings, "No line items could be extracted")
	}

	total, ok := p.extractTotal(text)
	if !ok {
		warnings = append(warnings, "Could not extract total amount")
		total = sumTotals(items)
	}

	// Invoices report the Zwischensumme before discounts, so the
	// subtotal excludes discount lines.
	subtotal := sumNonDiscountTotals(items)

	warnings = append(warnings, "Payment method not detected - please select manually")

	return Receipt{
		Success:        true,
		ShopName:       "Decathlon",
		AddressDisplay: addressDisplay,
		Date:           date,
		Time:           tm,
		Currency:       "EUR",
		Items:          items,
		Subtotal:       subtotal,
		Total:          total,
		Warnings:       warnings,
		Confidence:     confidenceFromWarnings(warnings),
	}
}

func (p *DecathlonParser) extractDate(text string) string {
	if m := decathlonDateRe.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("%s-%s-%s", m[3], m[2], m[1])
	}
	if m := decathlonBareDateRe.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("%s-%s-%s", m[3], m[2], m[1])
	}
	return ""
}

func (p *DecathlonParser) extractTime(text string) string {
	// "Kasse: 5 08/10/2022 19:41:56"
	if m := decathlonKasseTimeRe.FindStringSubmatch(text); m != nil {
		if t := formatHourMinute(m[1], m[2]); t != "" {
			return t
		}
	}
	if m := decathlonHMSRe.FindStringSubmatch(text); m != nil {
		if t := formatHourMinute(m[1], m[2]); t != "" {
			return t
		}
	}
	if m := decathlonHMRe.FindStringSubmatch(text); m != nil {
		if t := formatHourMinute(m[1], m[2]); t != "" {
			return t
		}
	}
	return ""
}

func formatHourMinute(hour, minute string) string {
	h, _ := strconv.Atoi(hour)
	if h < 0 || h > 23 {
		return ""
	}
	return fmt.Sprintf("%02d:%s", h, minute)
}

// extractAddress reads the shop address from the Decathlon header
// block only. Invoices contain many numeric identifiers (Kundenkarte
// and friends), so a global scan would mismatch.
func (p *DecathlonParser) extractAddress(text string, sink DebugSink) string {
	lines := strings.Split(text, "\n")

	headerStart := -1
	headerEnd := -1
	for idx, line := range lines {
		trimmed := strings.TrimSpace(line)
		if headerStart == -1 && decathlonHeaderStartRe.MatchString(trimmed) {
			headerStart = idx
			continue
		}
		if headerStart != -1 && decathlonHeaderEndRe.MatchString(trimmed) {
			headerEnd = idx
			break
		}
	}

	if headerStart == -1 {
		return ""
	}
	if headerEnd == -1 {
		headerEnd = headerStart + 12
	}
	if headerEnd > len(lines) {
		headerEnd = len(lines)
	}
	headerBlock := lines[headerStart:headerEnd]

	preview := headerBlock
	if len(preview) > 6 {
		preview = preview[:6]
	}
	sink.Emit("shop_location", map[string]any{"header_block_first_lines": preview})

	var street, postalCode, city string
	for _, line := range headerBlock {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if street == "" {
			// "41-43 Krohnstieg" is normalized to "Krohnstieg 41-43"
			if m := decathlonStreetNumFirstRe.FindStringSubmatch(line); m != nil {
				street = m[2] + " " + m[1]
				continue
			}
			if m := decathlonStreetRe.FindStringSubmatch(line); m != nil {
				street = m[1] + " " + m[2]
				continue
			}
			if m := decathlonStreetBareRe.FindStringSubmatch(line); m != nil {
				street = m[1]
				continue
			}
		}

		if postalCode == "" {
			if m := decathlonPostalCityRe.FindStringSubmatch(line); m != nil {
				postalCode = m[1]
				city = m[2]
				continue
			}
		}
	}

	var display string
	if street != "" || postalCode != "" {
		parts := []string{}
		if street != "" {
			parts = append(parts, street)
		}
		if cityPart := strings.TrimSpace(postalCode + " " + city); cityPart != "" {
			parts = append(parts, cityPart)
		}
		display = strings.Join(parts, ", ")
	}

	sink.Emit("address_extracted", map[string]any{
		"display": display, "street": street, "postalCode": postalCode, "city": city,
	})

	return display
}

func (p *DecathlonParser) extractReceiptNumber(text string) string {
	// "Rechnungsnummer 1 22 0007 0004012438" - digits with grouping spaces
	if m := decathlonReceiptNumRe.FindStringSubmatch(text); m != nil {
		return strings.Join(strings.Fields(m[1]), "")
	}
	if m := decathlonTransNumRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func (p *DecathlonParser) extractLineItems(text string, sink DebugSink) []LineItem {
	items := []LineItem{}
	lines := strings.Split(text, "\n")

	sink.Emit("line_extraction_start", map[string]any{"total_lines": len(lines)})

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		m := decathlonProductRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		productName := strings.TrimSpace(m[1])
		rfid := m[2]

		sink.Emit("product_found", map[string]any{"name": productName, "rfid": rfid, "line": i})

		values, ok := p.extractItemValues(lines, i+1)
		if ok {
			quantity := values.quantity
			if quantity <= 0 {
				quantity = 1
			}
			// "Gesamt" on the invoice is the line total for the
			// whole quantity.
			lineTotal := values.grossTotal
			unitPrice := lineTotal / float64(quantity)

			items = append(items, LineItem{
				Name:       productName,
				Quantity:   float64(quantity),
				Unit:       UnitPiece,
				UnitPrice:  unitPrice,
				TotalPrice: lineTotal,
				Confidence: ConfidenceHigh,
			})

			sink.Emit("parsed_item", map[string]any{
				"name":        productName,
				"article_nr":  values.articleNumber,
				"quantity":    values.quantity,
				"gross_price": values.grossTotal,
				"net_price":   values.netPrice,
				"vat_rate":    values.vatRate,
				"vat_amount":  values.vatAmount,
			})
			continue
		}

		// Fallback: scan a smaller window for any plausible price
		if price, found := p.findPriceNearby(lines, i); found {
			items = append(items, LineItem{
				Name:       productName,
				Quantity:   1,
				Unit:       UnitPiece,
				UnitPrice:  price,
				TotalPrice: price,
				Confidence: ConfidenceMedium,
				Warning:    "Price extracted with reduced confidence",
			})
		}
	}

	sink.Emit("line_extraction_complete", map[string]any{"items_found": len(items)})

	return items
}

type decathlonItemValues struct {
	articleNumber string
	quantity      int
	netPrice      float64
	vatRate       int
	vatAmount     float64
	grossTotal    float64
}

// extractItemValues collects the column values that pdftotext
// linearized onto separate lines after a product description. Prices
// are assigned positionally in order of first appearance: net price,
// VAT amount, gross total.
func (p *DecathlonParser) extractItemValues(lines []string, start int) (decathlonItemValues, bool) {
	values := decathlonItemValues{quantity: -1, vatRate: -1}
	var hasNet, hasVATAmount, hasGross bool

	end := start + decathlonValueWindow
	if end > len(lines) {
		end = len(lines)
	}

	for i := start; i < end; i++ {
		line := strings.TrimSpace(lines[i])

		// Stop at the next product row or section header
		if decathlonRFIDStopRe.MatchString(line) || decathlonSectionRe.MatchString(line) {
			break
		}
		if line == "" {
			continue
		}

		if m := decathlonArticleRe.FindStringSubmatch(line); m != nil {
			values.articleNumber = m[1]
			continue
		}

		if m := decathlonIntRe.FindStringSubmatch(line); m != nil && values.quantity < 0 {
			values.quantity, _ = strconv.Atoi(m[1])
			continue
		}

		if m := decathlonVATRe.FindStringSubmatch(line); m != nil {
			values.vatRate, _ = strconv.Atoi(m[1])
			continue
		}

		if m := decathlonPriceRe.FindStringSubmatch(line); m != nil {
			price := decimalPrice(m[1], m[2])
			switch {
			case !hasNet:
				values.netPrice = price
				hasNet = true
			case !hasVATAmount:
				values.vatAmount = price
				hasVATAmount = true
			case !hasGross:
				values.grossTotal = price
				hasGross = true
			}
			continue
		}

		// pdftotext sometimes keeps the € only on the last column
		if m := decathlonPriceEURRe.FindStringSubmatch(line); m != nil {
			if !hasGross {
				values.grossTotal = decimalPrice(m[1], m[2])
				hasGross = true
			}
			continue
		}
	}

	if !hasGross {
		return decathlonItemValues{}, false
	}
	if values.quantity < 0 {
		values.quantity = 1
	}
	if values.vatRate < 0 {
		values.vatRate = 19
	}
	return values, true
}

// findPriceNearby is the reduced-confidence fallback when no complete
// value set followed the product line.
func (p *DecathlonParser) findPriceNearby(lines []string, productLine int) (float64, bool) {
	end := productLine + decathlonPriceWindow
	if end > len(lines) {
		end = len(lines)
	}

	for i := productLine + 1; i < end; i++ {
		line := strings.TrimSpace(lines[i])

		if m := decathlonAnyEURRe.FindStringSubmatch(line); m != nil {
			return decimalPrice(m[1], m[2]), true
		}

		if m := decathlonPriceRe.FindStringSubmatch(line); m != nil {
			price := decimalPrice(m[1], m[2])
			if price > 0 && price < 10000 {
				return price, true
			}
		}
	}

	return 0, false
}

func (p *DecathlonParser) extractTotal(text string) (float64, bool) {
	if m := decathlonTotalRe.FindStringSubmatch(text); m != nil {
		return decimalPrice(m[1], m[2]), true
	}
	if m := decathlonGesamtTotalRe.FindStringSubmatch(text); m != nil {
		return decimalPrice(m[1], m[2]), true
	}
	return 0, false
}

// decimalPrice builds a price from separately captured integer and
// fraction digits. Decathlon invoices print period decimals, so these
// never go through the German-format ParsePrice.
func decimalPrice(whole, fraction string) float64 {
	f, _ := strconv.ParseFloat(whole+"."+fraction, 64)
	return f
}
