package parsing

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// LidlParser parses Lidl receipts (German format). Lidl receipts are
// narrow OCR'd till slips: one physical line per item, with quantity
// or weight breakdowns printed as separate sub-detail lines.
type LidlParser struct{}

func NewLidlParser() *LidlParser {
	return &LidlParser{}
}

var (
	lidlSniffRe      = regexp.MustCompile(`(?i)\bLIDL\b`)
	lidlDateRe       = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{2,4})\b`)
	lidlFooterTimeRe = regexp.MustCompile(`\d{4}\s+\d+/\d+\s+\d{2}\.\d{2}\.\d{2}\s+(\d{2}):(\d{2})`)
	lidlDateTimeRe   = regexp.MustCompile(`\d{2}\.\d{2}\.\d{2}\s+(\d{2}):(\d{2})`)

	lidlStreetRe = regexp.MustCompile(`(?i)([A-Za-zäöüÄÖÜß\s\-.]+(?:straße|strasse|str\.|weg|platz|allee|chaussee|damm|ring|ufer|steig|gasse|pfad|promenade|kamp|stieg|bogen|hof|markt)\s*\d+[a-z]?)`)
	lidlCityRe   = regexp.MustCompile(`\b(\d{5})\s+([A-Za-zäöüÄÖÜß\-]+)\b`)

	// OCR sometimes emits a Unicode minus (−) that plain "-" classes
	// miss, so the discount sign is forced negative after parsing.
	lidlDiscountRe    = regexp.MustCompile(`(?i)(Lidl Plus Rabatt|Preisvorteil|Rabatt)\s+[-−]?(\d+[,.]\d{2})`)
	lidlDepositRetRe  = regexp.MustCompile(`(?i)Pfandr[üu]ckgabe\s+(-?\d+[,.]\d{2})`)
	lidlPfandReturnRe = regexp.MustCompile(`(?i)^[-−](\d+)\s*[Xx]\s*(\d+[,.]\d{2})`)
	lidlItemRe        = regexp.MustCompile(`(?i)^(.+?)\s+(\d+[,.]\d{2})\s*(?:x\s*(\d+))?\s*(\d+[,.]\d{2})?\s*[AB]?\s*$`)
	lidlPfandRe       = regexp.MustCompile(`(?i)Pfand\s+\d+[,.]\d{2}.*?(\d+[,.]\d{2})\s*[AB]?\s*$`)
	lidlTotalRe       = regexp.MustCompile(`(?i)zu\s+zahlen\s+(\d+[,.]\d{2})`)
	lidlTotalSummeRe  = regexp.MustCompile(`(?i)Summe\s+EUR?\s*(\d+[,.]\d{2})`)
)

// Header, footer, payment-terminal and TSE noise that must never be
// classified as items.
var lidlSkipRes = compileAll([]string{
	`(?i)^Bonkopie$`,
	`(?i)^LIDL$`,
	`(?i)^EUR$`,
	`(?i)^Kieler`,
	`^\d{5}\s+\w+$`,
	`(?i)^MWST`,
	`(?i)^Summe$`,
	`(?i)^TSE\s+Trans`,
	`(?i)^Seriennr`,
	`(?i)^Signatur`,
	`^\d{4}\s+\d+/\d+`,
	`(?i)^UST-ID`,
	`(?i)^K-U-N-D-E`,
	`(?i)^Bezahlung`,
	`(?i)^Betrag`,
	`(?i)^Terminal`,
	`(?i)^Kartennr`,
	`(?i)^Visa\s+kontaktlos`,
	`(?i)^VU-Nummer`,
	`(?i)^Autorisierung`,
	`(?i)^EMV-Daten`,
	`(?i)^\*\*`,
	`(?i)^Mit\s+Lidl\s+Plus`,
	`(?i)gespart$`,
	`(?i)^VIELEN\s+DANK`,
	`(?i)^Kostenlose`,
	`(?i)^www\.`,
	`(?i)^Einkauf\s+get`,
	`(?i)^Details\s+zur`,
	`(?i)^Eingel[öo]ste`,
	`(?i)^Aktion\s+g[üu]ltig`,
	`(?i)^Coupon\s+nur`,
	`(?i)^Giltig\s+in`,
	`(?i)^Pro\s+Einkauf`,
	`(?i)^Keine\s+Bar`,
	`(?i)^Coupons\s+zu`,
	`(?i)^\d+[,.]\d{2}\s*EUR\s+gespart`,
	`(?i)^Gesamter\s+Preisvorteil`,
	// VAT summary lines: "A = 19% MwSt. 12,72 aus 79,70"
	`(?i)^[AB]\s*=?\s*\d+[,.]?\d*\s*%`,
	`(?i)\baus\s+\d+[,.]\d{2}`,
	// Stray total/price lines
	`(?i)^\d+[,.]\d{2}\s*EUR\s*$`,
	`(?i)^EUR\s+\d+[,.]\d{2}\s*$`,
	`(?i)^Start:`,
	`(?i)^Ende:`,
	// TSE/signature related
	`(?i)^2\d{3}-\d{2}-\d{2}T`,
	`(?i)^Transaktions`,
	`(?i)^Zeitformat`,
	`(?i)^TA-Nr`,
	// Payment/total lines that look like items
	`(?i)^zu\s+zahlen`,
	`(?i)^Kreditkarte`,
	`(?i)^Maestro`,
	`(?i)^Visa`,
	`(?i)^EC-Karte`,
	`(?i)^Girocard`,
	`(?i)^Bar\s+\d`,
	`(?i)^Summe\s+\d`,
	// Pfand return lines like "-3 X 0,25" are deposit credits and
	// must be parsed, not skipped.
})

// Quantity/weight breakdown lines that belong to the preceding item
// line, e.g. "1,550 kg x 1,69 EUR/kg".
var lidlDetailRes = compileAll([]string{
	`(?i)^\d+[,.]\d+\s*(kg|g|l|ml)\s*x\s*\d+[,.]\d+\s*EUR/(kg|g|l|ml)`,
	`(?i)^\d+[,.]\d+\s*x\s*\d+$`,
	`(?i)^\d+[,.]\d+\s*EUR/(kg|g|l|ml|St)`,
	`^\d{6,}\s*\d*$`,
})

func (p *LidlParser) CanParse(text string) bool {
	return lidlSniffRe.MatchString(text)
}

func (p *LidlParser) ShopName() string {
	return "Lidl"
}

func (p *LidlParser) Parse(text string, sink DebugSink) Receipt {
	if sink == nil {
		sink = NopSink{}
	}

	var warnings []string

	date := p.extractDate(text)
	tm := p.extractTime(text)

	if date == "" {
		warnings = append(warnings, "Could not extract purchase date")
	}
	if tm == "" {
		warnings = append(warnings, "Could not extract purchase time")
	}

	addressDisplay := p.extractAddress(text)

	items := p.extractLineItems(text, sink)
	if len(items) == 0 {
		warnings = append(warnings, "No line items could be extracted")
	}

	total, ok := p.extractTotal(text)
	if !ok {
		warnings = append(warnings, "Could not extract total amount")
		total = sumTotals(items)
	}

	// Lidl prints its subtotal with discounts already applied, so the
	// subtotal is the signed sum over all items.
	subtotal := sumTotals(items)

	// Payment method is never on the receipt
	warnings = append(warnings, "Payment method not detected - please select manually")

	return Receipt{
		Success:        true,
		ShopName:       "Lidl",
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

func (p *LidlParser) extractDate(text string) string {
	m := lidlDateRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	day, month, year := m[1], m[2], m[3]
	if len(year) == 2 {
		year = "20" + year
	}
	return fmt.Sprintf("%s-%s-%s", year, month, day)
}

func (p *LidlParser) extractTime(text string) string {
	// The receipt footer pattern "XXXX XXXXXX/XX DD.MM.YY HH:MM" is
	// more reliable than a generic HH:MM, which can match TSE
	// timestamps elsewhere on the slip.
	if m := lidlFooterTimeRe.FindStringSubmatch(text); m != nil {
		return m[1] + ":" + m[2]
	}

	if m := lidlDateTimeRe.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		if hour >= 0 && hour <= 23 {
			return m[1] + ":" + m[2]
		}
	}

	return ""
}

// extractAddress looks for a German street + postal/city pair in the
// receipt header. The search is bounded to the first 20 lines so
// addresses inside coupons or ads further down never match.
func (p *LidlParser) extractAddress(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > 20 {
		lines = lines[:20]
	}
	header := strings.Join(lines, "\n")

	var street, postalCode, city string
	if m := lidlStreetRe.FindStringSubmatch(header); m != nil {
		street = strings.TrimSpace(m[1])
	}
	if m := lidlCityRe.FindStringSubmatch(header); m != nil {
		postalCode = m[1]
		city = m[2]
	}

	if street == "" || postalCode == "" || city == "" {
		return ""
	}
	return fmt.Sprintf("%s, %s %s", street, postalCode, city)
}

func (p *LidlParser) extractLineItems(text string, sink DebugSink) []LineItem {
	items := []LineItem{}

	for lineNum, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if matchesAny(lidlSkipRes, line) {
			sink.Emit("skipped_header", map[string]any{"lineNum": lineNum, "line": line})
			continue
		}

		if matchesAny(lidlDetailRes, line) {
			sink.Emit("skipped_detail", map[string]any{"lineNum": lineNum, "line": line})
			continue
		}

		// Discount lines: "Lidl Plus Rabatt -X,XX" or "Preisvorteil -X,XX"
		if m := lidlDiscountRe.FindStringSubmatch(line); m != nil {
			price := -math.Abs(ParsePrice(m[2])) // always negative for discounts
			sink.Emit("parsed_discount", map[string]any{"lineNum": lineNum, "line": line, "name": strings.TrimSpace(m[1]), "price": price})
			items = append(items, LineItem{
				Name:       strings.TrimSpace(m[1]),
				Quantity:   1,
				Unit:       UnitPiece,
				UnitPrice:  price,
				TotalPrice: price,
				Confidence: ConfidenceHigh,
				IsDiscount: true,
			})
			continue
		}

		// Pfandrückgabe (deposit return)
		if m := lidlDepositRetRe.FindStringSubmatch(line); m != nil {
			price := ParsePrice(m[1])
			items = append(items, LineItem{
				Name:       "Pfandrückgabe",
				Quantity:   1,
				Unit:       UnitPiece,
				UnitPrice:  price,
				TotalPrice: price,
				Confidence: ConfidenceHigh,
				IsDiscount: true,
			})
			continue
		}

		// Pfand return shorthand: "-3 X 0,25" (three bottles returned)
		if m := lidlPfandReturnRe.FindStringSubmatch(line); m != nil {
			quantity, _ := strconv.Atoi(m[1])
			unitPrice := ParsePrice(m[2])
			totalPrice := -(float64(quantity) * unitPrice)
			sink.Emit("parsed_pfand_return", map[string]any{"lineNum": lineNum, "line": line, "qty": quantity, "total": totalPrice})
			items = append(items, LineItem{
				Name:       "Pfand Rückgabe",
				Quantity:   float64(quantity),
				Unit:       UnitPiece,
				UnitPrice:  -unitPrice,
				TotalPrice: totalPrice,
				Confidence: ConfidenceHigh,
				IsDiscount: true,
			})
			continue
		}

		// Regular item patterns:
		// "Product name X,XX A" (single item)
		// "Product name X,XX x N Y,YY A" (multiple items)
		if m := lidlItemRe.FindStringSubmatch(line); m != nil {
			name := strings.TrimSpace(m[1])
			price1 := ParsePrice(m[2])
			quantity := 1.0
			if m[3] != "" {
				quantity, _ = strconv.ParseFloat(m[3], 64)
			}
			totalPrice := price1
			if m[4] != "" {
				totalPrice = ParsePrice(m[4])
			}

			// Skip if the name looks like metadata
			if len(name) < 3 || isNumeric(name) {
				continue
			}

			unitPrice := totalPrice
			if quantity > 1 {
				unitPrice = price1
			}

			sink.Emit("parsed_item", map[string]any{"lineNum": lineNum, "line": line, "name": name, "qty": quantity, "total": totalPrice})
			items = append(items, LineItem{
				Name:       name,
				Quantity:   quantity,
				Unit:       UnitPiece,
				UnitPrice:  unitPrice,
				TotalPrice: totalPrice,
				Confidence: ConfidenceMedium,
			})
			continue
		}

		// Pfand (deposit) lines: "Pfand 0,25 EM 0,25 x 6 1,50 B"
		if m := lidlPfandRe.FindStringSubmatch(line); m != nil {
			totalPrice := ParsePrice(m[1])
			sink.Emit("parsed_pfand", map[string]any{"lineNum": lineNum, "line": line, "total": totalPrice})
			items = append(items, LineItem{
				Name:       "Pfand",
				Quantity:   1,
				Unit:       UnitPiece,
				UnitPrice:  totalPrice,
				TotalPrice: totalPrice,
				Confidence: ConfidenceMedium,
			})
			continue
		}

		sink.Emit("unmatched_line", map[string]any{"lineNum": lineNum, "line": line})
	}

	return items
}

func (p *LidlParser) extractTotal(text string) (float64, bool) {
	if m := lidlTotalRe.FindStringSubmatch(text); m != nil {
		return ParsePrice(m[1]), true
	}
	if m := lidlTotalSummeRe.FindStringSubmatch(text); m != nil {
		return ParsePrice(m[1]), true
	}
	return 0, false
}

func sumTotals(items []LineItem) float64 {
	var sum float64
	for _, item := range items {
		sum += item.TotalPrice
	}
	return sum
}

func sumNonDiscountTotals(items []LineItem) float64 {
	var sum float64
	for _, item := range items {
		if !item.IsDiscount {
			sum += item.TotalPrice
		}
	}
	return sum
}

func confidenceFromWarnings(warnings []string) string {
	if len(warnings) <= 2 {
		return ConfidenceHigh
	}
	return ConfidenceMedium
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
