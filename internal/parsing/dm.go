package parsing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DMParser parses dm-drogerie markt receipts (German format). dm
// receipts split one logical item across two physical lines: the
// product name, then a "price quantity" line below it.
type DMParser struct{}

func NewDMParser() *DMParser {
	return &DMParser{}
}

var (
	dmSniffRe = regexp.MustCompile(`(?i)\b(dm-drogerie|dm\.de|DM-Rabatte|dm-Rabatte)\b`)

	dmDateRe      = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4})\b`)
	dmShortDateRe = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{2})\b`)
	dmTimeRe      = regexp.MustCompile(`\b(\d{2}):(\d{2})\b`)

	dmStreetRe = regexp.MustCompile(`(?i)([A-Za-zäöüÄÖÜß\s\-.]+(?:straße|strasse|str\.|weg|platz|allee|chaussee)\s*\d+[a-z]?)`)
	dmCityRe   = regexp.MustCompile(`\b(\d{5})\s+([A-Za-zäöüÄÖÜß\-]+)\b`)

	dmCouponBlockRe    = regexp.MustCompile(`(?i)^(Coupon\s+.+|Partner-Rabatte.*)$`)
	dmCouponValueRe    = regexp.MustCompile(`^-(\d+[,.]\d{2})`)
	dmInlineDiscountRe = regexp.MustCompile(`(?i)(Coupon\s+\d+%\s+\S+)\s+(-\d+[,.]\d{2})`)
	dmMultiUnitRe      = regexp.MustCompile(`(?i)^(\d+)x\s+(\d+[,.]\d{2})\s+(.+)$`)
	dmLineTotalRe      = regexp.MustCompile(`^(\d+[,.]\d{2})\s+\d+\s*$`)
	dmNameStartRe      = regexp.MustCompile(`^[A-Za-zäöüÄÖÜß]`)
	dmDigitStartRe     = regexp.MustCompile(`^\d`)
	dmPriceQtyRe       = regexp.MustCompile(`^(\d+[,.]\d{2})\s+(\d+)\s*$`)
	dmStornoRe         = regexp.MustCompile(`(?i)^ZEILENSTORNO$`)
	dmRefundRe         = regexp.MustCompile(`(?i)^(.+)\s+(-\d+[,.]\d{2})\s+\d+\s*$`)

	dmTotalRe      = regexp.MustCompile(`(?i)Zu\s+zahlender\s+Betrag\s+EUR\s*\n?\s*.*?(\d+[,.]\d{2})`)
	dmTotalSummeRe = regexp.MustCompile(`(?i)SUMME\s+EUR\s+(\d+[,.]\d{2})`)
	dmTotalVisaRe  = regexp.MustCompile(`(?i)VISA\s+EUR\s+(\d+[,.]\d{2})`)
)

// Header/footer noise: dates, totals, PAYBACK loyalty text, card
// terminal metadata, TSE fiscal block.
var dmSkipRes = compileAll([]string{
	`^\d{2}\.\d{2}\.\d{4}$`,
	`^\d{2}:\d{2}$`,
	`^D\d+K/\d+$`,
	`^\d+/\d+$`,
	`^\d{4}$`,
	`^EUR$`,
	`(?i)^Zwischensumme`,
	`(?i)^dm-Rabatte`,
	`(?i)^Partner-Rabatte`,
	`(?i)^SUMME\s+EUR`,
	`(?i)^MwSt`,
	`(?i)^Brutto$`,
	`(?i)^Netto$`,
	`(?i)^\d+=\d+.*%`,
	`(?i)^PAYBACK`,
	`(?i)^Punktestand`,
	`(?i)^Basis-Punkte`,
	`(?i)^Öffnungszeiten`,
	`(?i)^Steuer-Nr`,
	`(?i)^FISKALINFORMATIONEN`,
	`(?i)^Start:`,
	`(?i)^Ende:`,
	`(?i)^SN-Kasse`,
	`(?i)^TA-Nummer`,
	`(?i)^SN-TSE`,
	`(?i)^Signaturzähler`,
	`(?i)^Signatur:`,
	`(?i)^Prüfwert`,
	`(?i)^K-U-N-D-E`,
	`(?i)^Terminal-ID`,
	`(?i)^Kartenzahlung`,
	`(?i)^Visa\s+kontaktlos`,
	`(?i)^DKB`,
	`(?i)^PAN$`,
	`(?i)^Karte\s+\d`,
	`(?i)^gültig\s+bis`,
	`(?i)^EMV-AID`,
	`(?i)^VU-Nr`,
	`(?i)^Genehmigungs`,
	`(?i)^Datum\s+\d`,
	`(?i)^\*\*\*`,
	`(?i)^AS-Proc`,
	`(?i)^Capt`,
	`(?i)^AS-RC`,
	`(?i)^APPROVED`,
	`(?i)^BITTE\s+BELEG`,
	`^={5,}`,
	`^#{5,}`,
})

func (p *DMParser) CanParse(text string) bool {
	return dmSniffRe.MatchString(text)
}

func (p *DMParser) ShopName() string {
	return "DM"
}

func (p *DMParser) Parse(text string, sink DebugSink) Receipt {
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

	// dm receipts don't always carry the branch address in the text
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

	// dm prints its Zwischensumme before discounts are applied, so
	// the subtotal excludes discount lines.
	subtotal := sumNonDiscountTotals(items)

	warnings = append(warnings, "Payment method not detected - please select manually")

	return Receipt{
		Success:        true,
		ShopName:       "DM",
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

func (p *DMParser) extractDate(text string) string {
	if m := dmDateRe.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("%s-%s-%s", m[3], m[2], m[1])
	}
	if m := dmShortDateRe.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("20%s-%s-%s", m[3], m[2], m[1])
	}
	return ""
}

func (p *DMParser) extractTime(text string) string {
	if m := dmTimeRe.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		if hour >= 0 && hour <= 23 {
			return m[1] + ":" + m[2]
		}
	}
	return ""
}

func (p *DMParser) extractAddress(text string) string {
	var street, postalCode, city string
	if m := dmStreetRe.FindStringSubmatch(text); m != nil {
		street = strings.TrimSpace(m[1])
	}
	if m := dmCityRe.FindStringSubmatch(text); m != nil {
		postalCode = m[1]
		city = m[2]
	}

	if street == "" || postalCode == "" || city == "" {
		return ""
	}
	return fmt.Sprintf("%s, %s %s", street, postalCode, city)
}

func (p *DMParser) extractLineItems(text string, sink DebugSink) []LineItem {
	items := []LineItem{}
	lines := strings.Split(text, "\n")

	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])

		if line == "" {
			i++
			continue
		}

		if matchesAny(dmSkipRes, line) {
			sink.Emit("skipped_header", map[string]any{"lineNum": i, "line": line})
			i++
			continue
		}

		// Coupon/discount block with the value on the following line
		if m := dmCouponBlockRe.FindStringSubmatch(line); m != nil {
			if i+1 < len(lines) {
				if vm := dmCouponValueRe.FindStringSubmatch(strings.TrimSpace(lines[i+1])); vm != nil {
					price := -ParsePrice(vm[1])
					sink.Emit("parsed_coupon", map[string]any{"lineNum": i, "line": line, "price": price})
					items = append(items, LineItem{
						Name:       strings.TrimSpace(m[1]),
						Quantity:   1,
						Unit:       UnitPiece,
						UnitPrice:  price,
						TotalPrice: price,
						Confidence: ConfidenceHigh,
						IsDiscount: true,
					})
					i += 2
					continue
				}
			}
			i++
			continue
		}

		// Inline discount: "Coupon 20% lavera -1,00"
		if m := dmInlineDiscountRe.FindStringSubmatch(line); m != nil {
			price := ParsePrice(m[2])
			sink.Emit("parsed_discount", map[string]any{"lineNum": i, "line": line, "price": price})
			items = append(items, LineItem{
				Name:       strings.TrimSpace(m[1]),
				Quantity:   1,
				Unit:       UnitPiece,
				UnitPrice:  price,
				TotalPrice: price,
				Confidence: ConfidenceHigh,
				IsDiscount: true,
			})
			i++
			continue
		}

		// Multi-unit: "3x 1,55 Prof. 10L Müllb. Biofo" then "4,65 1"
		if m := dmMultiUnitRe.FindStringSubmatch(line); m != nil {
			quantity, _ := strconv.ParseFloat(m[1], 64)
			unitPrice := ParsePrice(m[2])
			name := strings.TrimSpace(m[3])

			totalPrice := quantity * unitPrice
			if i+1 < len(lines) {
				if tm := dmLineTotalRe.FindStringSubmatch(strings.TrimSpace(lines[i+1])); tm != nil {
					totalPrice = ParsePrice(tm[1])
					i++ // consume the total line
				}
			}

			sink.Emit("parsed_multi_unit", map[string]any{"lineNum": i, "name": name, "qty": quantity, "total": totalPrice})
			items = append(items, LineItem{
				Name:       name,
				Quantity:   quantity,
				Unit:       UnitPiece,
				UnitPrice:  unitPrice,
				TotalPrice: totalPrice,
				Confidence: ConfidenceMedium,
			})
			i++
			continue
		}

		// Single item: "Prof. Citron. Kerze Basilikum" then "1,95 1"
		if dmNameStartRe.MatchString(line) && !dmDigitStartRe.MatchString(line) {
			if i+1 < len(lines) {
				if pm := dmPriceQtyRe.FindStringSubmatch(strings.TrimSpace(lines[i+1])); pm != nil {
					totalPrice := ParsePrice(pm[1])
					quantity, _ := strconv.ParseFloat(pm[2], 64)

					// Skip very short names and metadata-looking lines
					if len(line) >= 3 && !matchesAny(dmSkipRes, line) {
						sink.Emit("parsed_item", map[string]any{"lineNum": i, "name": line, "qty": quantity, "total": totalPrice})
						items = append(items, LineItem{
							Name:       line,
							Quantity:   quantity,
							Unit:       UnitPiece,
							UnitPrice:  totalPrice / max(quantity, 1),
							TotalPrice: totalPrice,
							Confidence: ConfidenceMedium,
						})
					}
					i += 2
					continue
				}
			}
		}

		// ZEILENSTORNO: the cancelled item follows on later lines
		if dmStornoRe.MatchString(line) {
			i++
			continue
		}

		// Negative price line (refund/cancellation)
		if m := dmRefundRe.FindStringSubmatch(line); m != nil {
			price := ParsePrice(m[2])
			sink.Emit("parsed_refund", map[string]any{"lineNum": i, "line": line, "price": price})
			items = append(items, LineItem{
				Name:       strings.TrimSpace(m[1]),
				Quantity:   1,
				Unit:       UnitPiece,
				UnitPrice:  price,
				TotalPrice: price,
				Confidence: ConfidenceMedium,
				IsDiscount: true,
			})
			i++
			continue
		}

		sink.Emit("unmatched_line", map[string]any{"lineNum": i, "line": line})
		i++
	}

	return items
}

func (p *DMParser) extractTotal(text string) (float64, bool) {
	if m := dmTotalRe.FindStringSubmatch(text); m != nil {
		return ParsePrice(m[1]), true
	}
	if m := dmTotalSummeRe.FindStringSubmatch(text); m != nil {
		return ParsePrice(m[1]), true
	}
	if m := dmTotalVisaRe.FindStringSubmatch(text); m != nil {
		return ParsePrice(m[1]), true
	}
	return 0, false
}
