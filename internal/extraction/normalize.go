package extraction

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText cleans up raw extractor output: forces valid UTF-8 in
// NFC form (OCR likes to emit decomposed umlauts), unifies line
// endings to LF and trims every line. Leading and trailing blank
// lines are dropped while internal blank lines survive, because the
// vendor parsers use blank-line runs as column-break signals.
func NormalizeText(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = norm.NFC.String(text)

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
