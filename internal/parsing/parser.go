package parsing

import "regexp"

// Parser is the contract for shop-specific receipt parsers.
type Parser interface {
	// CanParse checks if this parser recognizes the given receipt
	// text. Cheap sniff only; must not depend on Parse having run.
	CanParse(text string) bool

	// ShopName returns the canonical shop label this parser handles.
	ShopName() string

	// Parse converts raw receipt text into structured data. A parser
	// that claimed the text always returns Success=true and records
	// gaps as warnings instead of failing.
	Parse(text string, sink DebugSink) Receipt
}

// DefaultParsers returns the available parsers in detection order.
// Order matters: sniff patterns are not mutually exclusive, so the
// registration order encodes precedence.
func DefaultParsers() []Parser {
	return []Parser{
		NewLidlParser(),
		NewDMParser(),
		NewDecathlonParser(),
	}
}

// Detect returns the first parser that claims the text, or nil.
func Detect(parsers []Parser, text string) Parser {
	for _, p := range parsers {
		if p.CanParse(text) {
			return p
		}
	}
	return nil
}

func compileAll(patterns []string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(p)
	}
	return res
}

func matchesAny(res []*regexp.Regexp, line string) bool {
	for _, re := range res {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
