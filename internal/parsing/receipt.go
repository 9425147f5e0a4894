package parsing

// Confidence levels for parsed receipts and line items.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Units for parsed line items.
const (
	UnitPiece = "piece"
	UnitKg    = "kg"
	UnitG     = "g"
	UnitL     = "l"
)

// LineItem is a single parsed line item from a receipt.
type LineItem struct {
	Name       string  `json:"name"`
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit"`
	UnitPrice  float64 `json:"unitPrice"`  // In original currency, negative for refunds/deposit returns
	TotalPrice float64 `json:"totalPrice"` // quantity * unitPrice (or explicit from receipt)
	Confidence string  `json:"confidence"`
	Warning    string  `json:"warning,omitempty"`
	IsDiscount bool    `json:"isDiscount"`
}

// Receipt is a fully parsed receipt ready for form pre-fill.
type Receipt struct {
	Success        bool       `json:"success"`
	ShopName       string     `json:"shopName,omitempty"`
	ShopID         int64      `json:"shopId,omitempty"`
	AddressDisplay string     `json:"addressDisplay,omitempty"`
	AddressID      int64      `json:"addressId,omitempty"`
	Date           string     `json:"date,omitempty"` // YYYY-MM-DD
	Time           string     `json:"time,omitempty"` // HH:MM
	Currency       string     `json:"currency"`
	Items          []LineItem `json:"items"`
	Subtotal       float64    `json:"subtotal"`
	Total          float64    `json:"total"`
	Warnings       []string   `json:"warnings"`
	Error          string     `json:"error,omitempty"`
	Confidence     string     `json:"confidence"`
}

// Failure creates a terminal failure result. No fields beyond the
// error are populated and confidence is always low.
func Failure(err string) Receipt {
	return Receipt{
		Success:    false,
		Currency:   "EUR",
		Items:      []LineItem{},
		Warnings:   []string{},
		Error:      err,
		Confidence: ConfidenceLow,
	}
}
