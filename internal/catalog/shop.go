package catalog

import "strings"

// Shop is a known store chain or merchant.
type Shop struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// ShopAddress is one branch address of a shop. An address belongs to
// exactly one shop; at most one address per shop is primary.
type ShopAddress struct {
	ID          int64  `json:"id"`
	ShopID      int64  `json:"shop_id"`
	Street      string `json:"street"`
	HouseNumber string `json:"house_number"`
	PostalCode  string `json:"postal_code"`
	City        string `json:"city"`
	IsPrimary   bool   `json:"is_primary"`
}

// Display formats the address for presentation, e.g.
// "Kieler Straße 595, 22525 Hamburg".
func (a *ShopAddress) Display() string {
	var parts []string

	if a.Street != "" {
		street := a.Street
		if a.HouseNumber != "" {
			street += " " + a.HouseNumber
		}
		parts = append(parts, street)
	}

	if cityPart := strings.TrimSpace(a.PostalCode + " " + a.City); cityPart != "" {
		parts = append(parts, cityPart)
	}

	return strings.Join(parts, ", ")
}
