package models

import "github.com/shopspring/decimal"

func init() {
	// Money is emitted as a JSON number, not a quoted string.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
	MaxPage      = 1_000_000
)

// Page is a validated page request. Number starts at 1.
type Page struct {
	Number int `json:"page"`
	Limit  int `json:"limit"`
}

// Offset is the number of rows skipped before this page.
func (p Page) Offset() int {
	n := min(max(p.Number, 1), MaxPage)
	return (n - 1) * p.Limit
}
