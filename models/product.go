package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a row in the "products" table. Description and
// ImageURL are nullable columns. OrderItems is only loaded for a single
// product read and is omitted from listings.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Price       decimal.Decimal `json:"price"`
	CategoryID  int64           `json:"categoryId"`
	ImageURL    *string         `json:"imageUrl"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	OrderItems  []*OrderItem    `json:"orderItems,omitempty"`
}

type CreateProductParams struct {
	Name        string
	Description *string
	Price       decimal.Decimal
	CategoryID  int64
	ImageURL    *string
}

// UpdateProductParams leaves nil fields untouched; a present field is
// written as given, so a nullable column cannot be cleared through it.
type UpdateProductParams struct {
	ID          int64
	Name        *string
	Description *string
	Price       *decimal.Decimal
	CategoryID  *int64
	ImageURL    *string
}
