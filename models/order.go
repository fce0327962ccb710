package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses accepted on creation.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
)

// Order is a row in "orders" together with the items it owns.
type Order struct {
	ID           int64           `json:"id"`
	Status       string          `json:"status"`
	IsCancelled  bool            `json:"isCancelled"`
	TotalPrice   decimal.Decimal `json:"totalPrice"`
	Observations *string         `json:"observations"`
	UserID       int64           `json:"userId"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	Items        []*OrderItem    `json:"orderItems"`
}

// OrderItem is a row in "order_items". Price is the unit price charged at
// order time and is never recomputed from the product.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"orderId"`
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type CreateOrderParams struct {
	Status       string
	IsCancelled  bool
	TotalPrice   decimal.Decimal
	Observations *string
	UserID       int64
	Items        []CreateOrderItemParams
}

type CreateOrderItemParams struct {
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}
