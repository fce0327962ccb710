package models

import "time"

// Category represents a row in the "categories" table.
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateCategoryParams struct {
	Name string
}

// UpdateCategoryParams leaves nil fields untouched.
type UpdateCategoryParams struct {
	ID   int64
	Name *string
}
