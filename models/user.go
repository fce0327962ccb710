package models

import "time"

// User represents a row in the "users" table.
// Fields map 1-to-1 with columns; no automatic relation loading.
type User struct {
	ID           int64     `json:"id"`
	Name         *string   `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CreateUserParams holds the fields required to create a new user.
// PasswordHash is already hashed; the repository never sees plaintext.
type CreateUserParams struct {
	Name         *string
	Email        string
	PasswordHash string
}

// UpdateUserParams holds fields that can be updated. All fields are pointers
// so callers only set what needs changing.
type UpdateUserParams struct {
	ID           int64
	Name         *string
	Email        *string
	PasswordHash *string
}

// UserAddress is a row in "user_addresses", owned by a User.
type UserAddress struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Street    string    `json:"street"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	ZipCode   string    `json:"zipCode"`
	Country   string    `json:"country"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateAddressParams struct {
	UserID  int64
	Street  string
	City    string
	State   string
	ZipCode string
	Country string
}

// Profile is a user together with its addresses.
type Profile struct {
	*User
	Addresses []*UserAddress `json:"addresses"`
}
