package schema

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Skryldev/storefront/models"
)

// ── Catalog ─────────────────────────────────────────────────────────────────

// CategoryInput is the body of POST /categories.
type CategoryInput struct {
	Name string `json:"name" validate:"required,max=255"`
}

func (in *CategoryInput) Normalize() { in.Name = strings.TrimSpace(in.Name) }

func (in CategoryInput) Params() models.CreateCategoryParams {
	return models.CreateCategoryParams{Name: in.Name}
}

// CategoryPatch is the body of PUT /categories/:id. Name may be omitted;
// when present it must not be blank.
type CategoryPatch struct {
	Name *string `json:"name" validate:"omitempty,min=1,max=255"`
}

func (in *CategoryPatch) Normalize() { trimPtr(in.Name) }

func (in CategoryPatch) Params(id int64) models.UpdateCategoryParams {
	return models.UpdateCategoryParams{ID: id, Name: in.Name}
}

// ProductInput is the body of POST /products.
type ProductInput struct {
	Name        string           `json:"name" validate:"required,max=255"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	Price       *decimal.Decimal `json:"price" validate:"required,gte=0"`
	CategoryID  int64            `json:"categoryId" validate:"required,gt=0"`
	ImageURL    *string          `json:"imageUrl" validate:"omitempty,url"`
}

func (in *ProductInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	trimPtr(in.Description)
	trimPtr(in.ImageURL)
}

func (in ProductInput) Params() models.CreateProductParams {
	return models.CreateProductParams{
		Name:        in.Name,
		Description: in.Description,
		Price:       *in.Price,
		CategoryID:  in.CategoryID,
		ImageURL:    in.ImageURL,
	}
}

// ProductPatch is the body of PATCH and PUT /products/:id. Omitted fields
// are left unchanged.
type ProductPatch struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	Price       *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
	CategoryID  *int64           `json:"categoryId" validate:"omitempty,gt=0"`
	ImageURL    *string          `json:"imageUrl" validate:"omitempty,url"`
}

func (in *ProductPatch) Normalize() {
	trimPtr(in.Name)
	trimPtr(in.Description)
	trimPtr(in.ImageURL)
}

func (in ProductPatch) Params(id int64) models.UpdateProductParams {
	return models.UpdateProductParams{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		CategoryID:  in.CategoryID,
		ImageURL:    in.ImageURL,
	}
}

// BulkDeleteInput is the body of DELETE /categories and DELETE /products.
type BulkDeleteInput struct {
	IDs []int64 `json:"ids" validate:"required,min=1,max=100,dive,gt=0"`
}

// ── Orders ──────────────────────────────────────────────────────────────────

// OrderInput is the body of POST /orders. The owner is always the caller;
// a userId in the body is not part of the contract and is ignored.
type OrderInput struct {
	Status       *string          `json:"status" validate:"omitempty,oneof=pending paid shipped delivered"`
	IsCancelled  *bool            `json:"isCancelled"`
	TotalPrice   *decimal.Decimal `json:"totalPrice" validate:"required,gte=0"`
	Observations *string          `json:"observations" validate:"omitempty,max=1000"`
	Items        []OrderItemInput `json:"orderItems" validate:"required,min=1,max=100,dive"`
}

// OrderItemInput is one line of an OrderInput. Price is the unit price
// charged and is stored as given.
type OrderItemInput struct {
	ProductID int64            `json:"productId" validate:"required,gt=0"`
	Quantity  int              `json:"quantity" validate:"required,gt=0"`
	Price     *decimal.Decimal `json:"price" validate:"required,gte=0"`
}

func (in *OrderInput) Normalize() {
	if in.Status != nil {
		s := strings.ToLower(strings.TrimSpace(*in.Status))
		in.Status = &s
	}
	trimPtr(in.Observations)
}

// Params builds the repository input for an order owned by userID.
func (in OrderInput) Params(userID int64) models.CreateOrderParams {
	status := models.OrderStatusPending
	if in.Status != nil {
		status = *in.Status
	}
	p := models.CreateOrderParams{
		Status:       status,
		IsCancelled:  in.IsCancelled != nil && *in.IsCancelled,
		TotalPrice:   *in.TotalPrice,
		Observations: in.Observations,
		UserID:       userID,
		Items:        make([]models.CreateOrderItemParams, 0, len(in.Items)),
	}
	for _, it := range in.Items {
		p.Items = append(p.Items, models.CreateOrderItemParams{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     *it.Price,
		})
	}
	return p
}

// ── Identity ────────────────────────────────────────────────────────────────

// RegisterInput is the body of POST /user/register. Passwords are capped at
// 72 bytes, the most bcrypt will hash.
type RegisterInput struct {
	Name     *string `json:"name" validate:"omitempty,max=255"`
	Email    string  `json:"email" validate:"required,email,max=255"`
	Password string  `json:"password" validate:"required,min=6,max=72"`
}

func (in *RegisterInput) Normalize() {
	trimPtr(in.Name)
	in.Email = normalizeEmail(in.Email)
}

// AuthInput is the body of POST /user/auth.
type AuthInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (in *AuthInput) Normalize() { in.Email = normalizeEmail(in.Email) }

// AddressInput is the body of POST /user/register-address. The owner is
// the caller; a userId in the body is ignored.
type AddressInput struct {
	Street  string `json:"street" validate:"required,max=255"`
	City    string `json:"city" validate:"required,max=255"`
	State   string `json:"state" validate:"required,max=255"`
	ZipCode string `json:"zipCode" validate:"required,max=32"`
	Country string `json:"country" validate:"required,max=255"`
}

func (in *AddressInput) Normalize() {
	in.Street = strings.TrimSpace(in.Street)
	in.City = strings.TrimSpace(in.City)
	in.State = strings.TrimSpace(in.State)
	in.ZipCode = strings.TrimSpace(in.ZipCode)
	in.Country = strings.TrimSpace(in.Country)
}

func (in AddressInput) Params(userID int64) models.CreateAddressParams {
	return models.CreateAddressParams{
		UserID:  userID,
		Street:  in.Street,
		City:    in.City,
		State:   in.State,
		ZipCode: in.ZipCode,
		Country: in.Country,
	}
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
