package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Skryldev/storefront/db"
	"github.com/Skryldev/storefront/models"
)

// ProductRepository defines the persistence operations for products.
type ProductRepository interface {
	Insert(ctx context.Context, params models.CreateProductParams) (*models.Product, error)
	GetByID(ctx context.Context, id int64) (*models.Product, error)
	OrderItems(ctx context.Context, productID int64) ([]*models.OrderItem, error)
	List(ctx context.Context, limit, offset int) ([]*models.Product, error)
	Update(ctx context.Context, params models.UpdateProductParams) (*models.Product, error)
	Delete(ctx context.Context, id int64) error
	DeleteMany(ctx context.Context, ids []int64) (int64, error)
	Count(ctx context.Context) (int64, error)
}

type productRepo struct {
	q db.Querier
}

// NewProductRepo returns a ProductRepository backed by q.
func NewProductRepo(q db.Querier) ProductRepository {
	return &productRepo{q: q}
}

const productColumns = `id, name, description, price, category_id, image_url, created_at, updated_at`

const (
	sqlInsertProduct = `
		INSERT INTO products (name, description, price, category_id, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id`

	sqlGetProductByID = `
		SELECT ` + productColumns + `
		FROM   products
		WHERE  id = $1`

	sqlListProducts = `
		SELECT ` + productColumns + `
		FROM   products
		ORDER  BY id
		LIMIT  $1 OFFSET $2`

	sqlListProductOrderItems = `
		SELECT id, order_id, product_id, quantity, price, created_at, updated_at
		FROM   order_items
		WHERE  product_id = $1
		ORDER  BY id`

	sqlDeleteProduct = `
		DELETE FROM products WHERE id = $1`

	sqlCountProducts = `
		SELECT COUNT(*) FROM products`
)

// Insert creates a product. A category_id that does not exist fails with
// db.ErrForeignKeyViolation.
func (r *productRepo) Insert(ctx context.Context, params models.CreateProductParams) (*models.Product, error) {
	ts := now()
	p := &models.Product{
		Name:        params.Name,
		Description: params.Description,
		Price:       params.Price,
		CategoryID:  params.CategoryID,
		ImageURL:    params.ImageURL,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	err := r.q.QueryRow(ctx, sqlInsertProduct,
		params.Name, NullString(params.Description), params.Price,
		params.CategoryID, NullString(params.ImageURL), ts,
	).Scan(&p.ID)
	if err != nil {
		return nil, fmt.Errorf("repo/product: insert: %w", err)
	}
	return p, nil
}

// GetByID returns db.ErrNotFound when no record matches.
func (r *productRepo) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	return scanProduct(r.q.QueryRow(ctx, sqlGetProductByID, id))
}

// OrderItems returns every order line that references the product, oldest
// first. It does not check that the product exists.
func (r *productRepo) OrderItems(ctx context.Context, productID int64) ([]*models.OrderItem, error) {
	rows, err := r.q.Query(ctx, sqlListProductOrderItems, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*models.OrderItem, 0)
	for rows.Next() {
		it, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// List returns one page of products ordered by id.
func (r *productRepo) List(ctx context.Context, limit, offset int) ([]*models.Product, error) {
	rows, err := r.q.Query(ctx, sqlListProducts, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]*models.Product, 0, limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Update applies a partial update. Only fields with non-nil pointers in
// params are written. Prices already recorded on order items are not
// touched: they live in their own column.
func (r *productRepo) Update(ctx context.Context, params models.UpdateProductParams) (*models.Product, error) {
	setClauses := make([]string, 0, 6)
	args := make([]any, 0, 7)
	argIdx := 1

	set := func(column string, value any) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if params.Name != nil {
		set("name", *params.Name)
	}
	if params.Description != nil {
		set("description", *params.Description)
	}
	if params.Price != nil {
		set("price", *params.Price)
	}
	if params.CategoryID != nil {
		set("category_id", *params.CategoryID)
	}
	if params.ImageURL != nil {
		set("image_url", *params.ImageURL)
	}
	if len(setClauses) == 0 {
		return r.GetByID(ctx, params.ID)
	}
	set("updated_at", now())

	args = append(args, params.ID)
	query := fmt.Sprintf(`
		UPDATE products
		SET    %s
		WHERE  id = $%d`,
		strings.Join(setClauses, ", "), argIdx)

	res, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repo/product: update: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, params.ID)
}

// Delete returns db.ErrNotFound if no row was deleted. A product referenced
// by order items is refused with db.ErrForeignKeyViolation.
func (r *productRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.q.Exec(ctx, sqlDeleteProduct, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// DeleteMany removes every listed product that exists and ignores the rest.
func (r *productRepo) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	return deleteMany(ctx, r.q, "products", ids)
}

// Count returns the total number of products.
func (r *productRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.q.QueryRow(ctx, sqlCountProducts).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanProduct(s scanner) (*models.Product, error) {
	p := &models.Product{}
	err := s.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.CategoryID,
		&p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("repo/product: %w", err)
	}
	return p, nil
}

var _ ProductRepository = (*productRepo)(nil)
