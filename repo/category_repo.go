package repo

import (
	"context"
	"fmt"

	"github.com/Skryldev/storefront/db"
	"github.com/Skryldev/storefront/models"
)

// CategoryRepository defines the persistence operations for categories.
type CategoryRepository interface {
	Insert(ctx context.Context, params models.CreateCategoryParams) (*models.Category, error)
	GetByID(ctx context.Context, id int64) (*models.Category, error)
	List(ctx context.Context, limit, offset int) ([]*models.Category, error)
	Update(ctx context.Context, params models.UpdateCategoryParams) (*models.Category, error)
	Delete(ctx context.Context, id int64) error
	DeleteMany(ctx context.Context, ids []int64) (int64, error)
	Count(ctx context.Context) (int64, error)
}

type categoryRepo struct {
	q db.Querier
}

// NewCategoryRepo returns a CategoryRepository backed by q.
func NewCategoryRepo(q db.Querier) CategoryRepository {
	return &categoryRepo{q: q}
}

const (
	sqlInsertCategory = `
		INSERT INTO categories (name, created_at, updated_at)
		VALUES ($1, $2, $2)
		RETURNING id`

	sqlGetCategoryByID = `
		SELECT id, name, created_at, updated_at
		FROM   categories
		WHERE  id = $1`

	sqlListCategories = `
		SELECT id, name, created_at, updated_at
		FROM   categories
		ORDER  BY id
		LIMIT  $1 OFFSET $2`

	sqlUpdateCategory = `
		UPDATE categories
		SET    name = $1, updated_at = $2
		WHERE  id = $3`

	sqlDeleteCategory = `
		DELETE FROM categories WHERE id = $1`

	sqlCountCategories = `
		SELECT COUNT(*) FROM categories`
)

// Insert creates a category and returns the persisted record.
func (r *categoryRepo) Insert(ctx context.Context, params models.CreateCategoryParams) (*models.Category, error) {
	ts := now()
	c := &models.Category{Name: params.Name, CreatedAt: ts, UpdatedAt: ts}
	if err := r.q.QueryRow(ctx, sqlInsertCategory, params.Name, ts).Scan(&c.ID); err != nil {
		return nil, fmt.Errorf("repo/category: insert: %w", err)
	}
	return c, nil
}

// GetByID returns db.ErrNotFound when no record matches.
func (r *categoryRepo) GetByID(ctx context.Context, id int64) (*models.Category, error) {
	return scanCategory(r.q.QueryRow(ctx, sqlGetCategoryByID, id))
}

// List returns one page of categories ordered by id.
func (r *categoryRepo) List(ctx context.Context, limit, offset int) ([]*models.Category, error) {
	rows, err := r.q.Query(ctx, sqlListCategories, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]*models.Category, 0, limit)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// Update renames a category. With no field set it only confirms the row
// exists, so a missing id still yields db.ErrNotFound.
func (r *categoryRepo) Update(ctx context.Context, params models.UpdateCategoryParams) (*models.Category, error) {
	if params.Name == nil {
		return r.GetByID(ctx, params.ID)
	}

	res, err := r.q.Exec(ctx, sqlUpdateCategory, *params.Name, now(), params.ID)
	if err != nil {
		return nil, fmt.Errorf("repo/category: update: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, params.ID)
}

// Delete returns db.ErrNotFound if no row was deleted. A category still
// referenced by products is refused with db.ErrForeignKeyViolation.
func (r *categoryRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.q.Exec(ctx, sqlDeleteCategory, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// DeleteMany removes every listed category that exists. Missing ids are
// ignored; the number of removed rows is returned.
func (r *categoryRepo) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	return deleteMany(ctx, r.q, "categories", ids)
}

// Count returns the total number of categories.
func (r *categoryRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.q.QueryRow(ctx, sqlCountCategories).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanCategory(s scanner) (*models.Category, error) {
	c := &models.Category{}
	if err := s.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("repo/category: %w", err)
	}
	return c, nil
}

var _ CategoryRepository = (*categoryRepo)(nil)
