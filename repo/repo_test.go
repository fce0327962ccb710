package repo_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Skryldev/storefront/db"
	"github.com/Skryldev/storefront/migrations"
	"github.com/Skryldev/storefront/models"
	"github.com/Skryldev/storefront/repo"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test fixture
// ─────────────────────────────────────────────────────────────────────────────

// newTestDB opens an in-memory SQLite database with foreign keys on and the
// real schema applied. One connection keeps every statement on the same
// in-memory database.
func newTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.OpenWithDriver("sqlite3",
		db.DriverOptions{Database: ":memory:"},
		db.Config{MaxOpenConns: 1},
	)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := migrations.Up(database.Raw(), "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func seedCategory(t *testing.T, d *db.DB, name string) *models.Category {
	t.Helper()
	c, err := repo.NewCategoryRepo(d).Insert(context.Background(), models.CreateCategoryParams{Name: name})
	if err != nil {
		t.Fatalf("seed category: %v", err)
	}
	return c
}

func seedProduct(t *testing.T, d *db.DB, categoryID int64, price string) *models.Product {
	t.Helper()
	p, err := repo.NewProductRepo(d).Insert(context.Background(), models.CreateProductParams{
		Name:       "Cheeseburger",
		Price:      decimal.RequireFromString(price),
		CategoryID: categoryID,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p
}

func seedUser(t *testing.T, d *db.DB, email string) *models.User {
	t.Helper()
	u, err := repo.NewUserRepo(d).Insert(context.Background(), models.CreateUserParams{
		Email:        email,
		PasswordHash: "$2a$04$not-a-real-hash",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func countRows(t *testing.T, d *db.DB, table string) int64 {
	t.Helper()
	var n int64
	if err := d.QueryRow(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func strPtr(s string) *string { return &s }

func emailN(i int) string { return fmt.Sprintf("user%02d@repo.com", i) }
