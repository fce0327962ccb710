package repo_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/storefront/db"
	"github.com/Skryldev/storefront/models"
	"github.com/Skryldev/storefront/repo"
)

func TestProductRepo_InsertAndGet(t *testing.T) {
	d := newTestDB(t)
	r := repo.NewProductRepo(d)
	ctx := context.Background()
	c := seedCategory(t, d, "Burgers")

	p, err := r.Insert(ctx, models.CreateProductParams{
		Name:        "Cheeseburger",
		Description: strPtr("Double cheese"),
		Price:       decimal.RequireFromString("19.99"),
		CategoryID:  c.ID,
		ImageURL:    strPtr("https://cdn.example.com/cheese.png"),
	})
	require.NoError(t, err)

	got, err := r.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cheeseburger", got.Name)
	assert.True(t, decimal.RequireFromString("19.99").Equal(got.Price), "price %s", got.Price)
	assert.Equal(t, c.ID, got.CategoryID)
	require.NotNil(t, got.Description)
	assert.Equal(t, "Double cheese", *got.Description)
	require.NotNil(t, got.ImageURL)
}

func TestProductRepo_Insert_NullableColumns(t *testing.T) {
	d := newTestDB(t)
	c := seedCategory(t, d, "Drinks")
	p := seedProduct(t, d, c.ID, "3.50")

	got, err := repo.NewProductRepo(d).GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Description)
	assert.Nil(t, got.ImageURL)
}

func TestProductRepo_Insert_UnknownCategory(t *testing.T) {
	d := newTestDB(t)
	r := repo.NewProductRepo(d)
	ctx := context.Background()

	_, err := r.Insert(ctx, models.CreateProductParams{
		Name:       "Orphan",
		Price:      decimal.NewFromInt(1),
		CategoryID: 4242,
	})
	assert.True(t, db.IsForeignKeyViolation(err), "got %v", err)

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProductRepo_Update_Partial(t *testing.T) {
	d := newTestDB(t)
	r := repo.NewProductRepo(d)
	ctx := context.Background()
	c := seedCategory(t, d, "Burgers")

	p, err := r.Insert(ctx, models.CreateProductParams{
		Name:        "Burger",
		Description: strPtr("Plain"),
		Price:       decimal.RequireFromString("10"),
		CategoryID:  c.ID,
	})
	require.NoError(t, err)

	price := decimal.RequireFromString("12.5")
	updated, err := r.Update(ctx, models.UpdateProductParams{ID: p.ID, Price: &price})
	require.NoError(t, err)

	assert.True(t, price.Equal(updated.Price))
	assert.Equal(t, "Burger", updated.Name)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "Plain", *updated.Description, "omitted fields stay unchanged")
}

func TestProductRepo_Update_UnknownCategory(t *testing.T) {
	d := newTestDB(t)
	c := seedCategory(t, d, "Burgers")
	p := seedProduct(t, d, c.ID, "5")

	missing := int64(31337)
	_, err := repo.NewProductRepo(d).Update(context.Background(), models.UpdateProductParams{ID: p.ID, CategoryID: &missing})
	assert.True(t, db.IsForeignKeyViolation(err), "got %v", err)
}

func TestProductRepo_Update_NotFound(t *testing.T) {
	r := repo.NewProductRepo(newTestDB(t))
	_, err := r.Update(context.Background(), models.UpdateProductParams{ID: 1, Name: strPtr("x")})
	assert.True(t, db.IsNotFound(err), "got %v", err)
}

func TestProductRepo_DeleteAndDeleteMany(t *testing.T) {
	d := newTestDB(t)
	r := repo.NewProductRepo(d)
	ctx := context.Background()
	c := seedCategory(t, d, "Burgers")

	a := seedProduct(t, d, c.ID, "1")
	b := seedProduct(t, d, c.ID, "2")
	x := seedProduct(t, d, c.ID, "3")

	require.NoError(t, r.Delete(ctx, a.ID))
	assert.True(t, db.IsNotFound(r.Delete(ctx, a.ID)))

	n, err := r.DeleteMany(ctx, []int64{a.ID, b.ID, x.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	list, err := r.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestProductRepo_OrderItems(t *testing.T) {
	d := newTestDB(t)
	r := repo.NewProductRepo(d)
	orders := repo.NewOrderRepo(d)
	ctx := context.Background()

	u := seedUser(t, d, "alice@example.com")
	c := seedCategory(t, d, "Burgers")
	burger := seedProduct(t, d, c.ID, "19.99")
	fries := seedProduct(t, d, c.ID, "4.50")

	items, err := r.OrderItems(ctx, burger.ID)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	first, err := orders.Create(ctx, orderParams(u.ID, item(burger.ID, 2, "19.99"), item(fries.ID, 1, "4.50")))
	require.NoError(t, err)
	second, err := orders.Create(ctx, orderParams(u.ID, item(burger.ID, 1, "18.00")))
	require.NoError(t, err)

	items, err = r.OrderItems(ctx, burger.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, first.ID, items[0].OrderID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.True(t, decimal.RequireFromString("19.99").Equal(items[0].Price), "price %s", items[0].Price)
	assert.Equal(t, second.ID, items[1].OrderID)
	assert.True(t, decimal.RequireFromString("18").Equal(items[1].Price), "price %s", items[1].Price)
	for _, it := range items {
		assert.Equal(t, burger.ID, it.ProductID)
	}
}

func TestProductRepo_PriceStoredExactly(t *testing.T) {
	d := newTestDB(t)
	r := repo.NewProductRepo(d)
	ctx := context.Background()
	c := seedCategory(t, d, "Burgers")

	// 0.1 and 123456789.987654321 have no exact binary float form.
	for _, price := range []string{"19.99", "0.1", "123456789.987654321"} {
		p := seedProduct(t, d, c.ID, price)

		var kind, stored string
		err := d.QueryRow(ctx, `SELECT typeof(price), price FROM products WHERE id = $1`, p.ID).Scan(&kind, &stored)
		require.NoError(t, err)
		assert.Equal(t, "text", kind)
		assert.Equal(t, price, stored)

		got, err := r.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, price, got.Price.String())
	}

	_, err := r.Insert(ctx, models.CreateProductParams{
		Name: "Refund", Price: decimal.RequireFromString("-0.5"), CategoryID: c.ID,
	})
	assert.True(t, db.IsCheckViolation(err), "got %v", err)
}
