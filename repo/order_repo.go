package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Skryldev/storefront/db"
	"github.com/Skryldev/storefront/models"
)

// ErrEmptyOrder is returned by Create when no items are given.
var ErrEmptyOrder = errors.New("repo/order: order has no items")

// OrderRepository persists orders together with their items. An order and
// its items are written in one transaction and are never partially visible.
type OrderRepository interface {
	Create(ctx context.Context, params models.CreateOrderParams) (*models.Order, error)
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	List(ctx context.Context, limit, offset int) ([]*models.Order, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
	CountByUser(ctx context.Context, userID int64) (int64, error)
}

type orderRepo struct {
	db db.TxQuerier
}

// NewOrderRepo returns an OrderRepository. It needs a db.TxQuerier because
// creation and deletion open their own transactions.
func NewOrderRepo(d db.TxQuerier) OrderRepository {
	return &orderRepo{db: d}
}

const orderColumns = `id, status, is_cancelled, total_price, observations, user_id, created_at, updated_at`

const (
	sqlInsertOrder = `
		INSERT INTO orders (status, is_cancelled, total_price, observations, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id`

	sqlInsertOrderItem = `
		INSERT INTO order_items (order_id, product_id, quantity, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id`

	sqlGetOrderByID = `
		SELECT ` + orderColumns + `
		FROM   orders
		WHERE  id = $1`

	sqlListOrders = `
		SELECT ` + orderColumns + `
		FROM   orders
		ORDER  BY id
		LIMIT  $1 OFFSET $2`

	sqlListOrdersByUser = `
		SELECT ` + orderColumns + `
		FROM   orders
		WHERE  user_id = $1
		ORDER  BY id
		LIMIT  $2 OFFSET $3`

	sqlListOrderItems = `
		SELECT id, order_id, product_id, quantity, price, created_at, updated_at
		FROM   order_items
		WHERE  order_id = $1
		ORDER  BY id`

	sqlDeleteOrderItems = `
		DELETE FROM order_items WHERE order_id = $1`

	sqlDeleteOrder = `
		DELETE FROM orders WHERE id = $1`

	sqlCountOrders = `
		SELECT COUNT(*) FROM orders`

	sqlCountOrdersByUser = `
		SELECT COUNT(*) FROM orders WHERE user_id = $1`
)

// Create inserts the order row and every item row in one transaction. Any
// failure, including a product id that does not exist, rolls back all of
// them. Item prices and the total are stored exactly as given.
func (r *orderRepo) Create(ctx context.Context, params models.CreateOrderParams) (*models.Order, error) {
	if len(params.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	ts := now()
	o := &models.Order{
		Status:       params.Status,
		IsCancelled:  params.IsCancelled,
		TotalPrice:   params.TotalPrice,
		Observations: params.Observations,
		UserID:       params.UserID,
		CreatedAt:    ts,
		UpdatedAt:    ts,
		Items:        make([]*models.OrderItem, 0, len(params.Items)),
	}

	err := r.db.ExecTx(ctx, func(tx *db.Tx) error {
		err := tx.QueryRow(ctx, sqlInsertOrder,
			params.Status, params.IsCancelled, params.TotalPrice,
			NullString(params.Observations), params.UserID, ts,
		).Scan(&o.ID)
		if err != nil {
			return fmt.Errorf("repo/order: insert order: %w", err)
		}

		stmt, err := tx.Prepare(ctx, sqlInsertOrderItem)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range params.Items {
			item := &models.OrderItem{
				OrderID:   o.ID,
				ProductID: p.ProductID,
				Quantity:  p.Quantity,
				Price:     p.Price,
				CreatedAt: ts,
				UpdatedAt: ts,
			}
			if err := stmt.QueryRow(ctx, o.ID, p.ProductID, p.Quantity, p.Price, ts).Scan(&item.ID); err != nil {
				return fmt.Errorf("repo/order: insert item (product %d): %w", p.ProductID, err)
			}
			o.Items = append(o.Items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// GetByID returns the order with all of its items, or db.ErrNotFound.
func (r *orderRepo) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, sqlGetOrderByID, id))
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sqlListOrderItems, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	o.Items = make([]*models.OrderItem, 0)
	for rows.Next() {
		item, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

// List returns one page of orders ordered by id, each with its items.
func (r *orderRepo) List(ctx context.Context, limit, offset int) ([]*models.Order, error) {
	return r.list(ctx, sqlListOrders, limit, limit, offset)
}

// ListByUser is List restricted to the orders of one user.
func (r *orderRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, error) {
	return r.list(ctx, sqlListOrdersByUser, limit, userID, limit, offset)
}

func (r *orderRepo) list(ctx context.Context, query string, limit int, args ...any) ([]*models.Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]*models.Order, 0, limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		o.Items = make([]*models.OrderItem, 0)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads the items of every order in one query.
func (r *orderRepo) attachItems(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[int64]*models.Order, len(orders))
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	query := fmt.Sprintf(`
		SELECT id, order_id, product_id, quantity, price, created_at, updated_at
		FROM   order_items
		WHERE  order_id IN (%s)
		ORDER  BY order_id, id`, placeholders(1, len(ids)))

	rows, err := r.db.Query(ctx, query, int64Args(ids)...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanOrderItem(rows)
		if err != nil {
			return err
		}
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}

// Delete removes an order and its items in one transaction. Returns
// db.ErrNotFound if the order does not exist.
func (r *orderRepo) Delete(ctx context.Context, id int64) error {
	return r.db.ExecTx(ctx, func(tx *db.Tx) error {
		if _, err := tx.Exec(ctx, sqlDeleteOrderItems, id); err != nil {
			return err
		}
		res, err := tx.Exec(ctx, sqlDeleteOrder, id)
		if err != nil {
			return err
		}
		return expectAffected(res)
	})
}

// Count returns the total number of orders.
func (r *orderRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, sqlCountOrders).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountByUser returns the number of orders placed by one user.
func (r *orderRepo) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, sqlCountOrdersByUser, userID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanOrder(s scanner) (*models.Order, error) {
	o := &models.Order{}
	err := s.Scan(&o.ID, &o.Status, &o.IsCancelled, &o.TotalPrice, &o.Observations,
		&o.UserID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("repo/order: %w", err)
	}
	return o, nil
}

func scanOrderItem(s scanner) (*models.OrderItem, error) {
	it := &models.OrderItem{}
	err := s.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Price,
		&it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("repo/order: item: %w", err)
	}
	return it, nil
}

var _ OrderRepository = (*orderRepo)(nil)
