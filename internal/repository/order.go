package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/flicky/spice-storefront/internal/model"
)

const orderColumns = `order_id, cart_id, user_id, total_price, delivery_location, status, whatsapp_sent, created_at, updated_at`

type pgOrderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &pgOrderRepo{pool: pool}
}

func (r *pgOrderRepo) Exists(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_id = $1)`, orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check order id: %w", err)
	}
	return exists, nil
}

func (r *pgOrderRepo) Place(ctx context.Context, order *model.Order, next *model.Cart) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO orders (order_id, cart_id, user_id, total_price, delivery_location, status, whatsapp_sent, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE, NOW(), NOW()) RETURNING created_at, updated_at`,
		order.ID, order.CartID, order.UserID, order.TotalPrice, order.DeliveryLocation, string(order.Status),
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (order_id, position, product_id, name, quantity, price)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			order.ID, i, item.ProductID, item.Name, item.Quantity, item.Price,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}

		ct, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock - $2, updated_at = NOW() WHERE id = $1 AND stock >= $2`,
			item.ProductID, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return &StockError{ProductID: item.ProductID}
		}
	}

	ct, err := tx.Exec(ctx,
		`UPDATE carts SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active`, order.CartID,
	)
	if err != nil {
		return fmt.Errorf("deactivate cart: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrCartNotActive
	}

	if err := insertCart(ctx, tx, next); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	o := &model.Order{}
	err := row.Scan(&o.ID, &o.CartID, &o.UserID, &o.TotalPrice, &o.DeliveryLocation,
		&o.Status, &o.WhatsAppSent, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *pgOrderRepo) GetByID(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := r.loadItems(ctx, []*model.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *pgOrderRepo) loadItems(ctx context.Context, orders []*model.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*model.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		o.Items = []model.OrderItem{}
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT order_id, product_id, name, quantity, price FROM order_items
		 WHERE order_id = ANY($1) ORDER BY order_id, position`, ids,
	)
	if err != nil {
		return fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			item    model.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.Quantity, &item.Price); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}

func (r *pgOrderRepo) list(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var ptrs []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		ptrs = append(ptrs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	rows.Close()

	if err := r.loadItems(ctx, ptrs); err != nil {
		return nil, err
	}
	orders := make([]model.Order, 0, len(ptrs))
	for _, o := range ptrs {
		orders = append(orders, *o)
	}
	return orders, nil
}

func (r *pgOrderRepo) List(ctx context.Context, f model.OrderFilter) ([]model.Order, int, error) {
	userID := f.UserID

	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE ($1::uuid IS NULL OR user_id = $1)`, userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	orders, err := r.list(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE ($1::uuid IS NULL OR user_id = $1)
		 ORDER BY created_at DESC, order_id LIMIT $2 OFFSET $3`,
		userID, f.Limit, f.Offset(),
	)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *pgOrderRepo) UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE order_id = $1`, orderID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgOrderRepo) MarkWhatsAppSent(ctx context.Context, orderID string) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE orders SET whatsapp_sent = TRUE, updated_at = NOW() WHERE order_id = $1`, orderID,
	)
	if err != nil {
		return fmt.Errorf("mark whatsapp sent: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgOrderRepo) Stats(ctx context.Context, recent int) (*model.OrderStats, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(total_price), 0) FROM orders GROUP BY status ORDER BY status`,
	)
	if err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}
	defer rows.Close()

	stats := &model.OrderStats{TotalRevenue: decimal.Zero}
	for rows.Next() {
		var s model.StatusStat
		if err := rows.Scan(&s.Status, &s.Count, &s.TotalValue); err != nil {
			return nil, fmt.Errorf("scan order stats: %w", err)
		}
		stats.ByStatus = append(stats.ByStatus, s)
		stats.TotalOrders += s.Count
		stats.TotalRevenue = stats.TotalRevenue.Add(s.TotalValue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}
	rows.Close()

	stats.Recent, err = r.list(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, order_id LIMIT $1`, recent,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func collectIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	defer rows.Close()
	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *pgOrderRepo) PopularProductIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT product_id FROM order_items
		 GROUP BY product_id
		 ORDER BY SUM(quantity) DESC, product_id
		 LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("popular products: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("popular products: %w", err)
	}
	return ids, nil
}

func (r *pgOrderRepo) PurchasedProductIDs(ctx context.Context, userID uuid.UUID, recentOrders int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT i.product_id FROM order_items i
		 JOIN (SELECT order_id FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2) o
		   ON o.order_id = i.order_id`, userID, recentOrders,
	)
	if err != nil {
		return nil, fmt.Errorf("purchased products: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("purchased products: %w", err)
	}
	return ids, nil
}
