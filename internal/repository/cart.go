package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/spice-storefront/internal/model"
)

type pgCartRepo struct{ pool *pgxpool.Pool }

func NewCartRepository(pool *pgxpool.Pool) CartRepository {
	return &pgCartRepo{pool: pool}
}

func (r *pgCartRepo) GetActive(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart := &model.Cart{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, is_active, created_at, updated_at FROM carts WHERE user_id = $1 AND is_active`, userID,
	).Scan(&cart.ID, &cart.UserID, &cart.IsActive, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active cart: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT product_id, quantity FROM cart_items WHERE cart_id = $1 ORDER BY position`, cart.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	cart.Items = []model.CartItem{}
	for rows.Next() {
		var item model.CartItem
		if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}
	return cart, rows.Err()
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertCart(ctx context.Context, q querier, cart *model.Cart) error {
	err := q.QueryRow(ctx,
		`INSERT INTO carts (id, user_id, is_active, created_at, updated_at)
		 VALUES ($1, $2, TRUE, NOW(), NOW()) RETURNING created_at, updated_at`,
		cart.ID, cart.UserID,
	).Scan(&cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert cart: %w", err)
	}
	cart.IsActive = true
	return nil
}

func (r *pgCartRepo) Create(ctx context.Context, cart *model.Cart) error {
	return insertCart(ctx, r.pool, cart)
}

func (r *pgCartRepo) SaveItems(ctx context.Context, cart *model.Cart) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`UPDATE carts SET updated_at = NOW() WHERE id = $1 AND is_active RETURNING updated_at`, cart.ID,
	).Scan(&cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCartNotActive
		}
		return fmt.Errorf("touch cart: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cart.ID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}

	if len(cart.Items) > 0 {
		rows := make([][]any, 0, len(cart.Items))
		for i, it := range cart.Items {
			rows = append(rows, []any{cart.ID, it.ProductID, it.Quantity, i})
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"cart_items"},
			[]string{"cart_id", "product_id", "quantity", "position"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("insert cart items: %w", err)
		}
	}

	return tx.Commit(ctx)
}
