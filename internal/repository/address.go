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

const addressColumns = `id, user_id, label, street, city, state, pincode, country, latitude, longitude, is_default, created_at, updated_at`

type pgAddressRepo struct{ pool *pgxpool.Pool }

func NewAddressRepository(pool *pgxpool.Pool) AddressRepository {
	return &pgAddressRepo{pool: pool}
}

func scanAddress(row pgx.Row) (*model.Address, error) {
	a := &model.Address{}
	err := row.Scan(&a.ID, &a.UserID, &a.Label, &a.Street, &a.City, &a.State, &a.Pincode, &a.Country,
		&a.Latitude, &a.Longitude, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *pgAddressRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Address, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE user_id = $1 ORDER BY created_at, id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	addrs := []model.Address{}
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addrs = append(addrs, *a)
	}
	return addrs, rows.Err()
}

func (r *pgAddressRepo) GetByID(ctx context.Context, userID, id uuid.UUID) (*model.Address, error) {
	a, err := scanAddress(r.pool.QueryRow(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE id = $1 AND user_id = $2`, id, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get address: %w", err)
	}
	return a, nil
}

func clearDefault(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE addresses SET is_default = FALSE, updated_at = NOW() WHERE user_id = $1 AND is_default`, userID,
	)
	if err != nil {
		return fmt.Errorf("clear default address: %w", err)
	}
	return nil
}

func (r *pgAddressRepo) Create(ctx context.Context, addr *model.Address) error {
	if addr.ID == uuid.Nil {
		addr.ID = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if addr.IsDefault {
		if err := clearDefault(ctx, tx, addr.UserID); err != nil {
			return err
		}
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO addresses (id, user_id, label, street, city, state, pincode, country, latitude, longitude, is_default, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW()) RETURNING created_at, updated_at`,
		addr.ID, addr.UserID, addr.Label, addr.Street, addr.City, addr.State, addr.Pincode, addr.Country,
		addr.Latitude, addr.Longitude, addr.IsDefault,
	).Scan(&addr.CreatedAt, &addr.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert address: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *pgAddressRepo) Update(ctx context.Context, addr *model.Address) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if addr.IsDefault {
		if err := clearDefault(ctx, tx, addr.UserID); err != nil {
			return err
		}
	}

	err = tx.QueryRow(ctx,
		`UPDATE addresses SET label=$3, street=$4, city=$5, state=$6, pincode=$7, country=$8,
		 latitude=$9, longitude=$10, is_default=$11, updated_at=NOW()
		 WHERE id=$1 AND user_id=$2 RETURNING updated_at`,
		addr.ID, addr.UserID, addr.Label, addr.Street, addr.City, addr.State, addr.Pincode, addr.Country,
		addr.Latitude, addr.Longitude, addr.IsDefault,
	).Scan(&addr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("update address: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *pgAddressRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM addresses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgAddressRepo) DeleteAll(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM addresses WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete addresses: %w", err)
	}
	return nil
}
