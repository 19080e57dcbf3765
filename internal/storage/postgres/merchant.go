package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/little-shop/internal/domain/merchant"
)

const (
	merchantColumns = `id, name, created_at, updated_at`

	listMerchantsSQL = `SELECT m.id, m.name, m.created_at, m.updated_at,
		(SELECT count(*) FROM items i WHERE i.merchant_id = m.id),
		(SELECT count(*) FROM coupons c WHERE c.merchant_id = m.id),
		(SELECT count(*) FROM invoices v WHERE v.merchant_id = m.id AND v.coupon_id IS NOT NULL)
		FROM merchants m
		WHERE NOT $1 OR EXISTS (
			SELECT 1 FROM invoices r WHERE r.merchant_id = m.id AND r.status = 'returned')
		ORDER BY CASE WHEN $2 THEN -m.id ELSE m.id END`

	getMerchantSQL = `SELECT ` + merchantColumns + ` FROM merchants WHERE id = $1`

	findMerchantByNameSQL = `SELECT ` + merchantColumns + ` FROM merchants
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY id LIMIT 1`

	insertMerchantSQL = `INSERT INTO merchants (name) VALUES ($1) RETURNING ` + merchantColumns

	updateMerchantSQL = `UPDATE merchants SET name = $2, updated_at = now()
		WHERE id = $1 RETURNING ` + merchantColumns

	deleteMerchantSQL = `DELETE FROM merchants WHERE id = $1`
)

var _ merchant.Repository = (*MerchantRepository)(nil)

// MerchantRepository implements merchant.Repository backed by PostgreSQL.
type MerchantRepository struct {
	pool *pgxpool.Pool
}

// NewMerchantRepository returns a MerchantRepository that uses the given pool.
func NewMerchantRepository(pool *pgxpool.Pool) *MerchantRepository {
	return &MerchantRepository{pool: pool}
}

// List returns merchants with their counters.
func (r *MerchantRepository) List(ctx context.Context, opts merchant.ListOptions) ([]merchant.Summary, error) {
	rows, err := r.pool.Query(ctx, listMerchantsSQL, opts.ReturnedOnly, opts.NewestFirst)
	if err != nil {
		return nil, fmt.Errorf("listing merchants: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (merchant.Summary, error) {
		var s merchant.Summary
		err := row.Scan(
			&s.ID, &s.Name, &s.CreatedAt, &s.UpdatedAt,
			&s.ItemCount, &s.CouponsCount, &s.InvoiceCouponCount,
		)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning merchants: %w", err)
	}
	return out, nil
}

func (r *MerchantRepository) Get(ctx context.Context, id int64) (*merchant.Merchant, error) {
	return r.one(ctx, getMerchantSQL, id)
}

// FindByName returns the lowest-id merchant whose name contains fragment,
// ignoring case.
func (r *MerchantRepository) FindByName(ctx context.Context, fragment string) (*merchant.Merchant, error) {
	return r.one(ctx, findMerchantByNameSQL, fragment)
}

func (r *MerchantRepository) Create(ctx context.Context, m *merchant.Merchant) error {
	created, err := r.one(ctx, insertMerchantSQL, m.Name)
	if err != nil {
		return err
	}
	*m = *created
	return nil
}

func (r *MerchantRepository) Update(ctx context.Context, m *merchant.Merchant) error {
	updated, err := r.one(ctx, updateMerchantSQL, m.ID, m.Name)
	if err != nil {
		return err
	}
	*m = *updated
	return nil
}

// Delete removes the merchant. Items, invoices and coupons cascade.
func (r *MerchantRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteMerchantSQL, id)
	if err != nil {
		return fmt.Errorf("deleting merchant %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return merchant.ErrNotFound
	}
	return nil
}

func (r *MerchantRepository) one(ctx context.Context, sql string, args ...any) (*merchant.Merchant, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying merchant: %w", err)
	}

	m, err := pgx.CollectExactlyOneRow(rows, scanMerchant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, merchant.ErrNotFound
		}
		return nil, fmt.Errorf("querying merchant: %w", err)
	}
	return &m, nil
}

func scanMerchant(row pgx.CollectableRow) (merchant.Merchant, error) {
	var m merchant.Merchant
	err := row.Scan(&m.ID, &m.Name, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}
