package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/little-shop/internal/domain/coupon"
)

const (
	couponColumns = `id, merchant_id, name, code, discount_type, discount_value, status, created_at, updated_at`

	lockMerchantCouponsSQL = `SELECT pg_advisory_xact_lock($1)`

	merchantExistsSQL = `SELECT EXISTS (SELECT 1 FROM merchants WHERE id = $1)`

	couponCodeExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1 AND id <> $2)`

	countActiveCouponsSQL = `SELECT count(*) FROM coupons WHERE merchant_id = $1 AND status`

	insertCouponSQL = `INSERT INTO coupons (merchant_id, name, code, discount_type, discount_value, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	findCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE merchant_id = $1 AND ($2::boolean IS NULL OR status = $2)
		ORDER BY id`

	setCouponStatusSQL = `UPDATE coupons SET status = $2, updated_at = now() WHERE id = $1`

	hasPendingInvoicesSQL = `SELECT EXISTS (
		SELECT 1 FROM invoices WHERE coupon_id = $1 AND status = 'pending')`

	countCouponInvoicesSQL = `SELECT count(*) FROM invoices WHERE coupon_id = $1`

	deleteCouponSQL = `DELETE FROM coupons WHERE id = $1`

	couponCodeConstraint = "coupons_code_key"
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	couponQueries
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{couponQueries: couponQueries{db: pool}, pool: pool}
}

// InMerchantTx runs fn in a read committed transaction holding a
// transaction-scoped advisory lock keyed by merchantID. Concurrent callers
// for the same merchant queue on the lock.
func (r *CouponRepository) InMerchantTx(ctx context.Context, merchantID int64, fn func(q coupon.Queries) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, lockMerchantCouponsSQL, merchantID); err != nil {
			return fmt.Errorf("locking coupons of merchant %d: %w", merchantID, err)
		}
		return fn(couponQueries{db: tx})
	})
}

// couponQueries runs coupon statements on a pool or inside a transaction.
type couponQueries struct {
	db querier
}

func (q couponQueries) MerchantExists(ctx context.Context, merchantID int64) (bool, error) {
	var ok bool
	if err := q.db.QueryRow(ctx, merchantExistsSQL, merchantID).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking merchant %d: %w", merchantID, err)
	}
	return ok, nil
}

func (q couponQueries) CodeExists(ctx context.Context, code string, excludeID int64) (bool, error) {
	var ok bool
	if err := q.db.QueryRow(ctx, couponCodeExistsSQL, code, excludeID).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking coupon code %q: %w", code, err)
	}
	return ok, nil
}

func (q couponQueries) CountActive(ctx context.Context, merchantID int64) (int, error) {
	var n int
	if err := q.db.QueryRow(ctx, countActiveCouponsSQL, merchantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting active coupons of merchant %d: %w", merchantID, err)
	}
	return n, nil
}

// Insert stores c. A duplicate code surfaces as coupon.ErrCodeTaken.
func (q couponQueries) Insert(ctx context.Context, c *coupon.Coupon) error {
	err := q.db.QueryRow(ctx, insertCouponSQL,
		c.MerchantID, c.Name, c.Code, string(c.DiscountType), c.DiscountValue, c.Active,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, couponCodeConstraint) {
			return errors.Wrapf(coupon.ErrCodeTaken, "code %q", c.Code)
		}
		return fmt.Errorf("inserting coupon %q: %w", c.Code, err)
	}
	return nil
}

func (q couponQueries) Find(ctx context.Context, id int64) (*coupon.Coupon, error) {
	rows, err := q.db.Query(ctx, findCouponSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %d: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon %d: %w", id, err)
	}
	return &c, nil
}

func (q couponQueries) ListByMerchant(ctx context.Context, merchantID int64, f coupon.StatusFilter) ([]coupon.Coupon, error) {
	var status *bool
	if active, ok := f.Active(); ok {
		status = &active
	}

	rows, err := q.db.Query(ctx, listCouponsSQL, merchantID, status)
	if err != nil {
		return nil, fmt.Errorf("listing coupons of merchant %d: %w", merchantID, err)
	}

	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("scanning coupons: %w", err)
	}
	return coupons, nil
}

func (q couponQueries) SetStatus(ctx context.Context, id int64, active bool) error {
	tag, err := q.db.Exec(ctx, setCouponStatusSQL, id, active)
	if err != nil {
		return fmt.Errorf("updating status of coupon %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func (q couponQueries) HasPendingInvoices(ctx context.Context, id int64) (bool, error) {
	var ok bool
	if err := q.db.QueryRow(ctx, hasPendingInvoicesSQL, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking pending invoices of coupon %d: %w", id, err)
	}
	return ok, nil
}

func (q couponQueries) CountInvoices(ctx context.Context, id int64) (int, error) {
	var n int
	if err := q.db.QueryRow(ctx, countCouponInvoicesSQL, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting invoices of coupon %d: %w", id, err)
	}
	return n, nil
}

// Delete removes the coupon. The foreign key clears invoices.coupon_id.
func (q couponQueries) Delete(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return fmt.Errorf("deleting coupon %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
	)
	err := row.Scan(
		&c.ID, &c.MerchantID, &c.Name, &c.Code, &discountType,
		&c.DiscountValue, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	return c, err
}
