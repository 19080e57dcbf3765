package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/little-shop/internal/domain/invoice"
)

const (
	invoiceColumns = `id, merchant_id, customer_id, coupon_id, status, total, created_at, updated_at`

	getInvoiceSQL = `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`

	listMerchantInvoicesSQL = `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE merchant_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY id`

	insertInvoiceSQL = `INSERT INTO invoices (merchant_id, customer_id, coupon_id, status)
		VALUES ($1, $2, $3, COALESCE(NULLIF($4, ''), 'pending'))
		RETURNING id, status, created_at, updated_at`

	insertInvoiceItemSQL = `INSERT INTO invoice_items
		(invoice_id, item_id, merchant_id, name, description, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	lineItemsSQL = `SELECT ii.id, ii.invoice_id, ii.item_id, i.merchant_id,
		ii.merchant_id, ii.name, ii.description, ii.unit_price, ii.quantity
		FROM invoice_items ii
		JOIN items i ON i.id = ii.item_id
		WHERE ii.invoice_id = $1
		ORDER BY ii.id`

	setInvoiceTotalSQL = `UPDATE invoices SET total = $2, updated_at = now() WHERE id = $1`

	// Same key as lockMerchantCouponsSQL.
	lockCouponMerchantSQL = `SELECT pg_advisory_xact_lock(merchant_id) FROM coupons WHERE id = $1`

	couponStatusSQL = `SELECT status FROM coupons WHERE id = $1`
)

var _ invoice.Repository = (*InvoiceRepository)(nil)

// InvoiceRepository implements invoice.Repository backed by PostgreSQL.
type InvoiceRepository struct {
	pool *pgxpool.Pool
}

// NewInvoiceRepository returns an InvoiceRepository that uses the given pool.
func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{pool: pool}
}

func (r *InvoiceRepository) Get(ctx context.Context, id int64) (*invoice.Invoice, error) {
	rows, err := r.pool.Query(ctx, getInvoiceSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice %d: %w", id, err)
	}

	inv, err := pgx.CollectExactlyOneRow(rows, scanInvoice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, invoice.ErrNotFound
		}
		return nil, fmt.Errorf("getting invoice %d: %w", id, err)
	}
	return &inv, nil
}

// LineItems returns the invoice lines joined with the current owner of each
// item.
func (r *InvoiceRepository) LineItems(ctx context.Context, invoiceID int64) ([]invoice.LineItem, error) {
	rows, err := r.pool.Query(ctx, lineItemsSQL, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("listing items of invoice %d: %w", invoiceID, err)
	}

	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (invoice.LineItem, error) {
		var l invoice.LineItem
		err := row.Scan(
			&l.ID, &l.InvoiceID, &l.ItemID, &l.ItemMerchantID,
			&l.MerchantID, &l.Name, &l.Description, &l.UnitPrice, &l.Quantity,
		)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning invoice items: %w", err)
	}
	return lines, nil
}

func (r *InvoiceRepository) ListByMerchant(ctx context.Context, merchantID int64, status string) ([]invoice.Invoice, error) {
	rows, err := r.pool.Query(ctx, listMerchantInvoicesSQL, merchantID, status)
	if err != nil {
		return nil, fmt.Errorf("listing invoices of merchant %d: %w", merchantID, err)
	}

	out, err := pgx.CollectRows(rows, scanInvoice)
	if err != nil {
		return nil, fmt.Errorf("scanning invoices: %w", err)
	}
	return out, nil
}

// Create inserts the invoice and its lines in one transaction. With a coupon
// attached it first takes the coupon merchant's advisory lock, so it
// serializes with deactivation and deletion of that coupon.
func (r *InvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice, lines []invoice.LineItem) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if inv.CouponID != nil {
			if err := lockAttachedCoupon(ctx, tx, *inv.CouponID); err != nil {
				return err
			}
		}

		err := tx.QueryRow(ctx, insertInvoiceSQL,
			inv.MerchantID, inv.CustomerID, inv.CouponID, inv.Status,
		).Scan(&inv.ID, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
		if err != nil {
			return fmt.Errorf("inserting invoice: %w", err)
		}

		for i := range lines {
			l := &lines[i]
			l.InvoiceID = inv.ID
			err := tx.QueryRow(ctx, insertInvoiceItemSQL,
				l.InvoiceID, l.ItemID, l.MerchantID, l.Name, l.Description, l.UnitPrice, l.Quantity,
			).Scan(&l.ID)
			if err != nil {
				return fmt.Errorf("inserting invoice item for item %d: %w", l.ItemID, err)
			}
		}
		return nil
	})
}

// lockAttachedCoupon waits for any coupon transaction of the coupon's
// merchant, then re-reads the coupon. It must be active to be attached.
func lockAttachedCoupon(ctx context.Context, tx pgx.Tx, couponID int64) error {
	if _, err := tx.Exec(ctx, lockCouponMerchantSQL, couponID); err != nil {
		return fmt.Errorf("locking coupon %d: %w", couponID, err)
	}

	var active bool
	err := tx.QueryRow(ctx, couponStatusSQL, couponID).Scan(&active)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return errors.Wrapf(invoice.ErrCouponMissing, "coupon %d", couponID)
	case err != nil:
		return fmt.Errorf("reading coupon %d: %w", couponID, err)
	case !active:
		return errors.Wrapf(invoice.ErrCouponInactive, "coupon %d", couponID)
	}
	return nil
}

func (r *InvoiceRepository) SetTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, setInvoiceTotalSQL, id, total)
	if err != nil {
		return fmt.Errorf("setting total of invoice %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return invoice.ErrNotFound
	}
	return nil
}

func scanInvoice(row pgx.CollectableRow) (invoice.Invoice, error) {
	var inv invoice.Invoice
	err := row.Scan(
		&inv.ID, &inv.MerchantID, &inv.CustomerID, &inv.CouponID,
		&inv.Status, &inv.Total, &inv.CreatedAt, &inv.UpdatedAt,
	)
	return inv, err
}
