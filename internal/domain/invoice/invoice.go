// Package invoice models customer invoices and computes their totals.
package invoice

import (
	"context"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Invoice statuses used by the application. The store accepts any non-empty
// status string.
const (
	StatusPending  = "pending"
	StatusShipped  = "shipped"
	StatusReturned = "returned"
)

// MaxQuantity is the largest quantity a line item can hold.
const MaxQuantity = math.MaxInt32

var (
	// ErrNotFound is returned when a requested invoice does not exist.
	ErrNotFound = errors.New("invoice not found")

	// ErrCouponMissing and ErrCouponInactive are returned by Repository.Create
	// when the attached coupon was deleted or deactivated concurrently.
	ErrCouponMissing  = errors.New("coupon does not exist")
	ErrCouponInactive = errors.New("coupon is not active")
)

// Invoice is a purchase by one customer from one merchant.
type Invoice struct {
	ID         int64
	MerchantID int64
	CustomerID int64
	// CouponID is nil when no coupon is attached or the coupon was deleted.
	// Only active coupons can be attached.
	CouponID *int64
	Status   string
	// Total holds the last explicitly recorded total. It is not kept in sync
	// with line items.
	Total     decimal.NullDecimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCoupon reports whether a coupon is attached.
func (i Invoice) HasCoupon() bool {
	return i.CouponID != nil
}

// LineItem is a priced, quantified snapshot of an item within one invoice.
type LineItem struct {
	ID        int64
	InvoiceID int64
	ItemID    int64
	// ItemMerchantID is the current owner of the underlying item. Totals are
	// grouped by it rather than by the snapshot MerchantID.
	ItemMerchantID int64

	// Snapshot taken when the line was created.
	MerchantID  int64
	Name        string
	Description string
	UnitPrice   decimal.NullDecimal
	Quantity    *int
}

// Repository persists invoices and their line items.
type Repository interface {
	Get(ctx context.Context, id int64) (*Invoice, error)
	LineItems(ctx context.Context, invoiceID int64) ([]LineItem, error)
	// ListByMerchant returns the merchant's invoices ordered by id. An empty
	// status returns all of them.
	ListByMerchant(ctx context.Context, merchantID int64, status string) ([]Invoice, error)
	// Create stores inv with its lines in one transaction and fills the IDs.
	// An attached coupon is re-checked under the same lock coupon
	// transitions take for its merchant, so a coupon that is gone or
	// inactive yields ErrCouponMissing or ErrCouponInactive.
	Create(ctx context.Context, inv *Invoice, lines []LineItem) error
	SetTotal(ctx context.Context, id int64, total decimal.Decimal) error
}
