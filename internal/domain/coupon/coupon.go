package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercent reduces the merchant subtotal proportionally.
	DiscountPercent DiscountType = "percent"
	// DiscountDollar subtracts a flat amount from the merchant subtotal.
	DiscountDollar DiscountType = "dollar"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercent || t == DiscountDollar
}

// MaxActive is the number of active coupons a merchant may hold.
const MaxActive = 5

// Messages surfaced to API clients.
const (
	CapMessage             = "Merchant cannot have more than 5 active coupons."
	MsgActivateFailed      = "Coupon could not be activated"
	MsgDeactivateFailed    = "Coupon could not be deactivated"
	MsgDeactivateBlocked   = "Cannot deactivate coupon with pending invoices"
	MsgDeleteBlocked       = "Cannot delete coupon with pending invoices"
	MsgInvalidStatusFilter = "Invalid status filter"
)

var (
	// ErrNotFound is returned when a coupon does not exist or belongs to a
	// different merchant.
	ErrNotFound = errors.New("coupon not found")
	// ErrCodeTaken is returned by stores when an insert hits the unique
	// constraint on the coupon code.
	ErrCodeTaken = errors.New("coupon code already taken")
)

// ConflictError is a business-rule violation that blocked a state transition.
// Prior state is left untouched.
type ConflictError struct {
	Message string
	Err     error
}

func (e *ConflictError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ConflictError) Unwrap() error { return e.Err }

// PersistenceError is a store failure surfaced with a per-operation message.
type PersistenceError struct {
	Message string
	Err     error
}

func (e *PersistenceError) Error() string {
	return e.Message + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Coupon is a discount owned by one merchant and optionally referenced by
// invoices.
type Coupon struct {
	ID            int64
	MerchantID    int64
	Name          string
	Code          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Draft carries candidate coupon fields as received from a caller.
// DiscountValue is kept textual so that blank and non-numeric input can be
// reported separately.
type Draft struct {
	ID            int64
	MerchantID    int64
	Name          string
	Code          string
	DiscountType  string
	DiscountValue string
	Active        bool
}

// Queries is the data access the policy needs. Implementations are either a
// plain store or a transaction scoped to one merchant.
type Queries interface {
	MerchantExists(ctx context.Context, merchantID int64) (bool, error)
	// CodeExists reports whether any coupon other than excludeID uses code.
	CodeExists(ctx context.Context, code string, excludeID int64) (bool, error)
	CountActive(ctx context.Context, merchantID int64) (int, error)
	// Insert stores c and fills its ID and timestamps. Returns ErrCodeTaken
	// on a duplicate code.
	Insert(ctx context.Context, c *Coupon) error
	Find(ctx context.Context, id int64) (*Coupon, error)
	ListByMerchant(ctx context.Context, merchantID int64, f StatusFilter) ([]Coupon, error)
	SetStatus(ctx context.Context, id int64, active bool) error
	HasPendingInvoices(ctx context.Context, id int64) (bool, error)
	CountInvoices(ctx context.Context, id int64) (int, error)
	Delete(ctx context.Context, id int64) error
}

// Repository is the coupon store.
type Repository interface {
	Queries
	// InMerchantTx runs fn in a single transaction holding an exclusive lock
	// on merchantID's coupon set. A non-nil error from fn rolls back.
	InMerchantTx(ctx context.Context, merchantID int64, fn func(q Queries) error) error
}
