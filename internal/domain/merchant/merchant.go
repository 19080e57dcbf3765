// Package merchant defines the root owner of items, invoices and coupons.
package merchant

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/little-shop/internal/domain/validation"
)

// ErrNotFound is returned when a requested merchant does not exist.
var ErrNotFound = errors.New("merchant not found")

// Merchant is a seller owning items, invoices and coupons.
type Merchant struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stats are the derived counters rendered next to a merchant in listings.
type Stats struct {
	ItemCount          int
	CouponsCount       int
	InvoiceCouponCount int
}

// Summary is a merchant with its counters.
type Summary struct {
	Merchant
	Stats
}

// ListOptions narrows and orders a merchant listing.
type ListOptions struct {
	// NewestFirst orders by id descending instead of ascending.
	NewestFirst bool
	// ReturnedOnly keeps merchants with at least one returned invoice.
	ReturnedOnly bool
}

// Repository persists merchants. Deleting a merchant cascades to its items,
// invoices and coupons.
type Repository interface {
	List(ctx context.Context, opts ListOptions) ([]Summary, error)
	Get(ctx context.Context, id int64) (*Merchant, error)
	FindByName(ctx context.Context, fragment string) (*Merchant, error)
	Create(ctx context.Context, m *Merchant) error
	Update(ctx context.Context, m *Merchant) error
	Delete(ctx context.Context, id int64) error
}

// Validate checks the merchant invariants.
func Validate(m Merchant) error {
	var s validation.Set
	if strings.TrimSpace(m.Name) == "" {
		s.Add("name", validation.MsgBlank)
	}
	return s.Err()
}
