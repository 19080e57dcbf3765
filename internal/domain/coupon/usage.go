package coupon

import (
	"context"

	"github.com/go-faster/errors"
)

// Usage is a coupon paired with the number of invoices referencing it.
type Usage struct {
	Coupon
	Count int
}

// UsageCounter counts invoices referencing a coupon.
type UsageCounter interface {
	CountInvoices(ctx context.Context, id int64) (int, error)
}

// UsageReporter attaches usage counts to coupons for presentation. It holds
// no state of its own.
type UsageReporter struct {
	counter UsageCounter
}

// NewUsageReporter creates a UsageReporter backed by counter.
func NewUsageReporter(counter UsageCounter) *UsageReporter {
	return &UsageReporter{counter: counter}
}

// Report returns c with its usage count.
func (r *UsageReporter) Report(ctx context.Context, c Coupon) (Usage, error) {
	n, err := r.counter.CountInvoices(ctx, c.ID)
	if err != nil {
		return Usage{}, errors.Wrapf(err, "count invoices for coupon %d", c.ID)
	}
	return Usage{Coupon: c, Count: n}, nil
}
