package coupon

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/little-shop/internal/domain/merchant"
	"github.com/xenking/little-shop/internal/domain/validation"
)

// Validate checks every constraint on d without short-circuiting and returns
// the coupon to persist, or a *validation.Error listing each violated field.
//
// The cap check counts the merchant's active coupons regardless of the
// draft's own status, so an inactive draft is also refused once the cap is
// reached.
func Validate(ctx context.Context, q Queries, d Draft) (*Coupon, error) {
	var s validation.Set

	merchantExists := false
	if d.MerchantID != 0 {
		ok, err := q.MerchantExists(ctx, d.MerchantID)
		if err != nil {
			return nil, errors.Wrap(err, "lookup merchant")
		}
		merchantExists = ok
	}
	if !merchantExists {
		s.Add("merchant", validation.MsgMustExist)
	}

	if strings.TrimSpace(d.Name) == "" {
		s.Add("name", validation.MsgBlank)
	}

	if strings.TrimSpace(d.Code) == "" {
		s.Add("code", validation.MsgBlank)
	} else {
		taken, err := q.CodeExists(ctx, d.Code, d.ID)
		if err != nil {
			return nil, errors.Wrap(err, "lookup coupon code")
		}
		if taken {
			s.Add("code", validation.MsgTaken)
		}
	}

	var value decimal.Decimal
	if raw := strings.TrimSpace(d.DiscountValue); raw == "" {
		s.Add("discount_value", validation.MsgBlank)
	} else if v, err := decimal.NewFromString(raw); err != nil {
		s.Add("discount_value", validation.MsgNotANumber)
	} else if !v.IsPositive() {
		s.Add("discount_value", validation.MsgPositive)
	} else {
		value = v
	}

	typ := DiscountType(strings.TrimSpace(d.DiscountType))
	if typ == "" {
		s.Add("discount_type", validation.MsgBlank)
	}
	if !typ.Valid() {
		s.Add("discount_type", validation.MsgNotInList)
	}

	if merchantExists {
		n, err := q.CountActive(ctx, d.MerchantID)
		if err != nil {
			return nil, errors.Wrap(err, "count active coupons")
		}
		if n >= MaxActive {
			s.Add(validation.Base, CapMessage)
		}
	}

	if err := s.Err(); err != nil {
		return nil, err
	}

	return &Coupon{
		ID:            d.ID,
		MerchantID:    d.MerchantID,
		Name:          d.Name,
		Code:          d.Code,
		DiscountType:  typ,
		DiscountValue: value,
		Active:        d.Active,
	}, nil
}

// PolicyConfig toggles the rules that differ between lifecycle paths.
type PolicyConfig struct {
	// EnforceCapOnActivate re-checks the active coupon cap when an inactive
	// coupon is activated. Creation always checks it.
	EnforceCapOnActivate bool
	// GuardDeleteWithPending refuses to delete a coupon referenced by a
	// pending invoice, mirroring deactivation.
	GuardDeleteWithPending bool
}

// Policy enforces coupon validity rules and lifecycle transitions.
type Policy struct {
	repo        Repository
	cfg         PolicyConfig
	transitions metric.Int64Counter
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithMeterProvider records lifecycle transitions on mp.
func WithMeterProvider(mp metric.MeterProvider) PolicyOption {
	return func(p *Policy) {
		c, err := mp.Meter("github.com/xenking/little-shop/internal/domain/coupon").
			Int64Counter("coupon.transitions",
				metric.WithDescription("Coupon lifecycle transitions"),
			)
		if err == nil {
			p.transitions = c
		}
	}
}

// NewPolicy creates a Policy over repo.
func NewPolicy(repo Repository, cfg PolicyConfig, opts ...PolicyOption) *Policy {
	counter, _ := noop.NewMeterProvider().Meter("").Int64Counter("")
	p := &Policy{repo: repo, cfg: cfg, transitions: counter}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Create validates d and inserts it. The cap check and the insert share one
// transaction holding the merchant lock, so concurrent creations cannot
// together exceed the cap.
func (p *Policy) Create(ctx context.Context, d Draft) (*Coupon, error) {
	d.ID = 0

	var created *Coupon
	err := p.repo.InMerchantTx(ctx, d.MerchantID, func(q Queries) error {
		c, err := Validate(ctx, q, d)
		if err != nil {
			return err
		}
		if err := q.Insert(ctx, c); err != nil {
			if errors.Is(err, ErrCodeTaken) {
				return validation.Single("code", validation.MsgTaken)
			}
			return errors.Wrap(err, "insert coupon")
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.record(ctx, "create")
	return created, nil
}

// Get returns the merchant's coupon. merchant.ErrNotFound and ErrNotFound
// tell the two failed lookups apart.
func (p *Policy) Get(ctx context.Context, merchantID, id int64) (*Coupon, error) {
	return lookup(ctx, p.repo, merchantID, id)
}

// List returns the merchant's coupons passing f.
func (p *Policy) List(ctx context.Context, merchantID int64, f StatusFilter) ([]Coupon, error) {
	if err := requireMerchant(ctx, p.repo, merchantID); err != nil {
		return nil, err
	}
	coupons, err := p.repo.ListByMerchant(ctx, merchantID, f)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

// FilterByBooleanString lists coupons using the "true"/"false" contract.
func (p *Policy) FilterByBooleanString(ctx context.Context, merchantID int64, status string) ([]Coupon, error) {
	f, err := ParseBooleanFilter(status)
	if err != nil {
		return nil, err
	}
	return p.List(ctx, merchantID, f)
}

// FilterByActiveLabel lists coupons using the "active"/"inactive" contract.
func (p *Policy) FilterByActiveLabel(ctx context.Context, merchantID int64, label string) ([]Coupon, error) {
	return p.List(ctx, merchantID, ParseActiveLabel(label))
}

// Activate sets the coupon active. It is idempotent for active coupons.
func (p *Policy) Activate(ctx context.Context, merchantID, id int64) (*Coupon, error) {
	var out *Coupon
	err := p.repo.InMerchantTx(ctx, merchantID, func(q Queries) error {
		c, err := lookup(ctx, q, merchantID, id)
		if err != nil {
			return err
		}
		if c.Active {
			out = c
			return nil
		}
		if p.cfg.EnforceCapOnActivate {
			n, err := q.CountActive(ctx, merchantID)
			if err != nil {
				return &PersistenceError{Message: MsgActivateFailed, Err: err}
			}
			if n >= MaxActive {
				return &ConflictError{Message: CapMessage}
			}
		}
		if err := q.SetStatus(ctx, c.ID, true); err != nil {
			return &PersistenceError{Message: MsgActivateFailed, Err: err}
		}
		c.Active = true
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.record(ctx, "activate")
	return out, nil
}

// Deactivate sets the coupon inactive unless a pending invoice references it.
func (p *Policy) Deactivate(ctx context.Context, merchantID, id int64) (*Coupon, error) {
	var out *Coupon
	err := p.repo.InMerchantTx(ctx, merchantID, func(q Queries) error {
		c, err := lookup(ctx, q, merchantID, id)
		if err != nil {
			return err
		}
		pending, err := q.HasPendingInvoices(ctx, c.ID)
		if err != nil {
			return &ConflictError{Message: MsgDeactivateFailed, Err: err}
		}
		if pending {
			return &ConflictError{Message: MsgDeactivateBlocked}
		}
		if err := q.SetStatus(ctx, c.ID, false); err != nil {
			return &ConflictError{Message: MsgDeactivateFailed, Err: err}
		}
		c.Active = false
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.record(ctx, "deactivate")
	return out, nil
}

// Delete removes the coupon. Invoices that referenced it keep their rows
// with the reference cleared.
func (p *Policy) Delete(ctx context.Context, merchantID, id int64) error {
	err := p.repo.InMerchantTx(ctx, merchantID, func(q Queries) error {
		c, err := lookup(ctx, q, merchantID, id)
		if err != nil {
			return err
		}
		if p.cfg.GuardDeleteWithPending {
			pending, err := q.HasPendingInvoices(ctx, c.ID)
			if err != nil {
				return errors.Wrap(err, "check pending invoices")
			}
			if pending {
				return &ConflictError{Message: MsgDeleteBlocked}
			}
		}
		if err := q.Delete(ctx, c.ID); err != nil {
			return errors.Wrap(err, "delete coupon")
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.record(ctx, "delete")
	return nil
}

func (p *Policy) record(ctx context.Context, transition string) {
	p.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("transition", transition)))
}

func requireMerchant(ctx context.Context, q Queries, merchantID int64) error {
	ok, err := q.MerchantExists(ctx, merchantID)
	if err != nil {
		return errors.Wrap(err, "lookup merchant")
	}
	if !ok {
		return merchant.ErrNotFound
	}
	return nil
}

func lookup(ctx context.Context, q Queries, merchantID, id int64) (*Coupon, error) {
	if err := requireMerchant(ctx, q, merchantID); err != nil {
		return nil, err
	}
	c, err := q.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "find coupon")
	}
	if c.MerchantID != merchantID {
		return nil, ErrNotFound
	}
	return c, nil
}
