package invoice

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/little-shop/internal/domain/coupon"
	"github.com/xenking/little-shop/internal/domain/customer"
	"github.com/xenking/little-shop/internal/domain/item"
	"github.com/xenking/little-shop/internal/domain/merchant"
	"github.com/xenking/little-shop/internal/domain/validation"
)

// MerchantFinder looks up merchants.
type MerchantFinder interface {
	Get(ctx context.Context, id int64) (*merchant.Merchant, error)
}

// CustomerFinder looks up customers.
type CustomerFinder interface {
	Get(ctx context.Context, id int64) (*customer.Customer, error)
}

// ItemFinder batch-loads items.
type ItemFinder interface {
	GetByIDs(ctx context.Context, ids []int64) ([]item.Item, error)
}

// CouponFinder looks up coupons by id regardless of merchant.
type CouponFinder interface {
	Find(ctx context.Context, id int64) (*coupon.Coupon, error)
}

// LineRequest is one requested line of a new invoice.
type LineRequest struct {
	ItemID   int64
	Quantity int64
}

// CreateRequest holds the input for creating an invoice.
type CreateRequest struct {
	MerchantID int64
	CustomerID int64
	// CouponID must name an active coupon.
	CouponID *int64
	Status   string
	Items    []LineRequest
}

// Detail is an invoice with its lines, attached coupon and computed total.
type Detail struct {
	Invoice
	Lines  []LineItem
	Coupon *coupon.Coupon
	// Computed is the current total from CalculateTotal.
	Computed decimal.Decimal
}

// Service encapsulates invoice creation and total queries.
type Service struct {
	invoices  Repository
	merchants MerchantFinder
	customers CustomerFinder
	items     ItemFinder
	coupons   CouponFinder
}

// NewService creates an invoice Service with the required domain dependencies.
func NewService(
	invoices Repository,
	merchants MerchantFinder,
	customers CustomerFinder,
	items ItemFinder,
	coupons CouponFinder,
) *Service {
	return &Service{
		invoices:  invoices,
		merchants: merchants,
		customers: customers,
		items:     items,
		coupons:   coupons,
	}
}

// Create validates req, snapshots each referenced item into a line and
// persists the invoice. Validation failures are reported together.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Detail, error) {
	if _, err := s.merchants.Get(ctx, req.MerchantID); err != nil {
		return nil, err
	}

	var vs validation.Set

	if _, err := s.customers.Get(ctx, req.CustomerID); err != nil {
		if !errors.Is(err, customer.ErrNotFound) {
			return nil, errors.Wrap(err, "get customer")
		}
		vs.Add("customer", validation.MsgMustExist)
	}

	var c *coupon.Coupon
	if req.CouponID != nil {
		found, err := s.coupons.Find(ctx, *req.CouponID)
		switch {
		case errors.Is(err, coupon.ErrNotFound):
			vs.Add("coupon", validation.MsgMustExist)
		case err != nil:
			return nil, errors.Wrap(err, "find coupon")
		case !found.Active:
			vs.Add("coupon", validation.MsgInactive)
		default:
			c = found
		}
	}

	ids := make([]int64, 0, len(req.Items))
	for _, l := range req.Items {
		switch {
		case l.Quantity <= 0:
			vs.Add("quantity", validation.MsgPositive)
		case l.Quantity > MaxQuantity:
			vs.Add("quantity", validation.MsgTooLarge(MaxQuantity))
		}
		ids = append(ids, l.ItemID)
	}

	fetched, err := s.items.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get items")
	}
	byID := make(map[int64]item.Item, len(fetched))
	for _, it := range fetched {
		byID[it.ID] = it
	}

	lines := make([]LineItem, 0, len(req.Items))
	for _, l := range req.Items {
		it, ok := byID[l.ItemID]
		if !ok {
			vs.Add("item", validation.MsgMustExist)
			continue
		}
		qty := int(l.Quantity)
		lines = append(lines, LineItem{
			ItemID:         it.ID,
			ItemMerchantID: it.MerchantID,
			MerchantID:     it.MerchantID,
			Name:           it.Name,
			Description:    it.Description,
			UnitPrice:      decimal.NullDecimal{Decimal: it.UnitPrice, Valid: true},
			Quantity:       &qty,
		})
	}

	if err := vs.Err(); err != nil {
		return nil, err
	}

	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = StatusPending
	}

	inv := &Invoice{
		MerchantID: req.MerchantID,
		CustomerID: req.CustomerID,
		CouponID:   req.CouponID,
		Status:     status,
	}
	switch err := s.invoices.Create(ctx, inv, lines); {
	case errors.Is(err, ErrCouponMissing):
		return nil, validation.Single("coupon", validation.MsgMustExist)
	case errors.Is(err, ErrCouponInactive):
		return nil, validation.Single("coupon", validation.MsgInactive)
	case err != nil:
		return nil, errors.Wrap(err, "create invoice")
	}

	return &Detail{
		Invoice:  *inv,
		Lines:    lines,
		Coupon:   c,
		Computed: CalculateTotal(lines, c),
	}, nil
}

// Get loads the invoice with its current lines and coupon and computes the
// total. Nothing is written.
func (s *Service) Get(ctx context.Context, id int64) (*Detail, error) {
	inv, err := s.invoices.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	lines, err := s.invoices.LineItems(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "line items of invoice %d", id)
	}

	var c *coupon.Coupon
	if inv.HasCoupon() {
		c, err = s.coupons.Find(ctx, *inv.CouponID)
		if err != nil {
			if !errors.Is(err, coupon.ErrNotFound) {
				return nil, errors.Wrap(err, "find coupon")
			}
			c = nil
		}
	}

	return &Detail{
		Invoice:  *inv,
		Lines:    lines,
		Coupon:   c,
		Computed: CalculateTotal(lines, c),
	}, nil
}

// Total computes the invoice total from current data.
func (s *Service) Total(ctx context.Context, id int64) (decimal.Decimal, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Computed, nil
}

// RecordTotal computes the total and stores it on the invoice.
func (s *Service) RecordTotal(ctx context.Context, id int64) (*Detail, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.invoices.SetTotal(ctx, id, d.Computed); err != nil {
		return nil, errors.Wrapf(err, "record total of invoice %d", id)
	}
	d.Total = decimal.NullDecimal{Decimal: d.Computed, Valid: true}
	return d, nil
}

// ListByMerchant returns the merchant's invoices, optionally narrowed by
// status.
func (s *Service) ListByMerchant(ctx context.Context, merchantID int64, status string) ([]Invoice, error) {
	if _, err := s.merchants.Get(ctx, merchantID); err != nil {
		return nil, err
	}
	out, err := s.invoices.ListByMerchant(ctx, merchantID, status)
	if err != nil {
		return nil, errors.Wrap(err, "list invoices")
	}
	return out, nil
}
