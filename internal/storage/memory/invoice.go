package memory

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/little-shop/internal/domain/invoice"
)

var _ invoice.Repository = (*InvoiceRepository)(nil)

// InvoiceRepository implements invoice.Repository in memory.
type InvoiceRepository struct {
	s *Store
}

func (r *InvoiceRepository) Get(_ context.Context, id int64) (*invoice.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	inv, ok := r.s.st.invoices[id]
	if !ok {
		return nil, invoice.ErrNotFound
	}
	return &inv, nil
}

// LineItems returns the invoice lines ordered by id, each carrying the
// current owner of its item.
func (r *InvoiceRepository) LineItems(_ context.Context, invoiceID int64) ([]invoice.LineItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := &r.s.st

	out := make([]invoice.LineItem, 0)
	for _, id := range sortedKeys(st.lines) {
		l := st.lines[id]
		if l.InvoiceID != invoiceID {
			continue
		}
		if it, ok := st.items[l.ItemID]; ok {
			l.ItemMerchantID = it.MerchantID
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *InvoiceRepository) ListByMerchant(_ context.Context, merchantID int64, status string) ([]invoice.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]invoice.Invoice, 0)
	for _, id := range sortedKeys(r.s.st.invoices) {
		inv := r.s.st.invoices[id]
		if inv.MerchantID != merchantID {
			continue
		}
		if status != "" && inv.Status != status {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

// Create runs under the store lock, which coupon transitions also hold.
func (r *InvoiceRepository) Create(_ context.Context, inv *invoice.Invoice, lines []invoice.LineItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := &r.s.st

	if _, ok := st.merchants[inv.MerchantID]; !ok {
		return errors.Errorf("insert invoice: merchant %d does not exist", inv.MerchantID)
	}
	if _, ok := st.customers[inv.CustomerID]; !ok {
		return errors.Errorf("insert invoice: customer %d does not exist", inv.CustomerID)
	}
	if inv.CouponID != nil {
		c, ok := st.coupons[*inv.CouponID]
		if !ok {
			return errors.Wrapf(invoice.ErrCouponMissing, "coupon %d", *inv.CouponID)
		}
		if !c.Active {
			return errors.Wrapf(invoice.ErrCouponInactive, "coupon %d", *inv.CouponID)
		}
	}
	for _, l := range lines {
		if _, ok := st.items[l.ItemID]; !ok {
			return errors.Errorf("insert invoice item: item %d does not exist", l.ItemID)
		}
	}

	if inv.Status == "" {
		inv.Status = invoice.StatusPending
	}
	inv.ID = st.next("invoices")
	inv.CreatedAt = r.s.now()
	inv.UpdatedAt = inv.CreatedAt
	st.invoices[inv.ID] = *inv

	for i := range lines {
		lines[i].ID = st.next("invoice_items")
		lines[i].InvoiceID = inv.ID
		st.lines[lines[i].ID] = lines[i]
	}
	return nil
}

func (r *InvoiceRepository) SetTotal(_ context.Context, id int64, total decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	inv, ok := r.s.st.invoices[id]
	if !ok {
		return invoice.ErrNotFound
	}
	inv.Total = decimal.NewNullDecimal(total)
	inv.UpdatedAt = r.s.now()
	r.s.st.invoices[id] = inv
	return nil
}

func (st *state) deleteInvoice(id int64) {
	delete(st.invoices, id)
	for lineID, l := range st.lines {
		if l.InvoiceID == id {
			delete(st.lines, lineID)
		}
	}
}
