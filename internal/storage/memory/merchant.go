package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/xenking/little-shop/internal/domain/invoice"
	"github.com/xenking/little-shop/internal/domain/merchant"
)

var _ merchant.Repository = (*MerchantRepository)(nil)

// MerchantRepository implements merchant.Repository in memory.
type MerchantRepository struct {
	s *Store
}

func (r *MerchantRepository) List(_ context.Context, opts merchant.ListOptions) ([]merchant.Summary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := &r.s.st

	ids := sortedKeys(st.merchants)
	if opts.NewestFirst {
		slices.Reverse(ids)
	}

	out := make([]merchant.Summary, 0, len(ids))
	for _, id := range ids {
		if opts.ReturnedOnly && !st.hasReturnedInvoice(id) {
			continue
		}
		out = append(out, merchant.Summary{Merchant: st.merchants[id], Stats: st.stats(id)})
	}
	return out, nil
}

func (r *MerchantRepository) Get(_ context.Context, id int64) (*merchant.Merchant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.st.merchants[id]
	if !ok {
		return nil, merchant.ErrNotFound
	}
	return &m, nil
}

func (r *MerchantRepository) FindByName(_ context.Context, fragment string) (*merchant.Merchant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	needle := strings.ToLower(fragment)
	for _, id := range sortedKeys(r.s.st.merchants) {
		m := r.s.st.merchants[id]
		if strings.Contains(strings.ToLower(m.Name), needle) {
			return &m, nil
		}
	}
	return nil, merchant.ErrNotFound
}

func (r *MerchantRepository) Create(_ context.Context, m *merchant.Merchant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m.ID = r.s.st.next("merchants")
	m.CreatedAt = r.s.now()
	m.UpdatedAt = m.CreatedAt
	r.s.st.merchants[m.ID] = *m
	return nil
}

func (r *MerchantRepository) Update(_ context.Context, m *merchant.Merchant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.st.merchants[m.ID]
	if !ok {
		return merchant.ErrNotFound
	}
	cur.Name = m.Name
	cur.UpdatedAt = r.s.now()
	r.s.st.merchants[m.ID] = cur
	*m = cur
	return nil
}

// Delete removes the merchant with its items, invoices and coupons.
func (r *MerchantRepository) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := &r.s.st

	if _, ok := st.merchants[id]; !ok {
		return merchant.ErrNotFound
	}

	for invID, inv := range st.invoices {
		if inv.MerchantID == id {
			st.deleteInvoice(invID)
		}
	}
	for itemID, it := range st.items {
		if it.MerchantID == id {
			st.deleteItem(itemID)
		}
	}
	for couponID, c := range st.coupons {
		if c.MerchantID == id {
			st.deleteCoupon(couponID)
		}
	}
	delete(st.merchants, id)
	return nil
}

func (st *state) hasReturnedInvoice(merchantID int64) bool {
	for _, inv := range st.invoices {
		if inv.MerchantID == merchantID && inv.Status == invoice.StatusReturned {
			return true
		}
	}
	return false
}

func (st *state) stats(merchantID int64) merchant.Stats {
	var s merchant.Stats
	for _, it := range st.items {
		if it.MerchantID == merchantID {
			s.ItemCount++
		}
	}
	for _, c := range st.coupons {
		if c.MerchantID == merchantID {
			s.CouponsCount++
		}
	}
	for _, inv := range st.invoices {
		if inv.MerchantID == merchantID && inv.HasCoupon() {
			s.InvoiceCouponCount++
		}
	}
	return s
}
