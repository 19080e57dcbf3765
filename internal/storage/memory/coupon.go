package memory

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/little-shop/internal/domain/coupon"
	"github.com/xenking/little-shop/internal/domain/invoice"
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository in memory.
type CouponRepository struct {
	s *Store
}

// InMerchantTx runs fn while holding the store lock. Writes made by fn are
// undone in reverse order when it returns an error.
func (r *CouponRepository) InMerchantTx(_ context.Context, _ int64, fn func(q coupon.Queries) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var undo undoLog
	if err := fn(couponQueries{s: r.s, undo: &undo}); err != nil {
		undo.rollback()
		return err
	}
	return nil
}

// undoLog holds the inverse of each write of an open transaction.
type undoLog []func()

// add records fn. It is a no-op outside a transaction.
func (u *undoLog) add(fn func()) {
	if u != nil {
		*u = append(*u, fn)
	}
}

func (u undoLog) rollback() {
	for i := len(u) - 1; i >= 0; i-- {
		u[i]()
	}
}

func (r *CouponRepository) locked() (couponQueries, func()) {
	r.s.mu.Lock()
	return couponQueries{s: r.s}, r.s.mu.Unlock
}

func (r *CouponRepository) MerchantExists(ctx context.Context, merchantID int64) (bool, error) {
	q, unlock := r.locked()
	defer unlock()
	return q.MerchantExists(ctx, merchantID)
}

func (r *CouponRepository) CodeExists(ctx context.Context, code string, excludeID int64) (bool, error) {
	q, unlock := r.locked()
	defer unlock()
	return q.CodeExists(ctx, code, excludeID)
}

func (r *CouponRepository) CountActive(ctx context.Context, merchantID int64) (int, error) {
	q, unlock := r.locked()
	defer unlock()
	return q.CountActive(ctx, merchantID)
}

func (r *CouponRepository) Insert(ctx context.Context, c *coupon.Coupon) error {
	q, unlock := r.locked()
	defer unlock()
	return q.Insert(ctx, c)
}

func (r *CouponRepository) Find(ctx context.Context, id int64) (*coupon.Coupon, error) {
	q, unlock := r.locked()
	defer unlock()
	return q.Find(ctx, id)
}

func (r *CouponRepository) ListByMerchant(ctx context.Context, merchantID int64, f coupon.StatusFilter) ([]coupon.Coupon, error) {
	q, unlock := r.locked()
	defer unlock()
	return q.ListByMerchant(ctx, merchantID, f)
}

func (r *CouponRepository) SetStatus(ctx context.Context, id int64, active bool) error {
	q, unlock := r.locked()
	defer unlock()
	return q.SetStatus(ctx, id, active)
}

func (r *CouponRepository) HasPendingInvoices(ctx context.Context, id int64) (bool, error) {
	q, unlock := r.locked()
	defer unlock()
	return q.HasPendingInvoices(ctx, id)
}

func (r *CouponRepository) CountInvoices(ctx context.Context, id int64) (int, error) {
	q, unlock := r.locked()
	defer unlock()
	return q.CountInvoices(ctx, id)
}

func (r *CouponRepository) Delete(ctx context.Context, id int64) error {
	q, unlock := r.locked()
	defer unlock()
	return q.Delete(ctx, id)
}

// couponQueries operates on the store state. The caller holds the lock.
type couponQueries struct {
	s    *Store
	undo *undoLog
}

func (q couponQueries) MerchantExists(_ context.Context, merchantID int64) (bool, error) {
	_, ok := q.s.st.merchants[merchantID]
	return ok, nil
}

func (q couponQueries) CodeExists(_ context.Context, code string, excludeID int64) (bool, error) {
	for id, c := range q.s.st.coupons {
		if c.Code == code && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (q couponQueries) CountActive(_ context.Context, merchantID int64) (int, error) {
	n := 0
	for _, c := range q.s.st.coupons {
		if c.MerchantID == merchantID && c.Active {
			n++
		}
	}
	return n, nil
}

func (q couponQueries) Insert(ctx context.Context, c *coupon.Coupon) error {
	st := &q.s.st
	if _, ok := st.merchants[c.MerchantID]; !ok {
		return errors.Errorf("insert coupon: merchant %d does not exist", c.MerchantID)
	}
	if taken, _ := q.CodeExists(ctx, c.Code, 0); taken {
		return errors.Wrapf(coupon.ErrCodeTaken, "code %q", c.Code)
	}

	prevSeq := st.seq["coupons"]
	c.ID = st.next("coupons")
	c.CreatedAt = q.s.now()
	c.UpdatedAt = c.CreatedAt
	st.coupons[c.ID] = *c

	id := c.ID
	q.undo.add(func() {
		delete(st.coupons, id)
		st.seq["coupons"] = prevSeq
	})
	return nil
}

func (q couponQueries) Find(_ context.Context, id int64) (*coupon.Coupon, error) {
	c, ok := q.s.st.coupons[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return &c, nil
}

func (q couponQueries) ListByMerchant(_ context.Context, merchantID int64, f coupon.StatusFilter) ([]coupon.Coupon, error) {
	out := make([]coupon.Coupon, 0)
	for _, id := range sortedKeys(q.s.st.coupons) {
		c := q.s.st.coupons[id]
		if c.MerchantID == merchantID && f.Matches(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (q couponQueries) SetStatus(_ context.Context, id int64, active bool) error {
	c, ok := q.s.st.coupons[id]
	if !ok {
		return coupon.ErrNotFound
	}
	prev := c
	c.Active = active
	c.UpdatedAt = q.s.now()
	q.s.st.coupons[id] = c
	q.undo.add(func() { q.s.st.coupons[id] = prev })
	return nil
}

func (q couponQueries) HasPendingInvoices(_ context.Context, id int64) (bool, error) {
	for _, inv := range q.s.st.invoices {
		if inv.CouponID != nil && *inv.CouponID == id && inv.Status == invoice.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (q couponQueries) CountInvoices(_ context.Context, id int64) (int, error) {
	n := 0
	for _, inv := range q.s.st.invoices {
		if inv.CouponID != nil && *inv.CouponID == id {
			n++
		}
	}
	return n, nil
}

func (q couponQueries) Delete(_ context.Context, id int64) error {
	st := &q.s.st
	prev, ok := st.coupons[id]
	if !ok {
		return coupon.ErrNotFound
	}
	cleared := st.deleteCoupon(id)
	q.undo.add(func() {
		st.coupons[id] = prev
		for _, invID := range cleared {
			inv := st.invoices[invID]
			couponID := id
			inv.CouponID = &couponID
			st.invoices[invID] = inv
		}
	})
	return nil
}

// deleteCoupon removes the coupon and clears it from referencing invoices,
// returning the ids of those invoices.
func (st *state) deleteCoupon(id int64) []int64 {
	delete(st.coupons, id)
	var cleared []int64
	for invID, inv := range st.invoices {
		if inv.CouponID != nil && *inv.CouponID == id {
			inv.CouponID = nil
			st.invoices[invID] = inv
			cleared = append(cleared, invID)
		}
	}
	return cleared
}
