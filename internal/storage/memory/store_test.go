package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/little-shop/internal/domain/coupon"
	"github.com/xenking/little-shop/internal/domain/customer"
	"github.com/xenking/little-shop/internal/domain/invoice"
	"github.com/xenking/little-shop/internal/domain/item"
	"github.com/xenking/little-shop/internal/domain/merchant"
	"github.com/xenking/little-shop/internal/domain/validation"
)

type fixture struct {
	store    *Store
	merchant merchant.Merchant
	customer customer.Customer
	item     item.Item
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	s := New()

	m := merchant.Merchant{Name: "Schroeder-Jerde"}
	require.NoError(t, s.Merchants().Create(ctx, &m))
	c := customer.Customer{FirstName: "Joey", LastName: "Ondricka"}
	require.NoError(t, s.Customers().Create(ctx, &c))
	it := item.Item{MerchantID: m.ID, Name: "Item Qui Esse", Description: "Nihil autem", UnitPrice: decimal.RequireFromString("751.07")}
	require.NoError(t, s.Items().Create(ctx, &it))

	return fixture{store: s, merchant: m, customer: c, item: it}
}

func (f fixture) invoiceWith(t *testing.T, couponID *int64, status string) invoice.Invoice {
	t.Helper()
	qty := 1
	inv := invoice.Invoice{MerchantID: f.merchant.ID, CustomerID: f.customer.ID, CouponID: couponID, Status: status}
	lines := []invoice.LineItem{{
		ItemID: f.item.ID, MerchantID: f.merchant.ID, Name: f.item.Name, Description: f.item.Description,
		UnitPrice: decimal.NewNullDecimal(f.item.UnitPrice), Quantity: &qty,
	}}
	require.NoError(t, f.store.Invoices().Create(context.Background(), &inv, lines))
	return inv
}

func draft(merchantID int64, code string) coupon.Draft {
	return coupon.Draft{
		MerchantID: merchantID, Name: "Coupon " + code, Code: code,
		DiscountType: "dollar", DiscountValue: "5", Active: true,
	}
}

func TestCoupon_ConcurrentCreateRespectsCap(t *testing.T) {
	f := newFixture(t)
	p := coupon.NewPolicy(f.store.Coupons(), coupon.PolicyConfig{})

	const attempts = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		rejected int
	)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Create(context.Background(), draft(f.merchant.ID, fmt.Sprintf("RACE%d", i)))
			mu.Lock()
			defer mu.Unlock()
			var verr *validation.Error
			switch {
			case err == nil:
				created++
			case errors.As(err, &verr):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, coupon.MaxActive, created)
	assert.Equal(t, attempts-coupon.MaxActive, rejected)

	n, err := f.store.Coupons().CountActive(context.Background(), f.merchant.ID)
	require.NoError(t, err)
	assert.Equal(t, coupon.MaxActive, n)
}

func TestCoupon_TxRollsBackOnError(t *testing.T) {
	f := newFixture(t)
	repo := f.store.Coupons()
	boom := errors.New("boom")

	err := repo.InMerchantTx(context.Background(), f.merchant.ID, func(q coupon.Queries) error {
		c := coupon.Coupon{MerchantID: f.merchant.ID, Name: "n", Code: "GONE", DiscountType: coupon.DiscountDollar, DiscountValue: decimal.NewFromInt(1)}
		require.NoError(t, q.Insert(context.Background(), &c))
		return boom
	})
	require.ErrorIs(t, err, boom)

	taken, err := repo.CodeExists(context.Background(), "GONE", 0)
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestCoupon_TxUndoesEveryWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := f.store.Coupons()
	p := coupon.NewPolicy(repo, coupon.PolicyConfig{})

	kept, err := p.Create(ctx, draft(f.merchant.ID, "KEPT"))
	require.NoError(t, err)
	doomed, err := p.Create(ctx, draft(f.merchant.ID, "DOOMED"))
	require.NoError(t, err)
	inv := f.invoiceWith(t, &doomed.ID, invoice.StatusShipped)

	boom := errors.New("boom")
	err = repo.InMerchantTx(ctx, f.merchant.ID, func(q coupon.Queries) error {
		require.NoError(t, q.SetStatus(ctx, kept.ID, false))
		require.NoError(t, q.Delete(ctx, doomed.ID))
		c := coupon.Coupon{MerchantID: f.merchant.ID, Name: "n", Code: "FRESH", DiscountType: coupon.DiscountDollar, DiscountValue: decimal.NewFromInt(1)}
		require.NoError(t, q.Insert(ctx, &c))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := repo.Find(ctx, kept.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)

	_, err = repo.Find(ctx, doomed.ID)
	require.NoError(t, err)
	gotInv, err := f.store.Invoices().Get(ctx, inv.ID)
	require.NoError(t, err)
	require.True(t, gotInv.HasCoupon())
	assert.Equal(t, doomed.ID, *gotInv.CouponID)

	taken, err := repo.CodeExists(ctx, "FRESH", 0)
	require.NoError(t, err)
	assert.False(t, taken)

	// The rolled back insert does not consume an id.
	next, err := p.Create(ctx, draft(f.merchant.ID, "NEXT"))
	require.NoError(t, err)
	assert.Equal(t, doomed.ID+1, next.ID)
}

func TestCoupon_InsertDuplicateCode(t *testing.T) {
	f := newFixture(t)
	other := merchant.Merchant{Name: "Klein, Rempel and Jones"}
	require.NoError(t, f.store.Merchants().Create(context.Background(), &other))
	repo := f.store.Coupons()

	first := coupon.Coupon{MerchantID: f.merchant.ID, Name: "a", Code: "DUP", DiscountType: coupon.DiscountDollar, DiscountValue: decimal.NewFromInt(1)}
	require.NoError(t, repo.Insert(context.Background(), &first))

	second := coupon.Coupon{MerchantID: other.ID, Name: "b", Code: "DUP", DiscountType: coupon.DiscountDollar, DiscountValue: decimal.NewFromInt(1)}
	err := repo.Insert(context.Background(), &second)
	require.ErrorIs(t, err, coupon.ErrCodeTaken)
}

func TestCoupon_UsageAndPending(t *testing.T) {
	f := newFixture(t)
	p := coupon.NewPolicy(f.store.Coupons(), coupon.PolicyConfig{})
	ctx := context.Background()

	used, err := p.Create(ctx, draft(f.merchant.ID, "USED"))
	require.NoError(t, err)
	unused, err := p.Create(ctx, draft(f.merchant.ID, "UNUSED"))
	require.NoError(t, err)

	f.invoiceWith(t, &used.ID, invoice.StatusShipped)
	f.invoiceWith(t, &used.ID, invoice.StatusReturned)
	f.invoiceWith(t, &used.ID, invoice.StatusPending)

	n, err := f.store.Coupons().CountInvoices(ctx, used.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = f.store.Coupons().CountInvoices(ctx, unused.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = p.Deactivate(ctx, f.merchant.ID, used.ID)
	var cerr *coupon.ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, coupon.MsgDeactivateBlocked, cerr.Message)

	got, err := p.Get(ctx, f.merchant.ID, used.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)

	got, err = p.Deactivate(ctx, f.merchant.ID, unused.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestCoupon_DeleteClearsInvoiceReference(t *testing.T) {
	f := newFixture(t)
	p := coupon.NewPolicy(f.store.Coupons(), coupon.PolicyConfig{GuardDeleteWithPending: true})
	ctx := context.Background()

	c, err := p.Create(ctx, draft(f.merchant.ID, "BYE"))
	require.NoError(t, err)
	inv := f.invoiceWith(t, &c.ID, invoice.StatusShipped)

	require.NoError(t, p.Delete(ctx, f.merchant.ID, c.ID))

	got, err := f.store.Invoices().Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, got.HasCoupon())
}

func TestMerchant_DeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := coupon.NewPolicy(f.store.Coupons(), coupon.PolicyConfig{})
	c, err := p.Create(ctx, draft(f.merchant.ID, "CASCADE"))
	require.NoError(t, err)
	inv := f.invoiceWith(t, &c.ID, invoice.StatusPending)

	require.NoError(t, f.store.Merchants().Delete(ctx, f.merchant.ID))

	_, err = f.store.Merchants().Get(ctx, f.merchant.ID)
	require.ErrorIs(t, err, merchant.ErrNotFound)
	_, err = f.store.Items().Get(ctx, f.item.ID)
	require.ErrorIs(t, err, item.ErrNotFound)
	_, err = f.store.Coupons().Find(ctx, c.ID)
	require.ErrorIs(t, err, coupon.ErrNotFound)
	_, err = f.store.Invoices().Get(ctx, inv.ID)
	require.ErrorIs(t, err, invoice.ErrNotFound)

	lines, err := f.store.Invoices().LineItems(ctx, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)

	require.ErrorIs(t, f.store.Merchants().Delete(ctx, f.merchant.ID), merchant.ErrNotFound)
}

func TestMerchant_ListAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	second := merchant.Merchant{Name: "Willms and Sons"}
	require.NoError(t, f.store.Merchants().Create(ctx, &second))

	p := coupon.NewPolicy(f.store.Coupons(), coupon.PolicyConfig{})
	c, err := p.Create(ctx, draft(f.merchant.ID, "STAT"))
	require.NoError(t, err)
	f.invoiceWith(t, &c.ID, invoice.StatusReturned)
	f.invoiceWith(t, nil, invoice.StatusShipped)

	all, err := f.store.Merchants().List(ctx, merchant.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, f.merchant.ID, all[0].ID)
	assert.Equal(t, merchant.Stats{ItemCount: 1, CouponsCount: 1, InvoiceCouponCount: 1}, all[0].Stats)
	assert.Equal(t, merchant.Stats{}, all[1].Stats)

	newest, err := f.store.Merchants().List(ctx, merchant.ListOptions{NewestFirst: true})
	require.NoError(t, err)
	assert.Equal(t, second.ID, newest[0].ID)

	returned, err := f.store.Merchants().List(ctx, merchant.ListOptions{ReturnedOnly: true})
	require.NoError(t, err)
	require.Len(t, returned, 1)
	assert.Equal(t, f.merchant.ID, returned[0].ID)
}

func TestMerchant_FindByName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.store.Merchants().FindByName(ctx, "jerde")
	require.NoError(t, err)
	assert.Equal(t, f.merchant.ID, got.ID)

	_, err = f.store.Merchants().FindByName(ctx, "nobody")
	require.ErrorIs(t, err, merchant.ErrNotFound)
}

func TestInvoice_LineItemsFollowItemOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoiceWith(t, nil, invoice.StatusPending)

	lines, err := f.store.Invoices().LineItems(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, f.merchant.ID, lines[0].ItemMerchantID)
	assert.Equal(t, inv.ID, lines[0].InvoiceID)

	require.NoError(t, f.store.Invoices().SetTotal(ctx, inv.ID, decimal.RequireFromString("751.07")))
	got, err := f.store.Invoices().Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.Total.Valid)
	assert.Equal(t, "751.07", got.Total.Decimal.String())

	require.NoError(t, f.store.Items().Delete(ctx, f.item.ID))
	lines, err = f.store.Invoices().LineItems(ctx, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestInvoice_CreateRechecksCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := coupon.NewPolicy(f.store.Coupons(), coupon.PolicyConfig{})

	paused, err := p.Create(ctx, draft(f.merchant.ID, "PAUSED"))
	require.NoError(t, err)
	_, err = p.Deactivate(ctx, f.merchant.ID, paused.ID)
	require.NoError(t, err)
	gone, err := p.Create(ctx, draft(f.merchant.ID, "GONE"))
	require.NoError(t, err)
	require.NoError(t, p.Delete(ctx, f.merchant.ID, gone.ID))

	tests := []struct {
		name     string
		couponID int64
		wantErr  error
	}{
		{name: "inactive", couponID: paused.ID, wantErr: invoice.ErrCouponInactive},
		{name: "deleted", couponID: gone.ID, wantErr: invoice.ErrCouponMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qty := 1
			inv := invoice.Invoice{MerchantID: f.merchant.ID, CustomerID: f.customer.ID, CouponID: &tt.couponID, Status: invoice.StatusPending}
			lines := []invoice.LineItem{{ItemID: f.item.ID, MerchantID: f.merchant.ID, Quantity: &qty}}
			err := f.store.Invoices().Create(ctx, &inv, lines)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	list, err := f.store.Invoices().ListByMerchant(ctx, f.merchant.ID, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}
