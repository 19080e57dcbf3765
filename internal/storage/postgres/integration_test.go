//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/little-shop/internal/domain/coupon"
	"github.com/xenking/little-shop/internal/domain/customer"
	"github.com/xenking/little-shop/internal/domain/invoice"
	"github.com/xenking/little-shop/internal/domain/item"
	"github.com/xenking/little-shop/internal/domain/merchant"
	"github.com/xenking/little-shop/internal/domain/validation"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "shop",
				"POSTGRES_PASSWORD": "shop",
				"POSTGRES_DB":       "shop",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := container.Terminate(context.Background()); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://shop:shop@%s:%s/shop?sslmode=disable", host, port.Port())
	pool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer pool.Close()

	if err := RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	return m.Run()
}

type fixture struct {
	merchant merchant.Merchant
	customer customer.Customer
	item     item.Item
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	m := merchant.Merchant{Name: "Merchant " + t.Name()}
	require.NoError(t, NewMerchantRepository(pool).Create(ctx, &m))
	c := customer.Customer{FirstName: "Mariah", LastName: "Toy"}
	require.NoError(t, NewCustomerRepository(pool).Create(ctx, &c))
	it := item.Item{MerchantID: m.ID, Name: "Item Autem Minima", Description: "Cumque consequuntur", UnitPrice: decimal.RequireFromString("670.76")}
	require.NoError(t, NewItemRepository(pool).Create(ctx, &it))

	return fixture{merchant: m, customer: c, item: it}
}

func (f fixture) invoice(t *testing.T, couponID *int64, status string) invoice.Invoice {
	t.Helper()
	inv := invoice.Invoice{MerchantID: f.merchant.ID, CustomerID: f.customer.ID, CouponID: couponID, Status: status}
	require.NoError(t, NewInvoiceRepository(pool).Create(context.Background(), &inv, f.lines()))
	return inv
}

func (f fixture) lines() []invoice.LineItem {
	qty := 2
	return []invoice.LineItem{{
		ItemID: f.item.ID, MerchantID: f.merchant.ID, Name: f.item.Name, Description: f.item.Description,
		UnitPrice: decimal.NewNullDecimal(f.item.UnitPrice), Quantity: &qty,
	}}
}

func draft(merchantID int64, code string) coupon.Draft {
	return coupon.Draft{
		MerchantID: merchantID, Name: "Coupon " + code, Code: code,
		DiscountType: "percent", DiscountValue: "10", Active: true,
	}
}

func TestCoupon_ConcurrentCreateRespectsCap(t *testing.T) {
	f := newFixture(t)
	p := coupon.NewPolicy(NewCouponRepository(pool), coupon.PolicyConfig{})

	const attempts = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Create(context.Background(), draft(f.merchant.ID, fmt.Sprintf("PG-RACE-%d-%d", f.merchant.ID, i)))
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
				return
			}
			var verr *validation.Error
			assert.ErrorAs(t, err, &verr)
		}()
	}
	wg.Wait()

	assert.Equal(t, coupon.MaxActive, created)
	n, err := NewCouponRepository(pool).CountActive(context.Background(), f.merchant.ID)
	require.NoError(t, err)
	assert.Equal(t, coupon.MaxActive, n)
}

func TestCoupon_UniqueConstraint(t *testing.T) {
	f := newFixture(t)
	repo := NewCouponRepository(pool)
	code := fmt.Sprintf("PG-UNIQ-%d", f.merchant.ID)

	first := coupon.Coupon{MerchantID: f.merchant.ID, Name: "a", Code: code, DiscountType: coupon.DiscountDollar, DiscountValue: decimal.NewFromInt(3), Active: true}
	require.NoError(t, repo.Insert(context.Background(), &first))
	assert.NotZero(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	second := first
	err := repo.Insert(context.Background(), &second)
	require.ErrorIs(t, err, coupon.ErrCodeTaken)

	other := newFixture(t)
	_, err = coupon.NewPolicy(repo, coupon.PolicyConfig{}).Create(context.Background(), draft(other.merchant.ID, code))
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{validation.MsgTaken}, verr.On("code"))
}

func TestCoupon_LifecycleAndUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := NewCouponRepository(pool)
	p := coupon.NewPolicy(repo, coupon.PolicyConfig{GuardDeleteWithPending: true})

	c, err := p.Create(ctx, draft(f.merchant.ID, fmt.Sprintf("PG-LIFE-%d", f.merchant.ID)))
	require.NoError(t, err)

	pending := f.invoice(t, &c.ID, invoice.StatusPending)
	f.invoice(t, &c.ID, invoice.StatusShipped)
	f.invoice(t, &c.ID, invoice.StatusReturned)

	n, err := repo.CountInvoices(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = p.Deactivate(ctx, f.merchant.ID, c.ID)
	var cerr *coupon.ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, coupon.MsgDeactivateBlocked, cerr.Message)

	err = p.Delete(ctx, f.merchant.ID, c.ID)
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, coupon.MsgDeleteBlocked, cerr.Message)

	inactive, err := p.FilterByBooleanString(ctx, f.merchant.ID, "false")
	require.NoError(t, err)
	assert.Empty(t, inactive)

	_, err = pool.Exec(ctx, `UPDATE invoices SET status = 'shipped' WHERE id = $1`, pending.ID)
	require.NoError(t, err)

	got, err := p.Deactivate(ctx, f.merchant.ID, c.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	got, err = p.Activate(ctx, f.merchant.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)

	require.NoError(t, p.Delete(ctx, f.merchant.ID, c.ID))

	inv, err := NewInvoiceRepository(pool).Get(ctx, pending.ID)
	require.NoError(t, err)
	assert.False(t, inv.HasCoupon())

	_, err = p.Get(ctx, f.merchant.ID, c.ID)
	require.ErrorIs(t, err, coupon.ErrNotFound)
}

func TestInvoice_TotalRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := coupon.NewPolicy(NewCouponRepository(pool), coupon.PolicyConfig{})
	svc := invoice.NewService(
		NewInvoiceRepository(pool), NewMerchantRepository(pool), NewCustomerRepository(pool),
		NewItemRepository(pool), NewCouponRepository(pool),
	)

	c, err := p.Create(ctx, coupon.Draft{
		MerchantID: f.merchant.ID, Name: "Ten off", Code: fmt.Sprintf("PG-TOTAL-%d", f.merchant.ID),
		DiscountType: "dollar", DiscountValue: "10", Active: true,
	})
	require.NoError(t, err)

	d, err := svc.Create(ctx, invoice.CreateRequest{
		MerchantID: f.merchant.ID, CustomerID: f.customer.ID, CouponID: &c.ID,
		Items: []invoice.LineRequest{{ItemID: f.item.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPending, d.Status)
	assert.Equal(t, "1331.52", d.Computed.String())

	detail, err := svc.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, detail.Lines, 1)
	assert.Equal(t, f.merchant.ID, detail.Lines[0].ItemMerchantID)
	assert.False(t, detail.Total.Valid)

	_, err = svc.RecordTotal(ctx, d.ID)
	require.NoError(t, err)

	inv, err := NewInvoiceRepository(pool).Get(ctx, d.ID)
	require.NoError(t, err)
	require.True(t, inv.Total.Valid)
	assert.True(t, decimal.RequireFromString("1331.52").Equal(inv.Total.Decimal))
}

func TestMerchant_ListAndCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := NewMerchantRepository(pool)

	f.invoice(t, nil, invoice.StatusReturned)

	returned, err := repo.List(ctx, merchant.ListOptions{ReturnedOnly: true})
	require.NoError(t, err)
	var found *merchant.Summary
	for i := range returned {
		if returned[i].ID == f.merchant.ID {
			found = &returned[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, 1, found.ItemCount)

	newest, err := repo.List(ctx, merchant.ListOptions{NewestFirst: true})
	require.NoError(t, err)
	require.NotEmpty(t, newest)
	for i := 1; i < len(newest); i++ {
		assert.Greater(t, newest[i-1].ID, newest[i].ID)
	}

	byName, err := repo.FindByName(ctx, "MERCHANT "+t.Name())
	require.NoError(t, err)
	assert.Equal(t, f.merchant.ID, byName.ID)

	require.NoError(t, repo.Delete(ctx, f.merchant.ID))
	_, err = NewItemRepository(pool).Get(ctx, f.item.ID)
	require.ErrorIs(t, err, item.ErrNotFound)
	require.True(t, errors.Is(repo.Delete(ctx, f.merchant.ID), merchant.ErrNotFound))
}

func TestInvoice_CreateWaitsForCouponTransaction(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(ctx context.Context, q coupon.Queries, id int64) error
		wantErr error
	}{
		{
			name: "delete",
			mutate: func(ctx context.Context, q coupon.Queries, id int64) error {
				return q.Delete(ctx, id)
			},
			wantErr: invoice.ErrCouponMissing,
		},
		{
			name: "deactivate",
			mutate: func(ctx context.Context, q coupon.Queries, id int64) error {
				return q.SetStatus(ctx, id, false)
			},
			wantErr: invoice.ErrCouponInactive,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			repo := NewCouponRepository(pool)
			c, err := coupon.NewPolicy(repo, coupon.PolicyConfig{}).
				Create(ctx, draft(f.merchant.ID, fmt.Sprintf("PG-WAIT-%d", f.merchant.ID)))
			require.NoError(t, err)

			locked := make(chan struct{})
			release := make(chan struct{})
			txDone := make(chan error, 1)
			go func() {
				txDone <- repo.InMerchantTx(ctx, f.merchant.ID, func(q coupon.Queries) error {
					close(locked)
					<-release
					return tt.mutate(ctx, q, c.ID)
				})
			}()
			<-locked

			created := make(chan error, 1)
			go func() {
				inv := invoice.Invoice{MerchantID: f.merchant.ID, CustomerID: f.customer.ID, CouponID: &c.ID, Status: invoice.StatusPending}
				created <- NewInvoiceRepository(pool).Create(ctx, &inv, f.lines())
			}()

			select {
			case err := <-created:
				t.Fatalf("invoice insert finished while the coupon transaction was open: %v", err)
			case <-time.After(200 * time.Millisecond):
			}

			close(release)
			require.NoError(t, <-txDone)
			require.ErrorIs(t, <-created, tt.wantErr)

			n, err := repo.CountInvoices(ctx, c.ID)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestCoupon_GuardWaitsForInvoiceInsert(t *testing.T) {
	tests := []struct {
		name    string
		run     func(ctx context.Context, p *coupon.Policy, merchantID, id int64) error
		wantMsg string
	}{
		{
			name: "delete",
			run: func(ctx context.Context, p *coupon.Policy, merchantID, id int64) error {
				return p.Delete(ctx, merchantID, id)
			},
			wantMsg: coupon.MsgDeleteBlocked,
		},
		{
			name: "deactivate",
			run: func(ctx context.Context, p *coupon.Policy, merchantID, id int64) error {
				_, err := p.Deactivate(ctx, merchantID, id)
				return err
			},
			wantMsg: coupon.MsgDeactivateBlocked,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			p := coupon.NewPolicy(NewCouponRepository(pool), coupon.PolicyConfig{GuardDeleteWithPending: true})
			c, err := p.Create(ctx, draft(f.merchant.ID, fmt.Sprintf("PG-GUARD-%d", f.merchant.ID)))
			require.NoError(t, err)

			// An invoice insert holding the lock but not yet committed.
			tx, err := pool.Begin(ctx)
			require.NoError(t, err)
			defer func() { _ = tx.Rollback(ctx) }()
			require.NoError(t, lockAttachedCoupon(ctx, tx, c.ID))
			_, err = tx.Exec(ctx, insertInvoiceSQL, f.merchant.ID, f.customer.ID, c.ID, invoice.StatusPending)
			require.NoError(t, err)

			done := make(chan error, 1)
			go func() { done <- tt.run(ctx, p, f.merchant.ID, c.ID) }()

			select {
			case err := <-done:
				t.Fatalf("coupon transition finished while the invoice insert was open: %v", err)
			case <-time.After(200 * time.Millisecond):
			}

			require.NoError(t, tx.Commit(ctx))

			var cerr *coupon.ConflictError
			require.ErrorAs(t, <-done, &cerr)
			assert.Equal(t, tt.wantMsg, cerr.Message)

			got, err := p.Get(ctx, f.merchant.ID, c.ID)
			require.NoError(t, err)
			assert.True(t, got.Active)
		})
	}
}

func TestInvoice_ServiceRejectsUnavailableCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := coupon.NewPolicy(NewCouponRepository(pool), coupon.PolicyConfig{})
	svc := invoice.NewService(
		NewInvoiceRepository(pool), NewMerchantRepository(pool), NewCustomerRepository(pool),
		NewItemRepository(pool), NewCouponRepository(pool),
	)

	off := draft(f.merchant.ID, fmt.Sprintf("PG-OFF-%d", f.merchant.ID))
	off.Active = false
	c, err := p.Create(ctx, off)
	require.NoError(t, err)

	_, err = svc.Create(ctx, invoice.CreateRequest{
		MerchantID: f.merchant.ID, CustomerID: f.customer.ID, CouponID: &c.ID,
		Items: []invoice.LineRequest{{ItemID: f.item.ID, Quantity: 1}},
	})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{validation.MsgInactive}, verr.On("coupon"))

	_, err = svc.Create(ctx, invoice.CreateRequest{
		MerchantID: f.merchant.ID, CustomerID: f.customer.ID,
		Items: []invoice.LineRequest{{ItemID: f.item.ID, Quantity: invoice.MaxQuantity + 1}},
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{validation.MsgTooLarge(invoice.MaxQuantity)}, verr.On("quantity"))
}
