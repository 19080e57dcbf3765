// Command seed-db applies the schema and loads a small demo data set.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/little-shop/internal/domain/coupon"
	"github.com/xenking/little-shop/internal/domain/customer"
	"github.com/xenking/little-shop/internal/domain/invoice"
	"github.com/xenking/little-shop/internal/domain/item"
	"github.com/xenking/little-shop/internal/domain/merchant"
	"github.com/xenking/little-shop/internal/storage/postgres"
)

type seedItem struct {
	name        string
	description string
	price       string
}

type seedCoupon struct {
	name, code, discountType, value string
	active                          bool
}

type seedMerchant struct {
	name    string
	items   []seedItem
	coupons []seedCoupon
}

var merchants = []seedMerchant{
	{
		name: "Schroeder-Jerde",
		items: []seedItem{
			{name: "Item Qui Esse", description: "Nihil autem sit odio inventore deleniti.", price: "751.07"},
			{name: "Item Autem Minima", description: "Cumque consequuntur ad.", price: "670.76"},
		},
		coupons: []seedCoupon{
			{name: "Ten Off", code: "SJ-TENOFF", discountType: "dollar", value: "10", active: true},
			{name: "Quarter Off", code: "SJ-QUARTER", discountType: "percent", value: "25", active: true},
		},
	},
	{
		name: "Klein, Rempel and Jones",
		items: []seedItem{
			{name: "Item Ea Voluptatum", description: "Sunt officia eum qui molestiae.", price: "323.01"},
		},
		coupons: []seedCoupon{
			{name: "Summer Sale", code: "KRJ-SUMMER", discountType: "percent", value: "15", active: false},
		},
	},
}

var customers = []customer.Customer{
	{FirstName: "Joey", LastName: "Ondricka"},
	{FirstName: "Cecelia", LastName: "Osinski"},
}

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed successfully")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	merchantRepo := postgres.NewMerchantRepository(pool)
	existing, err := merchantRepo.List(ctx, merchant.ListOptions{})
	if err != nil {
		return errors.Wrap(err, "list merchants")
	}
	if len(existing) > 0 {
		lg.Info("Database already seeded", zap.Int("merchants", len(existing)))
		return nil
	}

	itemRepo := postgres.NewItemRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	policy := coupon.NewPolicy(couponRepo, coupon.PolicyConfig{})
	invoices := invoice.NewService(postgres.NewInvoiceRepository(pool), merchantRepo, customerRepo, itemRepo, couponRepo)

	var seededCustomers []customer.Customer
	for _, c := range customers {
		if err := customerRepo.Create(ctx, &c); err != nil {
			return errors.Wrapf(err, "create customer %s %s", c.FirstName, c.LastName)
		}
		seededCustomers = append(seededCustomers, c)
	}

	for _, sm := range merchants {
		m := merchant.Merchant{Name: sm.name}
		if err := merchantRepo.Create(ctx, &m); err != nil {
			return errors.Wrapf(err, "create merchant %s", sm.name)
		}

		var lines []invoice.LineRequest
		for _, si := range sm.items {
			it := item.Item{
				MerchantID:  m.ID,
				Name:        si.name,
				Description: si.description,
				UnitPrice:   decimal.RequireFromString(si.price),
			}
			if err := itemRepo.Create(ctx, &it); err != nil {
				return errors.Wrapf(err, "create item %s", si.name)
			}
			lines = append(lines, invoice.LineRequest{ItemID: it.ID, Quantity: 2})
		}

		var attach *coupon.Coupon
		for _, sc := range sm.coupons {
			c, err := policy.Create(ctx, coupon.Draft{
				MerchantID:    m.ID,
				Name:          sc.name,
				Code:          sc.code,
				DiscountType:  sc.discountType,
				DiscountValue: sc.value,
				Active:        sc.active,
			})
			if err != nil {
				return errors.Wrapf(err, "create coupon %s", sc.code)
			}
			if attach == nil && c.Active {
				attach = c
			}
		}

		for i, c := range seededCustomers {
			req := invoice.CreateRequest{MerchantID: m.ID, CustomerID: c.ID, Items: lines}
			if i == 0 && attach != nil {
				req.CouponID = &attach.ID
				req.Status = invoice.StatusShipped
			}
			d, err := invoices.Create(ctx, req)
			if err != nil {
				return errors.Wrapf(err, "create invoice for merchant %d", m.ID)
			}
			lg.Info("Seeded invoice",
				zap.Int64("invoice_id", d.ID),
				zap.Int64("merchant_id", m.ID),
				zap.String("total", d.Computed.StringFixed(2)),
			)
		}

		lg.Info("Seeded merchant",
			zap.Int64("id", m.ID),
			zap.String("name", m.Name),
			zap.Int("items", len(sm.items)),
			zap.Int("coupons", len(sm.coupons)),
		)
	}
	return nil
}
