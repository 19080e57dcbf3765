package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/little-shop/internal/domain/coupon"
	"github.com/xenking/little-shop/internal/domain/customer"
	"github.com/xenking/little-shop/internal/domain/invoice"
	"github.com/xenking/little-shop/internal/domain/item"
	"github.com/xenking/little-shop/internal/domain/merchant"
	"github.com/xenking/little-shop/internal/events"
	"github.com/xenking/little-shop/internal/handler"
	"github.com/xenking/little-shop/internal/storage/memory"
	"github.com/xenking/little-shop/internal/storage/postgres"
	"github.com/xenking/little-shop/internal/storage/redis"
	"github.com/xenking/little-shop/pkg/health"
	"github.com/xenking/little-shop/pkg/httpmiddleware"
)

// repositories is one Entity Store backend.
type repositories struct {
	merchants merchant.Repository
	items     item.Repository
	customers customer.Repository
	coupons   coupon.Repository
	invoices  invoice.Repository
	pinger    health.Pinger
	close     func()
}

func openStore(ctx context.Context, lg *zap.Logger, cfg *Config) (*repositories, error) {
	if cfg.Store == StoreMemory {
		lg.Warn("Using in-memory store, data is lost on exit")
		s := memory.New()
		return &repositories{
			merchants: s.Merchants(),
			items:     s.Items(),
			customers: s.Customers(),
			coupons:   s.Coupons(),
			invoices:  s.Invoices(),
			pinger:    s,
			close:     func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return &repositories{
		merchants: postgres.NewMerchantRepository(pool),
		items:     postgres.NewItemRepository(pool),
		customers: postgres.NewCustomerRepository(pool),
		coupons:   postgres.NewCouponRepository(pool),
		invoices:  postgres.NewInvoiceRepository(pool),
		pinger:    pool,
		close:     pool.Close,
	}, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("store", cfg.Store))

	repos, err := openStore(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer repos.close()

	healthSvc := health.New()
	healthSvc.AddReadinessCheck(cfg.Store, 5*time.Second, health.PingCheck(cfg.Store, repos.pinger))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second))

	hcfg := handler.Config{}

	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				lg.Warn("Redis close error", zap.Error(err))
			}
		}()
		idem := redis.NewIdempotencyStore(rdb, cfg.Redis.IdempotencyTTL)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck("redis", idem))
		hcfg.Idempotency = idem
	}

	if len(cfg.Kafka.Brokers) > 0 {
		pub := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := pub.Close(); err != nil {
				lg.Warn("Kafka writer close error", zap.Error(err))
			}
		}()
		healthSvc.AddReadinessCheck("kafka", 5*time.Second, health.PingCheck("kafka", pub))
		hcfg.Publisher = pub
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	policy := coupon.NewPolicy(repos.coupons, coupon.PolicyConfig{
		EnforceCapOnActivate:   cfg.Coupons.EnforceCapOnActivate,
		GuardDeleteWithPending: cfg.Coupons.GuardDeleteWithPending,
	}, coupon.WithMeterProvider(m.MeterProvider()))
	usage := coupon.NewUsageReporter(repos.coupons)
	invoices := invoice.NewService(repos.invoices, repos.merchants, repos.customers, repos.items, repos.coupons)

	h := handler.NewHandler(hcfg, repos.merchants, repos.items, repos.customers, policy, usage, invoices)

	// Route-aware middleware runs inside the router so the matched pattern
	// is known when it logs and labels.
	router := chi.NewRouter()
	router.Use(
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Mount("/api/v1", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("little-shop", m),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
