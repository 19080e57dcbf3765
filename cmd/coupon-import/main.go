// Command coupon-import loads coupons from gzip-compressed CSV files.
//
// Each file holds rows of merchant_id,name,code,discount_type,discount_value,status.
// Codes present in more than one file are skipped. Every other row goes
// through the coupon policy, so the usual validation and the active cap
// apply.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/little-shop/internal/domain/coupon"
	"github.com/xenking/little-shop/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		workers     int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.csv.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 4, "files imported concurrently")
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

	if err := run(ctx, lg, dataDir, databaseURL, workers); err != nil {
		lg.Fatal("Coupon import failed", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, dataDir, databaseURL string, workers int) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
	if err != nil {
		return errors.Wrap(err, "list files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.csv.gz files in %s", dataDir)
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	im := newImporter(lg, coupon.NewPolicy(postgres.NewCouponRepository(pool), coupon.PolicyConfig{}))
	im.workers = workers

	s, err := im.run(ctx, files)
	if err != nil {
		return err
	}
	lg.Info("Coupon import completed",
		zap.Int("rows", s.Rows),
		zap.Int("duplicates", s.Duplicates),
		zap.Int("created", s.Created),
		zap.Int("rejected", s.Rejected),
	)
	return nil
}
