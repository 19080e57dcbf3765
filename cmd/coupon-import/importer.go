package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/little-shop/internal/domain/coupon"
	"github.com/xenking/little-shop/internal/domain/validation"
)

const (
	defaultBloomCapacity = 1_000_000
	defaultBloomFPR      = 0.001
	progressEvery        = 10_000
)

// creator persists one coupon draft.
type creator interface {
	Create(ctx context.Context, d coupon.Draft) (*coupon.Coupon, error)
}

type summary struct {
	Rows       int
	Duplicates int
	Created    int
	Rejected   int
}

func (s *summary) add(o summary) {
	s.Rows += o.Rows
	s.Duplicates += o.Duplicates
	s.Created += o.Created
	s.Rejected += o.Rejected
}

type importer struct {
	lg       *zap.Logger
	policy   creator
	workers  int
	capacity uint
	fpr      float64
}

func newImporter(lg *zap.Logger, policy creator) *importer {
	return &importer{
		lg:       lg,
		policy:   policy,
		workers:  4,
		capacity: defaultBloomCapacity,
		fpr:      defaultBloomFPR,
	}
}

// run imports files in three passes: one bloom filter per file, then codes
// that hit another file's filter are confirmed as cross-file duplicates,
// then every remaining row is created.
func (im *importer) run(ctx context.Context, files []string) (summary, error) {
	im.lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
	filters, err := im.buildFilters(ctx, files)
	if err != nil {
		return summary{}, errors.Wrap(err, "build bloom filters")
	}

	im.lg.Info("Pass 2: finding duplicate codes")
	dupes, err := im.findDuplicates(ctx, files, filters)
	if err != nil {
		return summary{}, errors.Wrap(err, "find duplicates")
	}
	im.lg.Info("Duplicate codes found", zap.Int("count", len(dupes)))

	im.lg.Info("Pass 3: creating coupons")
	return im.createAll(ctx, files, dupes)
}

func (im *importer) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(im.capacity, im.fpr)
			if err := streamRows(ctx, path, func(_ int, rec []string) error {
				if code, ok := codeOf(rec); ok {
					filter.AddString(code)
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findDuplicates collects, per file, the codes that another file's filter
// reports. A code collected by two or more files is present in both, which
// rules out a one-sided false positive.
func (im *importer) findDuplicates(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]bool, error) {
	candidates := make([]map[string]struct{}, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for i, path := range files {
		g.Go(func() error {
			found := make(map[string]struct{})
			if err := streamRows(ctx, path, func(_ int, rec []string) error {
				code, ok := codeOf(rec)
				if !ok {
					return nil
				}
				for j, f := range filters {
					if j != i && f.TestString(code) {
						found[code] = struct{}{}
						break
					}
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			candidates[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seenIn := make(map[string]int)
	for _, found := range candidates {
		for code := range found {
			seenIn[code]++
		}
	}
	dupes := make(map[string]bool)
	for code, n := range seenIn {
		if n >= 2 {
			dupes[code] = true
		}
	}
	return dupes, nil
}

func (im *importer) createAll(ctx context.Context, files []string, dupes map[string]bool) (summary, error) {
	results := make([]summary, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for i, path := range files {
		g.Go(func() error {
			lg := im.lg.With(zap.String("file", path))
			var s summary
			err := streamRows(ctx, path, func(line int, rec []string) error {
				code, ok := codeOf(rec)
				if !ok {
					return nil
				}
				s.Rows++
				if s.Rows%progressEvery == 0 {
					lg.Info("Import progress", zap.Int("rows", s.Rows))
				}
				if dupes[code] {
					s.Duplicates++
					return nil
				}

				d, err := parseRecord(rec)
				if err != nil {
					s.Rejected++
					lg.Warn("Row rejected", zap.Int("line", line), zap.Error(err))
					return nil
				}
				if _, err := im.policy.Create(ctx, d); err != nil {
					var verr *validation.Error
					if !errors.As(err, &verr) {
						return errors.Wrapf(err, "line %d", line)
					}
					s.Rejected++
					lg.Warn("Row rejected",
						zap.Int("line", line),
						zap.String("code", code),
						zap.Strings("errors", verr.FullMessages()),
					)
					return nil
				}
				s.Created++
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "import %s", path)
			}
			results[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary{}, err
	}

	var total summary
	for _, s := range results {
		total.add(s)
	}
	return total, nil
}

// streamRows calls fn for every CSV record of a gzip file. A leading header
// row is skipped. Lines are 1-based.
func streamRows(ctx context.Context, path string, fn func(line int, rec []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		if line == 1 && len(rec) > 0 && rec[0] == "merchant_id" {
			continue
		}
		if err := fn(line, rec); err != nil {
			return err
		}
	}
}

func codeOf(rec []string) (string, bool) {
	if len(rec) < 3 {
		return "", false
	}
	code := strings.TrimSpace(rec[2])
	return code, code != ""
}

// parseRecord maps merchant_id,name,code,discount_type,discount_value,status
// onto a draft. A missing status means active.
func parseRecord(rec []string) (coupon.Draft, error) {
	if len(rec) < 5 {
		return coupon.Draft{}, errors.Errorf("expected at least 5 fields, got %d", len(rec))
	}
	merchantID, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
	if err != nil {
		return coupon.Draft{}, errors.Wrap(err, "merchant_id")
	}

	active := true
	if len(rec) > 5 {
		if s := strings.TrimSpace(rec[5]); s != "" {
			if active, err = strconv.ParseBool(s); err != nil {
				return coupon.Draft{}, errors.Wrap(err, "status")
			}
		}
	}

	return coupon.Draft{
		MerchantID:    merchantID,
		Name:          strings.TrimSpace(rec[1]),
		Code:          strings.TrimSpace(rec[2]),
		DiscountType:  strings.TrimSpace(rec[3]),
		DiscountValue: strings.TrimSpace(rec[4]),
		Active:        active,
	}, nil
}
