// Package item defines merchant catalog entries.
package item

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/little-shop/internal/domain/validation"
)

// ErrNotFound is returned when a requested item does not exist.
var ErrNotFound = errors.New("item not found")

// Item is a priced product sold by one merchant.
type Item struct {
	ID          int64
	MerchantID  int64
	Name        string
	Description string
	UnitPrice   decimal.Decimal
}

// Repository persists items. Deleting an item cascades to the invoice items
// that reference it.
type Repository interface {
	Get(ctx context.Context, id int64) (*Item, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Item, error)
	ListByMerchant(ctx context.Context, merchantID int64) ([]Item, error)
	Create(ctx context.Context, it *Item) error
	Delete(ctx context.Context, id int64) error
}

// Validate checks the item invariants. merchantExists reports whether the
// referenced merchant was found by the caller.
func Validate(it Item, merchantExists bool) error {
	var s validation.Set
	if !merchantExists {
		s.Add("merchant", validation.MsgMustExist)
	}
	if strings.TrimSpace(it.Name) == "" {
		s.Add("name", validation.MsgBlank)
	}
	if strings.TrimSpace(it.Description) == "" {
		s.Add("description", validation.MsgBlank)
	}
	if it.UnitPrice.IsNegative() {
		s.Add("unit_price", validation.MsgNonNegative)
	}
	return s.Err()
}
