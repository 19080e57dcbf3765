// Package customer defines invoice buyers.
package customer

import (
	"context"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/little-shop/internal/domain/validation"
)

// ErrNotFound is returned when a requested customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Customer buys from merchants through invoices.
type Customer struct {
	ID        int64
	FirstName string
	LastName  string
}

// Repository persists customers.
type Repository interface {
	Get(ctx context.Context, id int64) (*Customer, error)
	Create(ctx context.Context, c *Customer) error
}

// Validate checks the customer invariants.
func Validate(c Customer) error {
	var s validation.Set
	if strings.TrimSpace(c.FirstName) == "" {
		s.Add("first_name", validation.MsgBlank)
	}
	if strings.TrimSpace(c.LastName) == "" {
		s.Add("last_name", validation.MsgBlank)
	}
	return s.Err()
}
