// Package memory implements the entity store in process memory.
//
// Every repository shares one mutex, so a coupon transaction scoped to a
// merchant serializes with all other writes. It is meant for development and
// tests; state is lost on exit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xenking/little-shop/internal/domain/coupon"
	"github.com/xenking/little-shop/internal/domain/customer"
	"github.com/xenking/little-shop/internal/domain/invoice"
	"github.com/xenking/little-shop/internal/domain/item"
	"github.com/xenking/little-shop/internal/domain/merchant"
)

type state struct {
	merchants map[int64]merchant.Merchant
	items     map[int64]item.Item
	customers map[int64]customer.Customer
	coupons   map[int64]coupon.Coupon
	invoices  map[int64]invoice.Invoice
	lines     map[int64]invoice.LineItem

	seq map[string]int64
}

func newState() state {
	return state{
		merchants: make(map[int64]merchant.Merchant),
		items:     make(map[int64]item.Item),
		customers: make(map[int64]customer.Customer),
		coupons:   make(map[int64]coupon.Coupon),
		invoices:  make(map[int64]invoice.Invoice),
		lines:     make(map[int64]invoice.LineItem),
		seq:       make(map[string]int64),
	}
}

func (st *state) next(table string) int64 {
	st.seq[table]++
	return st.seq[table]
}

// Store holds all entities.
type Store struct {
	mu  sync.Mutex
	st  state
	now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		st:  newState(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Ping always succeeds. It lets the store take part in readiness checks.
func (s *Store) Ping(context.Context) error { return nil }

// Merchants returns the merchant repository.
func (s *Store) Merchants() *MerchantRepository { return &MerchantRepository{s: s} }

// Items returns the item repository.
func (s *Store) Items() *ItemRepository { return &ItemRepository{s: s} }

// Customers returns the customer repository.
func (s *Store) Customers() *CustomerRepository { return &CustomerRepository{s: s} }

// Coupons returns the coupon repository.
func (s *Store) Coupons() *CouponRepository { return &CouponRepository{s: s} }

// Invoices returns the invoice repository.
func (s *Store) Invoices() *InvoiceRepository { return &InvoiceRepository{s: s} }

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
