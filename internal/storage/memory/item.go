package memory

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/little-shop/internal/domain/customer"
	"github.com/xenking/little-shop/internal/domain/item"
)

var (
	_ item.Repository     = (*ItemRepository)(nil)
	_ customer.Repository = (*CustomerRepository)(nil)
)

// ItemRepository implements item.Repository in memory.
type ItemRepository struct {
	s *Store
}

func (r *ItemRepository) Get(_ context.Context, id int64) (*item.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	it, ok := r.s.st.items[id]
	if !ok {
		return nil, item.ErrNotFound
	}
	return &it, nil
}

// GetByIDs returns the items that exist among ids. Missing ids are skipped.
func (r *ItemRepository) GetByIDs(_ context.Context, ids []int64) ([]item.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]item.Item, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if it, ok := r.s.st.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *ItemRepository) ListByMerchant(_ context.Context, merchantID int64) ([]item.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]item.Item, 0)
	for _, id := range sortedKeys(r.s.st.items) {
		if it := r.s.st.items[id]; it.MerchantID == merchantID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *ItemRepository) Create(_ context.Context, it *item.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.st.merchants[it.MerchantID]; !ok {
		return errors.Errorf("insert item: merchant %d does not exist", it.MerchantID)
	}
	it.ID = r.s.st.next("items")
	r.s.st.items[it.ID] = *it
	return nil
}

// Delete removes the item and every invoice line referencing it.
func (r *ItemRepository) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.st.items[id]; !ok {
		return item.ErrNotFound
	}
	r.s.st.deleteItem(id)
	return nil
}

func (st *state) deleteItem(id int64) {
	delete(st.items, id)
	for lineID, l := range st.lines {
		if l.ItemID == id {
			delete(st.lines, lineID)
		}
	}
}

// CustomerRepository implements customer.Repository in memory.
type CustomerRepository struct {
	s *Store
}

func (r *CustomerRepository) Get(_ context.Context, id int64) (*customer.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.st.customers[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &c, nil
}

func (r *CustomerRepository) Create(_ context.Context, c *customer.Customer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c.ID = r.s.st.next("customers")
	r.s.st.customers[c.ID] = *c
	return nil
}
