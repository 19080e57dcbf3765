package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/little-shop/internal/domain/customer"
	"github.com/xenking/little-shop/internal/domain/item"
)

const (
	itemColumns = `id, merchant_id, name, description, unit_price`

	getItemSQL = `SELECT ` + itemColumns + ` FROM items WHERE id = $1`

	getItemsByIDsSQL = `SELECT ` + itemColumns + ` FROM items WHERE id = ANY($1) ORDER BY id`

	listMerchantItemsSQL = `SELECT ` + itemColumns + ` FROM items WHERE merchant_id = $1 ORDER BY id`

	insertItemSQL = `INSERT INTO items (merchant_id, name, description, unit_price)
		VALUES ($1, $2, $3, $4) RETURNING id`

	deleteItemSQL = `DELETE FROM items WHERE id = $1`

	getCustomerSQL = `SELECT id, first_name, last_name FROM customers WHERE id = $1`

	insertCustomerSQL = `INSERT INTO customers (first_name, last_name) VALUES ($1, $2) RETURNING id`
)

var (
	_ item.Repository     = (*ItemRepository)(nil)
	_ customer.Repository = (*CustomerRepository)(nil)
)

// ItemRepository implements item.Repository backed by PostgreSQL.
type ItemRepository struct {
	pool *pgxpool.Pool
}

// NewItemRepository returns an ItemRepository that uses the given pool.
func NewItemRepository(pool *pgxpool.Pool) *ItemRepository {
	return &ItemRepository{pool: pool}
}

func (r *ItemRepository) Get(ctx context.Context, id int64) (*item.Item, error) {
	rows, err := r.pool.Query(ctx, getItemSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting item %d: %w", id, err)
	}

	it, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, item.ErrNotFound
		}
		return nil, fmt.Errorf("getting item %d: %w", id, err)
	}
	return &it, nil
}

// GetByIDs fetches the items among ids in a single query. Missing ids are
// skipped.
func (r *ItemRepository) GetByIDs(ctx context.Context, ids []int64) ([]item.Item, error) {
	rows, err := r.pool.Query(ctx, getItemsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting items by ids: %w", err)
	}

	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("scanning items: %w", err)
	}
	return items, nil
}

func (r *ItemRepository) ListByMerchant(ctx context.Context, merchantID int64) ([]item.Item, error) {
	rows, err := r.pool.Query(ctx, listMerchantItemsSQL, merchantID)
	if err != nil {
		return nil, fmt.Errorf("listing items of merchant %d: %w", merchantID, err)
	}

	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("scanning items: %w", err)
	}
	return items, nil
}

func (r *ItemRepository) Create(ctx context.Context, it *item.Item) error {
	err := r.pool.QueryRow(ctx, insertItemSQL, it.MerchantID, it.Name, it.Description, it.UnitPrice).Scan(&it.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.Wrapf(err, "merchant %d", it.MerchantID)
		}
		return fmt.Errorf("inserting item: %w", err)
	}
	return nil
}

// Delete removes the item. Invoice items referencing it cascade.
func (r *ItemRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteItemSQL, id)
	if err != nil {
		return fmt.Errorf("deleting item %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return item.ErrNotFound
	}
	return nil
}

func scanItem(row pgx.CollectableRow) (item.Item, error) {
	var it item.Item
	err := row.Scan(&it.ID, &it.MerchantID, &it.Name, &it.Description, &it.UnitPrice)
	return it, err
}

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

func (r *CustomerRepository) Get(ctx context.Context, id int64) (*customer.Customer, error) {
	var c customer.Customer
	err := r.pool.QueryRow(ctx, getCustomerSQL, id).Scan(&c.ID, &c.FirstName, &c.LastName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %d: %w", id, err)
	}
	return &c, nil
}

func (r *CustomerRepository) Create(ctx context.Context, c *customer.Customer) error {
	if err := r.pool.QueryRow(ctx, insertCustomerSQL, c.FirstName, c.LastName).Scan(&c.ID); err != nil {
		return fmt.Errorf("inserting customer: %w", err)
	}
	return nil
}
