package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quilang-hardware/hardy/internal/store"
)

// Compile-time interface check.
var (
	_ store.Store    = (*Store)(nil)
	_ store.Importer = (*Store)(nil)
)

// Option configures a [Store].
type Option func(*options)

type options struct {
	migrate  bool
	maxConns int32
}

// WithMigrate runs [Migrate] after connecting.
func WithMigrate(on bool) Option {
	return func(o *options) { o.migrate = on }
}

// WithMaxConns caps the connection pool size. Zero keeps the pgx default.
func WithMaxConns(n int32) Option {
	return func(o *options) { o.maxConns = n }
}

// Store is a [store.Store] backed by a [pgxpool.Pool]. All methods are safe
// for concurrent use.
type Store struct {
	pool      *pgxpool.Pool
	closeOnce sync.Once
}

// New parses dsn, opens a pool, verifies connectivity and optionally migrates
// the schema.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	if o.maxConns > 0 {
		cfg.MaxConns = o.maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if o.migrate {
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres store: migrate: %w", err)
		}
	}
	return &Store{pool: pool}, nil
}

// Pool exposes the underlying pool, mainly for tests and admin tooling.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

const productColumns = "id, name, category, price, stock, unit"

// Products implements [store.Store.Products].
func (s *Store) Products(ctx context.Context) ([]store.Product, error) {
	return s.queryProducts(ctx, "products",
		"SELECT "+productColumns+" FROM products ORDER BY name, id")
}

// LowStock implements [store.Store.LowStock].
func (s *Store) LowStock(ctx context.Context, threshold int) ([]store.Product, error) {
	return s.queryProducts(ctx, "low stock",
		"SELECT "+productColumns+" FROM products WHERE stock < $1 ORDER BY name, id", threshold)
}

// SearchProducts implements [store.Store.SearchProducts].
func (s *Store) SearchProducts(ctx context.Context, query string) ([]store.Product, error) {
	return s.queryProducts(ctx, "search products",
		"SELECT "+productColumns+` FROM products WHERE name ILIKE $1 ESCAPE '\' ORDER BY name, id`,
		store.LikePattern(query))
}

func (s *Store) queryProducts(ctx context.Context, op, q string, args ...any) ([]store.Product, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: %s: %w", op, err)
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Product, error) {
		var p store.Product
		err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Stock, &p.Unit)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: %s: scan: %w", op, err)
	}
	return products, nil
}

// Sales implements [store.Store.Sales].
func (s *Store) Sales(ctx context.Context) ([]store.Sale, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, date, total FROM sales ORDER BY date DESC, id")
	if err != nil {
		return nil, fmt.Errorf("postgres store: sales: %w", err)
	}
	sales, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Sale, error) {
		var sale store.Sale
		err := row.Scan(&sale.ID, &sale.Date, &sale.Total)
		return sale, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: sales: scan: %w", err)
	}
	return sales, nil
}

// Customers implements [store.Store.Customers].
func (s *Store) Customers(ctx context.Context) ([]store.Customer, error) {
	return s.SearchCustomers(ctx, "")
}

// SearchCustomers implements [store.Store.SearchCustomers].
func (s *Store) SearchCustomers(ctx context.Context, query string) ([]store.Customer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, contact, address FROM customers WHERE name ILIKE $1 ESCAPE '\' ORDER BY name, id`,
		store.LikePattern(query))
	if err != nil {
		return nil, fmt.Errorf("postgres store: search customers: %w", err)
	}
	customers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Customer, error) {
		var c store.Customer
		err := row.Scan(&c.ID, &c.Name, &c.Contact, &c.Address)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: search customers: scan: %w", err)
	}
	return customers, nil
}

// Transactions implements [store.Store.Transactions].
func (s *Store) Transactions(ctx context.Context, customerID string, limit int) ([]store.Transaction, error) {
	q := `SELECT id, customer_id, type, amount, description, date
FROM   customer_transactions
WHERE  customer_id = $1
ORDER  BY date DESC, id`
	args := []any{customerID}
	if limit > 0 {
		q += "\nLIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: transactions: %w", err)
	}
	txs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Transaction, error) {
		var (
			t   store.Transaction
			typ string
		)
		if err := row.Scan(&t.ID, &t.CustomerID, &typ, &t.Amount, &t.Description, &t.Date); err != nil {
			return store.Transaction{}, err
		}
		t.Type = store.TxType(typ)
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: transactions: scan: %w", err)
	}
	return txs, nil
}

// Import upserts every record of ds in a single transaction. Existing rows
// with the same ID are left untouched.
func (s *Store) Import(ctx context.Context, ds *store.Dataset) error {
	if ds == nil {
		return errors.New("postgres store: import: nil dataset")
	}

	batch := &pgx.Batch{}
	for _, p := range ds.Products {
		batch.Queue(`INSERT INTO products (id, name, category, price, stock, unit)
VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
			p.ID, p.Name, p.Category, p.Price, p.Stock, p.Unit)
	}
	for _, sale := range ds.Sales {
		batch.Queue(`INSERT INTO sales (id, date, total) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
			sale.ID, sale.Date, sale.Total)
	}
	for _, c := range ds.Customers {
		batch.Queue(`INSERT INTO customers (id, name, contact, address) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`,
			c.ID, c.Name, c.Contact, c.Address)
	}
	for _, t := range ds.Transactions {
		batch.Queue(`INSERT INTO customer_transactions (id, customer_id, type, amount, description, date)
VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
			t.ID, t.CustomerID, string(t.Type), t.Amount, t.Description, t.Date)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: import: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres store: import: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: import: commit: %w", err)
	}
	return nil
}

// Ping implements [store.Store.Ping].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres store: ping: %w", err)
	}
	return nil
}

// Close implements [store.Store.Close]. It is safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(s.pool.Close)
	return nil
}
