// Package sqlite provides a single-file [store.Store] for counters that run
// without network access to the hosted database. It uses the pure-Go
// modernc.org/sqlite driver, so no cgo toolchain is needed.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/quilang-hardware/hardy/internal/store"
)

// Compile-time interface check.
var (
	_ store.Store    = (*Store)(nil)
	_ store.Importer = (*Store)(nil)
)

// timeLayout is fixed-width so lexical order in SQL equals time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const ddl = `
CREATE TABLE IF NOT EXISTS products (
    id        TEXT     PRIMARY KEY,
    name      TEXT     NOT NULL,
    category  TEXT     NOT NULL DEFAULT '',
    price     REAL     NOT NULL DEFAULT 0,
    stock     INTEGER  NOT NULL DEFAULT 0,
    unit      TEXT     NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sales (
    id     TEXT  PRIMARY KEY,
    date   TEXT  NOT NULL,
    total  REAL  NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS customers (
    id       TEXT  PRIMARY KEY,
    name     TEXT  NOT NULL,
    contact  TEXT  NOT NULL DEFAULT '',
    address  TEXT  NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS customer_transactions (
    id           TEXT  PRIMARY KEY,
    customer_id  TEXT  NOT NULL REFERENCES customers (id) ON DELETE CASCADE,
    type         TEXT  NOT NULL CHECK (type IN ('CHARGE', 'DEPOSIT')),
    amount       REAL  NOT NULL DEFAULT 0,
    description  TEXT  NOT NULL DEFAULT '',
    date         TEXT  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_customer_transactions_customer_date
    ON customer_transactions (customer_id, date);
`

// Store is a [store.Store] backed by a SQLite database file.
type Store struct {
	db        *sql.DB
	closeOnce sync.Once
	closeErr  error
}

// Open opens (creating if needed) the database at path and migrates the
// schema. Pass ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open %q: %w", path, err)
	}
	// A single connection avoids SQLITE_BUSY and keeps ":memory:" coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

const productColumns = "id, name, category, price, stock, unit"

// Products implements [store.Store.Products].
func (s *Store) Products(ctx context.Context) ([]store.Product, error) {
	return s.queryProducts(ctx, "products",
		"SELECT "+productColumns+" FROM products ORDER BY name, id")
}

// LowStock implements [store.Store.LowStock].
func (s *Store) LowStock(ctx context.Context, threshold int) ([]store.Product, error) {
	return s.queryProducts(ctx, "low stock",
		"SELECT "+productColumns+" FROM products WHERE stock < ? ORDER BY name, id", threshold)
}

// SearchProducts implements [store.Store.SearchProducts]. SQLite's LIKE is
// case-insensitive for ASCII.
func (s *Store) SearchProducts(ctx context.Context, query string) ([]store.Product, error) {
	return s.queryProducts(ctx, "search products",
		"SELECT "+productColumns+` FROM products WHERE name LIKE ? ESCAPE '\' ORDER BY name, id`,
		store.LikePattern(query))
}

func (s *Store) queryProducts(ctx context.Context, op, q string, args ...any) ([]store.Product, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: %s: %w", op, err)
	}
	defer rows.Close()

	var out []store.Product
	for rows.Next() {
		var p store.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Stock, &p.Unit); err != nil {
			return nil, fmt.Errorf("sqlite store: %s: scan: %w", op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: %s: %w", op, err)
	}
	return out, nil
}

// Sales implements [store.Store.Sales].
func (s *Store) Sales(ctx context.Context) ([]store.Sale, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, date, total FROM sales ORDER BY date DESC, id")
	if err != nil {
		return nil, fmt.Errorf("sqlite store: sales: %w", err)
	}
	defer rows.Close()

	var out []store.Sale
	for rows.Next() {
		var (
			sale store.Sale
			date string
		)
		if err := rows.Scan(&sale.ID, &date, &sale.Total); err != nil {
			return nil, fmt.Errorf("sqlite store: sales: scan: %w", err)
		}
		if sale.Date, err = parseTime(date); err != nil {
			return nil, fmt.Errorf("sqlite store: sales: %w", err)
		}
		out = append(out, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: sales: %w", err)
	}
	return out, nil
}

// Customers implements [store.Store.Customers].
func (s *Store) Customers(ctx context.Context) ([]store.Customer, error) {
	return s.SearchCustomers(ctx, "")
}

// SearchCustomers implements [store.Store.SearchCustomers].
func (s *Store) SearchCustomers(ctx context.Context, query string) ([]store.Customer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, contact, address FROM customers WHERE name LIKE ? ESCAPE '\' ORDER BY name, id`,
		store.LikePattern(query))
	if err != nil {
		return nil, fmt.Errorf("sqlite store: search customers: %w", err)
	}
	defer rows.Close()

	var out []store.Customer
	for rows.Next() {
		var c store.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Contact, &c.Address); err != nil {
			return nil, fmt.Errorf("sqlite store: search customers: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: search customers: %w", err)
	}
	return out, nil
}

// Transactions implements [store.Store.Transactions].
func (s *Store) Transactions(ctx context.Context, customerID string, limit int) ([]store.Transaction, error) {
	q := `SELECT id, customer_id, type, amount, description, date
FROM   customer_transactions
WHERE  customer_id = ?
ORDER  BY date DESC, id`
	args := []any{customerID}
	if limit > 0 {
		q += "\nLIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: transactions: %w", err)
	}
	defer rows.Close()

	var out []store.Transaction
	for rows.Next() {
		var (
			t         store.Transaction
			typ, date string
		)
		if err := rows.Scan(&t.ID, &t.CustomerID, &typ, &t.Amount, &t.Description, &date); err != nil {
			return nil, fmt.Errorf("sqlite store: transactions: scan: %w", err)
		}
		t.Type = store.TxType(typ)
		if t.Date, err = parseTime(date); err != nil {
			return nil, fmt.Errorf("sqlite store: transactions: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: transactions: %w", err)
	}
	return out, nil
}

// Import inserts every record of ds in one transaction, skipping IDs that
// already exist.
func (s *Store) Import(ctx context.Context, ds *store.Dataset) (err error) {
	if ds == nil {
		return errors.New("sqlite store: import: nil dataset")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite store: import: begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback() //nolint:errcheck // original error wins
		}
	}()

	exec := func(q string, args ...any) error {
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("sqlite store: import: %w", err)
		}
		return nil
	}
	for _, p := range ds.Products {
		if err := exec(`INSERT OR IGNORE INTO products (id, name, category, price, stock, unit) VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.Category, p.Price, p.Stock, p.Unit); err != nil {
			return err
		}
	}
	for _, sale := range ds.Sales {
		if err := exec(`INSERT OR IGNORE INTO sales (id, date, total) VALUES (?, ?, ?)`,
			sale.ID, formatTime(sale.Date), sale.Total); err != nil {
			return err
		}
	}
	for _, c := range ds.Customers {
		if err := exec(`INSERT OR IGNORE INTO customers (id, name, contact, address) VALUES (?, ?, ?, ?)`,
			c.ID, c.Name, c.Contact, c.Address); err != nil {
			return err
		}
	}
	for _, t := range ds.Transactions {
		if err := exec(`INSERT OR IGNORE INTO customer_transactions (id, customer_id, type, amount, description, date) VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, t.CustomerID, string(t.Type), t.Amount, t.Description, formatTime(t.Date)); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite store: import: commit: %w", err)
	}
	return nil
}

// Ping implements [store.Store.Ping].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite store: ping: %w", err)
	}
	return nil
}

// Close implements [store.Store.Close]. It is safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.db.Close() })
	return s.closeErr
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		// Rows written by other tools may use plain RFC 3339.
		if t2, err2 := time.Parse(time.RFC3339Nano, v); err2 == nil {
			return t2, nil
		}
		return time.Time{}, fmt.Errorf("parse time %q: %w", v, err)
	}
	return t, nil
}
