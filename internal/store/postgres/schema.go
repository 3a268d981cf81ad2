// Package postgres provides a PostgreSQL-backed implementation of
// [store.Store] over the point-of-sale tables (products, sales, customers,
// customer_transactions). The schema matches the hosted table store the POS
// front-end writes to, so the assistant can be pointed straight at it.
//
// Usage:
//
//	st, err := postgres.New(ctx, dsn, postgres.WithMigrate(true))
//	if err != nil { … }
//	defer st.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlProducts = `
CREATE TABLE IF NOT EXISTS products (
    id        TEXT              PRIMARY KEY,
    name      TEXT              NOT NULL,
    category  TEXT              NOT NULL DEFAULT '',
    price     DOUBLE PRECISION  NOT NULL DEFAULT 0,
    stock     INTEGER           NOT NULL DEFAULT 0,
    unit      TEXT              NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_products_name ON products (lower(name));
`

const ddlSales = `
CREATE TABLE IF NOT EXISTS sales (
    id     TEXT              PRIMARY KEY,
    date   TIMESTAMPTZ       NOT NULL DEFAULT now(),
    items  JSONB             NOT NULL DEFAULT '[]',
    total  DOUBLE PRECISION  NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sales_date ON sales (date);
`

const ddlCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    id       TEXT  PRIMARY KEY,
    name     TEXT  NOT NULL,
    contact  TEXT  NOT NULL DEFAULT '',
    address  TEXT  NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS customer_transactions (
    id           TEXT              PRIMARY KEY,
    customer_id  TEXT              NOT NULL REFERENCES customers (id) ON DELETE CASCADE,
    type         TEXT              NOT NULL CHECK (type IN ('CHARGE', 'DEPOSIT')),
    amount       DOUBLE PRECISION  NOT NULL DEFAULT 0,
    description  TEXT              NOT NULL DEFAULT '',
    date         TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_customer_transactions_customer_date
    ON customer_transactions (customer_id, date DESC);
`

// Migrate creates the tables and indexes if they do not already exist. It is
// idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlProducts, ddlSales, ddlCustomers} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
