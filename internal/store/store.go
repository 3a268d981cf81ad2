// Package store defines the read-only view of the hardware store's data that
// the voice assistant's tools query: products, sales, customers and the
// customer charge/deposit ledger.
//
// Backends live in sub-packages: memstore (seeded in-process data), postgres
// (the hosted table store) and sqlite (a local file). All implementations must
// be safe for concurrent use.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a lookup by ID matches nothing.
var ErrNotFound = errors.New("store: not found")

// TxType classifies a ledger entry.
type TxType string

const (
	// TxCharge records goods taken on credit; it increases the balance owed.
	TxCharge TxType = "CHARGE"

	// TxDeposit records a payment; it decreases the balance owed.
	TxDeposit TxType = "DEPOSIT"
)

// IsValid reports whether t is a known ledger type.
func (t TxType) IsValid() bool { return t == TxCharge || t == TxDeposit }

// Product is one inventory line.
type Product struct {
	ID       string  `json:"id" yaml:"id"`
	Name     string  `json:"name" yaml:"name"`
	Category string  `json:"category" yaml:"category"`
	Price    float64 `json:"price" yaml:"price"`
	Stock    int     `json:"stock" yaml:"stock"`
	Unit     string  `json:"unit" yaml:"unit"`
}

// Sale is one completed checkout.
type Sale struct {
	ID    string    `json:"id" yaml:"id"`
	Date  time.Time `json:"date" yaml:"date"`
	Total float64   `json:"total" yaml:"total"`
}

// Customer is a builder or account holder in the ledger.
type Customer struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Contact string `json:"contact" yaml:"contact"`
	Address string `json:"address" yaml:"address"`
}

// Transaction is one ledger entry against a customer.
type Transaction struct {
	ID          string    `json:"id" yaml:"id"`
	CustomerID  string    `json:"customerId" yaml:"customer_id"`
	Type        TxType    `json:"type" yaml:"type"`
	Amount      float64   `json:"amount" yaml:"amount"`
	Description string    `json:"description" yaml:"description"`
	Date        time.Time `json:"date" yaml:"date"`
}

// Store is the query capability the tools need. Name searches are
// case-insensitive substring matches. Results are ordered by name (then ID)
// unless stated otherwise, so "first match" is deterministic across backends.
type Store interface {
	// Products returns every product.
	Products(ctx context.Context) ([]Product, error)

	// LowStock returns products whose stock is strictly below threshold.
	LowStock(ctx context.Context, threshold int) ([]Product, error)

	// SearchProducts returns products whose name contains query.
	SearchProducts(ctx context.Context, query string) ([]Product, error)

	// Sales returns every sale, newest first.
	Sales(ctx context.Context) ([]Sale, error)

	// Customers returns every customer.
	Customers(ctx context.Context) ([]Customer, error)

	// SearchCustomers returns customers whose name contains query.
	SearchCustomers(ctx context.Context, query string) ([]Customer, error)

	// Transactions returns the customer's ledger entries, newest first. A
	// positive limit caps the number of entries returned.
	Transactions(ctx context.Context, customerID string, limit int) ([]Transaction, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}

// Importer is implemented by stores that accept seed data. Records whose ID
// already exists are left untouched.
type Importer interface {
	Import(ctx context.Context, ds *Dataset) error
}

// Balance sums a ledger: charges minus deposits.
func Balance(txs []Transaction) (charges, deposits, balance float64) {
	for _, t := range txs {
		switch t.Type {
		case TxCharge:
			charges += t.Amount
		case TxDeposit:
			deposits += t.Amount
		}
	}
	return charges, deposits, charges - deposits
}

// ContainsFold reports whether name contains query, ignoring case. An empty
// query matches everything.
func ContainsFold(name, query string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(query))
}

// LikePattern turns query into a SQL LIKE pattern matching it as a substring,
// escaping LIKE metacharacters with a backslash.
func LikePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}
