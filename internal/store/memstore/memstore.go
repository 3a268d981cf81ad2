// Package memstore provides an in-process, read-mostly implementation of
// [store.Store], seeded from a [store.Dataset].
package memstore

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/quilang-hardware/hardy/internal/store"
)

// Compile-time assertions that Store satisfies the store interfaces.
var (
	_ store.Store    = (*Store)(nil)
	_ store.Importer = (*Store)(nil)
)

// Store is a thread-safe in-memory store. The zero value is an empty store
// ready to use.
type Store struct {
	mu        sync.RWMutex
	products  []store.Product
	sales     []store.Sale
	customers []store.Customer
	txs       map[string][]store.Transaction // keyed by customer ID
	pingErr   error
}

// New returns a Store holding a copy of ds. A nil ds yields an empty store.
func New(ds *store.Dataset) *Store {
	s := &Store{txs: make(map[string][]store.Transaction)}
	if ds == nil {
		return s
	}
	s.products = slices.Clone(ds.Products)
	s.sales = slices.Clone(ds.Sales)
	s.customers = slices.Clone(ds.Customers)
	for _, t := range ds.Transactions {
		s.txs[t.CustomerID] = append(s.txs[t.CustomerID], t)
	}
	return s
}

// AddProduct appends p.
func (s *Store) AddProduct(p store.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append(s.products, p)
}

// AddSale appends sale.
func (s *Store) AddSale(sale store.Sale) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = append(s.sales, sale)
}

// AddCustomer appends c.
func (s *Store) AddCustomer(c store.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers = append(s.customers, c)
}

// AddTransaction appends t to its customer's ledger.
func (s *Store) AddTransaction(t store.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txs == nil {
		s.txs = make(map[string][]store.Transaction)
	}
	s.txs[t.CustomerID] = append(s.txs[t.CustomerID], t)
}

// Import adds every record of ds whose ID is not yet present.
func (s *Store) Import(ctx context.Context, ds *store.Dataset) error {
	if ds == nil {
		return errors.New("memstore: import: nil dataset")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txs == nil {
		s.txs = make(map[string][]store.Transaction)
	}

	s.products = appendNew(s.products, ds.Products, func(p store.Product) string { return p.ID })
	s.sales = appendNew(s.sales, ds.Sales, func(v store.Sale) string { return v.ID })
	s.customers = appendNew(s.customers, ds.Customers, func(c store.Customer) string { return c.ID })

	seen := make(map[string]bool)
	for _, txs := range s.txs {
		for _, t := range txs {
			seen[t.ID] = true
		}
	}
	for _, t := range ds.Transactions {
		if !seen[t.ID] {
			seen[t.ID] = true
			s.txs[t.CustomerID] = append(s.txs[t.CustomerID], t)
		}
	}
	return nil
}

func appendNew[T any](dst, src []T, id func(T) string) []T {
	seen := make(map[string]bool, len(dst))
	for _, v := range dst {
		seen[id(v)] = true
	}
	for _, v := range src {
		if !seen[id(v)] {
			seen[id(v)] = true
			dst = append(dst, v)
		}
	}
	return dst
}

// SetPingError makes subsequent Ping calls return err. Useful for exercising
// readiness reporting.
func (s *Store) SetPingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

// Products implements [store.Store.Products].
func (s *Store) Products(ctx context.Context) ([]store.Product, error) {
	return s.filterProducts(ctx, func(store.Product) bool { return true })
}

// LowStock implements [store.Store.LowStock].
func (s *Store) LowStock(ctx context.Context, threshold int) ([]store.Product, error) {
	return s.filterProducts(ctx, func(p store.Product) bool { return p.Stock < threshold })
}

// SearchProducts implements [store.Store.SearchProducts].
func (s *Store) SearchProducts(ctx context.Context, query string) ([]store.Product, error) {
	return s.filterProducts(ctx, func(p store.Product) bool { return store.ContainsFold(p.Name, query) })
}

func (s *Store) filterProducts(ctx context.Context, keep func(store.Product) bool) ([]store.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Product, 0, len(s.products))
	for _, p := range s.products {
		if keep(p) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b store.Product) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// Sales implements [store.Store.Sales].
func (s *Store) Sales(ctx context.Context) ([]store.Sale, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := slices.Clone(s.sales)
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b store.Sale) int { return b.Date.Compare(a.Date) })
	return out, nil
}

// Customers implements [store.Store.Customers].
func (s *Store) Customers(ctx context.Context) ([]store.Customer, error) {
	return s.SearchCustomers(ctx, "")
}

// SearchCustomers implements [store.Store.SearchCustomers].
func (s *Store) SearchCustomers(ctx context.Context, query string) ([]store.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Customer, 0)
	for _, c := range s.customers {
		if store.ContainsFold(c.Name, query) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b store.Customer) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// Transactions implements [store.Store.Transactions].
func (s *Store) Transactions(ctx context.Context, customerID string, limit int) ([]store.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := slices.Clone(s.txs[customerID])
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b store.Transaction) int { return b.Date.Compare(a.Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping implements [store.Store.Ping].
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pingErr
}

// Close implements [store.Store.Close]. It is a no-op.
func (s *Store) Close() error { return nil }
