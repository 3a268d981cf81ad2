// Package mock provides a configurable test double for [store.Store].
//
// [Store] delegates to an inner store (an empty memstore by default) and
// records every method call. Setting Err makes every query fail; Block makes
// queries wait until the channel is closed or the context ends.
//
// Typical usage:
//
//	st := &mock.Store{Inner: memstore.New(store.DefaultDataset())}
//	st.SetErr(errors.New("connection refused"))
//
//	// inject st into the system under test …
//
//	if got := st.CallCount("Products"); got != 1 {
//	    t.Errorf("expected 1 Products call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/quilang-hardware/hardy/internal/store"
	"github.com/quilang-hardware/hardy/internal/store/memstore"
)

var _ store.Store = (*Store)(nil)

// Store is a test double for [store.Store]. It is safe for concurrent use.
type Store struct {
	// Inner answers queries when no error is configured. Nil means an empty
	// store.
	Inner store.Store

	// Block, when non-nil, holds every query until it is closed or ctx ends.
	Block chan struct{}

	mu     sync.Mutex
	err    error
	calls  []string
	closed int
}

// SetErr makes every subsequent query return err. Nil restores success.
func (s *Store) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls returns the method names invoked so far, in order.
func (s *Store) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many times method was invoked.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == method {
			n++
		}
	}
	return n
}

// CloseCount returns how many times Close was called.
func (s *Store) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) enter(ctx context.Context, method string) (store.Store, error) {
	s.mu.Lock()
	s.calls = append(s.calls, method)
	err, inner, block := s.err, s.Inner, s.Block
	if inner == nil {
		inner = memstore.New(nil)
		s.Inner = inner
	}
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return inner, err
}

// Products implements [store.Store].
func (s *Store) Products(ctx context.Context) ([]store.Product, error) {
	inner, err := s.enter(ctx, "Products")
	if err != nil {
		return nil, err
	}
	return inner.Products(ctx)
}

// LowStock implements [store.Store].
func (s *Store) LowStock(ctx context.Context, threshold int) ([]store.Product, error) {
	inner, err := s.enter(ctx, "LowStock")
	if err != nil {
		return nil, err
	}
	return inner.LowStock(ctx, threshold)
}

// SearchProducts implements [store.Store].
func (s *Store) SearchProducts(ctx context.Context, query string) ([]store.Product, error) {
	inner, err := s.enter(ctx, "SearchProducts")
	if err != nil {
		return nil, err
	}
	return inner.SearchProducts(ctx, query)
}

// Sales implements [store.Store].
func (s *Store) Sales(ctx context.Context) ([]store.Sale, error) {
	inner, err := s.enter(ctx, "Sales")
	if err != nil {
		return nil, err
	}
	return inner.Sales(ctx)
}

// Customers implements [store.Store].
func (s *Store) Customers(ctx context.Context) ([]store.Customer, error) {
	inner, err := s.enter(ctx, "Customers")
	if err != nil {
		return nil, err
	}
	return inner.Customers(ctx)
}

// SearchCustomers implements [store.Store].
func (s *Store) SearchCustomers(ctx context.Context, query string) ([]store.Customer, error) {
	inner, err := s.enter(ctx, "SearchCustomers")
	if err != nil {
		return nil, err
	}
	return inner.SearchCustomers(ctx, query)
}

// Transactions implements [store.Store].
func (s *Store) Transactions(ctx context.Context, customerID string, limit int) ([]store.Transaction, error) {
	inner, err := s.enter(ctx, "Transactions")
	if err != nil {
		return nil, err
	}
	return inner.Transactions(ctx, customerID, limit)
}

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.enter(ctx, "Ping")
	return err
}

// Close implements [store.Store].
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}
