package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/quilang-hardware/hardy/internal/store"
	"github.com/quilang-hardware/hardy/internal/store/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if HARDY_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("HARDY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HARDY_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a [postgres.Store] on a clean schema seeded with a
// small dataset.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	ctx := context.Background()

	st, err := postgres.New(ctx, testDSN(t), postgres.WithMigrate(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	for _, stmt := range []string{
		"TRUNCATE customer_transactions, customers, sales, products CASCADE",
	} {
		if _, err := st.Pool().Exec(ctx, stmt); err != nil {
			t.Fatalf("truncate: %v", err)
		}
	}

	day := func(d int) time.Time { return time.Date(2025, 1, d, 9, 0, 0, 0, time.UTC) }
	ds := &store.Dataset{
		Products: append(store.DefaultInventory(),
			store.Product{ID: "9", Name: "100% Silicone_Sealant", Stock: 10, Unit: "tube"}),
		Sales: []store.Sale{{ID: "s1", Date: day(1), Total: 4000}, {ID: "s2", Date: day(2), Total: 7000}},
		Customers: []store.Customer{
			{ID: "c1", Name: "Juan dela Cruz"},
			{ID: "c2", Name: "Pedro Builders"},
		},
		Transactions: []store.Transaction{
			{ID: "t1", CustomerID: "c1", Type: store.TxCharge, Amount: 1000, Date: day(1)},
			{ID: "t2", CustomerID: "c1", Type: store.TxDeposit, Amount: 400, Date: day(2)},
		},
	}
	if err := st.Import(ctx, ds); err != nil {
		t.Fatalf("Import: %v", err)
	}
	return st
}

func TestStore_Queries(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	found, err := st.SearchProducts(ctx, "cement")
	if err != nil || len(found) != 1 || found[0].Name != "Portland Cement" {
		t.Errorf("SearchProducts(cement) = %+v, %v", found, err)
	}

	// LIKE metacharacters in the query match literally.
	found, err = st.SearchProducts(ctx, "100%")
	if err != nil || len(found) != 1 {
		t.Errorf("SearchProducts(100%%) = %+v, %v", found, err)
	}
	found, _ = st.SearchProducts(ctx, "_")
	if len(found) != 1 {
		t.Errorf("SearchProducts(_) = %d items, want 1", len(found))
	}

	low, err := st.LowStock(ctx, 50)
	if err != nil || len(low) != 1 || low[0].ID != "9" {
		t.Errorf("LowStock = %+v, %v", low, err)
	}

	sales, err := st.Sales(ctx)
	if err != nil || len(sales) != 2 || sales[0].ID != "s2" {
		t.Errorf("Sales = %+v, %v", sales, err)
	}

	customers, err := st.SearchCustomers(ctx, "juan")
	if err != nil || len(customers) != 1 || customers[0].ID != "c1" {
		t.Fatalf("SearchCustomers = %+v, %v", customers, err)
	}

	txs, err := st.Transactions(ctx, "c1", 5)
	if err != nil || len(txs) != 2 || txs[0].ID != "t2" {
		t.Fatalf("Transactions = %+v, %v", txs, err)
	}
	if _, _, bal := store.Balance(txs); bal != 600 {
		t.Errorf("balance = %v, want 600", bal)
	}
}

func TestStore_ImportIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.Import(ctx, &store.Dataset{Products: store.DefaultInventory()}); err != nil {
		t.Fatalf("second Import: %v", err)
	}
	all, err := st.Products(ctx)
	if err != nil {
		t.Fatalf("Products: %v", err)
	}
	if len(all) != 9 {
		t.Errorf("Products = %d, want 9", len(all))
	}
	if err := st.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
