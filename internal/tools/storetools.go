package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quilang-hardware/hardy/internal/store"
	"github.com/quilang-hardware/hardy/internal/tools/suggest"
	"github.com/quilang-hardware/hardy/pkg/live"
)

// Tool names as the agent sees them.
const (
	NameInventorySummary     = "getInventorySummary"
	NameLowStockAlerts       = "getLowStockAlerts"
	NameSalesPerformance     = "getSalesPerformance"
	NameSearchProduct        = "searchProduct"
	NameCustomerDebt         = "getCustomerDebt"
	NameCustomerTransactions = "getCustomerTransactions"
)

// StoreConfig tunes the store tool set. Zero values take the defaults.
type StoreConfig struct {
	// LowStockThreshold: products with stock strictly below it are low.
	// Default: 50.
	LowStockThreshold int

	// RecentTransactions is how many ledger entries getCustomerTransactions
	// returns. Default: 5.
	RecentTransactions int

	// RevenueTarget decides the sales pep talk. Default: 10000.
	RevenueTarget float64

	// Location renders transaction dates. Default: [time.Local].
	Location *time.Location

	// Matcher proposes a close customer name when a lookup misses. Default:
	// [suggest.New].
	Matcher *suggest.Matcher

	// DeclaredMax is each tool's latency budget. Default: 3s.
	DeclaredMax time.Duration
}

func (c *StoreConfig) defaults() {
	if c.LowStockThreshold <= 0 {
		c.LowStockThreshold = 50
	}
	if c.RecentTransactions <= 0 {
		c.RecentTransactions = 5
	}
	if c.RevenueTarget <= 0 {
		c.RevenueTarget = 10000
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Matcher == nil {
		c.Matcher = suggest.New()
	}
	if c.DeclaredMax <= 0 {
		c.DeclaredMax = 3 * time.Second
	}
}

// ForStore returns the six read-only tools backed by st.
func ForStore(st store.Store, cfg StoreConfig) []Tool {
	cfg.defaults()
	h := &storeTools{st: st, cfg: cfg}

	nameQuery := func(desc string) map[string]any {
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"nameQuery": map[string]any{"type": "string", "description": desc},
			},
			"required": []string{"nameQuery"},
		}
	}

	return []Tool{
		{
			Definition: live.ToolDefinition{
				Name:        NameInventorySummary,
				Description: "Get a summary of all items in the inventory, their stock levels, and prices.",
			},
			Handler:     h.inventorySummary,
			DeclaredMax: cfg.DeclaredMax,
		},
		{
			Definition: live.ToolDefinition{
				Name:        NameLowStockAlerts,
				Description: fmt.Sprintf("Get a list of items that have low stock (less than %d).", cfg.LowStockThreshold),
			},
			Handler:     h.lowStockAlerts,
			DeclaredMax: cfg.DeclaredMax,
		},
		{
			Definition: live.ToolDefinition{
				Name:        NameSalesPerformance,
				Description: "Get the total revenue, total sales count, and recent sales data.",
			},
			Handler:     h.salesPerformance,
			DeclaredMax: cfg.DeclaredMax,
		},
		{
			Definition: live.ToolDefinition{
				Name:        NameSearchProduct,
				Description: "Search for a specific product price and stock by name.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{"type": "string", "description": "The product name to search for"},
					},
					"required": []string{"query"},
				},
			},
			Handler:     h.searchProduct,
			DeclaredMax: cfg.DeclaredMax,
		},
		{
			Definition: live.ToolDefinition{
				Name:        NameCustomerDebt,
				Description: "Search for a customer/builder by name and get their financial summary: current balance, total charges, and total deposits.",
				Parameters:  nameQuery("The customer or builder name to search"),
			},
			Handler:     h.customerDebt,
			DeclaredMax: cfg.DeclaredMax,
		},
		{
			Definition: live.ToolDefinition{
				Name:        NameCustomerTransactions,
				Description: "Get the recent transaction history (charges and payments) for a specific customer/builder.",
				Parameters:  nameQuery("The customer or builder name to search"),
			},
			Handler:     h.customerTransactions,
			DeclaredMax: cfg.DeclaredMax,
		},
	}
}

type storeTools struct {
	st  store.Store
	cfg StoreConfig
}

func (h *storeTools) inventorySummary(ctx context.Context, _ map[string]any) (map[string]any, error) {
	products, err := h.st.Products(ctx)
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(products))
	for i, p := range products {
		parts[i] = fmt.Sprintf("%s: %d %s @ ₱%s", p.Name, p.Stock, p.Unit, plainNumber(p.Price))
	}
	return map[string]any{"summary": strings.Join(parts, ", ")}, nil
}

func (h *storeTools) lowStockAlerts(ctx context.Context, _ map[string]any) (map[string]any, error) {
	products, err := h.st.LowStock(ctx, h.cfg.LowStockThreshold)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return map[string]any{"lowStockItems": "No items are low on stock."}, nil
	}
	parts := make([]string, len(products))
	for i, p := range products {
		parts[i] = fmt.Sprintf("%s (%d left)", p.Name, p.Stock)
	}
	return map[string]any{"lowStockItems": strings.Join(parts, ", ")}, nil
}

func (h *storeTools) salesPerformance(ctx context.Context, _ map[string]any) (map[string]any, error) {
	sales, err := h.st.Sales(ctx)
	if err != nil {
		return nil, err
	}
	var revenue float64
	for _, s := range sales {
		revenue += s.Total
	}
	msg := "Need more push Boss."
	if revenue > h.cfg.RevenueTarget {
		msg = "Nakasta nay Boss! Good profit today."
	}
	return map[string]any{
		"totalRevenue":    peso(revenue),
		"totalSalesCount": len(sales),
		"message":         msg,
	}, nil
}

func (h *storeTools) searchProduct(ctx context.Context, args map[string]any) (map[string]any, error) {
	q, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	products, err := h.st.SearchProducts(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return map[string]any{"found": "No item found"}, nil
	}
	return map[string]any{"found": products}, nil
}

func (h *storeTools) customerDebt(ctx context.Context, args map[string]any) (map[string]any, error) {
	c, miss, err := h.findCustomer(ctx, args)
	if err != nil || miss != nil {
		return miss, err
	}
	txs, err := h.st.Transactions(ctx, c.ID, 0)
	if err != nil {
		return nil, err
	}
	charges, deposits, balance := store.Balance(txs)

	status, msg := "Fully Paid / In Credit", "Ayos, good payer si Boss."
	if balance > 0 {
		status, msg = "Has Debt (Utang)", "Kailangan na maningil Boss!"
	}
	return map[string]any{
		"name":           c.Name,
		"totalCharges":   peso(charges),
		"totalDeposits":  peso(deposits),
		"currentBalance": peso(abs(balance)),
		"balance":        balance,
		"status":         status,
		"message":        msg,
	}, nil
}

func (h *storeTools) customerTransactions(ctx context.Context, args map[string]any) (map[string]any, error) {
	c, miss, err := h.findCustomer(ctx, args)
	if err != nil || miss != nil {
		return miss, err
	}
	txs, err := h.st.Transactions(ctx, c.ID, h.cfg.RecentTransactions)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return map[string]any{"customer": c.Name, "recentTransactions": "No recent transactions."}, nil
	}
	lines := make([]string, len(txs))
	for i, t := range txs {
		lines[i] = fmt.Sprintf("%s: %s ₱%s (%s)",
			t.Date.In(h.cfg.Location).Format(time.DateOnly), t.Type, plainNumber(t.Amount), t.Description)
	}
	return map[string]any{"customer": c.Name, "recentTransactions": lines}, nil
}

// findCustomer resolves the nameQuery argument to the first matching
// customer. When nothing matches, miss holds the not-found payload, with a
// "didYouMean" hint if a similar name exists.
func (h *storeTools) findCustomer(ctx context.Context, args map[string]any) (c store.Customer, miss map[string]any, err error) {
	q, err := stringArg(args, "nameQuery")
	if err != nil {
		return store.Customer{}, nil, err
	}
	found, err := h.st.SearchCustomers(ctx, q)
	if err != nil {
		return store.Customer{}, nil, err
	}
	if len(found) > 0 {
		return found[0], nil, nil
	}

	miss = map[string]any{"error": "Customer not found."}
	all, err := h.st.Customers(ctx)
	if err != nil {
		// The lookup itself succeeded; a failed hint is not worth an error.
		return store.Customer{}, miss, nil
	}
	names := make([]string, len(all))
	for i, cu := range all {
		names[i] = cu.Name
	}
	if name, _, ok := h.cfg.Matcher.Closest(q, names); ok {
		miss["didYouMean"] = name
	}
	return store.Customer{}, miss, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
