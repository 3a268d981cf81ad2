package store

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Dataset is a full snapshot of store records, used to seed a backend.
//
// Example seed file:
//
//	products:
//	  - id: "1"
//	    name: Portland Cement
//	    category: Masonry
//	    price: 230
//	    stock: 500
//	    unit: bag
//	customers:
//	  - id: c1
//	    name: Juan dela Cruz
//	transactions:
//	  - id: t1
//	    customer_id: c1
//	    type: CHARGE
//	    amount: 1000
//	    date: 2025-01-10T09:00:00Z
type Dataset struct {
	Products     []Product     `yaml:"products"`
	Sales        []Sale        `yaml:"sales"`
	Customers    []Customer    `yaml:"customers"`
	Transactions []Transaction `yaml:"transactions"`
}

// DefaultInventory returns the store's opening inventory.
func DefaultInventory() []Product {
	return []Product{
		{ID: "1", Name: "Portland Cement", Category: "Masonry", Price: 230, Stock: 500, Unit: "bag"},
		{ID: "2", Name: "Deformed Bar 10mm", Category: "Steel", Price: 185, Stock: 1000, Unit: "pc"},
		{ID: "3", Name: "Deformed Bar 12mm", Category: "Steel", Price: 265, Stock: 800, Unit: "pc"},
		{ID: "4", Name: "Coco Lumber 2x2x10", Category: "Wood", Price: 85, Stock: 200, Unit: "pc"},
		{ID: "5", Name: "Plywood 1/4 Marine", Category: "Wood", Price: 450, Stock: 150, Unit: "sht"},
		{ID: "6", Name: "Red Oxide Primer", Category: "Paint", Price: 120, Stock: 50, Unit: "gal"},
		{ID: "7", Name: "G.I. Sheet GA 26", Category: "Roofing", Price: 380, Stock: 300, Unit: "pc"},
		{ID: "8", Name: `Common Wire Nails 4"`, Category: "Hardware", Price: 65, Stock: 100, Unit: "kg"},
	}
}

// DefaultDataset returns a dataset holding only [DefaultInventory].
func DefaultDataset() *Dataset {
	return &Dataset{Products: DefaultInventory()}
}

// LoadDataset reads and parses a seed YAML file from disk.
func LoadDataset(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open seed file %q: %w", path, err)
	}
	defer f.Close()

	ds, err := LoadDatasetFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("store: parse seed file %q: %w", path, err)
	}
	return ds, nil
}

// LoadDatasetFromReader parses seed YAML from r and validates it.
func LoadDatasetFromReader(r io.Reader) (*Dataset, error) {
	var ds Dataset
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&ds); err != nil && err != io.EOF {
		return nil, fmt.Errorf("store: decode seed yaml: %w", err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Validate checks IDs are present and unique per table and that every
// transaction references a known customer with a known type.
func (ds *Dataset) Validate() error {
	seen := make(map[string]bool)
	check := func(table, id string) error {
		if id == "" {
			return fmt.Errorf("store: %s: empty id", table)
		}
		key := table + "/" + id
		if seen[key] {
			return fmt.Errorf("store: %s: duplicate id %q", table, id)
		}
		seen[key] = true
		return nil
	}
	for _, p := range ds.Products {
		if err := check("products", p.ID); err != nil {
			return err
		}
	}
	for _, s := range ds.Sales {
		if err := check("sales", s.ID); err != nil {
			return err
		}
	}
	for _, c := range ds.Customers {
		if err := check("customers", c.ID); err != nil {
			return err
		}
	}
	for _, t := range ds.Transactions {
		if err := check("customer_transactions", t.ID); err != nil {
			return err
		}
		if !seen["customers/"+t.CustomerID] {
			return fmt.Errorf("store: transaction %q: unknown customer %q", t.ID, t.CustomerID)
		}
		if !t.Type.IsValid() {
			return fmt.Errorf("store: transaction %q: invalid type %q", t.ID, t.Type)
		}
	}
	return nil
}
