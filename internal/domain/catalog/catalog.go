package catalog

import "time"

// Product is a flat read-only mirror of a remote catalog product. The cached
// set is replaced wholesale on every catalog sync, never merged.
type Product struct {
	ID            string
	Name          string
	SKU           string
	Barcode       string
	UnitPrice     float64
	MarkedPrice   float64
	CurrentStock  float64
	ReorderLevel  float64
	Unit          string
	CategoryID    string
	CategoryName  string
	GSTRate       float64
	ImageURL      string
	HasLocalImage bool
	UpdatedAt     time.Time
}

// InStock reports whether the product can be sold from cached stock.
func (p *Product) InStock() bool {
	return p.CurrentStock > 0
}

// Category mirrors a remote catalog category.
type Category struct {
	ID           string
	Name         string
	ProductCount int
	UpdatedAt    time.Time
}

// ProductImage is a locally cached image blob, keyed 1:1 by product id.
type ProductImage struct {
	ProductID string
	Data      []byte
	MimeType  string
	CachedAt  time.Time
}

// Filter narrows GetProducts results. Search matches name, sku and barcode
// case-insensitively as a substring.
type Filter struct {
	Search     string
	CategoryID string
}
