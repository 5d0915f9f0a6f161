// Package catalog holds the fixed list of products a review can be about.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// NotSpecified is shown for reviews without a known product.
const NotSpecified = "Product not specified"

type Product struct {
	Code  string `yaml:"code"`
	Title string `yaml:"title"`
}

type Catalog struct {
	products []Product
	byCode   map[string]Product
}

var defaultProducts = []Product{
	{Code: "p1", Title: "Starter kit"},
	{Code: "p2", Title: "Standard plan"},
	{Code: "p3", Title: "Premium plan"},
	{Code: "p4", Title: "Gift card"},
	{Code: "p5", Title: "Home delivery"},
	{Code: "p6", Title: "Customer support"},
	{Code: "p7", Title: "Mobile app"},
}

// Default returns the built-in seven-item catalog.
func Default() *Catalog {
	c, err := New(defaultProducts)
	if err != nil {
		panic(err)
	}
	return c
}

// New validates products and builds a catalog. Codes must be non-empty and
// unique; they travel inside callback payloads, so keep them short.
func New(products []Product) (*Catalog, error) {
	if len(products) == 0 {
		return nil, errors.New("catalog: no products")
	}
	c := &Catalog{
		products: make([]Product, 0, len(products)),
		byCode:   make(map[string]Product, len(products)),
	}
	for i, p := range products {
		p.Code = strings.TrimSpace(p.Code)
		p.Title = strings.TrimSpace(p.Title)
		if p.Code == "" {
			return nil, fmt.Errorf("catalog: product %d has no code", i+1)
		}
		if len(p.Code) > 16 {
			return nil, fmt.Errorf("catalog: code %q longer than 16 bytes", p.Code)
		}
		if _, dup := c.byCode[p.Code]; dup {
			return nil, fmt.Errorf("catalog: duplicate code %q", p.Code)
		}
		if p.Title == "" {
			p.Title = p.Code
		}
		c.byCode[p.Code] = p
		c.products = append(c.products, p)
	}
	return c, nil
}

type file struct {
	Products []Product `yaml:"products"`
}

// LoadFile reads a YAML document of the form
//
//	products:
//	  - code: p1
//	    title: Starter kit
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return New(f.Products)
}

// Products returns the catalog in display order.
func (c *Catalog) Products() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

func (c *Catalog) Lookup(code string) (Product, bool) {
	p, ok := c.byCode[code]
	return p, ok
}

func (c *Catalog) Title(code string) string {
	if p, ok := c.byCode[code]; ok {
		return p.Title
	}
	return NotSpecified
}
