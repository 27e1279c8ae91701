package backoffice

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"git.cscs.ch/openchami/backoffice/pkg/client"
	"git.cscs.ch/openchami/backoffice/pkg/types"
)

const catalogPageSize = 100

// ProductLister lists products page by page.
type ProductLister interface {
	List(ctx context.Context, opts client.ListOptions) (*types.Page[types.Product], error)
}

// Catalog is the set of products an order line can refer to. It prices
// order drafts and names their lines.
type Catalog struct {
	mu       sync.RWMutex
	products map[int64]types.Product
	loaded   bool
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{products: make(map[int64]types.Product)}
}

// Load replaces the catalog with every product the lister returns.
func (c *Catalog) Load(ctx context.Context, lister ProductLister) error {
	products := make(map[int64]types.Product)
	for page := 1; ; page++ {
		result, err := lister.List(ctx, client.ListOptions{Page: page, Limit: catalogPageSize})
		if err != nil {
			return fmt.Errorf("loading product catalog: %w", err)
		}
		for _, p := range result.Items {
			products[p.ID] = p
		}
		if len(result.Items) == 0 || page >= result.PageCount {
			break
		}
	}

	c.mu.Lock()
	c.products = products
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// Loaded reports whether Load has succeeded at least once.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Put adds or replaces a product.
func (c *Catalog) Put(p types.Product) {
	c.mu.Lock()
	c.products[p.ID] = p
	c.mu.Unlock()
}

// Delete drops a product.
func (c *Catalog) Delete(id int64) {
	c.mu.Lock()
	delete(c.products, id)
	c.mu.Unlock()
}

// Lookup returns the product with the given ID.
func (c *Catalog) Lookup(id int64) (types.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	return p, ok
}

// Prices maps product IDs to unit prices.
func (c *Catalog) Prices() map[int64]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int64]float64, len(c.products))
	for id, p := range c.products {
		out[id] = float64(p.Price)
	}
	return out
}

// Products returns the catalog sorted by ID.
func (c *Catalog) Products() []types.Product {
	c.mu.RLock()
	out := make([]types.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
