package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/erp/fulfillment/internal/domain/shared"
)

// Catalog is the validated store of SKU definitions.
// Reads are concurrent; definitions are replaced atomically.
type Catalog struct {
	mu   sync.RWMutex
	defs Definitions
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{defs: make(Definitions)}
}

// Define adds or replaces a definition.
// Bundle components and variant parents must already be defined, and a
// bundle may not (transitively) contain itself.
func (c *Catalog) Define(def Definition) (Definition, error) {
	def = def.clone()
	if err := def.validate(); err != nil {
		return Definition{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch def.Kind {
	case KindVariant:
		parent, ok := c.defs[def.ParentSKU]
		if !ok {
			return Definition{}, &UnknownSKUError{SKU: def.ParentSKU}
		}
		if parent.Kind != KindProduct {
			return Definition{}, shared.NewDomainError(shared.CodeInvalidInput,
				fmt.Sprintf("variant parent %s must be a product", def.ParentSKU))
		}
	case KindBundle:
		for _, comp := range def.Components {
			if comp.SKU == def.SKU {
				return Definition{}, &CyclicBundleError{Path: []string{def.SKU, def.SKU}}
			}
			if _, ok := c.defs[comp.SKU]; !ok {
				return Definition{}, &UnknownSKUError{SKU: comp.SKU}
			}
		}
		overlay := func(sku string) (Definition, bool) {
			if sku == def.SKU {
				return def, true
			}
			return c.defs.Lookup(sku)
		}
		if cyc := findCycle(overlay, def.SKU); cyc != nil {
			return Definition{}, cyc
		}
	}

	c.defs[def.SKU] = def
	return def.clone(), nil
}

// Get returns the definition of sku
func (c *Catalog) Get(sku string) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[normalizeSKU(sku)]
	if !ok {
		return Definition{}, false
	}
	return def.clone(), true
}

// List returns all definitions ordered by SKU
func (c *Catalog) List() []Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Definition, 0, len(c.defs))
	for _, def := range c.defs {
		out = append(out, def.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out
}

// Variants returns the variants of a product ordered by SKU
func (c *Catalog) Variants(productSKU string) []Definition {
	productSKU = normalizeSKU(productSKU)
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Definition
	for _, def := range c.defs {
		if def.Kind == KindVariant && def.ParentSKU == productSKU {
			out = append(out, def.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out
}

// Expand flattens quantity units of sku into concrete SKU demand
func (c *Catalog) Expand(sku string, quantity int64) (map[string]int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return NewResolver(c.defs.Lookup).Expand(sku, quantity)
}

// ExpandLines flattens an order into concrete SKU demand
func (c *Catalog) ExpandLines(lines []Line) (map[string]int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return NewResolver(c.defs.Lookup).ExpandLines(lines)
}
