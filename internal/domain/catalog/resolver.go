package catalog

import (
	"fmt"

	"github.com/erp/fulfillment/internal/domain/shared"
)

// Lookup resolves a SKU to its definition
type Lookup func(sku string) (Definition, bool)

// Definitions is an arena of SKU definitions keyed by SKU
type Definitions map[string]Definition

// Lookup implements Lookup over the arena
func (d Definitions) Lookup(sku string) (Definition, bool) {
	def, ok := d[sku]
	return def, ok
}

// Resolver flattens bundles into concrete stockable SKUs.
// It never mutates the definitions it reads.
type Resolver struct {
	lookup Lookup
}

// NewResolver creates a resolver over lookup
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Expand returns the concrete SKU demand for quantity units of sku.
// Bundle components are multiplied through every level and repeated
// components are summed.
func (r *Resolver) Expand(sku string, quantity int64) (map[string]int64, error) {
	if quantity <= 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity,
			fmt.Sprintf("quantity for %s must be positive, got %d", sku, quantity))
	}
	out := make(map[string]int64)
	if err := r.expandInto(out, normalizeSKU(sku), quantity, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// ExpandLines flattens every line and sums the demand per concrete SKU.
// The first catalog error rejects the whole request.
func (r *Resolver) ExpandLines(lines []Line) (map[string]int64, error) {
	if len(lines) == 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "at least one line is required")
	}
	out := make(map[string]int64)
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, shared.NewDomainError(shared.CodeInvalidQuantity,
				fmt.Sprintf("quantity for %s must be positive, got %d", line.SKU, line.Quantity))
		}
		if err := r.expandInto(out, normalizeSKU(line.SKU), line.Quantity, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Resolver) expandInto(out map[string]int64, sku string, quantity int64, path []string) error {
	for i, seen := range path {
		if seen == sku {
			cycle := append(append([]string(nil), path[i:]...), sku)
			return &CyclicBundleError{Path: cycle}
		}
	}

	def, ok := r.lookup(sku)
	if !ok {
		return &UnknownSKUError{SKU: sku}
	}
	if !def.IsBundle() {
		sum, ok := shared.AddQuantity(out[sku], quantity)
		if !ok {
			return &QuantityOverflowError{SKU: sku, Path: append(append([]string(nil), path...), sku)}
		}
		out[sku] = sum
		return nil
	}

	path = append(path, sku)
	for _, c := range def.Components {
		demand, ok := shared.MulQuantity(quantity, c.Quantity)
		if !ok {
			return &QuantityOverflowError{SKU: c.SKU, Path: append(append([]string(nil), path...), c.SKU)}
		}
		if err := r.expandInto(out, c.SKU, demand, path); err != nil {
			return err
		}
	}
	return nil
}

// findCycle reports a cycle reachable from root, using three-color DFS so
// shared sub-bundles are visited once.
func findCycle(lookup Lookup, root string) *CyclicBundleError {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int)
	var path []string

	var visit func(sku string) *CyclicBundleError
	visit = func(sku string) *CyclicBundleError {
		switch color[sku] {
		case grey:
			for i, seen := range path {
				if seen == sku {
					cycle := append(append([]string(nil), path[i:]...), sku)
					return &CyclicBundleError{Path: cycle}
				}
			}
		case black:
			return nil
		}
		def, ok := lookup(sku)
		if !ok || !def.IsBundle() {
			color[sku] = black
			return nil
		}
		color[sku] = grey
		path = append(path, sku)
		for _, c := range def.Components {
			if err := visit(c.SKU); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[sku] = black
		return nil
	}
	return visit(root)
}
