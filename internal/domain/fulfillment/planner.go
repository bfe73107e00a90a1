package fulfillment

import (
	"sort"

	"github.com/erp/fulfillment/internal/domain/inventory"
)

// Allocation assigns part of a SKU's demand to one warehouse
type Allocation struct {
	SKU         string `json:"sku"`
	WarehouseID string `json:"warehouse_id"`
	Quantity    int64  `json:"quantity"`
}

// Plan is the outcome of planning one order
type Plan struct {
	Allocations []Allocation     `json:"allocations"`
	Residual    map[string]int64 `json:"residual,omitempty"`
}

// Satisfied reports whether the plan covers all demand
func (p Plan) Satisfied() bool {
	return len(p.Residual) == 0
}

// Lines converts the allocations into reservation lines
func (p Plan) Lines() []inventory.Line {
	out := make([]inventory.Line, 0, len(p.Allocations))
	for _, a := range p.Allocations {
		out = append(out, inventory.Line{SKU: a.SKU, WarehouseID: a.WarehouseID, Quantity: a.Quantity})
	}
	return out
}

// Planner decides which warehouses supply an order.
//
// For every SKU, in ascending SKU order, active warehouses with stock are
// ranked by descending available quantity, ties broken by ascending
// warehouse id. A preferred warehouse holding any of the SKU goes first.
// Demand is then taken greedily down the ranking, so one SKU may be split
// across warehouses. Whatever is left is reported as residual.
type Planner struct{}

// NewPlanner creates a planner
func NewPlanner() *Planner {
	return &Planner{}
}

type candidate struct {
	warehouseID string
	available   int64
}

// Plan is a pure function of its inputs
func (p *Planner) Plan(demand map[string]int64, snapshot inventory.Snapshot, preferred string) Plan {
	skus := make([]string, 0, len(demand))
	for sku, qty := range demand {
		if qty > 0 {
			skus = append(skus, sku)
		}
	}
	sort.Strings(skus)

	plan := Plan{Residual: make(map[string]int64)}
	for _, sku := range skus {
		remaining := demand[sku]
		for _, c := range rankWarehouses(snapshot, sku, preferred) {
			if remaining == 0 {
				break
			}
			take := c.available
			if take > remaining {
				take = remaining
			}
			plan.Allocations = append(plan.Allocations, Allocation{SKU: sku, WarehouseID: c.warehouseID, Quantity: take})
			remaining -= take
		}
		if remaining > 0 {
			plan.Residual[sku] = remaining
		}
	}
	if len(plan.Residual) == 0 {
		plan.Residual = nil
	}
	return plan
}

func rankWarehouses(snapshot inventory.Snapshot, sku, preferred string) []candidate {
	var out []candidate
	for _, rec := range snapshot.Records[sku] {
		if rec.Available <= 0 {
			continue
		}
		if w, ok := snapshot.Warehouses[rec.WarehouseID]; !ok || !w.Active {
			continue
		}
		out = append(out, candidate{warehouseID: rec.WarehouseID, available: rec.Available})
	}
	sort.Slice(out, func(i, j int) bool {
		if preferred != "" && (out[i].warehouseID == preferred) != (out[j].warehouseID == preferred) {
			return out[i].warehouseID == preferred
		}
		if out[i].available != out[j].available {
			return out[i].available > out[j].available
		}
		return out[i].warehouseID < out[j].warehouseID
	})
	return out
}
