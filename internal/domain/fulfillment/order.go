package fulfillment

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erp/fulfillment/internal/domain/catalog"
	"github.com/erp/fulfillment/internal/domain/inventory"
	"github.com/erp/fulfillment/internal/domain/shared"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "pending"
	OrderStatusReserved          OrderStatus = "reserved"
	OrderStatusPartiallyReserved OrderStatus = "partially_reserved"
	OrderStatusBackordered       OrderStatus = "backordered"
	OrderStatusFulfilled         OrderStatus = "fulfilled"
	OrderStatusCancelled         OrderStatus = "cancelled"
)

// IsTerminal reports whether the order can no longer change
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFulfilled || s == OrderStatusCancelled
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:           {OrderStatusReserved, OrderStatusPartiallyReserved, OrderStatusBackordered, OrderStatusCancelled},
	OrderStatusPartiallyReserved: {OrderStatusBackordered, OrderStatusReserved, OrderStatusCancelled},
	OrderStatusBackordered:       {OrderStatusReserved, OrderStatusCancelled},
	OrderStatusReserved:          {OrderStatusFulfilled, OrderStatusCancelled},
}

// CanTransitionTo reports whether the lifecycle allows moving to next
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BackorderPolicy decides what happens to demand no warehouse can cover
type BackorderPolicy string

const (
	// BackorderPolicyAllow reserves what it can and backorders the rest
	BackorderPolicyAllow BackorderPolicy = "allow"
	// BackorderPolicyReject fails the whole order and reserves nothing
	BackorderPolicyReject BackorderPolicy = "reject"
)

// IsValid reports whether p is a known policy
func (p BackorderPolicy) IsValid() bool {
	return p == BackorderPolicyAllow || p == BackorderPolicyReject
}

// Order is a customer order. Fields are guarded by mu; use View for a copy.
type Order struct {
	mu sync.Mutex

	ID                 string
	CustomerID         string
	Lines              []catalog.Line
	Demand             map[string]int64
	PreferredWarehouse string
	Status             OrderStatus
	Allocations        []Allocation
	Residual           map[string]int64
	CreatedAt          time.Time
	UpdatedAt          time.Time

	reservation       *inventory.Reservation
	backorderIDs      []uuid.UUID
	pendingBackorders map[uuid.UUID]struct{}
	promoted          []*inventory.Reservation
}

func newOrder(customerID string, lines []catalog.Line, demand map[string]int64, preferred string) *Order {
	now := time.Now()
	return &Order{
		ID:                 uuid.New().String(),
		CustomerID:         customerID,
		Lines:              append([]catalog.Line(nil), lines...),
		Demand:             demand,
		PreferredWarehouse: preferred,
		Status:             OrderStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
		pendingBackorders:  make(map[uuid.UUID]struct{}),
	}
}

// transition requires o.mu
func (o *Order) transition(next OrderStatus, action string) error {
	if !o.Status.CanTransitionTo(next) {
		return &inventory.InvalidStateError{Entity: "order", ID: o.ID, State: string(o.Status), Action: action}
	}
	o.Status = next
	o.UpdatedAt = time.Now()
	return nil
}

// reservations returns every open reservation of the order; requires o.mu
func (o *Order) reservations() []*inventory.Reservation {
	var out []*inventory.Reservation
	if o.reservation != nil {
		out = append(out, o.reservation)
	}
	return append(out, o.promoted...)
}

// OrderView is a copy of an order safe to hand out
type OrderView struct {
	ID                 string           `json:"id"`
	CustomerID         string           `json:"customer_id"`
	Lines              []catalog.Line   `json:"lines"`
	Demand             map[string]int64 `json:"demand"`
	PreferredWarehouse string           `json:"preferred_warehouse,omitempty"`
	Status             OrderStatus      `json:"status"`
	ReservationID      uuid.UUID        `json:"reservation_id,omitempty"`
	Allocations        []Allocation     `json:"allocations"`
	Residual           map[string]int64 `json:"residual,omitempty"`
	BackorderIDs       []uuid.UUID      `json:"backorder_ids,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// View returns a copy of the order
func (o *Order) View() OrderView {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.view()
}

func (o *Order) view() OrderView {
	v := OrderView{
		ID:                 o.ID,
		CustomerID:         o.CustomerID,
		Lines:              append([]catalog.Line(nil), o.Lines...),
		Demand:             copyDemand(o.Demand),
		PreferredWarehouse: o.PreferredWarehouse,
		Status:             o.Status,
		Allocations:        append([]Allocation(nil), o.Allocations...),
		Residual:           copyDemand(o.Residual),
		BackorderIDs:       append([]uuid.UUID(nil), o.backorderIDs...),
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
	if o.reservation != nil {
		v.ReservationID = o.reservation.ID()
	}
	return v
}

func copyDemand(m map[string]int64) map[string]int64 {
	if m == nil {
		return nil
	}
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// OrderBook is the in-memory store of orders
type OrderBook struct {
	mu     sync.RWMutex
	orders map[string]*Order
}

// NewOrderBook creates an empty order book
func NewOrderBook() *OrderBook {
	return &OrderBook{orders: make(map[string]*Order)}
}

func (b *OrderBook) put(o *Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders[o.ID] = o
}

// Get returns an order by id
func (b *OrderBook) Get(id string) (*Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[id]
	if !ok {
		return nil, shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("order %s not found", id))
	}
	return o, nil
}

// List returns copies of all orders, oldest first
func (b *OrderBook) List() []OrderView {
	b.mu.RLock()
	orders := make([]*Order, 0, len(b.orders))
	for _, o := range b.orders {
		orders = append(orders, o)
	}
	b.mu.RUnlock()

	out := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.View())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
