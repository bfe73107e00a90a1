package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/fulfillment/internal/domain/catalog"
	"github.com/erp/fulfillment/internal/domain/inventory"
	"github.com/erp/fulfillment/internal/domain/shared"
)

// PlaceOrderRequest describes an order to place
type PlaceOrderRequest struct {
	CustomerID         string
	Lines              []catalog.Line
	PreferredWarehouse string
	Policy             BackorderPolicy
}

// OrderResult is the outcome of placing an order
type OrderResult struct {
	OrderID        string           `json:"order_id"`
	Status         OrderStatus      `json:"status"`
	ReservationID  uuid.UUID        `json:"reservation_id,omitempty"`
	Allocations    []Allocation     `json:"allocations"`
	ResidualDemand map[string]int64 `json:"residual_demand,omitempty"`
	BackorderIDs   []uuid.UUID      `json:"backorder_ids,omitempty"`
}

// OrderService places, fulfills and cancels orders.
//
// Lock order: order mutex, then backorder SKU locks, then reservation
// mutexes, then stock record locks.
type OrderService struct {
	catalog      *catalog.Catalog
	planner      *Planner
	reservations *inventory.ReservationManager
	backorders   *BackorderManager
	orders       *OrderBook
	outbox       *shared.EventOutbox
	logger       *zap.Logger

	// afterReserve runs between reserving the plan and opening backorders
	afterReserve func(ctx context.Context)
}

// NewOrderService creates an order service and subscribes it to backorder
// promotions
func NewOrderService(
	cat *catalog.Catalog,
	reservations *inventory.ReservationManager,
	backorders *BackorderManager,
	logger *zap.Logger,
) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &OrderService{
		catalog:      cat,
		planner:      NewPlanner(),
		reservations: reservations,
		backorders:   backorders,
		orders:       NewOrderBook(),
		outbox:       reservations.Ledger().Outbox(),
		logger:       logger.Named("orders"),
	}
	backorders.AddPromotionListener(s)
	return s
}

// PlaceOrder expands the order through the catalog, plans it against a
// locked snapshot of stock and reserves the plan atomically. Uncovered
// demand becomes backorders, or fails the order under BackorderPolicyReject.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderResult, error) {
	policy := req.Policy
	if policy == "" {
		policy = BackorderPolicyAllow
	}
	if !policy.IsValid() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("unknown backorder policy %q", policy))
	}
	if req.CustomerID == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "customer id is required")
	}

	demand, err := s.catalog.ExpandLines(req.Lines)
	if err != nil {
		return nil, err
	}
	skus := make([]string, 0, len(demand))
	for sku := range demand {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	order := newOrder(req.CustomerID, req.Lines, demand, req.PreferredWarehouse)
	owner := inventory.Owner{Kind: inventory.OwnerOrder, ID: order.ID}

	var plan Plan
	res, err := s.reservations.ReservePlanned(ctx, owner, skus, func(snap inventory.Snapshot) ([]inventory.Line, error) {
		plan = s.planner.Plan(demand, snap, req.PreferredWarehouse)
		if policy == BackorderPolicyReject && !plan.Satisfied() {
			return nil, shortfall(demand, plan)
		}
		return plan.Lines(), nil
	})
	if err != nil {
		return nil, err
	}
	if s.afterReserve != nil {
		s.afterReserve(ctx)
	}

	order.mu.Lock()
	order.reservation = res
	order.Allocations = plan.Allocations
	order.Residual = plan.Residual
	next := OrderStatusBackordered
	switch {
	case plan.Satisfied():
		next = OrderStatusReserved
	case res != nil:
		next = OrderStatusPartiallyReserved
	}
	_ = order.transition(next, "place")
	s.orders.put(order)

	residualSKUs := make([]string, 0, len(plan.Residual))
	for sku := range plan.Residual {
		residualSKUs = append(residualSKUs, sku)
	}
	sort.Strings(residualSKUs)
	for _, sku := range residualSKUs {
		b, err := s.backorders.Open(ctx, order.ID, sku, order.CustomerID, plan.Residual[sku])
		if err != nil {
			order.mu.Unlock()
			return nil, fmt.Errorf("open backorder for %s: %w", sku, err)
		}
		order.backorderIDs = append(order.backorderIDs, b.ID)
		order.pendingBackorders[b.ID] = struct{}{}
	}

	view := order.view()
	s.outbox.Append(NewOrderPlacedEvent(view))
	order.mu.Unlock()
	s.outbox.Flush(ctx)

	// a restock landing after the plan was reserved but before the
	// backorders existed found nothing to promote
	if len(residualSKUs) > 0 {
		for _, sku := range residualSKUs {
			s.backorders.Reevaluate(ctx, sku)
		}
		view = order.View()
	}

	s.logger.Info("order placed",
		zap.String("order_id", view.ID),
		zap.String("customer_id", view.CustomerID),
		zap.String("status", string(view.Status)),
		zap.Int("allocations", len(view.Allocations)),
		zap.Int("backorders", len(view.BackorderIDs)),
	)
	return &OrderResult{
		OrderID:        view.ID,
		Status:         view.Status,
		ReservationID:  view.ReservationID,
		Allocations:    view.Allocations,
		ResidualDemand: view.Residual,
		BackorderIDs:   view.BackorderIDs,
	}, nil
}

// shortfall reports the first SKU, in SKU order, the plan could not cover
func shortfall(demand map[string]int64, plan Plan) error {
	skus := make([]string, 0, len(plan.Residual))
	for sku := range plan.Residual {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	sku := skus[0]
	return &inventory.InsufficientStockError{
		SKU:       sku,
		Requested: demand[sku],
		Available: demand[sku] - plan.Residual[sku],
	}
}

// OnBackorderPromoted moves an order to reserved once all of its
// backorders have been promoted
func (s *OrderService) OnBackorderPromoted(ctx context.Context, b BackorderView) {
	order, err := s.orders.Get(b.OrderID)
	if err != nil {
		s.logger.Warn("promoted backorder has no order",
			zap.String("backorder_id", b.ID.String()),
			zap.String("order_id", b.OrderID),
		)
		return
	}

	order.mu.Lock()
	defer order.mu.Unlock()
	if _, ok := order.pendingBackorders[b.ID]; !ok || order.Status.IsTerminal() {
		return
	}
	rs, err := s.backorders.Reservations(b.ID)
	if err != nil {
		s.logger.Error("load backorder reservations", zap.Error(err))
		return
	}
	delete(order.pendingBackorders, b.ID)
	order.promoted = append(order.promoted, rs...)

	if len(order.pendingBackorders) == 0 {
		if err := order.transition(OrderStatusReserved, "reserve"); err != nil {
			s.logger.Error("order transition failed", zap.String("order_id", order.ID), zap.Error(err))
			return
		}
		s.logger.Info("order fully reserved after backorder promotion", zap.String("order_id", order.ID))
	}
}

// FulfillOrder commits every reservation of a reserved order
func (s *OrderService) FulfillOrder(ctx context.Context, orderID string) error {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return err
	}

	order.mu.Lock()
	if order.Status != OrderStatusReserved {
		state := order.Status
		order.mu.Unlock()
		return &inventory.InvalidStateError{Entity: "order", ID: orderID, State: string(state), Action: "fulfill"}
	}
	var units int64
	for _, res := range order.reservations() {
		if err := s.reservations.Commit(ctx, res); err != nil {
			order.mu.Unlock()
			return fmt.Errorf("commit reservation %s: %w", res.ID(), err)
		}
		units += res.Total()
	}
	_ = order.transition(OrderStatusFulfilled, "fulfill")
	s.outbox.Append(NewOrderFulfilledEvent(order, units))
	order.mu.Unlock()
	s.outbox.Flush(ctx)

	s.logger.Info("order fulfilled", zap.String("order_id", orderID), zap.Int64("units", units))
	return nil
}

// CancelOrder releases everything held for the order before returning.
// A fulfilled or cancelled order fails with InvalidStateError.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) error {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return err
	}

	order.mu.Lock()
	if order.Status.IsTerminal() {
		state := order.Status
		order.mu.Unlock()
		return &inventory.InvalidStateError{Entity: "order", ID: orderID, State: string(state), Action: "cancel"}
	}
	previous := order.Status

	if order.reservation != nil {
		if err := s.reservations.Release(ctx, order.reservation); err != nil {
			order.mu.Unlock()
			return fmt.Errorf("release order reservation: %w", err)
		}
	}
	for _, id := range order.backorderIDs {
		err := s.backorders.Cancel(ctx, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, shared.ErrInvalidState) {
			order.mu.Unlock()
			return fmt.Errorf("cancel backorder %s: %w", id, err)
		}
		// already promoted: give back what the promotion reserved
		rs, _ := s.backorders.Reservations(id)
		for _, res := range rs {
			if err := s.reservations.Release(ctx, res); err != nil {
				order.mu.Unlock()
				return fmt.Errorf("release promoted reservation %s: %w", res.ID(), err)
			}
		}
	}

	_ = order.transition(OrderStatusCancelled, "cancel")
	s.outbox.Append(NewOrderCancelledEvent(order, previous))
	order.mu.Unlock()
	s.outbox.Flush(ctx)

	s.logger.Info("order cancelled",
		zap.String("order_id", orderID),
		zap.String("previous_status", string(previous)),
	)
	return nil
}

// GetOrder returns a copy of an order
func (s *OrderService) GetOrder(orderID string) (OrderView, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return OrderView{}, err
	}
	return order.View(), nil
}

// ListOrders returns copies of all orders, oldest first
func (s *OrderService) ListOrders() []OrderView {
	return s.orders.List()
}

// Backorders returns the backorder manager
func (s *OrderService) Backorders() *BackorderManager {
	return s.backorders
}
