package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/erp/fulfillment/internal/domain/catalog"
	"github.com/erp/fulfillment/internal/domain/fulfillment"
	"github.com/erp/fulfillment/internal/domain/inventory"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/infrastructure/telemetry"
)

// OperationRecorder records the outcome of application operations
type OperationRecorder interface {
	RecordOperation(ctx context.Context, operation string, started time.Time, err error)
}

// Option configures an InventoryService
type Option func(*InventoryService)

// WithOperationRecorder records every operation's outcome and latency
func WithOperationRecorder(r OperationRecorder) Option {
	return func(s *InventoryService) { s.metrics = r }
}

// WithDefaultBackorderPolicy sets the policy for orders that name none
func WithDefaultBackorderPolicy(p fulfillment.BackorderPolicy) Option {
	return func(s *InventoryService) {
		if p.IsValid() {
			s.defaultPolicy = p
		}
	}
}

// InventoryService is the application facade over the reservation and
// fulfillment core. It validates requests, normalizes SKUs through the
// catalog and traces every call.
type InventoryService struct {
	core          *Core
	validate      *validator.Validate
	metrics       OperationRecorder
	defaultPolicy fulfillment.BackorderPolicy
	logger        *zap.Logger
}

// NewInventoryService creates a new InventoryService
func NewInventoryService(core *Core, logger *zap.Logger, opts ...Option) *InventoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &InventoryService{
		core:          core,
		validate:      newValidator(),
		defaultPolicy: fulfillment.BackorderPolicyAllow,
		logger:        logger.Named("inventory_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Core returns the wired domain components
func (s *InventoryService) Core() *Core {
	return s.core
}

func (s *InventoryService) begin(ctx context.Context, method string, keyValues ...interface{}) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := telemetry.StartServiceSpan(ctx, "inventory", method)
	telemetry.SetAttributes(span, keyValues...)
	return ctx, func(err error) {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.SetOK(span)
		}
		span.End()
		if s.metrics != nil {
			s.metrics.RecordOperation(ctx, method, started, err)
		}
	}
}

func (s *InventoryService) check(req interface{}) error {
	if err := s.validate.Struct(req); err != nil {
		return validationError(err)
	}
	return nil
}

// stockable resolves sku to a stock-carrying catalog entry
func (s *InventoryService) stockable(sku string) (catalog.Definition, error) {
	def, ok := s.core.Catalog.Get(sku)
	if !ok {
		return catalog.Definition{}, &catalog.UnknownSKUError{SKU: strings.ToUpper(strings.TrimSpace(sku))}
	}
	if def.IsBundle() {
		return catalog.Definition{}, shared.NewDomainError(shared.CodeInvalidInput,
			fmt.Sprintf("bundle %s carries no stock of its own", def.SKU))
	}
	return def, nil
}

// PlaceOrder flattens, plans and reserves an order. Uncovered demand is
// backordered unless the order's policy is reject.
func (s *InventoryService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (result *OrderResult, err error) {
	ctx, end := s.begin(ctx, "place_order",
		telemetry.SpanAttrCustomerID, req.CustomerID,
		telemetry.SpanAttrLines, len(req.Lines),
	)
	defer func() { end(err) }()

	if err = s.check(req); err != nil {
		return nil, err
	}
	policy := s.defaultPolicy
	if req.BackorderPolicy != "" {
		policy = fulfillment.BackorderPolicy(req.BackorderPolicy)
	}
	lines := make([]catalog.Line, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = catalog.Line{SKU: l.SKU, Quantity: l.Quantity}
	}

	result, err = s.core.Orders.PlaceOrder(ctx, fulfillment.PlaceOrderRequest{
		CustomerID:         req.CustomerID,
		Lines:              lines,
		PreferredWarehouse: req.PreferredWarehouse,
		Policy:             policy,
	})
	if err != nil {
		s.logger.Info("order rejected",
			zap.String("customer_id", req.CustomerID),
			zap.String("policy", string(policy)),
			zap.Error(err),
		)
		return nil, err
	}
	telemetry.AddEvent(trace.SpanFromContext(ctx), "order_placed",
		telemetry.SpanAttrOrderID, result.OrderID,
		telemetry.SpanAttrOrderStatus, string(result.Status),
		telemetry.SpanAttrReservationID, idString(result.ReservationID),
	)
	return result, nil
}

// CancelOrder releases everything held for an order
func (s *InventoryService) CancelOrder(ctx context.Context, orderID string) (err error) {
	ctx, end := s.begin(ctx, "cancel_order", telemetry.SpanAttrOrderID, orderID)
	defer func() { end(err) }()
	return s.core.Orders.CancelOrder(ctx, orderID)
}

// FulfillOrder commits the reservations of a reserved order
func (s *InventoryService) FulfillOrder(ctx context.Context, orderID string) (err error) {
	ctx, end := s.begin(ctx, "fulfill_order", telemetry.SpanAttrOrderID, orderID)
	defer func() { end(err) }()
	return s.core.Orders.FulfillOrder(ctx, orderID)
}

// GetOrder returns one order
func (s *InventoryService) GetOrder(ctx context.Context, orderID string) (fulfillment.OrderView, error) {
	return s.core.Orders.GetOrder(orderID)
}

// ListOrders returns all orders, oldest first
func (s *InventoryService) ListOrders(ctx context.Context) []fulfillment.OrderView {
	return s.core.Orders.ListOrders()
}

// Restock adds units of a product or variant to a warehouse
func (s *InventoryService) Restock(ctx context.Context, req RestockRequest) (err error) {
	ctx, end := s.begin(ctx, "restock",
		telemetry.SpanAttrSKU, req.SKU,
		telemetry.SpanAttrWarehouseID, req.WarehouseID,
		telemetry.SpanAttrQuantity, req.Quantity,
	)
	defer func() { end(err) }()

	if err = s.check(req); err != nil {
		return err
	}
	def, err := s.stockable(req.SKU)
	if err != nil {
		return err
	}
	return s.core.Ledger.Restock(ctx, def.SKU, req.WarehouseID, req.Quantity)
}

// Transfer moves units between warehouses. On failure the final transfer
// state is returned alongside the error.
func (s *InventoryService) Transfer(ctx context.Context, req TransferRequest) (result *TransferResult, err error) {
	ctx, end := s.begin(ctx, "transfer",
		telemetry.SpanAttrSKU, req.SKU,
		telemetry.SpanAttrQuantity, req.Quantity,
		"from_warehouse_id", req.FromWarehouseID,
		"to_warehouse_id", req.ToWarehouseID,
	)
	defer func() { end(err) }()

	if err = s.check(req); err != nil {
		return nil, err
	}
	def, err := s.stockable(req.SKU)
	if err != nil {
		return nil, err
	}
	t, err := s.core.Transfers.Transfer(ctx, def.SKU, req.FromWarehouseID, req.ToWarehouseID, req.Quantity)
	if t == nil {
		return nil, err
	}
	telemetry.SetAttributes(trace.SpanFromContext(ctx), telemetry.SpanAttrTransferID, t.ID)
	return toTransferResult(t), err
}

// GetTransfer returns one transfer
func (s *InventoryService) GetTransfer(ctx context.Context, id string) (*TransferResult, error) {
	t, err := s.core.Transfers.Get(id)
	if err != nil {
		return nil, err
	}
	return toTransferResult(t), nil
}

// GetAvailability returns the stock of sku per warehouse. Bundles carry no
// stock and report an empty map.
func (s *InventoryService) GetAvailability(ctx context.Context, sku string) (map[string]Availability, error) {
	def, ok := s.core.Catalog.Get(sku)
	if !ok {
		return nil, &catalog.UnknownSKUError{SKU: strings.ToUpper(strings.TrimSpace(sku))}
	}
	out := make(map[string]Availability)
	if def.IsBundle() {
		return out, nil
	}
	for _, snap := range s.core.Ledger.Availability(def.SKU) {
		out[snap.WarehouseID] = Availability{
			WarehouseID:       snap.WarehouseID,
			OnHand:            snap.OnHand,
			Reserved:          snap.Reserved,
			Available:         snap.Available,
			LowStockThreshold: snap.LowStockThreshold,
		}
	}
	return out, nil
}

// ListLowStock returns records at or below threshold, or at or below their
// own threshold when threshold is nil
func (s *InventoryService) ListLowStock(ctx context.Context, threshold *int64) ([]LowStockItem, error) {
	if threshold != nil && *threshold < 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "threshold cannot be negative")
	}
	snaps := s.core.Ledger.LowStock(threshold)
	out := make([]LowStockItem, len(snaps))
	for i, snap := range snaps {
		limit := snap.LowStockThreshold
		if threshold != nil {
			limit = *threshold
		}
		out[i] = LowStockItem{
			SKU:         snap.SKU,
			WarehouseID: snap.WarehouseID,
			OnHand:      snap.OnHand,
			Available:   snap.Available,
			Threshold:   limit,
		}
	}
	return out, nil
}

// DefineSKU adds or replaces a catalog entry
func (s *InventoryService) DefineSKU(ctx context.Context, req DefineSKURequest) (def catalog.Definition, err error) {
	ctx, end := s.begin(ctx, "define_sku", telemetry.SpanAttrSKU, req.SKU)
	defer func() { end(err) }()

	if err = s.check(req); err != nil {
		return catalog.Definition{}, err
	}
	components := make([]catalog.Component, len(req.Components))
	for i, c := range req.Components {
		components[i] = catalog.Component{SKU: c.SKU, Quantity: c.Quantity}
	}
	def, err = s.core.Catalog.Define(catalog.Definition{
		SKU:        req.SKU,
		Name:       req.Name,
		Kind:       catalog.Kind(req.Kind),
		ParentSKU:  req.ParentSKU,
		Attributes: req.Attributes,
		Components: components,
	})
	if err != nil {
		return catalog.Definition{}, err
	}
	s.logger.Info("sku defined", zap.String("sku", def.SKU), zap.String("kind", string(def.Kind)))
	return def, nil
}

// GetSKU returns one catalog entry
func (s *InventoryService) GetSKU(ctx context.Context, sku string) (catalog.Definition, error) {
	def, ok := s.core.Catalog.Get(sku)
	if !ok {
		return catalog.Definition{}, &catalog.UnknownSKUError{SKU: strings.ToUpper(strings.TrimSpace(sku))}
	}
	return def, nil
}

// ListSKUs returns the catalog ordered by SKU
func (s *InventoryService) ListSKUs(ctx context.Context) []catalog.Definition {
	return s.core.Catalog.List()
}

// RegisterWarehouse registers an active warehouse
func (s *InventoryService) RegisterWarehouse(ctx context.Context, req RegisterWarehouseRequest) (w inventory.Warehouse, err error) {
	ctx, end := s.begin(ctx, "register_warehouse", telemetry.SpanAttrWarehouseID, req.ID)
	defer func() { end(err) }()

	if err = s.check(req); err != nil {
		return inventory.Warehouse{}, err
	}
	return s.core.Ledger.RegisterWarehouse(ctx, inventory.Warehouse{
		ID:       req.ID,
		Name:     req.Name,
		Location: req.Location,
		Capacity: req.Capacity,
		Active:   true,
	})
}

// DeactivateWarehouse stops a warehouse from receiving stock or being
// planned against. Existing holds stay valid.
func (s *InventoryService) DeactivateWarehouse(ctx context.Context, id string) (err error) {
	ctx, end := s.begin(ctx, "deactivate_warehouse", telemetry.SpanAttrWarehouseID, id)
	defer func() { end(err) }()
	return s.core.Ledger.DeactivateWarehouse(ctx, id)
}

// ListWarehouses returns all warehouses ordered by id
func (s *InventoryService) ListWarehouses(ctx context.Context) []inventory.Warehouse {
	return s.core.Ledger.Warehouses()
}

// SetLowStockThreshold changes the alert threshold of one stock record
func (s *InventoryService) SetLowStockThreshold(ctx context.Context, req SetThresholdRequest) (err error) {
	ctx, end := s.begin(ctx, "set_low_stock_threshold",
		telemetry.SpanAttrSKU, req.SKU,
		telemetry.SpanAttrWarehouseID, req.WarehouseID,
	)
	defer func() { end(err) }()

	if err = s.check(req); err != nil {
		return err
	}
	def, err := s.stockable(req.SKU)
	if err != nil {
		return err
	}
	return s.core.Ledger.SetLowStockThreshold(ctx, def.SKU, req.WarehouseID, req.Threshold)
}

// ListBackorders returns backorders matching filter in creation order
func (s *InventoryService) ListBackorders(ctx context.Context, filter BackorderFilter) ([]BackorderResponse, error) {
	if err := s.check(filter); err != nil {
		return nil, err
	}
	sku := strings.ToUpper(strings.TrimSpace(filter.SKU))
	return s.core.Backorders.List(sku, fulfillment.BackorderStatus(filter.Status)), nil
}

var hundred = decimal.NewFromInt(100)

// WarehouseUtilization reports on-hand stock against capacity per warehouse
func (s *InventoryService) WarehouseUtilization(ctx context.Context) []WarehouseUtilization {
	usage := s.core.Ledger.Utilization()
	out := make([]WarehouseUtilization, len(usage))
	for i, u := range usage {
		item := WarehouseUtilization{
			WarehouseID: u.Warehouse.ID,
			Name:        u.Warehouse.Name,
			Active:      u.Warehouse.Active,
			Capacity:    u.Warehouse.Capacity,
			OnHand:      u.OnHand,
			Reserved:    u.Reserved,
			SKUCount:    u.SKUCount,
		}
		if u.Warehouse.Capacity > 0 {
			pct := decimal.NewFromInt(u.OnHand).
				Mul(hundred).
				Div(decimal.NewFromInt(u.Warehouse.Capacity)).
				Round(2)
			item.UtilizationPercent = &pct
		}
		out[i] = item
	}
	return out
}

// StockStats samples the ledger for metric gauges
func (s *InventoryService) StockStats(ctx context.Context) (telemetry.StockStats, error) {
	stats := telemetry.StockStats{
		OnHand:      make(map[string]int64),
		Reserved:    make(map[string]int64),
		Utilization: make(map[string]float64),
	}
	for _, u := range s.core.Ledger.Utilization() {
		stats.OnHand[u.Warehouse.ID] = u.OnHand
		stats.Reserved[u.Warehouse.ID] = u.Reserved
		if u.Warehouse.Capacity > 0 {
			stats.Utilization[u.Warehouse.ID] = float64(u.OnHand) / float64(u.Warehouse.Capacity)
		}
	}
	stats.LowStockCount = int64(len(s.core.Ledger.LowStock(nil)))
	return stats, nil
}

// Audit checks the ledger invariants
func (s *InventoryService) Audit(ctx context.Context) []inventory.AuditViolation {
	return s.core.Ledger.Audit()
}
