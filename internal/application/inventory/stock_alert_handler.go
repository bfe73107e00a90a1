package inventory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erp/fulfillment/internal/domain/inventory"
	"github.com/erp/fulfillment/internal/domain/shared"
)

// Alert types
const (
	AlertTypeLowStock         = "low_stock"
	AlertTypeOutOfStock       = "out_of_stock"
	AlertTypeCapacityExceeded = "capacity_exceeded"
)

// StockAlert represents a stock level or capacity alert
type StockAlert struct {
	AlertType   string    `json:"alert_type"`
	SKU         string    `json:"sku,omitempty"`
	WarehouseID string    `json:"warehouse_id"`
	OnHand      int64     `json:"on_hand"`
	Available   int64     `json:"available"`
	Threshold   int64     `json:"threshold"`
	Message     string    `json:"message"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Key identifies the stock record or warehouse the alert is about
func (a StockAlert) Key() string {
	if a.SKU == "" {
		return a.WarehouseID
	}
	return a.WarehouseID + "/" + a.SKU
}

// StockAlertNotifier is the interface for sending stock alerts.
// Implementations can support different channels (log, Kafka, ...).
type StockAlertNotifier interface {
	SendAlert(ctx context.Context, alert StockAlert) error
}

// StockAlertHandler turns low stock and capacity events into alerts
type StockAlertHandler struct {
	logger      *zap.Logger
	notifiers   []StockAlertNotifier
	minInterval time.Duration
	now         func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewStockAlertHandler creates a new handler for stock alert events
func NewStockAlertHandler(logger *zap.Logger) *StockAlertHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockAlertHandler{
		logger: logger.Named("stock_alerts"),
		now:    time.Now,
		last:   make(map[string]time.Time),
	}
}

// WithNotifier adds a notifier for sending alerts
func (h *StockAlertHandler) WithNotifier(notifier StockAlertNotifier) *StockAlertHandler {
	h.notifiers = append(h.notifiers, notifier)
	return h
}

// WithMinInterval suppresses repeated alerts of the same type for the same
// record within d
func (h *StockAlertHandler) WithMinInterval(d time.Duration) *StockAlertHandler {
	h.minInterval = d
	return h
}

// WithClock replaces the handler's clock
func (h *StockAlertHandler) WithClock(now func() time.Time) *StockAlertHandler {
	h.now = now
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *StockAlertHandler) EventTypes() []string {
	return []string{inventory.EventTypeLowStockAlert, inventory.EventTypeCapacityExceeded}
}

// Handle converts the event to an alert and hands it to every notifier.
// Notifier failures are logged and never fail the handler.
func (h *StockAlertHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	var alert StockAlert
	switch e := event.(type) {
	case *inventory.LowStockAlertEvent:
		alert = StockAlert{
			AlertType:   AlertTypeLowStock,
			SKU:         e.SKU,
			WarehouseID: e.WarehouseID,
			OnHand:      e.OnHand,
			Available:   e.Available,
			Threshold:   e.Threshold,
			Message: fmt.Sprintf("%s at %s has %d available, threshold %d",
				e.SKU, e.WarehouseID, e.Available, e.Threshold),
		}
		if e.Available == 0 {
			alert.AlertType = AlertTypeOutOfStock
		}
	case *inventory.CapacityExceededEvent:
		alert = StockAlert{
			AlertType:   AlertTypeCapacityExceeded,
			WarehouseID: e.WarehouseID,
			OnHand:      e.OnHand,
			Threshold:   e.Capacity,
			Message:     e.Message,
		}
	default:
		h.logger.Error("unexpected event type", zap.String("actual", event.EventType()))
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}
	alert.OccurredAt = event.OccurredAt()

	if h.suppressed(alert) {
		h.logger.Debug("stock alert suppressed",
			zap.String("key", alert.Key()),
			zap.String("alert_type", alert.AlertType),
		)
		return nil
	}

	h.logger.Warn("stock alert",
		zap.String("alert_type", alert.AlertType),
		zap.String("sku", alert.SKU),
		zap.String("warehouse_id", alert.WarehouseID),
		zap.Int64("on_hand", alert.OnHand),
		zap.Int64("available", alert.Available),
		zap.Int64("threshold", alert.Threshold),
	)

	for _, n := range h.notifiers {
		if err := n.SendAlert(ctx, alert); err != nil {
			h.logger.Error("failed to send stock alert notification",
				zap.String("key", alert.Key()),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (h *StockAlertHandler) suppressed(alert StockAlert) bool {
	if h.minInterval <= 0 {
		return false
	}
	key := alert.AlertType + ":" + alert.Key()
	now := h.now()
	h.mu.Lock()
	defer h.mu.Unlock()
	if last, ok := h.last[key]; ok && now.Sub(last) < h.minInterval {
		return true
	}
	h.last[key] = now
	return false
}

var _ shared.EventHandler = (*StockAlertHandler)(nil)

// LoggingStockAlertNotifier is a simple notifier that logs alerts
type LoggingStockAlertNotifier struct {
	logger *zap.Logger
}

// NewLoggingStockAlertNotifier creates a new logging notifier
func NewLoggingStockAlertNotifier(logger *zap.Logger) *LoggingStockAlertNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingStockAlertNotifier{logger: logger}
}

// SendAlert logs the stock alert
func (n *LoggingStockAlertNotifier) SendAlert(ctx context.Context, alert StockAlert) error {
	n.logger.Warn("STOCK ALERT",
		zap.String("type", alert.AlertType),
		zap.String("key", alert.Key()),
		zap.Int64("available", alert.Available),
		zap.String("message", alert.Message),
	)
	return nil
}

var _ StockAlertNotifier = (*LoggingStockAlertNotifier)(nil)
