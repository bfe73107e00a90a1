package inventory

import (
	"time"

	"go.uber.org/zap"

	"github.com/erp/fulfillment/internal/domain/catalog"
	"github.com/erp/fulfillment/internal/domain/fulfillment"
	"github.com/erp/fulfillment/internal/domain/inventory"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/domain/transfer"
)

// CoreConfig tunes the in-memory core
type CoreConfig struct {
	BackorderLeadTime        time.Duration
	DefaultLowStockThreshold int64
}

// Core is the wired set of domain components sharing one ledger and outbox
type Core struct {
	Outbox       *shared.EventOutbox
	Catalog      *catalog.Catalog
	Ledger       *inventory.Ledger
	Reservations *inventory.ReservationManager
	Backorders   *fulfillment.BackorderManager
	Orders       *fulfillment.OrderService
	Transfers    *transfer.Coordinator
}

// NewCore wires the domain components. Every event is delivered to
// publisher after the stock locks of the emitting operation are released.
func NewCore(publisher shared.EventPublisher, cfg CoreConfig, logger *zap.Logger) *Core {
	if logger == nil {
		logger = zap.NewNop()
	}
	outbox := shared.NewEventOutbox(publisher, logger)

	var ledgerOpts []inventory.LedgerOption
	if cfg.DefaultLowStockThreshold > 0 {
		ledgerOpts = append(ledgerOpts, inventory.WithDefaultLowStockThreshold(cfg.DefaultLowStockThreshold))
	}
	ledger := inventory.NewLedger(outbox, logger, ledgerOpts...)
	reservations := inventory.NewReservationManager(ledger, logger)

	var boOpts []fulfillment.BackorderManagerOption
	if cfg.BackorderLeadTime > 0 {
		boOpts = append(boOpts, fulfillment.WithLeadTime(cfg.BackorderLeadTime))
	}
	backorders := fulfillment.NewBackorderManager(reservations, logger, boOpts...)
	cat := catalog.NewCatalog()

	return &Core{
		Outbox:       outbox,
		Catalog:      cat,
		Ledger:       ledger,
		Reservations: reservations,
		Backorders:   backorders,
		Orders:       fulfillment.NewOrderService(cat, reservations, backorders, logger),
		Transfers:    transfer.NewCoordinator(reservations, logger),
	}
}
