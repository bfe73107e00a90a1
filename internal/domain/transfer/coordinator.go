package transfer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erp/fulfillment/internal/domain/inventory"
	"github.com/erp/fulfillment/internal/domain/shared"
)

// Coordinator moves stock between warehouses. A transfer takes the units
// out of the source through a committed reservation and receives them at the
// destination; if the destination refuses them they are credited back to
// the source, so system-wide on-hand for the SKU never changes.
type Coordinator struct {
	reservations *inventory.ReservationManager
	ledger       *inventory.Ledger
	outbox       *shared.EventOutbox
	logger       *zap.Logger
	now          func() time.Time

	mu        sync.RWMutex
	transfers map[string]*Transfer
}

// NewCoordinator creates a transfer coordinator
func NewCoordinator(reservations *inventory.ReservationManager, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	ledger := reservations.Ledger()
	return &Coordinator{
		reservations: reservations,
		ledger:       ledger,
		outbox:       ledger.Outbox(),
		logger:       logger.Named("transfer"),
		now:          time.Now,
		transfers:    make(map[string]*Transfer),
	}
}

// Transfer moves quantity units of sku from one warehouse to another. The
// returned transfer is a copy in its final state; on failure it is returned
// alongside the error.
func (c *Coordinator) Transfer(ctx context.Context, sku, from, to string, quantity int64) (*Transfer, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" || from == "" || to == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "sku, source and destination are required")
	}
	if from == to {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "source and destination warehouse must differ")
	}
	if quantity <= 0 {
		return nil, &inventory.InvalidQuantityError{Quantity: quantity}
	}

	t := newTransfer(sku, from, to, quantity, c.now())
	c.mu.Lock()
	c.transfers[t.ID] = t
	c.mu.Unlock()

	log := c.logger.With(
		zap.String("transfer_id", t.ID),
		zap.String("sku", sku),
		zap.String("from", from),
		zap.String("to", to),
		zap.Int64("quantity", quantity),
	)

	owner := inventory.Owner{Kind: inventory.OwnerTransfer, ID: t.ID}
	res, err := c.reservations.Reserve(ctx, owner, []inventory.Line{{SKU: sku, WarehouseID: from, Quantity: quantity}})
	if err != nil {
		log.Info("transfer rejected at source", zap.Error(err))
		return c.finishFailed(ctx, t, err, false)
	}
	if err := c.reservations.Commit(ctx, res); err != nil {
		log.Error("commit source reservation", zap.Error(err))
		if relErr := c.reservations.Release(ctx, res); relErr != nil {
			err = errors.Join(err, relErr)
		}
		return c.finishFailed(ctx, t, err, false)
	}

	c.mu.Lock()
	t.ReservationID = res.ID()
	c.mu.Unlock()

	if err := c.ledger.ReceiveTransfer(ctx, sku, to, quantity, t.ID); err != nil {
		log.Warn("destination refused transfer, crediting source", zap.Error(err))
		if credErr := c.ledger.Credit(ctx, sku, from, quantity, t.ID); credErr != nil {
			// units are out of the source and nowhere else
			log.Error("compensating credit failed", zap.Error(credErr))
			return c.finishFailed(ctx, t, errors.Join(err, fmt.Errorf("credit source: %w", credErr)), false)
		}
		return c.finishFailed(ctx, t, err, true)
	}

	c.mu.Lock()
	t.complete(c.now())
	out := *t
	c.mu.Unlock()
	c.outbox.Append(NewTransferCompletedEvent(&out))
	c.outbox.Flush(ctx)

	log.Info("transfer completed")
	return &out, nil
}

func (c *Coordinator) finishFailed(ctx context.Context, t *Transfer, cause error, compensated bool) (*Transfer, error) {
	c.mu.Lock()
	t.fail(cause.Error(), compensated, c.now())
	out := *t
	c.mu.Unlock()
	c.outbox.Append(NewTransferFailedEvent(&out))
	c.outbox.Flush(ctx)
	return &out, fmt.Errorf("transfer %s: %w", out.ID, cause)
}

// Get returns a copy of a transfer
func (c *Coordinator) Get(id string) (*Transfer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.transfers[id]
	if !ok {
		return nil, shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("transfer %s not found", id))
	}
	out := *t
	return &out, nil
}

// List returns copies of all transfers, oldest first
func (c *Coordinator) List() []Transfer {
	c.mu.RLock()
	out := make([]Transfer, 0, len(c.transfers))
	for _, t := range c.transfers {
		out = append(out, *t)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
