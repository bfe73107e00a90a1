package fulfillment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/fulfillment/internal/domain/inventory"
	"github.com/erp/fulfillment/internal/domain/shared"
)

// BackorderStatus is the lifecycle state of a backorder
type BackorderStatus string

const (
	BackorderStatusOpen      BackorderStatus = "open"
	BackorderStatusPromoted  BackorderStatus = "promoted"
	BackorderStatusCancelled BackorderStatus = "cancelled"
)

// Backorder is demand that could not be reserved when its order was placed.
// Fields are guarded by the manager's lock for the backorder's SKU.
type Backorder struct {
	ID          uuid.UUID
	OrderID     string
	SKU         string
	CustomerID  string
	Quantity    int64
	Outstanding int64
	Promoted    int64
	Status      BackorderStatus
	ExpectedAt  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	seq          uint64
	reservations []*inventory.Reservation
}

func (b *Backorder) reservationIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(b.reservations))
	for i, r := range b.reservations {
		ids[i] = r.ID()
	}
	return ids
}

// BackorderView is a copy of a backorder safe to hand out
type BackorderView struct {
	ID             uuid.UUID       `json:"id"`
	OrderID        string          `json:"order_id"`
	SKU            string          `json:"sku"`
	CustomerID     string          `json:"customer_id"`
	Quantity       int64           `json:"quantity"`
	Outstanding    int64           `json:"outstanding"`
	Promoted       int64           `json:"promoted"`
	Status         BackorderStatus `json:"status"`
	ExpectedAt     time.Time       `json:"expected_at"`
	CreatedAt      time.Time       `json:"created_at"`
	ReservationIDs []uuid.UUID     `json:"reservation_ids"`
}

func (b *Backorder) view() BackorderView {
	return BackorderView{
		ID:             b.ID,
		OrderID:        b.OrderID,
		SKU:            b.SKU,
		CustomerID:     b.CustomerID,
		Quantity:       b.Quantity,
		Outstanding:    b.Outstanding,
		Promoted:       b.Promoted,
		Status:         b.Status,
		ExpectedAt:     b.ExpectedAt,
		CreatedAt:      b.CreatedAt,
		ReservationIDs: b.reservationIDs(),
	}
}

// PromotionListener is told about fully promoted backorders. It is called
// after the manager released its locks.
type PromotionListener interface {
	OnBackorderPromoted(ctx context.Context, b BackorderView)
}

// BackorderManagerOption is a functional option for configuring BackorderManager
type BackorderManagerOption func(*BackorderManager)

// WithLeadTime sets how far in the future ExpectedAt is placed
func WithLeadTime(d time.Duration) BackorderManagerOption {
	return func(m *BackorderManager) {
		if d > 0 {
			m.leadTime = d
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) BackorderManagerOption {
	return func(m *BackorderManager) {
		if now != nil {
			m.now = now
		}
	}
}

// BackorderManager keeps open backorders per SKU in creation order and
// promotes them when stock arrives. Promotions for one SKU are serialized.
type BackorderManager struct {
	reservations *inventory.ReservationManager
	outbox       *shared.EventOutbox
	logger       *zap.Logger
	leadTime     time.Duration
	now          func() time.Time

	mu        sync.Mutex
	seq       uint64
	byID      map[uuid.UUID]*Backorder
	open      map[string][]*Backorder
	skuLocks  map[string]*sync.Mutex
	listeners []PromotionListener
}

// NewBackorderManager creates a manager and registers it as the ledger's
// restock observer
func NewBackorderManager(
	reservations *inventory.ReservationManager,
	logger *zap.Logger,
	opts ...BackorderManagerOption,
) *BackorderManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &BackorderManager{
		reservations: reservations,
		outbox:       reservations.Ledger().Outbox(),
		logger:       logger.Named("backorders"),
		leadTime:     7 * 24 * time.Hour,
		now:          time.Now,
		byID:         make(map[uuid.UUID]*Backorder),
		open:         make(map[string][]*Backorder),
		skuLocks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	reservations.Ledger().SetRestockObserver(m)
	return m
}

// AddPromotionListener registers a listener for full promotions
func (m *BackorderManager) AddPromotionListener(l PromotionListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *BackorderManager) skuLock(sku string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.skuLocks[sku]
	if !ok {
		l = &sync.Mutex{}
		m.skuLocks[sku] = l
	}
	return l
}

// Open records quantity units of sku owed to an order. It never touches
// the ledger.
func (m *BackorderManager) Open(ctx context.Context, orderID, sku, customerID string, quantity int64) (BackorderView, error) {
	if quantity <= 0 {
		return BackorderView{}, &inventory.InvalidQuantityError{Quantity: quantity}
	}
	lock := m.skuLock(sku)
	lock.Lock()

	now := m.now()
	m.mu.Lock()
	m.seq++
	b := &Backorder{
		ID:          uuid.New(),
		OrderID:     orderID,
		SKU:         sku,
		CustomerID:  customerID,
		Quantity:    quantity,
		Outstanding: quantity,
		Status:      BackorderStatusOpen,
		ExpectedAt:  now.Add(m.leadTime),
		CreatedAt:   now,
		UpdatedAt:   now,
		seq:         m.seq,
	}
	m.byID[b.ID] = b
	m.open[sku] = append(m.open[sku], b)
	m.mu.Unlock()

	m.outbox.Append(NewBackorderOpenedEvent(b))
	view := b.view()
	lock.Unlock()

	m.outbox.Flush(ctx)
	m.logger.Info("backorder opened",
		zap.String("backorder_id", b.ID.String()),
		zap.String("order_id", orderID),
		zap.String("sku", sku),
		zap.Int64("quantity", quantity),
	)
	return view, nil
}

// OnRestock promotes open backorders of sku, first created first served,
// from the stock now available at warehouseID. A backorder that can only
// be partly covered keeps its remainder open and ends the scan.
func (m *BackorderManager) OnRestock(ctx context.Context, sku, warehouseID string) {
	m.promote(ctx, sku, []string{warehouseID})
}

// Reevaluate runs promotion for sku against every active warehouse that
// currently has available stock. Stock that arrived while a backorder was
// being opened is picked up here instead of waiting for the next restock.
func (m *BackorderManager) Reevaluate(ctx context.Context, sku string) {
	ledger := m.reservations.Ledger()
	var warehouseIDs []string
	for _, snap := range ledger.Availability(sku) {
		if snap.Available <= 0 {
			continue
		}
		if w, err := ledger.Warehouse(snap.WarehouseID); err != nil || !w.Active {
			continue
		}
		warehouseIDs = append(warehouseIDs, snap.WarehouseID)
	}
	if len(warehouseIDs) > 0 {
		m.promote(ctx, sku, warehouseIDs)
	}
}

// promote walks the open queue of sku once per warehouse, in order
func (m *BackorderManager) promote(ctx context.Context, sku string, warehouseIDs []string) {
	lock := m.skuLock(sku)
	lock.Lock()

	var promoted []BackorderView
	for _, warehouseID := range warehouseIDs {
		promoted = append(promoted, m.promoteFrom(ctx, sku, warehouseID)...)
	}
	lock.Unlock()

	m.outbox.Flush(ctx)
	if len(promoted) == 0 {
		return
	}
	m.mu.Lock()
	listeners := append([]PromotionListener(nil), m.listeners...)
	m.mu.Unlock()
	for _, view := range promoted {
		for _, l := range listeners {
			l.OnBackorderPromoted(ctx, view)
		}
	}
}

// promoteFrom requires the SKU lock
func (m *BackorderManager) promoteFrom(ctx context.Context, sku, warehouseID string) []BackorderView {
	m.mu.Lock()
	queue := append([]*Backorder(nil), m.open[sku]...)
	m.mu.Unlock()

	var promoted []BackorderView
	for _, b := range queue {
		owner := inventory.Owner{Kind: inventory.OwnerBackorder, ID: b.ID.String()}
		res, err := m.reservations.ReserveUpTo(ctx, owner, sku, warehouseID, b.Outstanding)
		if err != nil {
			m.logger.Error("backorder promotion failed",
				zap.String("backorder_id", b.ID.String()),
				zap.String("warehouse_id", warehouseID),
				zap.Error(err),
			)
			break
		}
		if res == nil {
			break
		}

		got := res.Total()
		b.reservations = append(b.reservations, res)
		b.Outstanding -= got
		b.Promoted += got
		b.UpdatedAt = m.now()

		if b.Outstanding > 0 {
			m.logger.Info("backorder partially promoted",
				zap.String("backorder_id", b.ID.String()),
				zap.Int64("promoted", got),
				zap.Int64("outstanding", b.Outstanding),
			)
			break
		}
		b.Status = BackorderStatusPromoted
		m.removeOpen(b)
		m.outbox.Append(NewBackorderPromotedEvent(b))
		promoted = append(promoted, b.view())
		m.logger.Info("backorder promoted",
			zap.String("backorder_id", b.ID.String()),
			zap.String("order_id", b.OrderID),
			zap.String("sku", sku),
			zap.String("warehouse_id", warehouseID),
		)
	}
	return promoted
}

// removeOpen requires the SKU lock of b
func (m *BackorderManager) removeOpen(b *Backorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	queue := m.open[b.SKU]
	for i, o := range queue {
		if o == b {
			m.open[b.SKU] = append(queue[:i:i], queue[i+1:]...)
			break
		}
	}
	if len(m.open[b.SKU]) == 0 {
		delete(m.open, b.SKU)
	}
}

func (m *BackorderManager) lookup(id uuid.UUID) (*Backorder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byID[id]
	if !ok {
		return nil, shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("backorder %s not found", id))
	}
	return b, nil
}

// Cancel withdraws an open backorder and releases whatever was already
// reserved for it. Promoted and cancelled backorders fail with
// InvalidStateError.
func (m *BackorderManager) Cancel(ctx context.Context, id uuid.UUID) error {
	b, err := m.lookup(id)
	if err != nil {
		return err
	}
	lock := m.skuLock(b.SKU)
	lock.Lock()

	if b.Status != BackorderStatusOpen {
		status := b.Status
		lock.Unlock()
		return &inventory.InvalidStateError{Entity: "backorder", ID: id.String(), State: string(status), Action: "cancel"}
	}
	var released int64
	for _, res := range b.reservations {
		if err := m.reservations.Release(ctx, res); err != nil {
			lock.Unlock()
			return fmt.Errorf("release backorder reservation %s: %w", res.ID(), err)
		}
		released += res.Total()
	}
	b.Status = BackorderStatusCancelled
	b.UpdatedAt = m.now()
	m.removeOpen(b)
	m.outbox.Append(NewBackorderCancelledEvent(b, released))
	lock.Unlock()

	m.outbox.Flush(ctx)
	m.logger.Info("backorder cancelled",
		zap.String("backorder_id", id.String()),
		zap.Int64("released", released),
	)
	return nil
}

// Get returns a copy of a backorder
func (m *BackorderManager) Get(id uuid.UUID) (BackorderView, error) {
	b, err := m.lookup(id)
	if err != nil {
		return BackorderView{}, err
	}
	lock := m.skuLock(b.SKU)
	lock.Lock()
	defer lock.Unlock()
	return b.view(), nil
}

// Reservations returns the reservations taken for a backorder
func (m *BackorderManager) Reservations(id uuid.UUID) ([]*inventory.Reservation, error) {
	b, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	lock := m.skuLock(b.SKU)
	lock.Lock()
	defer lock.Unlock()
	return append([]*inventory.Reservation(nil), b.reservations...), nil
}

// List returns backorders in creation order. An empty sku lists all of
// them; status filters when non-empty.
func (m *BackorderManager) List(sku string, status BackorderStatus) []BackorderView {
	m.mu.Lock()
	all := make([]*Backorder, 0, len(m.byID))
	for _, b := range m.byID {
		if sku == "" || b.SKU == sku {
			all = append(all, b)
		}
	}
	m.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	out := make([]BackorderView, 0, len(all))
	for _, b := range all {
		lock := m.skuLock(b.SKU)
		lock.Lock()
		v := b.view()
		lock.Unlock()
		if status == "" || v.Status == status {
			out = append(out, v)
		}
	}
	return out
}
