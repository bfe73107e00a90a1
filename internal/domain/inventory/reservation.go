package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/fulfillment/internal/domain/shared"
)

// Line is a quantity of one SKU to reserve at one warehouse
type Line struct {
	SKU         string `json:"sku"`
	WarehouseID string `json:"warehouse_id"`
	Quantity    int64  `json:"quantity"`
}

// Key returns the record the line reserves against
func (l Line) Key() RecordKey {
	return RecordKey{SKU: l.SKU, WarehouseID: l.WarehouseID}
}

// Reservation is a set of holds, possibly across several records, owned by
// one order, transfer or backorder. Its holds change state together.
type Reservation struct {
	mu        sync.Mutex
	id        uuid.UUID
	owner     Owner
	state     HoldState
	holds     []Hold
	createdAt time.Time
}

// ID returns the reservation id
func (r *Reservation) ID() uuid.UUID { return r.id }

// Owner returns the reservation owner
func (r *Reservation) Owner() Owner { return r.owner }

// CreatedAt returns when the reservation was made
func (r *Reservation) CreatedAt() time.Time { return r.createdAt }

// State returns the current state
func (r *Reservation) State() HoldState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Holds returns a copy of the reservation's holds
func (r *Reservation) Holds() []Hold {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Hold(nil), r.holds...)
}

// Lines returns the reserved quantities as lines, in lock order
func (r *Reservation) Lines() []Line {
	holds := r.Holds()
	out := make([]Line, 0, len(holds))
	for _, h := range holds {
		out = append(out, Line{SKU: h.Key.SKU, WarehouseID: h.Key.WarehouseID, Quantity: h.Quantity})
	}
	return out
}

// Total returns the reserved quantity across all holds
func (r *Reservation) Total() int64 {
	var total int64
	for _, h := range r.Holds() {
		total += h.Quantity
	}
	return total
}

// Snapshot is a consistent view of stock records taken while their locks
// were held, together with the warehouse registry.
type Snapshot struct {
	Records    map[string][]RecordSnapshot `json:"records"`
	Warehouses map[string]Warehouse        `json:"warehouses"`
}

// PlanFunc turns a snapshot into the lines to reserve.
// It runs with the record locks held and must not call back into the ledger.
type PlanFunc func(Snapshot) ([]Line, error)

// ReservationManager makes multi-record reservations atomic.
//
// Record locks are always acquired in (warehouse id, SKU) order, so two
// reservations touching overlapping records cannot deadlock. A reservation
// either takes every hold it asked for or none of them.
type ReservationManager struct {
	ledger *Ledger
	logger *zap.Logger

	mu           sync.RWMutex
	reservations map[uuid.UUID]*Reservation
}

// NewReservationManager creates a manager over ledger
func NewReservationManager(ledger *Ledger, logger *zap.Logger) *ReservationManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationManager{
		ledger:       ledger,
		logger:       logger.Named("reservations"),
		reservations: make(map[uuid.UUID]*Reservation),
	}
}

// Ledger returns the underlying ledger
func (m *ReservationManager) Ledger() *Ledger {
	return m.ledger
}

// normalizeLines validates lines, merges duplicates and sorts them in lock order
func normalizeLines(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "at least one line is required")
	}
	merged := make(map[RecordKey]int64, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, &InvalidQuantityError{Quantity: line.Quantity}
		}
		sum, ok := shared.AddQuantity(merged[line.Key()], line.Quantity)
		if !ok {
			return nil, &QuantityOverflowError{SKU: line.SKU, WarehouseID: line.WarehouseID,
				OnHand: merged[line.Key()], Quantity: line.Quantity}
		}
		merged[line.Key()] = sum
	}
	out := make([]Line, 0, len(merged))
	for key, qty := range merged {
		out = append(out, Line{SKU: key.SKU, WarehouseID: key.WarehouseID, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out, nil
}

// Reserve atomically reserves every line for owner
func (m *ReservationManager) Reserve(ctx context.Context, owner Owner, lines []Line) (*Reservation, error) {
	lines, err := normalizeLines(lines)
	if err != nil {
		return nil, err
	}

	recs := make([]*StockRecord, 0, len(lines))
	for _, line := range lines {
		rec, err := m.ledger.lookupRecord(line.Key())
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, &InsufficientStockError{SKU: line.SKU, WarehouseID: line.WarehouseID, Requested: line.Quantity}
		}
		recs = append(recs, rec)
	}

	lockRecords(recs)
	res, err := m.reserveLocked(owner, lines, recs)
	unlockRecords(recs)
	if err != nil {
		return nil, err
	}

	m.ledger.outbox.Flush(ctx)
	m.track(res)
	return res, nil
}

// ReservePlanned locks every record of skus, hands a snapshot to plan and
// reserves the lines it returns under the same locks. The plan therefore
// cannot go stale. A plan returning no lines yields a nil reservation.
func (m *ReservationManager) ReservePlanned(ctx context.Context, owner Owner, skus []string, plan PlanFunc) (*Reservation, error) {
	recs := m.ledger.recordsForSKUs(skus)
	byKey := make(map[RecordKey]*StockRecord, len(recs))
	for _, rec := range recs {
		byKey[rec.key] = rec
	}

	lockRecords(recs)
	res, err := func() (*Reservation, error) {
		snap := Snapshot{
			Records:    make(map[string][]RecordSnapshot, len(skus)),
			Warehouses: m.ledger.warehouseSnapshot(),
		}
		for _, rec := range recs {
			snap.Records[rec.key.SKU] = append(snap.Records[rec.key.SKU], rec.snapshot())
		}

		planned, err := plan(snap)
		if err != nil {
			return nil, err
		}
		if len(planned) == 0 {
			return nil, nil
		}
		lines, err := normalizeLines(planned)
		if err != nil {
			return nil, err
		}
		selected := make([]*StockRecord, 0, len(lines))
		for _, line := range lines {
			rec, ok := byKey[line.Key()]
			if !ok {
				return nil, &InsufficientStockError{SKU: line.SKU, WarehouseID: line.WarehouseID, Requested: line.Quantity}
			}
			selected = append(selected, rec)
		}
		return m.reserveLocked(owner, lines, selected)
	}()
	unlockRecords(recs)
	if err != nil || res == nil {
		return nil, err
	}

	m.ledger.outbox.Flush(ctx)
	m.track(res)
	return res, nil
}

// ReserveUpTo reserves min(max, available) units of one record. It returns
// a nil reservation when nothing is available.
func (m *ReservationManager) ReserveUpTo(ctx context.Context, owner Owner, sku, warehouseID string, max int64) (*Reservation, error) {
	if max <= 0 {
		return nil, &InvalidQuantityError{Quantity: max}
	}
	rec, err := m.ledger.lookupRecord(RecordKey{SKU: sku, WarehouseID: warehouseID})
	if err != nil || rec == nil {
		return nil, err
	}

	rec.mu.Lock()
	qty := rec.available()
	if qty > max {
		qty = max
	}
	var res *Reservation
	if qty > 0 {
		line := Line{SKU: sku, WarehouseID: warehouseID, Quantity: qty}
		res, err = m.reserveLocked(owner, []Line{line}, []*StockRecord{rec})
	}
	rec.mu.Unlock()
	if err != nil || res == nil {
		return nil, err
	}

	m.ledger.outbox.Flush(ctx)
	m.track(res)
	return res, nil
}

// reserveLocked checks every line before mutating anything, so a failing
// line leaves all records untouched. recs[i] must be the locked record of
// lines[i].
func (m *ReservationManager) reserveLocked(owner Owner, lines []Line, recs []*StockRecord) (*Reservation, error) {
	for i, line := range lines {
		if avail := recs[i].available(); avail < line.Quantity {
			return nil, &InsufficientStockError{
				SKU:         line.SKU,
				WarehouseID: line.WarehouseID,
				Requested:   line.Quantity,
				Available:   avail,
			}
		}
	}

	res := &Reservation{
		id:        uuid.New(),
		owner:     owner,
		state:     HoldStateHeld,
		holds:     make([]Hold, 0, len(lines)),
		createdAt: time.Now(),
	}
	// compensation log: undo holds already taken if a later line fails
	for i, line := range lines {
		h, err := m.ledger.reserveLocked(recs[i], owner, res.id, line.Quantity)
		if err != nil {
			for j := len(res.holds) - 1; j >= 0; j-- {
				_ = m.ledger.releaseLocked(recs[j], res.holds[j].ID)
			}
			return nil, err
		}
		res.holds = append(res.holds, h)
	}
	return res, nil
}

func (m *ReservationManager) track(res *Reservation) {
	m.mu.Lock()
	m.reservations[res.id] = res
	m.mu.Unlock()

	m.logger.Debug("reservation created",
		zap.String("reservation_id", res.id.String()),
		zap.String("owner", res.owner.String()),
		zap.Int("holds", len(res.holds)),
	)
}

// Get returns a reservation by id
func (m *ReservationManager) Get(id uuid.UUID) (*Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.reservations[id]
	if !ok {
		return nil, shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("reservation %s not found", id))
	}
	return res, nil
}

// Commit moves every hold of the reservation out of the warehouses.
// It fails with InvalidStateError unless the reservation is held.
func (m *ReservationManager) Commit(ctx context.Context, res *Reservation) error {
	return m.finish(ctx, res, HoldStateCommitted)
}

// Release returns every hold of the reservation to available stock.
// Releasing a released reservation is a no-op; releasing a committed one
// fails with InvalidStateError.
func (m *ReservationManager) Release(ctx context.Context, res *Reservation) error {
	return m.finish(ctx, res, HoldStateReleased)
}

func (m *ReservationManager) finish(ctx context.Context, res *Reservation, target HoldState) error {
	res.mu.Lock()
	switch {
	case res.state == HoldStateReleased && target == HoldStateReleased:
		res.mu.Unlock()
		return nil
	case res.state != HoldStateHeld:
		state := res.state
		res.mu.Unlock()
		action := "commit"
		if target == HoldStateReleased {
			action = "release"
		}
		return &InvalidStateError{Entity: "reservation", ID: res.id.String(), State: string(state), Action: action}
	}

	recs := make([]*StockRecord, 0, len(res.holds))
	for _, h := range res.holds {
		rec, err := m.ledger.lookupRecord(h.Key)
		if err != nil || rec == nil {
			res.mu.Unlock()
			if err == nil {
				err = holdNotFound(h.ID)
			}
			return err
		}
		recs = append(recs, rec)
	}

	// holds are stored in lock order
	lockRecords(recs)
	var err error
	for i, h := range res.holds {
		if target == HoldStateCommitted {
			err = m.ledger.commitLocked(recs[i], h.ID)
		} else {
			err = m.ledger.releaseLocked(recs[i], h.ID)
		}
		if err != nil {
			break
		}
	}
	if err == nil {
		res.state = target
	}
	unlockRecords(recs)
	res.mu.Unlock()

	if err != nil {
		m.logger.Error("reservation hold out of sync",
			zap.String("reservation_id", res.id.String()),
			zap.Error(err),
		)
		return err
	}
	m.ledger.outbox.Flush(ctx)

	m.logger.Debug("reservation finished",
		zap.String("reservation_id", res.id.String()),
		zap.String("state", string(target)),
	)
	return nil
}
