package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/fulfillment/internal/domain/shared"
)

// RestockObserver is notified after stock was added to a record and the
// record lock was released. The backorder manager uses it to promote
// waiting backorders.
type RestockObserver interface {
	OnRestock(ctx context.Context, sku, warehouseID string)
}

// LedgerOption is a functional option for configuring Ledger
type LedgerOption func(*Ledger)

// WithDefaultLowStockThreshold sets the threshold given to newly created records
func WithDefaultLowStockThreshold(threshold int64) LedgerOption {
	return func(l *Ledger) {
		if threshold >= 0 {
			l.defaultLowStockThreshold = threshold
		}
	}
}

// Ledger owns every stock record and the warehouse registry.
//
// All primitives on one record are serialized by that record's mutex.
// l.mu only guards the maps and is never held while a record lock is being
// acquired; the reverse (reading the maps while holding record locks) is
// allowed.
type Ledger struct {
	mu         sync.RWMutex
	records    map[RecordKey]*StockRecord
	bySKU      map[string][]RecordKey
	warehouses map[string]Warehouse
	observer   RestockObserver

	// totalsMu is a leaf lock taken under record locks
	totalsMu sync.Mutex
	totals   map[string]int64

	defaultLowStockThreshold int64

	outbox *shared.EventOutbox
	logger *zap.Logger
}

// NewLedger creates an empty ledger appending its events to outbox
func NewLedger(outbox *shared.EventOutbox, logger *zap.Logger, opts ...LedgerOption) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if outbox == nil {
		outbox = shared.NewEventOutbox(nil, logger)
	}
	l := &Ledger{
		records:    make(map[RecordKey]*StockRecord),
		bySKU:      make(map[string][]RecordKey),
		warehouses: make(map[string]Warehouse),
		totals:     make(map[string]int64),
		outbox:     outbox,
		logger:     logger.Named("ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Outbox returns the outbox the ledger appends to
func (l *Ledger) Outbox() *shared.EventOutbox {
	return l.outbox
}

// SetRestockObserver registers the observer called after restocks
func (l *Ledger) SetRestockObserver(o RestockObserver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observer = o
}

// RegisterWarehouse adds an active warehouse
func (l *Ledger) RegisterWarehouse(ctx context.Context, w Warehouse) (Warehouse, error) {
	if err := w.validate(); err != nil {
		return Warehouse{}, err
	}
	w.Active = true

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.warehouses[w.ID]; exists {
		return Warehouse{}, shared.NewDomainError(shared.CodeAlreadyExists,
			fmt.Sprintf("warehouse %s already registered", w.ID))
	}
	l.warehouses[w.ID] = w
	l.logger.Info("warehouse registered",
		zap.String("warehouse_id", w.ID),
		zap.Int64("capacity", w.Capacity),
	)
	return w, nil
}

// DeactivateWarehouse stops a warehouse from receiving stock and from being
// planned against. Existing holds and stock stay untouched.
func (l *Ledger) DeactivateWarehouse(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.warehouses[id]
	if !ok {
		return &UnknownWarehouseError{WarehouseID: id}
	}
	w.Active = false
	l.warehouses[id] = w
	l.logger.Info("warehouse deactivated", zap.String("warehouse_id", id))
	return nil
}

// Warehouse returns a registered warehouse
func (l *Ledger) Warehouse(id string) (Warehouse, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	w, ok := l.warehouses[id]
	if !ok {
		return Warehouse{}, &UnknownWarehouseError{WarehouseID: id}
	}
	return w, nil
}

// Warehouses returns every registered warehouse ordered by id
func (l *Ledger) Warehouses() []Warehouse {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Warehouse, 0, len(l.warehouses))
	for _, w := range l.warehouses {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *Ledger) warehouseSnapshot() map[string]Warehouse {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]Warehouse, len(l.warehouses))
	for id, w := range l.warehouses {
		out[id] = w
	}
	return out
}

// lookupRecord returns the record for key, or nil when the warehouse is
// registered but has never held the SKU
func (l *Ledger) lookupRecord(key RecordKey) (*StockRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.warehouses[key.WarehouseID]; !ok {
		return nil, &UnknownWarehouseError{WarehouseID: key.WarehouseID}
	}
	return l.records[key], nil
}

func (l *Ledger) ensureRecord(key RecordKey) (*StockRecord, error) {
	if rec, err := l.lookupRecord(key); err != nil || rec != nil {
		return rec, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[key]; ok {
		return rec, nil
	}
	rec := newStockRecord(key, l.defaultLowStockThreshold)
	l.records[key] = rec

	keys := append(l.bySKU[key.SKU], key)
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	l.bySKU[key.SKU] = keys
	return rec, nil
}

// recordsForSKUs returns the existing records of skus in lock order
func (l *Ledger) recordsForSKUs(skus []string) []*StockRecord {
	l.mu.RLock()
	var recs []*StockRecord
	for _, sku := range skus {
		for _, key := range l.bySKU[sku] {
			recs = append(recs, l.records[key])
		}
	}
	l.mu.RUnlock()

	sortRecords(recs)
	return recs
}

func (l *Ledger) allRecords() []*StockRecord {
	l.mu.RLock()
	recs := make([]*StockRecord, 0, len(l.records))
	for _, rec := range l.records {
		recs = append(recs, rec)
	}
	l.mu.RUnlock()

	sortRecords(recs)
	return recs
}

func sortRecords(recs []*StockRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].key.Less(recs[j].key) })
}

func lockRecords(recs []*StockRecord) {
	for _, r := range recs {
		r.mu.Lock()
	}
}

func unlockRecords(recs []*StockRecord) {
	for i := len(recs) - 1; i >= 0; i-- {
		recs[i].mu.Unlock()
	}
}

// addTotal adds delta to the on-hand total of a warehouse. A positive delta
// that would overflow leaves the total untouched and reports false.
func (l *Ledger) addTotal(warehouseID string, delta int64) (int64, bool) {
	l.totalsMu.Lock()
	defer l.totalsMu.Unlock()
	total := l.totals[warehouseID]
	if delta > 0 {
		next, ok := shared.AddQuantity(total, delta)
		if !ok {
			return total, false
		}
		total = next
	} else {
		total += delta
	}
	l.totals[warehouseID] = total
	return total, true
}

// Reserve places a hold of quantity units on one record
func (l *Ledger) Reserve(ctx context.Context, owner Owner, sku, warehouseID string, quantity int64) (Hold, error) {
	if quantity <= 0 {
		return Hold{}, &InvalidQuantityError{Quantity: quantity}
	}
	rec, err := l.lookupRecord(RecordKey{SKU: sku, WarehouseID: warehouseID})
	if err != nil {
		return Hold{}, err
	}
	if rec == nil {
		return Hold{}, &InsufficientStockError{SKU: sku, WarehouseID: warehouseID, Requested: quantity}
	}

	rec.mu.Lock()
	h, err := l.reserveLocked(rec, owner, uuid.Nil, quantity)
	rec.mu.Unlock()
	if err != nil {
		return Hold{}, err
	}
	l.outbox.Flush(ctx)
	return h, nil
}

// Release returns a held quantity to available stock.
// Releasing an already released hold is a no-op.
func (l *Ledger) Release(ctx context.Context, h Hold) error {
	rec, err := l.lookupRecord(h.Key)
	if err != nil {
		return err
	}
	if rec == nil {
		return holdNotFound(h.ID)
	}

	rec.mu.Lock()
	err = l.releaseLocked(rec, h.ID)
	rec.mu.Unlock()
	if err != nil {
		return err
	}
	l.outbox.Flush(ctx)
	return nil
}

// Commit removes held units from the warehouse
func (l *Ledger) Commit(ctx context.Context, h Hold) error {
	rec, err := l.lookupRecord(h.Key)
	if err != nil {
		return err
	}
	if rec == nil {
		return holdNotFound(h.ID)
	}

	rec.mu.Lock()
	err = l.commitLocked(rec, h.ID)
	rec.mu.Unlock()
	if err != nil {
		return err
	}
	l.outbox.Flush(ctx)
	return nil
}

// HoldState returns the current state of a hold
func (l *Ledger) HoldState(h Hold) (HoldState, error) {
	rec, err := l.lookupRecord(h.Key)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", holdNotFound(h.ID)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	_, state, ok := rec.holdState(h.ID)
	if !ok {
		return "", holdNotFound(h.ID)
	}
	return state, nil
}

// Restock adds units to a record, creating it if needed, and then lets the
// restock observer promote backorders.
func (l *Ledger) Restock(ctx context.Context, sku, warehouseID string, quantity int64) error {
	return l.receive(ctx, sku, warehouseID, quantity, RestockSourceRestock, "", true)
}

// ReceiveTransfer adds units arriving from another warehouse. Like Restock,
// it promotes backorders.
func (l *Ledger) ReceiveTransfer(ctx context.Context, sku, warehouseID string, quantity int64, transferID string) error {
	return l.receive(ctx, sku, warehouseID, quantity, RestockSourceTransferIn, transferID, true)
}

// Credit puts units back on hand as compensation for an aborted operation.
// The warehouse may be inactive and no backorder promotion is triggered.
func (l *Ledger) Credit(ctx context.Context, sku, warehouseID string, quantity int64, reference string) error {
	return l.receive(ctx, sku, warehouseID, quantity, RestockSourceCompensation, reference, false)
}

func (l *Ledger) receive(
	ctx context.Context,
	sku, warehouseID string,
	quantity int64,
	source RestockSource,
	reference string,
	promote bool,
) error {
	if quantity <= 0 {
		return &InvalidQuantityError{Quantity: quantity}
	}
	w, err := l.Warehouse(warehouseID)
	if err != nil {
		return err
	}
	if promote && !w.Active {
		return &WarehouseInactiveError{WarehouseID: warehouseID}
	}
	rec, err := l.ensureRecord(RecordKey{SKU: sku, WarehouseID: warehouseID})
	if err != nil {
		return err
	}

	rec.mu.Lock()
	onHand, ok := shared.AddQuantity(rec.onHand, quantity)
	if !ok {
		rec.mu.Unlock()
		return &QuantityOverflowError{SKU: sku, WarehouseID: warehouseID, OnHand: rec.onHand, Quantity: quantity}
	}
	total, ok := l.addTotal(warehouseID, quantity)
	if !ok {
		rec.mu.Unlock()
		return &QuantityOverflowError{WarehouseID: warehouseID, OnHand: total, Quantity: quantity}
	}
	rec.onHand = onHand
	l.outbox.Append(NewStockRestockedEvent(rec, quantity, source, reference))
	if w.Capacity > 0 && total > w.Capacity {
		capErr := &CapacityExceededError{WarehouseID: warehouseID, Capacity: w.Capacity, OnHand: total}
		l.outbox.Append(NewCapacityExceededEvent(capErr))
		l.logger.Warn("warehouse capacity exceeded",
			zap.String("warehouse_id", warehouseID),
			zap.Int64("capacity", w.Capacity),
			zap.Int64("on_hand", total),
		)
	}
	rec.mu.Unlock()

	l.logger.Debug("stock received",
		zap.String("sku", sku),
		zap.String("warehouse_id", warehouseID),
		zap.Int64("quantity", quantity),
		zap.String("source", string(source)),
	)
	l.outbox.Flush(ctx)

	if promote {
		l.mu.RLock()
		obs := l.observer
		l.mu.RUnlock()
		if obs != nil {
			obs.OnRestock(ctx, sku, warehouseID)
		}
	}
	return nil
}

// SetLowStockThreshold sets the alert threshold of one record
func (l *Ledger) SetLowStockThreshold(ctx context.Context, sku, warehouseID string, threshold int64) error {
	if threshold < 0 {
		return shared.NewDomainError(shared.CodeInvalidInput, "low stock threshold cannot be negative")
	}
	rec, err := l.ensureRecord(RecordKey{SKU: sku, WarehouseID: warehouseID})
	if err != nil {
		return err
	}

	rec.mu.Lock()
	old := rec.lowStockThreshold
	rec.lowStockThreshold = threshold
	if avail := rec.available(); avail > old && avail <= threshold {
		l.outbox.Append(NewLowStockAlertEvent(rec))
	}
	rec.mu.Unlock()

	l.outbox.Flush(ctx)
	return nil
}

// Snapshot returns a copy of one record. A warehouse that never held the
// SKU reports zeros.
func (l *Ledger) Snapshot(sku, warehouseID string) (RecordSnapshot, error) {
	rec, err := l.lookupRecord(RecordKey{SKU: sku, WarehouseID: warehouseID})
	if err != nil {
		return RecordSnapshot{}, err
	}
	if rec == nil {
		return RecordSnapshot{SKU: sku, WarehouseID: warehouseID, LowStockThreshold: l.defaultLowStockThreshold}, nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snapshot(), nil
}

// Availability returns the records of sku ordered by warehouse id.
// Each record is read under its own lock.
func (l *Ledger) Availability(sku string) []RecordSnapshot {
	recs := l.recordsForSKUs([]string{sku})
	out := make([]RecordSnapshot, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.snapshot())
		rec.mu.Unlock()
	}
	return out
}

// LowStock returns the records whose available stock is at or below
// threshold, or at or below their own threshold when threshold is nil.
func (l *Ledger) LowStock(threshold *int64) []RecordSnapshot {
	var out []RecordSnapshot
	for _, rec := range l.allRecords() {
		rec.mu.Lock()
		snap := rec.snapshot()
		rec.mu.Unlock()

		limit := snap.LowStockThreshold
		if threshold != nil {
			limit = *threshold
		}
		if snap.Available <= limit {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SKU != out[j].SKU {
			return out[i].SKU < out[j].SKU
		}
		return out[i].WarehouseID < out[j].WarehouseID
	})
	return out
}

// WarehouseUsage is the stock held by one warehouse
type WarehouseUsage struct {
	Warehouse Warehouse `json:"warehouse"`
	OnHand    int64     `json:"on_hand"`
	Reserved  int64     `json:"reserved"`
	SKUCount  int       `json:"sku_count"`
}

// Utilization reports on-hand and reserved totals per warehouse
func (l *Ledger) Utilization() []WarehouseUsage {
	usage := make(map[string]*WarehouseUsage)
	for _, w := range l.Warehouses() {
		usage[w.ID] = &WarehouseUsage{Warehouse: w}
	}
	for _, rec := range l.allRecords() {
		rec.mu.Lock()
		u, ok := usage[rec.key.WarehouseID]
		if ok {
			u.OnHand += rec.onHand
			u.Reserved += rec.reserved
			if rec.onHand > 0 {
				u.SKUCount++
			}
		}
		rec.mu.Unlock()
	}

	out := make([]WarehouseUsage, 0, len(usage))
	for _, u := range usage {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Warehouse.ID < out[j].Warehouse.ID })
	return out
}

// AuditViolation describes a record breaking a ledger invariant
type AuditViolation struct {
	Key      RecordKey `json:"key"`
	OnHand   int64     `json:"on_hand"`
	Reserved int64     `json:"reserved"`
	HeldSum  int64     `json:"held_sum"`
	Reason   string    `json:"reason"`
}

// Audit checks 0 <= reserved <= on_hand and that reserved equals the sum of
// open holds, for every record. An empty result means the ledger is sound.
func (l *Ledger) Audit() []AuditViolation {
	var out []AuditViolation
	for _, rec := range l.allRecords() {
		rec.mu.Lock()
		v := AuditViolation{Key: rec.key, OnHand: rec.onHand, Reserved: rec.reserved, HeldSum: rec.heldSum()}
		rec.mu.Unlock()

		switch {
		case v.Reserved < 0:
			v.Reason = "reserved is negative"
		case v.Reserved > v.OnHand:
			v.Reason = "reserved exceeds on hand"
		case v.Reserved != v.HeldSum:
			v.Reason = "reserved does not match open holds"
		default:
			continue
		}
		out = append(out, v)
	}
	return out
}

// The *Locked methods require rec.mu to be held by the caller. They append
// events to the outbox but never flush it.

func (l *Ledger) reserveLocked(rec *StockRecord, owner Owner, reservationID uuid.UUID, quantity int64) (Hold, error) {
	before := rec.available()
	if before < quantity {
		return Hold{}, &InsufficientStockError{
			SKU:         rec.key.SKU,
			WarehouseID: rec.key.WarehouseID,
			Requested:   quantity,
			Available:   before,
		}
	}
	h := rec.hold(owner, reservationID, quantity)
	l.outbox.Append(NewStockReservedEvent(rec, h))
	if before > rec.lowStockThreshold && rec.available() <= rec.lowStockThreshold {
		l.outbox.Append(NewLowStockAlertEvent(rec))
	}
	return h, nil
}

func (l *Ledger) releaseLocked(rec *StockRecord, holdID uuid.UUID) error {
	h, state, ok := rec.holdState(holdID)
	if !ok {
		return holdNotFound(holdID)
	}
	switch state {
	case HoldStateReleased:
		return nil
	case HoldStateCommitted:
		return &InvalidStateError{Entity: "hold", ID: holdID.String(), State: string(state), Action: "release"}
	}
	rec.reserved -= h.Quantity
	rec.retire(holdID, HoldStateReleased)
	l.outbox.Append(NewStockReleasedEvent(rec, h))
	return nil
}

func (l *Ledger) commitLocked(rec *StockRecord, holdID uuid.UUID) error {
	h, state, ok := rec.holdState(holdID)
	if !ok {
		return holdNotFound(holdID)
	}
	if state != HoldStateHeld {
		return &InvalidStateError{Entity: "hold", ID: holdID.String(), State: string(state), Action: "commit"}
	}
	rec.onHand -= h.Quantity
	rec.reserved -= h.Quantity
	rec.retire(holdID, HoldStateCommitted)
	l.addTotal(rec.key.WarehouseID, -h.Quantity)
	l.outbox.Append(NewStockCommittedEvent(rec, h))
	return nil
}

func holdNotFound(id uuid.UUID) error {
	return shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("hold %s not found", id))
}
