package inventory

import (
	"sync"

	"github.com/google/uuid"
)

// HoldState is the lifecycle state of a hold or reservation
type HoldState string

const (
	HoldStateHeld      HoldState = "held"
	HoldStateCommitted HoldState = "committed"
	HoldStateReleased  HoldState = "released"
)

// IsTerminal reports whether no further transition is possible
func (s HoldState) IsTerminal() bool {
	return s == HoldStateCommitted || s == HoldStateReleased
}

// Hold is a quantity of one stock record set aside for an owner.
// The hold's state lives on the record; Hold itself is an immutable handle.
type Hold struct {
	ID            uuid.UUID `json:"id"`
	ReservationID uuid.UUID `json:"reservation_id"`
	Owner         Owner     `json:"owner"`
	Key           RecordKey `json:"key"`
	Quantity      int64     `json:"quantity"`
}

// retiredHoldLimit bounds how many terminal holds a record remembers.
// Older terminal holds are reported as not found.
const retiredHoldLimit = 256

// StockRecord is the stock of one SKU in one warehouse.
// Every field is guarded by mu.
//
// holds contains open holds only. A hold that is committed or released moves
// to retired, a fixed-size ring, so repeating a release stays a no-op without
// the record growing with its history.
type StockRecord struct {
	mu                sync.Mutex
	key               RecordKey
	onHand            int64
	reserved          int64
	lowStockThreshold int64
	holds             map[uuid.UUID]Hold
	retired           map[uuid.UUID]HoldState
	retiredRing       []uuid.UUID
	retiredNext       int
}

func newStockRecord(key RecordKey, threshold int64) *StockRecord {
	return &StockRecord{
		key:               key,
		lowStockThreshold: threshold,
		holds:             make(map[uuid.UUID]Hold),
		retired:           make(map[uuid.UUID]HoldState),
	}
}

// RecordSnapshot is a point-in-time copy of a stock record
type RecordSnapshot struct {
	SKU               string `json:"sku"`
	WarehouseID       string `json:"warehouse_id"`
	OnHand            int64  `json:"on_hand"`
	Reserved          int64  `json:"reserved"`
	Available         int64  `json:"available"`
	LowStockThreshold int64  `json:"low_stock_threshold"`
}

// The methods below require r.mu to be held.

func (r *StockRecord) available() int64 {
	return r.onHand - r.reserved
}

func (r *StockRecord) snapshot() RecordSnapshot {
	return RecordSnapshot{
		SKU:               r.key.SKU,
		WarehouseID:       r.key.WarehouseID,
		OnHand:            r.onHand,
		Reserved:          r.reserved,
		Available:         r.available(),
		LowStockThreshold: r.lowStockThreshold,
	}
}

func (r *StockRecord) hold(owner Owner, reservationID uuid.UUID, quantity int64) Hold {
	h := Hold{
		ID:            uuid.New(),
		ReservationID: reservationID,
		Owner:         owner,
		Key:           r.key,
		Quantity:      quantity,
	}
	r.holds[h.ID] = h
	r.reserved += quantity
	return h
}

// holdState looks a hold up among open and retired holds
func (r *StockRecord) holdState(id uuid.UUID) (Hold, HoldState, bool) {
	if h, ok := r.holds[id]; ok {
		return h, HoldStateHeld, true
	}
	if s, ok := r.retired[id]; ok {
		return Hold{}, s, true
	}
	return Hold{}, "", false
}

// retire removes an open hold and remembers its terminal state, evicting
// the oldest retired hold once the ring is full.
func (r *StockRecord) retire(id uuid.UUID, state HoldState) {
	delete(r.holds, id)
	if len(r.retiredRing) < retiredHoldLimit {
		r.retiredRing = append(r.retiredRing, id)
	} else {
		delete(r.retired, r.retiredRing[r.retiredNext])
		r.retiredRing[r.retiredNext] = id
		r.retiredNext = (r.retiredNext + 1) % retiredHoldLimit
	}
	r.retired[id] = state
}

// heldSum returns the total quantity of open holds
func (r *StockRecord) heldSum() int64 {
	var sum int64
	for _, h := range r.holds {
		sum += h.Quantity
	}
	return sum
}
