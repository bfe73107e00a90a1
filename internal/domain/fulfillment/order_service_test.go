package fulfillment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/fulfillment/internal/domain/catalog"
	"github.com/erp/fulfillment/internal/domain/inventory"
	"github.com/erp/fulfillment/internal/domain/shared"
)

func place(sku string, qty int64) PlaceOrderRequest {
	return PlaceOrderRequest{CustomerID: "c-1", Lines: []catalog.Line{{SKU: sku, Quantity: qty}}}
}

func TestOrderService_PlaceOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("fully reserved across warehouses", func(t *testing.T) {
		h := newHarness(t, "W1", "W2")
		h.define(t, "X")
		h.restock(t, "X", "W1", 10)
		h.restock(t, "X", "W2", 5)

		result, err := h.orders.PlaceOrder(ctx, place("X", 12))
		require.NoError(t, err)
		assert.Equal(t, OrderStatusReserved, result.Status)
		assert.Equal(t, []Allocation{
			{SKU: "X", WarehouseID: "W1", Quantity: 10},
			{SKU: "X", WarehouseID: "W2", Quantity: 2},
		}, result.Allocations)
		assert.Empty(t, result.ResidualDemand)
		assert.Empty(t, result.BackorderIDs)

		res, err := h.rm.Get(result.ReservationID)
		require.NoError(t, err)
		assert.Equal(t, inventory.Owner{Kind: inventory.OwnerOrder, ID: result.OrderID}, res.Owner())
		assert.Equal(t, int64(0), h.available(t, "X", "W1"))
		assert.Equal(t, int64(3), h.available(t, "X", "W2"))

		placed := h.pub.OfType(EventTypeOrderPlaced)
		require.Len(t, placed, 1)
		assert.Equal(t, OrderStatusReserved, placed[0].(*OrderPlacedEvent).Status)
	})

	t.Run("bundle expands before planning", func(t *testing.T) {
		h := newHarness(t, "W1")
		h.define(t, "X", "Y")
		_, err := h.catalog.Define(catalog.Definition{SKU: "A", Kind: catalog.KindBundle, Components: []catalog.Component{
			{SKU: "X", Quantity: 2}, {SKU: "Y", Quantity: 1},
		}})
		require.NoError(t, err)
		h.restock(t, "X", "W1", 6)
		h.restock(t, "Y", "W1", 3)

		result, err := h.orders.PlaceOrder(ctx, place("A", 3))
		require.NoError(t, err)
		assert.Equal(t, OrderStatusReserved, result.Status)

		view, err := h.orders.GetOrder(result.OrderID)
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"X": 6, "Y": 3}, view.Demand)
	})

	t.Run("partial coverage opens backorders", func(t *testing.T) {
		h := newHarness(t, "W1")
		h.define(t, "X", "Y")
		h.restock(t, "X", "W1", 2)

		result, err := h.orders.PlaceOrder(ctx, PlaceOrderRequest{
			CustomerID: "c-1",
			Lines:      []catalog.Line{{SKU: "X", Quantity: 5}, {SKU: "Y", Quantity: 1}},
		})
		require.NoError(t, err)
		assert.Equal(t, OrderStatusPartiallyReserved, result.Status)
		assert.Equal(t, map[string]int64{"X": 3, "Y": 1}, result.ResidualDemand)
		require.Len(t, result.BackorderIDs, 2)

		b, err := h.backorders.Get(result.BackorderIDs[0])
		require.NoError(t, err)
		assert.Equal(t, "X", b.SKU)
		assert.Equal(t, result.OrderID, b.OrderID)
		assert.Equal(t, int64(3), b.Outstanding)
	})

	t.Run("nothing available backorders the whole order", func(t *testing.T) {
		h := newHarness(t, "W1")
		h.define(t, "X")

		result, err := h.orders.PlaceOrder(ctx, place("X", 2))
		require.NoError(t, err)
		assert.Equal(t, OrderStatusBackordered, result.Status)
		assert.Equal(t, uuid.Nil, result.ReservationID)
		assert.Len(t, result.BackorderIDs, 1)
	})

	t.Run("reject policy reserves nothing", func(t *testing.T) {
		h := newHarness(t, "W1")
		h.define(t, "X", "Y")
		h.restock(t, "X", "W1", 5)
		h.restock(t, "Y", "W1", 1)

		req := PlaceOrderRequest{
			CustomerID: "c-1",
			Lines:      []catalog.Line{{SKU: "X", Quantity: 2}, {SKU: "Y", Quantity: 3}},
			Policy:     BackorderPolicyReject,
		}
		_, err := h.orders.PlaceOrder(ctx, req)
		var insufficient *inventory.InsufficientStockError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, "Y", insufficient.SKU)
		assert.Equal(t, int64(3), insufficient.Requested)
		assert.Equal(t, int64(1), insufficient.Available)

		assert.Equal(t, int64(5), h.available(t, "X", "W1"))
		assert.Empty(t, h.backorders.List("", ""))
		assert.Empty(t, h.orders.ListOrders())
	})

	t.Run("catalog errors reject the order", func(t *testing.T) {
		h := newHarness(t, "W1")
		h.define(t, "X")
		h.restock(t, "X", "W1", 5)

		_, err := h.orders.PlaceOrder(ctx, PlaceOrderRequest{
			CustomerID: "c-1",
			Lines:      []catalog.Line{{SKU: "X", Quantity: 1}, {SKU: "NOPE", Quantity: 1}},
		})
		assert.True(t, errors.Is(err, shared.ErrUnknownSKU))
		assert.Equal(t, int64(5), h.available(t, "X", "W1"))
	})

	t.Run("bundle demand overflow rejects the order", func(t *testing.T) {
		h := newHarness(t, "W1")
		h.define(t, "X")
		_, err := h.catalog.Define(catalog.Definition{SKU: "A", Kind: catalog.KindBundle, Components: []catalog.Component{
			{SKU: "X", Quantity: 4},
		}})
		require.NoError(t, err)
		h.restock(t, "X", "W1", 5)

		result, err := h.orders.PlaceOrder(ctx, place("A", 1<<62))
		assert.Nil(t, result)
		var overflow *catalog.QuantityOverflowError
		require.ErrorAs(t, err, &overflow)
		assert.Equal(t, shared.CodeInvalidQuantity, shared.CodeOf(err))

		assert.Equal(t, int64(5), h.available(t, "X", "W1"))
		assert.Empty(t, h.orders.ListOrders())
		assert.Empty(t, h.pub.OfType(EventTypeOrderPlaced))
	})

	t.Run("input validation", func(t *testing.T) {
		h := newHarness(t, "W1")
		h.define(t, "X")

		_, err := h.orders.PlaceOrder(ctx, PlaceOrderRequest{Lines: []catalog.Line{{SKU: "X", Quantity: 1}}})
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))

		req := place("X", 1)
		req.Policy = "maybe"
		_, err = h.orders.PlaceOrder(ctx, req)
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	})
}

func TestOrderService_BackorderPromotionReservesOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "W1")
	h.define(t, "X")
	h.restock(t, "X", "W1", 1)

	result, err := h.orders.PlaceOrder(ctx, place("X", 4))
	require.NoError(t, err)
	require.Equal(t, OrderStatusPartiallyReserved, result.Status)

	err = h.orders.FulfillOrder(ctx, result.OrderID)
	assert.True(t, errors.Is(err, shared.ErrInvalidState))

	h.restock(t, "X", "W1", 2)
	view, err := h.orders.GetOrder(result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPartiallyReserved, view.Status)

	h.restock(t, "X", "W1", 5)
	view, err = h.orders.GetOrder(result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusReserved, view.Status)
	assert.Equal(t, int64(4), h.available(t, "X", "W1"))

	require.NoError(t, h.orders.FulfillOrder(ctx, result.OrderID))
	snap, err := h.ledger.Snapshot("X", "W1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), snap.OnHand)
	assert.Equal(t, int64(0), snap.Reserved)

	fulfilled := h.pub.OfType(EventTypeOrderFulfilled)
	require.Len(t, fulfilled, 1)
	assert.Equal(t, int64(4), fulfilled[0].(*OrderFulfilledEvent).Units)
	assert.Empty(t, h.ledger.Audit())
}

func TestOrderService_RestockWhileOpeningBackorders(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "W1", "W2")
	h.define(t, "X")
	h.restock(t, "X", "W1", 1)

	restocked := false
	h.orders.afterReserve = func(ctx context.Context) {
		restocked = true
		h.restock(t, "X", "W2", 5)
		assert.Empty(t, h.backorders.List("X", ""), "backorder not opened yet")
	}

	result, err := h.orders.PlaceOrder(ctx, place("X", 3))
	require.NoError(t, err)
	require.True(t, restocked)
	assert.Equal(t, OrderStatusReserved, result.Status)
	require.Len(t, result.BackorderIDs, 1)
	assert.Equal(t, map[string]int64{"X": 2}, result.ResidualDemand)

	b, err := h.backorders.Get(result.BackorderIDs[0])
	require.NoError(t, err)
	assert.Equal(t, BackorderStatusPromoted, b.Status)
	assert.Equal(t, int64(2), b.Promoted)

	assert.Equal(t, int64(0), h.available(t, "X", "W1"))
	assert.Equal(t, int64(3), h.available(t, "X", "W2"))
	assert.Empty(t, h.ledger.Audit())

	require.NoError(t, h.orders.FulfillOrder(ctx, result.OrderID))
	assert.Empty(t, h.ledger.Audit())
}

func TestOrderService_CancelOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("releases reservation and backorders", func(t *testing.T) {
		h := newHarness(t, "W1")
		h.define(t, "X")
		h.restock(t, "X", "W1", 2)

		result, err := h.orders.PlaceOrder(ctx, place("X", 5))
		require.NoError(t, err)
		h.restock(t, "X", "W1", 1)

		require.NoError(t, h.orders.CancelOrder(ctx, result.OrderID))
		assert.Equal(t, int64(3), h.available(t, "X", "W1"))

		b, err := h.backorders.Get(result.BackorderIDs[0])
		require.NoError(t, err)
		assert.Equal(t, BackorderStatusCancelled, b.Status)

		view, err := h.orders.GetOrder(result.OrderID)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusCancelled, view.Status)
		assert.Len(t, h.pub.OfType(EventTypeOrderCancelled), 1)

		err = h.orders.CancelOrder(ctx, result.OrderID)
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
		assert.Empty(t, h.ledger.Audit())
	})

	t.Run("releases promoted backorder reservations", func(t *testing.T) {
		h := newHarness(t, "W1")
		h.define(t, "X")

		result, err := h.orders.PlaceOrder(ctx, place("X", 3))
		require.NoError(t, err)
		h.restock(t, "X", "W1", 3)

		view, err := h.orders.GetOrder(result.OrderID)
		require.NoError(t, err)
		require.Equal(t, OrderStatusReserved, view.Status)

		require.NoError(t, h.orders.CancelOrder(ctx, result.OrderID))
		assert.Equal(t, int64(3), h.available(t, "X", "W1"))
		assert.Empty(t, h.ledger.Audit())
	})

	t.Run("fulfilled order cannot be cancelled", func(t *testing.T) {
		h := newHarness(t, "W1")
		h.define(t, "X")
		h.restock(t, "X", "W1", 3)

		result, err := h.orders.PlaceOrder(ctx, place("X", 3))
		require.NoError(t, err)
		require.NoError(t, h.orders.FulfillOrder(ctx, result.OrderID))

		err = h.orders.CancelOrder(ctx, result.OrderID)
		var stateErr *inventory.InvalidStateError
		require.ErrorAs(t, err, &stateErr)
		assert.Equal(t, string(OrderStatusFulfilled), stateErr.State)
	})

	t.Run("cancel racing fulfill has one winner", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			h := newHarness(t, "W1")
			h.define(t, "X")
			h.restock(t, "X", "W1", 2)
			result, err := h.orders.PlaceOrder(ctx, place("X", 2))
			require.NoError(t, err)

			var wg sync.WaitGroup
			var cancelErr, fulfillErr error
			wg.Add(2)
			go func() { defer wg.Done(); cancelErr = h.orders.CancelOrder(ctx, result.OrderID) }()
			go func() { defer wg.Done(); fulfillErr = h.orders.FulfillOrder(ctx, result.OrderID) }()
			wg.Wait()

			snap, err := h.ledger.Snapshot("X", "W1")
			require.NoError(t, err)
			if cancelErr == nil {
				assert.True(t, errors.Is(fulfillErr, shared.ErrInvalidState))
				assert.Equal(t, int64(2), snap.OnHand)
			} else {
				assert.NoError(t, fulfillErr)
				assert.True(t, errors.Is(cancelErr, shared.ErrInvalidState))
				assert.Equal(t, int64(0), snap.OnHand)
			}
			assert.Equal(t, int64(0), snap.Reserved)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		h := newHarness(t, "W1")
		assert.True(t, errors.Is(h.orders.CancelOrder(ctx, "nope"), shared.ErrNotFound))
	})
}

func TestOrderService_ConcurrentSingleUnitOrders(t *testing.T) {
	const n = 40
	ctx := context.Background()

	run := func(t *testing.T, policy BackorderPolicy) (successes, insufficient, backordered int, h *harness) {
		h = newHarness(t, "W1")
		h.define(t, "X")
		h.restock(t, "X", "W1", n-1)

		var mu sync.Mutex
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				req := place("X", 1)
				req.Policy = policy
				result, err := h.orders.PlaceOrder(ctx, req)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					assert.True(t, errors.Is(err, shared.ErrInsufficientStock))
					insufficient++
				case result.Status == OrderStatusReserved:
					successes++
				case result.Status == OrderStatusBackordered:
					backordered++
				}
			}()
		}
		wg.Wait()
		return successes, insufficient, backordered, h
	}

	t.Run("reject policy", func(t *testing.T) {
		successes, insufficient, backordered, h := run(t, BackorderPolicyReject)
		assert.Equal(t, n-1, successes)
		assert.Equal(t, 1, insufficient)
		assert.Zero(t, backordered)
		assert.Equal(t, int64(0), h.available(t, "X", "W1"))
		assert.Empty(t, h.ledger.Audit())
	})

	t.Run("allow policy", func(t *testing.T) {
		successes, insufficient, backordered, h := run(t, BackorderPolicyAllow)
		assert.Equal(t, n-1, successes)
		assert.Zero(t, insufficient)
		assert.Equal(t, 1, backordered)
		assert.Equal(t, int64(0), h.available(t, "X", "W1"))
		assert.Len(t, h.backorders.List("X", BackorderStatusOpen), 1)
		assert.Empty(t, h.ledger.Audit())
	})
}
