package inventory

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/fulfillment/internal/domain/shared"
)

func TestReservationManager_Reserve(t *testing.T) {
	ctx := context.Background()

	t.Run("reserves all lines", func(t *testing.T) {
		f := newFixture(t, Warehouse{ID: "W1"}, Warehouse{ID: "W2"})
		f.restock(t, "X", "W1", 5)
		f.restock(t, "Y", "W2", 5)

		res, err := f.rm.Reserve(ctx, order1, []Line{
			{SKU: "Y", WarehouseID: "W2", Quantity: 2},
			{SKU: "X", WarehouseID: "W1", Quantity: 1},
			{SKU: "X", WarehouseID: "W1", Quantity: 2},
		})
		require.NoError(t, err)
		assert.Equal(t, HoldStateHeld, res.State())
		assert.Equal(t, order1, res.Owner())
		assert.Equal(t, []Line{
			{SKU: "X", WarehouseID: "W1", Quantity: 3},
			{SKU: "Y", WarehouseID: "W2", Quantity: 2},
		}, res.Lines())
		assert.Equal(t, int64(5), res.Total())

		for _, h := range res.Holds() {
			assert.Equal(t, res.ID(), h.ReservationID)
		}
		got, err := f.rm.Get(res.ID())
		require.NoError(t, err)
		assert.Same(t, res, got)
		f.assertSound(t)
	})

	t.Run("is all or nothing", func(t *testing.T) {
		f := newFixture(t, Warehouse{ID: "W1"}, Warehouse{ID: "W2"})
		f.restock(t, "X", "W1", 5)
		f.restock(t, "Y", "W2", 1)
		f.pub.Reset()

		_, err := f.rm.Reserve(ctx, order1, []Line{
			{SKU: "X", WarehouseID: "W1", Quantity: 3},
			{SKU: "Y", WarehouseID: "W2", Quantity: 2},
		})
		var insufficient *InsufficientStockError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, "Y", insufficient.SKU)

		assert.Equal(t, int64(0), f.snapshot(t, "X", "W1").Reserved)
		assert.Equal(t, int64(0), f.snapshot(t, "Y", "W2").Reserved)
		assert.Empty(t, f.pub.Events(), "a failed reservation leaves no trace in the stream")
		f.assertSound(t)
	})

	t.Run("validation", func(t *testing.T) {
		f := newFixture(t, Warehouse{ID: "W1"})
		_, err := f.rm.Reserve(ctx, order1, nil)
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))

		_, err = f.rm.Reserve(ctx, order1, []Line{{SKU: "X", WarehouseID: "W1", Quantity: -1}})
		assert.True(t, errors.Is(err, shared.ErrInvalidQuantity))

		_, err = f.rm.Reserve(ctx, order1, []Line{{SKU: "X", WarehouseID: "W9", Quantity: 1}})
		assert.True(t, errors.Is(err, shared.ErrUnknownWarehouse))

		_, err = f.rm.Reserve(ctx, order1, []Line{
			{SKU: "X", WarehouseID: "W1", Quantity: math.MaxInt64},
			{SKU: "X", WarehouseID: "W1", Quantity: 2},
		})
		var overflow *QuantityOverflowError
		require.ErrorAs(t, err, &overflow)
		assert.True(t, errors.Is(err, shared.ErrInvalidQuantity))
	})

	t.Run("opposite line orders do not deadlock", func(t *testing.T) {
		f := newFixture(t, Warehouse{ID: "W1"}, Warehouse{ID: "W2"})
		f.restock(t, "X", "W1", 1000)
		f.restock(t, "X", "W2", 1000)

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			lines := []Line{{SKU: "X", WarehouseID: "W1", Quantity: 1}, {SKU: "X", WarehouseID: "W2", Quantity: 1}}
			if i%2 == 1 {
				lines[0], lines[1] = lines[1], lines[0]
			}
			wg.Add(1)
			go func(lines []Line) {
				defer wg.Done()
				res, err := f.rm.Reserve(ctx, order1, lines)
				if assert.NoError(t, err) {
					assert.NoError(t, f.rm.Release(ctx, res))
				}
			}(lines)
		}
		wg.Wait()
		assert.Equal(t, int64(0), f.snapshot(t, "X", "W1").Reserved)
		assert.Equal(t, int64(0), f.snapshot(t, "X", "W2").Reserved)
		f.assertSound(t)
	})
}

func TestReservationManager_CommitRelease(t *testing.T) {
	ctx := context.Background()

	newReservation := func(t *testing.T) (*fixture, *Reservation) {
		f := newFixture(t, Warehouse{ID: "W1"}, Warehouse{ID: "W2"})
		f.restock(t, "X", "W1", 5)
		f.restock(t, "Y", "W2", 5)
		res, err := f.rm.Reserve(ctx, order1, []Line{
			{SKU: "X", WarehouseID: "W1", Quantity: 2},
			{SKU: "Y", WarehouseID: "W2", Quantity: 3},
		})
		require.NoError(t, err)
		return f, res
	}

	t.Run("commit moves every hold", func(t *testing.T) {
		f, res := newReservation(t)
		require.NoError(t, f.rm.Commit(ctx, res))
		assert.Equal(t, HoldStateCommitted, res.State())
		assert.Equal(t, int64(3), f.snapshot(t, "X", "W1").OnHand)
		assert.Equal(t, int64(2), f.snapshot(t, "Y", "W2").OnHand)
		assert.Len(t, f.pub.OfType(EventTypeStockCommitted), 2)

		var stateErr *InvalidStateError
		require.ErrorAs(t, f.rm.Commit(ctx, res), &stateErr)
		assert.Equal(t, "reservation", stateErr.Entity)
		assert.True(t, errors.Is(f.rm.Release(ctx, res), shared.ErrInvalidState))
		f.assertSound(t)
	})

	t.Run("release twice is a no-op", func(t *testing.T) {
		f, res := newReservation(t)
		require.NoError(t, f.rm.Release(ctx, res))
		require.NoError(t, f.rm.Release(ctx, res))
		assert.Equal(t, HoldStateReleased, res.State())
		assert.Equal(t, int64(5), f.snapshot(t, "X", "W1").Available)
		assert.Len(t, f.pub.OfType(EventTypeStockReleased), 2)
		assert.True(t, errors.Is(f.rm.Commit(ctx, res), shared.ErrInvalidState))
	})

	t.Run("commit and release race has exactly one winner", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			f, res := newReservation(t)
			var wg sync.WaitGroup
			var commitErr, releaseErr error
			wg.Add(2)
			go func() { defer wg.Done(); commitErr = f.rm.Commit(ctx, res) }()
			go func() { defer wg.Done(); releaseErr = f.rm.Release(ctx, res) }()
			wg.Wait()

			if commitErr == nil {
				assert.True(t, errors.Is(releaseErr, shared.ErrInvalidState))
				assert.Equal(t, int64(3), f.snapshot(t, "X", "W1").OnHand)
			} else {
				assert.NoError(t, releaseErr)
				assert.True(t, errors.Is(commitErr, shared.ErrInvalidState))
				assert.Equal(t, int64(5), f.snapshot(t, "X", "W1").OnHand)
			}
			f.assertSound(t)
		}
	})

	t.Run("get unknown", func(t *testing.T) {
		f, _ := newReservation(t)
		_, err := f.rm.Get(uuid.New())
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})
}

func TestReservationManager_ReservePlanned(t *testing.T) {
	ctx := context.Background()

	t.Run("plan sees a consistent snapshot", func(t *testing.T) {
		f := newFixture(t, Warehouse{ID: "W1"}, Warehouse{ID: "W2"})
		f.restock(t, "X", "W1", 10)
		f.restock(t, "X", "W2", 5)
		require.NoError(t, f.ledger.DeactivateWarehouse(ctx, "W2"))

		var seen Snapshot
		res, err := f.rm.ReservePlanned(ctx, order1, []string{"X"}, func(s Snapshot) ([]Line, error) {
			seen = s
			return []Line{{SKU: "X", WarehouseID: "W1", Quantity: 4}}, nil
		})
		require.NoError(t, err)
		require.NotNil(t, res)

		require.Len(t, seen.Records["X"], 2)
		assert.Equal(t, "W1", seen.Records["X"][0].WarehouseID)
		assert.Equal(t, int64(10), seen.Records["X"][0].Available)
		assert.False(t, seen.Warehouses["W2"].Active)
		assert.Equal(t, int64(6), f.snapshot(t, "X", "W1").Available)
	})

	t.Run("empty plan reserves nothing", func(t *testing.T) {
		f := newFixture(t, Warehouse{ID: "W1"})
		res, err := f.rm.ReservePlanned(ctx, order1, []string{"X"}, func(Snapshot) ([]Line, error) {
			return nil, nil
		})
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("plan error is returned", func(t *testing.T) {
		f := newFixture(t, Warehouse{ID: "W1"})
		f.restock(t, "X", "W1", 1)
		_, err := f.rm.ReservePlanned(ctx, order1, []string{"X"}, func(Snapshot) ([]Line, error) {
			return nil, assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("lines outside the locked set are rejected", func(t *testing.T) {
		f := newFixture(t, Warehouse{ID: "W1"})
		f.restock(t, "X", "W1", 1)
		f.restock(t, "Y", "W1", 1)
		_, err := f.rm.ReservePlanned(ctx, order1, []string{"X"}, func(Snapshot) ([]Line, error) {
			return []Line{{SKU: "Y", WarehouseID: "W1", Quantity: 1}}, nil
		})
		assert.True(t, errors.Is(err, shared.ErrInsufficientStock))
		assert.Equal(t, int64(0), f.snapshot(t, "Y", "W1").Reserved)
	})
}

func TestReservationManager_ReserveUpTo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Warehouse{ID: "W1"})
	f.restock(t, "X", "W1", 3)
	owner := Owner{Kind: OwnerBackorder, ID: "b-1"}

	res, err := f.rm.ReserveUpTo(ctx, owner, "X", "W1", 5)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, int64(3), res.Total())

	res, err = f.rm.ReserveUpTo(ctx, owner, "X", "W1", 5)
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = f.rm.ReserveUpTo(ctx, owner, "Y", "W1", 5)
	require.NoError(t, err)
	assert.Nil(t, res)

	_, err = f.rm.ReserveUpTo(ctx, owner, "X", "W1", 0)
	assert.True(t, errors.Is(err, shared.ErrInvalidQuantity))
	f.assertSound(t)
}
