package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appinventory "github.com/erp/fulfillment/internal/application/inventory"
	"github.com/erp/fulfillment/tests/testutil"
)

func TestGormStockAlertStore(t *testing.T) {
	store := NewGormStockAlertStore(newTestDatabase(t).DB)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.SendAlert(ctx, appinventory.StockAlert{
		AlertType: appinventory.AlertTypeLowStock, SKU: "X", WarehouseID: "W1",
		OnHand: 3, Available: 2, Threshold: 5, OccurredAt: base,
	}))
	require.NoError(t, store.SendAlert(ctx, appinventory.StockAlert{
		AlertType: appinventory.AlertTypeCapacityExceeded, WarehouseID: "W1",
		OnHand: 120, Message: "capacity 100 exceeded", OccurredAt: base.Add(time.Minute),
	}))

	all, err := store.Recent(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, appinventory.AlertTypeCapacityExceeded, all[0].AlertType)
	assert.Equal(t, "W1", all[0].Key())
	assert.Equal(t, "W1/X", all[1].Key())

	low, err := store.Recent(ctx, appinventory.AlertTypeLowStock, 10)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, int64(5), low[0].Threshold)
}

func TestGormStockAlertStore_DatabaseErrors(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	store := NewGormStockAlertStore(mockDB.DB)
	ctx := context.Background()

	mockDB.Mock.ExpectExec(`INSERT INTO "stock_alerts"`).WillReturnError(errors.New("connection reset"))
	err := store.SendAlert(ctx, appinventory.StockAlert{
		AlertType: appinventory.AlertTypeLowStock, SKU: "X", WarehouseID: "W1", OccurredAt: time.Now(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store low_stock alert for W1/X")

	mockDB.Mock.ExpectQuery(`SELECT \* FROM "stock_alerts"`).WillReturnError(errors.New("connection reset"))
	_, err = store.Recent(ctx, "", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list stock alerts")

	mockDB.ExpectationsWereMet(t)
}
