package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	appinventory "github.com/erp/fulfillment/internal/application/inventory"
)

// StockAlertRecord is one row of the stock_alerts table
type StockAlertRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	AlertType   string    `gorm:"type:varchar(32);not null;index:idx_stock_alerts_type"`
	SKU         string    `gorm:"type:varchar(64);index:idx_stock_alerts_record,priority:2"`
	WarehouseID string    `gorm:"type:varchar(64);not null;index:idx_stock_alerts_record,priority:1"`
	OnHand      int64     `gorm:"not null"`
	Available   int64     `gorm:"not null"`
	Threshold   int64     `gorm:"not null"`
	Message     string    `gorm:"type:text"`
	OccurredAt  time.Time `gorm:"not null;index:idx_stock_alerts_occurred_at"`
}

// TableName returns the table name for GORM
func (StockAlertRecord) TableName() string {
	return "stock_alerts"
}

// GormStockAlertStore persists stock alerts so operators can list them
// after the fact
type GormStockAlertStore struct {
	db *gorm.DB
}

// NewGormStockAlertStore creates a store over db
func NewGormStockAlertStore(db *gorm.DB) *GormStockAlertStore {
	return &GormStockAlertStore{db: db}
}

// SendAlert implements inventory.StockAlertNotifier
func (s *GormStockAlertStore) SendAlert(ctx context.Context, alert appinventory.StockAlert) error {
	rec := StockAlertRecord{
		ID:          uuid.New(),
		AlertType:   alert.AlertType,
		SKU:         alert.SKU,
		WarehouseID: alert.WarehouseID,
		OnHand:      alert.OnHand,
		Available:   alert.Available,
		Threshold:   alert.Threshold,
		Message:     alert.Message,
		OccurredAt:  alert.OccurredAt,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("store %s alert for %s: %w", alert.AlertType, alert.Key(), err)
	}
	return nil
}

// Recent returns the newest alerts first. An empty alertType matches all.
func (s *GormStockAlertStore) Recent(ctx context.Context, alertType string, limit int) ([]appinventory.StockAlert, error) {
	if limit <= 0 || limit > maxJournalLimit {
		limit = defaultJournalLimit
	}
	q := s.db.WithContext(ctx).Model(&StockAlertRecord{})
	if alertType != "" {
		q = q.Where("alert_type = ?", alertType)
	}
	var records []StockAlertRecord
	if err := q.Order("occurred_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list stock alerts: %w", err)
	}
	out := make([]appinventory.StockAlert, len(records))
	for i, r := range records {
		out[i] = appinventory.StockAlert{
			AlertType:   r.AlertType,
			SKU:         r.SKU,
			WarehouseID: r.WarehouseID,
			OnHand:      r.OnHand,
			Available:   r.Available,
			Threshold:   r.Threshold,
			Message:     r.Message,
			OccurredAt:  r.OccurredAt,
		}
	}
	return out, nil
}

var _ appinventory.StockAlertNotifier = (*GormStockAlertStore)(nil)
