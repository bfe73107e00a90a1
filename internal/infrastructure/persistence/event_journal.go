package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/infrastructure/event"
	"github.com/erp/fulfillment/internal/infrastructure/logger"
)

// EventRecord is one row of the inventory_events journal
type EventRecord struct {
	EventID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence      uint64    `gorm:"not null;index:idx_inventory_events_sequence"`
	EventType     string    `gorm:"type:varchar(64);not null;index:idx_inventory_events_type"`
	AggregateType string    `gorm:"type:varchar(32);not null;index:idx_inventory_events_aggregate,priority:1"`
	AggregateID   string    `gorm:"type:varchar(128);not null;index:idx_inventory_events_aggregate,priority:2"`
	OccurredAt    time.Time `gorm:"not null"`
	Payload       []byte    `gorm:"type:jsonb;not null"`
	RecordedAt    time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for GORM
func (EventRecord) TableName() string {
	return "inventory_events"
}

func (r *EventRecord) toEnvelope() event.Envelope {
	return event.Envelope{
		EventID:       r.EventID,
		EventType:     r.EventType,
		AggregateType: r.AggregateType,
		AggregateID:   r.AggregateID,
		Sequence:      r.Sequence,
		OccurredAt:    r.OccurredAt,
		Payload:       json.RawMessage(r.Payload),
	}
}

// JournalFilter narrows a journal read. Zero fields match everything.
type JournalFilter struct {
	AfterSequence uint64
	EventType     string
	AggregateType string
	AggregateID   string
	Limit         int
}

const (
	defaultJournalLimit = 100
	maxJournalLimit     = 1000
	replayBatchSize     = 500
)

// GormEventJournal appends every outbound event to the inventory_events
// table. It subscribes to the event bus as a wildcard handler, so the
// journal is an append-only copy of the notifier stream.
type GormEventJournal struct {
	db         *gorm.DB
	serializer *event.EventSerializer
	logger     *zap.Logger
}

// NewGormEventJournal creates a journal over db
func NewGormEventJournal(db *gorm.DB, serializer *event.EventSerializer, log *zap.Logger) *GormEventJournal {
	if log == nil {
		log = zap.NewNop()
	}
	return &GormEventJournal{
		db:         db,
		serializer: serializer,
		logger:     log.Named("event_journal"),
	}
}

// EventTypes returns nil: the journal records every event
func (j *GormEventJournal) EventTypes() []string {
	return nil
}

// Handle implements shared.EventHandler
func (j *GormEventJournal) Handle(ctx context.Context, e shared.DomainEvent) error {
	return j.Append(ctx, e)
}

// Append stores events. Re-delivered events are ignored by event id.
func (j *GormEventJournal) Append(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	records := make([]EventRecord, 0, len(events))
	for _, e := range events {
		env, err := j.serializer.Envelope(e)
		if err != nil {
			return err
		}
		records = append(records, EventRecord{
			EventID:       env.EventID,
			Sequence:      env.Sequence,
			EventType:     env.EventType,
			AggregateType: env.AggregateType,
			AggregateID:   env.AggregateID,
			OccurredAt:    env.OccurredAt,
			Payload:       env.Payload,
		})
	}

	ctx = logger.WithEventSequences(ctx, records[0].Sequence, records[len(records)-1].Sequence)
	result := j.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&records)
	if result.Error != nil {
		return fmt.Errorf("append %d events to journal: %w", len(records), result.Error)
	}
	if skipped := int64(len(records)) - result.RowsAffected; skipped > 0 {
		j.logger.Debug("duplicate events skipped", zap.Int64("count", skipped))
	}
	return nil
}

// List returns envelopes matching filter in sequence order
func (j *GormEventJournal) List(ctx context.Context, filter JournalFilter) ([]event.Envelope, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultJournalLimit
	}
	if limit > maxJournalLimit {
		limit = maxJournalLimit
	}

	q := j.db.WithContext(ctx).Model(&EventRecord{}).Where("sequence > ?", filter.AfterSequence)
	if filter.EventType != "" {
		q = q.Where("event_type = ?", filter.EventType)
	}
	if filter.AggregateType != "" {
		q = q.Where("aggregate_type = ?", filter.AggregateType)
	}
	if filter.AggregateID != "" {
		q = q.Where("aggregate_id = ?", filter.AggregateID)
	}

	var records []EventRecord
	if err := q.Order("sequence ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	out := make([]event.Envelope, len(records))
	for i := range records {
		out[i] = records[i].toEnvelope()
	}
	return out, nil
}

// LastSequence returns the highest journaled sequence, or 0
func (j *GormEventJournal) LastSequence(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	err := j.db.WithContext(ctx).Model(&EventRecord{}).Select("MAX(sequence)").Row().Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("read last sequence: %w", err)
	}
	return uint64(seq.Int64), nil
}

// Replay decodes every event after afterSequence, in order, and passes it
// to fn. It stops at the first error fn returns.
func (j *GormEventJournal) Replay(ctx context.Context, afterSequence uint64, fn func(shared.DomainEvent) error) (int, error) {
	replayed := 0
	cursor := afterSequence
	for {
		batch, err := j.List(ctx, JournalFilter{AfterSequence: cursor, Limit: replayBatchSize})
		if err != nil {
			return replayed, err
		}
		for _, env := range batch {
			e, err := j.serializer.Open(env)
			if err != nil {
				return replayed, fmt.Errorf("decode event %d: %w", env.Sequence, err)
			}
			if err := fn(e); err != nil {
				return replayed, err
			}
			replayed++
			cursor = env.Sequence
		}
		if len(batch) < replayBatchSize {
			return replayed, nil
		}
	}
}

var _ shared.EventHandler = (*GormEventJournal)(nil)
