package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	appinventory "github.com/erp/fulfillment/internal/application/inventory"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/infrastructure/event"
)

// Message header names
const (
	HeaderEventType = "event_type"
	HeaderEventID   = "event_id"
	HeaderSequence  = "sequence"

	// EventTypeStockAlert is the event_type header of alert messages
	EventTypeStockAlert = "stock_alert"
)

// KafkaEventPublisher forwards every outbound event to Kafka as a JSON
// envelope keyed by aggregate id
type KafkaEventPublisher struct {
	producer   MessageProducer
	serializer *event.EventSerializer
	timeout    time.Duration
	logger     *zap.Logger
}

// NewKafkaEventPublisher creates a publisher. timeout bounds each write.
func NewKafkaEventPublisher(producer MessageProducer, serializer *event.EventSerializer, timeout time.Duration, logger *zap.Logger) *KafkaEventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaEventPublisher{
		producer:   producer,
		serializer: serializer,
		timeout:    timeout,
		logger:     logger.Named("kafka_publisher"),
	}
}

// EventTypes returns nil: every event is forwarded
func (p *KafkaEventPublisher) EventTypes() []string {
	return nil
}

// Handle implements shared.EventHandler
func (p *KafkaEventPublisher) Handle(ctx context.Context, e shared.DomainEvent) error {
	env, err := p.serializer.Envelope(e)
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(env.AggregateID),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(env.EventType)},
			{Key: HeaderEventID, Value: []byte(env.EventID.String())},
			{Key: HeaderSequence, Value: []byte(fmt.Sprintf("%d", env.Sequence))},
		},
	}
	if err := p.write(ctx, msg); err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("event_type", env.EventType),
			zap.Uint64("sequence", env.Sequence),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (p *KafkaEventPublisher) write(ctx context.Context, msg kafka.Message) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.producer.WriteMessage(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// SendAlert implements inventory.StockAlertNotifier, publishing the alert
// to the same topic under the stock_alert event type
func (p *KafkaEventPublisher) SendAlert(ctx context.Context, alert appinventory.StockAlert) error {
	value, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	return p.write(ctx, kafka.Message{
		Key:   []byte(alert.Key()),
		Value: value,
		Time:  alert.OccurredAt,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(EventTypeStockAlert)},
		},
	})
}

// Close closes the producer
func (p *KafkaEventPublisher) Close() error {
	return p.producer.Close()
}

var (
	_ shared.EventHandler             = (*KafkaEventPublisher)(nil)
	_ appinventory.StockAlertNotifier = (*KafkaEventPublisher)(nil)
)
