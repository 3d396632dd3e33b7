package events

import (
	"context"
	"strconv"

	"github.com/thxForu/perp-futures/internal/adapters/kafka"
)

// KafkaPublisher streams lifecycle events to Kafka topics, keyed by position
// or order id so per-entity ordering is preserved within a partition.
type KafkaPublisher struct {
	producer *kafka.Producer
}

// NewKafkaPublisher wraps producer as a Publisher.
func NewKafkaPublisher(producer *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) PositionOpened(ctx context.Context, event PositionOpenedEvent) error {
	return p.producer.Publish(ctx, kafka.TopicPositionOpened, key(event.PositionID), event)
}

func (p *KafkaPublisher) PositionClosed(ctx context.Context, event PositionClosedEvent) error {
	return p.producer.Publish(ctx, kafka.TopicPositionClosed, key(event.PositionID), event)
}

func (p *KafkaPublisher) PositionLiquidated(ctx context.Context, event PositionLiquidatedEvent) error {
	return p.producer.Publish(ctx, kafka.TopicPositionLiquidated, key(event.PositionID), event)
}

func (p *KafkaPublisher) OrderPlaced(ctx context.Context, event OrderEvent) error {
	return p.producer.Publish(ctx, kafka.TopicOrderPlaced, key(event.OrderID), event)
}

func (p *KafkaPublisher) OrderFilled(ctx context.Context, event OrderEvent) error {
	return p.producer.Publish(ctx, kafka.TopicOrderFilled, key(event.OrderID), event)
}

func (p *KafkaPublisher) OrderCancelled(ctx context.Context, event OrderEvent) error {
	return p.producer.Publish(ctx, kafka.TopicOrderCancelled, key(event.OrderID), event)
}

func key(id uint64) string {
	return strconv.FormatUint(id, 10)
}
