package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/garyjia/pm-approval/internal/application/port"
	"github.com/garyjia/pm-approval/internal/domain/event"
)

// DefaultExchange receives every approval event
const DefaultExchange = "pm.approvals"

// EventPublisher forwards committed events to a topic exchange.
// Routing keys look like "approval.approved.ecn".
type EventPublisher struct {
	source   ChannelSource
	exchange string
	logger   *zap.Logger
}

// NewEventPublisher creates the publisher. An empty exchange uses DefaultExchange.
func NewEventPublisher(source ChannelSource, exchange string, logger *zap.Logger) *EventPublisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &EventPublisher{source: source, exchange: exchange, logger: logger}
}

// DeclareTopology declares the durable topic exchange
func (p *EventPublisher) DeclareTopology(ctx context.Context) error {
	ch, err := p.source.Channel(ctx)
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	return nil
}

func (p *EventPublisher) Name() string {
	return "amqp"
}

// Publish sends the event as persistent JSON
func (p *EventPublisher) Publish(ctx context.Context, evt *event.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ch, err := p.source.Channel(ctx)
	if err != nil {
		return err
	}

	key := RoutingKey(evt)
	err = ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID,
		Timestamp:    evt.Timestamp,
		Type:         string(evt.Type),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", p.exchange, key, err)
	}

	p.logger.Debug("Published event",
		zap.String("exchange", p.exchange),
		zap.String("routing_key", key),
		zap.String("event_id", evt.ID),
		zap.Int64("instance_id", evt.InstanceID))
	return nil
}

// RoutingKey derives the routing key from the event type and entity type
func RoutingKey(evt *event.Event) string {
	return string(evt.Type) + "." + strings.ToLower(evt.EntityType)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
