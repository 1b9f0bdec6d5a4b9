package worker

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flicky/spice-storefront/internal/model"
)

// channelPublisher is the part of *amqp.Channel the publisher needs.
type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Publisher struct {
	ch channelPublisher
}

func NewPublisher(ch channelPublisher) *Publisher {
	return &Publisher{ch: ch}
}

// PublishOrderPlaced sends evt to the order queue as a persistent message
// whose id is the order id.
func (p *Publisher) PublishOrderPlaced(ctx context.Context, evt model.OrderPlacedEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	if err := p.ch.PublishWithContext(ctx, "", orderQueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    evt.OrderID,
		Timestamp:    evt.PlacedAt,
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}); err != nil {
		return fmt.Errorf("publish order %s: %w", evt.OrderID, err)
	}
	return nil
}
