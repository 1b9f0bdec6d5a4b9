package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/flicky/spice-storefront/internal/model"
)

const (
	orderQueueName = "orders.placed"
	dlxExchange    = "orders.placed.dlx"
	dlqQueueName   = "orders.placed.dlq"
	idempotencyTTL = 24 * time.Hour
)

var errMalformedEvent = errors.New("malformed order event")

// CacheInvalidator drops cached product reads.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context, ids ...uuid.UUID)
}

type EventRecorder interface {
	EventProcessed(result string)
}

type OrderWorker struct {
	channel     *amqp.Channel
	cache       CacheInvalidator
	redisClient redis.Cmdable
	recorder    EventRecorder
	log         *zap.Logger
	done        chan struct{}
}

// NewOrderWorker builds the OrderPlaced consumer. A nil redisClient disables
// duplicate suppression; recorder may be nil.
func NewOrderWorker(
	ch *amqp.Channel,
	cache CacheInvalidator,
	redisClient redis.Cmdable,
	recorder EventRecorder,
	log *zap.Logger,
) *OrderWorker {
	return &OrderWorker{
		channel:     ch,
		cache:       cache,
		redisClient: redisClient,
		recorder:    recorder,
		log:         log,
		done:        make(chan struct{}),
	}
}

// SetupRabbitMQ declares exchanges, queues, and bindings (DLX/DLQ).
func SetupRabbitMQ(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(dlqQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(dlqQueueName, orderQueueName, dlxExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(orderQueueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlxExchange,
		"x-dead-letter-routing-key": orderQueueName,
	}); err != nil {
		return fmt.Errorf("declare order queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	return nil
}

func (w *OrderWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(orderQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				w.processMessage(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("order worker started", zap.String("queue", orderQueueName))
	return nil
}

func (w *OrderWorker) Stop() { close(w.done) }

func (w *OrderWorker) record(result string) {
	if w.recorder != nil {
		w.recorder.EventProcessed(result)
	}
}

// processMessage acks handled and duplicate events, dead-letters malformed
// ones and requeues when the idempotency store is unreachable.
func (w *OrderWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	evt, err := decodeEvent(msg.Body)
	if err != nil {
		w.log.Error("decode order event", zap.Error(err))
		w.record("malformed")
		_ = msg.Nack(false, false)
		return
	}

	log := w.log.With(zap.String("order_id", evt.OrderID), zap.String("user_id", evt.UserID.String()))

	key := "order_event:" + evt.OrderID
	if w.redisClient != nil {
		exists, err := w.redisClient.Exists(ctx, key).Result()
		if err != nil {
			log.Error("check idempotency key", zap.Error(err))
			w.record("retry")
			_ = msg.Nack(false, true)
			return
		}
		if exists > 0 {
			log.Info("order event already processed, skipping")
			w.record("duplicate")
			_ = msg.Ack(false)
			return
		}
	}

	ids := make([]uuid.UUID, 0, len(evt.Items))
	for _, it := range evt.Items {
		ids = append(ids, it.ProductID)
	}
	w.cache.InvalidateCache(ctx, ids...)

	if w.redisClient != nil {
		if err := w.redisClient.Set(ctx, key, "1", idempotencyTTL).Err(); err != nil {
			log.Error("set idempotency key", zap.Error(err))
		}
	}

	_ = msg.Ack(false)
	w.record("ok")
	log.Info("order event processed", zap.Int("products", len(ids)))
}

func decodeEvent(body []byte) (*model.OrderPlacedEvent, error) {
	var evt model.OrderPlacedEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedEvent, err)
	}
	if evt.OrderID == "" {
		return nil, fmt.Errorf("%w: missing order id", errMalformedEvent)
	}
	return &evt, nil
}
