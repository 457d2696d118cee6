package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Queue publishes invitations to RabbitMQ and consumes them in the worker.
// It satisfies Sender so the API can enqueue instead of sending inline.
type Queue struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
	logger   *zap.Logger
}

func NewQueue(url, exchange, queue string, logger *zap.Logger) (*Queue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	q := &Queue{conn: conn, channel: ch, exchange: exchange, queue: queue, logger: logger}
	if err := q.setup(); err != nil {
		q.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return q, nil
}

func (q *Queue) setup() error {
	if err := q.channel.ExchangeDeclare(q.exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := q.channel.QueueDeclare(q.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	// routing key = queue name (direct exchange)
	if err := q.channel.QueueBind(q.queue, q.queue, q.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// SendInvitation enqueues inv as a persistent JSON message.
func (q *Queue) SendInvitation(ctx context.Context, inv Invitation) error {
	body, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshal invitation: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = q.channel.PublishWithContext(ctx, q.exchange, q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish invitation: %w", err)
	}

	q.logger.Info("invitation queued", zap.String("to", inv.To), zap.String("queue", q.queue))
	return nil
}

// Consume hands every queued invitation to send until ctx is done.
func (q *Queue) Consume(ctx context.Context, send func(context.Context, Invitation) error) error {
	deliveries, err := q.channel.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	q.logger.Info("consuming invitations", zap.String("queue", q.queue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			handleDelivery(ctx, d, send, q.logger)
		}
	}
}

// handleDelivery acks on success and requeues a failed send once.
// Messages that cannot be decoded are dropped.
func handleDelivery(ctx context.Context, d amqp.Delivery, send func(context.Context, Invitation) error, log *zap.Logger) {
	var inv Invitation
	if err := json.Unmarshal(d.Body, &inv); err != nil || inv.To == "" {
		log.Error("dropping malformed invitation message", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	if err := send(ctx, inv); err != nil {
		log.Error("invitation send failed, requeueing", zap.String("to", inv.To), zap.Error(err))
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	_ = d.Ack(false)
}

func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

var _ Sender = (*Queue)(nil)
