// Package service holds adapters that push domain events out of the
// process.  Publishing is best effort: errors are logged and returned so
// the caller can ignore them without interrupting the request flow.
package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	q "github.com/vala/car-rental-reservation/internal/queue"
)

// QueuePublisher publishes events to RabbitMQ.  A connection is opened per
// publish; confirmations are rare enough that pooling is not worth it.
type QueuePublisher struct {
	url     string
	timeout time.Duration
	log     *zap.Logger
}

// NewQueuePublisher returns a publisher for the broker at url.
func NewQueuePublisher(url string, log *zap.Logger) *QueuePublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &QueuePublisher{url: url, timeout: 5 * time.Second, log: log.Named("rabbitmq")}
}

// PublishReservationConfirmed publishes ev to the durable
// reservation.confirmed queue as a persistent message.
func (p *QueuePublisher) PublishReservationConfirmed(ctx context.Context, ev q.ReservationConfirmedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("marshal event failed", zap.Error(err))
		return err
	}
	return p.publish(ctx, q.ConfirmedQueue, body)
}

func (p *QueuePublisher) publish(ctx context.Context, queueName string, body []byte) error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(p.timeout)})
	if err != nil {
		p.log.Warn("dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	// Idempotent; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		p.log.Warn("queue declare failed", zap.String("queue", queueName), zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		p.log.Warn("publish failed", zap.String("queue", queueName), zap.Error(err))
		return err
	}
	return nil
}
