package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/natefinch/lumberjack"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// BookingLog appends one human readable line per confirmed reservation.
type BookingLog struct {
	w io.Writer
}

// NewBookingLog writes to a size-rotated file at path.
func NewBookingLog(path string) *BookingLog {
	return &BookingLog{w: &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     90, // days
		Compress:   true,
	}}
}

// Handle decodes one message body and appends its line.
func (l *BookingLog) Handle(body []byte) error {
	var ev ReservationConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.ReservationID == 0 {
		return errors.New("event without reservation id")
	}
	line := fmt.Sprintf("[%s] Reservation confirmed | reservation_id=%d | vehicle_id=%d | vehicle=%q | customer=%q <%s> | dates=%s..%s | days=%d | total=%s | %s %s\n",
		ev.ConfirmedAt, ev.ReservationID, ev.VehicleID, ev.VehicleName, ev.CustomerName, ev.CustomerEmail,
		ev.StartDate, ev.EndDate, ev.DayCount, ev.Total, ev.PaymentMethod, ev.TransactionID)
	if _, err := io.WriteString(l.w, line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// Consumer drains the reservation.confirmed queue into a BookingLog.
type Consumer struct {
	url string
	out *BookingLog
	log *zap.Logger
}

func NewConsumer(url string, out *BookingLog, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{url: url, out: out, log: log.Named("booking-consumer")}
}

// Run connects to RabbitMQ, declares the durable queue and consumes until
// ctx is cancelled.  Broker failures trigger a reconnect with exponential
// backoff capped at 30s; malformed messages are rejected without requeue.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(ConfirmedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(ConfirmedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.out.Handle(d.Body); err != nil {
				c.log.Error("handle message failed", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
