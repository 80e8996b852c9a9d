package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/collectible-requests/internal/notify"
)

// Consumer drains the notification queue into a Dispatcher.
type Consumer struct {
	url      string
	queue    string
	dispatch notify.Dispatcher
	timeout  time.Duration
}

func NewConsumer(url, queue string, d notify.Dispatcher, timeout time.Duration) *Consumer {
	if queue == "" {
		queue = DefaultQueue
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Consumer{url: url, queue: queue, dispatch: d, timeout: timeout}
}

// Run connects to the broker and consumes until ctx is cancelled.  Broken
// connections are re-dialled with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			log.Printf("notifier: failed to dial broker: %v; retrying in %s", err, backoff)
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
		log.Printf("notifier: consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		log.Printf("notifier: set QoS failed: %v", err)
	}
	if err := declare(ch, c.queue); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.handle(ctx, d.Body); err != nil {
			log.Printf("notifier: delivery failed: %v", err)
			_ = d.Nack(false, false) // drop, notifications are best effort
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// handle decodes one delivery and forwards it to the dispatcher.
func (c *Consumer) handle(ctx context.Context, body []byte) error {
	var ev ChatNotificationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Text == "" {
		return errors.New("empty notification text")
	}
	dctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.dispatch.Notify(dctx, ev.Text)
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
