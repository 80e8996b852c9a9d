// Package realtime is the change feed for chat threads.  Every stored
// message is published as an INSERT event on a Redis pub/sub channel
// keyed by request ID; open threads subscribe to that channel.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/collectible-requests/internal/model"
)

// EventInsert is the only event type the feed emits.
const EventInsert = "INSERT"

// Event is the payload carried on a request channel.
type Event struct {
	Type    string        `json:"type"`
	Message model.Message `json:"message"`
}

// Broker publishes and subscribes to per-request message channels.
type Broker struct {
	rdb    *redis.Client
	prefix string
}

// NewBroker returns a Broker using channels named "<prefix>:<request id>".
func NewBroker(rdb *redis.Client, prefix string) *Broker {
	if prefix == "" {
		prefix = "chat:request"
	}
	return &Broker{rdb: rdb, prefix: prefix}
}

func (b *Broker) channel(requestID uint64) string {
	return b.prefix + ":" + strconv.FormatUint(requestID, 10)
}

// Publish emits an INSERT event for m on its request's channel.
func (b *Broker) Publish(ctx context.Context, m model.Message) error {
	body, err := json.Marshal(Event{Type: EventInsert, Message: m})
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel(m.RequestID), body).Err(); err != nil {
		return fmt.Errorf("publish message %s: %w", m.ID, err)
	}
	return nil
}

// Subscribe opens a subscription filtered to one request.  It returns once
// Redis has confirmed the subscription, so any message published after
// Subscribe returns is delivered.  The caller must Close the handle.
func (b *Broker) Subscribe(ctx context.Context, requestID uint64) (*Subscription, error) {
	ps := b.rdb.Subscribe(ctx, b.channel(requestID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe request %d: %w", requestID, err)
	}
	s := &Subscription{
		requestID: requestID,
		ps:        ps,
		events:    make(chan model.Message, 16),
		done:      make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

// Subscription is a live handle on one request's feed.
type Subscription struct {
	requestID uint64
	ps        *redis.PubSub
	events    chan model.Message
	done      chan struct{}
	closeOnce sync.Once
}

// Messages delivers INSERT events in publish order.  The channel is closed
// after Close or when the underlying connection ends.
func (s *Subscription) Messages() <-chan model.Message { return s.events }

func (s *Subscription) pump() {
	defer close(s.events)
	in := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case raw, ok := <-in:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(raw.Payload), &ev); err != nil {
				log.Printf("realtime: drop malformed event on request %d: %v", s.requestID, err)
				continue
			}
			if ev.Type != EventInsert || ev.Message.RequestID != s.requestID {
				continue
			}
			select {
			case s.events <- ev.Message:
			case <-s.done:
				return
			}
		}
	}
}

// Close tears the subscription down.  It is safe to call more than once.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
