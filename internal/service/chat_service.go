package service

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/iliyamo/collectible-requests/internal/access"
	"github.com/iliyamo/collectible-requests/internal/model"
	"github.com/iliyamo/collectible-requests/internal/notify"
	"github.com/iliyamo/collectible-requests/internal/realtime"
)

// MaxMessageRunes bounds the length of one chat message.
const MaxMessageRunes = 4000

// ErrThreadClosed is returned by Thread.Next once the thread is closed or
// its feed ended.
var ErrThreadClosed = errors.New("thread closed")

// MessageStore is the persistence surface of chat messages.
type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	ListByRequest(ctx context.Context, requestID uint64) ([]model.Message, error)
}

// Feed is the realtime change feed.  It is satisfied by *realtime.Broker.
type Feed interface {
	Publish(ctx context.Context, m model.Message) error
	Subscribe(ctx context.Context, requestID uint64) (*realtime.Subscription, error)
}

// ChatService owns message persistence, realtime delivery and the
// per-request unread flags.
//
// unread_admin is raised when a user writes and unread_user when the
// admin writes; each role clears only its own flag, on open or on live
// receipt of a foreign message.  Both flags are last-write-wins.
type ChatService struct {
	requests RequestStore
	messages MessageStore
	feed     Feed
	notifier notify.Dispatcher
	gate     *access.Gate
	cache    ViewCache

	notifyTimeout time.Duration
	inflight      sync.WaitGroup
	now           func() time.Time
}

// NewChatService wires the engine.  A nil notifier disables
// notifications.
func NewChatService(requests RequestStore, messages MessageStore, feed Feed, notifier notify.Dispatcher,
	gate *access.Gate, cache ViewCache, notifyTimeout time.Duration) *ChatService {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if notifyTimeout <= 0 {
		notifyTimeout = 10 * time.Second
	}
	return &ChatService{
		requests:      requests,
		messages:      messages,
		feed:          feed,
		notifier:      notifier,
		gate:          gate,
		cache:         orNoCache(cache),
		notifyTimeout: notifyTimeout,
		now:           time.Now,
	}
}

// Send appends a message from actor to the request's thread.  The message
// is stored first; the unread flag, feed event, cache invalidation and
// notification follow and only log on failure.
func (s *ChatService) Send(ctx context.Context, actor access.Identity, requestID uint64, text string) (*model.Message, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, invalid("message is empty")
	}
	if utf8.RuneCountInString(content) > MaxMessageRunes {
		return nil, invalid("message exceeds %d characters", MaxMessageRunes)
	}
	req, isAdmin, err := loadVisible(ctx, s.requests, s.gate, actor, requestID)
	if err != nil {
		return nil, err
	}

	m := &model.Message{
		ID:        ulid.Make().String(),
		RequestID: req.ID,
		UserID:    actor.UserID,
		Content:   content,
		IsAdmin:   isAdmin,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, err
	}

	// The opposite role's flag: a user message is unread for the admin.
	if err := s.requests.FlagUnread(ctx, req.ID, !isAdmin); err != nil {
		log.Printf("chat: flag unread on request %d: %v", req.ID, err)
	}
	if s.feed != nil {
		if err := s.feed.Publish(ctx, *m); err != nil {
			log.Printf("chat: publish message %s: %v", m.ID, err)
		}
	}
	s.cache.InvalidateRequest(ctx, req.ID, req.UserID)

	if !isAdmin {
		s.dispatch(req.ID, notify.ChatSummary(actor.Email, *req, content))
	}
	return m, nil
}

func (s *ChatService) dispatch(requestID uint64, text string) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, text); err != nil {
			log.Printf("chat: notification for request %d failed: %v", requestID, err)
		}
	}()
}

// Drain waits for in-flight notifications or until ctx is done.
func (s *ChatService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Open clears the actor's own unread flag on the request.  The role is
// taken from the gate, never from the client.
func (s *ChatService) Open(ctx context.Context, actor access.Identity, requestID uint64) error {
	req, isAdmin, err := loadVisible(ctx, s.requests, s.gate, actor, requestID)
	if err != nil {
		return err
	}
	if err := s.requests.MarkRead(ctx, req.ID, isAdmin); err != nil {
		return err
	}
	s.cache.InvalidateRequest(ctx, req.ID, req.UserID)
	return nil
}

// LiveReceive re-clears the actor's flag when a message written by
// someone else arrives on an open thread.  Own messages are ignored.
func (s *ChatService) LiveReceive(ctx context.Context, actor access.Identity, m model.Message) error {
	if m.UserID == actor.UserID {
		return nil
	}
	req, isAdmin, err := loadVisible(ctx, s.requests, s.gate, actor, m.RequestID)
	if err != nil {
		return err
	}
	if err := s.requests.MarkRead(ctx, req.ID, isAdmin); err != nil {
		return err
	}
	s.cache.InvalidateRequest(ctx, req.ID, req.UserID)
	return nil
}

// History returns the thread of a visible request, oldest first.
func (s *ChatService) History(ctx context.Context, actor access.Identity, requestID uint64) ([]model.Message, error) {
	if _, _, err := loadVisible(ctx, s.requests, s.gate, actor, requestID); err != nil {
		return nil, err
	}
	return s.messages.ListByRequest(ctx, requestID)
}

// OpenThread subscribes to the request's feed, clears the actor's unread
// flag and loads the log, in that order, so no message written in
// between is lost.  The caller must Close the thread.
func (s *ChatService) OpenThread(ctx context.Context, actor access.Identity, requestID uint64) (*Thread, error) {
	if _, _, err := loadVisible(ctx, s.requests, s.gate, actor, requestID); err != nil {
		return nil, err
	}
	sub, err := s.feed.Subscribe(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.Open(ctx, actor, requestID); err != nil {
		_ = sub.Close()
		return nil, err
	}
	msgs, err := s.messages.ListByRequest(ctx, requestID)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	t := &Thread{
		chat:      s,
		actor:     actor,
		requestID: requestID,
		sub:       sub,
		seen:      make(map[string]struct{}, len(msgs)),
	}
	for _, m := range msgs {
		t.insert(m)
	}
	return t, nil
}

// Thread is an open view of one request's chat: the ordered log plus a
// live subscription.  Messages are unique by ID and kept in (created_at,
// id) order.
type Thread struct {
	chat      *ChatService
	actor     access.Identity
	requestID uint64
	sub       *realtime.Subscription

	mu        sync.Mutex
	log       []model.Message
	seen      map[string]struct{}
	closeOnce sync.Once
}

// RequestID is the request this thread belongs to.
func (t *Thread) RequestID() uint64 { return t.requestID }

// Messages returns a copy of the held log.
func (t *Thread) Messages() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Message, len(t.log))
	copy(out, t.log)
	return out
}

// insert adds m in order.  It reports false for an ID already held.
func (t *Thread) insert(m model.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.seen[m.ID]; dup {
		return false
	}
	t.seen[m.ID] = struct{}{}
	i := sort.Search(len(t.log), func(i int) bool { return m.Before(t.log[i]) })
	t.log = append(t.log, model.Message{})
	copy(t.log[i+1:], t.log[i:])
	t.log[i] = m
	return true
}

// Deliver applies one feed event.  Duplicates and events for other
// requests are dropped.  A new foreign message clears the actor's flag
// again; failures there are logged.
func (t *Thread) Deliver(ctx context.Context, m model.Message) bool {
	if m.RequestID != t.requestID || !t.insert(m) {
		return false
	}
	if err := t.chat.LiveReceive(ctx, t.actor, m); err != nil {
		log.Printf("chat: live clear on request %d: %v", t.requestID, err)
	}
	return true
}

// Next blocks until a new message arrives, ctx is done or the thread is
// closed.
func (t *Thread) Next(ctx context.Context) (model.Message, error) {
	for {
		select {
		case <-ctx.Done():
			return model.Message{}, ctx.Err()
		case m, ok := <-t.sub.Messages():
			if !ok {
				return model.Message{}, ErrThreadClosed
			}
			if t.Deliver(ctx, m) {
				return m, nil
			}
		}
	}
}

// Close ends the subscription.  Safe to call more than once.
func (t *Thread) Close() error {
	var err error
	t.closeOnce.Do(func() { err = t.sub.Close() })
	return err
}
