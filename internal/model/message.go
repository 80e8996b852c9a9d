package model

import "time"

// Message is one chat entry on a request thread.  IsAdmin records the
// author's role when the message was sent so old messages keep rendering
// correctly.  Messages are never updated.
type Message struct {
	ID        string    `json:"id"` // ULID
	RequestID uint64    `json:"request_id"`
	UserID    uint64    `json:"user_id"`
	Content   string    `json:"content"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// Before reports whether m sorts ahead of o in a thread: by creation time,
// then by id.
func (m Message) Before(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}
