package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/collectible-requests/internal/model"
)

// MessageRepo stores chat messages.  Rows are insert-only.
type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

// Create inserts a message whose ID and CreatedAt were assigned by the
// caller.
func (r *MessageRepo) Create(ctx context.Context, m *model.Message) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO messages (id, request_id, user_id, content, is_admin, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		m.ID, m.RequestID, m.UserID, m.Content, m.IsAdmin, m.CreatedAt)
	return err
}

// ListByRequest returns the thread of a request, oldest first.
func (r *MessageRepo) ListByRequest(ctx context.Context, requestID uint64) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, request_id, user_id, content, is_admin, created_at
		   FROM messages WHERE request_id = ? ORDER BY created_at ASC, id ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.RequestID, &m.UserID, &m.Content, &m.IsAdmin, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
