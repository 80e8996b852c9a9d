package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iliyamo/collectible-requests/internal/model"
)

// RequestRepo encapsulates the `requests` table and the two stored
// procedures that perform privileged writes on it.
type RequestRepo struct {
	db *sql.DB
}

// NewRequestRepo constructs a RequestRepo with the provided DB handle.
func NewRequestRepo(db *sql.DB) *RequestRepo {
	return &RequestRepo{db: db}
}

const requestColumns = `r.id, r.user_id, r.character_name, r.budget, r.description,
	r.reference_image_urls, r.status, r.ebay_listing_url, r.admin_notes,
	r.unread_admin, r.unread_user, r.created_at, r.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRequest reads requestColumns, optionally followed by the owner email.
func scanRequest(s rowScanner, withOwner bool) (*model.Request, error) {
	var (
		r      model.Request
		desc   sql.NullString
		images []byte
		status string
		ebay   sql.NullString
		notes  sql.NullString
	)
	dest := []any{&r.ID, &r.UserID, &r.CharacterName, &r.Budget, &desc,
		&images, &status, &ebay, &notes,
		&r.UnreadAdmin, &r.UnreadUser, &r.CreatedAt, &r.UpdatedAt}
	if withOwner {
		dest = append(dest, &r.OwnerEmail)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	r.Status = model.Status(status)
	r.Description = nullString(desc)
	r.EbayListingURL = nullString(ebay)
	r.AdminNotes = nullString(notes)
	r.ReferenceImageURLs = []string{}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &r.ReferenceImageURLs); err != nil {
			return nil, fmt.Errorf("decode reference_image_urls: %w", err)
		}
	}
	return &r, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// Create inserts a new request.  Status and unread flags always start at
// their defaults regardless of what the caller put in req; the row is
// read back so the caller receives server timestamps.
func (r *RequestRepo) Create(ctx context.Context, req *model.Request) error {
	images := req.ReferenceImageURLs
	if images == nil {
		images = []string{}
	}
	raw, err := json.Marshal(images)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO requests (user_id, character_name, budget, description, reference_image_urls, status, unread_admin, unread_user)
		 VALUES (?, ?, ?, ?, ?, ?, FALSE, FALSE)`,
		req.UserID, req.CharacterName, req.Budget, req.Description, string(raw), string(model.StatusPending))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	stored, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*req = *stored
	return nil
}

// GetByID fetches a request.  It returns ErrNotFound if no row exists.
func (r *RequestRepo) GetByID(ctx context.Context, id uint64) (*model.Request, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM requests r WHERE r.id = ?", id)
	req, err := scanRequest(row, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return req, err
}

// GetWithOwner is GetByID joined with the owner's email, for admin views.
func (r *RequestRepo) GetWithOwner(ctx context.Context, id uint64) (*model.Request, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+requestColumns+", u.email FROM requests r JOIN users u ON u.id = r.user_id WHERE r.id = ?", id)
	req, err := scanRequest(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return req, err
}

// ListByUser returns a user's requests, newest first.
func (r *RequestRepo) ListByUser(ctx context.Context, userID uint64) ([]*model.Request, error) {
	return r.list(ctx, false,
		"SELECT "+requestColumns+" FROM requests r WHERE r.user_id = ? ORDER BY r.created_at DESC, r.id DESC", userID)
}

// ListAll returns every request for the admin inbox: threads with unread
// user messages first, then newest first.
func (r *RequestRepo) ListAll(ctx context.Context) ([]*model.Request, error) {
	return r.list(ctx, true,
		"SELECT "+requestColumns+", u.email FROM requests r JOIN users u ON u.id = r.user_id ORDER BY r.unread_admin DESC, r.created_at DESC, r.id DESC")
}

func (r *RequestRepo) list(ctx context.Context, withOwner bool, q string, args ...any) ([]*model.Request, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*model.Request{}
	for rows.Next() {
		req, err := scanRequest(rows, withOwner)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateAdminAll writes the admin-editable fields through the
// update_request_admin_all procedure.  All three values are written; the
// caller merges unchanged fields beforehand.
func (r *RequestRepo) UpdateAdminAll(ctx context.Context, id uint64, status model.Status, ebayURL, adminNotes *string) error {
	_, err := r.db.ExecContext(ctx, "CALL update_request_admin_all(?, ?, ?, ?)",
		id, string(status), ebayURL, adminNotes)
	return err
}

// MarkRead clears one role's unread flag through the mark_request_read
// procedure: unread_admin when isAdmin is true, unread_user otherwise.
func (r *RequestRepo) MarkRead(ctx context.Context, id uint64, isAdmin bool) error {
	_, err := r.db.ExecContext(ctx, "CALL mark_request_read(?, ?)", id, isAdmin)
	return err
}

// FlagUnread raises one role's unread flag after a message was stored:
// unread_admin when forAdmin is true, unread_user otherwise.
func (r *RequestRepo) FlagUnread(ctx context.Context, id uint64, forAdmin bool) error {
	q := "UPDATE requests SET unread_user = TRUE WHERE id = ?"
	if forAdmin {
		q = "UPDATE requests SET unread_admin = TRUE WHERE id = ?"
	}
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// DeletePending removes a request owned by userID while it is still
// pending.  It returns ErrNotFound when the request does not exist or
// belongs to someone else, and ErrConflict when it has left pending.
func (r *RequestRepo) DeletePending(ctx context.Context, id, userID uint64) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM requests WHERE id = ? AND user_id = ? AND status = ?",
		id, userID, string(model.StatusPending))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if cur.UserID != userID {
		return ErrNotFound
	}
	return ErrConflict
}
