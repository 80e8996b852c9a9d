package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/collectible-requests/internal/model"
)

// ShowcaseRepo encapsulates the `showcase_items` table.
type ShowcaseRepo struct {
	db *sql.DB
}

func NewShowcaseRepo(db *sql.DB) *ShowcaseRepo { return &ShowcaseRepo{db: db} }

const showcaseColumns = "id, title, price, image_url, ebay_url, category, is_sold, priority, created_at, updated_at"

func scanShowcase(s rowScanner) (*model.ShowcaseItem, error) {
	var (
		it   model.ShowcaseItem
		ebay sql.NullString
	)
	if err := s.Scan(&it.ID, &it.Title, &it.Price, &it.ImageURL, &ebay, &it.Category,
		&it.IsSold, &it.Priority, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.EbayURL = nullString(ebay)
	return &it, nil
}

// Create inserts a new unsold item and reads it back.
func (r *ShowcaseRepo) Create(ctx context.Context, it *model.ShowcaseItem) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO showcase_items (title, price, image_url, ebay_url, category, is_sold, priority)
		 VALUES (?, ?, ?, ?, ?, FALSE, ?)`,
		it.Title, it.Price, it.ImageURL, it.EbayURL, it.Category, it.Priority)
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
	*it = *stored
	return nil
}

// GetByID returns ErrNotFound when the item does not exist.
func (r *ShowcaseRepo) GetByID(ctx context.Context, id uint64) (*model.ShowcaseItem, error) {
	it, err := scanShowcase(r.db.QueryRowContext(ctx,
		"SELECT "+showcaseColumns+" FROM showcase_items WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return it, err
}

// List returns the catalog by priority, newest first within a priority.
func (r *ShowcaseRepo) List(ctx context.Context) ([]*model.ShowcaseItem, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+showcaseColumns+" FROM showcase_items ORDER BY priority DESC, created_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*model.ShowcaseItem{}
	for rows.Next() {
		it, err := scanShowcase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Update writes every editable column of it and reloads the row.
func (r *ShowcaseRepo) Update(ctx context.Context, it *model.ShowcaseItem) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE showcase_items
		    SET title = ?, price = ?, image_url = ?, ebay_url = ?, category = ?, priority = ?,
		        updated_at = CURRENT_TIMESTAMP(6)
		  WHERE id = ?`,
		it.Title, it.Price, it.ImageURL, it.EbayURL, it.Category, it.Priority, it.ID); err != nil {
		return err
	}
	// RowsAffected is 0 for unchanged rows as well, so existence is
	// decided by the read-back.
	stored, err := r.GetByID(ctx, it.ID)
	if err != nil {
		return err
	}
	*it = *stored
	return nil
}

// ToggleSold flips is_sold in a single statement and returns the new row.
func (r *ShowcaseRepo) ToggleSold(ctx context.Context, id uint64) (*model.ShowcaseItem, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE showcase_items SET is_sold = NOT is_sold, updated_at = CURRENT_TIMESTAMP(6) WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// Delete removes the item and returns the deleted row so the caller can
// clean up its stored image.
func (r *ShowcaseRepo) Delete(ctx context.Context, id uint64) (*model.ShowcaseItem, error) {
	it, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx, "DELETE FROM showcase_items WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return it, nil
}
