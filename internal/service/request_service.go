package service

import (
	"context"
	"math"
	"strings"

	"github.com/iliyamo/collectible-requests/internal/access"
	"github.com/iliyamo/collectible-requests/internal/model"
	"github.com/iliyamo/collectible-requests/internal/repository"
)

// RequestService manages the lifecycle of purchase requests.
type RequestService struct {
	store RequestStore
	gate  *access.Gate
	cache ViewCache
}

func NewRequestService(store RequestStore, gate *access.Gate, cache ViewCache) *RequestService {
	return &RequestService{store: store, gate: gate, cache: orNoCache(cache)}
}

// CreateRequestInput is what a user submits for a new request.
type CreateRequestInput struct {
	CharacterName string
	Budget        int64
	Description   string
	ImageURLs     []string
}

// Create validates in and stores a pending request owned by actor.
func (s *RequestService) Create(ctx context.Context, actor access.Identity, in CreateRequestInput) (*model.Request, error) {
	name := strings.TrimSpace(in.CharacterName)
	if name == "" {
		return nil, invalid("character_name is required")
	}
	if in.Budget <= 0 || in.Budget > math.MaxUint32 {
		return nil, invalid("budget must be a positive amount")
	}
	var urls []string
	for _, u := range in.ImageURLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) > model.MaxReferenceImages {
		return nil, invalid("at most %d reference images", model.MaxReferenceImages)
	}

	req := &model.Request{
		UserID:             actor.UserID,
		CharacterName:      name,
		Budget:             uint32(in.Budget),
		Description:        optional(in.Description),
		ReferenceImageURLs: urls,
	}
	if err := s.store.Create(ctx, req); err != nil {
		return nil, err
	}
	s.cache.InvalidateRequest(ctx, req.ID, req.UserID)
	return req, nil
}

// ListMine returns the actor's own requests, newest first.
func (s *RequestService) ListMine(ctx context.Context, actor access.Identity) ([]*model.Request, error) {
	return s.store.ListByUser(ctx, actor.UserID)
}

// Get returns a request to its owner, or to the admin with the owner's
// email attached.
func (s *RequestService) Get(ctx context.Context, actor access.Identity, id uint64) (*model.Request, error) {
	req, isAdmin, err := loadVisible(ctx, s.store, s.gate, actor, id)
	if err != nil {
		return nil, err
	}
	if isAdmin {
		return s.store.GetWithOwner(ctx, id)
	}
	return req, nil
}

// ListAll is the admin inbox: unread threads first, then newest first.
func (s *RequestService) ListAll(ctx context.Context, actor access.Identity) ([]*model.Request, error) {
	if !s.gate.IsAdmin(actor) {
		return nil, repository.ErrForbidden
	}
	return s.store.ListAll(ctx)
}

// AdminPatch carries the admin-editable fields.  A nil field keeps its
// current value; an empty string clears a URL or the notes.
type AdminPatch struct {
	Status         *string
	EbayListingURL *string
	AdminNotes     *string
}

// AdminUpdate merges patch into the current row and writes all three
// fields through the privileged procedure.
func (s *RequestService) AdminUpdate(ctx context.Context, actor access.Identity, id uint64, patch AdminPatch) (*model.Request, error) {
	if !s.gate.IsAdmin(actor) {
		return nil, repository.ErrForbidden
	}
	cur, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	status := cur.Status
	if patch.Status != nil {
		st, ok := model.NormalizeStatus(*patch.Status)
		if !ok {
			return nil, invalid("unknown status %q", *patch.Status)
		}
		status = st
	}
	ebay := cur.EbayListingURL
	if patch.EbayListingURL != nil {
		ebay = optional(*patch.EbayListingURL)
	}
	notes := cur.AdminNotes
	if patch.AdminNotes != nil {
		notes = optional(*patch.AdminNotes)
	}

	if err := s.store.UpdateAdminAll(ctx, id, status, ebay, notes); err != nil {
		return nil, err
	}
	s.cache.InvalidateRequest(ctx, id, cur.UserID)
	return s.store.GetWithOwner(ctx, id)
}

// Delete withdraws the actor's request.  Only pending requests can be
// deleted; others fail with ErrConflict.
func (s *RequestService) Delete(ctx context.Context, actor access.Identity, id uint64) error {
	if err := s.store.DeletePending(ctx, id, actor.UserID); err != nil {
		return err
	}
	s.cache.InvalidateRequest(ctx, id, actor.UserID)
	return nil
}

// optional maps a blank string to nil.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
