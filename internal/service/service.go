// Package service holds the business rules of the request desk: the
// request lifecycle, the chat and unread-state engine, the showcase
// catalog and image uploads.  Services are stateless apart from their
// collaborators and are safe for concurrent use.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/collectible-requests/internal/access"
	"github.com/iliyamo/collectible-requests/internal/model"
	"github.com/iliyamo/collectible-requests/internal/repository"
)

// ErrInvalidInput wraps every validation failure.  Handlers map it to 400.
var ErrInvalidInput = errors.New("invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ViewCache drops cached HTTP views after a write.  Implementations log
// their own failures.
type ViewCache interface {
	InvalidateRequest(ctx context.Context, requestID, ownerID uint64)
	InvalidateShowcase(ctx context.Context)
}

type noCache struct{}

func (noCache) InvalidateRequest(context.Context, uint64, uint64) {}
func (noCache) InvalidateShowcase(context.Context)                {}

func orNoCache(c ViewCache) ViewCache {
	if c == nil {
		return noCache{}
	}
	return c
}

// RequestStore is the persistence surface of requests.  It is satisfied
// by *repository.RequestRepo.
type RequestStore interface {
	Create(ctx context.Context, req *model.Request) error
	GetByID(ctx context.Context, id uint64) (*model.Request, error)
	GetWithOwner(ctx context.Context, id uint64) (*model.Request, error)
	ListByUser(ctx context.Context, userID uint64) ([]*model.Request, error)
	ListAll(ctx context.Context) ([]*model.Request, error)
	UpdateAdminAll(ctx context.Context, id uint64, status model.Status, ebayURL, adminNotes *string) error
	MarkRead(ctx context.Context, id uint64, isAdmin bool) error
	FlagUnread(ctx context.Context, id uint64, forAdmin bool) error
	DeletePending(ctx context.Context, id, userID uint64) error
}

// loadVisible fetches a request the actor may see: its owner or the
// admin.  Anyone else gets ErrNotFound so existence is not leaked.
func loadVisible(ctx context.Context, store RequestStore, gate *access.Gate, actor access.Identity, id uint64) (*model.Request, bool, error) {
	req, err := store.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	isAdmin := gate.IsAdmin(actor)
	if !isAdmin && req.UserID != actor.UserID {
		return nil, false, repository.ErrNotFound
	}
	return req, isAdmin, nil
}
