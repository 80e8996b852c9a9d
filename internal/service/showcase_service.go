package service

import (
	"context"
	"log"
	"math"
	"strings"

	"github.com/iliyamo/collectible-requests/internal/access"
	"github.com/iliyamo/collectible-requests/internal/model"
	"github.com/iliyamo/collectible-requests/internal/repository"
)

// ShowcaseStore is satisfied by *repository.ShowcaseRepo.
type ShowcaseStore interface {
	Create(ctx context.Context, it *model.ShowcaseItem) error
	GetByID(ctx context.Context, id uint64) (*model.ShowcaseItem, error)
	List(ctx context.Context) ([]*model.ShowcaseItem, error)
	Update(ctx context.Context, it *model.ShowcaseItem) error
	ToggleSold(ctx context.Context, id uint64) (*model.ShowcaseItem, error)
	Delete(ctx context.Context, id uint64) (*model.ShowcaseItem, error)
}

// ImageRemover deletes a stored image by its public URL.
type ImageRemover interface {
	RemoveByURL(ctx context.Context, url string) error
}

// ShowcaseService manages the public catalog.  Reads are public; writes
// require the admin.
type ShowcaseService struct {
	store  ShowcaseStore
	images ImageRemover
	gate   *access.Gate
	cache  ViewCache
}

func NewShowcaseService(store ShowcaseStore, images ImageRemover, gate *access.Gate, cache ViewCache) *ShowcaseService {
	return &ShowcaseService{store: store, images: images, gate: gate, cache: orNoCache(cache)}
}

func (s *ShowcaseService) List(ctx context.Context) ([]*model.ShowcaseItem, error) {
	return s.store.List(ctx)
}

func (s *ShowcaseService) Get(ctx context.Context, id uint64) (*model.ShowcaseItem, error) {
	return s.store.GetByID(ctx, id)
}

// ShowcaseInput is used for both create and update.  On update a nil
// field is left unchanged.
type ShowcaseInput struct {
	Title    *string
	Price    *int64
	ImageURL *string
	EbayURL  *string
	Category *string
	Priority *int
}

// Create lists a new unsold item.  Title, price and image URL are
// required.
func (s *ShowcaseService) Create(ctx context.Context, actor access.Identity, in ShowcaseInput) (*model.ShowcaseItem, error) {
	if !s.gate.IsAdmin(actor) {
		return nil, repository.ErrForbidden
	}
	if in.Title == nil || in.Price == nil || in.ImageURL == nil {
		return nil, invalid("title, price and image_url are required")
	}
	it := &model.ShowcaseItem{Category: model.DefaultCategory}
	if err := applyShowcase(it, in); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, it); err != nil {
		return nil, err
	}
	s.cache.InvalidateShowcase(ctx)
	return it, nil
}

// Update edits an item.  When the image is replaced the old object is
// removed from storage.
func (s *ShowcaseService) Update(ctx context.Context, actor access.Identity, id uint64, in ShowcaseInput) (*model.ShowcaseItem, error) {
	if !s.gate.IsAdmin(actor) {
		return nil, repository.ErrForbidden
	}
	it, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldImage := it.ImageURL
	if err := applyShowcase(it, in); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, it); err != nil {
		return nil, err
	}
	if it.ImageURL != oldImage {
		s.removeImage(ctx, oldImage)
	}
	s.cache.InvalidateShowcase(ctx)
	return it, nil
}

// ToggleSold flips is_sold atomically and returns the stored value.
func (s *ShowcaseService) ToggleSold(ctx context.Context, actor access.Identity, id uint64) (*model.ShowcaseItem, error) {
	if !s.gate.IsAdmin(actor) {
		return nil, repository.ErrForbidden
	}
	it, err := s.store.ToggleSold(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateShowcase(ctx)
	return it, nil
}

// Delete removes the item and then its image.  A failed image removal
// is logged; the item stays deleted.
func (s *ShowcaseService) Delete(ctx context.Context, actor access.Identity, id uint64) error {
	if !s.gate.IsAdmin(actor) {
		return repository.ErrForbidden
	}
	it, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.removeImage(ctx, it.ImageURL)
	s.cache.InvalidateShowcase(ctx)
	return nil
}

func (s *ShowcaseService) removeImage(ctx context.Context, url string) {
	if s.images == nil || url == "" {
		return
	}
	if err := s.images.RemoveByURL(ctx, url); err != nil {
		log.Printf("showcase: remove image %s: %v", url, err)
	}
}

func applyShowcase(it *model.ShowcaseItem, in ShowcaseInput) error {
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" {
			return invalid("title is required")
		}
		it.Title = t
	}
	if in.Price != nil {
		if *in.Price < 0 || *in.Price > math.MaxUint32 {
			return invalid("price must be zero or more")
		}
		it.Price = uint32(*in.Price)
	}
	if in.ImageURL != nil {
		u := strings.TrimSpace(*in.ImageURL)
		if u == "" {
			return invalid("image_url is required")
		}
		it.ImageURL = u
	}
	if in.EbayURL != nil {
		it.EbayURL = optional(*in.EbayURL)
	}
	if in.Category != nil {
		c := strings.TrimSpace(*in.Category)
		if c == "" {
			c = model.DefaultCategory
		}
		it.Category = c
	}
	if in.Priority != nil {
		it.Priority = *in.Priority
	}
	return nil
}
