package service

import (
	"context"
	"errors"
	"testing"

	"github.com/iliyamo/collectible-requests/internal/model"
	"github.com/iliyamo/collectible-requests/internal/repository"
)

func strPtr(s string) *string { return &s }

func TestCreateRequestDefaults(t *testing.T) {
	store := newMemRequests()
	cache := &recordingCache{}
	svc := NewRequestService(store, gate, cache)

	req, err := svc.Create(context.Background(), userU, CreateRequestInput{
		CharacterName: " Miku ",
		Budget:        50,
		Description:   "  ",
		ImageURLs:     []string{"http://img/1.png", " "},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if req.Status != model.StatusPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}
	if req.UnreadAdmin || req.UnreadUser {
		t.Fatalf("new requests start with both flags false")
	}
	if req.CharacterName != "Miku" || req.Description != nil || len(req.ReferenceImageURLs) != 1 {
		t.Fatalf("unexpected normalized request %+v", req)
	}
	if len(cache.requests) != 1 {
		t.Fatalf("create must invalidate cached views")
	}
}

func TestCreateRequestValidation(t *testing.T) {
	svc := NewRequestService(newMemRequests(), gate, nil)
	cases := map[string]CreateRequestInput{
		"missing name":  {Budget: 10},
		"zero budget":   {CharacterName: "Miku"},
		"too many imgs": {CharacterName: "Miku", Budget: 1, ImageURLs: []string{"a", "b", "c", "d", "e"}},
	}
	for name, in := range cases {
		if _, err := svc.Create(context.Background(), userU, in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestDeleteOnlyWhilePending(t *testing.T) {
	store := newMemRequests()
	svc := NewRequestService(store, gate, nil)
	ctx := context.Background()

	first, _ := svc.Create(ctx, userU, CreateRequestInput{CharacterName: "Miku", Budget: 50})
	if err := svc.Delete(ctx, userU, first.ID); err != nil {
		t.Fatalf("pending request must be deletable: %v", err)
	}

	second, _ := svc.Create(ctx, userU, CreateRequestInput{CharacterName: "Miku", Budget: 50})
	if _, err := svc.AdminUpdate(ctx, adminID, second.ID, AdminPatch{Status: strPtr("negotiation")}); err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if err := svc.Delete(ctx, userU, second.ID); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict after negotiation, got %v", err)
	}
	if err := svc.Delete(ctx, userV, second.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("non-owner must get ErrNotFound, got %v", err)
	}
}

func TestAdminUpdateNormalizesAndMerges(t *testing.T) {
	store := newMemRequests()
	cache := &recordingCache{}
	svc := NewRequestService(store, gate, cache)
	ctx := context.Background()
	req, _ := svc.Create(ctx, userU, CreateRequestInput{CharacterName: "Miku", Budget: 50})

	got, err := svc.AdminUpdate(ctx, adminID, req.ID, AdminPatch{
		Status:         strPtr("  SOURCED "),
		EbayListingURL: strPtr("https://ebay.example/item/1"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Status != model.StatusSourced || got.EbayListingURL == nil || got.OwnerEmail != userU.Email {
		t.Fatalf("unexpected row %+v", got)
	}

	got, err = svc.AdminUpdate(ctx, adminID, req.ID, AdminPatch{AdminNotes: strPtr("shipping friday")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Status != model.StatusSourced || got.EbayListingURL == nil || *got.AdminNotes != "shipping friday" {
		t.Fatalf("unspecified fields must keep their values, got %+v", got)
	}

	got, _ = svc.AdminUpdate(ctx, adminID, req.ID, AdminPatch{EbayListingURL: strPtr("")})
	if got.EbayListingURL != nil {
		t.Fatalf("empty string must clear the listing url")
	}
	if len(cache.requests) < 4 {
		t.Fatalf("every write must invalidate, got %d", len(cache.requests))
	}
}

func TestAdminUpdateRejects(t *testing.T) {
	store := newMemRequests()
	svc := NewRequestService(store, gate, nil)
	ctx := context.Background()
	req, _ := svc.Create(ctx, userU, CreateRequestInput{CharacterName: "Miku", Budget: 50})

	if _, err := svc.AdminUpdate(ctx, userU, req.ID, AdminPatch{Status: strPtr("completed")}); !errors.Is(err, repository.ErrForbidden) {
		t.Fatalf("non-admin must be forbidden, got %v", err)
	}
	if _, err := svc.AdminUpdate(ctx, adminID, req.ID, AdminPatch{Status: strPtr("shipped")}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown status must be invalid, got %v", err)
	}
	if _, err := svc.AdminUpdate(ctx, adminID, 404, AdminPatch{}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing request must be ErrNotFound, got %v", err)
	}
}

func TestGetAndListVisibility(t *testing.T) {
	store := newMemRequests()
	svc := NewRequestService(store, gate, nil)
	ctx := context.Background()
	req, _ := svc.Create(ctx, userU, CreateRequestInput{CharacterName: "Miku", Budget: 50})
	other, _ := svc.Create(ctx, userV, CreateRequestInput{CharacterName: "Rin", Budget: 20})
	_ = store.FlagUnread(ctx, req.ID, true)

	if _, err := svc.Get(ctx, userV, req.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("stranger must get ErrNotFound, got %v", err)
	}
	own, err := svc.Get(ctx, userU, req.ID)
	if err != nil || own.OwnerEmail != "" {
		t.Fatalf("owner view must not join the email: %+v %v", own, err)
	}
	adm, err := svc.Get(ctx, adminID, req.ID)
	if err != nil || adm.OwnerEmail != userU.Email {
		t.Fatalf("admin view must carry the owner email: %+v %v", adm, err)
	}

	mine, _ := svc.ListMine(ctx, userV)
	if len(mine) != 1 || mine[0].ID != other.ID {
		t.Fatalf("ListMine leaked other users' requests: %+v", mine)
	}
	if _, err := svc.ListAll(ctx, userU); !errors.Is(err, repository.ErrForbidden) {
		t.Fatalf("ListAll must be admin only, got %v", err)
	}
	all, _ := svc.ListAll(ctx, adminID)
	if len(all) != 2 || all[0].ID != req.ID {
		t.Fatalf("unread requests must come first: %+v", all)
	}
}
