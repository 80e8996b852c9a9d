package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/collectible-requests/internal/access"
	"github.com/iliyamo/collectible-requests/internal/model"
	"github.com/iliyamo/collectible-requests/internal/realtime"
	"github.com/iliyamo/collectible-requests/internal/repository"
)

var (
	adminID = access.Identity{UserID: 1, Email: "Owner@Shop.example"}
	userU   = access.Identity{UserID: 2, Email: "fan@example.com"}
	userV   = access.Identity{UserID: 3, Email: "other@example.com"}
	gate    = access.NewGate("owner@shop.example")
)

// memRequests is an in-memory RequestStore with the same rules as the
// MySQL repository.
type memRequests struct {
	mu      sync.Mutex
	nextID  uint64
	rows    map[uint64]*model.Request
	emails  map[uint64]string
	markErr error
	flagErr error
	marks   []bool
}

func newMemRequests() *memRequests {
	return &memRequests{
		rows:   map[uint64]*model.Request{},
		emails: map[uint64]string{adminID.UserID: adminID.Email, userU.UserID: userU.Email, userV.UserID: userV.Email},
	}
}

func (s *memRequests) Create(_ context.Context, req *model.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := time.Now().UTC()
	req.ID = s.nextID
	req.Status = model.StatusPending
	req.UnreadAdmin, req.UnreadUser = false, false
	req.CreatedAt, req.UpdatedAt = now, now
	if req.ReferenceImageURLs == nil {
		req.ReferenceImageURLs = []string{}
	}
	cp := *req
	s.rows[req.ID] = &cp
	return nil
}

func (s *memRequests) GetByID(_ context.Context, id uint64) (*model.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memRequests) GetWithOwner(ctx context.Context, id uint64) (*model.Request, error) {
	r, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.OwnerEmail = s.emails[r.UserID]
	return r, nil
}

func (s *memRequests) ListByUser(_ context.Context, userID uint64) ([]*model.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.Request{}
	for _, r := range s.rows {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *memRequests) ListAll(_ context.Context) ([]*model.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.Request{}
	for _, r := range s.rows {
		cp := *r
		cp.OwnerEmail = s.emails[r.UserID]
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UnreadAdmin != out[j].UnreadAdmin {
			return out[i].UnreadAdmin
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *memRequests) UpdateAdminAll(_ context.Context, id uint64, status model.Status, ebayURL, adminNotes *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if _, valid := model.NormalizeStatus(string(status)); !valid {
		return errors.New("Error 1644 (45000): invalid status")
	}
	r.Status, r.EbayListingURL, r.AdminNotes = status, ebayURL, adminNotes
	return nil
}

func (s *memRequests) MarkRead(_ context.Context, id uint64, isAdmin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks = append(s.marks, isAdmin)
	if s.markErr != nil {
		return s.markErr
	}
	if r, ok := s.rows[id]; ok {
		if isAdmin {
			r.UnreadAdmin = false
		} else {
			r.UnreadUser = false
		}
	}
	return nil
}

func (s *memRequests) FlagUnread(_ context.Context, id uint64, forAdmin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flagErr != nil {
		return s.flagErr
	}
	if r, ok := s.rows[id]; ok {
		if forAdmin {
			r.UnreadAdmin = true
		} else {
			r.UnreadUser = true
		}
	}
	return nil
}

func (s *memRequests) DeletePending(_ context.Context, id, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok || r.UserID != userID {
		return repository.ErrNotFound
	}
	if r.Status != model.StatusPending {
		return repository.ErrConflict
	}
	delete(s.rows, id)
	return nil
}

func (s *memRequests) markCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.marks)
}

type memMessages struct {
	mu        sync.Mutex
	rows      []model.Message
	createErr error
}

func (s *memMessages) Create(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.rows = append(s.rows, *m)
	return nil
}

func (s *memMessages) ListByRequest(_ context.Context, requestID uint64) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Message{}
	for _, m := range s.rows {
		if m.RequestID == requestID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// recordingNotifier captures every notification text.
type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return n.err
}

func (n *recordingNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}

type recordingCache struct {
	mu       sync.Mutex
	requests []uint64
	showcase int
}

func (c *recordingCache) InvalidateRequest(_ context.Context, requestID, _ uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, requestID)
}

func (c *recordingCache) InvalidateShowcase(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.showcase++
}

type memShowcase struct {
	nextID uint64
	rows   map[uint64]*model.ShowcaseItem
}

func newMemShowcase() *memShowcase { return &memShowcase{rows: map[uint64]*model.ShowcaseItem{}} }

func (s *memShowcase) Create(_ context.Context, it *model.ShowcaseItem) error {
	s.nextID++
	it.ID = s.nextID
	it.IsSold = false
	cp := *it
	s.rows[it.ID] = &cp
	return nil
}

func (s *memShowcase) GetByID(_ context.Context, id uint64) (*model.ShowcaseItem, error) {
	it, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (s *memShowcase) List(context.Context) ([]*model.ShowcaseItem, error) {
	out := []*model.ShowcaseItem{}
	for _, it := range s.rows {
		cp := *it
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *memShowcase) Update(_ context.Context, it *model.ShowcaseItem) error {
	if _, ok := s.rows[it.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *it
	s.rows[it.ID] = &cp
	return nil
}

func (s *memShowcase) ToggleSold(ctx context.Context, id uint64) (*model.ShowcaseItem, error) {
	it, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	it.IsSold = !it.IsSold
	return s.GetByID(ctx, id)
}

func (s *memShowcase) Delete(_ context.Context, id uint64) (*model.ShowcaseItem, error) {
	it, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(s.rows, id)
	return it, nil
}

type fakeImages struct {
	removed []string
	err     error
}

func (f *fakeImages) RemoveByURL(_ context.Context, url string) error {
	f.removed = append(f.removed, url)
	return f.err
}

type uploadCall struct {
	bucket, key, contentType string
	body                     string
}

type fakeUploader struct {
	calls   []uploadCall
	err     error
	failOn  int // 1-based upload that fails; 0 never
	removed []string
}

func (f *fakeUploader) Upload(_ context.Context, bucket, key string, r io.Reader, _ int64, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.failOn > 0 && len(f.calls)+1 == f.failOn {
		return "", errors.New("storage unavailable")
	}
	b, _ := io.ReadAll(r)
	f.calls = append(f.calls, uploadCall{bucket: bucket, key: key, contentType: contentType, body: string(b)})
	return "http://objects.test/" + bucket + "/" + key, nil
}

func (f *fakeUploader) RemoveByURL(_ context.Context, url string) error {
	f.removed = append(f.removed, url)
	return nil
}

func newTestBroker(t *testing.T) *realtime.Broker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return realtime.NewBroker(rdb, "")
}
