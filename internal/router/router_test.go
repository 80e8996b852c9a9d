package router

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/collectible-requests/internal/access"
	"github.com/iliyamo/collectible-requests/internal/config"
	"github.com/iliyamo/collectible-requests/internal/handler"
	"github.com/iliyamo/collectible-requests/internal/middleware"
	"github.com/iliyamo/collectible-requests/internal/model"
	"github.com/iliyamo/collectible-requests/internal/realtime"
	"github.com/iliyamo/collectible-requests/internal/repository"
	"github.com/iliyamo/collectible-requests/internal/service"
	"github.com/iliyamo/collectible-requests/internal/utils"
)

// ----- in-memory stores -----

type store struct {
	mu       sync.Mutex
	users    map[string]model.User
	tokens   map[string]uint64
	requests map[uint64]*model.Request
	messages []model.Message
	items    map[uint64]*model.ShowcaseItem
	seq      uint64
}

func newStore() *store {
	return &store{
		users:    map[string]model.User{},
		tokens:   map[string]uint64{},
		requests: map[uint64]*model.Request{},
		items:    map[uint64]*model.ShowcaseItem{},
	}
}

func (s *store) next() uint64 { s.seq++; return s.seq }

type userStore struct{ *store }

func (u userStore) Create(_ context.Context, email, password string, cost int) (uint64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.users[email]; ok {
		return 0, repository.ErrEmailExists
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	id := u.next()
	u.users[email] = model.User{ID: id, Email: email, PasswordHash: hash}
	return id, nil
}

func (u userStore) GetByEmail(_ context.Context, email string) (model.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if usr, ok := u.users[email]; ok {
		return usr, nil
	}
	return model.User{}, repository.ErrNotFound
}

func (u userStore) GetByID(_ context.Context, id uint64) (model.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, usr := range u.users {
		if usr.ID == id {
			return usr, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (u userStore) emailOf(id uint64) string {
	for _, usr := range u.users {
		if usr.ID == id {
			return usr.Email
		}
	}
	return ""
}

type tokenStore struct{ *store }

func (t tokenStore) StoreRefresh(_ context.Context, userID uint64, hash string, _ time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens[hash] = userID
	return nil
}

func (t tokenStore) ValidateRefresh(_ context.Context, hash string) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.tokens[hash]; ok {
		return id, nil
	}
	return 0, repository.ErrNotFound
}

func (t tokenStore) RevokeByHash(_ context.Context, hash string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.tokens[hash]
	delete(t.tokens, hash)
	return ok, nil
}

func (t tokenStore) RevokeAllForUser(_ context.Context, userID uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for h, id := range t.tokens {
		if id == userID {
			delete(t.tokens, h)
		}
	}
	return nil
}

type requestStore struct{ *store }

func (r requestStore) Create(_ context.Context, req *model.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req.ID = r.next()
	req.Status = model.StatusPending
	req.CreatedAt = time.Now().UTC()
	req.UpdatedAt = req.CreatedAt
	if req.ReferenceImageURLs == nil {
		req.ReferenceImageURLs = []string{}
	}
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r requestStore) GetByID(_ context.Context, id uint64) (*model.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (r requestStore) GetWithOwner(ctx context.Context, id uint64) (*model.Request, error) {
	req, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	req.OwnerEmail = userStore(r).emailOf(req.UserID)
	return req, nil
}

func (r requestStore) ListByUser(_ context.Context, userID uint64) ([]*model.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Request{}
	for _, req := range r.requests {
		if req.UserID == userID {
			cp := *req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r requestStore) ListAll(_ context.Context) ([]*model.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Request{}
	for _, req := range r.requests {
		cp := *req
		cp.OwnerEmail = userStore(r).emailOf(req.UserID)
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

func (r requestStore) UpdateAdminAll(_ context.Context, id uint64, status model.Status, ebay, notes *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	req.Status, req.EbayListingURL, req.AdminNotes = status, ebay, notes
	return nil
}

func (r requestStore) MarkRead(_ context.Context, id uint64, isAdmin bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.requests[id]; ok {
		if isAdmin {
			req.UnreadAdmin = false
		} else {
			req.UnreadUser = false
		}
	}
	return nil
}

func (r requestStore) FlagUnread(_ context.Context, id uint64, forAdmin bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.requests[id]; ok {
		if forAdmin {
			req.UnreadAdmin = true
		} else {
			req.UnreadUser = true
		}
	}
	return nil
}

func (r requestStore) DeletePending(_ context.Context, id, userID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.UserID != userID {
		return repository.ErrNotFound
	}
	if req.Status != model.StatusPending {
		return repository.ErrConflict
	}
	delete(r.requests, id)
	return nil
}

type messageStore struct{ *store }

func (m messageStore) Create(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, *msg)
	return nil
}

func (m messageStore) ListByRequest(_ context.Context, id uint64) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Message{}
	for _, msg := range m.messages {
		if msg.RequestID == id {
			out = append(out, msg)
		}
	}
	return out, nil
}

type showcaseStore struct{ *store }

func (s showcaseStore) Create(_ context.Context, it *model.ShowcaseItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it.ID = s.next()
	cp := *it
	s.items[it.ID] = &cp
	return nil
}

func (s showcaseStore) GetByID(_ context.Context, id uint64) (*model.ShowcaseItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (s showcaseStore) List(_ context.Context) ([]*model.ShowcaseItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.ShowcaseItem{}
	for _, it := range s.items {
		cp := *it
		out = append(out, &cp)
	}
	return out, nil
}

func (s showcaseStore) Update(_ context.Context, it *model.ShowcaseItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *it
	s.items[it.ID] = &cp
	return nil
}

func (s showcaseStore) ToggleSold(ctx context.Context, id uint64) (*model.ShowcaseItem, error) {
	s.mu.Lock()
	it, ok := s.items[id]
	if ok {
		it.IsSold = !it.IsSold
	}
	s.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s showcaseStore) Delete(_ context.Context, id uint64) (*model.ShowcaseItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(s.items, id)
	return it, nil
}

type notifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *notifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

// ----- harness -----

const (
	secret     = "router-test-secret"
	adminEmail = "owner@shop.example"
)

type harness struct {
	e        *echo.Echo
	mr       *miniredis.Miniredis
	chat     *service.ChatService
	chatH    *handler.ChatHandler
	notifier *notifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	st := newStore()
	gate := access.NewGate(adminEmail)
	cache := middleware.NewResponseCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute}, rdb)
	n := &notifier{}

	requests := service.NewRequestService(requestStore{st}, gate, cache)
	chat := service.NewChatService(requestStore{st}, messageStore{st}, realtime.NewBroker(rdb, ""), n, gate, cache, time.Second)
	showcase := service.NewShowcaseService(showcaseStore{st}, nil, gate, cache)
	uploads := service.NewUploadService(nil, gate, "request-images", "showcase")

	cfg := config.Config{JWTSecret: secret, AccessTTLMin: 15, RefreshTTLDays: 1, BcryptCost: 4}
	chatH := handler.NewChatHandler(chat, time.Second)
	e := echo.New()
	Register(e, Handlers{
		Auth:         handler.NewAuthHandler(cfg, userStore{st}, tokenStore{st}, gate),
		Requests:     handler.NewRequestHandler(requests),
		AdminRequest: handler.NewAdminRequestHandler(requests),
		Chat:         chatH,
		Showcase:     handler.NewShowcaseHandler(showcase),
		Uploads:      handler.NewUploadHandler(uploads),
	}, Options{JWTSecret: secret, Gate: gate, Cache: cache.Middleware()})
	return &harness{e: e, mr: mr, chat: chat, chatH: chatH, notifier: n}
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

type authOut struct {
	Access struct {
		Token string `json:"token"`
	} `json:"access"`
	Refresh struct {
		Token string `json:"token"`
	} `json:"refresh"`
}

func (h *harness) signUp(t *testing.T, email string) authOut {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{"email": email, "password": "secret123"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", email, rec.Code, rec.Body.String())
	}
	return decode[authOut](t, rec)
}

func (h *harness) register(t *testing.T, email string) string {
	t.Helper()
	return h.signUp(t, email).Access.Token
}

// openStream starts the SSE feed of a request on ts.
func openStream(t *testing.T, ts *httptest.Server, requestID uint64, token string) (*http.Response, *bufio.Reader) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/requests/"+itoa(requestID)+"/messages/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("open stream: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		t.Fatalf("unexpected content type %q", ct)
	}
	return resp, bufio.NewReader(resp.Body)
}

// readEvent returns the next `message` event, skipping heartbeats.
func readEvent(t *testing.T, rd *bufio.Reader) model.Message {
	t.Helper()
	var event, data string
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			if event != "message" {
				t.Fatalf("unexpected event %q", event)
			}
			var m model.Message
			if err := json.Unmarshal([]byte(data), &m); err != nil {
				t.Fatalf("decode event %q: %v", data, err)
			}
			return m
		}
	}
}

// waitSubscribers polls until channel has want subscribers.
func waitSubscribers(t *testing.T, mr *miniredis.Miniredis, channel string, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		got := mr.PubSubNumSub(channel)[channel]
		if got == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("channel %s: expected %d subscribers, got %d", channel, want, got)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

// ----- tests -----

func TestRequestChatLifecycle(t *testing.T) {
	h := newHarness(t)
	user := h.register(t, "fan@example.com")
	admin := h.register(t, adminEmail)

	rec := h.do(t, http.MethodPost, "/v1/requests", user, map[string]any{"character_name": "Miku", "budget": 50})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	req := decode[model.Request](t, rec)
	if req.Status != model.StatusPending || req.UnreadAdmin || req.UnreadUser {
		t.Fatalf("unexpected new request %+v", req)
	}
	path := "/v1/requests/" + itoa(req.ID)

	// Scenario B: user writes, admin is flagged and notified.
	if rec := h.do(t, http.MethodPost, path+"/messages", user, map[string]string{"content": "Hello"}); rec.Code != http.StatusCreated {
		t.Fatalf("user send: %d %s", rec.Code, rec.Body.String())
	}
	inbox := decode[struct{ Items []model.Request }](t, h.do(t, http.MethodGet, "/v1/admin/requests", admin, nil))
	if len(inbox.Items) != 1 || !inbox.Items[0].UnreadAdmin || inbox.Items[0].OwnerEmail != "fan@example.com" {
		t.Fatalf("unexpected inbox %+v", inbox.Items)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.chat.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(h.notifier.texts) != 1 || !strings.Contains(h.notifier.texts[0], "Hello") || !strings.Contains(h.notifier.texts[0], "fan@example.com") {
		t.Fatalf("unexpected notifications %v", h.notifier.texts)
	}

	thread := decode[struct{ Items []model.Message }](t, h.do(t, http.MethodGet, path+"/messages", admin, nil))
	if len(thread.Items) != 1 || thread.Items[0].IsAdmin {
		t.Fatalf("unexpected thread %+v", thread.Items)
	}
	detail := decode[model.Request](t, h.do(t, http.MethodGet, "/v1/admin/requests/"+itoa(req.ID), admin, nil))
	if detail.UnreadAdmin {
		t.Fatalf("opening the thread must clear unread_admin")
	}

	// Scenario C: admin replies, user is flagged, nobody is notified.
	if rec := h.do(t, http.MethodPost, path+"/messages", admin, map[string]string{"content": "Found it!"}); rec.Code != http.StatusCreated {
		t.Fatalf("admin send: %d", rec.Code)
	}
	mine := decode[model.Request](t, h.do(t, http.MethodGet, path, user, nil))
	if !mine.UnreadUser {
		t.Fatalf("admin reply must set unread_user")
	}
	_ = h.chat.Drain(ctx)
	if len(h.notifier.texts) != 1 {
		t.Fatalf("admin reply must not notify")
	}

	// Scenario A: delete is rejected once the request leaves pending.
	rec = h.do(t, http.MethodPatch, "/v1/admin/requests/"+itoa(req.ID), admin, map[string]string{"status": "Negotiation"})
	if rec.Code != http.StatusOK || decode[model.Request](t, rec).Status != model.StatusNegotiation {
		t.Fatalf("admin update: %d %s", rec.Code, rec.Body.String())
	}
	if rec := h.do(t, http.MethodDelete, path, user, nil); rec.Code != http.StatusConflict {
		t.Fatalf("delete after negotiation: expected 409, got %d", rec.Code)
	}
}

func TestDeletePendingRequest(t *testing.T) {
	h := newHarness(t)
	user := h.register(t, "fan@example.com")
	other := h.register(t, "other@example.com")

	req := decode[model.Request](t, h.do(t, http.MethodPost, "/v1/requests", user, map[string]any{"character_name": "Miku", "budget": 50}))
	path := "/v1/requests/" + itoa(req.ID)

	if rec := h.do(t, http.MethodDelete, path, other, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("stranger delete: expected 404, got %d", rec.Code)
	}
	if rec := h.do(t, http.MethodDelete, path, user, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("owner delete: expected 204, got %d", rec.Code)
	}
	if rec := h.do(t, http.MethodGet, path, user, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("deleted request: expected 404, got %d", rec.Code)
	}
}

func TestShowcaseToggleOverHTTP(t *testing.T) {
	h := newHarness(t)
	admin := h.register(t, adminEmail)

	rec := h.do(t, http.MethodPost, "/v1/admin/showcase", admin, map[string]any{
		"title": "Miku figure", "price": 120, "image_url": "http://objects.test/showcase/a.png",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	it := decode[model.ShowcaseItem](t, rec)
	if it.IsSold || it.Price != 120 {
		t.Fatalf("unexpected item %+v", it)
	}

	list := decode[struct{ Items []model.ShowcaseItem }](t, h.do(t, http.MethodGet, "/v1/showcase", "", nil))
	if len(list.Items) != 1 {
		t.Fatalf("public list: %+v", list.Items)
	}

	toggle := "/v1/admin/showcase/" + itoa(it.ID) + "/toggle-sold"
	if got := decode[model.ShowcaseItem](t, h.do(t, http.MethodPost, toggle, admin, nil)); !got.IsSold {
		t.Fatalf("first toggle must mark sold")
	}
	if got := decode[model.ShowcaseItem](t, h.do(t, http.MethodPost, toggle, admin, nil)); got.IsSold {
		t.Fatalf("second toggle must mark unsold")
	}
	list = decode[struct{ Items []model.ShowcaseItem }](t, h.do(t, http.MethodGet, "/v1/showcase", "", nil))
	if list.Items[0].IsSold {
		t.Fatalf("cached catalog must be invalidated after toggles")
	}
}

func TestAccessGate(t *testing.T) {
	h := newHarness(t)
	user := h.register(t, "fan@example.com")

	if rec := h.do(t, http.MethodGet, "/v1/requests", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", rec.Code)
	}
	if rec := h.do(t, http.MethodGet, "/v1/admin/requests", user, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("user on admin route: expected 403, got %d", rec.Code)
	}
	if rec := h.do(t, http.MethodPost, "/v1/admin/showcase", user, map[string]any{}); rec.Code != http.StatusForbidden {
		t.Fatalf("user showcase create: expected 403, got %d", rec.Code)
	}

	me := decode[struct {
		Email   string `json:"email"`
		Role    string `json:"role"`
		IsAdmin bool   `json:"is_admin"`
	}](t, h.do(t, http.MethodGet, "/v1/me", user, nil))
	if me.Email != "fan@example.com" || me.Role != "user" || me.IsAdmin {
		t.Fatalf("unexpected /me %+v", me)
	}
}

func TestValidationErrors(t *testing.T) {
	h := newHarness(t)
	user := h.register(t, "fan@example.com")
	req := decode[model.Request](t, h.do(t, http.MethodPost, "/v1/requests", user, map[string]any{"character_name": "Miku", "budget": 50}))

	if rec := h.do(t, http.MethodPost, "/v1/requests", user, map[string]any{"character_name": "", "budget": 50}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing name: expected 400, got %d", rec.Code)
	}
	if rec := h.do(t, http.MethodPost, "/v1/requests/"+itoa(req.ID)+"/messages", user, map[string]string{"content": "  "}); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank message: expected 400, got %d", rec.Code)
	}
	if rec := h.do(t, http.MethodGet, "/v1/requests/abc", user, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", rec.Code)
	}
	if rec := h.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{"email": "fan@example.com", "password": "secret123"}); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate email: expected 409, got %d", rec.Code)
	}
	if rec := h.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "fan@example.com", "password": "wrong-pass"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: expected 401, got %d", rec.Code)
	}
}

func itoa(n uint64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestChatStreamReplaysDeliversAndUnsubscribes(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(h.e)
	defer ts.Close()

	user := h.register(t, "fan@example.com")
	admin := h.register(t, adminEmail)
	req := decode[model.Request](t, h.do(t, http.MethodPost, "/v1/requests", user, map[string]any{"character_name": "Miku", "budget": 50}))
	path := "/v1/requests/" + itoa(req.ID)
	channel := "chat:request:" + itoa(req.ID)

	if rec := h.do(t, http.MethodPost, path+"/messages", user, map[string]string{"content": "Hello"}); rec.Code != http.StatusCreated {
		t.Fatalf("user send: %d", rec.Code)
	}

	resp, rd := openStream(t, ts, req.ID, admin)
	if first := readEvent(t, rd); first.Content != "Hello" || first.IsAdmin {
		t.Fatalf("unexpected replayed event %+v", first)
	}
	waitSubscribers(t, h.mr, channel, 1)

	if rec := h.do(t, http.MethodPost, path+"/messages", user, map[string]string{"content": "Are you there?"}); rec.Code != http.StatusCreated {
		t.Fatalf("user send: %d", rec.Code)
	}
	live := readEvent(t, rd)
	if live.Content != "Are you there?" || live.RequestID != req.ID {
		t.Fatalf("unexpected live event %+v", live)
	}
	detail := decode[model.Request](t, h.do(t, http.MethodGet, "/v1/admin/requests/"+itoa(req.ID), admin, nil))
	if detail.UnreadAdmin {
		t.Fatalf("a message received on an open admin stream must clear unread_admin")
	}

	resp.Body.Close()
	waitSubscribers(t, h.mr, channel, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = h.chat.Drain(ctx)
}

func TestServerShutdownEndsOpenStreams(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewUnstartedServer(h.e)
	ts.Config.RegisterOnShutdown(h.chatH.Shutdown)
	ts.Start()
	defer ts.Close()

	user := h.register(t, "fan@example.com")
	req := decode[model.Request](t, h.do(t, http.MethodPost, "/v1/requests", user, map[string]any{"character_name": "Miku", "budget": 50}))
	channel := "chat:request:" + itoa(req.ID)

	resp, rd := openStream(t, ts, req.ID, user)
	defer resp.Body.Close()
	waitSubscribers(t, h.mr, channel, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := ts.Config.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown with an open stream: %v after %s", err, time.Since(start))
	}
	if _, err := io.Copy(io.Discard, rd); err != nil {
		t.Fatalf("stream should end cleanly: %v", err)
	}
	waitSubscribers(t, h.mr, channel, 0)

	// Notifications still drain on a fresh context.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), time.Second)
	defer cancelDrain()
	if err := h.chat.Drain(drainCtx); err != nil {
		t.Fatalf("drain after shutdown: %v", err)
	}
}

func TestRefreshRotatesOnce(t *testing.T) {
	h := newHarness(t)
	out := h.signUp(t, "fan@example.com")

	rec := h.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": out.Refresh.Token})
	if rec.Code != http.StatusOK {
		t.Fatalf("first refresh: %d %s", rec.Code, rec.Body.String())
	}
	next := decode[authOut](t, rec)
	if next.Refresh.Token == "" || next.Refresh.Token == out.Refresh.Token {
		t.Fatalf("refresh must rotate the token")
	}
	if rec := h.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": out.Refresh.Token}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token: expected 401, got %d", rec.Code)
	}
}
