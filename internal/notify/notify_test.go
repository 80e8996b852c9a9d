package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iliyamo/collectible-requests/internal/model"
)

func TestLinePusherSendsPushBody(t *testing.T) {
	var (
		gotAuth string
		gotBody linePushBody
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := NewLinePusher("tok", "U123", srv.URL, time.Second)
	if err := p.Notify(context.Background(), "Hello"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody.To != "U123" || len(gotBody.Messages) != 1 || gotBody.Messages[0].Text != "Hello" || gotBody.Messages[0].Type != "text" {
		t.Fatalf("unexpected body %+v", gotBody)
	}
}

func TestLinePusherReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Authentication failed"}`))
	}))
	defer srv.Close()

	err := NewLinePusher("bad", "U1", srv.URL, time.Second).Notify(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401 error, got %v", err)
	}

	if err := NewLinePusher("", "U1", srv.URL, time.Second).Notify(context.Background(), "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestChatSummary(t *testing.T) {
	got := ChatSummary("fan@example.com", model.Request{ID: 12, CharacterName: "Miku"}, "Hello")
	for _, want := range []string{"fan@example.com", "#12", "Miku", "Hello"} {
		if !strings.Contains(got, want) {
			t.Fatalf("summary %q missing %q", got, want)
		}
	}
}
