package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/collectible-requests/internal/model"
	"github.com/iliyamo/collectible-requests/internal/service"
)

// ChatHandler exposes request threads over JSON and server-sent events.
type ChatHandler struct {
	Chat      *service.ChatService
	Heartbeat time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

func NewChatHandler(s *service.ChatService, heartbeat time.Duration) *ChatHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &ChatHandler{Chat: s, Heartbeat: heartbeat, stop: make(chan struct{})}
}

// Shutdown ends every open stream so the server can go idle.  Register it
// with http.Server.RegisterOnShutdown.  Streams opened afterwards end
// right after the log replay.
func (h *ChatHandler) Shutdown() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// List: GET /v1/requests/:id/messages.  Opening the thread clears the
// caller's unread flag.
func (h *ChatHandler) List(c echo.Context) error {
	actor, ok := currentIdentity(c)
	if !ok {
		return nil
	}
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Chat.Open(ctx, actor, id); err != nil {
		return respondError(c, err)
	}
	msgs, err := h.Chat.History(ctx, actor, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": msgs})
}

type sendReq struct {
	Content string `json:"content"`
}

// Send: POST /v1/requests/:id/messages
func (h *ChatHandler) Send(c echo.Context) error {
	actor, ok := currentIdentity(c)
	if !ok {
		return nil
	}
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req sendReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	m, err := h.Chat.Send(ctx, actor, id, req.Content)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

// Stream: GET /v1/requests/:id/messages/stream
//
// Sends the held log, then every new message as a `message` event, with a
// comment line as heartbeat.  The stream ends when the client goes away or
// the server shuts down; the thread is closed on every exit path.
func (h *ChatHandler) Stream(c echo.Context) error {
	actor, ok := currentIdentity(c)
	if !ok {
		return nil
	}
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx := c.Request().Context()

	thread, err := h.Chat.OpenThread(ctx, actor, id)
	if err != nil {
		return respondError(c, err)
	}
	defer thread.Close()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	for _, m := range thread.Messages() {
		if err := writeEvent(w, m); err != nil {
			return nil
		}
	}
	w.Flush()

	incoming := make(chan model.Message)
	done := make(chan error, 1)
	go func() {
		for {
			m, err := thread.Next(ctx)
			if err != nil {
				done <- err
				return
			}
			select {
			case incoming <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	tick := time.NewTicker(h.Heartbeat)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.stop:
			return nil
		case err := <-done:
			if ctx.Err() == nil {
				c.Logger().Debugf("chat stream %d ended: %v", thread.RequestID(), err)
			}
			return nil
		case m := <-incoming:
			if err := writeEvent(w, m); err != nil {
				return nil
			}
			w.Flush()
		case <-tick.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

func writeEvent(w *echo.Response, m model.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: message\ndata: %s\n\n", m.ID, data)
	return err
}
