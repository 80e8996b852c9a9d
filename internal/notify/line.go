package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LinePusher sends push messages through the LINE Messaging API to a
// single recipient (the operator's LINE user).
type LinePusher struct {
	token    string
	to       string
	endpoint string
	client   *http.Client
}

// NewLinePusher builds a pusher.  An empty endpoint selects the public
// LINE push URL.
func NewLinePusher(token, to, endpoint string, timeout time.Duration) *LinePusher {
	if endpoint == "" {
		endpoint = "https://api.line.me/v2/bot/message/push"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LinePusher{token: token, to: to, endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

type lineTextMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type linePushBody struct {
	To       string            `json:"to"`
	Messages []lineTextMessage `json:"messages"`
}

// Notify pushes text.  Missing credentials yield ErrNotConfigured; any
// non-2xx answer is returned as an error carrying the response body.
func (p *LinePusher) Notify(ctx context.Context, text string) error {
	if p.token == "" || p.to == "" {
		return ErrNotConfigured
	}
	body, err := json.Marshal(linePushBody{
		To:       p.to,
		Messages: []lineTextMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("line push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("line push: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
