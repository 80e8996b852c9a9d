// Package notify delivers short text notifications to the operator.  The
// chat engine treats every Dispatcher as best effort.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/collectible-requests/internal/model"
)

// Dispatcher sends one text notification.
type Dispatcher interface {
	Notify(ctx context.Context, text string) error
}

// ErrNotConfigured is returned by dispatchers missing credentials.
var ErrNotConfigured = errors.New("notification channel not configured")

// Discard drops every notification.  Used when notifications are off.
type Discard struct{}

func (Discard) Notify(context.Context, string) error { return nil }

// ChatSummary formats the text sent when a user writes on a request
// thread.
func ChatSummary(senderEmail string, req model.Request, content string) string {
	return fmt.Sprintf("New message from %s on request #%d (%s):\n%s",
		senderEmail, req.ID, req.CharacterName, content)
}
