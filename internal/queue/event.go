// Package queue carries chat notifications over RabbitMQ: the API
// publishes them and the notifier worker consumes and delivers them.
package queue

import "time"

// DefaultQueue is the durable queue holding pending chat notifications.
const DefaultQueue = "chat.notification"

// ChatNotificationEvent is published when a user writes on a request
// thread.  Text is already formatted for the operator.
type ChatNotificationEvent struct {
	Text     string    `json:"text"`
	QueuedAt time.Time `json:"queued_at"`
}
