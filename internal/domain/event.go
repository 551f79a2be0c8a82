package domain

import "time"

// WebhookEventStatus tracks processing of a stored provider event.
type WebhookEventStatus string

const (
	EventReceived  WebhookEventStatus = "received"
	EventProcessed WebhookEventStatus = "processed"
	EventFailed    WebhookEventStatus = "failed"
	EventRejected  WebhookEventStatus = "rejected"
)

// WebhookEvent is an authenticated provider event kept for replay.
type WebhookEvent struct {
	ID              string
	Type            string
	Payload         []byte
	Status          WebhookEventStatus
	Attempts        int
	ProcessingError string
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
}
