package messages

import "time"

// NotificationRequested is published by the worker for every notification
// the bot process must deliver to a subscriber.
type NotificationRequested struct {
	ID           string    `json:"id"`
	SubscriberID int64     `json:"subscriber_id"`
	TrackerID    int64     `json:"tracker_id,omitempty"`
	Kind         string    `json:"kind"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"created_at"`
}
