package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/google/uuid"
)

type Kind string

const (
	KindEvent            Kind = "event"
	KindCompletionPrompt Kind = "completion_prompt"
	KindText             Kind = "text"
)

// Notification is one message addressed to a subscriber.
// TrackerID is set for event and completion prompt notifications.
type Notification struct {
	ID           string
	SubscriberID int64
	TrackerID    int64
	Kind         Kind
	Text         string
}

// Sink delivers notifications. Delivery is fire-and-forget: callers log errors and move on.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

const (
	EventHeader          = "New update for your package!"
	CompletionPromptText = "One of your trackers has been marked as completed. Do you want to remove it?"

	timeLayout = "2006-01-02 15:04:05 -07:00"
)

// FormatEvent renders an event notification. Detail is omitted when empty.
func FormatEvent(ev models.TrackingEvent) string {
	var b strings.Builder
	b.WriteString(EventHeader)
	fmt.Fprintf(&b, "\nTime: %s", ev.Time.Format(timeLayout))
	fmt.Fprintf(&b, "\nStatus: %s", ev.Status)
	fmt.Fprintf(&b, "\nLocation: %s", ev.Location)
	if ev.Detail != "" {
		fmt.Fprintf(&b, "\nDetail: %s", ev.Detail)
	}
	return b.String()
}

func NewEvent(t *models.Tracker, ev models.TrackingEvent) Notification {
	return Notification{
		ID:           uuid.NewString(),
		SubscriberID: t.SubscriberID,
		TrackerID:    t.ID,
		Kind:         KindEvent,
		Text:         FormatEvent(ev),
	}
}

func NewCompletionPrompt(t *models.Tracker) Notification {
	return Notification{
		ID:           uuid.NewString(),
		SubscriberID: t.SubscriberID,
		TrackerID:    t.ID,
		Kind:         KindCompletionPrompt,
		Text:         CompletionPromptText,
	}
}

func NewText(subscriberID int64, text string) Notification {
	return Notification{
		ID:           uuid.NewString(),
		SubscriberID: subscriberID,
		Kind:         KindText,
		Text:         text,
	}
}
