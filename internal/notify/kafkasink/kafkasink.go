package kafkasink

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/BearBump/ParcelBox/internal/broker/messages"
	"github.com/BearBump/ParcelBox/internal/notify"
	"github.com/pkg/errors"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Sink hands notifications to the bot process through Kafka,
// keyed by subscriber so one subscriber's messages stay ordered.
type Sink struct {
	pub   Publisher
	topic string
	now   func() time.Time
}

func New(pub Publisher, topic string) *Sink {
	return &Sink{pub: pub, topic: topic, now: time.Now}
}

func (s *Sink) Notify(ctx context.Context, n notify.Notification) error {
	b, err := json.Marshal(ToMessage(n, s.now()))
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}
	key := []byte(strconv.FormatInt(n.SubscriberID, 10))
	return s.pub.Publish(ctx, s.topic, key, b)
}

func ToMessage(n notify.Notification, at time.Time) messages.NotificationRequested {
	return messages.NotificationRequested{
		ID:           n.ID,
		SubscriberID: n.SubscriberID,
		TrackerID:    n.TrackerID,
		Kind:         string(n.Kind),
		Text:         n.Text,
		CreatedAt:    at.UTC(),
	}
}

// Decode parses a consumed message back into a Notification.
func Decode(value []byte) (notify.Notification, error) {
	var m messages.NotificationRequested
	if err := json.Unmarshal(value, &m); err != nil {
		return notify.Notification{}, errors.Wrap(err, "unmarshal notification")
	}
	if m.SubscriberID == 0 {
		return notify.Notification{}, errors.New("subscriber_id is required")
	}
	switch notify.Kind(m.Kind) {
	case notify.KindEvent, notify.KindCompletionPrompt, notify.KindText:
	default:
		return notify.Notification{}, errors.Errorf("unknown notification kind %q", m.Kind)
	}
	if notify.Kind(m.Kind) == notify.KindCompletionPrompt && m.TrackerID <= 0 {
		return notify.Notification{}, errors.New("tracker_id is required for completion prompt")
	}
	return notify.Notification{
		ID:           m.ID,
		SubscriberID: m.SubscriberID,
		TrackerID:    m.TrackerID,
		Kind:         notify.Kind(m.Kind),
		Text:         m.Text,
	}, nil
}
