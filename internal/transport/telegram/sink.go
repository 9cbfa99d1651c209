package telegram

import (
	"context"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/notify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Sink delivers notifications as Telegram messages to the subscriber's chat.
type Sink struct {
	s       sender
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewSink(s sender, ratePerSec int, log *zap.Logger) *Sink {
	if ratePerSec <= 0 {
		ratePerSec = 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{
		s: s,
		// burst = rate, короткие всплески не блокируем
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log,
	}
}

func (s *Sink) Notify(ctx context.Context, n notify.Notification) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "telegram rate limit")
	}

	chat := &tele.Chat{ID: n.SubscriberID}
	opts := []interface{}{}
	if n.Kind == notify.KindCompletionPrompt {
		opts = append(opts, CompletionKeyboard(n.TrackerID))
	}
	if _, err := s.s.Send(chat, n.Text, opts...); err != nil {
		return errors.Wrap(err, "telegram send")
	}
	s.log.Debug("notification sent",
		zap.String("id", n.ID), zap.Int64("subscriber_id", n.SubscriberID), zap.String("kind", string(n.Kind)))
	return nil
}

// CompletionKeyboard is the Yes/No keyboard under a completion prompt.
// "Yes" removes the tracker, "No" keeps it.
func CompletionKeyboard(trackerID int64) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	rm.Inline(rm.Row(
		tele.Btn{Text: "Yes", Data: models.CompletionAction{TrackerID: trackerID, Action: models.ActionDelete}.Encode()},
		tele.Btn{Text: "No", Data: models.CompletionAction{TrackerID: trackerID, Action: models.ActionKeep}.Encode()},
	))
	return rm
}
