package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/BearBump/ParcelBox/internal/integrations/carrier"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/services/trackers"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Service interface {
	AddTracker(ctx context.Context, subscriberID int64, carrier, trackingNumber string) (*models.Tracker, *models.Parcel, error)
	DeleteTracker(ctx context.Context, subscriberID, id int64) error
	ListTrackers(ctx context.Context, subscriberID int64) ([]trackers.TrackerView, error)
	ConfirmCompletion(ctx context.Context, subscriberID int64, a models.CompletionAction) (trackers.Result, error)
	Carriers() []string
}

const (
	msgEmptyList      = "Your tracker list is empty. Start adding trackers by typing /add <company> <tracking_number>"
	msgInvalidCarrier = "Invalid company name"
	msgAddUsage       = "Usage: /add <company> <tracking_number>"
	msgDeleteUsage    = "Usage: /delete <index>"
	msgNotFound       = "Tracking number not found"
	msgFetchFailed    = "Could not fetch the parcel right now, try again later"
	msgInternal       = "Something went wrong, try again later"
	msgKept           = "Tracker kept!"
	msgDeleted        = "Tracker deleted!"
	msgUnknownAction  = "Unknown action"
	msgTrackerGone    = "Tracker not found"

	addedTimeLayout = "2006-01-02 15:04:05 UTC"
)

// Commands turns chat commands into service calls and reply texts.
// It knows nothing about Telegram itself.
type Commands struct {
	svc Service
	log *zap.Logger
}

func NewCommands(svc Service, log *zap.Logger) *Commands {
	if log == nil {
		log = zap.NewNop()
	}
	return &Commands{svc: svc, log: log}
}

// Dispatch routes a raw message text, e.g. "/add cj 6000", to its command.
// Unknown commands get the help text.
func (c *Commands) Dispatch(ctx context.Context, subscriberID int64, text string) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return []string{c.Help()}
	}
	cmd := strings.ToLower(fields[0])
	// "/list@ParcelBoxBot" в группах
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	args := fields[1:]

	switch cmd {
	case "/list":
		return c.List(ctx, subscriberID)
	case "/add":
		return c.Add(ctx, subscriberID, args)
	case "/delete":
		return c.Delete(ctx, subscriberID, args)
	default:
		return []string{c.Help()}
	}
}

func (c *Commands) Help() string {
	var b strings.Builder
	b.WriteString("These commands are supported:\n")
	b.WriteString("/help - display this text\n")
	b.WriteString("/list - list trackers\n")
	b.WriteString("/add <company> <tracking_number>\n")
	b.WriteString("/delete <index>")
	if codes := c.svc.Carriers(); len(codes) > 0 {
		b.WriteString("\n\nCompanies: ")
		b.WriteString(strings.Join(codes, ", "))
	}
	return b.String()
}

func (c *Commands) List(ctx context.Context, subscriberID int64) []string {
	views, err := c.svc.ListTrackers(ctx, subscriberID)
	if err != nil {
		c.log.Error("list trackers", zap.Int64("subscriber_id", subscriberID), zap.Error(err))
		return []string{msgInternal}
	}
	if len(views) == 0 {
		return []string{msgEmptyList}
	}

	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, fmt.Sprintf("Index: %d\nCompany: %s\nTracking number: %s\nItem: %s\nAdded time: %s",
			v.Tracker.ID, v.Tracker.Carrier, v.Tracker.TrackingNumber, v.Item,
			v.Tracker.AddedAt.UTC().Format(addedTimeLayout)))
	}
	return out
}

func (c *Commands) Add(ctx context.Context, subscriberID int64, args []string) []string {
	if len(args) != 2 {
		return []string{msgAddUsage}
	}

	t, p, err := c.svc.AddTracker(ctx, subscriberID, args[0], args[1])
	switch {
	case err == nil:
	case errors.Is(err, trackers.ErrInvalidCarrier):
		return []string{msgInvalidCarrier}
	case errors.Is(err, trackers.ErrInvalidTrackingNumber):
		return []string{msgAddUsage}
	case carrier.IsNotFound(err):
		return []string{msgNotFound}
	case errors.Is(err, trackers.ErrFetchFailed):
		return []string{msgFetchFailed}
	default:
		c.log.Error("add tracker", zap.Int64("subscriber_id", subscriberID), zap.Error(err))
		return []string{msgInternal}
	}

	return []string{
		fmt.Sprintf("Added Tracker\nCompany: %s\nTracking number: %s", t.Carrier, t.TrackingNumber),
		fmt.Sprintf("Sender: %s\nReceiver: %s\nItem: %s\nDelivery Status: %s",
			p.Sender, p.Receiver, p.Item, p.DeliveryStatus()),
	}
}

func (c *Commands) Delete(ctx context.Context, subscriberID int64, args []string) []string {
	if len(args) != 1 {
		return []string{msgDeleteUsage}
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return []string{msgDeleteUsage}
	}
	if err := c.svc.DeleteTracker(ctx, subscriberID, id); err != nil {
		c.log.Error("delete tracker", zap.Int64("subscriber_id", subscriberID), zap.Int64("tracker_id", id), zap.Error(err))
		return []string{msgInternal}
	}
	return []string{fmt.Sprintf("Deleted tracker %d", id)}
}

// Callback handles a completion prompt button. The returned text replaces the prompt.
func (c *Commands) Callback(ctx context.Context, subscriberID int64, data string) string {
	a, err := models.DecodeCompletionAction(data)
	if err != nil {
		c.log.Warn("bad callback data", zap.String("data", data), zap.Error(err))
		return msgUnknownAction
	}
	res, err := c.svc.ConfirmCompletion(ctx, subscriberID, a)
	if err != nil {
		c.log.Error("confirm completion", zap.Int64("subscriber_id", subscriberID), zap.Int64("tracker_id", a.TrackerID), zap.Error(err))
		return msgInternal
	}
	// уже удалён другой кнопкой или чужой
	if !res.Applied {
		return msgTrackerGone
	}
	if a.Action == models.ActionKeep {
		return msgKept
	}
	return msgDeleted
}
