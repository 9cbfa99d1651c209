package trackers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/BearBump/ParcelBox/internal/cache"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/services/engine"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrInvalidCarrier        = errors.New("invalid carrier")
	ErrInvalidTrackingNumber = errors.New("tracking number is required")
	ErrFetchFailed           = errors.New("fetch failed")
)

type Store interface {
	CreateTracker(ctx context.Context, in models.TrackerCreateInput) (*models.Tracker, error)
	ListTrackersBySubscriber(ctx context.Context, subscriberID int64) ([]*models.Tracker, error)
	SetRetain(ctx context.Context, id, subscriberID int64, retain bool) (bool, error)
	DeleteTracker(ctx context.Context, id, subscriberID int64) (bool, error)
}

type Registry interface {
	Resolve(name string) (string, error)
	Fetch(ctx context.Context, carrier, trackingNumber string) (*models.Parcel, error)
}

// TrackerView is a tracker as shown in a subscriber's list.
type TrackerView struct {
	Tracker *models.Tracker `json:"tracker"`
	Item    string          `json:"item,omitempty"`
}

// Result reports what ConfirmCompletion did. Applied is false for a foreign or missing tracker.
type Result struct {
	TrackerID int64             `json:"tracker_id"`
	Action    models.ActionKind `json:"action"`
	Applied   bool              `json:"applied"`
}

type Service struct {
	store    Store
	registry Registry
	locker   cache.Locker
	log      *zap.Logger

	snapshots    cache.BytesCache
	snapshotTTL  time.Duration
	fetchTimeout time.Duration
}

func New(store Store, registry Registry, locker cache.Locker, log *zap.Logger) *Service {
	if locker == nil {
		locker = engine.NewLocalLocker()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:        store,
		registry:     registry,
		locker:       locker,
		log:          log,
		fetchTimeout: 30 * time.Second,
	}
}

func (s *Service) WithSnapshotCache(c cache.BytesCache, ttl time.Duration) *Service {
	s.snapshots = c
	s.snapshotTTL = ttl
	return s
}

func (s *Service) WithFetchTimeout(d time.Duration) *Service {
	if d > 0 {
		s.fetchTimeout = d
	}
	return s
}

// AddTracker registers a tracking number for a subscriber. The parcel is fetched first,
// so a number the carrier cannot serve is never stored, and its current last event
// becomes the watermark: only later events will notify.
func (s *Service) AddTracker(ctx context.Context, subscriberID int64, carrierName, trackingNumber string) (*models.Tracker, *models.Parcel, error) {
	carrierName = strings.TrimSpace(carrierName)
	trackingNumber = strings.TrimSpace(trackingNumber)
	if carrierName == "" {
		return nil, nil, ErrInvalidCarrier
	}
	if trackingNumber == "" {
		return nil, nil, ErrInvalidTrackingNumber
	}

	code, err := s.registry.Resolve(carrierName)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrInvalidCarrier, "%q", carrierName)
	}

	fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	parcel, err := s.registry.Fetch(fctx, code, trackingNumber)
	cancel()
	if err != nil {
		s.log.Warn("add tracker: fetch failed",
			zap.Int64("subscriber_id", subscriberID), zap.String("carrier", code), zap.Error(err))
		return nil, nil, &FetchError{Err: err}
	}

	t, err := s.store.CreateTracker(ctx, models.TrackerCreateInput{
		SubscriberID:          subscriberID,
		Carrier:               code,
		TrackingNumber:        trackingNumber,
		LastObservedEventTime: parcel.LastEventTime(),
	})
	if err != nil {
		return nil, nil, err
	}
	s.cacheSnapshot(ctx, t.ID, parcel)

	s.log.Info("tracker added",
		zap.Int64("tracker_id", t.ID), zap.Int64("subscriber_id", subscriberID), zap.String("carrier", code))
	return t, parcel, nil
}

// DeleteTracker removes the subscriber's tracker. A foreign or missing id is a no-op.
func (s *Service) DeleteTracker(ctx context.Context, subscriberID, id int64) error {
	unlock, err := s.locker.Lock(ctx, engine.LockKey(id))
	if err != nil {
		return errors.Wrap(err, "lock tracker")
	}
	defer unlock()

	deleted, err := s.store.DeleteTracker(context.WithoutCancel(ctx), id, subscriberID)
	if err != nil {
		return err
	}
	if deleted {
		s.log.Info("tracker deleted", zap.Int64("tracker_id", id), zap.Int64("subscriber_id", subscriberID))
	}
	return nil
}

// ListTrackers returns the subscriber's trackers in creation order. Item names come from
// the snapshot cache, falling back to a live fetch; a failed fetch leaves Item empty.
func (s *Service) ListTrackers(ctx context.Context, subscriberID int64) ([]TrackerView, error) {
	ts, err := s.store.ListTrackersBySubscriber(ctx, subscriberID)
	if err != nil {
		return nil, err
	}

	out := make([]TrackerView, 0, len(ts))
	for _, t := range ts {
		item, ok := s.cachedItem(ctx, t.ID)
		if !ok {
			item = s.liveItem(ctx, t)
		}
		out = append(out, TrackerView{Tracker: t, Item: item})
	}
	return out, nil
}

// ConfirmCompletion applies the subscriber's answer to a completion prompt.
func (s *Service) ConfirmCompletion(ctx context.Context, subscriberID int64, a models.CompletionAction) (Result, error) {
	res := Result{TrackerID: a.TrackerID, Action: a.Action}
	if a.TrackerID <= 0 {
		return res, errors.New("tracker id is required")
	}

	unlock, err := s.locker.Lock(ctx, engine.LockKey(a.TrackerID))
	if err != nil {
		return res, errors.Wrap(err, "lock tracker")
	}
	defer unlock()

	actx := context.WithoutCancel(ctx)
	switch a.Action {
	case models.ActionKeep:
		res.Applied, err = s.store.SetRetain(actx, a.TrackerID, subscriberID, true)
	case models.ActionDelete:
		res.Applied, err = s.store.DeleteTracker(actx, a.TrackerID, subscriberID)
	default:
		return res, errors.Errorf("unknown completion action %q", a.Action)
	}
	if err != nil {
		return res, err
	}

	s.log.Info("completion confirmed",
		zap.Int64("tracker_id", a.TrackerID),
		zap.Int64("subscriber_id", subscriberID),
		zap.String("action", string(a.Action)),
		zap.Bool("applied", res.Applied),
	)
	return res, nil
}

// Carriers lists the registered carrier codes, for help texts.
func (s *Service) Carriers() []string {
	if r, ok := s.registry.(interface{ Codes() []string }); ok {
		return r.Codes()
	}
	return nil
}

func (s *Service) cachedItem(ctx context.Context, id int64) (string, bool) {
	if s.snapshots == nil || s.snapshotTTL <= 0 {
		return "", false
	}
	b, ok, err := s.snapshots.Get(ctx, cache.SnapshotKey(id))
	if err != nil || !ok {
		return "", false
	}
	var p models.Parcel
	if json.Unmarshal(b, &p) != nil {
		return "", false
	}
	return p.Item, true
}

func (s *Service) liveItem(ctx context.Context, t *models.Tracker) string {
	fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	p, err := s.registry.Fetch(fctx, t.Carrier, t.TrackingNumber)
	if err != nil {
		s.log.Debug("list: live fetch failed", zap.Int64("tracker_id", t.ID), zap.Error(err))
		return ""
	}
	s.cacheSnapshot(ctx, t.ID, p)
	return p.Item
}

func (s *Service) cacheSnapshot(ctx context.Context, id int64, p *models.Parcel) {
	if s.snapshots == nil || s.snapshotTTL <= 0 {
		return
	}
	b, err := json.Marshal(p)
	if err != nil {
		return
	}
	_ = s.snapshots.Set(ctx, cache.SnapshotKey(id), b, s.snapshotTTL)
}

// FetchError wraps the carrier failure behind ErrFetchFailed.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return ErrFetchFailed.Error() + ": " + e.Err.Error() }

func (e *FetchError) Unwrap() []error { return []error{ErrFetchFailed, e.Err} }
