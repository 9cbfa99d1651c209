package engine

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/BearBump/ParcelBox/internal/cache"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/notify"
	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Fetcher interface {
	Fetch(ctx context.Context, carrier, trackingNumber string) (*models.Parcel, error)
}

type Store interface {
	GetTracker(ctx context.Context, id int64) (*models.Tracker, error)
	AdvanceLastObserved(ctx context.Context, id int64, t time.Time) (bool, error)
}

// Outcome summarizes one evaluation.
type Outcome struct {
	Notified bool // event notification queued
	Prompted bool // completion prompt queued
	Skipped  bool // fetch failed, nothing touched
	Gone     bool // tracker deleted before apply
}

const maxFetchTimeout = 30 * time.Second

// DefaultFetchTimeout keeps a single fetch well inside one poll interval.
func DefaultFetchTimeout(pollInterval time.Duration) time.Duration {
	if pollInterval <= 0 {
		return maxFetchTimeout
	}
	return min(maxFetchTimeout, pollInterval/2)
}

// LockKey is the lock shared by everything that mutates one tracker.
func LockKey(trackerID int64) string {
	return "tracker:" + strconv.FormatInt(trackerID, 10)
}

type Engine struct {
	fetcher Fetcher
	store   Store
	sink    notify.Sink
	locker  cache.Locker
	log     *zap.Logger

	snapshots   cache.BytesCache
	snapshotTTL time.Duration

	fetchTimeout time.Duration
}

func New(fetcher Fetcher, store Store, sink notify.Sink, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		fetcher:      fetcher,
		store:        store,
		sink:         sink,
		locker:       NewLocalLocker(),
		log:          log,
		fetchTimeout: maxFetchTimeout,
	}
}

func (e *Engine) WithLocker(l cache.Locker) *Engine {
	if l != nil {
		e.locker = l
	}
	return e
}

func (e *Engine) WithSnapshotCache(c cache.BytesCache, ttl time.Duration) *Engine {
	e.snapshots = c
	e.snapshotTTL = ttl
	return e
}

func (e *Engine) WithFetchTimeout(d time.Duration) *Engine {
	if d > 0 {
		e.fetchTimeout = d
	}
	return e
}

// Evaluate fetches the tracker's parcel and applies it: a strictly newer last event
// advances the stored watermark and notifies once, a completed parcel that is not
// retained prompts the subscriber. A failed fetch leaves everything untouched.
func (e *Engine) Evaluate(ctx context.Context, t *models.Tracker) (Outcome, error) {
	log := e.log.With(
		zap.Int64("tracker_id", t.ID),
		zap.Int64("subscriber_id", t.SubscriberID),
		zap.String("carrier", t.Carrier),
	)

	fctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	parcel, err := e.fetcher.Fetch(fctx, t.Carrier, t.TrackingNumber)
	cancel()
	if err != nil {
		log.Warn("fetch failed, skipping tracker", zap.Error(err))
		return Outcome{Skipped: true}, errors.Wrap(err, "fetch")
	}

	e.cacheSnapshot(ctx, t.ID, parcel, log)

	unlock, err := e.locker.Lock(ctx, LockKey(t.ID))
	if err != nil {
		return Outcome{Skipped: true}, errors.Wrap(err, "lock tracker")
	}

	// apply is finished even if ctx is cancelled meanwhile
	actx := context.WithoutCancel(ctx)
	out, queue, err := e.apply(actx, t.ID, parcel)
	unlock()
	if err != nil {
		return out, err
	}

	for _, n := range queue {
		if err := e.sink.Notify(actx, n); err != nil {
			log.Error("deliver notification", zap.String("kind", string(n.Kind)), zap.Error(err))
		}
	}
	return out, nil
}

func (e *Engine) apply(ctx context.Context, id int64, parcel *models.Parcel) (Outcome, []notify.Notification, error) {
	var (
		out   Outcome
		queue []notify.Notification
	)

	cur, err := e.store.GetTracker(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		out.Gone = true
		return out, nil, nil
	}
	if err != nil {
		return out, nil, errors.Wrap(err, "reload tracker")
	}

	if last := parcel.LastEventTime(); last.After(cur.LastObservedEventTime) {
		advanced, err := e.store.AdvanceLastObserved(ctx, cur.ID, last)
		if err != nil {
			return out, nil, errors.Wrap(err, "advance last observed")
		}
		if ev, ok := parcel.LastEvent(); advanced && ok {
			queue = append(queue, notify.NewEvent(cur, ev))
			out.Notified = true
		}
	}

	if models.NeedsCompletionPrompt(cur, parcel.DeliveryStatus()) {
		queue = append(queue, notify.NewCompletionPrompt(cur))
		out.Prompted = true
	}

	return out, queue, nil
}

func (e *Engine) cacheSnapshot(ctx context.Context, id int64, p *models.Parcel, log *zap.Logger) {
	if e.snapshots == nil || e.snapshotTTL <= 0 {
		return
	}
	b, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := e.snapshots.Set(ctx, cache.SnapshotKey(id), b, e.snapshotTTL); err != nil {
		log.Debug("cache snapshot", zap.Error(err))
	}
}
