// Package bootstrap builds the components both processes share from config.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/ParcelBox/config"
	"github.com/BearBump/ParcelBox/internal/cache"
	"github.com/BearBump/ParcelBox/internal/cache/rediscache"
	"github.com/BearBump/ParcelBox/internal/integrations/carrier"
	"github.com/BearBump/ParcelBox/internal/integrations/carrier/cjlogistics"
	"github.com/BearBump/ParcelBox/internal/integrations/carrier/epost"
	"github.com/BearBump/ParcelBox/internal/integrations/carrier/fake"
	"github.com/BearBump/ParcelBox/internal/integrations/carrier/track24http"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/services/engine"
	"github.com/BearBump/ParcelBox/internal/storage/pgtracking"
	"github.com/BearBump/ParcelBox/internal/storage/sqlitetracking"
	"go.uber.org/zap"
)

// Store is what pgtracking and sqlitetracking both provide.
type Store interface {
	CreateTracker(ctx context.Context, in models.TrackerCreateInput) (*models.Tracker, error)
	GetTracker(ctx context.Context, id int64) (*models.Tracker, error)
	ListTrackersBySubscriber(ctx context.Context, subscriberID int64) ([]*models.Tracker, error)
	ListAllTrackers(ctx context.Context) ([]*models.Tracker, error)
	AdvanceLastObserved(ctx context.Context, id int64, t time.Time) (bool, error)
	SetRetain(ctx context.Context, id, subscriberID int64, retain bool) (bool, error)
	DeleteTracker(ctx context.Context, id, subscriberID int64) (bool, error)
	Ping(ctx context.Context) error
	Close()
}

const (
	DriverPostgres = "pg"
	DriverSQLite   = "sqlite"

	defaultSQLitePath = "data/parcelbox.db"
)

// OpenStore opens the configured tracker store. Postgres is retried until wait
// elapses, since it usually starts together with the app.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, wait time.Duration, log *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case DriverSQLite:
		path := cfg.Path
		if path == "" {
			path = defaultSQLitePath
		}
		busy := time.Duration(cfg.BusyTimeoutSeconds) * time.Second
		st, err := sqlitetracking.New(ctx, path, busy)
		if err != nil {
			return nil, err
		}
		log.Info("sqlite store opened", zap.String("path", path))
		return st, nil
	case "", DriverPostgres:
		st, err := openPostgresWithRetry(ctx, cfg.ConnString(), wait, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func openPostgresWithRetry(ctx context.Context, connString string, wait time.Duration, log *zap.Logger) (*pgtracking.Storage, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for {
		st, err := pgtracking.New(ctx, connString)
		if err == nil {
			log.Info("postgres store opened")
			return st, nil
		}
		lastErr = err
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("postgres is not ready after %s: %w", wait, lastErr)
		}
		log.Warn("postgres not ready, retrying", zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// NewRegistry registers every carrier adapter the config enables.
// CJ and ePost are always on; Track24 needs a base URL, fake needs enable_fake.
func NewRegistry(cfg config.CarriersConfig, log *zap.Logger) *carrier.Registry {
	httpc := carrier.NewHTTPClient(time.Duration(cfg.TimeoutSeconds)*time.Second, log)

	r := carrier.NewRegistry().
		Register(cjlogistics.Code, cjlogistics.New(cfg.CJBaseURL, httpc), cjlogistics.Aliases...).
		Register(epost.Code, epost.New(cfg.EPostBaseURL, httpc), epost.Aliases...)

	if cfg.Track24BaseURL != "" {
		r.Register(track24http.Code,
			track24http.New(cfg.Track24BaseURL, cfg.Track24APIKey, cfg.Track24Domain, httpc),
			track24http.Aliases...)
	}
	if cfg.EnableFake {
		r.Register(fake.Code, fake.New())
	}
	log.Info("carriers registered", zap.Strings("codes", r.Codes()))
	return r
}

// NewLocker returns the per-tracker lock: Redis SET NX PX when Redis is configured,
// otherwise a lock local to this process. The local lock does not serialize the bot
// against the worker, so a shared store without Redis is warned about.
func NewLocker(cfg config.RedisConfig, ttl time.Duration, log *zap.Logger) (cache.Locker, func()) {
	if !cfg.Enabled() {
		log.Warn("redis is not configured, tracker lock is process-local: " +
			"bot and worker sharing one store may send a stale completion prompt")
		return engine.NewLocalLocker(), func() {}
	}
	lk := rediscache.NewLocker(cfg.Addr(), ttl)
	return lk, func() { _ = lk.Close() }
}

// Seconds converts a config value to a duration, falling back to def when unset.
func Seconds(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Second
}
