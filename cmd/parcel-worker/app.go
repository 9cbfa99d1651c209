package main

import (
	"context"
	"time"

	"github.com/BearBump/ParcelBox/config"
	"github.com/BearBump/ParcelBox/internal/bootstrap"
	"github.com/BearBump/ParcelBox/internal/broker/kafka"
	"github.com/BearBump/ParcelBox/internal/cache"
	"github.com/BearBump/ParcelBox/internal/cache/rediscache"
	"github.com/BearBump/ParcelBox/internal/notify"
	"github.com/BearBump/ParcelBox/internal/notify/kafkasink"
	"github.com/BearBump/ParcelBox/internal/services/engine"
	"github.com/BearBump/ParcelBox/internal/services/poller"
	"github.com/BearBump/ParcelBox/internal/transport/telegram"
	"go.uber.org/zap"
)

const defaultTopic = "parcel.notifications"

type workerStore interface {
	poller.Repository
	engine.Store
	Ping(ctx context.Context) error
}

// redisDeps are the shared-state pieces; all nil except locker when Redis is off.
type redisDeps struct {
	snapshots cache.BytesCache
	locker    cache.Locker
	rl        poller.RateLimiter
	close     func()
}

type workerFactories struct {
	newStorage func(ctx context.Context, cfg *config.Config, log *zap.Logger) (st workerStore, closeFn func(), err error)
	newSink    func(cfg *config.Config, log *zap.Logger) (notify.Sink, func(), error)
	newRedis   func(cfg *config.Config, log *zap.Logger) redisDeps
	newFetcher func(cfg *config.Config, log *zap.Logger) engine.Fetcher
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(ctx context.Context, cfg *config.Config, log *zap.Logger) (workerStore, func(), error) {
			st, err := bootstrap.OpenStore(ctx, cfg.Database, 60*time.Second, log)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newSink: newNotificationSink,
		newRedis: func(cfg *config.Config, log *zap.Logger) redisDeps {
			lk, closeLock := bootstrap.NewLocker(cfg.Redis, bootstrap.Seconds(cfg.ParcelBox.LockTTLSeconds, 30*time.Second), log)
			if !cfg.Redis.Enabled() {
				return redisDeps{locker: lk, close: closeLock}
			}
			addr := cfg.Redis.Addr()
			rc := rediscache.New(addr)
			rl := rediscache.NewRateLimiter(addr)
			return redisDeps{
				snapshots: rc,
				locker:    lk,
				rl:        rl,
				close: func() {
					_ = rc.Close()
					closeLock()
					_ = rl.Close()
				},
			}
		},
		newFetcher: func(cfg *config.Config, log *zap.Logger) engine.Fetcher {
			return bootstrap.NewRegistry(cfg.Carriers, log)
		},
	}
}

// newNotificationSink prefers Kafka (the bot process delivers), then direct Telegram,
// then a log-only sink for local runs.
func newNotificationSink(cfg *config.Config, log *zap.Logger) (notify.Sink, func(), error) {
	switch {
	case cfg.Kafka.Enabled():
		topic := cfg.Kafka.NotificationsTopicName
		if topic == "" {
			topic = defaultTopic
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers())
		log.Info("notifications go to kafka", zap.String("topic", topic))
		return kafkasink.New(producer, topic), func() { _ = producer.Close() }, nil
	case cfg.Telegram.Token != "":
		bot, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token}, nil, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("notifications go to telegram directly")
		return telegram.NewSink(bot.Sender(), cfg.Telegram.RatePerSecond, log), func() {}, nil
	default:
		log.Warn("no kafka or telegram configured, notifications are only logged")
		return notify.SinkFunc(func(ctx context.Context, n notify.Notification) error {
			log.Info("notification",
				zap.Int64("subscriber_id", n.SubscriberID),
				zap.Int64("tracker_id", n.TrackerID),
				zap.String("kind", string(n.Kind)),
				zap.String("text", n.Text))
			return nil
		}), func() {}, nil
	}
}

// workerFetchTimeout applies the configured override, capped at half the poll interval.
func workerFetchTimeout(overrideSeconds int, pollInterval time.Duration, log *zap.Logger) time.Duration {
	if overrideSeconds <= 0 {
		return engine.DefaultFetchTimeout(pollInterval)
	}
	d := time.Duration(overrideSeconds) * time.Second
	if limit := pollInterval / 2; limit > 0 && d > limit {
		log.Warn("worker_fetch_timeout_seconds exceeds half the poll interval, capped",
			zap.Duration("configured", d), zap.Duration("capped", limit))
		return limit
	}
	return d
}

// RunWorker wires the engine and the poller and blocks until ctx is done.
// The worker HTTP server is started when httpOpts.httpAddr is set.
func RunWorker(ctx context.Context, cfg *config.Config, f workerFactories, httpOpts workerHTTPOpts, log *zap.Logger) error {
	pollInterval := bootstrap.Seconds(cfg.ParcelBox.WorkerPollIntervalSeconds, 60*time.Second)
	concurrency := cfg.ParcelBox.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	rlPerMin := int64(cfg.ParcelBox.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}
	fetchTimeout := workerFetchTimeout(cfg.ParcelBox.WorkerFetchTimeoutSeconds, pollInterval, log)

	st, closeStore, err := f.newStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	sink, closeSink, err := f.newSink(cfg, log)
	if err != nil {
		return err
	}
	defer closeSink()

	rd := f.newRedis(cfg, log)
	if rd.close != nil {
		defer rd.close()
	}

	eng := engine.New(f.newFetcher(cfg, log), st, sink, log).
		WithLocker(rd.locker).
		WithFetchTimeout(fetchTimeout)
	if rd.snapshots != nil {
		eng = eng.WithSnapshotCache(rd.snapshots, bootstrap.Seconds(cfg.ParcelBox.SnapshotTTLSeconds, 10*time.Minute))
	}

	p := poller.New(st, eng, rd.rl, log).
		WithSettings(pollInterval, concurrency, rlPerMin).
		WithCarrierRateLimits(cfg.ParcelBox.WorkerCarrierRateLimits)

	if httpOpts.httpAddr != "" {
		httpOpts.poller = p
		httpOpts.cfg = cfg
		httpOpts.ready = st.Ping
		go func() {
			if err := runWorkerHTTPServer(ctx, httpOpts); err != nil {
				log.Error("worker http server", zap.Error(err))
			}
		}()
	}

	log.Info("worker started",
		zap.Duration("poll_interval", pollInterval),
		zap.Int("concurrency", concurrency),
		zap.Duration("fetch_timeout", fetchTimeout))
	return p.Run(ctx)
}
