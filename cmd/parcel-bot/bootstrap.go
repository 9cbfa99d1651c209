package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ParcelBox/config"
	"github.com/BearBump/ParcelBox/internal/bootstrap"
	"github.com/BearBump/ParcelBox/internal/broker/kafka"
	"github.com/BearBump/ParcelBox/internal/cache/rediscache"
	"github.com/BearBump/ParcelBox/internal/notify"
	"github.com/BearBump/ParcelBox/internal/services/trackers"
	"github.com/BearBump/ParcelBox/internal/transport/telegram"
	"go.uber.org/zap"
)

const (
	defaultTopic         = "parcel.notifications"
	defaultConsumerGroup = "parcel-bot"
)

type parcelBotApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     parcelBotOpts
	svc      *trackers.Service
	bot      chatBot
	consumer kafkaConsumer
	sink     notify.Sink
	log      *zap.Logger
	closers  []func()
}

func mustBootstrapParcelBot(cfg *config.Config, log *zap.Logger) *parcelBotApp {
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	httpAddr := cfg.ParcelBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.ParcelBox.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = defaultConsumerGroup
	}
	topic := cfg.Kafka.NotificationsTopicName
	if topic == "" {
		topic = defaultTopic
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app := &parcelBotApp{
		ctx:    ctx,
		cancel: cancel,
		log:    log,
		opts: parcelBotOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
	}

	st, err := bootstrap.OpenStore(ctx, cfg.Database, 60*time.Second, log)
	if err != nil {
		app.Close()
		log.Fatal("open store", zap.Error(err))
	}
	app.closers = append(app.closers, st.Close)

	registry := bootstrap.NewRegistry(cfg.Carriers, log)

	lk, closeLock := bootstrap.NewLocker(cfg.Redis, bootstrap.Seconds(cfg.ParcelBox.LockTTLSeconds, 30*time.Second), log)
	app.closers = append(app.closers, closeLock)

	svc := trackers.New(st, registry, lk, log)
	if cfg.Redis.Enabled() {
		rc := rediscache.New(cfg.Redis.Addr())
		app.closers = append(app.closers, func() { _ = rc.Close() })
		svc = svc.WithSnapshotCache(rc, bootstrap.Seconds(cfg.ParcelBox.SnapshotTTLSeconds, 10*time.Minute))
	}
	if cfg.ParcelBox.WorkerFetchTimeoutSeconds > 0 {
		svc = svc.WithFetchTimeout(time.Duration(cfg.ParcelBox.WorkerFetchTimeoutSeconds) * time.Second)
	}
	app.svc = svc

	if cfg.Telegram.Token != "" {
		b, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: bootstrap.Seconds(cfg.Telegram.PollTimeoutSeconds, 10*time.Second),
		}, telegram.NewCommands(svc, log.Named("telegram")), log.Named("telegram"))
		if err != nil {
			app.Close()
			log.Fatal("telegram bot", zap.Error(err))
		}
		app.bot = b
		app.sink = telegram.NewSink(b.Sender(), cfg.Telegram.RatePerSecond, log.Named("telegram"))
	} else {
		log.Warn("telegram token is not set, running HTTP API only")
	}

	if cfg.Kafka.Enabled() && app.sink != nil {
		c := kafka.NewConsumer(cfg.Kafka.Brokers(), topic, consumerGroup)
		app.closers = append(app.closers, func() { _ = c.Close() })
		app.consumer = c
	}

	return app
}

func (a *parcelBotApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *parcelBotApp) Run() error {
	return runParcelBot(a.ctx, a.opts, a.svc, a.bot, a.consumer, a.sink, a.log)
}
