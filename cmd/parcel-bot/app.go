package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	trackersapi "github.com/BearBump/ParcelBox/internal/api/trackers_api"
	"github.com/BearBump/ParcelBox/internal/broker/kafka"
	"github.com/BearBump/ParcelBox/internal/notify"
	"github.com/BearBump/ParcelBox/internal/notify/kafkasink"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

type parcelBotOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler kafka.Handler) error
}

type chatBot interface {
	Run(ctx context.Context) error
}

// runParcelBot serves the HTTP API and, when wired, the chat bot and the
// notification consumer. bot, consumer and sink may be nil.
func runParcelBot(ctx context.Context, opts parcelBotOpts, svc trackersapi.Service, bot chatBot, consumer kafkaConsumer, sink notify.Sink, log *zap.Logger) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, lis, trackersapi.New(svc, log), opts.swaggerPath, log)
	}()

	if bot != nil {
		go func() {
			if err := bot.Run(ctx); err != nil {
				log.Error("telegram bot stopped", zap.Error(err))
			}
		}()
	}

	if consumer != nil && sink != nil {
		go func() {
			log.Info("kafka consumer started", zap.String("topic", opts.topic), zap.String("group", opts.consumerGroup))
			if err := consumer.Consume(ctx, deliverNotification(ctx, sink, log)); err != nil {
				log.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		if err == nil {
			return ctx.Err()
		}
		return err
	}
}

// deliverNotification hands consumed notifications to sink. Broken messages and
// failed sends are logged and committed, so one of them never blocks the topic.
func deliverNotification(ctx context.Context, sink notify.Sink, log *zap.Logger) kafka.Handler {
	return func(_ []byte, value []byte) error {
		n, err := kafkasink.Decode(value)
		if err != nil {
			log.Warn("skip malformed notification", zap.Error(err))
			return nil
		}
		if err := sink.Notify(ctx, n); err != nil {
			log.Error("deliver notification",
				zap.String("id", n.ID), zap.Int64("subscriber_id", n.SubscriberID), zap.Error(err))
		}
		return nil
	}
}

func runHTTPServer(ctx context.Context, lis net.Listener, api *trackersapi.TrackersAPI, swaggerPath string, log *zap.Logger) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))
	api.Register(r)

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("HTTP API listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
