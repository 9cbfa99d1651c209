package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/ParcelBox/config"
	"github.com/BearBump/ParcelBox/internal/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	if err := logger.Init(cfg.Log.Environment, cfg.Log.Level); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Get().Named("parcel-worker")

	httpAddr := cfg.ParcelBox.WorkerHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8082"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = RunWorker(ctx, cfg, defaultWorkerFactories(), workerHTTPOpts{
		httpAddr:    httpAddr,
		swaggerPath: os.Getenv("workerSwaggerPath"),
	}, log)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("worker stopped", zap.Error(err))
	}
}
