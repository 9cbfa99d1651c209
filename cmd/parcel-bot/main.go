package main

import (
	"context"
	"fmt"

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
	log := logger.Get().Named("parcel-bot")

	app := mustBootstrapParcelBot(cfg, log)
	defer app.Close()

	if err := app.Run(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("parcel-bot stopped", zap.Error(err))
	}
}
