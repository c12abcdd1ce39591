// Package main запускает консольного наблюдателя лент заказов.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/delivery-system/internal/config"
	"github.com/mmeshcher/delivery-system/internal/geocode"
	"github.com/mmeshcher/delivery-system/internal/model"
	"github.com/mmeshcher/delivery-system/internal/poller"
	"github.com/mmeshcher/delivery-system/internal/repository"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	// Собственные флаги регистрируются до config.Parse, который вызывает flag.Parse.
	mode := flag.String("mode", "driver", "watch mode: driver or restaurant")
	actorFlag := flag.String("actor", "", "actor ID to watch for")

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	actor, err := uuid.Parse(*actorFlag)
	if err != nil {
		sugar.Fatalw("actor ID must be a valid UUID", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "driver":
		geocoder := geocode.NewClient(cfg.GeocoderAddress)
		w := poller.NewDriverWatcher(repo, geocoder, actor, cfg.PollInterval, logger, func(u poller.DriverUpdate) {
			if u.Order == nil {
				logger.Info("delivery finished")
				return
			}

			fields := []zap.Field{
				zap.String("order", u.Order.ID.String()),
				zap.String("status", string(u.Order.Status)),
			}
			if u.Target != nil {
				fields = append(fields,
					zap.Float64("target_lat", u.Target.Lat),
					zap.Float64("target_lng", u.Target.Lng),
				)
			}
			logger.Info("delivery update", fields...)
		})

		sugar.Infow("watching active delivery", "driver", actor, "interval", cfg.PollInterval)
		w.Run(ctx)

	case "restaurant":
		w := poller.NewRestaurantWatcher(repo, actor, cfg.PollInterval, logger,
			func(o model.Order) {
				logger.Info("new order",
					zap.String("order", o.ID.String()),
					zap.String("status", string(o.Status)),
				)
			},
			func(o model.Order, previous model.OrderStatus) {
				logger.Info("order status changed",
					zap.String("order", o.ID.String()),
					zap.String("from", string(previous)),
					zap.String("to", string(o.Status)),
				)
			},
		)

		sugar.Infow("watching restaurant orders", "restaurant", actor, "interval", cfg.PollInterval)
		w.Run(ctx)

	default:
		sugar.Fatalw("unknown watch mode", "mode", *mode)
	}
}
