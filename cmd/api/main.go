package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"checkout-engine/internal/config"
	"checkout-engine/internal/handler"
	"checkout-engine/internal/infra/db"
	"checkout-engine/internal/infra/messaging"
	infraRepo "checkout-engine/internal/infra/repository"
	"checkout-engine/internal/metrics"
	"checkout-engine/internal/server"
	"checkout-engine/internal/usecase"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	//.envは無くてもよい（本番は環境変数）
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	//DB接続
	gormDB, err := db.Connect(cfg.DB)
	if err != nil {
		return err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := db.Migrate(gormDB); err != nil {
		return err
	}

	//Repository（GORM実装）
	txm := infraRepo.NewTxManagerGorm(gormDB)
	repos := infraRepo.NewRepos(gormDB)

	//metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	//Usecase
	checkout := usecase.NewCheckoutCoordinator(txm, repos, usecase.NewOrderWriter(cfg.Kafka.Topic),
		usecase.WithLogger(logger),
		usecase.WithMetrics(metrics.NewCheckoutMetrics(reg)),
	)
	orderUC := usecase.NewOrderUsecase(txm)
	cartUC := usecase.NewCartUsecase(repos.Carts(), repos.Products())
	inventoryUC := usecase.NewInventoryUsecase(txm)

	e := server.New(server.Deps{
		Config:    cfg,
		Logger:    logger,
		Gatherer:  reg,
		Metrics:   metrics.NewServerMetrics(reg),
		Health:    handler.NewHealthHandler(sqlDB),
		Orders:    handler.NewOrderHandler(checkout, orderUC),
		Carts:     handler.NewCartHandler(cartUC),
		Inventory: handler.NewAdminInventoryHandler(inventoryUC),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//outbox relay
	relayDone := make(chan struct{})
	if cfg.Kafka.Enabled() {
		writer := messaging.NewKafkaWriter(cfg.Kafka.Brokers)
		relay := messaging.NewOutboxRelay(repos.Outbox(), writer, cfg.Kafka.PollInterval,
			logger.With(slog.String("component", "outbox_relay")), metrics.NewRelayMetrics(reg))
		go func() {
			defer close(relayDone)
			defer writer.Close()
			_ = relay.Run(ctx)
		}()
	} else {
		logger.Warn("KAFKA_BROKERS is empty; order events stay in outbox_events")
		close(relayDone)
	}

	addr := ":" + cfg.Port
	logger.Info("server starting", slog.String("addr", addr))
	err = server.Start(ctx, e, addr)

	stop()
	<-relayDone
	return err
}

func newLogger(level string) *slog.Logger {
	var lv slog.Level
	//config.Loadで検証済み
	_ = lv.UnmarshalText([]byte(level))
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lv}))
}
