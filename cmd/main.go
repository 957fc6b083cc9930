package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JhonesBR/go-ome/internal/api"
	"github.com/JhonesBR/go-ome/internal/config"
	"github.com/JhonesBR/go-ome/internal/db"
	"github.com/JhonesBR/go-ome/internal/engine"
	"github.com/JhonesBR/go-ome/internal/events"
	"github.com/JhonesBR/go-ome/internal/logger"
	"github.com/JhonesBR/go-ome/internal/metrics"
	"github.com/JhonesBR/go-ome/internal/store"
	"github.com/JhonesBR/go-ome/internal/store/memory"
	"github.com/JhonesBR/go-ome/internal/store/postgres"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer l.Sync()

	if err := run(cfg, l); err != nil {
		l.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, l *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeStore, err := openStore(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	publisher := events.Nop()
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		l.Info("publishing fills", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	defer publisher.Close()

	controller := engine.NewController(backend,
		engine.WithLogger(l.Named("engine")),
		engine.WithMetrics(metrics.New(reg)),
		engine.WithPublisher(publisher),
		engine.WithRetryPolicy(cfg.Retry))

	// Initialize a new Fiber app with the API routes
	app := api.NewApp(api.Deps{
		Backend:    backend,
		Controller: controller,
		Logger:     l.Named("http"),
		Gatherer:   reg,
	})

	go func() {
		<-ctx.Done()
		l.Info("shutting down")
		if err := app.Shutdown(); err != nil {
			l.Error("shutdown failed", zap.Error(err))
		}
	}()

	l.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store))
	return app.Listen(cfg.HTTPAddr, fiber.ListenConfig{DisableStartupMessage: true})
}

func openStore(ctx context.Context, cfg config.Config, l *zap.Logger) (store.Backend, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		s := memory.New()
		if cfg.SeedDemo {
			if err := memory.SeedDemo(s); err != nil {
				return nil, nil, fmt.Errorf("seed demo data: %w", err)
			}
			l.Info("seeded demo markets and users")
		}
		return s, func() {}, nil

	case config.StorePostgres:
		// DB connection
		pool, err := db.NewConnection(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Migrate {
			if err := db.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return postgres.New(pool), pool.Close, nil
	}
	return nil, nil, errors.New("unknown store " + cfg.Store)
}
