package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsetrack/conditioning/internal/api"
	"github.com/pulsetrack/conditioning/internal/cachestore"
	"github.com/pulsetrack/conditioning/internal/conditioning"
	"github.com/pulsetrack/conditioning/internal/events"
	"github.com/pulsetrack/conditioning/pkg/cache"
	"github.com/pulsetrack/conditioning/pkg/clients/storage"
	"github.com/pulsetrack/conditioning/pkg/config"
	"github.com/pulsetrack/conditioning/pkg/logger"
	"github.com/pulsetrack/conditioning/pkg/store"
)

var environment = flag.String("environment", os.Getenv("ENVIRONMENT"), "configuration overlay to load")

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Format)
	log := logger.Logger(context.Background())

	backend, err := cache.New(&cfg.Cache)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize cache backend")
	}
	defer func() {
		if err := backend.Disconnect(); err != nil {
			log.WithError(err).Warn("cache backend disconnect failed")
		}
	}()

	st := store.New(backend)
	logs := store.LogRepository(st.Logs)
	if cfg.Storage.Enabled {
		logs = storage.NewClient(storage.Config{
			BaseURL:    cfg.Storage.BaseURL,
			Timeout:    cfg.Storage.Timeout,
			RetryCount: cfg.Storage.RetryCount,
		})
	}

	entries := cachestore.New()
	svc := conditioning.NewService(logs, st.Users, entries, conditioning.CompensationPolicy{
		Attempts: cfg.Compensation.Attempts,
		Delay:    cfg.Compensation.Delay,
	})

	dispatcher := events.NewDispatcher()
	events.NewCacheHandlers(entries, logs).Register(dispatcher)
	dispatcher.Watch(logs.Changes())
	dispatcher.Watch(st.Users.Changes())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go dispatcher.Run(ctx)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(svc),
	}
	go func() {
		log.WithField("port", cfg.Server.Port).Info("conditioning server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
