package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hookbin/hookbin/internal/cache"
	"github.com/hookbin/hookbin/internal/config"
	"github.com/hookbin/hookbin/internal/handler"
	"github.com/hookbin/hookbin/internal/hub"
	"github.com/hookbin/hookbin/internal/logger"
	"github.com/hookbin/hookbin/internal/service"
	"github.com/hookbin/hookbin/internal/store"
	"github.com/hookbin/hookbin/internal/sweeper"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "serve",
		Short:         "Run the capture server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log)
	log.Info("starting hookbin",
		"environment", cfg.App.Environment,
		"base_url", cfg.App.BaseURL,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()
	log.Info("database ready", "path", cfg.Database.Path)

	// The cache is a best-effort accelerator; without Redis configured
	// the service runs on the durable store alone.
	var ca cache.Cache = cache.Noop{}
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisCache.Close()
		ca = redisCache
		log.Info("redis connected", "addr", cfg.Redis.Addr)
	} else {
		log.Warn("no REDIS_ADDR configured, secondary cache disabled")
	}

	fanout := hub.New(log)

	svc := service.New(st, ca, fanout, log, service.Options{
		BaseURL:       cfg.App.BaseURL,
		SlugLength:    cfg.App.SlugLength,
		EndpointQuota: cfg.App.EndpointQuota,
		RequestQuota:  cfg.App.RequestQuota,
	})

	h := handler.NewHandler(svc, fanout, log)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sweeper.New(st, log, cfg.App.SweepInterval).Run(sweepCtx)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      h.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", server.Addr)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig.String())
		stopSweeper()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "error", err.Error())
			if err := server.Close(); err != nil {
				log.Error("forced shutdown failed", "error", err.Error())
			}
		}

		log.Info("server stopped")
		return nil
	}
}
