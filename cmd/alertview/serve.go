package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qiniu/alertview/internal/alertlist"
	"github.com/qiniu/alertview/internal/api"
	"github.com/qiniu/alertview/internal/config"
	"github.com/qiniu/alertview/internal/grafana"
	"github.com/qiniu/alertview/internal/loader"
	"github.com/qiniu/alertview/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and refresh alert rules periodically",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log.Info().Str("version", version).Msg("Starting alertview server")
	gin.SetMode(gin.ReleaseMode)

	m := metrics.New(nil)
	store := alertlist.NewStore(alertlist.NewReducer(nil), m.Observer())

	storeCtx, cancelStore := context.WithCancel(context.Background())
	storeDone := make(chan struct{})
	go func() {
		store.Run(storeCtx)
		close(storeDone)
	}()
	defer func() {
		cancelStore()
		<-storeDone
	}()

	client := grafana.NewClientFromConfig(&cfg.Grafana)
	l := loader.New(client, store,
		loader.WithCache(loader.NewCacheFromConfig(&cfg.Redis)),
		loader.WithRecorder(m),
		loader.WithListOptions(grafana.ListOptions{State: cfg.Grafana.State}),
	)
	if _, err := l.WarmStart(ctx); err != nil {
		log.Warn().Err(err).Msg("warm start failed")
	}

	// the scheduler stops before the store on every return path
	interval := config.DurationOr(cfg.Refresh.Interval, 30*time.Second)
	schedCtx, cancelSched := context.WithCancel(ctx)
	schedDone := make(chan struct{})
	go func() {
		loader.StartScheduler(schedCtx, l, interval)
		close(schedDone)
	}()
	defer func() {
		cancelSched()
		<-schedDone
	}()

	router := api.NewRouter(api.Deps{
		Store:     store,
		Refresher: l,
		Pauser:    client,
		Metrics:   m,
		AuthToken: cfg.Server.AuthToken,
	})
	srv := &http.Server{
		Addr:              cfg.Server.BindAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", cfg.Server.BindAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DurationOr(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	log.Info().Msg("alertview server exit...")
	return nil
}
