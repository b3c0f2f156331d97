package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/nuln/fstream"
	"github.com/nuln/fstream/internal/config"
	"github.com/nuln/fstream/internal/handler"
	"github.com/nuln/fstream/internal/media"
	"github.com/nuln/fstream/store"
	_ "github.com/nuln/fstream/store/drivers"
)

func newServeCmd(logger log.Logger) *cobra.Command {
	var (
		configPath string
		addr       string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the media HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if cfg.Debug {
				logger.EnableDebugLog(true)
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides the configuration)")
	return cmd
}

func openService(ctx context.Context, cfg *config.Config, logger log.Logger) (*media.Service, *fstream.IOPool, error) {
	engine, err := store.Open(&cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	pool := fstream.NewIOPool(cfg.IOWorkers)
	svc := media.New(engine, logger, media.WithIOPool(pool), media.WithChunkSize(int(cfg.ChunkSize)))
	if err := svc.Init(ctx); err != nil {
		return nil, nil, err
	}
	return svc, pool, nil
}

func serve(ctx context.Context, cfg *config.Config, logger log.Logger) error {
	svc, pool, err := openService(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: handler.New(svc, logger, handler.Options{
			ChunkSize:         int(cfg.ChunkSize),
			MaxUploadSize:     int64(cfg.MaxUploadSize),
			RestartEveryPhoto: cfg.RestartEveryPhoto,
			Pool:              pool,
		}),
		// Large timeouts accommodate slow disks and very large files.
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals...)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Infof("fstream listening on %s (storage=%s, chunk=%s, workers=%d)",
			cfg.Addr, cfg.Storage.Type, units.BytesSize(float64(cfg.ChunkSize)), cfg.IOWorkers)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Infof("Shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Graceful shutdown failed: %s", err)
		return err
	}
	logger.Donef("fstream stopped")
	return nil
}
