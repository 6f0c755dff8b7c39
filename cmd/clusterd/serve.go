package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/imamik/clusterd/internal/api"
	"github.com/imamik/clusterd/internal/config"
	"github.com/imamik/clusterd/internal/orchestrator"
	"github.com/imamik/clusterd/internal/provider"
	"github.com/imamik/clusterd/internal/registry"
)

func serveCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the provisioning orchestrator and HTTP API",
		RunE: func(_ *cobra.Command, _ []string) error {
			return serve(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "clusterd.yaml", "Path to the configuration file")

	return cmd
}

func serve(configPath string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	timeouts := config.LoadTimeouts()

	log.Info("starting clusterd", "version", version, "listen", cfg.Listen, "dataFile", cfg.DataFile)

	client := provider.NewHTTPClient(cfg.Provider.BaseURL, cfg.Provider.Token,
		provider.WithCallTimeout(timeouts.ProviderCall),
		provider.WithLogger(log.WithName("provider")))

	reg := registry.New(registry.NewSnapshotStore(cfg.DataFile), log.WithName("registry"))

	ctrl := orchestrator.New(orchestrator.Options{
		Provider: client,
		Registry: reg,
		Config:   cfg,
		Timeouts: timeouts,
		Feature:  &backupFeature{client: client},
		Log:      log.WithName("orchestrator"),
	})
	defer ctrl.Close()

	// Crash recovery: reload the snapshot and restart pollers before
	// accepting new requests.
	if err := ctrl.Resume(); err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewServer(ctrl, log.WithName("api")).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// backupFeature is the post-ready side effect: scheduled backups are enabled
// once per cluster after it becomes READY.
type backupFeature struct {
	client *provider.HTTPClient
}

func (f *backupFeature) EnableFeature(ctx context.Context, clusterName string) error {
	return f.client.EnableBackups(ctx, clusterName)
}

func newLogger() (logr.Logger, error) {
	var zcfg zap.Config
	if os.Getenv("DEBUG") == "true" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zl, err := zcfg.Build()
	if err != nil {
		return logr.Logger{}, fmt.Errorf("failed to build logger: %w", err)
	}
	return zapr.NewLogger(zl), nil
}
