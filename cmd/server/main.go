package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/kdimtricp/skysight/internal/api"
	"github.com/kdimtricp/skysight/internal/config"
	"github.com/kdimtricp/skysight/internal/database"
	"github.com/kdimtricp/skysight/internal/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var cfg config.Config

	cmd := &cli.Command{
		Name:  "skysight",
		Usage: "Image captioning service with content-addressed deduplication",
		Flags: slices.Concat(
			config.LogFlags(&cfg),
			config.ServerFlags(&cfg),
			config.ArchiveFlags(&cfg),
			config.DatabaseFlags(&cfg),
			config.VisionFlags(&cfg),
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, &cfg)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logging.Default().Error("server failed", "error", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Finalize(); err != nil {
		return err
	}

	logger, closer, err := cfg.NewLogger(os.Stdout)
	if err != nil {
		return err
	}
	defer closer.Close()
	logging.SetDefault(logger)
	ctx = logging.With(ctx, logger)

	db, err := cfg.NewDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := cfg.NewAnalysisService(ctx, db)
	if err != nil {
		return err
	}

	app := &api.App{
		Analysis:         svc,
		MaxUploadSize:    cfg.MaxUploadSize,
		VisionConfigFile: cfg.VisionConfigFile,
		CORSOrigins:      cfg.CORSOrigins,
		Logger:           logger,
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           api.NewRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("server starting",
		"addr", server.Addr,
		"db_type", cfg.Database.Type,
		"db", describeDatabase(cfg),
		"provider", cfg.Vision.Provider,
		"max_upload_size", cfg.MaxUploadSize,
		"upload_dir", cfg.UploadDir,
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return goerr.Wrap(err, "failed to serve", goerr.V("addr", server.Addr))
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "failed to shut down server")
	}
	return nil
}

func describeDatabase(cfg *config.Config) string {
	if cfg.Database.Type == database.TypeSQLite {
		return cfg.Database.SQLitePath
	}
	return fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
}
