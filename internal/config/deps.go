package config

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/kdimtricp/skysight/internal/ai"
	"github.com/kdimtricp/skysight/internal/analysis"
	"github.com/kdimtricp/skysight/internal/database"
	"github.com/kdimtricp/skysight/internal/logging"
	"github.com/kdimtricp/skysight/internal/storage"
	"github.com/m-mizutani/goerr/v2"
)

// NewLogger builds the process logger. With a log file configured, JSON
// lines are appended to it as well; the returned closer releases the file.
func (cfg *Config) NewLogger(console io.Writer) (*slog.Logger, io.Closer, error) {
	if _, ok := logging.ParseLevel(cfg.LogLevel); !ok {
		return nil, nil, goerr.New("invalid log level", goerr.V("level", cfg.LogLevel))
	}

	if cfg.LogFile == "" {
		return logging.New(cfg.LogLevel, console), nopCloser{}, nil
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to open log file", goerr.V("file", cfg.LogFile))
	}
	return logging.NewWithFile(cfg.LogLevel, console, f), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewDatabase opens the record store and applies pending migrations.
func (cfg *Config) NewDatabase() (*database.DB, error) {
	db, err := database.NewDB(cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to run migrations")
	}
	return db, nil
}

// NewProvider returns nil without an error when the selected provider has
// no credentials, so known images can still be served.
func (cfg *Config) NewProvider(ctx context.Context) (ai.Provider, error) {
	if !cfg.Vision.Configured() {
		logging.From(ctx).Warn("vision provider not configured, new images will fail",
			"provider", cfg.Vision.Provider)
		return nil, nil
	}

	provider, err := ai.NewProvider(ctx, &cfg.Vision)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create vision provider")
	}
	return provider, nil
}

// NewAnalysisService wires the analyze protocol over db.
func (cfg *Config) NewAnalysisService(ctx context.Context, db *database.DB) (*analysis.Service, error) {
	provider, err := cfg.NewProvider(ctx)
	if err != nil {
		return nil, err
	}

	var opts []analysis.Option
	if cfg.UploadDir != "" {
		archive, err := storage.NewLocalStorage(cfg.UploadDir)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create image archive")
		}
		opts = append(opts, analysis.WithArchive(archive))
	}

	return analysis.NewService(database.NewRecordRepository(db), provider, opts...), nil
}
