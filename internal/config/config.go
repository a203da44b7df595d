// Package config builds the process configuration once at startup from
// flags, environment variables and the optional JSON credential files.
package config

import (
	"time"

	"github.com/kdimtricp/skysight/internal/ai"
	"github.com/kdimtricp/skysight/internal/database"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const defaultMaxUploadSize = 32 << 20

// Config is immutable after Finalize and is handed to constructors.
type Config struct {
	Addr             string
	LogLevel         string
	LogFile          string
	MaxUploadSize    int64
	UploadDir        string
	CORSOrigins      []string
	MigrationsPath   string
	DBConfigFile     string
	VisionConfigFile string

	Database database.Config
	Vision   ai.Config

	dbPort int64
}

// LogFlags returns flags controlling logging.
func LogFlags(cfg *Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("LOG_LEVEL"),
			Destination: &cfg.LogLevel,
		},
		&cli.StringFlag{
			Name:        "log-file",
			Usage:       "Also write JSON log lines to this file",
			Sources:     cli.EnvVars("LOG_FILE"),
			Destination: &cfg.LogFile,
		},
	}
}

// ServerFlags returns flags for the HTTP surface.
func ServerFlags(cfg *Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen port or address",
			Value:       "8080",
			Sources:     cli.EnvVars("PORT"),
			Destination: &cfg.Addr,
		},
		&cli.IntFlag{
			Name:        "max-upload-size",
			Usage:       "Maximum upload size in bytes",
			Value:       defaultMaxUploadSize,
			Sources:     cli.EnvVars("MAX_UPLOAD_SIZE"),
			Destination: &cfg.MaxUploadSize,
		},
		&cli.StringSliceFlag{
			Name:        "cors-origins",
			Usage:       "Allowed CORS origins (default: any)",
			Sources:     cli.EnvVars("CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
		},
	}
}

// ArchiveFlags returns flags for the optional image archive.
func ArchiveFlags(cfg *Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "upload-dir",
			Usage:       "Directory to archive analyzed images in (disabled when empty)",
			Sources:     cli.EnvVars("UPLOAD_DIR"),
			Destination: &cfg.UploadDir,
		},
	}
}

// DatabaseFlags returns flags for the record store.
func DatabaseFlags(cfg *Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db-type",
			Usage:       "Database type (sqlite, postgres, mysql)",
			Value:       database.TypeSQLite,
			Sources:     cli.EnvVars("DB_TYPE"),
			Destination: &cfg.Database.Type,
		},
		&cli.StringFlag{
			Name:        "db-host",
			Usage:       "Database host",
			Sources:     cli.EnvVars("DB_HOST"),
			Destination: &cfg.Database.Host,
		},
		&cli.IntFlag{
			Name:        "db-port",
			Usage:       "Database port (default depends on db-type)",
			Sources:     cli.EnvVars("DB_PORT"),
			Destination: &cfg.dbPort,
		},
		&cli.StringFlag{
			Name:        "db-user",
			Usage:       "Database user",
			Sources:     cli.EnvVars("DB_USER"),
			Destination: &cfg.Database.User,
		},
		&cli.StringFlag{
			Name:        "db-password",
			Usage:       "Database password",
			Sources:     cli.EnvVars("DB_PASSWORD"),
			Destination: &cfg.Database.Password,
		},
		&cli.StringFlag{
			Name:        "db-name",
			Usage:       "Database name",
			Sources:     cli.EnvVars("DB_NAME"),
			Destination: &cfg.Database.Name,
		},
		&cli.StringFlag{
			Name:        "db-path",
			Usage:       "SQLite database file",
			Value:       "./skysight.db",
			Sources:     cli.EnvVars("DB_PATH"),
			Destination: &cfg.Database.SQLitePath,
		},
		&cli.StringFlag{
			Name:        "db-config",
			Usage:       "JSON file with server, database_name, username and password",
			Sources:     cli.EnvVars("DB_CONFIG_FILE"),
			Destination: &cfg.DBConfigFile,
		},
		&cli.StringFlag{
			Name:        "migrations",
			Usage:       "SQL migrations directory (embedded migrations when empty)",
			Sources:     cli.EnvVars("MIGRATIONS_PATH"),
			Destination: &cfg.MigrationsPath,
		},
	}
}

// VisionFlags returns flags for the vision provider.
func VisionFlags(cfg *Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "vision-provider",
			Usage:       "Vision provider (azure, gemini)",
			Value:       ai.ProviderAzure,
			Sources:     cli.EnvVars("VISION_PROVIDER"),
			Destination: &cfg.Vision.Provider,
		},
		&cli.StringFlag{
			Name:        "vision-endpoint",
			Usage:       "Azure AI Vision endpoint",
			Sources:     cli.EnvVars("VISION_ENDPOINT"),
			Destination: &cfg.Vision.Endpoint,
		},
		&cli.StringFlag{
			Name:        "vision-key",
			Usage:       "Azure AI Vision API key",
			Sources:     cli.EnvVars("VISION_KEY"),
			Destination: &cfg.Vision.APIKey,
		},
		&cli.StringFlag{
			Name:        "vision-config",
			Usage:       "JSON file with AI_VISION_ENDPOINT and AI_VISION_API_KEY",
			Sources:     cli.EnvVars("VISION_CONFIG_FILE"),
			Destination: &cfg.VisionConfigFile,
		},
		&cli.DurationFlag{
			Name:        "vision-timeout",
			Usage:       "Timeout for one provider call",
			Value:       30 * time.Second,
			Sources:     cli.EnvVars("VISION_TIMEOUT"),
			Destination: &cfg.Vision.Timeout,
		},
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.Vision.GeminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini on Vertex AI",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.Vision.GeminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.Vision.GeminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model name",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.Vision.GeminiModel,
		},
	}
}

// Finalize fills values left empty from the credential files, applies
// defaults and validates the result. Call it once, before use.
func (cfg *Config) Finalize() error {
	cfg.Database.Port = int(cfg.dbPort)

	if cfg.DBConfigFile != "" {
		file, err := LoadDBFile(cfg.DBConfigFile)
		if err != nil {
			return err
		}
		file.apply(&cfg.Database)
	}

	if cfg.VisionConfigFile != "" {
		file, err := LoadVisionFile(cfg.VisionConfigFile)
		if err != nil {
			return err
		}
		file.apply(&cfg.Vision)
	}

	if cfg.MaxUploadSize == 0 {
		cfg.MaxUploadSize = defaultMaxUploadSize
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = database.DefaultPort(cfg.Database.Type)
	}
	if cfg.Database.Type != database.TypeSQLite && cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}

	return cfg.Validate()
}

func (cfg *Config) Validate() error {
	switch cfg.Database.Type {
	case database.TypeSQLite:
		if cfg.Database.SQLitePath == "" {
			return goerr.New("db-path is required for sqlite")
		}
	case database.TypePostgres, database.TypeMySQL:
		if cfg.Database.Name == "" {
			return goerr.New("db-name is required", goerr.V("type", cfg.Database.Type))
		}
		if cfg.Database.User == "" {
			return goerr.New("db-user is required", goerr.V("type", cfg.Database.Type))
		}
	default:
		return goerr.New("unsupported database type", goerr.V("type", cfg.Database.Type))
	}

	// Commands without vision flags leave the provider empty.
	switch cfg.Vision.Provider {
	case "", ai.ProviderAzure, ai.ProviderGemini:
	default:
		return goerr.New("unsupported vision provider", goerr.V("provider", cfg.Vision.Provider))
	}

	if cfg.MaxUploadSize < 0 {
		return goerr.New("max-upload-size must be positive", goerr.V("max_upload_size", cfg.MaxUploadSize))
	}

	return nil
}

// ListenAddr turns a bare port into a listen address.
func (cfg *Config) ListenAddr() string {
	for _, c := range cfg.Addr {
		if c < '0' || c > '9' {
			return cfg.Addr
		}
	}
	return ":" + cfg.Addr
}
