package main

import (
	"context"
	"encoding/json"
	"os"
	"slices"

	"github.com/kdimtricp/skysight/internal/config"
	"github.com/kdimtricp/skysight/internal/logging"
	"github.com/kdimtricp/skysight/internal/models"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

type output struct {
	File        string            `json:"file"`
	Fingerprint string            `json:"fingerprint"`
	Cached      bool              `json:"cached"`
	Caption     models.Caption    `json:"caption"`
	ReadText    []models.TextLine `json:"read_text,omitempty"`
}

func main() {
	var cfg config.Config

	cmd := &cli.Command{
		Name:      "analyze-image",
		Usage:     "Analyze local image files through the deduplicating store",
		ArgsUsage: "<image> [image...]",
		Flags: slices.Concat(
			config.LogFlags(&cfg),
			config.ArchiveFlags(&cfg),
			config.DatabaseFlags(&cfg),
			config.VisionFlags(&cfg),
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return goerr.New("at least one image path is required")
			}
			if err := cfg.Finalize(); err != nil {
				return err
			}

			logger, closer, err := cfg.NewLogger(os.Stderr)
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

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			for _, path := range c.Args().Slice() {
				data, err := os.ReadFile(path)
				if err != nil {
					return goerr.Wrap(err, "failed to read image", goerr.V("file", path))
				}

				result, err := svc.Analyze(ctx, data)
				if err != nil {
					return goerr.Wrap(err, "failed to analyze image", goerr.V("file", path))
				}

				if err := enc.Encode(output{
					File:        path,
					Fingerprint: result.Fingerprint,
					Cached:      result.Cached,
					Caption:     result.Caption,
					ReadText:    result.ReadText,
				}); err != nil {
					return goerr.Wrap(err, "failed to write result")
				}
			}
			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logging.Default().Error("analysis failed", "error", err)
		os.Exit(1)
	}
}
