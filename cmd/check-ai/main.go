package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/kdimtricp/skysight/internal/config"
	"github.com/kdimtricp/skysight/internal/database"
	"github.com/kdimtricp/skysight/internal/logging"
	"github.com/urfave/cli/v3"
)

func main() {
	var (
		cfg    config.Config
		recent int64
	)

	cmd := &cli.Command{
		Name:  "check-ai",
		Usage: "Show vision provider status and the most recent stored captions",
		Flags: slices.Concat(
			config.LogFlags(&cfg),
			config.DatabaseFlags(&cfg),
			config.VisionFlags(&cfg),
			[]cli.Flag{
				&cli.IntFlag{
					Name:        "recent",
					Usage:       "Number of recent entries to show",
					Value:       5,
					Destination: &recent,
				},
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := cfg.Finalize(); err != nil {
				return err
			}
			logging.SetDefault(logging.New(cfg.LogLevel, os.Stderr))
			return check(ctx, &cfg, int(recent))
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logging.Default().Error("check failed", "error", err)
		os.Exit(1)
	}
}

func check(ctx context.Context, cfg *config.Config, recent int) error {
	fmt.Println("🔍 Checking AI Analysis Results")
	fmt.Println("================================")

	if cfg.Vision.Configured() {
		fmt.Printf("✅ Vision provider configured: %s\n\n", cfg.Vision.Provider)
	} else {
		fmt.Printf("⚠️  WARNING: vision provider %q has no credentials!\n", cfg.Vision.Provider)
		fmt.Println("   Azure needs VISION_ENDPOINT and VISION_KEY; Gemini needs GEMINI_API_KEY or GEMINI_PROJECT_ID")
		fmt.Println()
	}

	db, err := cfg.NewDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := database.NewRecordRepository(db).ListAll(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("🖼️  Total analyzed images: %d\n\n", len(records))

	if len(records) == 0 {
		fmt.Println("No analyses found yet. Upload an image to test!")
		return nil
	}

	fmt.Println("📊 Recent AI Analyses:")
	fmt.Println("---------------------")

	start := max(len(records)-max(recent, 0), 0)
	for _, record := range slices.Backward(records[start:]) {
		fmt.Printf("\n#%d %s\n", record.ID, record.ImageFingerprint[:12])

		caption := record.Caption()
		if caption.Text != nil {
			fmt.Printf("   📝 Caption: %.100s\n", *caption.Text)
		}
		if caption.Confidence != nil {
			fmt.Printf("   🎯 Confidence: %.2f\n", *caption.Confidence)
		}

		lines, err := record.Lines()
		if err != nil {
			fmt.Printf("   ❌ Unreadable text lines: %v\n", err)
			continue
		}
		if len(lines) > 0 {
			fmt.Printf("   📄 Text lines: %d (first: %q)\n", len(lines), lines[0].Text)
		}
	}
	return nil
}
