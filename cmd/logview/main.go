package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/kdimtricp/skysight/internal/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// levelAll is below every slog level.
const levelAll = slog.Level(math.MinInt32)

var levelColors = map[slog.Level]*color.Color{
	slog.LevelDebug: color.New(color.FgHiBlack),
	slog.LevelInfo:  color.New(color.FgGreen),
	slog.LevelWarn:  color.New(color.FgYellow),
	slog.LevelError: color.New(color.FgRed, color.Bold),
}

func main() {
	var (
		logFile string
		level   string
		noColor bool
	)

	cmd := &cli.Command{
		Name:  "logview",
		Usage: "Show the service log file filtered by level",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-file",
				Aliases:     []string{"f"},
				Usage:       "JSON lines log file written by the server",
				Value:       "app.log",
				Sources:     cli.EnvVars("LOG_FILE"),
				Destination: &logFile,
			},
			&cli.StringFlag{
				Name:        "level",
				Aliases:     []string{"l"},
				Usage:       "Minimum level to show (ALL, DEBUG, INFO, WARN, ERROR)",
				Value:       "ALL",
				Destination: &level,
			},
			&cli.BoolFlag{
				Name:        "no-color",
				Usage:       "Disable colored output",
				Destination: &noColor,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			minLevel, err := parseFilter(level)
			if err != nil {
				return err
			}
			if noColor {
				color.NoColor = true
			}

			f, err := os.Open(logFile)
			if err != nil {
				return goerr.Wrap(err, "failed to open log file", goerr.V("file", logFile))
			}
			defer f.Close()

			entries, err := logging.ReadEntries(f, minLevel)
			if err != nil {
				return err
			}
			render(os.Stdout, entries)
			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "logview:", err)
		os.Exit(1)
	}
}

func parseFilter(level string) (slog.Level, error) {
	if strings.EqualFold(level, "all") {
		return levelAll, nil
	}
	lvl, ok := logging.ParseLevel(level)
	if !ok {
		return 0, goerr.New("unknown level filter", goerr.V("level", level))
	}
	return lvl, nil
}

func render(w io.Writer, entries []logging.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No log entries.")
		return
	}

	for _, entry := range entries {
		if entry.Attrs == nil {
			fmt.Fprintln(w, entry.Raw)
			continue
		}

		c, ok := levelColors[entry.Level]
		if !ok {
			c = color.New(color.Reset)
		}

		ts := "--:--:--"
		if !entry.Time.IsZero() {
			ts = entry.Time.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s %s %s%s\n", ts, c.Sprintf("%-5s", entry.Level.String()), entry.Message, formatAttrs(entry.Attrs))
	}
}

func formatAttrs(attrs map[string]any) string {
	if len(attrs) == 0 {
		return ""
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, attrs[k])
	}
	return b.String()
}
