package logging

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Entry is one JSON line written by the file sink of NewWithFile.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]any
	Raw     string
}

// ReadEntries parses JSON log lines from r and keeps those at or above
// minLevel. Lines that are not JSON objects are kept at info level so that
// nothing written to the file is silently hidden.
func ReadEntries(r io.Reader, minLevel slog.Level) ([]Entry, error) {
	var entries []Entry

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		entry := parseEntry(line)
		if entry.Level < minLevel {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to read log lines")
	}

	return entries, nil
}

func parseEntry(line string) Entry {
	entry := Entry{Level: slog.LevelInfo, Message: line, Raw: line}

	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return entry
	}

	if v, ok := fields[slog.TimeKey].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			entry.Time = ts
		}
	}
	if v, ok := fields[slog.LevelKey].(string); ok {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(v)); err == nil {
			entry.Level = lvl
		}
	}
	if v, ok := fields[slog.MessageKey].(string); ok {
		entry.Message = v
	}

	delete(fields, slog.TimeKey)
	delete(fields, slog.LevelKey)
	delete(fields, slog.MessageKey)
	entry.Attrs = fields

	return entry
}
