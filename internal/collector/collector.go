package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/siohaza/warden/internal/event"
	"github.com/siohaza/warden/internal/router"
)

// Source yields structured log lines in the order the game server wrote
// them. Next returns io.EOF once the source is exhausted.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, ev event.GameEvent) []router.Outcome
}

type SkipRecorder interface {
	RecordSkippedLine()
}

type Stats struct {
	Dispatched int
	Skipped    int
	Failed     int
}

// Run reads src one line at a time and dispatches each event before reading
// the next. It returns nil when the source is exhausted.
func Run(ctx context.Context, src Source, d Dispatcher, rec SkipRecorder, logger *slog.Logger) (Stats, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var stats Stats
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		line, err := src.Next(ctx)
		if errors.Is(err, ErrLineTooLong) {
			stats.Skipped++
			if rec != nil {
				rec.RecordSkippedLine()
			}
			logger.Warn("skipping oversized log line", "limit", maxLineSize)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return stats, nil
			}
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			return stats, fmt.Errorf("failed to read event: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		ev, err := event.Decode(line)
		if err != nil {
			stats.Skipped++
			if rec != nil {
				rec.RecordSkippedLine()
			}
			logger.Warn("skipping malformed log line", "error", err, "line", truncate(line, 200))
			continue
		}

		for _, o := range d.Dispatch(ctx, ev) {
			if o.Failed() {
				stats.Failed++
			}
		}
		stats.Dispatched++
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
