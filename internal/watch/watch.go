// Package watch renders the growth event stream of a run.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/accrete/internal/filter"
	"github.com/dyluth/accrete/pkg/events"
)

// OutputFormat selects how events are written.
type OutputFormat string

const (
	// OutputFormatDefault writes one human-readable line per event
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL writes one JSON object per line
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseOutputFormat validates a format name.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, "":
		return OutputFormatDefault, nil
	case OutputFormatJSONL, "json":
		return OutputFormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown output format %q (must be 'default' or 'jsonl')", s)
	}
}

// Source delivers events. *events.Subscription implements it.
type Source interface {
	Events() <-chan *events.Event
	Errors() <-chan error
}

// Options control Stream.
type Options struct {
	Format OutputFormat
	Filter filter.Criteria
	Exit   bool // Return after run_completed or stopped, even when filtered out
}

type formatter interface {
	Format(ev *events.Event) error
}

func newFormatter(w io.Writer, format OutputFormat) formatter {
	if format == OutputFormatJSONL {
		return &jsonFormatter{writer: w}
	}
	return &defaultFormatter{writer: w}
}

// Stream writes events from src to w until ctx is cancelled or the source closes.
// Subscription errors are reported inline and do not end the stream.
func Stream(ctx context.Context, src Source, w io.Writer, opts Options) error {
	f := newFormatter(w, opts.Format)
	errs := src.Errors()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-src.Events():
			if !ok {
				return nil
			}
			if opts.Filter.Matches(ev) {
				if err := f.Format(ev); err != nil {
					return err
				}
			}
			if opts.Exit && (ev.Kind == events.KindRunCompleted || ev.Kind == events.KindStopped) {
				return nil
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fmt.Fprintf(w, "⚠️  %v\n", err)
		}
	}
}

// defaultFormatter writes human-readable lines.
type defaultFormatter struct {
	writer io.Writer
}

func (f *defaultFormatter) Format(ev *events.Event) error {
	var line string
	switch ev.Kind {
	case events.KindPathwayStarted:
		line = fmt.Sprintf("🌱 Pathway started: pathway=%d aid=%s orientations=%d", ev.Pathway, ev.AggregateID, ev.Orientations)
	case events.KindStepStarted:
		line = fmt.Sprintf("⚗️  Step started: %s aid=%s seeds=%d orientations=%d", where(ev), ev.AggregateID, ev.Seeds, ev.Orientations)
	case events.KindStepCompleted:
		line = fmt.Sprintf("✅ Step completed: %s aid=%s kept=%d", where(ev), ev.AggregateID, ev.Seeds)
	case events.KindPathwayDone:
		line = fmt.Sprintf("🏁 Pathway done: pathway=%d aid=%s seeds=%d", ev.Pathway, ev.AggregateID, ev.Seeds)
	case events.KindStopped:
		line = fmt.Sprintf("🛑 Stopped: %s", where(ev))
	case events.KindRunCompleted:
		line = fmt.Sprintf("🎉 Run completed: steps=%d", ev.Step)
	default:
		line = fmt.Sprintf("• %s", ev.Kind)
	}
	if ev.Message != "" {
		line += " (" + ev.Message + ")"
	}
	_, err := fmt.Fprintf(f.writer, "[%s] %s\n", stamp(ev), line)
	return err
}

func where(ev *events.Event) string {
	if ev.Pathway < 0 {
		return fmt.Sprintf("step=%d", ev.Step)
	}
	return fmt.Sprintf("pathway=%d step=%d", ev.Pathway, ev.Step)
}

func stamp(ev *events.Event) string {
	if ev.CreatedAtMs == 0 {
		return "--:--:--"
	}
	return time.UnixMilli(ev.CreatedAtMs).Format("15:04:05")
}

// jsonFormatter writes JSONL.
type jsonFormatter struct {
	writer io.Writer
}

func (f *jsonFormatter) Format(ev *events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event to JSON: %w", err)
	}
	if _, err := fmt.Fprintf(f.writer, "%s\n", data); err != nil {
		return fmt.Errorf("failed to write JSONL output: %w", err)
	}
	return nil
}
