package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestProvHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "info",
			opID:    "op-123",
			level:   slog.LevelInfo,
			message: "dataset created",
			want:    "2024-06-15T14:30:45Z\tINFO\top-123\tdataset created\n",
		},
		{
			name:    "warn",
			opID:    "op-456",
			level:   slog.LevelWarn,
			message: "activity rejected",
			want:    "2024-06-15T14:30:45Z\tWARN\top-456\tactivity rejected\n",
		},
		{
			name:    "with attrs",
			opID:    "op-789",
			level:   slog.LevelInfo,
			message: "activity recorded",
			attrs:   []slog.Attr{slog.String("plan", "/plans/p1"), slog.Int("inputs", 2)},
			want:    "2024-06-15T14:30:45Z\tINFO\top-789\tactivity recorded\tplan=/plans/p1\tinputs=2\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &provHandler{w: &buf, opID: tt.opID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			r.AddAttrs(tt.attrs...)
			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestProvHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &provHandler{w: &buf, opID: "op-1", attrs: []slog.Attr{slog.String("a", "1")}}
	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "doctor")}).(*provHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs = %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("derived handler attrs = %d, want 2", len(h2.attrs))
	}

	r := slog.NewRecord(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), slog.LevelInfo, "check finished", 0)
	r.AddAttrs(slog.String("check", "plan-ids"))
	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	got := buf.String()
	for _, want := range []string{"a=1", "component=doctor", "check=plan-ids"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q missing %q", got, want)
		}
	}
}

func TestProvHandler_Enabled(t *testing.T) {
	all := &provHandler{}
	warn := &provHandler{level: slog.LevelWarn}
	ctx := context.Background()

	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !all.Enabled(ctx, level) {
			t.Errorf("Enabled(%v) without level = false, want true", level)
		}
		if got, want := warn.Enabled(ctx, level), level >= slog.LevelWarn; got != want {
			t.Errorf("Enabled(%v) with warn level = %v, want %v", level, got, want)
		}
	}
}

func TestFanoutHandler(t *testing.T) {
	var file, console bytes.Buffer
	logger := slog.New(&fanoutHandler{handlers: []slog.Handler{
		&provHandler{w: &file, opID: "op"},
		&provHandler{w: &console, opID: "op", level: slog.LevelWarn},
	}})

	logger.Info("quiet")
	logger.With("slug", "ds").Warn("loud")

	if !strings.Contains(file.String(), "quiet") || !strings.Contains(file.String(), "loud\tslug=ds") {
		t.Errorf("file output = %q, want both records", file.String())
	}
	if strings.Contains(console.String(), "quiet") || !strings.Contains(console.String(), "loud") {
		t.Errorf("console output = %q, want only the warning", console.String())
	}
}

func TestNewLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")

	logger, f, err := newLogger(dir, "test-op", slog.LevelError)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	logger.Info("hello", "k", "v")
	f.Close()

	data, err := os.ReadFile(filepath.Join(dir, "prov.log"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "\ttest-op\thello\tk=v") {
		t.Errorf("log file = %q, want the info record", data)
	}
}
