package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	verrors "github.com/YuminosukeSato/voxnet/pkg/errors"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(WrapByErrFmtHandler(handler))
}

func TestErrFmtHandlerAddsStacktrace(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	err := verrors.NewValueError("volume.Load", "unsupported dtype")
	logger.Error("load failed", ErrAttr(err))

	var entry map[string]any
	if jerr := json.Unmarshal(buf.Bytes(), &entry); jerr != nil {
		t.Fatalf("log output is not JSON: %v\n%s", jerr, buf.String())
	}

	if _, ok := entry[ErrAttrKey]; !ok {
		t.Error("error attribute missing from log entry")
	}
	st, ok := entry[StacktraceAttrKey].(string)
	if !ok || st == "" {
		t.Error("stacktrace attribute missing for cockroachdb error")
	}
	if !strings.Contains(st, "handler_test.go") {
		t.Errorf("stacktrace does not reference the call site: %s", st)
	}
}

func TestErrFmtHandlerFindsStackInWrappedChain(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	// Outer fmt wrapping carries no safe details of its own; the trace lives
	// on the inner error. The attribute key is contextual, not ErrAttrKey.
	inner := verrors.New("checkpoint write failed")
	logger.Error("epoch aborted", slog.Any("cause", fmt.Errorf("saving model: %w", inner)))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v\n%s", err, buf.String())
	}
	st, ok := entry[StacktraceAttrKey].(string)
	if !ok || st == "" {
		t.Fatal("stacktrace attribute missing for wrapped error")
	}
	if !strings.Contains(st, "handler_test.go") {
		t.Errorf("stacktrace does not reference the call site: %s", st)
	}
}

func TestErrFmtHandlerPlainError(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.Info("note", slog.String("k", "v"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if _, ok := entry[StacktraceAttrKey]; ok {
		t.Error("stacktrace attribute added without an error attribute")
	}
}

func TestToLogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		if got := ToLogLevel(tt.level); got != tt.want {
			t.Errorf("ToLogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestToLogLevelPanicsOnUnknown(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown level")
		}
	}()
	ToLogLevel("loud")
}
