package log

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrFmtHandler decorates training log records. When a record carries an
// error whose chain captured a stack trace (every constructor in pkg/errors
// attaches one), the formatted trace is emitted under StacktraceAttrKey so a
// failed run can be located without reproducing it.
type ErrFmtHandler struct {
	handler slog.Handler
}

// WrapByErrFmtHandler wraps a standard slog handler with stacktrace
// extraction. SetupLogger installs it on the default logger.
func WrapByErrFmtHandler(handler slog.Handler) slog.Handler {
	return &ErrFmtHandler{
		handler: handler,
	}
}

func (eh *ErrFmtHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return eh.handler.Enabled(ctx, l)
}

// Handle inspects every error-valued attribute, not only ErrAttrKey, so
// errors logged under contextual keys ("cause", per-split load failures)
// still surface their trace.
func (eh *ErrFmtHandler) Handle(ctx context.Context, r slog.Record) error {
	var stacktrace string
	r.Attrs(func(attr slog.Attr) bool {
		err, ok := attr.Value.Any().(error)
		if !ok {
			return true
		}
		stacktrace = extractStacktrace(err)
		return stacktrace == ""
	})
	if stacktrace != "" {
		r.AddAttrs(slog.String(StacktraceAttrKey, stacktrace))
	}
	return eh.handler.Handle(ctx, r)
}

func (eh *ErrFmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithAttrs(attrs)}
}

func (eh *ErrFmtHandler) WithGroup(g string) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithGroup(g)}
}

// extractStacktrace walks the whole error chain and returns the first safe
// detail that looks like a captured stack. Outer wrapping layers (fmt.Errorf,
// os path errors) often carry no details of their own.
func extractStacktrace(err error) string {
	for _, details := range errors.GetAllSafeDetails(err) {
		for _, d := range details.SafeDetails {
			if strings.Contains(d, ".go:") {
				return d
			}
		}
	}
	return ""
}
