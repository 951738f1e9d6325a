package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/relay/kernel"
	"github.com/felixgeelhaar/relay/protocol"
)

// Logger is the interface for structured logging.
type Logger interface {
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logging returns middleware that logs request details.
// Successful requests are logged at info level, errors at error level.
// Responses carrying an error object count as failures. A nil logger
// discards output.
func Logging(logger Logger) kernel.Middleware {
	if logger == nil {
		logger = NopLogger{}
	}
	return kernel.MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next kernel.Handler) (*protocol.Response, error) {
		start := time.Now()

		resp, err := next.Handle(ctx, req)

		fields := []Field{
			F("method", req.Method),
			F("duration", time.Since(start)),
		}
		if requestID := RequestIDFromContext(ctx); requestID != "" {
			fields = append(fields, F("request_id", requestID))
		}

		switch {
		case err != nil:
			fields = append(fields, F("error", err.Error()))
			logger.Error("request failed", fields...)
		case resp != nil && resp.Error != nil:
			fields = append(fields, F("error", resp.Error.Message), F("code", resp.Error.Code))
			logger.Error("request failed", fields...)
		default:
			logger.Info("request completed", fields...)
		}

		return resp, err
	})
}

// NopLogger is a logger that discards all log entries.
type NopLogger struct{}

func (NopLogger) Info(msg string, fields ...Field)  {}
func (NopLogger) Error(msg string, fields ...Field) {}
func (NopLogger) Debug(msg string, fields ...Field) {}
func (NopLogger) Warn(msg string, fields ...Field)  {}

type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger adapts a *slog.Logger to Logger. A nil logger uses slog.Default.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return slogLogger{l: l}
}

func (s slogLogger) Info(msg string, fields ...Field)  { s.l.Info(msg, slogArgs(fields)...) }
func (s slogLogger) Error(msg string, fields ...Field) { s.l.Error(msg, slogArgs(fields)...) }
func (s slogLogger) Debug(msg string, fields ...Field) { s.l.Debug(msg, slogArgs(fields)...) }
func (s slogLogger) Warn(msg string, fields ...Field)  { s.l.Warn(msg, slogArgs(fields)...) }

func slogArgs(fields []Field) []any {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, slog.Any(f.Key, f.Value))
	}
	return args
}
