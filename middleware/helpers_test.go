package middleware

import (
	"context"

	"github.com/felixgeelhaar/relay/kernel"
	"github.com/felixgeelhaar/relay/protocol"
)

// serve places m in front of h. Every Handle call is a fresh traversal.
func serve(m kernel.Middleware, h kernel.HandlerFunc) kernel.Handler {
	return kernel.NewPipeline(h, m)
}

func okHandler(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return protocol.NewResponse(req.ID, "ok"), nil
}

// recordingLogger captures log calls for assertions.
type recordingLogger struct {
	entries []logEntry
}

type logEntry struct {
	level  string
	msg    string
	fields map[string]any
}

func (l *recordingLogger) log(level, msg string, fields []Field) {
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: m})
}

func (l *recordingLogger) Info(msg string, fields ...Field)  { l.log("info", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...Field) { l.log("error", msg, fields) }
func (l *recordingLogger) Debug(msg string, fields ...Field) { l.log("debug", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...Field)  { l.log("warn", msg, fields) }
