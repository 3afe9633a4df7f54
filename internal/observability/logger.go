package observability

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/config"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

const redacted = "[redacted]"

// secretKeys are attribute names whose values never reach a log sink.
var secretKeys = map[string]struct{}{
	"api_key":    {},
	"password":   {},
	"secret_key": {},
	"token":      {},
}

// NewLogger builds the service logger. Attributes named like credentials are
// redacted and DSN/URL attributes lose their userinfo password.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel, ReplaceAttr: redactAttr}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
		slog.String("target", cfg.Target.Name),
	)
}

func redactAttr(_ []string, attr slog.Attr) slog.Attr {
	key := strings.ToLower(attr.Key)
	if _, ok := secretKeys[key]; ok {
		return slog.String(attr.Key, redacted)
	}
	if key == "dsn" || strings.HasSuffix(key, "_dsn") || key == "base_url" {
		return slog.String(attr.Key, RedactDSN(attr.Value.String()))
	}
	return attr
}

// RedactDSN masks the password of URL-style connection strings. Values that
// do not parse as URLs with userinfo are returned unchanged.
func RedactDSN(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.User == nil {
		return raw
	}
	if _, ok := parsed.User.Password(); !ok {
		return raw
	}
	parsed.User = url.UserPassword(parsed.User.Username(), "xxxxx")
	return parsed.String()
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}
