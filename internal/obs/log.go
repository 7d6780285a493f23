package obs

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "ts",
			},
		})
	})
	return logger
}

// SetLevel adjusts the shared logger level. Unknown levels fall back to info.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Logger().SetLevel(lvl)
}

// LogRequest emits a structured line with common HTTP fields.
func LogRequest(msg string, entry map[string]any) {
	Logger().WithFields(logrus.Fields(entry)).Info(msg)
}

type ctxKey string

const (
	requestIDKey ctxKey = "obs_request_id"
	userIDKey    ctxKey = "obs_user_id"
)

// WithRequestID attaches the request identifier to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id if one was attached.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithUserID records the authenticated user id for log correlation.
func WithUserID(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the user id recorded by WithUserID.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

// FromContext returns a log entry enriched with request and user ids.
func FromContext(ctx context.Context) *logrus.Entry {
	entry := logrus.NewEntry(Logger())
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry = entry.WithField("request_id", rid)
	}
	if uid := UserIDFromContext(ctx); uid != "" {
		entry = entry.WithField("user_id", uid)
	}
	return entry
}
