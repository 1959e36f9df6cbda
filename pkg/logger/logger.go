// Package logger provides the contextual logrus entry point used across the
// service. A request id is attached to the context by the transport layer and
// carried into every log line below it.
package logger

import (
	"context"
	"os"
	"strings"

	"github.com/pulsetrack/conditioning/pkg/common/constants"
	"github.com/sirupsen/logrus"
)

type contextKey string

const requestIdContextKey contextKey = constants.RequestIdKey

var baseLogger = newBaseLogger()

func newBaseLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Configure sets the log level and format of the shared logger. Unknown
// values are ignored and the defaults kept.
func Configure(level, format string) {
	if lvl, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
		baseLogger.SetLevel(lvl)
	}
	if strings.EqualFold(format, "text") {
		baseLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// WithRequestId returns a context carrying the given request id.
func WithRequestId(ctx context.Context, requestId string) context.Context {
	return context.WithValue(ctx, requestIdContextKey, requestId)
}

// Logger returns a logrus entry scoped to the request in ctx, if any.
func Logger(ctx context.Context) *logrus.Entry {
	entry := logrus.NewEntry(baseLogger)
	if ctx == nil {
		return entry
	}
	if requestId, ok := ctx.Value(requestIdContextKey).(string); ok && requestId != "" {
		entry = entry.WithField(constants.RequestIdKey, requestId)
	}
	return entry
}
