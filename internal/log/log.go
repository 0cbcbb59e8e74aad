// Package log is the storefront's structured logger: a small interface over
// log/slog that adds trace ids, error chains, stacks for errors, and
// redaction of credential fields.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type Logger interface {
	With(kv ...any) Logger

	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, err error, msg string, kv ...any)

	Sync() error
}

type Options struct {
	App     string
	Version string
	Commit  string
	BuildId string

	Level slog.Level
	// StacktraceLevel is the lowest level that gets a "stack" attribute.
	// nil means slog.LevelError.
	StacktraceLevel slog.Leveler

	JsonFormat        bool
	MaxErrorLinks     int
	IncludeErrorLinks bool

	// Writer defaults to os.Stdout.
	Writer io.Writer
}

func New(opts Options) (Logger, error) { return newSlog(opts) }

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q (valid levels are debug|info|warn|error)", s)
}

// redactedKeys never reach the output with their value. Matching is
// case-insensitive on the whole key.
var redactedKeys = map[string]bool{
	"password":      true,
	"new_password":  true,
	"old_password":  true,
	"token":         true,
	"api_token":     true,
	"authorization": true,
	"cookie":        true,
	"jwt":           true,
	"secret":        true,
}

const redacted = "[redacted]"

func isRedacted(key string) bool { return redactedKeys[strings.ToLower(key)] }
