package log

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"  warn\n", slog.LevelWarn, false},
		{"Error", slog.LevelError, false},
		{"trace", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) err = %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := FromContext(ctx).(nopLogger); !ok {
		t.Fatal("empty context should give Nop")
	}
	if _, ok := FromContext(WithContext(ctx, nil)).(nopLogger); !ok {
		t.Fatal("nil logger should give Nop")
	}

	l, err := New(Options{App: "storefront", Writer: discard{}})
	if err != nil {
		t.Fatal(err)
	}
	child := WithContext(ctx, l)
	if FromContext(child) != l {
		t.Fatal("stored logger not returned")
	}
	if _, ok := FromContext(ctx).(nopLogger); !ok {
		t.Fatal("parent context was modified")
	}
}

func TestNop(t *testing.T) {
	n := Nop()
	ctx := context.Background()
	n.Debug(ctx, "d")
	n.Info(ctx, "i", "k", "v")
	n.Warn(ctx, "w", "odd")
	n.Error(ctx, nil, "e")
	if n.With("a", 1, "b") != n || n.Sync() != nil {
		t.Fatal("Nop should be inert")
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
