package main

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keithlinneman/storefront/internal/cfg"
	"github.com/keithlinneman/storefront/internal/log"
	v "github.com/keithlinneman/storefront/internal/version"
)

func TestNotifySystemd(t *testing.T) {
	t.Run("outside systemd", func(t *testing.T) {
		t.Setenv("NOTIFY_SOCKET", "")
		assert.NoError(t, notifySystemd())
	})

	t.Run("sends ready", func(t *testing.T) {
		sock := filepath.Join(t.TempDir(), "notify.sock")
		conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: sock, Net: "unixgram"})
		require.NoError(t, err)
		defer conn.Close()
		t.Setenv("NOTIFY_SOCKET", sock)

		require.NoError(t, notifySystemd())

		buf := make([]byte, 64)
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := conn.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "READY=1", string(buf[:n]))
	})

	t.Run("missing socket", func(t *testing.T) {
		t.Setenv("NOTIFY_SOCKET", filepath.Join(t.TempDir(), "gone.sock"))
		assert.Error(t, notifySystemd())
	})
}

func TestDrain_ZeroReturnsImmediately(t *testing.T) {
	start := time.Now()
	drain(context.Background(), log.Nop(), 0)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestDrain_WaitsForDelay(t *testing.T) {
	start := time.Now()
	drain(context.Background(), log.Nop(), 50*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestNewLogger(t *testing.T) {
	L, err := newLogger(cfg.App{LogLevel: "debug", StacktraceLevel: "warn", LogJSON: true, MaxErrorLinks: 5})
	require.NoError(t, err)
	require.NotNil(t, L)
	assert.NoError(t, L.Sync())
}

func TestStartObservability_Disabled(t *testing.T) {
	obs := startObservability(context.Background(), log.Nop(), cfg.App{}, versionInfoForTest())
	require.NotNil(t, obs.metrics)
	obs.stop(context.Background())
	obs.stop(context.Background())
}

func versionInfoForTest() v.Info {
	return v.Info{Version: "1.4.0", Commit: "9f1c2e7a"}
}
