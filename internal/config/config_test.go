package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()
	cfg := Default()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 100, cfg.Limits.MaxConnectionsPerRoom)
	assert.Equal(t, int64(1<<20), cfg.Limits.MaxMessageBytes)
	assert.Equal(t, 10, cfg.Limits.MessagesPerSecond)
	assert.Equal(t, 60, cfg.Room.ReconnectGraceSeconds)
	assert.Equal(t, 100, cfg.Room.ChatHistorySize)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  host: 127.0.0.1
  port: 9090
  allowed_origins:
    - https://example.com
redis:
  addr: redis:6380
limits:
  max_connections_per_room: 50
room:
  reconnect_grace_seconds: 30
  snapshot_ttl_hours: 48
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 50, cfg.Limits.MaxConnectionsPerRoom)
	assert.Equal(t, 30, cfg.Room.ReconnectGraceSeconds)
	assert.Equal(t, 48, cfg.Room.SnapshotTTLHours)

	// Unset fields fall back to defaults.
	assert.Equal(t, 10, cfg.Limits.MessagesPerSecond)
	assert.Equal(t, 10, cfg.Room.IdleReapMinutes)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a mapping"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDurations(t *testing.T) {
	t.Parallel()
	room := RoomConfig{
		ReconnectGraceSeconds: 60,
		IdleReapMinutes:       10,
		ReapIntervalSeconds:   30,
		SnapshotBackoffMillis: 250,
		SnapshotTTLHours:      24,
	}

	assert.Equal(t, time.Minute, room.ReconnectGraceDuration())
	assert.Equal(t, 10*time.Minute, room.IdleReapDuration())
	assert.Equal(t, 30*time.Second, room.ReapIntervalDuration())
	assert.Equal(t, 250*time.Millisecond, room.SnapshotBackoffDuration())
	assert.Equal(t, 24*time.Hour, room.SnapshotTTLDuration())
}
