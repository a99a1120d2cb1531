package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "aquarium", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)

	assert.Equal(t, []string{"default"}, cfg.DeviceIDs)
	assert.Equal(t, "aquarium:device:", cfg.Store.StateKeyPrefix)
	assert.Equal(t, ":state", cfg.Store.StateSuffix)
	assert.Equal(t, ":changes", cfg.Store.ChangesSuffix)

	assert.Equal(t, "medium", cfg.Alert.AmmoniaWarnSeverity)
	assert.Equal(t, 10*time.Minute, cfg.Alert.Cooldown)
	assert.Equal(t, "aquarium:alerts:stream", cfg.Alert.Stream)

	assert.Equal(t, 480, cfg.Feed.IntervalMinutes)
	assert.Equal(t, 2.5, cfg.Feed.Amount)
	assert.False(t, cfg.Feed.AutoStart)
	assert.Equal(t, 100, cfg.Feed.HistoryLimit)

	assert.Equal(t, 5*time.Minute, cfg.Monitor.StaleAfter)
	assert.True(t, cfg.Persistence.Enabled)
	assert.True(t, cfg.Bridge.Enabled)
	assert.Equal(t, "aquarium/feed/command", cfg.Bridge.FeedCommandTopic)
	assert.False(t, cfg.Push.Enabled)
	assert.Empty(t, cfg.Push.Tokens)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6432")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("MQTT_QOS", "2")
	t.Setenv("DEVICE_IDS", " tank-a, tank-b ,,")
	t.Setenv("ALERT_AMMONIA_WARN_SEVERITY", "high")
	t.Setenv("FEED_INTERVAL_MINUTES", "60")
	t.Setenv("FEED_AMOUNT", "1.25")
	t.Setenv("FEED_AUTO_START", "true")
	t.Setenv("STALE_AFTER", "0s")
	t.Setenv("PUSH_TOKENS", "ExponentPushToken[a],ExponentPushToken[b]")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6432, cfg.Database.Port)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, byte(2), cfg.MQTT.QoS)
	assert.Equal(t, []string{"tank-a", "tank-b"}, cfg.DeviceIDs)
	assert.Equal(t, "high", cfg.Alert.AmmoniaWarnSeverity)
	assert.Equal(t, 60, cfg.Feed.IntervalMinutes)
	assert.Equal(t, 1.25, cfg.Feed.Amount)
	assert.True(t, cfg.Feed.AutoStart)
	assert.Equal(t, time.Duration(0), cfg.Monitor.StaleAfter)
	assert.Len(t, cfg.Push.Tokens, 2)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("FEED_INTERVAL_MINUTES", "often")
	t.Setenv("STALE_AFTER", "-1m")
	t.Setenv("BRIDGE_ENABLED", "maybe")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 480, cfg.Feed.IntervalMinutes)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.StaleAfter)
	assert.True(t, cfg.Bridge.Enabled)
}
