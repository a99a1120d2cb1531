package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"aquarium-monitor/internal/common/config"
)

// Config aquarium monitor settings
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// DeviceIDs lists the devices this process monitors
	DeviceIDs []string

	Store struct {
		StateKeyPrefix string // "aquarium:device:"
		StateSuffix    string // ":state"
		ChangesSuffix  string // ":changes"
	}

	Alert struct {
		// AmmoniaWarnSeverity applies to 0.5 < ammonia <= 1.0 ppm
		AmmoniaWarnSeverity string
		// Cooldown suppresses repeat notifications of the same (device, type, severity)
		Cooldown     time.Duration
		DedupePrefix string
		Stream       string
		StreamMaxLen int64
	}

	Feed struct {
		IntervalMinutes int
		Amount          float64
		AutoStart       bool
		HistoryLimit    int
	}

	Monitor struct {
		// StaleAfter marks a device stale when now-lastUpdate exceeds it; 0 disables the check
		StaleAfter time.Duration
	}

	Persistence struct {
		// Enabled stores feed history and sensor readings in Postgres
		Enabled bool
	}

	Bridge struct {
		Enabled              bool
		TelemetryTopicFormat string // "aquarium/%s/telemetry"
		FeedCommandTopic     string
		FeedScheduleTopic    string
		FeedStatusTopic      string
	}

	Push struct {
		Enabled bool
		URL     string
		Tokens  []string
		Timeout time.Duration
	}

	Simulator struct {
		Interval time.Duration
	}

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "aquarium",
		SSLMode:  "disable",
		MaxConns: 10,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = config.MQTTConfig{Broker: "tcp://localhost:1883", ClientID: "aquarium-monitor", QoS: 1}
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.DeviceIDs = listFromEnv("DEVICE_IDS", []string{"default"})

	cfg.Store.StateKeyPrefix = getEnv("STORE_STATE_PREFIX", "aquarium:device:")
	cfg.Store.StateSuffix = ":state"
	cfg.Store.ChangesSuffix = ":changes"

	cfg.Alert.AmmoniaWarnSeverity = getEnv("ALERT_AMMONIA_WARN_SEVERITY", "medium")
	cfg.Alert.Cooldown = durationFromEnv("ALERT_COOLDOWN", 10*time.Minute)
	cfg.Alert.DedupePrefix = getEnv("ALERT_DEDUPE_PREFIX", "aquarium:alert:sent:")
	cfg.Alert.Stream = getEnv("ALERT_STREAM", "aquarium:alerts:stream")
	cfg.Alert.StreamMaxLen = int64(intFromEnv("ALERT_STREAM_MAXLEN", 10000))

	cfg.Feed.IntervalMinutes = intFromEnv("FEED_INTERVAL_MINUTES", 480)
	cfg.Feed.Amount = floatFromEnv("FEED_AMOUNT", 2.5)
	cfg.Feed.AutoStart = boolFromEnv("FEED_AUTO_START", false)
	cfg.Feed.HistoryLimit = intFromEnv("FEED_HISTORY_LIMIT", 100)

	cfg.Monitor.StaleAfter = durationFromEnv("STALE_AFTER", 5*time.Minute)

	cfg.Persistence.Enabled = boolFromEnv("PERSISTENCE_ENABLED", true)

	cfg.Bridge.Enabled = boolFromEnv("BRIDGE_ENABLED", true)
	cfg.Bridge.TelemetryTopicFormat = getEnv("BRIDGE_TELEMETRY_TOPIC", "aquarium/%s/telemetry")
	cfg.Bridge.FeedCommandTopic = getEnv("BRIDGE_FEED_COMMAND_TOPIC", "aquarium/feed/command")
	cfg.Bridge.FeedScheduleTopic = getEnv("BRIDGE_FEED_SCHEDULE_TOPIC", "aquarium/feed/schedule")
	cfg.Bridge.FeedStatusTopic = getEnv("BRIDGE_FEED_STATUS_TOPIC", "aquarium/feed/status")

	cfg.Push.Enabled = boolFromEnv("PUSH_ENABLED", false)
	cfg.Push.URL = getEnv("PUSH_URL", "https://exp.host/--/api/v2/push/send")
	cfg.Push.Tokens = listFromEnv("PUSH_TOKENS", nil)
	cfg.Push.Timeout = durationFromEnv("PUSH_TIMEOUT", 10*time.Second)

	cfg.Simulator.Interval = durationFromEnv("SIMULATOR_INTERVAL", 5*time.Second)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intFromEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func floatFromEnv(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return f
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func boolFromEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return b
}

func listFromEnv(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
