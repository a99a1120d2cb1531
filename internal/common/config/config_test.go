package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.local")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "aquarium")

	cfg := DatabaseConfig{Host: "localhost", Port: 5432, SSLMode: "disable"}
	cfg.LoadFromEnv("DB")

	assert.Equal(t, "db.local", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "aquarium", cfg.Database)
	assert.Equal(t, "host=db.local port=6543 user= password= dbname=aquarium sslmode=disable", cfg.GetDSN())
}

func TestDatabaseConfig_LoadFromEnv_BadPortKeepsDefault(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-port")

	cfg := DatabaseConfig{Port: 5432}
	cfg.LoadFromEnv("DB")

	assert.Equal(t, 5432, cfg.Port)
}

func TestRedisConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "3")

	cfg := RedisConfig{Addr: "localhost:6379"}
	cfg.LoadFromEnv("REDIS")

	assert.Equal(t, "redis:6380", cfg.Addr)
	assert.Equal(t, 3, cfg.DB)
}

func TestMQTTConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_QOS", "2")

	cfg := MQTTConfig{QoS: 1}
	cfg.LoadFromEnv("MQTT")

	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, byte(2), cfg.QoS)

	t.Setenv("MQTT_QOS", "7")
	cfg.LoadFromEnv("MQTT")
	assert.Equal(t, byte(2), cfg.QoS)
}

func TestDatabaseConfig_LoadFromEnv_PoolAndRanges(t *testing.T) {
	t.Setenv("DB_PORT", "70000")
	t.Setenv("DB_MAX_CONNS", "20")
	t.Setenv("DB_MAX_IDLE", "-3")

	cfg := DatabaseConfig{Port: 5432, MaxConns: 10, MaxIdle: 5}
	cfg.LoadFromEnv("DB")

	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, 20, cfg.MaxConns)
	assert.Equal(t, 5, cfg.MaxIdle)
}

func TestLoadFromEnv_EmptyValuesKeepDefaults(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REDIS_DB", "")

	cfg := RedisConfig{Addr: "localhost:6379", DB: 1}
	cfg.LoadFromEnv("REDIS")

	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Equal(t, 1, cfg.DB)
}
