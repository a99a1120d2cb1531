package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
)

// DatabaseConfig Postgres connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// RedisConfig Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT broker settings
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// GetDSN builds the lib/pq connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// envPrefix reads <prefix>_<NAME> variables; unset, empty or unparsable values
// leave the target untouched
type envPrefix string

func (p envPrefix) lookup(name string) (string, bool) {
	v := os.Getenv(string(p) + "_" + name)
	return v, v != ""
}

func (p envPrefix) str(name string, dst *string) {
	if v, ok := p.lookup(name); ok {
		*dst = v
	}
}

func (p envPrefix) intIn(name string, lo, hi int, dst *int) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return
	}
	*dst = n
}

// LoadFromEnv overrides fields from <prefix>_HOST, _PORT, _USER, _PASSWORD,
// _NAME, _SSLMODE, _MAX_CONNS and _MAX_IDLE
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	env := envPrefix(prefix)
	env.str("HOST", &c.Host)
	env.intIn("PORT", 1, 65535, &c.Port)
	env.str("USER", &c.User)
	env.str("PASSWORD", &c.Password)
	env.str("NAME", &c.Database)
	env.str("SSLMODE", &c.SSLMode)
	env.intIn("MAX_CONNS", 0, math.MaxInt, &c.MaxConns)
	env.intIn("MAX_IDLE", 0, math.MaxInt, &c.MaxIdle)
}

// LoadFromEnv overrides fields from <prefix>_ADDR, _PASSWORD and _DB
func (c *RedisConfig) LoadFromEnv(prefix string) {
	env := envPrefix(prefix)
	env.str("ADDR", &c.Addr)
	env.str("PASSWORD", &c.Password)
	env.intIn("DB", 0, math.MaxInt, &c.DB)
}

// LoadFromEnv overrides fields from <prefix>_BROKER, _CLIENT_ID, _USERNAME,
// _PASSWORD and _QOS; a QoS outside 0..2 is ignored
func (c *MQTTConfig) LoadFromEnv(prefix string) {
	env := envPrefix(prefix)
	env.str("BROKER", &c.Broker)
	env.str("CLIENT_ID", &c.ClientID)
	env.str("USERNAME", &c.Username)
	env.str("PASSWORD", &c.Password)

	qos := int(c.QoS)
	env.intIn("QOS", 0, 2, &qos)
	c.QoS = byte(qos)
}
