// Package config loads the agent configuration from environment variables
// and validates it before anything is started.
//
// Environment Variables:
//
// Account:
//   - TEALIUM_ACCOUNT, TEALIUM_PROFILE: account identity (required)
//   - TEALIUM_ENVIRONMENT: environment name (default: prod)
//   - DATASOURCE: data source key
//
// Library settings:
//   - USE_REMOTE_SETTINGS: fetch the remote settings document (default: false)
//   - SETTINGS_URL: remote document URL (default: published page for the account)
//   - SETTINGS_ASSET_PATH: bundled settings document
//
// Storage:
//   - STORAGE_TYPE: sqlite, memory or redis (default: sqlite)
//   - DATABASE_PATH: SQLite database file (default: ./analytics.db)
//   - REDIS_ADDRESS, REDIS_PASSWORD, REDIS_DB: Redis connection
//
// Dispatchers:
//   - DISPATCHERS: comma separated dispatcher names (default: collect)
//   - COLLECT_URL, COLLECT_BATCH_URL, COLLECT_DOMAIN, COLLECT_PROFILE, COLLECT_RATE_LIMIT
//   - REDIS_STREAM, REDIS_STREAM_MAX_LEN
//   - KAFKA_BROKERS (comma separated), KAFKA_TOPIC
//   - MQTT_BROKER_URL, MQTT_TOPIC, MQTT_CLIENT_ID, MQTT_QOS
//
// Identity and consent:
//   - VISITOR_IDENTITY_KEY, EXISTING_VISITOR_ID
//   - CONSENT_POLICY: gdpr, ccpa or empty for none
//   - CONSENT_LOGGING_URL, CONSENT_EXPIRY
//
// Agent:
//   - LOW_BATTERY_THRESHOLD: battery percentage treated as low (default: 15)
//   - PURGE_INTERVAL: expired queue purge period (default: 1h)
//   - PORT: HTTP port (default: 8080)
//   - LOG_LEVEL: debug, info, warn or error (default: info)
//   - SHUTDOWN_TIMEOUT: graceful shutdown budget (default: 10s)
//   - INGEST_RATE_LIMIT, INGEST_RATE_BURST: per-client request limit (default: off)
//   - CONNECTIVITY_PROBE: host:port dialed to detect connectivity (default: always connected)
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"analytics-sdk/internal/common/validation"
)

// Config holds all configuration values for the analytics agent.
type Config struct {
	Account     string `env:"TEALIUM_ACCOUNT" validate:"required"`
	Profile     string `env:"TEALIUM_PROFILE" validate:"required"`
	Environment string `env:"TEALIUM_ENVIRONMENT" validate:"required"`
	DataSource  string `env:"DATASOURCE" validate:"omitempty,max=6"`

	UseRemoteSettings bool   `env:"USE_REMOTE_SETTINGS"`
	SettingsURL       string `env:"SETTINGS_URL" validate:"omitempty,url"`
	SettingsAssetPath string `env:"SETTINGS_ASSET_PATH"`

	StorageType   string `env:"STORAGE_TYPE" validate:"required,oneof=sqlite memory redis"`
	DatabasePath  string `env:"DATABASE_PATH"`
	RedisAddress  string `env:"REDIS_ADDRESS" validate:"omitempty,hostname_port"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" validate:"min=0,max=15"`

	Dispatchers       []string `env:"DISPATCHERS" validate:"dive,dispatcher_name"`
	CollectURL        string   `env:"COLLECT_URL" validate:"omitempty,url"`
	CollectBatchURL   string   `env:"COLLECT_BATCH_URL" validate:"omitempty,url"`
	CollectDomain     string   `env:"COLLECT_DOMAIN" validate:"omitempty,hostname"`
	CollectProfile    string   `env:"COLLECT_PROFILE"`
	CollectRateLimit  float64  `env:"COLLECT_RATE_LIMIT" validate:"min=0"`
	RedisStream       string   `env:"REDIS_STREAM"`
	RedisStreamMaxLen int64    `env:"REDIS_STREAM_MAX_LEN" validate:"min=0"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" validate:"dive,hostname_port"`
	KafkaTopic        string   `env:"KAFKA_TOPIC"`
	MQTTBrokerURL     string   `env:"MQTT_BROKER_URL" validate:"omitempty,url"`
	MQTTTopic         string   `env:"MQTT_TOPIC"`
	MQTTClientID      string   `env:"MQTT_CLIENT_ID"`
	MQTTQoS           int      `env:"MQTT_QOS" validate:"min=0,max=2"`

	VisitorIdentityKey string        `env:"VISITOR_IDENTITY_KEY"`
	ExistingVisitorID  string        `env:"EXISTING_VISITOR_ID"`
	ConsentPolicy      string        `env:"CONSENT_POLICY" validate:"omitempty,oneof=gdpr ccpa"`
	ConsentLoggingURL  string        `env:"CONSENT_LOGGING_URL" validate:"omitempty,url"`
	ConsentExpiry      time.Duration `env:"CONSENT_EXPIRY" validate:"min=0"`

	LowBatteryThreshold int           `env:"LOW_BATTERY_THRESHOLD" validate:"min=0,max=100"`
	PurgeInterval       time.Duration `env:"PURGE_INTERVAL" validate:"min=1s"`
	Port                string        `env:"PORT" validate:"required,numeric"`
	LogLevel            string        `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" validate:"min=1s"`
	IngestRateLimit     float64       `env:"INGEST_RATE_LIMIT" validate:"min=0"`
	IngestRateBurst     int           `env:"INGEST_RATE_BURST" validate:"min=0"`
	ConnectivityProbe   string        `env:"CONNECTIVITY_PROBE" validate:"omitempty,hostname_port"`
}

// Load creates a Config from environment variables. Unset or unparsable
// variables take their defaults. Call Validate before use.
func Load() *Config {
	return &Config{
		Account:     getEnv("TEALIUM_ACCOUNT", ""),
		Profile:     getEnv("TEALIUM_PROFILE", ""),
		Environment: getEnv("TEALIUM_ENVIRONMENT", "prod"),
		DataSource:  getEnv("DATASOURCE", ""),

		UseRemoteSettings: getBoolEnv("USE_REMOTE_SETTINGS", false),
		SettingsURL:       getEnv("SETTINGS_URL", ""),
		SettingsAssetPath: getEnv("SETTINGS_ASSET_PATH", ""),

		StorageType:   strings.ToLower(getEnv("STORAGE_TYPE", "sqlite")),
		DatabasePath:  getEnv("DATABASE_PATH", "./analytics.db"),
		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		Dispatchers:       getListEnv("DISPATCHERS", []string{"collect"}),
		CollectURL:        getEnv("COLLECT_URL", ""),
		CollectBatchURL:   getEnv("COLLECT_BATCH_URL", ""),
		CollectDomain:     getEnv("COLLECT_DOMAIN", ""),
		CollectProfile:    getEnv("COLLECT_PROFILE", ""),
		CollectRateLimit:  getFloatEnv("COLLECT_RATE_LIMIT", 0),
		RedisStream:       getEnv("REDIS_STREAM", ""),
		RedisStreamMaxLen: int64(getIntEnv("REDIS_STREAM_MAX_LEN", 0)),
		KafkaBrokers:      getListEnv("KAFKA_BROKERS", nil),
		KafkaTopic:        getEnv("KAFKA_TOPIC", ""),
		MQTTBrokerURL:     getEnv("MQTT_BROKER_URL", ""),
		MQTTTopic:         getEnv("MQTT_TOPIC", ""),
		MQTTClientID:      getEnv("MQTT_CLIENT_ID", ""),
		MQTTQoS:           getIntEnv("MQTT_QOS", 0),

		VisitorIdentityKey: getEnv("VISITOR_IDENTITY_KEY", ""),
		ExistingVisitorID:  getEnv("EXISTING_VISITOR_ID", ""),
		ConsentPolicy:      strings.ToLower(getEnv("CONSENT_POLICY", "")),
		ConsentLoggingURL:  getEnv("CONSENT_LOGGING_URL", ""),
		ConsentExpiry:      getDurationEnv("CONSENT_EXPIRY", 0),

		LowBatteryThreshold: getIntEnv("LOW_BATTERY_THRESHOLD", 15),
		PurgeInterval:       getDurationEnv("PURGE_INTERVAL", time.Hour),
		Port:                getEnv("PORT", "8080"),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		ShutdownTimeout:     getDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second),
		IngestRateLimit:     getFloatEnv("INGEST_RATE_LIMIT", 0),
		IngestRateBurst:     getIntEnv("INGEST_RATE_BURST", 0),
		ConnectivityProbe:   getEnv("CONNECTIVITY_PROBE", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getListEnv splits a comma separated variable, dropping blank entries.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// HasDispatcher reports whether name is among the configured dispatchers.
func (c *Config) HasDispatcher(name string) bool {
	for _, d := range c.Dispatchers {
		if d == name {
			return true
		}
	}
	return false
}

// Validate checks field formats with struct tags, then the dependencies
// between fields.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	needsRedis := c.StorageType == "redis" || c.HasDispatcher("redisstream")
	return validation.NewFluentValidatorWithPrefix("config").
		ValidateIf(c.StorageType == "sqlite", func() error {
			if c.DatabasePath == "" {
				return fmt.Errorf("DATABASE_PATH is required when STORAGE_TYPE is sqlite")
			}
			return nil
		}).
		ValidateIf(needsRedis, func() error {
			if c.RedisAddress == "" {
				return fmt.Errorf("REDIS_ADDRESS is required for redis storage or the redisstream dispatcher")
			}
			return nil
		}).
		ValidateIf(c.HasDispatcher("kafka"), func() error {
			if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
				return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC are required for the kafka dispatcher")
			}
			return nil
		}).
		ValidateIf(c.HasDispatcher("mqtt"), func() error {
			if c.MQTTBrokerURL == "" || c.MQTTTopic == "" {
				return fmt.Errorf("MQTT_BROKER_URL and MQTT_TOPIC are required for the mqtt dispatcher")
			}
			return nil
		}).
		ValidateIf(c.ConsentLoggingURL != "", func() error {
			if c.ConsentPolicy == "" {
				return fmt.Errorf("CONSENT_LOGGING_URL requires CONSENT_POLICY")
			}
			return nil
		}).
		Error()
}
