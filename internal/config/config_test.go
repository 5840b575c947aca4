package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

var testEnvKeys = []string{
	"TEALIUM_ACCOUNT", "TEALIUM_PROFILE", "TEALIUM_ENVIRONMENT", "DATASOURCE",
	"USE_REMOTE_SETTINGS", "SETTINGS_URL", "SETTINGS_ASSET_PATH",
	"STORAGE_TYPE", "DATABASE_PATH", "REDIS_ADDRESS", "REDIS_PASSWORD", "REDIS_DB",
	"DISPATCHERS", "COLLECT_URL", "COLLECT_BATCH_URL", "COLLECT_DOMAIN", "COLLECT_PROFILE",
	"COLLECT_RATE_LIMIT", "REDIS_STREAM", "REDIS_STREAM_MAX_LEN", "KAFKA_BROKERS", "KAFKA_TOPIC",
	"MQTT_BROKER_URL", "MQTT_TOPIC", "MQTT_CLIENT_ID", "MQTT_QOS",
	"VISITOR_IDENTITY_KEY", "EXISTING_VISITOR_ID", "CONSENT_POLICY", "CONSENT_LOGGING_URL",
	"CONSENT_EXPIRY", "LOW_BATTERY_THRESHOLD", "PURGE_INTERVAL", "PORT", "LOG_LEVEL",
	"SHUTDOWN_TIMEOUT", "INGEST_RATE_LIMIT", "INGEST_RATE_BURST", "CONNECTIVITY_PROBE",
}

func clearTestEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range testEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	clearTestEnvVars(t)

	config := Load()

	if config.Environment != "prod" {
		t.Errorf("Load() Environment = %v, want %v", config.Environment, "prod")
	}
	if config.StorageType != "sqlite" {
		t.Errorf("Load() StorageType = %v, want %v", config.StorageType, "sqlite")
	}
	if config.DatabasePath != "./analytics.db" {
		t.Errorf("Load() DatabasePath = %v, want %v", config.DatabasePath, "./analytics.db")
	}
	if !reflect.DeepEqual(config.Dispatchers, []string{"collect"}) {
		t.Errorf("Load() Dispatchers = %v, want [collect]", config.Dispatchers)
	}
	if config.UseRemoteSettings {
		t.Errorf("Load() UseRemoteSettings = true, want false")
	}
	if config.LowBatteryThreshold != 15 {
		t.Errorf("Load() LowBatteryThreshold = %v, want 15", config.LowBatteryThreshold)
	}
	if config.PurgeInterval != time.Hour {
		t.Errorf("Load() PurgeInterval = %v, want 1h", config.PurgeInterval)
	}
	if config.Port != "8080" {
		t.Errorf("Load() Port = %v, want %v", config.Port, "8080")
	}
	if config.LogLevel != "info" {
		t.Errorf("Load() LogLevel = %v, want %v", config.LogLevel, "info")
	}
	if config.ShutdownTimeout != 10*time.Second {
		t.Errorf("Load() ShutdownTimeout = %v, want 10s", config.ShutdownTimeout)
	}
	if config.ConsentPolicy != "" {
		t.Errorf("Load() ConsentPolicy = %v, want empty", config.ConsentPolicy)
	}
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	clearTestEnvVars(t)
	envVars := map[string]string{
		"TEALIUM_ACCOUNT":       "acct",
		"TEALIUM_PROFILE":       "main",
		"TEALIUM_ENVIRONMENT":   "dev",
		"USE_REMOTE_SETTINGS":   "true",
		"STORAGE_TYPE":          "Redis",
		"REDIS_ADDRESS":         "redis:6379",
		"REDIS_DB":              "2",
		"DISPATCHERS":           "collect, kafka,,mqtt",
		"COLLECT_RATE_LIMIT":    "2.5",
		"KAFKA_BROKERS":         "k1:9092,k2:9092",
		"KAFKA_TOPIC":           "events",
		"MQTT_QOS":              "1",
		"CONSENT_POLICY":        "GDPR",
		"CONSENT_EXPIRY":        "720h",
		"LOW_BATTERY_THRESHOLD": "20",
		"PURGE_INTERVAL":        "15m",
		"LOG_LEVEL":             "DEBUG",
		"INGEST_RATE_LIMIT":     "50",
		"CONNECTIVITY_PROBE":    "collect.tealiumiq.com:443",
	}
	for k, v := range envVars {
		t.Setenv(k, v)
	}

	config := Load()

	if config.Environment != "dev" {
		t.Errorf("Load() Environment = %v, want dev", config.Environment)
	}
	if !config.UseRemoteSettings {
		t.Errorf("Load() UseRemoteSettings = false, want true")
	}
	if config.StorageType != "redis" {
		t.Errorf("Load() StorageType = %v, want redis", config.StorageType)
	}
	if config.RedisDB != 2 {
		t.Errorf("Load() RedisDB = %v, want 2", config.RedisDB)
	}
	if !reflect.DeepEqual(config.Dispatchers, []string{"collect", "kafka", "mqtt"}) {
		t.Errorf("Load() Dispatchers = %v", config.Dispatchers)
	}
	if config.CollectRateLimit != 2.5 {
		t.Errorf("Load() CollectRateLimit = %v, want 2.5", config.CollectRateLimit)
	}
	if !reflect.DeepEqual(config.KafkaBrokers, []string{"k1:9092", "k2:9092"}) {
		t.Errorf("Load() KafkaBrokers = %v", config.KafkaBrokers)
	}
	if config.MQTTQoS != 1 {
		t.Errorf("Load() MQTTQoS = %v, want 1", config.MQTTQoS)
	}
	if config.ConsentPolicy != "gdpr" {
		t.Errorf("Load() ConsentPolicy = %v, want gdpr", config.ConsentPolicy)
	}
	if config.ConsentExpiry != 720*time.Hour {
		t.Errorf("Load() ConsentExpiry = %v, want 720h", config.ConsentExpiry)
	}
	if config.LowBatteryThreshold != 20 {
		t.Errorf("Load() LowBatteryThreshold = %v, want 20", config.LowBatteryThreshold)
	}
	if config.PurgeInterval != 15*time.Minute {
		t.Errorf("Load() PurgeInterval = %v, want 15m", config.PurgeInterval)
	}
	if config.LogLevel != "debug" {
		t.Errorf("Load() LogLevel = %v, want debug", config.LogLevel)
	}
	if config.IngestRateLimit != 50 {
		t.Errorf("Load() IngestRateLimit = %v, want 50", config.IngestRateLimit)
	}
	if config.ConnectivityProbe != "collect.tealiumiq.com:443" {
		t.Errorf("Load() ConnectivityProbe = %v", config.ConnectivityProbe)
	}
}

func TestLoadIgnoresUnparsableValues(t *testing.T) {
	clearTestEnvVars(t)
	t.Setenv("REDIS_DB", "two")
	t.Setenv("USE_REMOTE_SETTINGS", "maybe")
	t.Setenv("PURGE_INTERVAL", "hourly")

	config := Load()
	if config.RedisDB != 0 || config.UseRemoteSettings || config.PurgeInterval != time.Hour {
		t.Errorf("Load() = %+v, want defaults for unparsable values", config)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		envValue     string
		defaultValue string
		expected     string
	}{
		{"environment variable exists", "TEST_KEY_EXISTS", "test-value", "default-value", "test-value"},
		{"environment variable blank", "TEST_KEY_BLANK", "   ", "default-value", "default-value"},
		{"environment variable not set", "TEST_KEY_NOT_SET", "", "default-value", "default-value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			} else {
				os.Unsetenv(tt.key)
			}

			if result := getEnv(tt.key, tt.defaultValue); result != tt.expected {
				t.Errorf("getEnv(%q, %q) = %q, want %q", tt.key, tt.defaultValue, result, tt.expected)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Account:             "acct",
		Profile:             "main",
		Environment:         "prod",
		StorageType:         "sqlite",
		DatabasePath:        "./analytics.db",
		Dispatchers:         []string{"collect"},
		LowBatteryThreshold: 15,
		PurgeInterval:       time.Hour,
		Port:                "8080",
		LogLevel:            "info",
		ShutdownTimeout:     10 * time.Second,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(c *Config)
		wantError     bool
		errorContains string
	}{
		{name: "valid minimal config", mutate: func(c *Config) {}},
		{
			name: "valid full config",
			mutate: func(c *Config) {
				c.StorageType = "redis"
				c.RedisAddress = "localhost:6379"
				c.Dispatchers = []string{"collect", "redisstream", "kafka", "mqtt"}
				c.KafkaBrokers = []string{"localhost:9092"}
				c.KafkaTopic = "events"
				c.MQTTBrokerURL = "tcp://localhost:1883"
				c.MQTTTopic = "analytics/events"
				c.ConsentPolicy = "gdpr"
				c.ConsentLoggingURL = "https://collect.example.com/consent"
				c.CollectDomain = "collect.example.com"
			},
		},
		{
			name:          "missing account",
			mutate:        func(c *Config) { c.Account = "" },
			wantError:     true,
			errorContains: "TEALIUM_ACCOUNT",
		},
		{
			name:          "unknown storage type",
			mutate:        func(c *Config) { c.StorageType = "postgres" },
			wantError:     true,
			errorContains: "STORAGE_TYPE",
		},
		{
			name:          "invalid dispatcher name",
			mutate:        func(c *Config) { c.Dispatchers = []string{"Collect"} },
			wantError:     true,
			errorContains: "dispatcher name",
		},
		{
			name:          "invalid port",
			mutate:        func(c *Config) { c.Port = "http" },
			wantError:     true,
			errorContains: "PORT",
		},
		{
			name:          "battery threshold out of range",
			mutate:        func(c *Config) { c.LowBatteryThreshold = 101 },
			wantError:     true,
			errorContains: "LOW_BATTERY_THRESHOLD",
		},
		{
			name:          "unknown consent policy",
			mutate:        func(c *Config) { c.ConsentPolicy = "lgpd" },
			wantError:     true,
			errorContains: "CONSENT_POLICY",
		},
		{
			name:          "sqlite without path",
			mutate:        func(c *Config) { c.DatabasePath = "" },
			wantError:     true,
			errorContains: "DATABASE_PATH is required",
		},
		{
			name:          "redis storage without address",
			mutate:        func(c *Config) { c.StorageType = "redis" },
			wantError:     true,
			errorContains: "REDIS_ADDRESS is required",
		},
		{
			name:          "redisstream without address",
			mutate:        func(c *Config) { c.Dispatchers = []string{"redisstream"} },
			wantError:     true,
			errorContains: "REDIS_ADDRESS is required",
		},
		{
			name:          "kafka without topic",
			mutate:        func(c *Config) { c.Dispatchers = []string{"kafka"}; c.KafkaBrokers = []string{"k:9092"} },
			wantError:     true,
			errorContains: "KAFKA_TOPIC",
		},
		{
			name:          "mqtt without broker",
			mutate:        func(c *Config) { c.Dispatchers = []string{"mqtt"}; c.MQTTTopic = "t" },
			wantError:     true,
			errorContains: "MQTT_BROKER_URL",
		},
		{
			name:          "consent logging without policy",
			mutate:        func(c *Config) { c.ConsentLoggingURL = "https://example.com/log" },
			wantError:     true,
			errorContains: "CONSENT_LOGGING_URL requires CONSENT_POLICY",
		},
		{
			name:          "purge interval too short",
			mutate:        func(c *Config) { c.PurgeInterval = time.Millisecond },
			wantError:     true,
			errorContains: "PURGE_INTERVAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)
			err := config.Validate()

			if tt.wantError {
				if err == nil {
					t.Fatalf("Validate() error = nil, want error containing %q", tt.errorContains)
				}
				if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.errorContains)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func BenchmarkConfig_Validate(b *testing.B) {
	config := validConfig()
	for i := 0; i < b.N; i++ {
		_ = config.Validate()
	}
}
