package sqlite

import (
	"fmt"
	"time"
)

type Config struct {
	DatabasePath string
	BusyTimeout  time.Duration
}

func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("busy timeout must not be negative")
	}
	return nil
}

func (c *Config) GetType() string {
	return "sqlite"
}

func (c *Config) GetConnectionString() string {
	timeout := c.BusyTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return fmt.Sprintf("file:%s?_busy_timeout=%d", c.DatabasePath, timeout.Milliseconds())
}

func DefaultConfig() *Config {
	return &Config{
		DatabasePath: "./analytics.db",
	}
}
