package config

import "fmt"

// DatabaseConfig tunes the Postgres transport. The DSN is the sink endpoint
// itself; this only shapes the pool and names the destination table.
type DatabaseConfig struct {
	Table          string `yaml:"table" json:"table"`
	MaxConnections int    `yaml:"max_connections" json:"max_connections"`
	MinConnections int    `yaml:"min_connections" json:"min_connections"`
	MaxIdleTime    string `yaml:"max_idle_time" json:"max_idle_time"` // e.g. "30m"
	MaxLifetime    string `yaml:"max_lifetime" json:"max_lifetime"`
}

// SetDefaults fills in the default table and pool bounds
func (c *DatabaseConfig) SetDefaults() {
	if c.Table == "" {
		c.Table = "shipped_logs"
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 4
	}
	if c.MinConnections <= 0 {
		c.MinConnections = 1
	}
	if c.MaxIdleTime == "" {
		c.MaxIdleTime = "1h"
	}
	if c.MaxLifetime == "" {
		c.MaxLifetime = "24h"
	}
}

// Validate rejects pool bounds pgxpool would not accept
func (c *DatabaseConfig) Validate() error {
	switch {
	case c.MaxConnections <= 0:
		return fmt.Errorf("remote.postgres.max_connections must be positive, got %d", c.MaxConnections)
	case c.MinConnections < 0:
		return fmt.Errorf("remote.postgres.min_connections must not be negative, got %d", c.MinConnections)
	case c.MinConnections > c.MaxConnections:
		return fmt.Errorf("remote.postgres.min_connections (%d) exceeds max_connections (%d)", c.MinConnections, c.MaxConnections)
	}
	return nil
}
