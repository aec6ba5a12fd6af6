package config

import (
	"os"
	"strings"
	"time"
)

// RegistryConfig points at the service registry's configuration store
type RegistryConfig struct {
	Address    string        `yaml:"address"` // host:port, first entry wins when a list is given
	Namespace  string        `yaml:"namespace"`
	Group      string        `yaml:"group"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	ConfigKeys []string      `yaml:"config_keys"` // Data ids tried in order for the sink document
	Timeout    time.Duration `yaml:"timeout"`
}

// SetDefaults sets reasonable default values for the registry client
func (c *RegistryConfig) SetDefaults() {
	if c.Group == "" {
		c.Group = "DEFAULT_GROUP"
	}
	if len(c.ConfigKeys) == 0 {
		c.ConfigKeys = []string{"tls.log.config", "volcengine.json"}
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if i := strings.IndexByte(c.Address, ','); i >= 0 {
		c.Address = strings.TrimSpace(c.Address[:i])
	}
}

// ApplyEnv overlays NACOS_* environment variables on unset fields
func (c *RegistryConfig) ApplyEnv() {
	if c.Address == "" {
		c.Address = firstEnv("NACOS_ADDRESS", "NACOS_SERVER_ADDRESSES")
	}
	if c.Namespace == "" {
		c.Namespace = os.Getenv("NACOS_NAMESPACE")
	}
	if c.Username == "" {
		c.Username = os.Getenv("NACOS_USERNAME")
	}
	if c.Password == "" {
		c.Password = os.Getenv("NACOS_PASSWORD")
	}
}

// Enabled reports whether a registry address is configured
func (c *RegistryConfig) Enabled() bool {
	return strings.TrimSpace(c.Address) != ""
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
