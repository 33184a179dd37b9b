package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable override, e.g. LIGHTHOUSE_SSH_USER.
const EnvPrefix = "LIGHTHOUSE"

type Config struct {
	Infrastructure string   `mapstructure:"infrastructure"`
	Hosts          []string `mapstructure:"hosts"`
	Parallel       bool     `mapstructure:"parallel"`
	PoolSize       int      `mapstructure:"pool_size"`
	Registry       string   `mapstructure:"registry"`
	HostRegistry   string   `mapstructure:"host_registry"`
	Manifest       string   `mapstructure:"manifest"`
	// Local runs the host commands on this machine instead of over SSH.
	Local  bool   `mapstructure:"local"`
	SSH    SSH    `mapstructure:"ssh"`
	Docker Docker `mapstructure:"docker"`
	Log    Log    `mapstructure:"log"`
	API    API    `mapstructure:"api"`
}

type SSH struct {
	User         string        `mapstructure:"user"`
	Port         int           `mapstructure:"port"`
	KeyFile      string        `mapstructure:"key_file"`
	KnownHosts   string        `mapstructure:"known_hosts"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SudoPassword string        `mapstructure:"sudo_password"`
}

// Docker holds the registry credentials of the controlling machine.
type Docker struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

type API struct {
	Listen string `mapstructure:"listen"`
}

var defaults = map[string]any{
	"infrastructure":    "default",
	"hosts":             []string{},
	"parallel":          false,
	"pool_size":         0,
	"registry":          "",
	"host_registry":     "",
	"manifest":          "lighthouse.manifest.yml",
	"local":             false,
	"ssh.user":          "",
	"ssh.port":          22,
	"ssh.key_file":      "",
	"ssh.known_hosts":   "",
	"ssh.timeout":       "10s",
	"ssh.sudo_password": "",
	"docker.username":   "",
	"docker.password":   "",
	"log.level":         "info",
	"log.format":        "console",
	"api.listen":        ":3000",
}

// Setup registers defaults and environment overrides on v.
// Every key gets a default so that environment variables alone are enough to set it.
func Setup(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.PoolSize < 0 {
		return fmt.Errorf("pool_size must not be negative, got %d", c.PoolSize)
	}
	if c.SSH.Port <= 0 || c.SSH.Port > 65535 {
		return fmt.Errorf("ssh.port out of range: %d", c.SSH.Port)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}
