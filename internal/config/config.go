// Package config loads service configuration from config.yml and
// SIGNALHUB_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kbukum/signalhub/internal/artifact"
	"github.com/kbukum/signalhub/internal/calendar"
	"github.com/kbukum/signalhub/internal/delivery"
	"github.com/kbukum/signalhub/internal/flight"
	"github.com/kbukum/signalhub/internal/inbox"
	"github.com/kbukum/signalhub/internal/kvstore"
	"github.com/kbukum/signalhub/internal/logger"
	"github.com/kbukum/signalhub/internal/notify"
	"github.com/kbukum/signalhub/internal/server"
)

// Config is the root service configuration. Every section owns its
// ApplyDefaults/Validate pair; this struct wires them together.
type Config struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Environment string `yaml:"environment" mapstructure:"environment"`
	Version     string `yaml:"version" mapstructure:"version"`

	Logging  logger.Config   `yaml:"logging" mapstructure:"logging"`
	Server   server.Config   `yaml:"server" mapstructure:"server"`
	Store    kvstore.Config  `yaml:"kvstore" mapstructure:"kvstore"`
	Notify   notify.Config   `yaml:"notify" mapstructure:"notify"`
	Delivery delivery.Config `yaml:"delivery" mapstructure:"delivery"`
	Flight   flight.Config   `yaml:"flight" mapstructure:"flight"`
	Artifact artifact.Config `yaml:"artifact" mapstructure:"artifact"`
	Calendar calendar.Config `yaml:"calendar" mapstructure:"calendar"`
	Inbox    inbox.Config    `yaml:"inbox" mapstructure:"inbox"`
}

// ApplyDefaults applies default values to all sections.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "signalhub"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	c.Logging.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Store.ApplyDefaults()
	c.Notify.ApplyDefaults()
	c.Delivery.ApplyDefaults()
	c.Flight.ApplyDefaults()
	c.Artifact.ApplyDefaults()
	c.Calendar.ApplyDefaults()
	c.Inbox.ApplyDefaults()
}

// Validate validates all sections.
func (c *Config) Validate() error {
	validEnvs := []string{"development", "staging", "production"}
	found := false
	for _, v := range validEnvs {
		if c.Environment == v {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("environment must be one of %v (got: %s)", validEnvs, c.Environment)
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Notify.Validate(); err != nil {
		return err
	}
	if err := c.Delivery.Validate(); err != nil {
		return err
	}
	if err := c.Flight.Validate(); err != nil {
		return err
	}
	if err := c.Artifact.Validate(); err != nil {
		return err
	}
	return c.Calendar.Validate()
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// envKeys are configuration paths commonly supplied through the environment
// (secrets and deployment-specific settings). Viper only honors env
// overrides for keys it knows about, so they are bound explicitly.
var envKeys = []string{
	"environment",
	"server.port",
	"logging.level",
	"logging.format",
	"kvstore.redis.enabled",
	"kvstore.redis.addr",
	"kvstore.redis.password",
	"notify.base_url",
	"notify.post.app_id",
	"notify.post.api_key",
	"notify.demo.app_id",
	"notify.demo.api_key",
	"notify.air.app_id",
	"notify.air.api_key",
	"inbox.enabled",
	"inbox.path",
}

// Load reads configuration from the given file (or the default search
// locations when path is empty), layers SIGNALHUB_* environment variables on
// top, and validates the result. A .env file in the working directory is
// loaded first for local development.
func Load(path string) (*Config, error) {
	// Best effort: absence of .env is the normal production case.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SIGNALHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			// Config file is optional; env and defaults carry a dev setup.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
