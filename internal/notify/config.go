package notify

import (
	"fmt"
	"time"
)

// AppCredentials identifies one OneSignal application.
type AppCredentials struct {
	AppID  string `yaml:"app_id" mapstructure:"app_id"`
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// Templates maps notification intents to provider template IDs.
type Templates struct {
	SMSOTP         string `yaml:"sms_otp" mapstructure:"sms_otp"`
	DeliveryPickup string `yaml:"delivery_pickup" mapstructure:"delivery_pickup"`
	InTransit      string `yaml:"in_transit" mapstructure:"in_transit"`
	Delivered      string `yaml:"delivered" mapstructure:"delivered"`
}

// Config holds OneSignal client configuration.
type Config struct {
	// BaseURL is the provider API root. Tests point this at a local server.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Timeout bounds each request (e.g. "10s").
	Timeout string `yaml:"timeout" mapstructure:"timeout"`

	// Post, Demo, and Air are the provider applications for delivery pushes,
	// SMS OTPs, and flight live activities respectively.
	Post AppCredentials `yaml:"post" mapstructure:"post"`
	Demo AppCredentials `yaml:"demo" mapstructure:"demo"`
	Air  AppCredentials `yaml:"air" mapstructure:"air"`

	// Templates are the provider template IDs.
	Templates Templates `yaml:"templates" mapstructure:"templates"`

	// RetryAttempts is the total number of attempts per request. Values
	// below 2 disable client-level retry; sequences never retry on their own.
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.onesignal.com"
	}
	if c.Timeout == "" {
		c.Timeout = "10s"
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 1
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("notify.timeout: %w", err)
	}
	return nil
}

// credentials returns the credentials for an app environment.
func (c *Config) credentials(app string) (AppCredentials, error) {
	switch app {
	case AppPost:
		return c.Post, nil
	case AppDemo:
		return c.Demo, nil
	case AppAir:
		return c.Air, nil
	default:
		return AppCredentials{}, fmt.Errorf("unknown notify app %q", app)
	}
}
