package config

import (
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	Env                          string
	DatabaseURL                  string
	DiscordToken                 string
	DiscordGuildID               string
	DiscordImplicitVoiceSessions bool
	SessionWebhookURL            string
	HTTPAddr                     string
	ShutdownTimeoutSec           int
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.ShutdownTimeoutSec <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT_SEC must be positive, got %d", c.ShutdownTimeoutSec)
	}
	if c.SessionWebhookURL != "" {
		u, err := url.Parse(c.SessionWebhookURL)
		if err != nil {
			return fmt.Errorf("SESSION_WEBHOOK_URL is invalid: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("SESSION_WEBHOOK_URL must use http or https, got %q", u.Scheme)
		}
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "DISCORD_TOKEN", value: c.DiscordToken},
		{name: "DISCORD_GUILD_ID", value: c.DiscordGuildID},
		{name: "HTTP_ADDR", value: c.HTTPAddr},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}
