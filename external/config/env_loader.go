package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/eventsync/internal/config"
	"github.com/joho/godotenv"
)

type envConfig struct {
	Env                          string `env:"ENV" envDefault:"production"`
	DatabaseURL                  string `env:"DATABASE_URL,required"`
	DiscordToken                 string `env:"DISCORD_TOKEN,required"`
	DiscordGuildID               string `env:"DISCORD_GUILD_ID,required"`
	DiscordImplicitVoiceSessions bool   `env:"DISCORD_IMPLICIT_VOICE_SESSIONS" envDefault:"true"`
	SessionWebhookURL            string `env:"SESSION_WEBHOOK_URL"`
	HTTPAddr                     string `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeoutSec           int    `env:"SHUTDOWN_TIMEOUT_SEC" envDefault:"10"`
}

// Load reads an optional .env file from dotenvPaths (variables already set in the
// environment win) and then parses the environment.
func Load(dotenvPaths ...string) (*internalconfig.Config, error) {
	if err := loadDotenv(dotenvPaths); err != nil {
		return nil, err
	}

	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                          raw.Env,
		DatabaseURL:                  raw.DatabaseURL,
		DiscordToken:                 raw.DiscordToken,
		DiscordGuildID:               raw.DiscordGuildID,
		DiscordImplicitVoiceSessions: raw.DiscordImplicitVoiceSessions,
		SessionWebhookURL:            raw.SessionWebhookURL,
		HTTPAddr:                     raw.HTTPAddr,
		ShutdownTimeoutSec:           raw.ShutdownTimeoutSec,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotenv(paths []string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}
