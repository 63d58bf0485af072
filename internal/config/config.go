package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the complete configuration for the statusdeck service.
type Config struct {
	Environment string         `mapstructure:"environment"`
	Port        string         `mapstructure:"port"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Auth        AuthConfig     `mapstructure:"auth"`
	Webhooks    WebhookConfig  `mapstructure:"webhooks"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig configures the optional entity-status mirror. An empty
// address disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Domain    string `mapstructure:"domain"`
}

// WebhookConfig configures the optional incident notification webhooks.
type WebhookConfig struct {
	DiscordURL string `mapstructure:"discord_url"`
	SlackURL   string `mapstructure:"slack_url"`
}

// Load reads configuration from the environment. godotenv has already
// populated it from .env when present.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("environment", "development")
	v.SetDefault("port", "3000")
	v.SetDefault("redis_db", 0)

	cfg := &Config{
		Environment: v.GetString("environment"),
		Port:        v.GetString("port"),
		Database: DatabaseConfig{
			DSN: v.GetString("database_url"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis_addr"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("jwt_secret"),
			Domain:    v.GetString("domain"),
		},
		Webhooks: WebhookConfig{
			DiscordURL: v.GetString("discord_webhook_url"),
			SlackURL:   v.GetString("slack_webhook_url"),
		},
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}
