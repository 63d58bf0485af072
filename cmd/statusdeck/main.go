package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/statusdeck-dev/statusdeck/db"
	"github.com/statusdeck-dev/statusdeck/internal/auth"
	"github.com/statusdeck-dev/statusdeck/internal/cache"
	"github.com/statusdeck-dev/statusdeck/internal/config"
	"github.com/statusdeck-dev/statusdeck/internal/incidents"
	"github.com/statusdeck-dev/statusdeck/internal/notify"
	"github.com/statusdeck-dev/statusdeck/internal/router"
	"github.com/statusdeck-dev/statusdeck/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading configuration from environment")
	}

	cfg, err := config.Load()

	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := auth.InitJWTSecret(cfg.Auth.JWTSecret); err != nil {
		log.Fatalf("Failed to initialize JWT secret: %v", err)
	}

	if err := db.ConnectDatabase(cfg.Database.DSN); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.MigrateDatabase(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	service := incidents.NewService(store.New(db.DB), incidents.RoleAuthorizer{}, logger)

	if cfg.Redis.Addr != "" {
		statusCache, err := cache.NewStatusCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

		if err != nil {
			log.Printf("Redis unavailable, status mirroring disabled: %v", err)
		} else {
			service = service.WithMirror(statusCache)
			defer statusCache.Close()
		}
	}

	if cfg.Webhooks.DiscordURL != "" || cfg.Webhooks.SlackURL != "" {
		service = service.WithNotifier(notify.NewWebhook(cfg.Webhooks.DiscordURL, cfg.Webhooks.SlackURL, logger))
	}

	r := router.NewRouter(service)

	logger.Info("starting server", "port", cfg.Port, "environment", cfg.Environment)

	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
