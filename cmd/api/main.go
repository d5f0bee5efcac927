package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/vadim/tutor-support/internal/app"
	"github.com/vadim/tutor-support/internal/config"
)

const devJWTSecret = "dev-secret"

func main() {
	cfg := config.MustLoad()

	log.Printf("support-messaging api on %s, optional backends: %s", cfg.Server.Address(), describeBackends(cfg))
	if cfg.Auth.JWTSecret == devJWTSecret {
		log.Printf("warning: JWT_SECRET is the development default")
	}

	ctx := context.Background()

	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize support-messaging api: %v", err)
	}

	// blocks until shutdown
	if err := application.Run(ctx); err != nil {
		log.Printf("support-messaging api error: %v", err)
		os.Exit(1)
	}
}

// enabledBackends lists the optional infrastructure the config switches on
func enabledBackends(cfg config.Config) []string {
	var out []string
	if cfg.Redis.Addr != "" {
		out = append(out, "redis rate limit")
	}
	if cfg.Kafka.Brokers != "" {
		out = append(out, "kafka events ("+cfg.Kafka.Topic+")")
	}
	if cfg.S3.Enabled {
		out = append(out, "s3 transcript archive ("+cfg.S3.Bucket+")")
	}
	return out
}

func describeBackends(cfg config.Config) string {
	b := enabledBackends(cfg)
	if len(b) == 0 {
		return "none"
	}
	return strings.Join(b, ", ")
}
