package main

import (
	"errors"
	"log"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/vadim/tutor-support/internal/config"
)

func main() {
	cfg := config.MustLoad()

	if cfg.Database.PostgresDSN == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	m, err := migrate.New(cfg.Database.MigrationsPath, pgxURL(cfg.Database.PostgresDSN))
	if err != nil {
		log.Fatalf("failed to init migrations: %v", err)
	}
	defer m.Close()

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	default:
		log.Fatalf("unknown command %q, want up or down", cmd)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migration %s failed: %v", cmd, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		log.Fatalf("failed to read version: %v", err)
	}
	log.Printf("migration %s done (version %d, dirty %v)", cmd, version, dirty)
}

// pgxURL rewrites a postgres:// DSN to the scheme of the pgx/v5 migrate driver
func pgxURL(dsn string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			return "pgx5://" + strings.TrimPrefix(dsn, scheme)
		}
	}
	return dsn
}
