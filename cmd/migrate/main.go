// migrate applies the embedded SQL migrations: go run ./cmd/migrate -direction up.
// -version prints the applied schema version instead.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"saas-control-plane/backend/internal/config"
	"saas-control-plane/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up, down, or a signed step count (e.g. -1)")
	showVersion := flag.Bool("version", false, "Print the applied schema version and exit")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger, *direction, *showVersion); err != nil {
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, direction string, showVersion bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	if showVersion {
		v, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty: %t)\n", v, dirty)
		return nil
	}
	if err := migrate.Run(cfg.DatabaseURL, direction); err != nil {
		return err
	}
	logger.Info("migrations applied", "direction", direction)
	return nil
}
