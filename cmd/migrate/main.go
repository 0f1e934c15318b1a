// migrate applies or rolls back the embedded sessions and audit_logs migrations: go run ./cmd/migrate.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"auth-session/backend/internal/config"
	"auth-session/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	steps := flag.Int("steps", 0, "Number of migrations to apply or roll back (0 = all)")
	version := flag.Bool("version", false, "Print the current schema version and exit")
	flag.Parse()

	cfg, err := config.LoadWithoutSigningKeys()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; create a .env or set DATABASE_URL")
		os.Exit(1)
	}

	if *version {
		v, dirty, err := migrate.Version(cfg.DatabaseURL)
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied")
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		fmt.Printf("version %d (dirty=%v)\n", v, dirty)
		return
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction, *steps); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
