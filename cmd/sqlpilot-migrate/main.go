package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/config"
	"github.com/sqlpilot/sqlpilot/internal/database"
	"github.com/sqlpilot/sqlpilot/internal/migrations"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up|down|status")
	steps := flag.Int("steps", 0, "number of migration steps; 0 means all for up, 1 for down")
	dsn := flag.String("dsn", "", "session store DSN (overrides SQLPILOT_SESSION_STORE_DSN)")
	flag.Parse()

	cfg, err := config.LoadFromEnv("sqlpilot-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	target := strings.TrimSpace(*dsn)
	if target == "" {
		target = cfg.SessionStore.DSN
	}
	if target == "" {
		fmt.Fprintln(os.Stderr, "SQLPILOT_SESSION_STORE_DSN or -dsn is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, _, err := database.Open(ctx, database.Config{Driver: "pgx", DSN: target, MaxOpenConns: 2})
	if err != nil {
		fmt.Fprintf(os.Stderr, "session store connection error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	runner := migrations.NewRunner()
	switch *direction {
	case "up":
		applied, err := runner.Up(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied %d session store migration(s)\n", applied)
	case "down":
		reverted, err := runner.Down(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("rolled back %d session store migration(s)\n", reverted)
	case "status":
		items, err := runner.Status(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration status failed: %v\n", err)
			os.Exit(1)
		}
		for _, item := range items {
			state := "pending"
			if item.Applied {
				state = "applied"
			}
			fmt.Printf("%06d %-24s %s\n", item.Version, item.Name, state)
		}
	default:
		fmt.Fprintf(os.Stderr, "invalid direction: %s\n", *direction)
		os.Exit(1)
	}
}
