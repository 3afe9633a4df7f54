package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/cli/sqlpilotctl"
)

const defaultTimeout = 90 * time.Second

func main() {
	env := func(key string) string { return strings.TrimSpace(os.Getenv(key)) }

	options := sqlpilotctl.Options{
		BaseURL: env("SQLPILOT_API_URL"),
		APIKey:  env("SQLPILOT_API_KEY"),
		Target:  env("SQLPILOT_TARGET"),
		Timeout: defaultTimeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
	if options.BaseURL == "" {
		options.BaseURL = "http://localhost:8080"
	}
	if raw := env("SQLPILOT_CLI_TIMEOUT"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil || timeout <= 0 {
			_, _ = fmt.Fprintf(os.Stderr, "ignoring SQLPILOT_CLI_TIMEOUT=%q, using %s\n", raw, defaultTimeout)
		} else {
			options.Timeout = timeout
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := sqlpilotctl.Run(ctx, os.Args[1:], options)
	stop()
	os.Exit(code)
}
