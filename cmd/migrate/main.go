package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/splax/stackgen/internal/app/migrate"
	"github.com/splax/stackgen/pkg/config"
	"github.com/splax/stackgen/pkg/logger"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|down|version)")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", 0, "target version for down command (optional)")
	flag.Parse()

	cfg := config.LoadAPIConfig()
	log := logger.New("migrate", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	migrations, source, err := migrate.Source(cfg.MigrationsDir)
	if err != nil {
		log.Error("failed to locate migrations", "error", err)
		os.Exit(1)
	}
	runner, err := migrate.Open(ctx, cfg.DatabaseURL, migrations, log)
	if err != nil {
		log.Error("failed to configure migration runner", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	log.Info("using migrations", "source", source)

	switch *command {
	case "up":
		err = runner.Up(ctx)
	case "status":
		err = runner.Status(ctx)
	case "down":
		err = runner.Down(ctx, *target)
	case "version":
		var version int64
		version, err = runner.Version(ctx)
		if err == nil {
			log.Info("database version", "version", version)
		}
	default:
		log.Error("unsupported command", "command", *command)
		os.Exit(1)
	}
	if err != nil {
		log.Error("migration command failed", "command", *command, "error", err)
		os.Exit(1)
	}

	log.Info("migration command completed", "command", *command)
}
