package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/thereayou/circlechat/internal/config"
)

func main() {
	envFile := pflag.String("env-file", "", "extra dotenv file loaded before .env.local and .env")
	migrateOnly := pflag.Bool("migrate-only", false, "run the schema migration and exit")
	pflag.Parse()

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log)
	slog.SetDefault(log)

	if *migrateOnly {
		if err := migrate(cfg); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		log.Info("migration complete")
		return
	}

	srv, err := NewServer(cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = srv.Run(ctx)
	stop()
	srv.Close()
	if err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
