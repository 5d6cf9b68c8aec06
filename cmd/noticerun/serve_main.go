package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/noticerun/internal/app"
	"github.com/sawpanic/noticerun/internal/dispatch"
	"github.com/sawpanic/noticerun/internal/handoff"
	"github.com/sawpanic/noticerun/internal/runlock"
	"github.com/sawpanic/noticerun/internal/secrets"
	"github.com/sawpanic/noticerun/internal/trigger"
)

// runServe starts the trigger server and its worker.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}

	ctx, cancel := context.WithCancel(runContext(context.Background()))
	defer cancel()

	if cfg.Database.DSN != "" {
		log.Info().Str("dsn", secrets.Redact(cfg.Database.DSN)).Msg("Using postgres account store")
	}
	a, err := app.Build(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	locker, closeLock, err := runlock.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeLock()

	queue := trigger.NewQueue(cfg.Server.QueueSize)
	dispatcher := dispatch.New(a, locker, a.Metrics())
	verifier := trigger.NewHMACVerifier(a.WebhookKey, time.Duration(cfg.Server.ToleranceS)*time.Second)
	server := trigger.NewServer(trigger.Config{Addr: cfg.Server.Addr(), Version: version, Limits: a.Limits}, verifier, queue, a.Metrics().Handler())

	go queue.Run(ctx, dispatcher)

	serverErr := make(chan error, 1)
	go func() {
		addr := cfg.Server.Addr()
		log.Info().
			Str("webhook", fmt.Sprintf("http://%s/webhook", addr)).
			Str("health", fmt.Sprintf("http://%s/health", addr)).
			Str("metrics", fmt.Sprintf("http://%s/metrics", addr)).
			Msg("Trigger endpoints available")
		if err := server.Start(); err != nil {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
		return err
	}
	cancel()

	log.Info().Msg("Trigger server shutdown complete")
	return nil
}

func runKeygen(cmd *cobra.Command, args []string) error {
	k, err := handoff.GenerateKey()
	if err != nil {
		return err
	}
	fmt.Println(k.String())
	return nil
}
