package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flor3z/torn-bot/internal/bot"
	"github.com/flor3z/torn-bot/internal/config"
)

// rootCmd runs the bot until interrupted
var rootCmd = &cobra.Command{
	Use:   "torn-bot",
	Short: "Discord bot that verifies members against their Torn accounts",
	Long: `Runs the Discord bot. On startup every guild is reconciled against its
stored configuration, then members are verified on join, on command and on
the configured daily and weekly schedules.`,
	SilenceUsage: true,
	RunE:         runBot,
}

func init() {
	rootCmd.AddCommand(importCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return err
	}

	// Set up logging
	setupLogging(cfg.LogLevel)

	slog.Info("Starting Torn verification bot")

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Create and start the bot
	b, err := bot.New(cfg)
	if err != nil {
		slog.Error("Failed to create bot", "error", err)
		return err
	}

	// Start the bot
	if err := b.Start(ctx); err != nil {
		slog.Error("Failed to start bot", "error", err)
		b.Stop()
		return err
	}

	slog.Info("Bot is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	cancel()

	// Stop the bot gracefully
	if err := b.Stop(); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}

	slog.Info("Bot stopped")
	return nil
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
