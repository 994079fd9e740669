package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/siohaza/warden/internal/collector"
	"github.com/siohaza/warden/internal/server"
	"github.com/siohaza/warden/internal/storage"
	"github.com/siohaza/warden/pkg/config"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	logLevel    string
	blacklistBy string
	version     = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden - game server event policies",
	Long: `Warden consumes the structured log stream of a game server and applies
ban, VIP slot, vote map and notification policies through its control API.`,
	Version: version,
	RunE:    runServer,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start consuming the configured event source",
	RunE:  runServer,
}

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Dispatch a recorded JSONL event log through the handlers",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

var blacklistCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "Manage the steam id blacklist",
}

var blacklistAddCmd = &cobra.Command{
	Use:   "add <steam_id> <reason>",
	Short: "Blacklist a steam id; the player is banned on next connect",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *storage.Store) error {
			reason := strings.Join(args[1:], " ")
			if err := store.SetBlacklist(ctx, args[0], reason, blacklistBy); err != nil {
				return err
			}
			fmt.Printf("blacklisted %s: %s\n", args[0], reason)
			return nil
		})
	},
}

var blacklistRemoveCmd = &cobra.Command{
	Use:   "remove <steam_id>",
	Short: "Remove a steam id from the blacklist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *storage.Store) error {
			if err := store.RemoveBlacklist(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("removed %s from blacklist\n", args[0])
			return nil
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Warden v%s\n", version)
		fmt.Println("Game server event policy engine")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.toml", "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")

	blacklistAddCmd.Flags().StringVar(&blacklistBy, "by", "admin", "name recorded as the author of the blacklist entry")
	blacklistCmd.AddCommand(blacklistAddCmd)
	blacklistCmd.AddCommand(blacklistRemoveCmd)

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(blacklistCmd)
	rootCmd.AddCommand(versionCmd)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setup loads and validates the config and builds the logger. The returned
// closer releases the log file when log_to_file is set.
func setup() (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	var logWriter io.Writer = os.Stdout
	closer := func() {}

	if cfg.Server.LogToFile {
		logDir := "logs"
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		timestamp := time.Now().Unix()
		logPath := filepath.Join(logDir, fmt.Sprintf("warden_%d.log", timestamp))

		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		closer = func() { logFile.Close() }

		logWriter = io.MultiWriter(os.Stdout, logFile)
	}

	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLevel(logLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		closer()
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, logger, closer, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Info("starting warden", "version", version)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Stop()

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("server running",
		"name", cfg.Server.Name,
		"source", cfg.Collector.Source,
		"http", cfg.HTTP.Listen,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("event source failed: %w", err)
	}

	logger.Info("shutting down server")
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()

	src, err := collector.OpenFile(args[0])
	if err != nil {
		return err
	}
	defer src.Close()

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("replaying event log", "path", args[0])
	return srv.Consume(ctx, src)
}

func withStore(fn func(ctx context.Context, store *storage.Store) error) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	return fn(context.Background(), store)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
