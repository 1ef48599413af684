package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/liveinsight/pkg/liveinsight/config"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/storage"
)

var (
	configFile string
	dataDir    string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "liveinsight",
	Short: "LiveInsight event client",
	Long: `liveinsight sends tracking events to a LiveInsight collector from the command line,
keeping the visitor's user and session identity in a local SQLite store.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory for the identity store (default: per-user app data dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (json, text)")
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the config file and environment, then applies the
// persistent flags that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.ClientConfig, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("data-dir") || cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

func newLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", logLevel)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(logFormat) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", logFormat)
	}
}

// appDataDir returns the platform-specific directory for the store.
func appDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "LiveInsight"), nil
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "LiveInsight"), nil
	default: // linux and others
		return filepath.Join(home, ".local", "share", "LiveInsight"), nil
	}
}

// openStore opens the SQLite identity store in dir, defaulting to appDataDir.
func openStore(dir string) (*storage.SQLiteStore, error) {
	if dir == "" {
		var err error
		if dir, err = appDataDir(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := storage.NewSQLiteStore(filepath.Join(dir, "liveinsight.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}
