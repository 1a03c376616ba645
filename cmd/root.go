// Package cmd implements the CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ptrus/mobile-pipeline/config"
	"github.com/ptrus/mobile-pipeline/db"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	rootCmd   = &cobra.Command{
		Use:   "mobile-pipeline",
		Short: "Mobile CI/CD pipeline",
		Long: `Builds, signs and ships React Native / Expo apps from CI.

Settings come from an optional YAML file, INPUT_* environment variables and flags,
in increasing order of precedence.`,
		SilenceUsage: true,
	}
)

// localFlags are command options that are not settings keys.
var localFlags = map[string]bool{
	"config":     true,
	"log-level":  true,
	"log-format": true,
	"format":     true,
	"save":       true,
	"limit":      true,
	"help":       true,
}

// nestedKeys maps flags to settings keys outside the top level.
var nestedKeys = map[string]string{
	"server-listen-addr": "server.listen_addr",
	"server-token":       "server.token",
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", config.DefaultSettingsFile, "settings file path")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	pf.String("platform", "", "target platform (ios, android)")
	pf.String("profile", "", "build profile name")
	pf.String("project-dir", "", "project root directory")
	pf.String("config-path", "", "build config file, relative to the project directory")
	pf.String("app-config", "", "app config file, relative to the project directory")
	pf.String("outputs-file", "", "file receiving name=value outputs (defaults to $GITHUB_OUTPUT)")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. Logs go to stderr; stdout carries command output.
func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", logLevel)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch logFormat {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (must be text or json)", logFormat)
	}
}

// setup loads the settings, applying every flag the user set as an override, and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, nil, err
	}

	overrides := make(map[string]any)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if localFlags[f.Name] {
			return
		}
		key, ok := nestedKeys[f.Name]
		if !ok {
			key = strings.ReplaceAll(f.Name, "-", "_")
		}
		overrides[key] = f.Value.String()
	})

	cfg, err := config.Load(cfgFile, overrides)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.Debug("loaded configuration", "project_dir", cfg.ProjectDir, "cache_backend", cfg.CacheStore.Backend, "db_path", cfg.DB.Path)
	return cfg, logger, nil
}

// openDB opens and migrates the run history database.
func openDB(path string) (*db.DB, error) {
	database, err := db.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.InitSchema(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return database, nil
}
