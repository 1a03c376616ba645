package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ptrus/mobile-pipeline/api"
	"github.com/ptrus/mobile-pipeline/cache"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cache server",
	Long: `Serves the configured cache backend over HTTP so runners can share dependency caches
and fingerprint markers with the http cache backend.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("server-listen-addr", "", "listen address")
	f.String("server-token", "", "bearer token required by cache clients")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	logger.Info("loaded configuration", "listen_addr", cfg.Server.ListenAddr, "db_path", cfg.DB.Path, "cache_backend", cfg.CacheStore.Backend)

	database, err := openDB(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer func() {
		_ = database.Close()
	}()

	logger.Info("database initialized")

	backend, err := cache.NewBackend(cmd.Context(), cfg.CacheStore, database)
	if err != nil {
		return fmt.Errorf("failed to create cache backend: %w", err)
	}
	if backend == nil {
		return errors.New("serve requires a cache backend (cache_store.backend is none)")
	}
	if c, ok := backend.(io.Closer); ok {
		defer func() {
			_ = c.Close()
		}()
	}

	server := api.New(cfg.Server, backend, database, logger)

	g, gCtx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		if err := server.Run(gCtx); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("service error", "error", err)
		return err
	}

	logger.Info("server stopped gracefully")
	return nil
}
