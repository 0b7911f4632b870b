package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/klubi/rstore/internal/apiserver"
	"github.com/klubi/rstore/internal/backend"
	"github.com/klubi/rstore/internal/config"
	"github.com/klubi/rstore/internal/metrics"
	"github.com/klubi/rstore/internal/store"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the rstore API server",
		Long: `Start the rstore API server on the configured backend.

Settings come from the config file, RSTORE_* environment variables
(e.g. RSTORE_STORE_BACKEND=redis) and the flags below, in increasing
order of precedence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// 1. Load configuration.
			cfg, err := config.Load(configFile, cmd.LocalNonPersistentFlags())
			if err != nil {
				return err
			}

			// 2. Create logger.
			logger, err := cfg.NewLogger()
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			defer logger.Sync()

			types, err := cfg.BuildResourceTypes()
			if err != nil {
				return err
			}
			if len(types) == 0 {
				logger.Warn("no resource types configured; only /healthz and /metrics will be useful")
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// 3. Open the backend.
			be, err := openBackend(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer be.Close()

			// 4. Build the store.
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			s := store.New(be,
				store.WithRoot(cfg.Store.Root),
				store.WithIndexLayout(cfg.IndexLayout()),
				store.WithLogger(logger),
				store.WithMetrics(m),
			)
			defer s.Close()

			// 5. Create and start API server.
			apiSrv := apiserver.NewServer(cfg.ServerAddress(), s, types, m, logger)

			// Print startup banner.
			banner := color.New(color.FgCyan, color.Bold)
			banner.Println("rstore")
			fmt.Printf("   API Server:     http://%s\n", cfg.ServerAddress())
			fmt.Printf("   Backend:        %s\n", backendDescription(cfg))
			fmt.Printf("   Key root:       %s\n", cfg.Store.Root)
			fmt.Printf("   Index layout:   %s\n", cfg.Store.IndexLayout)
			fmt.Printf("   Resource types: %d\n", len(types))
			fmt.Println()

			errCh := make(chan error, 1)
			go func() {
				if err := apiSrv.Start(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			// 6. Wait for interrupt signal for graceful shutdown.
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			case err := <-errCh:
				logger.Error("API server error", zap.Error(err))
				return err
			}

			// Graceful shutdown with a 10-second deadline.
			fmt.Println()
			logger.Info("shutting down gracefully...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			// Close watch streams first so Shutdown does not wait on them.
			s.Close()
			if err := apiSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("API server shutdown error", zap.Error(err))
			}

			logger.Info("rstore stopped")
			return nil
		},
	}

	fs := cmd.Flags()
	fs.Int("server.port", 7117, "API server port")
	fs.String("server.host", "127.0.0.1", "API server host")
	fs.String("store.backend", "bolt", "Backend: bolt|memory|redis")
	fs.String("store.dataDir", "", "Data directory for the bolt backend (default: ~/.rstore/data)")
	fs.String("store.root", store.DefaultRoot, "Key namespace root")
	fs.String("store.indexLayout", "hash", "Index layout: hash|string")
	fs.String("log.level", "info", "Log level")
	fs.String("log.format", "console", "Log format: console|json")
	backend.NewRedisOptions().AddFlags(fs)

	return cmd
}

// openBackend opens the backend selected by store.backend.
func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (backend.Backend, error) {
	switch cfg.Store.Backend {
	case "memory":
		return backend.NewMemory(), nil

	case "redis":
		maxWait := time.Duration(cfg.Store.DialTimeout) * time.Second
		r, err := backend.DialRedis(ctx, cfg.Redis, maxWait, logger.Named("redis"))
		if err != nil {
			return nil, err
		}
		return r, nil

	default:
		if err := os.MkdirAll(cfg.Store.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory %s: %w", cfg.Store.DataDir, err)
		}
		b, err := backend.NewBolt(cfg.DBPath())
		if err != nil {
			return nil, fmt.Errorf("opening store at %s: %w", cfg.DBPath(), err)
		}
		return b, nil
	}
}

func backendDescription(cfg *config.Config) string {
	switch cfg.Store.Backend {
	case "redis":
		return fmt.Sprintf("redis %v", cfg.Redis.Addrs)
	case "bolt":
		return "bolt " + cfg.DBPath()
	default:
		return cfg.Store.Backend
	}
}
