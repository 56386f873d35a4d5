package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/adalundhe/rebound/core/server"
	"github.com/adalundhe/rebound/core/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the decision API over HTTP",
	Long: `Run the HTTP decision API with Prometheus metrics.

SIGHUP reloads the configuration files and the pattern file. Engine and
circuit settings changed on reload take effect after a restart.`,
	RunE: runServe,
}

var (
	serveAddr          string
	servePruneInterval time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().DurationVar(&servePruneInterval, "prune-interval", time.Hour, "How often to prune resolved history (0 disables)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newService(ctx, service.WithRuntimeMetrics())
	if err != nil {
		return err
	}
	defer svc.Close()

	cfg := manager.Get().Server
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	srv := server.New(svc.Engine, cfg,
		server.WithHistory(svc.History),
		server.WithMetrics(svc.Metrics, svc.Registry),
		server.WithLogger(slog.Default()),
	)

	slog.Info("rebound starting",
		"addr", cfg.Addr,
		"patterns", svc.Engine.Library().Len(),
		"advisory", svc.Advising(),
		"history", svc.History != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return reloadOnHangup(gctx, svc) })
	if svc.History != nil && servePruneInterval > 0 {
		g.Go(func() error { return pruneLoop(gctx, svc, servePruneInterval) })
	}
	return g.Wait()
}

func reloadOnHangup(ctx context.Context, svc *service.Service) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if err := manager.Reload(); err != nil {
				slog.Error("config reload failed", "error", err)
			} else {
				slog.Info("config reloaded", "sources", manager.Sources())
			}
			if svc.Watcher != nil {
				if err := svc.Watcher.Reload(); err != nil {
					slog.Error("pattern reload failed", "error", err)
				}
			}
		}
	}
}

func pruneLoop(ctx context.Context, svc *service.Service, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := svc.History.Prune(ctx)
			if err != nil {
				slog.Warn("history prune failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("history pruned", "attempts", n)
			}
		}
	}
}
