package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aevon-lab/schema-registry/internal/registry"
	"github.com/aevon-lab/schema-registry/internal/registry/api"
	"github.com/aevon-lab/schema-registry/internal/server"
	"github.com/aevon-lab/schema-registry/internal/tracing"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

// serve runs the HTTP API until ctx is cancelled or a signal arrives. The
// stdout span exporter writes to out.
func (a *app) serve(ctx context.Context, out io.Writer) error {
	cfg := a.cfg

	tp, err := tracing.NewProvider(cfg.Tracing, tracing.WithStdoutWriter(out))
	if err != nil {
		return err
	}
	if tp.Enabled() {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				slog.Error("Failed to flush traces", "error", err)
			}
		}()
	}

	slog.Info("Loaded config",
		"addr", cfg.Server.Addr(),
		"mode", cfg.Server.Mode,
		"storage_backend", cfg.Storage.Backend,
		"tracing", tp.Enabled())

	return a.withRegistry(func(reg *registry.Registry) error {
		var health server.HealthChecker
		if hc, ok := reg.Backend().(server.HealthChecker); ok {
			health = hc
		}

		srv := server.New(cfg.Server.Addr(), health, cfg.Server.Mode)
		api.NewService(reg, cfg.Server.MaxBodySizeMB).RegisterRoutes(srv.Engine)

		sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(sigCtx)
		// HTTP server blocks until gctx is cancelled.
		g.Go(func() error {
			return srv.Run(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			if sigCtx.Err() != nil {
				slog.Info("Signal received, shutting down...")
			}
			return nil
		})

		if err := g.Wait(); err != nil {
			return err
		}
		slog.Info("Shutdown complete")
		return nil
	}, registry.WithTracer(tp.Tracer()))
}
