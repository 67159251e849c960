package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gorewood/splice/internal/engine"
	splicemcp "github.com/gorewood/splice/internal/mcp"
	"github.com/gorewood/splice/internal/metrics"
	"github.com/gorewood/splice/internal/output"
	"github.com/gorewood/splice/internal/risk"
)

// defaultSweepInterval is how often serve removes old backups.
const defaultSweepInterval = time.Hour

// serveFlags holds the command-line flags for the serve command.
type serveFlags struct {
	metricsAddr   string
	sweepInterval time.Duration
}

// newServeCmd creates the serve command for running as an MCP server.
func newServeCmd() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run as MCP server (stdio transport)",
		Long: `Run splice as a Model Context Protocol (MCP) server over stdio.

An agent that generates fixes can hand them to splice and get backup,
validation and rollback for free. Configure in your agent's MCP settings:
  {
    "mcpServers": {
      "splice": {
        "command": "splice",
        "args": ["serve"]
      }
    }
  }

Available tools: apply_fix, check_fix, assess_risk, get_stats,
list_backups, cleanup_backups

While serving, backups older than max_backup_age are swept every
--sweep-interval. With --metrics-addr, Prometheus metrics are served on
/metrics at that address.

The interactive policy is not available: stdin carries the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	cmd.Flags().DurationVar(&flags.sweepInterval, "sweep-interval", defaultSweepInterval, "How often old backups are removed (0 disables)")

	return cmd
}

// runServe executes the serve command.
func runServe(cmd *cobra.Command, flags *serveFlags) error {
	a, err := newApp(cmd, "")
	if err != nil {
		return err
	}
	policy, err := a.policy()
	if err != nil {
		return err
	}
	if _, ok := policy.(*risk.Interactive); ok {
		return output.NewUserError("the interactive policy cannot be used with serve; stdin carries the MCP protocol")
	}

	rec := metrics.New()
	eng := a.newEngine(policy, rec)
	server := splicemcp.NewServer(buildVersion(), eng)

	g, ctx := errgroup.WithContext(cmd.Context())
	serveCtx, stop := context.WithCancel(ctx)
	defer stop()

	g.Go(func() error {
		// The agent closing stdin ends the session and the sidecars with it.
		defer stop()
		return server.Run(serveCtx, &mcp.StdioTransport{})
	})
	if flags.sweepInterval > 0 {
		g.Go(func() error {
			sweepLoop(serveCtx, eng, a.cfg.MaxBackupAge, flags.sweepInterval, a.logger)
			return nil
		})
	}
	if flags.metricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(serveCtx, flags.metricsAddr, rec, a.logger)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return output.NewSystemErrorWithCause(fmt.Sprintf("serve: %v", err), err)
	}
	return nil
}

// sweepLoop removes old backups every interval until ctx is done.
func sweepLoop(ctx context.Context, eng *engine.Engine, maxAge, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := eng.CleanupOldBackups(maxAge); err != nil {
				logger.Warn("backup sweep failed", "component", "serve", "error", err)
			}
		}
	}
}

// serveMetrics exposes rec on /metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string, rec *metrics.Recorder, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "component", "serve", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
