package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/passly"
	promexport "github.com/MrEthical07/passly/metrics/export/prometheus"
)

const shutdownTimeout = 5 * time.Second

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired one-time codes",
		Long: `Run the expired one-time code sweeper every otp.sweep_interval until
interrupted, serving Prometheus metrics on metrics_addr. With --once a
single sweep runs and the command exits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd, once)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run one sweep and exit")
	cmd.Flags().String("postgres-dsn", "", "PostgreSQL connection string")
	cmd.Flags().String("redis-addr", "", "Redis address")
	cmd.Flags().String("metrics-addr", "", "metrics HTTP address (empty = disabled)")

	return cmd
}

func runSweep(cmd *cobra.Command, once bool) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	engine, cleanup, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if once {
		n, err := engine.SweepExpiredCodes(ctx)
		if err != nil {
			return oops.Code("SWEEP_FAILED").Wrap(err)
		}
		cmd.Printf("Deleted %d expired codes\n", n)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	sweeper := engine.Sweeper()
	sweeper.RunOnStart = true
	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	if cfg.MetricsAddr != "" {
		if !cfg.Metrics.Enabled {
			logger.WarnContext(ctx, "metrics endpoint served with metrics disabled")
		}
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(engine),
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return gctx },
		}
		g.Go(func() error {
			logger.InfoContext(gctx, "metrics server listening", slog.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return oops.Code("METRICS_SERVER_FAILED").With("addr", cfg.MetricsAddr).Wrap(err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func metricsMux(engine *passly.Engine) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promexport.NewExporter(engine).Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
