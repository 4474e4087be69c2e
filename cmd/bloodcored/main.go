// Command bloodcored runs the blood inventory engine as a long-lived
// process: it opens the configured ledger backend, archives audit events to
// blob storage, serves Prometheus metrics, and keeps the expiry sweeper and
// allocation coordinator running until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bloodcore/internal/core"
	"bloodcore/internal/infra/blob"
	"bloodcore/internal/infra/logging"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bloodcored", flag.ContinueOnError)
	var (
		sweepInterval = fs.Duration("sweep-interval", time.Minute, "expiry sweeper cadence")
		allocInterval = fs.Duration("allocate-interval", 30*time.Second, "pending-request allocation cadence")
		metricsAddr   = fs.String("metrics-addr", ":9402", "Prometheus metrics listen address (empty disables)")
		archivePrefix = fs.String("archive-prefix", "audit", "blob key prefix for audit segments")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	zl, err := logging.FromEnv("bloodcored")
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = zl.Sync() }()
	logger := logging.NewEngineLogger(zl)

	ledger, err := core.OpenLedger(core.NewDefaultRulesEngine())
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer closeLedger(ledger, logger)

	blobStore, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	archiver := core.NewBlobArchiver(blobStore, *archivePrefix, 0)

	metrics, err := core.NewPrometheusMetricsRecorder(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	svc := core.NewService(ledger,
		core.WithLogger(logger),
		core.WithEventSink(archiver),
		core.WithMetricsRecorder(metrics),
		core.WithConfig(core.Config{SweepInterval: *sweepInterval}),
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		go serveMetrics(ctx, *metricsAddr, logger)
	}
	go allocateLoop(ctx, svc, *allocInterval, logger)

	logger.Info("bloodcored started",
		"sweep_interval", sweepInterval.String(),
		"allocate_interval", allocInterval.String(),
	)
	err = svc.RunSweeper(ctx, *sweepInterval)

	// Drain remaining audit events before exit.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ferr := archiver.Flush(flushCtx); ferr != nil {
		logger.Error("final audit flush failed", "error", ferr)
	}
	if errors.Is(err, context.Canceled) {
		logger.Info("bloodcored stopped")
		return nil
	}
	return err
}

func allocateLoop(ctx context.Context, svc *core.Service, interval time.Duration, logger core.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			results, err := svc.ProcessPending(ctx)
			if err != nil {
				logger.Error("allocation pass failed", "error", err)
				continue
			}
			for _, r := range results {
				if r.Shortfall > 0 {
					logger.Warn("request short after pass",
						"request_id", r.RequestID,
						"fulfilled", r.FulfilledQuantity,
						"shortfall", r.Shortfall,
					)
				}
			}
		}
	}
}

func serveMetrics(ctx context.Context, addr string, logger core.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics listener failed", "addr", addr, "error", err)
	}
}

func closeLedger(ledger core.Ledger, logger core.Logger) {
	if closer, ok := ledger.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("close ledger", "error", err)
		}
	}
}
