package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"example.com/healthsync/internal/app"
	"example.com/healthsync/internal/coordinator"
)

func newRunCmd(c *cli) *cobra.Command {
	var (
		once     bool
		interval time.Duration
		jitter   float64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run sync passes until interrupted, or a single pass with --once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("interval") {
				c.cfg.SyncInterval = interval
			}
			if cmd.Flags().Changed("interval-jitter") {
				c.cfg.SyncIntervalJitter = jitter
			}
			return c.run(cmd, once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run one sync pass and exit")
	cmd.Flags().DurationVar(&interval, "interval", time.Hour, "time between passes (overrides SYNC_INTERVAL)")
	cmd.Flags().Float64Var(&jitter, "interval-jitter", 0.2, "interval jitter ratio (0.0-1.0, overrides SYNC_INTERVAL_JITTER)")
	return cmd
}

func (c *cli) run(cmd *cobra.Command, once bool) error {
	logger := c.sink.Logger("healthsync")
	rootCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := c.open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if c.cfg.MetricsAddress != "" {
		metricsSrv := &http.Server{Addr: c.cfg.MetricsAddress, Handler: promhttp.Handler()}
		go func() {
			logger.Printf("metrics listening on %s", c.cfg.MetricsAddress)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("metrics server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	if err := runPass(rootCtx, a, c.sink.Logger("progress")); err != nil && once {
		return err
	}
	if once {
		return nil
	}

	ratio := clampJitterRatio(c.cfg.SyncIntervalJitter)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	timer := time.NewTimer(jitteredInterval(c.cfg.SyncInterval, ratio, rng.Float64()))
	defer timer.Stop()
	for {
		select {
		case <-rootCtx.Done():
			logger.Printf("sync stopping: %v", rootCtx.Err())
			return nil
		case <-timer.C:
			_ = runPass(rootCtx, a, c.sink.Logger("progress"))
			timer.Reset(jitteredInterval(c.cfg.SyncInterval, ratio, rng.Float64()))
		}
	}
}

func runPass(ctx context.Context, a *app.App, logger *log.Logger) error {
	progress := make(chan coordinator.Progress, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			logger.Printf("%s %s %d/%d (%.1f%%) overall %.1f%%",
				p.Activity, p.Epoch, p.UnitDone, p.UnitTotal, p.UnitPercent, p.OverallPercent)
		}
	}()

	start := time.Now()
	summary, err := a.RunPass(ctx, progress)
	close(progress)
	<-done
	if err != nil {
		logger.Printf("sync pass failed after %s: %v", time.Since(start).Round(time.Millisecond), err)
		return err
	}
	logger.Printf("sync pass completed in %s: units=%d delivered=%d dead_letters=%d fetch_errors=%d",
		time.Since(start).Round(time.Millisecond), summary.Units, summary.Delivered, summary.DeadLetters, summary.FetchErrors)
	return nil
}
