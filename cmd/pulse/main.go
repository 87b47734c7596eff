package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/torosent/pulse/internal/config"
	"github.com/torosent/pulse/internal/listener"
	"github.com/torosent/pulse/internal/logging"
	"github.com/torosent/pulse/internal/output"
	"github.com/torosent/pulse/internal/probe"
	"github.com/torosent/pulse/internal/runner"
	"github.com/torosent/pulse/internal/sink"
	"github.com/torosent/pulse/internal/threshold"
	"github.com/torosent/pulse/internal/tracing"

	_ "github.com/torosent/pulse/internal/sink/console"
	_ "github.com/torosent/pulse/internal/sink/httpjson"
	_ "github.com/torosent/pulse/internal/sink/jsonl"
	_ "github.com/torosent/pulse/internal/sink/prometheus"
	_ "github.com/torosent/pulse/internal/sink/redis"
	_ "github.com/torosent/pulse/internal/sink/websocket"
)

const (
	serviceName      = "pulse"
	progressInterval = time.Second
	tracingShutdown  = 5 * time.Second
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.NewWithWriter(stderr, serviceName, level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), tracingShutdown)
		defer done()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	s, err := sink.New(cfg.Sink.Name)
	if err != nil {
		return err
	}

	// The runner is built before Setup starts the flush goroutine.
	var r *runner.Runner
	l, err := listener.New(*cfg, s, listener.Options{
		Logger:        logger,
		Tracer:        tp.Tracer(),
		ActiveThreads: func() int64 { return r.Active() },
	})
	if err != nil {
		return err
	}

	requester, err := probe.New(probe.Options{
		Load:      cfg.Load,
		Recorder:  l,
		Tracer:    tp.Tracer(),
		Propagate: tp.ShouldPropagate(),
	})
	if err != nil {
		return err
	}
	r = runner.New(runner.FromLoad(cfg.Load, requester))

	if err := l.Setup(ctx); err != nil {
		return err
	}
	logger.Info("load started",
		"targets", len(cfg.Load.Targets),
		"concurrency", cfg.Load.Concurrency,
		"rate", cfg.Load.Rate,
		"duration", cfg.Load.Duration,
		"total", cfg.Load.Total,
	)

	var progress *output.ProgressReporter
	if !cfg.JSONOutput {
		progress = output.NewProgressReporter(l.Report, progressInterval, stderr)
		progress.Start()
	}

	result := r.Run(ctx)
	if progress != nil {
		progress.Stop()
	}

	// Teardown must run to completion even after an interrupt.
	teardownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownGrace+tracingShutdown)
	defer done()
	teardownErr := l.Teardown(teardownCtx)

	logger.Info("load finished",
		"requests", result.Total,
		"errors", result.Errors,
		"duration", result.Duration,
		"flushes", l.Flushes(),
		"flush_failures", l.FlushFailures(),
	)

	report := l.Report()
	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, report); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, report)
	}
	if teardownErr != nil {
		return teardownErr
	}

	results, err := threshold.Check(thresholds, report)
	if len(results) > 0 && !cfg.JSONOutput {
		fmt.Fprintln(stdout, "\nThresholds:")
		for _, r := range results {
			fmt.Fprintf(stdout, "  %s\n", r.Message)
		}
	}
	return err
}
