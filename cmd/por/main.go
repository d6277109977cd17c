// Package main provides the proof-of-reserve generator entry point.
//
//	por [run]    produce today's report once and exit
//	por schedule produce a report on POR_SCHEDULE and serve the reports API
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"

	"github.com/reserve-snapshot/internal/api"
	"github.com/reserve-snapshot/internal/config"
	"github.com/reserve-snapshot/internal/errors"
	"github.com/reserve-snapshot/internal/logging"
	"github.com/reserve-snapshot/internal/report"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	mode := "run"
	if len(args) > 0 {
		mode = args[0]
	}
	if mode != "run" && mode != "schedule" {
		fmt.Fprintf(os.Stderr, "usage: por [run|schedule]\n")
		return errors.ExitConfiguration
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		err = errors.NewConfigError(err)
		fmt.Fprintf(os.Stderr, "proof-of-reserve: %v\n", err)
		return errors.ExitCode(err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	if err := logging.InitSentry(cfg.Logging.SentryDSN, map[string]string{"service": "proof-of-reserve", "mode": mode}); err != nil {
		logging.WithError(err).Warn("Sentry disabled")
	}
	defer logging.Flush(2 * time.Second)

	logger := logging.GetGlobalLogger().WithField("mode", mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	a, err := newApp(ctx, cfg)
	if err != nil {
		logger.WithError(err).WithField("stage", errors.Stage(err)).Error("Startup failed")
		return errors.ExitCode(err)
	}
	defer a.Close()

	if mode == "schedule" {
		err = schedule(ctx, cfg, a)
	} else {
		_, err = a.pipeline.Run(ctx)
	}
	return errors.ExitCode(err)
}

// schedule runs the pipeline on the configured cron spec and serves the
// reports API until ctx is cancelled. A failed run is logged and the
// schedule continues.
func schedule(ctx context.Context, cfg *config.Config, a *app) error {
	logger := logging.FromContext(ctx)

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(cfg.Schedule.Cron, func() {
		if _, err := a.pipeline.Run(ctx); err != nil && ctx.Err() == nil {
			logger.WithField("exit_code", errors.ExitCode(err)).Warn("Scheduled run failed")
		}
	}); err != nil {
		return errors.NewConfigError(fmt.Errorf("invalid POR_SCHEDULE %q: %w", cfg.Schedule.Cron, err))
	}

	server := api.NewServer(&api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		RequestsPerSecond: 20,
		Burst:             40,
	}, report.NewStore(afero.NewOsFs(), cfg.Output.Directory), a.historyReader())

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	c.Start()
	logger.WithField("schedule", cfg.Schedule.Cron).Info("Scheduler started")

	var err error
	select {
	case <-ctx.Done():
	case err = <-serverErr:
		if err != nil {
			err = errors.NewInternalError("API server stopped", err)
		}
	}

	logger.Info("Shutting down scheduler")
	stopped := c.Stop()
	if shutdownErr := server.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
		logger.WithError(shutdownErr).Warn("API server shutdown failed")
	}
	<-stopped.Done()

	return err
}
