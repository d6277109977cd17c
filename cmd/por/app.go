package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"

	"github.com/reserve-snapshot/internal/adapter"
	"github.com/reserve-snapshot/internal/api"
	"github.com/reserve-snapshot/internal/config"
	"github.com/reserve-snapshot/internal/errors"
	"github.com/reserve-snapshot/internal/logging"
	"github.com/reserve-snapshot/internal/ratelimit"
	"github.com/reserve-snapshot/internal/report"
	"github.com/reserve-snapshot/internal/retry"
	"github.com/reserve-snapshot/internal/service"
	"github.com/reserve-snapshot/internal/storage"
)

// app owns every connection opened at startup
type app struct {
	pipeline *service.Pipeline

	postgres   *storage.PostgresDB
	chain      *adapter.Connection
	redis      *redis.Client
	clickhouse *storage.ClickHouseDB
	history    *storage.ReserveHistoryRepository
}

// newApp connects the store, the RPC endpoint and the optional sinks, then
// wires the pipeline. Partially opened connections are closed on failure.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	logger := logging.FromContext(ctx)
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.postgres, err = storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
	if err != nil {
		return nil, err
	}
	logger.Info("Store connection established")

	provider, err := adapter.NewRPCProvider(cfg.Chain.RPCPrimary, cfg.Chain.RPCSecondary)
	if err != nil {
		return nil, errors.NewConfigError(err)
	}
	a.chain, err = adapter.Connect(ctx, provider, adapter.DialEthereum, retry.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}

	limited, err := ratelimit.NewRateLimitedClient(ratelimit.RateLimitedClientConfig{
		Client: a.chain.Client,
		Rate:   cfg.Chain.RateLimit,
		Burst:  cfg.Chain.RateBurst,
	})
	if err != nil {
		return nil, errors.NewInternalError("rate limiter", err)
	}
	reader, err := adapter.NewTokenReader(limited)
	if err != nil {
		return nil, errors.NewInternalError("token reader", err)
	}

	verifier, err := service.NewChainVerifier(reader, adapter.NewEndpointBreaker(cfg.Chain.BreakerThreshold), service.VerifierConfig{
		Concurrency:      cfg.Chain.Concurrency,
		CallTimeout:      cfg.Chain.CallTimeout,
		PlatformWallet:   cfg.Chain.PlatformWallet,
		SupportsStandard: cfg.Chain.SupportsStandard,
	})
	if err != nil {
		return nil, errors.NewConfigError(err)
	}

	queryRetry := retry.DefaultRetryConfig()
	queryRetry.MaxAttempts = cfg.Database.Postgres.QueryAttempts
	gatherer := service.NewDataGatherer(
		storage.NewAssetRepository(a.postgres.Pool()),
		storage.NewHoldingRepository(a.postgres.Pool()),
		service.GathererConfig{
			QueryTimeout: cfg.Database.Postgres.QueryTimeout,
			Retry:        queryRetry,
		},
	)

	deps := service.PipelineDeps{
		Gatherer: gatherer,
		Verifier: verifier,
		Assembler: service.NewReportAssembler(service.AssemblerConfig{
			Platform:        cfg.Output.Platform,
			Auditor:         cfg.Audit.Auditor,
			Methodology:     cfg.Audit.Methodology,
			ConfidenceLevel: cfg.Audit.ConfidenceLevel,
			IntervalDays:    cfg.Audit.IntervalDays,
			NetworkID:       cfg.Chain.NetworkID,
		}),
		Writer:  report.NewWriter(afero.NewOsFs(), cfg.Output.Directory),
		ChainID: a.chain.ChainID,
	}

	if cfg.Database.Redis.Enabled() {
		a.redis, err = storage.NewRedisClient(ctx, &cfg.Database.Redis)
		if err != nil {
			return nil, err
		}
		deps.Lock = storage.NewRunLock(a.redis, cfg.Database.Redis.LockTTL)
		logger.Info("Run lock enabled")
	}

	if cfg.Database.ClickHouse.Enabled() {
		a.clickhouse, err = storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
		if err != nil {
			// History is an auxiliary sink and never blocks a report
			logger.WithError(err).Warn("Reserve history disabled")
			a.clickhouse, err = nil, nil
		} else {
			a.history = storage.NewReserveHistoryRepository(a.clickhouse)
			deps.History = a.history
			logger.Info("Reserve history enabled")
		}
	}

	a.pipeline, err = service.NewPipeline(deps)
	if err != nil {
		return nil, errors.NewInternalError("pipeline wiring", err)
	}
	return a, nil
}

// historyReader returns nil when the history sink is disabled so the API
// can tell it apart from an empty history
func (a *app) historyReader() api.HistoryReader {
	if a.history == nil {
		return nil
	}
	return a.history
}

// Close releases every opened connection
func (a *app) Close() {
	if a.clickhouse != nil {
		if err := a.clickhouse.Close(); err != nil {
			logging.WithError(err).Warn("Error closing ClickHouse connection")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logging.WithError(err).Warn("Error closing Redis connection")
		}
	}
	if a.chain != nil {
		a.chain.Close()
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
}
