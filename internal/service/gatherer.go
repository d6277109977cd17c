package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/reserve-snapshot/internal/errors"
	"github.com/reserve-snapshot/internal/logging"
	"github.com/reserve-snapshot/internal/retry"
	"github.com/reserve-snapshot/internal/types"
)

// AssetSource reads the active asset set
type AssetSource interface {
	FetchActiveAssets(ctx context.Context) ([]types.AssetRecord, error)
}

// HoldingSource reads settled, approved investor commitments
type HoldingSource interface {
	FetchApprovedHoldings(ctx context.Context) ([]types.HoldingRecord, error)
}

// GathererConfig bounds each store query
type GathererConfig struct {
	QueryTimeout time.Duration
	Retry        *retry.RetryConfig
}

// GatheredData is the store input of one run
type GatheredData struct {
	Assets   []types.AssetRecord
	Holdings []types.HoldingRecord
}

// DataGatherer reads assets and holdings from the store
type DataGatherer struct {
	assets   AssetSource
	holdings HoldingSource
	config   GathererConfig
}

// NewDataGatherer creates a new data gatherer. Only errors classified as
// retryable are retried.
func NewDataGatherer(assets AssetSource, holdings HoldingSource, config GathererConfig) *DataGatherer {
	retryCfg := retry.DefaultRetryConfig()
	if config.Retry != nil {
		copied := *config.Retry
		retryCfg = &copied
	}
	retryCfg.ShouldRetry = errors.IsRetryable
	config.Retry = retryCfg

	return &DataGatherer{
		assets:   assets,
		holdings: holdings,
		config:   config,
	}
}

// FetchActiveAssets returns the active assets ordered by value
func (g *DataGatherer) FetchActiveAssets(ctx context.Context) ([]types.AssetRecord, error) {
	var assets []types.AssetRecord
	err := g.query(ctx, func(ctx context.Context) error {
		var err error
		assets, err = g.assets.FetchActiveAssets(ctx)
		return err
	})
	return assets, err
}

// FetchApprovedHoldings returns every completed settlement of an approved investor
func (g *DataGatherer) FetchApprovedHoldings(ctx context.Context) ([]types.HoldingRecord, error) {
	var holdings []types.HoldingRecord
	err := g.query(ctx, func(ctx context.Context) error {
		var err error
		holdings, err = g.holdings.FetchApprovedHoldings(ctx)
		return err
	})
	return holdings, err
}

// Gather issues both store reads concurrently. Either failure fails the run.
func (g *DataGatherer) Gather(ctx context.Context) (*GatheredData, error) {
	logger := logging.FromContext(ctx)
	data := &GatheredData{}

	pool := pond.NewPool(2, pond.WithContext(ctx))
	defer pool.StopAndWait()

	group := pool.NewGroup()
	group.SubmitErr(
		func() error {
			assets, err := g.FetchActiveAssets(ctx)
			data.Assets = assets
			return err
		},
		func() error {
			holdings, err := g.FetchApprovedHoldings(ctx)
			data.Holdings = holdings
			return err
		},
	)
	if err := group.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("store queries cancelled: %w", ctxErr)
		}
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"assets":   len(data.Assets),
		"holdings": len(data.Holdings),
	}).Info("Gathered store data")

	return data, nil
}

// query runs fn with a per-attempt timeout under the retry policy
func (g *DataGatherer) query(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.WithRetry(ctx, g.config.Retry, func(ctx context.Context, attempt int) error {
		attemptCtx := ctx
		if g.config.QueryTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, g.config.QueryTimeout)
			defer cancel()
		}
		return fn(attemptCtx)
	})
}
