package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/reserve-snapshot/internal/circuitbreaker"
	"github.com/reserve-snapshot/internal/logging"
	"github.com/reserve-snapshot/internal/metrics"
	"github.com/reserve-snapshot/internal/types"
)

// ContractReader is the chain surface the verifier needs
type ContractReader interface {
	HasCode(ctx context.Context, address common.Address) (bool, error)
	BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error)
}

// VerifierConfig controls the verification fan-out
type VerifierConfig struct {
	Concurrency      int
	CallTimeout      time.Duration
	PlatformWallet   string
	SupportsStandard func(standard string) bool
}

// ChainVerifier confirms token contracts on chain
type ChainVerifier struct {
	reader  ContractReader
	breaker *circuitbreaker.CircuitBreaker
	config  VerifierConfig
	wallet  *common.Address
	now     func() time.Time
}

// NewChainVerifier creates a new chain verifier. A nil breaker disables
// fail-fast on a failing endpoint.
func NewChainVerifier(reader ContractReader, breaker *circuitbreaker.CircuitBreaker, config VerifierConfig) (*ChainVerifier, error) {
	if reader == nil {
		return nil, fmt.Errorf("contract reader is required")
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 10 * time.Second
	}
	if config.SupportsStandard == nil {
		config.SupportsStandard = func(string) bool { return true }
	}
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{Name: "chain-verifier"})
	}

	v := &ChainVerifier{
		reader:  reader,
		breaker: breaker,
		config:  config,
		now:     func() time.Time { return time.Now().UTC() },
	}

	if config.PlatformWallet != "" {
		if !common.IsHexAddress(config.PlatformWallet) {
			return nil, fmt.Errorf("platform wallet %q is not a hex address", config.PlatformWallet)
		}
		wallet := common.HexToAddress(config.PlatformWallet)
		v.wallet = &wallet
	}

	return v, nil
}

// Verify returns exactly one VerifiedAsset per input asset, in input order.
// Call failures are captured per asset; only cancellation of ctx fails Verify.
func (v *ChainVerifier) Verify(ctx context.Context, assets []types.AssetRecord) ([]types.VerifiedAsset, error) {
	logger := logging.FromContext(ctx)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("verification cancelled: %w", err)
	}
	if len(assets) == 0 {
		return []types.VerifiedAsset{}, nil
	}

	pool := pond.NewResultPool[types.VerifiedAsset](v.config.Concurrency, pond.WithContext(ctx))
	defer pool.StopAndWait()

	group := pool.NewGroup()
	for _, asset := range assets {
		group.Submit(func() types.VerifiedAsset {
			return v.verifyOne(ctx, asset)
		})
	}

	verified, err := group.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("verification cancelled: %w", ctxErr)
	}
	if err != nil {
		return nil, fmt.Errorf("verification fan-out failed: %w", err)
	}

	counts := map[types.VerificationStatus]int{}
	for _, va := range verified {
		counts[va.Outcome.Status]++
		metrics.VerificationsTotal.WithLabelValues(string(va.Outcome.Status)).Inc()
	}

	logger.WithFields(map[string]interface{}{
		"assets":         len(verified),
		"ok":             counts[types.VerificationOK],
		"degraded":       counts[types.VerificationDegraded],
		"not_applicable": counts[types.VerificationNotApplicable],
		"breaker_state":  string(v.breaker.GetState()),
	}).Info("Chain verification complete")

	return verified, nil
}

// verifyOne never returns an error: failures become a degraded outcome
func (v *ChainVerifier) verifyOne(ctx context.Context, asset types.AssetRecord) types.VerifiedAsset {
	result := v.check(ctx, asset)
	result.VerificationTimestamp = v.now()
	return result
}

func (v *ChainVerifier) check(ctx context.Context, asset types.AssetRecord) types.VerifiedAsset {
	result := types.VerifiedAsset{
		Asset:   asset,
		Outcome: types.VerificationOutcome{Status: types.VerificationNotApplicable},
	}

	if !asset.HasContract() || !v.config.SupportsStandard(asset.TokenStandard) {
		return result
	}

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"asset_id": asset.ID,
		"symbol":   asset.Symbol,
		"contract": asset.ContractAddress,
	})

	contract, ok := asset.ContractHex()
	if !ok {
		err := fmt.Errorf("invalid contract address %q", asset.ContractAddress)
		logger.WithError(err).Warn("Contract verification skipped")
		result.Outcome = types.VerificationOutcome{Status: types.VerificationDegraded, Err: err}
		return result
	}

	var exists bool
	err := v.breaker.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, v.config.CallTimeout)
		defer cancel()

		var err error
		exists, err = v.reader.HasCode(callCtx, contract)
		return err
	})
	if err != nil {
		logger.WithError(err).Warn("Contract verification failed")
		result.Outcome = types.VerificationOutcome{Status: types.VerificationDegraded, Err: err}
		return result
	}

	result.Outcome = types.VerificationOutcome{Status: types.VerificationOK}
	result.ContractExists = exists
	result.BlockchainVerified = exists
	if !exists {
		logger.Warn("No contract code at token address")
		return result
	}

	if v.wallet != nil {
		result.PlatformBalance = v.platformBalance(ctx, contract, logger)
	}
	return result
}

// platformBalance is best-effort: a failed read leaves the balance unset
func (v *ChainVerifier) platformBalance(ctx context.Context, token common.Address, logger *logging.Logger) decimal.NullDecimal {
	callCtx, cancel := context.WithTimeout(ctx, v.config.CallTimeout)
	defer cancel()

	balance, err := v.reader.BalanceOf(callCtx, token, *v.wallet)
	if err != nil {
		logger.WithError(err).Debug("Platform balance unavailable")
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromBigInt(balance, 0))
}
