package service

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/reserve-snapshot/internal/models"
	"github.com/reserve-snapshot/internal/types"
)

// ratioPlaces is the precision the reserve ratio is reported at
const ratioPlaces = 10

// ReserveCalculator aggregates asset value against investor commitments
type ReserveCalculator struct{}

// NewReserveCalculator creates a new reserve calculator
func NewReserveCalculator() *ReserveCalculator {
	return &ReserveCalculator{}
}

// Compute returns the reserve summary. Asset values are summed as stored,
// without currency conversion; AssetCurrencies lists what was mixed.
func (c *ReserveCalculator) Compute(assets []types.VerifiedAsset, holdings []types.HoldingRecord) types.ReserveSummary {
	totalAssets := decimal.Zero
	currencies := map[string]struct{}{}
	for _, va := range assets {
		totalAssets = totalAssets.Add(va.Asset.TotalValue)
		currencies[va.Asset.Currency] = struct{}{}
	}

	totalCommitments := decimal.Zero
	for _, h := range holdings {
		totalCommitments = totalCommitments.Add(h.Amount)
	}

	summary := types.ReserveSummary{
		TotalAssetsUSD:      totalAssets,
		TotalCommitmentsUSD: totalCommitments,
		ReserveRatio:        decimal.Zero,
		Adequacy:            types.AdequacyInsufficient,
		Methodology:         models.CalculationMethodology,
		AssetCurrencies:     sortedKeys(currencies),
	}

	if totalCommitments.IsPositive() {
		summary.ReserveRatio = totalAssets.DivRound(totalCommitments, ratioPlaces)
		// decided on the exact totals so a rounded ratio never flips the verdict
		if totalAssets.GreaterThanOrEqual(totalCommitments) {
			summary.Adequacy = types.AdequacyAdequate
		}
	}

	return summary
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
