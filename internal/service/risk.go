package service

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/reserve-snapshot/internal/types"
)

// Risk score weights
const (
	diversityStep     = 0.1
	diversityCap      = 0.3
	liquidityScale    = 1_000_000
	liquidityWeight   = 0.2
	liquidityCap      = 0.2
	verificationCap   = 0.3
	jurisdictionStep  = 0.05
	jurisdictionCap   = 0.2
	lowLiquidityFloor = 100_000
)

// RiskScorer derives the composite risk score and descriptive risk factors
type RiskScorer struct{}

// NewRiskScorer creates a new risk scorer
func NewRiskScorer() *RiskScorer {
	return &RiskScorer{}
}

// Score returns a score in [0, 1] and the risk factors of the portfolio.
// Factors are descriptive and do not feed the score.
func (s *RiskScorer) Score(assets []types.VerifiedAsset, holdings []types.HoldingRecord) types.RiskAssessment {
	return types.RiskAssessment{
		Score:   s.compositeScore(assets),
		Factors: s.factors(assets),
	}
}

func (s *RiskScorer) compositeScore(assets []types.VerifiedAsset) float64 {
	assetTypes := map[string]struct{}{}
	jurisdictions := map[string]struct{}{}
	liquidity := decimal.Zero
	contractBearing, verified := 0, 0

	for _, va := range assets {
		assetTypes[groupKey(va.Asset.AssetType)] = struct{}{}
		jurisdictions[groupKey(va.Asset.IssuerJurisdiction)] = struct{}{}
		liquidity = liquidity.Add(va.Asset.Liquidity)
		if va.Asset.HasContract() {
			contractBearing++
			if va.BlockchainVerified {
				verified++
			}
		}
	}

	score := math.Min(float64(len(assetTypes))*diversityStep, diversityCap)

	if len(assets) > 0 {
		avg := liquidity.Div(decimal.NewFromInt(int64(len(assets)))).InexactFloat64()
		score += math.Min(avg/liquidityScale*liquidityWeight, liquidityCap)
	}

	if contractBearing > 0 {
		score += float64(verified) / float64(contractBearing) * verificationCap
	}

	score += math.Min(float64(len(jurisdictions))*jurisdictionStep, jurisdictionCap)

	return math.Max(0, math.Min(score, 1))
}

func (s *RiskScorer) factors(assets []types.VerifiedAsset) []types.RiskFactor {
	factors := []types.RiskFactor{}

	var unverified, illiquid []string
	total := decimal.Zero
	var largest *types.VerifiedAsset

	for i := range assets {
		va := &assets[i]
		if va.Asset.HasContract() && !va.BlockchainVerified {
			unverified = append(unverified, va.Asset.Label())
		}
		if va.Asset.Liquidity.LessThan(decimal.NewFromInt(lowLiquidityFloor)) {
			illiquid = append(illiquid, va.Asset.Label())
		}
		total = total.Add(va.Asset.TotalValue)
		if largest == nil || va.Asset.TotalValue.GreaterThan(largest.Asset.TotalValue) {
			largest = va
		}
	}

	if len(unverified) > 0 {
		factors = append(factors, types.RiskFactor{
			Kind:           types.FactorUnverifiedTokens,
			Severity:       types.SeverityMedium,
			Description:    fmt.Sprintf("%d tokens not verified on blockchain", len(unverified)),
			AffectedAssets: unverified,
		})
	}

	if len(illiquid) > 0 {
		factors = append(factors, types.RiskFactor{
			Kind:           types.FactorLowLiquidity,
			Severity:       types.SeverityLow,
			Description:    fmt.Sprintf("%d assets with low liquidity", len(illiquid)),
			AffectedAssets: illiquid,
		})
	}

	// largest share strictly above one half, compared exactly
	if largest != nil && total.IsPositive() && largest.Asset.TotalValue.Mul(decimal.NewFromInt(2)).GreaterThan(total) {
		share := largest.Asset.TotalValue.Mul(decimal.NewFromInt(100)).Div(total)
		factors = append(factors, types.RiskFactor{
			Kind:           types.FactorConcentration,
			Severity:       types.SeverityMedium,
			Description:    fmt.Sprintf("Largest asset represents %s%% of total portfolio", share.StringFixed(1)),
			AffectedAssets: []string{largest.Asset.Label()},
		})
	}

	return factors
}

// groupKey maps a missing grouping attribute to "unknown"
func groupKey(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
