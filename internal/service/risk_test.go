package service

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reserve-snapshot/internal/types"
)

func findFactor(factors []types.RiskFactor, kind types.RiskFactorKind) *types.RiskFactor {
	for i := range factors {
		if factors[i].Kind == kind {
			return &factors[i]
		}
	}
	return nil
}

func TestRiskScorer_Empty(t *testing.T) {
	assessment := NewRiskScorer().Score(nil, nil)
	assert.Equal(t, 0.0, assessment.Score)
	assert.NotNil(t, assessment.Factors)
	assert.Empty(t, assessment.Factors)
}

func TestRiskScorer_CompositeScore(t *testing.T) {
	commodity := tokenAsset("a2", "GOLD", 30_000_000, 2)
	commodity.AssetType = "commodity"
	commodity.IssuerJurisdiction = "CH"
	commodity.Liquidity = decimal.NewFromInt(1_500_000)

	assets := []types.VerifiedAsset{
		verifiedAsset(tokenAsset("a1", "MRNA", 50_000_000, 1), true),
		verifiedAsset(commodity, false),
	}

	// diversity 2*0.1, liquidity min(1.0*0.2, 0.2), verification 1/2*0.3, jurisdictions 2*0.05
	assessment := NewRiskScorer().Score(assets, nil)
	assert.InDelta(t, 0.2+0.2+0.15+0.1, assessment.Score, 1e-9)
}

func TestRiskScorer_CapsAndClamp(t *testing.T) {
	var assets []types.VerifiedAsset
	for i, kind := range []string{"a", "b", "c", "d", "e"} {
		a := tokenAsset(kind, kind, 10, i)
		a.AssetType = kind
		a.IssuerJurisdiction = kind
		a.Liquidity = decimal.NewFromInt(10_000_000)
		assets = append(assets, verifiedAsset(a, true))
	}

	// 0.3 + 0.2 + 0.3 + 0.2 reaches the upper bound
	assessment := NewRiskScorer().Score(assets, nil)
	assert.InDelta(t, 1.0, assessment.Score, 1e-9)
}

func TestRiskScorer_NoContracts(t *testing.T) {
	assets := []types.VerifiedAsset{verifiedAsset(testAsset("a1", "MRNA", 10), false)}

	// 0.1 diversity + 0.1 liquidity + 0 verification + 0.05 jurisdiction
	assessment := NewRiskScorer().Score(assets, nil)
	assert.InDelta(t, 0.25, assessment.Score, 1e-9)
	assert.Nil(t, findFactor(assessment.Factors, types.FactorUnverifiedTokens))
}

func TestRiskScorer_UnverifiedTokens(t *testing.T) {
	assets := []types.VerifiedAsset{
		verifiedAsset(tokenAsset("a1", "AAA", 25, 1), true),
		degradedAsset(tokenAsset("a2", "BBB", 25, 2), errors.New("timeout")),
		verifiedAsset(tokenAsset("a3", "CCC", 25, 3), true),
		degradedAsset(tokenAsset("a4", "DDD", 25, 4), errors.New("connection refused")),
	}

	assessment := NewRiskScorer().Score(assets, nil)
	factor := findFactor(assessment.Factors, types.FactorUnverifiedTokens)
	require.NotNil(t, factor)
	assert.Equal(t, types.SeverityMedium, factor.Severity)
	assert.Equal(t, []string{"BBB", "DDD"}, factor.AffectedAssets)
	assert.Equal(t, "2 tokens not verified on blockchain", factor.Description)
}

func TestRiskScorer_LowLiquidity(t *testing.T) {
	thin := testAsset("a2", "THIN", 10)
	thin.Liquidity = decimal.NewFromInt(99_999)
	floor := testAsset("a3", "FLOOR", 10)
	floor.Liquidity = decimal.NewFromInt(100_000)

	assessment := NewRiskScorer().Score([]types.VerifiedAsset{
		verifiedAsset(testAsset("a1", "DEEP", 10), false),
		verifiedAsset(thin, false),
		verifiedAsset(floor, false),
	}, nil)

	factor := findFactor(assessment.Factors, types.FactorLowLiquidity)
	require.NotNil(t, factor)
	assert.Equal(t, types.SeverityLow, factor.Severity)
	assert.Equal(t, []string{"THIN"}, factor.AffectedAssets)
}

func TestRiskScorer_Concentration(t *testing.T) {
	tests := []struct {
		name   string
		values []int64
		want   bool
	}{
		{name: "60 percent", values: []int64{60, 25, 15}, want: true},
		{name: "split below half", values: []int64{30, 30, 25, 15}, want: false},
		{name: "exactly half", values: []int64{50, 30, 20}, want: false},
		{name: "single asset", values: []int64{10}, want: true},
		{name: "all zero", values: []int64{0, 0}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var assets []types.VerifiedAsset
			for i, v := range tt.values {
				assets = append(assets, verifiedAsset(testAsset("a", string(rune('A'+i)), v), false))
			}

			factor := findFactor(NewRiskScorer().Score(assets, nil).Factors, types.FactorConcentration)
			if !tt.want {
				assert.Nil(t, factor)
				return
			}
			require.NotNil(t, factor)
			assert.Equal(t, types.SeverityMedium, factor.Severity)
			assert.Equal(t, []string{"A"}, factor.AffectedAssets)
		})
	}
}

func TestRiskScorer_ConcentrationDescription(t *testing.T) {
	assets := []types.VerifiedAsset{
		verifiedAsset(testAsset("a1", "BIG", 60_000_000), false),
		verifiedAsset(testAsset("a2", "SMALL", 40_000_000), false),
	}
	factor := findFactor(NewRiskScorer().Score(assets, nil).Factors, types.FactorConcentration)
	require.NotNil(t, factor)
	assert.Equal(t, "Largest asset represents 60.0% of total portfolio", factor.Description)
}

func TestRiskScorerProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)
	scorer := NewRiskScorer()

	genAsset := gopter.CombineGens(
		gen.Int64Range(0, 1_000_000_000),
		gen.Int64Range(0, 50_000_000),
		gen.OneConstOf("real_estate", "commodity", "bond", "art", ""),
		gen.OneConstOf("SG", "CH", "GB", "US", "LU", ""),
		gen.Bool(),
		gen.Bool(),
	).Map(func(v []interface{}) types.VerifiedAsset {
		a := testAsset("a", "A", v[0].(int64))
		a.Liquidity = decimal.NewFromInt(v[1].(int64))
		a.AssetType = v[2].(string)
		a.IssuerJurisdiction = v[3].(string)
		if v[4].(bool) {
			a.ContractAddress = contractAddress(1)
		}
		return verifiedAsset(a, v[4].(bool) && v[5].(bool))
	})

	properties.Property("score is always within [0, 1]", prop.ForAll(
		func(assets []types.VerifiedAsset) bool {
			s := scorer.Score(assets, nil).Score
			return s >= 0 && s <= 1
		},
		gen.SliceOf(genAsset),
	))

	properties.Property("concentration factor appears iff the largest asset exceeds half", prop.ForAll(
		func(assets []types.VerifiedAsset) bool {
			total, largest := decimal.Zero, decimal.Zero
			for _, va := range assets {
				total = total.Add(va.Asset.TotalValue)
				if va.Asset.TotalValue.GreaterThan(largest) {
					largest = va.Asset.TotalValue
				}
			}
			want := total.IsPositive() && largest.Mul(decimal.NewFromInt(2)).GreaterThan(total)
			got := findFactor(scorer.Score(assets, nil).Factors, types.FactorConcentration) != nil
			return want == got
		},
		gen.SliceOf(genAsset),
	))

	properties.TestingRun(t)
}
