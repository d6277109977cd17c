package service

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/reserve-snapshot/internal/models"
	"github.com/reserve-snapshot/internal/report"
	"github.com/reserve-snapshot/internal/types"
)

// ReportDateLayout is the layout of report dates and artifact names
const ReportDateLayout = "2006-01-02"

// AssemblerConfig holds the fixed annotations embedded in every report
type AssemblerConfig struct {
	Platform        string
	Auditor         string
	Methodology     string
	ConfidenceLevel float64
	IntervalDays    int
	NetworkID       int64
}

// AssemblyInput is everything one report is built from
type AssemblyInput struct {
	GeneratedAt time.Time
	ChainID     *big.Int
	Assets      []types.VerifiedAsset
	Holdings    []types.HoldingRecord
	Reserve     types.ReserveSummary
	Risk        types.RiskAssessment
}

// ReportAssembler merges the pipeline results into one snapshot document
type ReportAssembler struct {
	config AssemblerConfig
}

// NewReportAssembler creates a new report assembler
func NewReportAssembler(config AssemblerConfig) *ReportAssembler {
	return &ReportAssembler{config: config}
}

// Assemble builds the snapshot and seals it with its content digest and
// report id. The report date is the UTC date of GeneratedAt.
func (a *ReportAssembler) Assemble(in AssemblyInput) (*models.PoRSnapshot, error) {
	generated := in.GeneratedAt.UTC()
	reportDay := time.Date(generated.Year(), generated.Month(), generated.Day(), 0, 0, 0, 0, time.UTC)
	reportDate := reportDay.Format(ReportDateLayout)

	chainID := ""
	if in.ChainID != nil {
		chainID = in.ChainID.String()
	}

	snapshot := &models.PoRSnapshot{
		ReportMetadata: models.ReportMetadata{
			ReportType:          models.ReportType,
			GenerationTimestamp: generated,
			ReportDate:          reportDate,
			Platform:            a.config.Platform,
			Version:             models.ReportVersion,
		},
		AuditInformation: models.AuditInformation{
			Auditor:         a.config.Auditor,
			Methodology:     a.config.Methodology,
			ConfidenceLevel: a.config.ConfidenceLevel,
			AuditDate:       reportDate,
			NextAuditDate:   reportDay.AddDate(0, 0, a.config.IntervalDays).Format(ReportDateLayout),
			NetworkID:       a.config.NetworkID,
			ChainID:         chainID,
		},
		ReserveSummary:        a.reserveSection(generated, in.Reserve),
		AssetsUnderManagement: assetsSection(in.Assets),
		TokenVerification:     verificationSection(in.Assets),
		InvestorHoldings:      holdingsSection(in.Holdings),
		DetailedAssets:        detailedAssets(in.Assets),
		RiskAssessment:        riskSection(in.Risk),
		ComplianceStatus:      complianceSection(in.Assets, in.Holdings),
	}

	if err := report.Seal(snapshot); err != nil {
		return nil, fmt.Errorf("failed to seal snapshot: %w", err)
	}
	return snapshot, nil
}

func (a *ReportAssembler) reserveSection(generated time.Time, r types.ReserveSummary) models.ReserveSummary {
	section := models.ReserveSummary{
		CalculationTimestamp:   generated,
		TotalAssetsUSD:         r.TotalAssetsUSD,
		TotalCommitmentsUSD:    r.TotalCommitmentsUSD,
		ReserveRatio:           r.ReserveRatio,
		ReserveAdequacy:        string(r.Adequacy),
		CalculationMethodology: r.Methodology,
		DataSources:            append([]string(nil), models.DataSources...),
	}
	if r.MixedCurrencies() {
		section.CurrencyWarning = append([]string(nil), r.AssetCurrencies...)
	}
	return section
}

func assetsSection(assets []types.VerifiedAsset) models.AssetsUnderManagement {
	section := models.AssetsUnderManagement{
		TotalCount:     len(assets),
		TotalValueUSD:  decimal.Zero,
		ByType:         map[string]decimal.Decimal{},
		ByJurisdiction: map[string]decimal.Decimal{},
	}
	for _, va := range assets {
		value := va.Asset.TotalValue
		section.TotalValueUSD = section.TotalValueUSD.Add(value)

		typeKey := groupKey(va.Asset.AssetType)
		section.ByType[typeKey] = section.ByType[typeKey].Add(value)

		jurisdictionKey := groupKey(va.Asset.IssuerJurisdiction)
		section.ByJurisdiction[jurisdictionKey] = section.ByJurisdiction[jurisdictionKey].Add(value)
	}
	return section
}

// verificationSection reports the verified share of contract-bearing assets
// as a percentage rounded to two places, 0 when none carry a contract
func verificationSection(assets []types.VerifiedAsset) models.TokenVerification {
	section := models.TokenVerification{}
	for _, va := range assets {
		if !va.Asset.HasContract() {
			continue
		}
		section.TotalTokens++
		if va.BlockchainVerified {
			section.VerifiedTokens++
		}
		if va.Outcome.Status == types.VerificationDegraded {
			section.DegradedTokens++
		}
	}

	if section.TotalTokens > 0 {
		section.VerificationRate = decimal.NewFromInt(int64(section.VerifiedTokens)).
			Mul(decimal.NewFromInt(100)).
			DivRound(decimal.NewFromInt(int64(section.TotalTokens)), 2).
			InexactFloat64()
	}
	return section
}

func holdingsSection(holdings []types.HoldingRecord) models.InvestorHoldings {
	section := models.InvestorHoldings{
		TotalTransactions: len(holdings),
		TotalVolumeUSD:    decimal.Zero,
		ByCurrency:        map[string]decimal.Decimal{},
	}

	investors := map[string]struct{}{}
	for _, h := range holdings {
		investors[h.InvestorID] = struct{}{}
		section.TotalVolumeUSD = section.TotalVolumeUSD.Add(h.Amount)

		currency := groupKey(h.Currency)
		section.ByCurrency[currency] = section.ByCurrency[currency].Add(h.Amount)
	}
	section.TotalInvestors = len(investors)
	return section
}

func detailedAssets(assets []types.VerifiedAsset) []models.DetailedAsset {
	detailed := make([]models.DetailedAsset, 0, len(assets))
	for _, va := range assets {
		a := va.Asset
		d := models.DetailedAsset{
			ID:                    a.ID,
			Name:                  a.Name,
			Symbol:                a.Symbol,
			AssetType:             a.AssetType,
			TotalValueUSD:         a.TotalValue,
			Currency:              a.Currency,
			Location:              a.Location,
			Issuer:                a.IssuerName,
			Jurisdiction:          a.IssuerJurisdiction,
			TokenContract:         a.ContractAddress,
			TokenStandard:         a.TokenStandard,
			CurrentPrice:          a.CurrentPrice,
			MarketCap:             a.MarketCap,
			Liquidity:             a.Liquidity,
			BlockchainVerified:    va.BlockchainVerified,
			ContractExists:        va.ContractExists,
			VerificationStatus:    string(va.Outcome.Status),
			VerificationError:     va.VerificationError(),
			VerificationTimestamp: va.VerificationTimestamp,
			Metadata:              a.Metadata,
		}
		if a.TotalSupply.Valid {
			supply := a.TotalSupply.Decimal
			d.TotalSupply = &supply
		}
		if va.PlatformBalance.Valid {
			balance := va.PlatformBalance.Decimal
			d.PlatformBalance = &balance
		}
		detailed = append(detailed, d)
	}
	return detailed
}

func riskSection(r types.RiskAssessment) models.RiskAssessment {
	section := models.RiskAssessment{
		OverallRiskScore:   r.Score,
		RiskFactors:        make([]models.RiskFactor, 0, len(r.Factors)),
		MitigationMeasures: append([]string(nil), models.MitigationMeasures...),
	}
	for _, f := range r.Factors {
		section.RiskFactors = append(section.RiskFactors, models.RiskFactor{
			Factor:         string(f.Kind),
			Severity:       string(f.Severity),
			Description:    f.Description,
			AffectedAssets: append([]string{}, f.AffectedAssets...),
		})
	}
	return section
}

// complianceSection aggregates compliance facts recorded upstream. Holdings
// reach this stage already filtered to approved investors.
func complianceSection(assets []types.VerifiedAsset, holdings []types.HoldingRecord) models.ComplianceStatus {
	investors := map[string]bool{}
	for _, h := range holdings {
		investors[h.InvestorID] = investors[h.InvestorID] || h.ComplianceStatus == types.ComplianceApproved
	}
	approved := 0
	for _, ok := range investors {
		if ok {
			approved++
		}
	}

	kycRate := 0.0
	if len(investors) > 0 {
		kycRate = float64(approved) / float64(len(investors))
	}

	jurisdictions := map[string]struct{}{}
	for _, va := range assets {
		jurisdictions[groupKey(va.Asset.IssuerJurisdiction)] = struct{}{}
	}

	return models.ComplianceStatus{
		KYCCompletionRate:    kycRate,
		RegulatoryCompliance: models.RegulatoryCompliant,
		JurisdictionsCovered: sortedKeys(jurisdictions),
		ComplianceMonitoring: models.MonitoringActive,
	}
}
