// Package models defines the persisted proof-of-reserve document.
package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Report constants embedded in every snapshot
const (
	ReportType             = "proof_of_reserve"
	ReportVersion          = "1.0.0"
	CalculationMethodology = "real_time_valuation"
	RegulatoryCompliant    = "compliant"
	MonitoringActive       = "active"
)

// DataSources lists the inputs a reserve calculation draws on
var DataSources = []string{"database", "blockchain", "market_data"}

// MitigationMeasures is the fixed mitigation list attached to every risk assessment
var MitigationMeasures = []string{
	"Regular blockchain verification",
	"Real-time market data monitoring",
	"Compliance screening and KYC",
	"Multi-jurisdictional regulatory compliance",
	"Insurance coverage for assets",
}

// PoRSnapshot is the immutable artifact written once per report date
type PoRSnapshot struct {
	ReportMetadata        ReportMetadata        `json:"report_metadata"`
	AuditInformation      AuditInformation      `json:"audit_information"`
	ReserveSummary        ReserveSummary        `json:"reserve_summary"`
	AssetsUnderManagement AssetsUnderManagement `json:"assets_under_management"`
	TokenVerification     TokenVerification     `json:"token_verification"`
	InvestorHoldings      InvestorHoldings      `json:"investor_holdings"`
	DetailedAssets        []DetailedAsset       `json:"detailed_assets"`
	RiskAssessment        RiskAssessment        `json:"risk_assessment"`
	ComplianceStatus      ComplianceStatus      `json:"compliance_status"`
}

// ReportMetadata identifies the report
type ReportMetadata struct {
	ReportID            string    `json:"report_id"`
	ReportType          string    `json:"report_type"`
	GenerationTimestamp time.Time `json:"generation_timestamp"`
	ReportDate          string    `json:"report_date"`
	Platform            string    `json:"platform"`
	Version             string    `json:"version"`
}

// AuditInformation makes the report self-describing
type AuditInformation struct {
	Auditor         string  `json:"auditor"`
	Methodology     string  `json:"methodology"`
	ConfidenceLevel float64 `json:"confidence_level"`
	AuditDate       string  `json:"audit_date"`
	NextAuditDate   string  `json:"next_audit_date"`
	ContentDigest   string  `json:"content_digest"`
	NetworkID       int64   `json:"network_id"`
	ChainID         string  `json:"chain_id"`
}

// ReserveSummary is the reserve calculation audit trail
type ReserveSummary struct {
	CalculationTimestamp   time.Time       `json:"calculation_timestamp"`
	TotalAssetsUSD         decimal.Decimal `json:"total_assets_usd"`
	TotalCommitmentsUSD    decimal.Decimal `json:"total_commitments_usd"`
	ReserveRatio           decimal.Decimal `json:"reserve_ratio"`
	ReserveAdequacy        string          `json:"reserve_adequacy"`
	CalculationMethodology string          `json:"calculation_methodology"`
	DataSources            []string        `json:"data_sources"`
	CurrencyWarning        []string        `json:"currency_warning,omitempty"`
}

// AssetsUnderManagement holds asset totals and groupings
type AssetsUnderManagement struct {
	TotalCount     int                        `json:"total_count"`
	TotalValueUSD  decimal.Decimal            `json:"total_value_usd"`
	ByType         map[string]decimal.Decimal `json:"by_type"`
	ByJurisdiction map[string]decimal.Decimal `json:"by_jurisdiction"`
}

// TokenVerification holds verification coverage.
// VerificationRate is a percentage rounded to two decimals.
type TokenVerification struct {
	TotalTokens      int     `json:"total_tokens"`
	VerifiedTokens   int     `json:"verified_tokens"`
	DegradedTokens   int     `json:"degraded_tokens"`
	VerificationRate float64 `json:"verification_rate"`
}

// InvestorHoldings holds commitment totals and groupings
type InvestorHoldings struct {
	TotalInvestors    int                        `json:"total_investors"`
	TotalTransactions int                        `json:"total_transactions"`
	TotalVolumeUSD    decimal.Decimal            `json:"total_volume_usd"`
	ByCurrency        map[string]decimal.Decimal `json:"by_currency"`
}

// DetailedAsset is the per-asset verified record
type DetailedAsset struct {
	ID                    string           `json:"id"`
	Name                  string           `json:"name"`
	Symbol                string           `json:"symbol"`
	AssetType             string           `json:"asset_type"`
	TotalValueUSD         decimal.Decimal  `json:"total_value_usd"`
	Currency              string           `json:"currency"`
	Location              string           `json:"location"`
	Issuer                string           `json:"issuer"`
	Jurisdiction          string           `json:"jurisdiction"`
	TokenContract         string           `json:"token_contract"`
	TokenStandard         string           `json:"token_standard"`
	TotalSupply           *decimal.Decimal `json:"total_supply"`
	CurrentPrice          decimal.Decimal  `json:"current_price"`
	MarketCap             decimal.Decimal  `json:"market_cap"`
	Liquidity             decimal.Decimal  `json:"liquidity"`
	BlockchainVerified    bool             `json:"blockchain_verified"`
	ContractExists        bool             `json:"contract_exists"`
	PlatformBalance       *decimal.Decimal `json:"platform_balance,omitempty"`
	VerificationStatus    string           `json:"verification_status"`
	VerificationError     string           `json:"verification_error,omitempty"`
	VerificationTimestamp time.Time        `json:"verification_timestamp"`
	Metadata              json.RawMessage  `json:"metadata,omitempty"`
}

// RiskAssessment holds the composite score and descriptive factors
type RiskAssessment struct {
	OverallRiskScore   float64      `json:"overall_risk_score"`
	RiskFactors        []RiskFactor `json:"risk_factors"`
	MitigationMeasures []string     `json:"mitigation_measures"`
}

// RiskFactor is one identified risk
type RiskFactor struct {
	Factor         string   `json:"factor"`
	Severity       string   `json:"severity"`
	Description    string   `json:"description"`
	AffectedAssets []string `json:"affected_assets"`
}

// ComplianceStatus summarizes externally sourced compliance facts
type ComplianceStatus struct {
	KYCCompletionRate    float64  `json:"kyc_completion_rate"`
	RegulatoryCompliance string   `json:"regulatory_compliance"`
	JurisdictionsCovered []string `json:"jurisdictions_covered"`
	ComplianceMonitoring string   `json:"compliance_monitoring"`
}

// WithoutVolatileFields returns a copy with run-specific fields blanked:
// every timestamp, and the identifiers derived from the content itself.
func (s *PoRSnapshot) WithoutVolatileFields() PoRSnapshot {
	c := *s
	c.ReportMetadata.ReportID = ""
	c.ReportMetadata.GenerationTimestamp = time.Time{}
	c.AuditInformation.ContentDigest = ""
	c.ReserveSummary.CalculationTimestamp = time.Time{}

	c.DetailedAssets = make([]DetailedAsset, len(s.DetailedAssets))
	for i, a := range s.DetailedAssets {
		a.VerificationTimestamp = time.Time{}
		c.DetailedAssets[i] = a
	}
	return c
}
