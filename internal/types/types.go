// Package types provides the entity definitions for the proof-of-reserve pipeline.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// AssetStatus represents the registry status of an asset
type AssetStatus string

const (
	// AssetStatusActive marks assets included in a snapshot
	AssetStatusActive AssetStatus = "active"
)

// ComplianceStatus represents an investor's external compliance verdict
type ComplianceStatus string

const (
	// ComplianceApproved marks investors whose commitments are counted
	ComplianceApproved ComplianceStatus = "approved"
)

// SettlementStatus represents the state of a settlement
type SettlementStatus string

const (
	// SettlementCompleted marks settlements whose amount is counted
	SettlementCompleted SettlementStatus = "completed"
)

// Adequacy represents the reserve verdict
type Adequacy string

const (
	// AdequacyAdequate means the reserve ratio is at least 1
	AdequacyAdequate Adequacy = "adequate"
	// AdequacyInsufficient means the reserve ratio is below 1 or undefined
	AdequacyInsufficient Adequacy = "insufficient"
)

// Severity represents the severity of a risk factor
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// RiskFactorKind identifies a kind of portfolio risk
type RiskFactorKind string

const (
	// FactorUnverifiedTokens flags contract-bearing assets that failed verification
	FactorUnverifiedTokens RiskFactorKind = "unverified_tokens"
	// FactorLowLiquidity flags assets below the liquidity floor
	FactorLowLiquidity RiskFactorKind = "low_liquidity"
	// FactorConcentration flags a single asset dominating the portfolio
	FactorConcentration RiskFactorKind = "concentration_risk"
)

// VerificationStatus is the outcome class of one verification call
type VerificationStatus string

const (
	// VerificationOK means the chain answered, whatever it said
	VerificationOK VerificationStatus = "ok"
	// VerificationDegraded means the call errored, timed out or was refused
	VerificationDegraded VerificationStatus = "degraded"
	// VerificationNotApplicable means no supported contract to check
	VerificationNotApplicable VerificationStatus = "not_applicable"
)

// AssetRecord is one custodied or tokenized asset at snapshot time
type AssetRecord struct {
	ID                 string
	Name               string
	Description        string
	AssetType          string
	TotalValue         decimal.Decimal
	Currency           string
	Location           string
	Status             AssetStatus
	Metadata           json.RawMessage
	IssuerName         string
	IssuerJurisdiction string
	ContractAddress    string
	TotalSupply        decimal.NullDecimal
	Symbol             string
	TokenStandard      string
	CurrentPrice       decimal.Decimal
	MarketCap          decimal.Decimal
	Liquidity          decimal.Decimal
}

// HasContract reports whether the asset is bound to an on-chain token contract
func (a *AssetRecord) HasContract() bool {
	return a.ContractAddress != ""
}

// Label returns the identifier used in risk factor listings
func (a *AssetRecord) Label() string {
	switch {
	case a.Symbol != "":
		return a.Symbol
	case a.Name != "":
		return a.Name
	default:
		return a.ID
	}
}

// Validate checks the record invariants at the store boundary
func (a *AssetRecord) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("asset id is empty")
	}
	if a.Status != AssetStatusActive {
		return fmt.Errorf("asset %s: status %q is not active", a.ID, a.Status)
	}
	if a.TotalValue.IsNegative() {
		return fmt.Errorf("asset %s: total value %s is negative", a.ID, a.TotalValue)
	}
	if strings.TrimSpace(a.Currency) == "" {
		return fmt.Errorf("asset %s: currency is empty", a.ID)
	}
	if a.Liquidity.IsNegative() {
		return fmt.Errorf("asset %s: liquidity %s is negative", a.ID, a.Liquidity)
	}
	return nil
}

// ContractHex returns the checksummed contract address, or false when the
// stored address is not a 20-byte hex string
func (a *AssetRecord) ContractHex() (common.Address, bool) {
	if !common.IsHexAddress(a.ContractAddress) {
		return common.Address{}, false
	}
	return common.HexToAddress(a.ContractAddress), true
}

// HoldingRecord is one settled investor commitment
type HoldingRecord struct {
	InvestorID       string
	InvestorName     string
	Nationality      string
	KYCLevel         string
	ComplianceStatus ComplianceStatus
	WalletAddress    string
	Amount           decimal.Decimal
	Currency         string
	SettlementType   string
	SettlementDate   *time.Time
}

// Validate checks the record invariants at the store boundary
func (h *HoldingRecord) Validate() error {
	if h.InvestorID == "" {
		return fmt.Errorf("holding investor id is empty")
	}
	if h.ComplianceStatus != ComplianceApproved {
		return fmt.Errorf("investor %s: compliance status %q is not approved", h.InvestorID, h.ComplianceStatus)
	}
	if h.Amount.IsNegative() {
		return fmt.Errorf("investor %s: amount %s is negative", h.InvestorID, h.Amount)
	}
	return nil
}

// VerificationOutcome is the structured result of one verification call
type VerificationOutcome struct {
	Status VerificationStatus
	Err    error
}

// VerifiedAsset is an AssetRecord plus its chain verification outcome.
// The embedded record is never modified by verification.
type VerifiedAsset struct {
	Asset                 AssetRecord
	Outcome               VerificationOutcome
	BlockchainVerified    bool
	ContractExists        bool
	PlatformBalance       decimal.NullDecimal
	VerificationTimestamp time.Time
}

// VerificationError returns the error note recorded for a degraded call
func (v *VerifiedAsset) VerificationError() string {
	if v.Outcome.Err == nil {
		return ""
	}
	return v.Outcome.Err.Error()
}

// ReserveSummary is the aggregate reserve computation
type ReserveSummary struct {
	TotalAssetsUSD      decimal.Decimal
	TotalCommitmentsUSD decimal.Decimal
	ReserveRatio        decimal.Decimal
	Adequacy            Adequacy
	Methodology         string
	AssetCurrencies     []string
}

// MixedCurrencies reports whether asset values were summed across currencies
func (s *ReserveSummary) MixedCurrencies() bool {
	return len(s.AssetCurrencies) > 1
}

// RiskFactor is one identified portfolio risk
type RiskFactor struct {
	Kind           RiskFactorKind
	Severity       Severity
	Description    string
	AffectedAssets []string
}

// RiskAssessment is the risk scorer output
type RiskAssessment struct {
	Score   float64
	Factors []RiskFactor
}
