package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/reserve-snapshot/internal/types"
)

// Mock store sources for testing

type mockAssetSource struct {
	mu     sync.Mutex
	assets []types.AssetRecord
	errs   []error
	calls  int
	delay  time.Duration
}

func (m *mockAssetSource) FetchActiveAssets(ctx context.Context) ([]types.AssetRecord, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if call <= len(m.errs) && m.errs[call-1] != nil {
		return nil, m.errs[call-1]
	}
	return m.assets, nil
}

type mockHoldingSource struct {
	holdings []types.HoldingRecord
	err      error
	calls    int
}

func (m *mockHoldingSource) FetchApprovedHoldings(ctx context.Context) ([]types.HoldingRecord, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.holdings, nil
}

// mockContractReader answers getCode from a fixed table keyed by address
type mockContractReader struct {
	mu       sync.Mutex
	code     map[common.Address]bool
	failures map[common.Address]error
	delays   map[common.Address]time.Duration
	balance  *big.Int
	calls    int
}

func newMockContractReader() *mockContractReader {
	return &mockContractReader{
		code:     map[common.Address]bool{},
		failures: map[common.Address]error{},
		delays:   map[common.Address]time.Duration{},
	}
}

func (m *mockContractReader) HasCode(ctx context.Context, address common.Address) (bool, error) {
	m.mu.Lock()
	m.calls++
	delay := m.delays[address]
	err := m.failures[address]
	exists := m.code[address]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (m *mockContractReader) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	if m.balance == nil {
		return nil, fmt.Errorf("execution reverted")
	}
	return m.balance, nil
}

func (m *mockContractReader) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// contractAddress returns a deterministic address for test asset n
func contractAddress(n int) string {
	return common.BigToAddress(big.NewInt(int64(0x1000 + n))).Hex()
}

func testAsset(id, symbol string, value int64) types.AssetRecord {
	return types.AssetRecord{
		ID:                 id,
		Name:               symbol + " asset",
		AssetType:          "real_estate",
		TotalValue:         decimal.NewFromInt(value),
		Currency:           "USD",
		Status:             types.AssetStatusActive,
		IssuerJurisdiction: "SG",
		Symbol:             symbol,
		Liquidity:          decimal.NewFromInt(500_000),
	}
}

func tokenAsset(id, symbol string, value int64, n int) types.AssetRecord {
	a := testAsset(id, symbol, value)
	a.ContractAddress = contractAddress(n)
	a.TokenStandard = "ERC-3643"
	return a
}

func testHolding(investor string, amount int64) types.HoldingRecord {
	return types.HoldingRecord{
		InvestorID:       investor,
		InvestorName:     investor,
		ComplianceStatus: types.ComplianceApproved,
		Amount:           decimal.NewFromInt(amount),
		Currency:         "USD",
	}
}

// verifiedAsset wraps an asset with a fixed verification result
func verifiedAsset(a types.AssetRecord, verified bool) types.VerifiedAsset {
	status := types.VerificationNotApplicable
	if a.HasContract() {
		status = types.VerificationOK
	}
	return types.VerifiedAsset{
		Asset:                 a,
		Outcome:               types.VerificationOutcome{Status: status},
		BlockchainVerified:    verified,
		ContractExists:        verified,
		VerificationTimestamp: time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC),
	}
}

func degradedAsset(a types.AssetRecord, err error) types.VerifiedAsset {
	va := verifiedAsset(a, false)
	va.Outcome = types.VerificationOutcome{Status: types.VerificationDegraded, Err: err}
	return va
}
