package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reserve-snapshot/internal/adapter"
	"github.com/reserve-snapshot/internal/circuitbreaker"
	"github.com/reserve-snapshot/internal/config"
	"github.com/reserve-snapshot/internal/types"
)

func newTestVerifier(t *testing.T, reader ContractReader, breaker *circuitbreaker.CircuitBreaker, cfg VerifierConfig) *ChainVerifier {
	t.Helper()
	if cfg.SupportsStandard == nil {
		cfg.SupportsStandard = config.ChainConfig{TokenStandards: []string{"ERC-3643"}}.SupportsStandard
	}
	v, err := NewChainVerifier(reader, breaker, cfg)
	require.NoError(t, err)
	return v
}

func TestChainVerifier_Outcomes(t *testing.T) {
	reader := newMockContractReader()
	reader.code[common.HexToAddress(contractAddress(1))] = true
	reader.failures[common.HexToAddress(contractAddress(2))] = errors.New("connection refused")
	// contract 3 has no code

	unsupported := tokenAsset("a5", "ERC20", 10, 5)
	unsupported.TokenStandard = "ERC-20"
	invalid := testAsset("a6", "BAD", 10)
	invalid.ContractAddress = "0xnot-an-address"
	invalid.TokenStandard = "ERC-3643"

	assets := []types.AssetRecord{
		tokenAsset("a1", "LIVE", 10, 1),
		tokenAsset("a2", "DOWN", 10, 2),
		tokenAsset("a3", "GONE", 10, 3),
		testAsset("a4", "OFFCHAIN", 10),
		unsupported,
		invalid,
	}

	v := newTestVerifier(t, reader, nil, VerifierConfig{Concurrency: 3, CallTimeout: time.Second})
	results, err := v.Verify(context.Background(), assets)
	require.NoError(t, err)
	require.Len(t, results, len(assets))

	live := results[0]
	assert.Equal(t, types.VerificationOK, live.Outcome.Status)
	assert.True(t, live.BlockchainVerified)
	assert.True(t, live.ContractExists)
	assert.Empty(t, live.VerificationError())

	down := results[1]
	assert.Equal(t, types.VerificationDegraded, down.Outcome.Status)
	assert.False(t, down.BlockchainVerified)
	assert.Contains(t, down.VerificationError(), "connection refused")

	gone := results[2]
	assert.Equal(t, types.VerificationOK, gone.Outcome.Status)
	assert.False(t, gone.ContractExists)
	assert.False(t, gone.BlockchainVerified)
	assert.Empty(t, gone.VerificationError())

	offchain := results[3]
	assert.Equal(t, types.VerificationNotApplicable, offchain.Outcome.Status)
	assert.False(t, offchain.BlockchainVerified)
	assert.Empty(t, offchain.VerificationError())

	assert.Equal(t, types.VerificationNotApplicable, results[4].Outcome.Status)
	assert.False(t, results[4].BlockchainVerified)

	assert.Equal(t, types.VerificationDegraded, results[5].Outcome.Status)
	assert.Contains(t, results[5].VerificationError(), "invalid contract address")

	for i, r := range results {
		assert.Equal(t, assets[i].ID, r.Asset.ID, "order preserved")
		assert.Equal(t, assets[i], r.Asset, "input record is not modified")
		assert.False(t, r.VerificationTimestamp.IsZero())
	}
	assert.Equal(t, 3, reader.callCount(), "only supported contracts with valid addresses are queried")
}

func TestChainVerifier_PreservesOrderUnderConcurrency(t *testing.T) {
	reader := newMockContractReader()
	var assets []types.AssetRecord
	for i := 0; i < 20; i++ {
		addr := common.HexToAddress(contractAddress(i))
		reader.code[addr] = true
		reader.delays[addr] = time.Duration(20-i) * time.Millisecond
		assets = append(assets, tokenAsset(string(rune('a'+i)), "T", 10, i))
	}

	v := newTestVerifier(t, reader, nil, VerifierConfig{Concurrency: 8, CallTimeout: time.Second})
	results, err := v.Verify(context.Background(), assets)
	require.NoError(t, err)
	require.Len(t, results, 20)
	for i, r := range results {
		assert.Equal(t, assets[i].ID, r.Asset.ID)
		assert.True(t, r.BlockchainVerified)
	}
}

func TestChainVerifier_CallTimeout(t *testing.T) {
	reader := newMockContractReader()
	slow := common.HexToAddress(contractAddress(1))
	reader.code[slow] = true
	reader.delays[slow] = 5 * time.Second
	reader.code[common.HexToAddress(contractAddress(2))] = true

	v := newTestVerifier(t, reader, nil, VerifierConfig{Concurrency: 2, CallTimeout: 50 * time.Millisecond})

	start := time.Now()
	results, err := v.Verify(context.Background(), []types.AssetRecord{
		tokenAsset("a1", "SLOW", 10, 1),
		tokenAsset("a2", "FAST", 10, 2),
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second, "verification never waits past the call timeout")

	assert.Equal(t, types.VerificationDegraded, results[0].Outcome.Status)
	assert.ErrorIs(t, results[0].Outcome.Err, context.DeadlineExceeded)
	assert.True(t, results[1].BlockchainVerified)
}

func TestChainVerifier_TokenFailuresStayLocal(t *testing.T) {
	reader := newMockContractReader()
	var assets []types.AssetRecord
	for i := 0; i < 8; i++ {
		addr := common.HexToAddress(contractAddress(i))
		if i < 5 {
			reader.failures[addr] = errors.New("execution timeout")
		} else {
			reader.code[addr] = true
		}
		assets = append(assets, tokenAsset(string(rune('a'+i)), fmt.Sprintf("T%d", i+1), 10, i))
	}

	breaker := adapter.NewEndpointBreaker(5)
	v := newTestVerifier(t, reader, breaker, VerifierConfig{Concurrency: 1, CallTimeout: time.Second})

	results, err := v.Verify(context.Background(), assets)
	require.NoError(t, err)
	require.Len(t, results, 8)
	for i, r := range results {
		if i < 5 {
			assert.Equal(t, types.VerificationDegraded, r.Outcome.Status, r.Asset.Symbol)
			assert.False(t, r.BlockchainVerified, r.Asset.Symbol)
			continue
		}
		assert.Equal(t, types.VerificationOK, r.Outcome.Status, r.Asset.Symbol)
		assert.True(t, r.BlockchainVerified, r.Asset.Symbol)
	}
	assert.Equal(t, 8, reader.callCount())
	assert.Equal(t, circuitbreaker.StateClosed, breaker.GetState())

	section := verificationSection(results)
	assert.Equal(t, 37.5, section.VerificationRate)
}

func TestChainVerifier_EndpointDownFailsFast(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}

	reader := newMockContractReader()
	var assets []types.AssetRecord
	for i := 0; i < 6; i++ {
		reader.failures[common.HexToAddress(contractAddress(i))] = fmt.Errorf("eth_getCode: %w", refused)
		assets = append(assets, tokenAsset(string(rune('a'+i)), "T", 10, i))
	}

	breaker := adapter.NewEndpointBreaker(2)
	v := newTestVerifier(t, reader, breaker, VerifierConfig{Concurrency: 1, CallTimeout: time.Second})

	results, err := v.Verify(context.Background(), assets)
	require.NoError(t, err)
	require.Len(t, results, 6)
	for _, r := range results {
		assert.Equal(t, types.VerificationDegraded, r.Outcome.Status)
	}
	assert.Equal(t, 2, reader.callCount())
	assert.ErrorIs(t, results[5].Outcome.Err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, circuitbreaker.StateOpen, breaker.GetState())
}

func TestChainVerifier_PlatformBalance(t *testing.T) {
	reader := newMockContractReader()
	reader.code[common.HexToAddress(contractAddress(1))] = true
	wallet := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	v := newTestVerifier(t, reader, nil, VerifierConfig{Concurrency: 1, CallTimeout: time.Second, PlatformWallet: wallet})
	results, err := v.Verify(context.Background(), []types.AssetRecord{tokenAsset("a1", "LIVE", 10, 1)})
	require.NoError(t, err)
	assert.True(t, results[0].BlockchainVerified)
	assert.False(t, results[0].PlatformBalance.Valid, "a failed balance read does not fail verification")

	reader.balance = big.NewInt(1_500_000)
	results, err = v.Verify(context.Background(), []types.AssetRecord{tokenAsset("a1", "LIVE", 10, 1)})
	require.NoError(t, err)
	require.True(t, results[0].PlatformBalance.Valid)
	assert.Equal(t, "1500000", results[0].PlatformBalance.Decimal.String())
}

func TestChainVerifier_InvalidWallet(t *testing.T) {
	_, err := NewChainVerifier(newMockContractReader(), nil, VerifierConfig{PlatformWallet: "not-a-wallet"})
	assert.Error(t, err)

	_, err = NewChainVerifier(nil, nil, VerifierConfig{})
	assert.Error(t, err)
}

func TestChainVerifier_Cancelled(t *testing.T) {
	reader := newMockContractReader()
	var assets []types.AssetRecord
	for i := 0; i < 4; i++ {
		addr := common.HexToAddress(contractAddress(i))
		reader.code[addr] = true
		reader.delays[addr] = time.Second
		assets = append(assets, tokenAsset(string(rune('a'+i)), "T", 10, i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := newTestVerifier(t, reader, nil, VerifierConfig{Concurrency: 1, CallTimeout: 5 * time.Second})
	_, err := v.Verify(ctx, assets)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChainVerifier_Empty(t *testing.T) {
	v := newTestVerifier(t, newMockContractReader(), nil, VerifierConfig{Concurrency: 4})
	results, err := v.Verify(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}
