package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/reserve-snapshot/internal/errors"
	"github.com/reserve-snapshot/internal/report"
	"github.com/reserve-snapshot/internal/storage"
	"github.com/reserve-snapshot/internal/types"
)

type mockRunLock struct {
	held     map[string]bool
	released []string
}

func (m *mockRunLock) Acquire(ctx context.Context, reportDate string) (func(context.Context) error, error) {
	if m.held[reportDate] {
		return nil, apperrors.NewLockHeldError(reportDate)
	}
	m.held[reportDate] = true
	return func(ctx context.Context) error {
		delete(m.held, reportDate)
		m.released = append(m.released, reportDate)
		return nil
	}, nil
}

type mockHistorySink struct {
	mu      sync.Mutex
	entries []storage.ReserveHistoryEntry
	err     error
}

func (m *mockHistorySink) Record(ctx context.Context, e storage.ReserveHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

type pipelineFixture struct {
	fs       afero.Fs
	assets   *mockAssetSource
	holdings *mockHoldingSource
	reader   *mockContractReader
	lock     *mockRunLock
	history  *mockHistorySink
	now      time.Time
}

func newPipelineFixture() *pipelineFixture {
	reader := newMockContractReader()
	reader.code[common.HexToAddress(contractAddress(1))] = true
	reader.code[common.HexToAddress(contractAddress(2))] = true

	return &pipelineFixture{
		fs: afero.NewMemMapFs(),
		assets: &mockAssetSource{assets: []types.AssetRecord{
			tokenAsset("a1", "MRNA", 50_000_000, 1),
			tokenAsset("a2", "GOLD", 30_000_000, 2),
			testAsset("a3", "BOND", 20_000_000),
		}},
		holdings: &mockHoldingSource{holdings: []types.HoldingRecord{
			testHolding("i1", 25_000_000),
			testHolding("i2", 15_000_000),
		}},
		reader:  reader,
		lock:    &mockRunLock{held: map[string]bool{}},
		history: &mockHistorySink{},
		now:     time.Date(2026, 10, 18, 0, 0, 5, 0, time.UTC),
	}
}

func (f *pipelineFixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	verifier := newTestVerifier(t, f.reader, nil, VerifierConfig{Concurrency: 4, CallTimeout: time.Second})

	p, err := NewPipeline(PipelineDeps{
		Gatherer:  NewDataGatherer(f.assets, f.holdings, GathererConfig{QueryTimeout: time.Second, Retry: fastRetry(2)}),
		Verifier:  verifier,
		Assembler: testAssembler(),
		Writer:    report.NewWriter(f.fs, "reports"),
		Lock:      f.lock,
		History:   f.history,
		ChainID:   big.NewInt(1337),
	})
	require.NoError(t, err)
	p.now = func() time.Time { return f.now }
	return p
}

func TestPipeline_Run(t *testing.T) {
	f := newPipelineFixture()

	result, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "reports/proof-of-reserve-2026-10-18.json", result.Path)

	stored, err := report.NewStore(f.fs, "reports").Read("2026-10-18")
	require.NoError(t, err)
	assert.Equal(t, result.Snapshot.ReportMetadata.ReportID, stored.ReportMetadata.ReportID)
	assert.Equal(t, "2.5", stored.ReserveSummary.ReserveRatio.String())
	assert.Equal(t, "adequate", stored.ReserveSummary.ReserveAdequacy)
	assert.Equal(t, 100.0, stored.TokenVerification.VerificationRate)
	require.Len(t, stored.DetailedAssets, 3)
	assert.Equal(t, "MRNA", stored.DetailedAssets[0].Symbol)

	ok, _, err := report.VerifyDigest(stored)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{"2026-10-18"}, f.lock.released)
	require.Len(t, f.history.entries, 1)
	assert.Equal(t, result.Snapshot.ReportMetadata.ReportID, f.history.entries[0].ReportID)
	assert.Equal(t, uint32(2), f.history.entries[0].VerifiedTokens)

	stages := map[string]bool{}
	for _, timing := range result.Timings {
		stages[timing.Stage] = true
	}
	for _, stage := range []string{StageLock, StageGather, StageVerify, StageCompute, StageAssemble, StagePersist, StageHistory} {
		assert.True(t, stages[stage], "stage %s timed", stage)
	}
}

func TestPipeline_WriteOnce(t *testing.T) {
	f := newPipelineFixture()
	p := f.pipeline(t)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, report.ErrReportExists)
	assert.Equal(t, apperrors.ExitFilesystem, apperrors.ExitCode(err))
	assert.Equal(t, 1, f.assets.calls, "an existing artifact stops the run before the store is queried")
	assert.Len(t, f.lock.released, 2, "lock released on failure too")
}

func TestPipeline_Idempotent(t *testing.T) {
	first := newPipelineFixture()
	firstResult, err := first.pipeline(t).Run(context.Background())
	require.NoError(t, err)

	second := newPipelineFixture()
	second.now = second.now.Add(6 * time.Hour)
	secondResult, err := second.pipeline(t).Run(context.Background())
	require.NoError(t, err)

	a, b := firstResult.Snapshot, secondResult.Snapshot
	assert.Equal(t, a.ReportMetadata.ReportID, b.ReportMetadata.ReportID)
	assert.Equal(t, a.AuditInformation.ContentDigest, b.AuditInformation.ContentDigest)
	assert.Equal(t, a.WithoutVolatileFields(), b.WithoutVolatileFields())
}

func TestPipeline_DegradedVerificationStillProducesReport(t *testing.T) {
	f := newPipelineFixture()
	f.reader.failures[common.HexToAddress(contractAddress(2))] = errors.New("503 service unavailable")

	result, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)

	s := result.Snapshot
	assert.Equal(t, 50.0, s.TokenVerification.VerificationRate)
	assert.Equal(t, 1, s.TokenVerification.DegradedTokens)
	assert.Contains(t, s.DetailedAssets[1].VerificationError, "503")
	require.NotEmpty(t, s.RiskAssessment.RiskFactors)
	assert.Equal(t, "unverified_tokens", s.RiskAssessment.RiskFactors[0].Factor)
	assert.Equal(t, []string{"GOLD"}, s.RiskAssessment.RiskFactors[0].AffectedAssets)
}

func TestPipeline_EmptyStore(t *testing.T) {
	f := newPipelineFixture()
	f.assets.assets = []types.AssetRecord{}
	f.holdings.holdings = []types.HoldingRecord{}

	result, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)

	s := result.Snapshot
	assert.Empty(t, s.DetailedAssets)
	assert.Empty(t, s.RiskAssessment.RiskFactors)
	assert.True(t, s.ReserveSummary.TotalAssetsUSD.IsZero())
	assert.True(t, s.ReserveSummary.ReserveRatio.IsZero())
	assert.Equal(t, "insufficient", s.ReserveSummary.ReserveAdequacy)
	assert.Equal(t, 0.0, s.TokenVerification.VerificationRate)
}

func TestPipeline_StoreFailureIsFatal(t *testing.T) {
	f := newPipelineFixture()
	unreachable := apperrors.NewConnectionError("postgres localhost:5432", errors.New("connection refused"))
	f.assets.errs = []error{unreachable, unreachable}

	_, err := f.pipeline(t).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.ExitConnection, apperrors.ExitCode(err))
	assert.Equal(t, "connection", apperrors.Stage(err))

	exists, _ := afero.Exists(f.fs, "reports/proof-of-reserve-2026-10-18.json")
	assert.False(t, exists, "no artifact on fatal failure")
	assert.Empty(t, f.history.entries)
}

func TestPipeline_LockHeld(t *testing.T) {
	f := newPipelineFixture()
	f.lock.held["2026-10-18"] = true

	_, err := f.pipeline(t).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.ExitLock, apperrors.ExitCode(err))
	assert.Equal(t, 0, f.assets.calls)
}

func TestPipeline_HistoryFailureIsNotFatal(t *testing.T) {
	f := newPipelineFixture()
	f.history.err = errors.New("clickhouse unavailable")

	result, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, result.Path)
}

func TestPipeline_UnwritableOutput(t *testing.T) {
	f := newPipelineFixture()
	f.fs = afero.NewReadOnlyFs(afero.NewMemMapFs())

	_, err := f.pipeline(t).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.ExitFilesystem, apperrors.ExitCode(err))
	assert.Equal(t, 0, f.assets.calls)
}

func TestPipeline_Cancelled(t *testing.T) {
	f := newPipelineFixture()
	f.reader.delays[common.HexToAddress(contractAddress(1))] = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline(t).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	exists, _ := afero.Exists(f.fs, "reports/proof-of-reserve-2026-10-18.json")
	assert.False(t, exists)
}

func TestNewPipeline_RequiresStages(t *testing.T) {
	_, err := NewPipeline(PipelineDeps{})
	assert.Error(t, err)
}
