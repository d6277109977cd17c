package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/big"
	"time"

	"github.com/reserve-snapshot/internal/errors"
	"github.com/reserve-snapshot/internal/logging"
	"github.com/reserve-snapshot/internal/metrics"
	"github.com/reserve-snapshot/internal/models"
	"github.com/reserve-snapshot/internal/report"
	"github.com/reserve-snapshot/internal/storage"
	"github.com/reserve-snapshot/internal/types"
)

// Gatherer reads the store input of a run
type Gatherer interface {
	Gather(ctx context.Context) (*GatheredData, error)
}

// Verifier verifies assets on chain, one result per asset in input order
type Verifier interface {
	Verify(ctx context.Context, assets []types.AssetRecord) ([]types.VerifiedAsset, error)
}

// ReportWriter persists snapshots
type ReportWriter interface {
	Prepare() error
	Path(reportDate string) string
	Exists(reportDate string) (bool, error)
	Write(s *models.PoRSnapshot) (string, error)
}

// RunLocker serializes runs for the same report date
type RunLocker interface {
	Acquire(ctx context.Context, reportDate string) (func(context.Context) error, error)
}

// HistorySink records the headline figures of each report
type HistorySink interface {
	Record(ctx context.Context, e storage.ReserveHistoryEntry) error
}

// PipelineDeps wires a pipeline. Lock and History are optional.
type PipelineDeps struct {
	Gatherer   Gatherer
	Verifier   Verifier
	Calculator *ReserveCalculator
	Scorer     *RiskScorer
	Assembler  *ReportAssembler
	Writer     ReportWriter
	Lock       RunLocker
	History    HistorySink
	ChainID    *big.Int
}

// RunResult is the outcome of a successful run
type RunResult struct {
	Path     string
	Snapshot *models.PoRSnapshot
	Timings  []StageTiming
}

// Pipeline runs gather, verify, compute, assemble and persist in order
type Pipeline struct {
	deps PipelineDeps
	now  func() time.Time
}

// NewPipeline creates a new pipeline
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	switch {
	case deps.Gatherer == nil:
		return nil, fmt.Errorf("gatherer is required")
	case deps.Verifier == nil:
		return nil, fmt.Errorf("verifier is required")
	case deps.Assembler == nil:
		return nil, fmt.Errorf("assembler is required")
	case deps.Writer == nil:
		return nil, fmt.Errorf("report writer is required")
	}
	if deps.Calculator == nil {
		deps.Calculator = NewReserveCalculator()
	}
	if deps.Scorer == nil {
		deps.Scorer = NewRiskScorer()
	}

	return &Pipeline{
		deps: deps,
		now:  time.Now,
	}, nil
}

// Run produces and persists the snapshot for the current UTC date. Any
// returned error is categorized for the process exit code.
func (p *Pipeline) Run(ctx context.Context) (result *RunResult, err error) {
	generatedAt := p.now().UTC()
	reportDate := generatedAt.Format(ReportDateLayout)

	logger := logging.FromContext(ctx).WithField("report_date", reportDate)
	ctx = logging.WithLogger(ctx, logger)
	monitor := NewStageMonitor()

	defer func() {
		if err != nil {
			metrics.RunsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
			logger.WithFields(monitor.Fields()).WithField("stage", errors.Stage(err)).WithError(err).Error("Proof-of-reserve run failed")
			return
		}
		metrics.RunsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	}()

	logger.Info("Starting proof-of-reserve run")

	if p.deps.Lock != nil {
		done := monitor.Start(StageLock)
		release, err := p.deps.Lock.Acquire(ctx, reportDate)
		done()
		if err != nil {
			return nil, err
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := release(releaseCtx); err != nil {
				logger.WithError(err).Warn("Failed to release run lock")
			}
		}()
	}

	if err := p.deps.Writer.Prepare(); err != nil {
		return nil, err
	}
	exists, err := p.deps.Writer.Exists(reportDate)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.NewFilesystemError("write report", p.deps.Writer.Path(reportDate), report.ErrReportExists)
	}

	done := monitor.Start(StageGather)
	data, err := p.deps.Gatherer.Gather(ctx)
	done()
	if err != nil {
		return nil, stageError(StageGather, err)
	}

	done = monitor.Start(StageVerify)
	verified, err := p.deps.Verifier.Verify(ctx, data.Assets)
	done()
	if err != nil {
		return nil, stageError(StageVerify, err)
	}
	if len(verified) != len(data.Assets) {
		return nil, errors.NewInternalError(fmt.Sprintf("verifier returned %d results for %d assets", len(verified), len(data.Assets)), nil)
	}

	done = monitor.Start(StageCompute)
	reserve := p.deps.Calculator.Compute(verified, data.Holdings)
	risk := p.deps.Scorer.Score(verified, data.Holdings)
	done()

	if reserve.MixedCurrencies() {
		logger.WithField("currencies", reserve.AssetCurrencies).
			Warn("Asset values in different currencies were summed without conversion")
	}

	done = monitor.Start(StageAssemble)
	snapshot, err := p.deps.Assembler.Assemble(AssemblyInput{
		GeneratedAt: generatedAt,
		ChainID:     p.deps.ChainID,
		Assets:      verified,
		Holdings:    data.Holdings,
		Reserve:     reserve,
		Risk:        risk,
	})
	done()
	if err != nil {
		return nil, stageError(StageAssemble, err)
	}

	done = monitor.Start(StagePersist)
	path, err := p.deps.Writer.Write(snapshot)
	done()
	if err != nil {
		return nil, stageError(StagePersist, err)
	}

	if p.deps.History != nil {
		done = monitor.Start(StageHistory)
		if err := p.deps.History.Record(ctx, historyEntry(snapshot, reportDate)); err != nil {
			logger.WithError(err).Warn("Failed to record reserve history")
		}
		done()
	}

	metrics.ReserveRatio.Set(reserve.ReserveRatio.InexactFloat64())
	metrics.RiskScore.Set(risk.Score)
	metrics.LastSuccess.Set(float64(generatedAt.Unix()))

	logger.WithFields(monitor.Fields()).WithFields(map[string]interface{}{
		"report_id":     snapshot.ReportMetadata.ReportID,
		"assets":        snapshot.AssetsUnderManagement.TotalCount,
		"total_value":   reserve.TotalAssetsUSD.StringFixed(2),
		"reserve_ratio": reserve.ReserveRatio.StringFixed(4),
		"adequacy":      string(reserve.Adequacy),
		"risk_score":    fmt.Sprintf("%.1f%%", risk.Score*100),
		"path":          path,
	}).Info("Proof-of-reserve report generated")

	return &RunResult{
		Path:     path,
		Snapshot: snapshot,
		Timings:  monitor.Timings(),
	}, nil
}

// stageError keeps categorized errors and marks anything else internal
func stageError(stage string, err error) error {
	var catErr *errors.CategorizedError
	if stderrors.As(err, &catErr) {
		return err
	}
	return errors.NewInternalError(stage+" failed", err)
}

func historyEntry(s *models.PoRSnapshot, reportDate string) storage.ReserveHistoryEntry {
	day, _ := time.Parse(ReportDateLayout, reportDate)
	return storage.ReserveHistoryEntry{
		ReportID:            s.ReportMetadata.ReportID,
		ReportDate:          day,
		GeneratedAt:         s.ReportMetadata.GenerationTimestamp,
		TotalAssetsUSD:      s.ReserveSummary.TotalAssetsUSD,
		TotalCommitmentsUSD: s.ReserveSummary.TotalCommitmentsUSD,
		ReserveRatio:        s.ReserveSummary.ReserveRatio,
		ReserveAdequacy:     s.ReserveSummary.ReserveAdequacy,
		RiskScore:           s.RiskAssessment.OverallRiskScore,
		AssetCount:          uint32(s.AssetsUnderManagement.TotalCount),
		ContractTokens:      uint32(s.TokenVerification.TotalTokens),
		VerifiedTokens:      uint32(s.TokenVerification.VerifiedTokens),
		ContentDigest:       s.AuditInformation.ContentDigest,
	}
}
