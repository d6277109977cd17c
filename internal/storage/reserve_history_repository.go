package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"
)

// ReserveHistoryEntry is one generated report's headline figures
type ReserveHistoryEntry struct {
	ReportID            string
	ReportDate          time.Time
	GeneratedAt         time.Time
	TotalAssetsUSD      decimal.Decimal
	TotalCommitmentsUSD decimal.Decimal
	ReserveRatio        decimal.Decimal
	ReserveAdequacy     string
	RiskScore           float64
	AssetCount          uint32
	ContractTokens      uint32
	VerifiedTokens      uint32
	ContentDigest       string
}

// ReserveHistoryRepository appends report figures to ClickHouse
type ReserveHistoryRepository struct {
	conn driver.Conn
}

// NewReserveHistoryRepository creates a new reserve history repository
func NewReserveHistoryRepository(db *ClickHouseDB) *ReserveHistoryRepository {
	return &ReserveHistoryRepository{conn: db.Conn()}
}

// Record inserts one entry. Re-recording a report date is collapsed by the
// table engine, keeping the latest generation.
func (r *ReserveHistoryRepository) Record(ctx context.Context, e ReserveHistoryEntry) error {
	query := `
		INSERT INTO reserve_history (
			report_id, report_date, generated_at,
			total_assets_usd, total_commitments_usd, reserve_ratio, reserve_adequacy,
			risk_score, asset_count, contract_tokens, verified_tokens, content_digest
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if err := r.conn.Exec(ctx, query,
		e.ReportID,
		e.ReportDate,
		e.GeneratedAt,
		e.TotalAssetsUSD,
		e.TotalCommitmentsUSD,
		e.ReserveRatio,
		e.ReserveAdequacy,
		e.RiskScore,
		e.AssetCount,
		e.ContractTokens,
		e.VerifiedTokens,
		e.ContentDigest,
	); err != nil {
		return fmt.Errorf("failed to insert reserve history: %w", err)
	}
	return nil
}

// Recent returns the latest entries, newest report date first
func (r *ReserveHistoryRepository) Recent(ctx context.Context, limit int) ([]ReserveHistoryEntry, error) {
	query := `
		SELECT
			report_id, report_date, generated_at,
			total_assets_usd, total_commitments_usd, reserve_ratio, reserve_adequacy,
			risk_score, asset_count, contract_tokens, verified_tokens, content_digest
		FROM reserve_history FINAL
		ORDER BY report_date DESC
		LIMIT ?
	`

	rows, err := r.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reserve history: %w", err)
	}
	defer rows.Close()

	var entries []ReserveHistoryEntry
	for rows.Next() {
		var e ReserveHistoryEntry
		if err := rows.Scan(
			&e.ReportID,
			&e.ReportDate,
			&e.GeneratedAt,
			&e.TotalAssetsUSD,
			&e.TotalCommitmentsUSD,
			&e.ReserveRatio,
			&e.ReserveAdequacy,
			&e.RiskScore,
			&e.AssetCount,
			&e.ContractTokens,
			&e.VerifiedTokens,
			&e.ContentDigest,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reserve history row: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reserve history rows: %w", err)
	}
	return entries, nil
}
