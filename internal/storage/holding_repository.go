package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/reserve-snapshot/internal/errors"
	"github.com/reserve-snapshot/internal/types"
)

// QueryApprovedHoldings names the holdings query in errors and logs
const QueryApprovedHoldings = "approved_holdings"

// approvedHoldingsQuery returns one row per completed settlement of an
// approved investor. The wallet join is limited to one row per investor so
// investors with several wallets are not counted more than once.
const approvedHoldingsQuery = `
	SELECT
		i.id::text,
		i.name,
		COALESCE(i.nationality, ''),
		COALESCE(i.kyc_level, ''),
		i.compliance_status,
		COALESCE(w.wallet_address, ''),
		s.amount::text,
		COALESCE(s.currency, ''),
		COALESCE(s.settlement_type, ''),
		s.settlement_date
	FROM investors i
	JOIN settlements s ON s.investor_id = i.id
	LEFT JOIN LATERAL (
		SELECT wallet_address
		FROM investor_wallets iw
		WHERE iw.investor_id = i.id
		ORDER BY iw.created_at, iw.id
		LIMIT 1
	) w ON true
	WHERE i.compliance_status = 'approved'
		AND s.status = 'completed'
	ORDER BY s.settlement_date NULLS LAST, s.id
`

// HoldingRepository reads settled investor commitments
type HoldingRepository struct {
	db Querier
}

// NewHoldingRepository creates a new holding repository
func NewHoldingRepository(db Querier) *HoldingRepository {
	return &HoldingRepository{db: db}
}

// FetchApprovedHoldings returns every completed settlement of an approved investor
func (r *HoldingRepository) FetchApprovedHoldings(ctx context.Context) ([]types.HoldingRecord, error) {
	rows, err := r.db.Query(ctx, approvedHoldingsQuery)
	if err != nil {
		return nil, errors.NewQueryError(QueryApprovedHoldings, err)
	}
	defer rows.Close()

	holdings := []types.HoldingRecord{}
	for rows.Next() {
		var (
			h              types.HoldingRecord
			status, amount string
			settledAt      *time.Time
		)

		if err := rows.Scan(
			&h.InvestorID,
			&h.InvestorName,
			&h.Nationality,
			&h.KYCLevel,
			&status,
			&h.WalletAddress,
			&amount,
			&h.Currency,
			&h.SettlementType,
			&settledAt,
		); err != nil {
			return nil, errors.NewQueryError(QueryApprovedHoldings, fmt.Errorf("failed to scan holding row: %w", err))
		}

		h.ComplianceStatus = types.ComplianceStatus(status)
		if settledAt != nil {
			utc := settledAt.UTC()
			h.SettlementDate = &utc
		}

		h.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, errors.NewInternalError(fmt.Sprintf("investor %s has a malformed settlement amount", h.InvestorID), err)
		}

		if err := h.Validate(); err != nil {
			return nil, errors.NewInternalError("invalid holding record", err)
		}
		holdings = append(holdings, h)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryError(QueryApprovedHoldings, fmt.Errorf("error iterating holding rows: %w", err))
	}

	return holdings, nil
}
