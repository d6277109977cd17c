package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/reserve-snapshot/internal/errors"
	"github.com/reserve-snapshot/internal/types"
)

// QueryActiveAssets names the asset query in errors and logs
const QueryActiveAssets = "active_assets"

// activeAssetsQuery returns one row per active asset with its token, the
// latest market data row and the summed pool liquidity. Numerics are read
// as text so no precision is lost on the way into decimal.Decimal.
const activeAssetsQuery = `
	SELECT
		a.id::text,
		a.name,
		COALESCE(a.description, ''),
		a.asset_type,
		a.total_value::text,
		a.currency,
		COALESCE(a.location, ''),
		a.status,
		COALESCE(a.metadata, '{}'::jsonb)::text,
		COALESCE(i.name, ''),
		COALESCE(i.jurisdiction, ''),
		COALESCE(t.contract_address, ''),
		t.total_supply::text,
		COALESCE(t.symbol, ''),
		COALESCE(t.token_standard, ''),
		COALESCE(md.price, 0)::text,
		COALESCE(md.market_cap, 0)::text,
		COALESCE(lp.total_liquidity, 0)::text
	FROM assets a
	LEFT JOIN issuers i ON a.issuer_id = i.id
	LEFT JOIN LATERAL (
		SELECT contract_address, total_supply, symbol, token_standard
		FROM tokens
		WHERE tokens.asset_id = a.id
		ORDER BY created_at DESC, id
		LIMIT 1
	) t ON true
	LEFT JOIN (
		SELECT DISTINCT ON (asset_id) asset_id, price, market_cap
		FROM market_data
		ORDER BY asset_id, timestamp DESC
	) md ON a.id = md.asset_id
	LEFT JOIN (
		SELECT asset_id, SUM(total_liquidity) AS total_liquidity
		FROM liquidity_pools
		GROUP BY asset_id
	) lp ON a.id = lp.asset_id
	WHERE a.status = 'active'
	ORDER BY a.total_value DESC, a.id
`

// AssetRepository reads the asset registry
type AssetRepository struct {
	db Querier
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(db Querier) *AssetRepository {
	return &AssetRepository{db: db}
}

// FetchActiveAssets returns every active asset joined with its latest
// market data and liquidity. Store failures are query errors; a row that
// violates the record invariants is an internal error.
func (r *AssetRepository) FetchActiveAssets(ctx context.Context) ([]types.AssetRecord, error) {
	rows, err := r.db.Query(ctx, activeAssetsQuery)
	if err != nil {
		return nil, errors.NewQueryError(QueryActiveAssets, err)
	}
	defer rows.Close()

	assets := []types.AssetRecord{}
	for rows.Next() {
		var (
			a                                       types.AssetRecord
			status, metadata                        string
			totalValue, price, marketCap, liquidity string
			totalSupply                             *string
		)

		if err := rows.Scan(
			&a.ID,
			&a.Name,
			&a.Description,
			&a.AssetType,
			&totalValue,
			&a.Currency,
			&a.Location,
			&status,
			&metadata,
			&a.IssuerName,
			&a.IssuerJurisdiction,
			&a.ContractAddress,
			&totalSupply,
			&a.Symbol,
			&a.TokenStandard,
			&price,
			&marketCap,
			&liquidity,
		); err != nil {
			return nil, errors.NewQueryError(QueryActiveAssets, fmt.Errorf("failed to scan asset row: %w", err))
		}

		a.Status = types.AssetStatus(status)
		a.Metadata = json.RawMessage(metadata)

		if err := parseDecimals(
			decimalColumn{totalValue, &a.TotalValue},
			decimalColumn{price, &a.CurrentPrice},
			decimalColumn{marketCap, &a.MarketCap},
			decimalColumn{liquidity, &a.Liquidity},
		); err != nil {
			return nil, errors.NewInternalError(fmt.Sprintf("asset %s has a malformed numeric column", a.ID), err)
		}
		if totalSupply != nil {
			supply, err := decimal.NewFromString(*totalSupply)
			if err != nil {
				return nil, errors.NewInternalError(fmt.Sprintf("asset %s has a malformed total supply", a.ID), err)
			}
			a.TotalSupply = decimal.NewNullDecimal(supply)
		}

		if err := a.Validate(); err != nil {
			return nil, errors.NewInternalError("invalid asset record", err)
		}
		assets = append(assets, a)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryError(QueryActiveAssets, fmt.Errorf("error iterating asset rows: %w", err))
	}

	return assets, nil
}

type decimalColumn struct {
	raw string
	dst *decimal.Decimal
}

func parseDecimals(columns ...decimalColumn) error {
	for _, c := range columns {
		d, err := decimal.NewFromString(c.raw)
		if err != nil {
			return err
		}
		*c.dst = d
	}
	return nil
}
