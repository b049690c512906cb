package state

import (
	"database/sql"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/ampleforth/spot-vault/internal/types"
)

// SaveRebalanceRecord persists one rebalance outcome, no-ops included.
func SaveRebalanceRecord(record types.RebalanceRecord) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	stmt := `
		INSERT INTO rebalance_records (
			trace_id, executed_at,
			dr_before, dr_after,
			underlying_into_perp, amount_in, amount_out_value,
			realized_fee_perc, no_op, failed, failure_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING record_id;`

	var recordID int64
	err := DB.QueryRow(
		stmt,
		record.TraceID, record.Timestamp,
		record.DRBefore.String(), record.DRAfter.String(),
		record.UnderlyingIntoPerp, record.AmountIn.String(), record.AmountOutValue.String(),
		record.RealizedFeePerc.String(), record.NoOp, record.Failed, record.FailureReason,
	).Scan(&recordID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert rebalance record: %w", err)
	}

	log.Debug().
		Int64("record_id", recordID).
		Str("trace_id", record.TraceID).
		Bool("no_op", record.NoOp).
		Bool("failed", record.Failed).
		Msg("Saved rebalance record")
	return recordID, nil
}

// GetRecentRebalances returns the most recent rebalance records, newest first.
func GetRecentRebalances(limit int) ([]types.RebalanceRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT record_id, trace_id, executed_at,
		       dr_before, dr_after,
		       underlying_into_perp, amount_in, amount_out_value,
		       realized_fee_perc, no_op, failed, failure_reason
		FROM rebalance_records
		ORDER BY executed_at DESC
		LIMIT $1;`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rebalance records: %w", err)
	}
	defer rows.Close()

	var records []types.RebalanceRecord
	for rows.Next() {
		record, err := scanRebalanceRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating rebalance records: %w", err)
	}
	return records, nil
}

// GetLatestRebalance returns the most recent record, or (nil, nil) when the
// vault has never rebalanced.
func GetLatestRebalance() (*types.RebalanceRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT record_id, trace_id, executed_at,
		       dr_before, dr_after,
		       underlying_into_perp, amount_in, amount_out_value,
		       realized_fee_perc, no_op, failed, failure_reason
		FROM rebalance_records
		ORDER BY executed_at DESC
		LIMIT 1;`

	row := DB.QueryRow(query)
	record, err := scanRebalanceRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func scanRebalanceRecord(scan func(dest ...interface{}) error) (types.RebalanceRecord, error) {
	var (
		record     types.RebalanceRecord
		executedAt time.Time

		drBefore, drAfter   string
		amountIn, amountOut string
		feePerc             string
	)
	err := scan(
		&record.ID, &record.TraceID, &executedAt,
		&drBefore, &drAfter,
		&record.UnderlyingIntoPerp, &amountIn, &amountOut,
		&feePerc, &record.NoOp, &record.Failed, &record.FailureReason,
	)
	if err != nil {
		return types.RebalanceRecord{}, err
	}
	record.Timestamp = executedAt

	if record.DRBefore, err = sdkmath.LegacyNewDecFromStr(drBefore); err != nil {
		return types.RebalanceRecord{}, fmt.Errorf("failed to parse dr_before: %w", err)
	}
	if record.DRAfter, err = sdkmath.LegacyNewDecFromStr(drAfter); err != nil {
		return types.RebalanceRecord{}, fmt.Errorf("failed to parse dr_after: %w", err)
	}
	var ok bool
	if record.AmountIn, ok = sdkmath.NewIntFromString(amountIn); !ok {
		return types.RebalanceRecord{}, fmt.Errorf("failed to parse amount_in %q", amountIn)
	}
	if record.AmountOutValue, ok = sdkmath.NewIntFromString(amountOut); !ok {
		return types.RebalanceRecord{}, fmt.Errorf("failed to parse amount_out_value %q", amountOut)
	}
	if record.RealizedFeePerc, err = sdkmath.LegacyNewDecFromStr(feePerc); err != nil {
		return types.RebalanceRecord{}, fmt.Errorf("failed to parse realized_fee_perc: %w", err)
	}
	return record, nil
}
