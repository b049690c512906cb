package state

import (
	"database/sql"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/ampleforth/spot-vault/internal/types"
)

// SaveVaultParameters saves a new version of rebalance parameters.
func SaveVaultParameters(params types.RebalanceParameters, configName string, version int, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	if err := params.Validate(); err != nil {
		return 0, fmt.Errorf("refusing to persist invalid parameters: %w", err)
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE vault_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		_, err = tx.Exec(stmtDeactivate, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	stmt := `
		INSERT INTO vault_parameters (
			version, config_name, is_active, activated_at, created_at,
			target_dr,
			lag_factor_underlying_into_perp, lag_factor_perp_into_underlying,
			min_rebalance_amt, max_swap_fee_perc, cooldown_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING params_id;`

	var paramsID int64
	currentTime := time.Now()
	err = tx.QueryRow(
		stmt,
		version, configName, makeActive, currentTime, currentTime,
		params.TargetDR.String(),
		params.LagFactorUnderlyingIntoPerp, params.LagFactorPerpIntoUnderlying,
		params.MinRebalanceAmt.String(), params.MaxSwapFeePerc.String(),
		int64(params.CooldownPeriod/time.Second),
	).Scan(&paramsID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert vault parameters: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved vault parameters")
	return paramsID, nil
}

// LoadActiveVaultParameters loads the currently active rebalance parameters.
// Returns (nil, nil) when no active row exists for the config.
func LoadActiveVaultParameters(configName string) (*types.RebalanceParameters, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT target_dr,
		       lag_factor_underlying_into_perp, lag_factor_perp_into_underlying,
		       min_rebalance_amt, max_swap_fee_perc, cooldown_seconds
		FROM vault_parameters
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	var (
		params          types.RebalanceParameters
		targetDR        string
		minAmt          string
		maxFee          string
		cooldownSeconds int64
	)
	row := DB.QueryRow(query, configName)
	err := row.Scan(
		&targetDR,
		&params.LagFactorUnderlyingIntoPerp, &params.LagFactorPerpIntoUnderlying,
		&minAmt, &maxFee, &cooldownSeconds,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active vault parameters: %w", err)
	}

	if params.TargetDR, err = sdkmath.LegacyNewDecFromStr(targetDR); err != nil {
		return nil, fmt.Errorf("failed to parse target_dr: %w", err)
	}
	var ok bool
	if params.MinRebalanceAmt, ok = sdkmath.NewIntFromString(minAmt); !ok {
		return nil, fmt.Errorf("failed to parse min_rebalance_amt %q", minAmt)
	}
	if params.MaxSwapFeePerc, err = sdkmath.LegacyNewDecFromStr(maxFee); err != nil {
		return nil, fmt.Errorf("failed to parse max_swap_fee_perc: %w", err)
	}
	params.CooldownPeriod = time.Duration(cooldownSeconds) * time.Second

	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("active parameters failed validation: %w", err)
	}
	return &params, nil
}
