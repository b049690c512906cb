package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ampleforth/spot-vault/internal/appraiser"
	"github.com/ampleforth/spot-vault/internal/logger"
	"github.com/ampleforth/spot-vault/internal/state"
	"github.com/ampleforth/spot-vault/internal/twap"
	"github.com/ampleforth/spot-vault/internal/types"
	"github.com/ampleforth/spot-vault/internal/utils"
	"github.com/ampleforth/spot-vault/internal/vault"
)

const (
	DefaultConfigName    = "default_vault_strategy"
	DefaultConfigVersion = 1
)

// Manager drives the vault on a fixed interval: appraise, rebalance, persist.
type Manager struct {
	logger    zerolog.Logger
	vault     *vault.Vault
	appraiser *appraiser.Appraiser
	pricer    *twap.Pricer

	persist bool
	// persistFn is swapped out in tests to observe what gets recorded.
	persistFn func(types.RebalanceRecord) (int64, error)

	cycleCount int
}

// Config holds the configuration for creating a new Manager instance.
type Config struct {
	Vault     *vault.Vault
	Appraiser *appraiser.Appraiser
	Pricer    *twap.Pricer

	// Persist controls whether cycle outcomes are written to the database.
	Persist bool
}

// New creates a Manager with dependency injection.
func New(cfg Config) (*Manager, error) {
	if cfg.Vault == nil {
		return nil, fmt.Errorf("vault cannot be nil")
	}
	if cfg.Appraiser == nil {
		return nil, fmt.Errorf("appraiser cannot be nil")
	}
	if cfg.Pricer == nil {
		return nil, fmt.Errorf("pricer cannot be nil")
	}
	return &Manager{
		logger:    logger.GetForComponent("manager"),
		vault:     cfg.Vault,
		appraiser: cfg.Appraiser,
		pricer:    cfg.Pricer,
		persist:   cfg.Persist,
		persistFn: state.SaveRebalanceRecord,
	}, nil
}

// RunLoop starts the main cycle loop with the specified interval.
func (m *Manager) RunLoop(ctx context.Context, interval time.Duration) {
	m.logger.Info().
		Dur("interval", interval).
		Msg("Starting vault main loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.cycleCount++
	m.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Vault loop stopped due to context cancellation")
			return
		case <-ticker.C:
			m.cycleCount++
			m.RunCycle(ctx)
		}
	}
}

// RunCycle executes one complete appraise-and-rebalance cycle. Cycle errors
// are logged, never returned; the loop outlives any single bad cycle.
func (m *Manager) RunCycle(ctx context.Context) {
	cycleStartTime := time.Now()

	traceID := uuid.New().String()
	cycleLogger := m.logger.With().Str("trace_id", traceID).Int("cycle", m.cycleCount).Logger()

	cycleLogger.Info().Msg("--- Starting vault cycle ---")

	if ctx.Err() != nil {
		cycleLogger.Warn().Msg("Cycle skipped: context already cancelled")
		return
	}

	// --- Step 1: Appraise ---
	m.logAppraisal(cycleLogger)

	// --- Step 2: Rebalance ---
	record, err := m.vault.Rebalance()
	if err != nil {
		// Guard skips (cooldown, pause) are not attempts; only attempts
		// that reached the venue leave a failure record.
		switch {
		case errors.Is(err, vault.ErrLastRebalanceTooRecent):
			cycleLogger.Info().Err(err).Msg("Rebalance skipped: still in cooldown")
		case errors.Is(err, vault.ErrPaused):
			cycleLogger.Info().Msg("Rebalance skipped: vault is paused")
		case errors.Is(err, vault.ErrSlippageTooHigh):
			cycleLogger.Warn().Err(err).Msg("Rebalance aborted: venue too expensive this cycle")
			m.persistRecord(cycleLogger, failedRecord(traceID, err))
		default:
			cycleLogger.Error().Err(err).Msg("Rebalance failed")
			m.persistRecord(cycleLogger, failedRecord(traceID, err))
		}
		cycleLogger.Info().Dur("duration", time.Since(cycleStartTime)).Msg("--- Cycle completed ---")
		return
	}
	record.TraceID = traceID

	amountIn, convErr := utils.IntToFloat64(record.AmountIn, utils.UnderlyingDecimals)
	if convErr != nil {
		amountIn = 0
	}
	cycleLogger.Info().
		Bool("noOp", record.NoOp).
		Bool("underlyingIntoPerp", record.UnderlyingIntoPerp).
		Float64("amountIn", amountIn).
		Str("drBefore", record.DRBefore.String()).
		Str("drAfter", record.DRAfter.String()).
		Str("realizedFeePerc", record.RealizedFeePerc.String()).
		Msg("Rebalance completed")

	// --- Step 3: Persist ---
	m.persistRecord(cycleLogger, record)

	cycleLogger.Info().Dur("duration", time.Since(cycleStartTime)).Msg("--- Cycle completed ---")
}

func (m *Manager) persistRecord(cycleLogger zerolog.Logger, record types.RebalanceRecord) {
	if !m.persist {
		return
	}
	if _, err := m.persistFn(record); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to persist rebalance record")
	}
}

// failedRecord is the persisted form of a rolled-back attempt. The numeric
// fields are zeroed rather than left nil so the record stores cleanly.
func failedRecord(traceID string, cause error) types.RebalanceRecord {
	return types.RebalanceRecord{
		TraceID:         traceID,
		Timestamp:       time.Now(),
		DRBefore:        sdkmath.LegacyZeroDec(),
		DRAfter:         sdkmath.LegacyZeroDec(),
		AmountIn:        sdkmath.ZeroInt(),
		AmountOutValue:  sdkmath.ZeroInt(),
		RealizedFeePerc: sdkmath.LegacyZeroDec(),
		Failed:          true,
		FailureReason:   cause.Error(),
	}
}

// logAppraisal reports the current appraised price and the pool-observed
// deviations. Appraisal failures don't block the rebalance; the engine has
// its own guards.
func (m *Manager) logAppraisal(cycleLogger zerolog.Logger) {
	price, err := m.appraiser.AppraisedPrice()
	if err != nil {
		cycleLogger.Warn().Err(err).Msg("Appraisal unavailable this cycle")
	} else {
		cycleLogger.Info().
			Str("price", price.Value.String()).
			Bool("valid", price.Valid).
			Msg("Perp token appraised")
	}

	spotDeviation, err := m.pricer.SpotPriceDeviation()
	if err != nil {
		cycleLogger.Warn().Err(err).Msg("Pool-observed perp deviation unavailable")
	} else {
		cycleLogger.Info().
			Str("deviation", spotDeviation.Value.String()).
			Bool("valid", spotDeviation.Valid).
			Msg("Perp market price vs fair value")
	}

	amplDeviation, err := m.pricer.AmplPriceDeviation()
	if err != nil {
		cycleLogger.Warn().Err(err).Msg("Pool-observed underlying deviation unavailable")
	} else {
		cycleLogger.Info().
			Str("deviation", amplDeviation.Value.String()).
			Bool("valid", amplDeviation.Valid).
			Msg("Underlying market price vs target")
	}
}
