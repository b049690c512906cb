package vault

import (
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/ampleforth/spot-vault/internal/logger"
	"github.com/ampleforth/spot-vault/internal/types"
	"github.com/ampleforth/spot-vault/internal/utils"
)

var (
	ErrPaused                 = errors.New("vault is paused")
	ErrLastRebalanceTooRecent = errors.New("cooldown period has not elapsed since last rebalance")
	ErrSlippageTooHigh        = errors.New("realized swap fee exceeds the configured ceiling")
	ErrUnauthorized           = errors.New("caller is not the vault owner")
)

// Vault is the treasury vault's rebalancing engine. It reads the system
// deviation ratio from the perp system, computes a damped correction amount,
// executes it through the swap venue, and enforces a realized-fee ceiling on
// the result. All state mutation happens through Rebalance and the
// owner-gated setters.
type Vault struct {
	logger zerolog.Logger

	perp     PerpSystem
	venue    SwapVenue
	balances BalanceReader

	mu            sync.Mutex
	owner         string
	params        types.RebalanceParameters
	paused        bool
	lastRebalance time.Time

	// now is swapped out in tests to control the cooldown clock.
	now func() time.Time
}

// Config holds the dependencies for creating a Vault.
type Config struct {
	Owner      string
	PerpSystem PerpSystem
	SwapVenue  SwapVenue
	Balances   BalanceReader
	Params     types.RebalanceParameters
}

// New creates a Vault with validated dependencies and parameters.
func New(cfg Config) (*Vault, error) {
	if cfg.Owner == "" {
		return nil, fmt.Errorf("vault owner identity cannot be empty")
	}
	if cfg.PerpSystem == nil {
		return nil, fmt.Errorf("perp system cannot be nil")
	}
	if cfg.SwapVenue == nil {
		return nil, fmt.Errorf("swap venue cannot be nil")
	}
	if cfg.Balances == nil {
		return nil, fmt.Errorf("balance reader cannot be nil")
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rebalance parameters: %w", err)
	}

	return &Vault{
		logger:   logger.GetForComponent("vault_engine"),
		perp:     cfg.PerpSystem,
		venue:    cfg.SwapVenue,
		balances: cfg.Balances,
		owner:    cfg.Owner,
		params:   cfg.Params,
		now:      time.Now,
	}, nil
}

// Parameters returns a copy of the current rebalance parameters.
func (v *Vault) Parameters() types.RebalanceParameters {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.params
}

// LastRebalance returns the timestamp of the last successful rebalance.
// Zero until the first success.
func (v *Vault) LastRebalance() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastRebalance
}

// Paused reports the pause flag.
func (v *Vault) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

// UnderlyingBalance returns the vault's live underlying holding.
func (v *Vault) UnderlyingBalance() (sdkmath.Int, error) {
	return v.balances.UnderlyingBalance()
}

// PerpBalance returns the vault's live perp token holding.
func (v *Vault) PerpBalance() (sdkmath.Int, error) {
	return v.balances.PerpBalance()
}

// TVL returns the total vault value in underlying base units: the underlying
// balance plus the perp holding valued at the system's TVL/supply ratio.
func (v *Vault) TVL() (sdkmath.Int, error) {
	underlying, err := v.balances.UnderlyingBalance()
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to read underlying balance: %w", err)
	}
	perpValue, err := v.perpHoldingValue()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return underlying.Add(perpValue), nil
}

// ComputeRebalanceAmount computes the swap size and direction that moves the
// system deviation ratio toward target. It is a pure read: no state changes,
// callable by anyone at any time. A zero amount still carries the direction
// the else-branch chose; callers must not read meaning into it.
func (v *Vault) ComputeRebalanceAmount() (sdkmath.Int, bool, error) {
	v.mu.Lock()
	params := v.params
	v.mu.Unlock()
	amount, underlyingIntoPerp, _, err := v.computeWithDR(params)
	return amount, underlyingIntoPerp, err
}

// computeWithDR is ComputeRebalanceAmount plus the dr snapshot the execution
// path needs for its result record.
func (v *Vault) computeWithDR(params types.RebalanceParameters) (sdkmath.Int, bool, sdkmath.LegacyDec, error) {
	dr, err := v.perp.DeviationRatio()
	if err != nil {
		return sdkmath.ZeroInt(), false, sdkmath.LegacyZeroDec(), fmt.Errorf("failed to read deviation ratio: %w", err)
	}

	perpTVL, err := v.perp.TVL()
	if err != nil {
		return sdkmath.ZeroInt(), false, dr, fmt.Errorf("failed to read perp TVL: %w", err)
	}
	perpSupply, err := v.perp.TotalSupply()
	if err != nil {
		return sdkmath.ZeroInt(), false, dr, fmt.Errorf("failed to read perp supply: %w", err)
	}

	var (
		underlyingIntoPerp bool
		drDelta            sdkmath.LegacyDec
		referenceTVL       sdkmath.Int
	)

	if dr.LT(params.TargetDR) {
		// System is under target: burn perps back into underlying. The
		// correction is sized against the vault's own perp holding value.
		underlyingIntoPerp = false
		drDelta = params.TargetDR.Sub(dr)
		referenceTVL, err = v.perpHoldingValueWith(perpTVL, perpSupply)
		if err != nil {
			return sdkmath.ZeroInt(), underlyingIntoPerp, dr, err
		}
	} else {
		// At or above target (equality included): mint more perps. This
		// side is sized against the system-wide perp TVL, not the vault's
		// local holding.
		underlyingIntoPerp = true
		drDelta = dr.Sub(params.TargetDR)
		referenceTVL = perpTVL
	}

	// requiredChange = referenceTVL * drDelta, in underlying base units.
	requiredChange := drDelta.MulInt(referenceTVL).TruncateInt()

	lagFactor := params.LagFactorPerpIntoUnderlying
	if underlyingIntoPerp {
		lagFactor = params.LagFactorUnderlyingIntoPerp
	}
	adjustedChange := requiredChange.Quo(sdkmath.NewIntFromUint64(lagFactor))

	if adjustedChange.LT(params.MinRebalanceAmt) {
		return sdkmath.ZeroInt(), underlyingIntoPerp, dr, nil
	}

	// Division-by-zero guards on the perp value-per-unit computation.
	if perpTVL.IsZero() || perpSupply.IsZero() {
		return sdkmath.ZeroInt(), underlyingIntoPerp, dr, nil
	}

	var availableLiquidity sdkmath.Int
	if underlyingIntoPerp {
		availableLiquidity, err = v.balances.UnderlyingBalance()
		if err != nil {
			return sdkmath.ZeroInt(), underlyingIntoPerp, dr, fmt.Errorf("failed to read underlying balance: %w", err)
		}
	} else {
		availableLiquidity, err = v.perpHoldingValueWith(perpTVL, perpSupply)
		if err != nil {
			return sdkmath.ZeroInt(), underlyingIntoPerp, dr, err
		}
	}
	if availableLiquidity.IsZero() {
		return sdkmath.ZeroInt(), underlyingIntoPerp, dr, nil
	}

	// The requiredChange cap is overshoot protection: with lagFactor=1 the
	// correction must never push the ratio past target. The liquidity cap
	// prevents over-draw.
	amount := utils.MinInt3(adjustedChange, availableLiquidity, requiredChange)
	return amount, underlyingIntoPerp, dr, nil
}

// Rebalance executes one rebalance step. It fails unless the vault is
// unpaused and the cooldown has elapsed. A zero-amount computation still
// consumes the cooldown so callers cannot spin on no-ops; any failure after
// that point leaves the timestamp untouched so a failed attempt does not
// burn the cooldown.
func (v *Vault) Rebalance() (types.RebalanceRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.paused {
		return types.RebalanceRecord{}, ErrPaused
	}
	now := v.now()
	if now.Before(v.lastRebalance.Add(v.params.CooldownPeriod)) {
		return types.RebalanceRecord{}, fmt.Errorf("%w: next attempt allowed at %s",
			ErrLastRebalanceTooRecent, v.lastRebalance.Add(v.params.CooldownPeriod).Format(time.RFC3339))
	}

	amount, underlyingIntoPerp, drBefore, err := v.computeWithDR(v.params)
	if err != nil {
		return types.RebalanceRecord{}, err
	}

	record := types.RebalanceRecord{
		Timestamp:          now,
		DRBefore:           drBefore,
		DRAfter:            drBefore,
		UnderlyingIntoPerp: underlyingIntoPerp,
		AmountIn:           amount,
		AmountOutValue:     sdkmath.ZeroInt(),
		RealizedFeePerc:    sdkmath.LegacyZeroDec(),
	}

	if amount.IsZero() {
		// Pure no-op still consumes the cooldown.
		v.lastRebalance = now
		record.NoOp = true
		v.logger.Info().
			Str("dr", drBefore.String()).
			Bool("underlyingIntoPerp", underlyingIntoPerp).
			Msg("Rebalance below economic threshold; cooldown consumed")
		return record, nil
	}

	receivedValue, err := v.executeSwap(amount, underlyingIntoPerp)
	if err != nil {
		return types.RebalanceRecord{}, err
	}

	// Slippage guard: runs strictly after the swap, against the actual
	// received amount. impliedFee = 1 - received_value/amount_given.
	amountDec := sdkmath.LegacyNewDecFromInt(amount)
	impliedFeePerc := sdkmath.LegacyOneDec().Sub(sdkmath.LegacyNewDecFromInt(receivedValue).QuoTruncate(amountDec))
	if impliedFeePerc.GT(v.params.MaxSwapFeePerc) {
		v.logger.Error().
			Str("impliedFeePerc", impliedFeePerc.String()).
			Str("maxSwapFeePerc", v.params.MaxSwapFeePerc.String()).
			Msg("Swap settled worse than the fee ceiling; rejecting rebalance")
		return types.RebalanceRecord{}, fmt.Errorf("%w: implied fee %s, ceiling %s",
			ErrSlippageTooHigh, impliedFeePerc.String(), v.params.MaxSwapFeePerc.String())
	}

	drAfter, err := v.perp.DeviationRatio()
	if err != nil {
		// Best effort: the swap already settled, keep the before snapshot.
		v.logger.Warn().Err(err).Msg("Failed to re-read deviation ratio after swap")
		drAfter = drBefore
	}

	v.lastRebalance = now
	record.DRAfter = drAfter
	record.AmountOutValue = receivedValue
	record.RealizedFeePerc = impliedFeePerc

	v.logger.Info().
		Str("drBefore", drBefore.String()).
		Str("drAfter", drAfter.String()).
		Str("amountIn", amount.String()).
		Str("amountOutValue", receivedValue.String()).
		Str("realizedFeePerc", impliedFeePerc.String()).
		Bool("underlyingIntoPerp", underlyingIntoPerp).
		Msg("Rebalance executed")

	return record, nil
}

// executeSwap routes the computed amount through the venue and returns the
// received quantity re-expressed in underlying-value terms.
func (v *Vault) executeSwap(amount sdkmath.Int, underlyingIntoPerp bool) (sdkmath.Int, error) {
	perpTVL, err := v.perp.TVL()
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to read perp TVL: %w", err)
	}
	perpSupply, err := v.perp.TotalSupply()
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to read perp supply: %w", err)
	}
	if perpTVL.IsZero() || perpSupply.IsZero() {
		return sdkmath.ZeroInt(), fmt.Errorf("perp system reports zero TVL or supply")
	}

	if underlyingIntoPerp {
		receivedPerps, err := v.venue.SwapUnderlyingForPerps(amount)
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("underlying-for-perps swap failed: %w", err)
		}
		// Re-express the perps received in underlying terms via the
		// system's own value-per-unit ratio, not the venue's quote.
		return utils.MulDiv(receivedPerps, perpTVL, perpSupply)
	}

	// amount is denominated in underlying value; convert to the perp token
	// quantity to give up.
	perpAmountIn, err := utils.MulDiv(amount, perpSupply, perpTVL)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	receivedUnderlying, err := v.venue.SwapPerpsForUnderlying(perpAmountIn)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("perps-for-underlying swap failed: %w", err)
	}
	return receivedUnderlying, nil
}

// perpHoldingValue values the vault's perp holding in underlying base units.
func (v *Vault) perpHoldingValue() (sdkmath.Int, error) {
	perpTVL, err := v.perp.TVL()
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to read perp TVL: %w", err)
	}
	perpSupply, err := v.perp.TotalSupply()
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to read perp supply: %w", err)
	}
	return v.perpHoldingValueWith(perpTVL, perpSupply)
}

func (v *Vault) perpHoldingValueWith(perpTVL, perpSupply sdkmath.Int) (sdkmath.Int, error) {
	if perpSupply.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	perpBalance, err := v.balances.PerpBalance()
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to read perp balance: %w", err)
	}
	return utils.MulDiv(perpBalance, perpTVL, perpSupply)
}

// --- owner-gated configuration ---

// SetPaused flips the pause flag. Owner only.
func (v *Vault) SetPaused(caller string, paused bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.owner {
		return ErrUnauthorized
	}
	v.paused = paused
	v.logger.Warn().Bool("paused", paused).Msg("Vault pause flag updated")
	return nil
}

// UpdateMinRebalanceAmt sets the minimum economically meaningful swap size.
func (v *Vault) UpdateMinRebalanceAmt(caller string, amt sdkmath.Int) error {
	return v.updateParams(caller, func(p *types.RebalanceParameters) {
		p.MinRebalanceAmt = amt
	})
}

// UpdateLagFactors sets the per-direction damping divisors.
func (v *Vault) UpdateLagFactors(caller string, underlyingIntoPerp, perpIntoUnderlying uint64) error {
	return v.updateParams(caller, func(p *types.RebalanceParameters) {
		p.LagFactorUnderlyingIntoPerp = underlyingIntoPerp
		p.LagFactorPerpIntoUnderlying = perpIntoUnderlying
	})
}

// UpdateMaxSwapFeePerc sets the realized-fee ceiling.
func (v *Vault) UpdateMaxSwapFeePerc(caller string, perc sdkmath.LegacyDec) error {
	return v.updateParams(caller, func(p *types.RebalanceParameters) {
		p.MaxSwapFeePerc = perc
	})
}

// UpdateCooldown sets the minimum spacing between successful rebalances.
func (v *Vault) UpdateCooldown(caller string, cooldown time.Duration) error {
	return v.updateParams(caller, func(p *types.RebalanceParameters) {
		p.CooldownPeriod = cooldown
	})
}

// updateParams applies a mutation to a copy of the parameters, validates the
// result and commits only on success.
func (v *Vault) updateParams(caller string, mutate func(*types.RebalanceParameters)) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.owner {
		return ErrUnauthorized
	}
	updated := v.params
	mutate(&updated)
	if err := updated.Validate(); err != nil {
		return err
	}
	v.params = updated
	v.logger.Info().Msg("Rebalance parameters updated")
	return nil
}
