/*
The appraiser combines a round-based USD reference oracle, a target-rate
oracle and the perp system's own reserve accounting into a single appraised
price with an explicit validity flag. Every check only clears the validity
bit; the numeric price is always computed so monitoring never loses the
attempted value.
*/

package appraiser

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

// ErrUnauthorized rejects bound updates from anyone but the owner.
var ErrUnauthorized = errors.New("caller is not the appraiser owner")

// ReferenceOracle is a round-based external price feed. Only the answer and
// its update time are consumed.
type ReferenceOracle interface {
	LatestRoundData() (types.RoundData, error)
	// Decimals is the fixed-point scale of the feed's answers.
	Decimals() int
}

// TargetRateOracle reports the CPI/target-rate with its own validity bit.
type TargetRateOracle interface {
	TargetRate() (types.OracleReading, error)
}

// ReserveAccounting exposes the perp system state the appraisal depends on.
type ReserveAccounting interface {
	// DeviationRatio is the system backing ratio, 1.0 at equilibrium.
	DeviationRatio() (sdkmath.LegacyDec, error)
	// ReserveTVL is the reserve value in underlying base units.
	ReserveTVL() (sdkmath.Int, error)
	// ReserveSupply is the outstanding claim token supply in base units.
	ReserveSupply() (sdkmath.Int, error)
	// MaturedReserveBalance is how much of the reserve sits in the matured
	// form of the underlying, in underlying base units.
	MaturedReserveBalance() (sdkmath.Int, error)
}

// TrancheAccounting exposes the bond/tranche side used for the senior
// collateralization check.
type TrancheAccounting interface {
	// SeniorClaim is the collateral backing the senior tranche, in
	// underlying base units.
	SeniorClaim() (sdkmath.Int, error)
	// TotalDebt is the outstanding senior tranche debt in base units.
	TotalDebt() (sdkmath.Int, error)
}

// Appraiser derives the perp token's appraised price.
type Appraiser struct {
	logger zerolog.Logger

	reference ReferenceOracle
	target    TargetRateOracle
	reserve   ReserveAccounting
	tranches  TrancheAccounting

	mu     sync.RWMutex
	owner  string
	bounds types.AppraisalBounds

	now func() time.Time
}

// Config holds the dependencies for creating an Appraiser.
type Config struct {
	Owner            string
	ReferenceOracle  ReferenceOracle
	TargetRateOracle TargetRateOracle
	Reserve          ReserveAccounting
	Tranches         TrancheAccounting
	Bounds           types.AppraisalBounds
}

// New creates an Appraiser with validated dependencies and bounds.
func New(cfg Config) (*Appraiser, error) {
	if cfg.Owner == "" {
		return nil, fmt.Errorf("appraiser owner identity cannot be empty")
	}
	if cfg.ReferenceOracle == nil || cfg.TargetRateOracle == nil || cfg.Reserve == nil || cfg.Tranches == nil {
		return nil, fmt.Errorf("appraiser dependencies cannot be nil")
	}
	if err := cfg.Bounds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid appraisal bounds: %w", err)
	}
	return &Appraiser{
		logger:    logger.GetForComponent("appraiser"),
		reference: cfg.ReferenceOracle,
		target:    cfg.TargetRateOracle,
		reserve:   cfg.Reserve,
		tranches:  cfg.Tranches,
		owner:     cfg.Owner,
		bounds:    cfg.Bounds,
		now:       time.Now,
	}, nil
}

// Bounds returns a copy of the current appraisal bounds.
func (a *Appraiser) Bounds() types.AppraisalBounds {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.bounds
}

// AppraisedPrice derives the perp token's price at 18 decimals:
// targetRate * reserveTVL/reserveSupply. Five checks run in order, each one
// only clearing the validity bit:
//  1. reference price freshness and tolerance around 1.0
//  2. target-rate oracle's own validity bit
//  3. system deviation ratio floor
//  4. senior collateralization floor
//  5. matured-reserve dust threshold
//
// Hard errors are returned only when an input cannot be read at all.
func (a *Appraiser) AppraisedPrice() (types.OracleReading, error) {
	a.mu.RLock()
	bounds := a.bounds
	a.mu.RUnlock()

	valid := true

	// 1. Reference price freshness and tolerance.
	round, err := a.reference.LatestRoundData()
	if err != nil {
		return types.OracleReading{}, fmt.Errorf("failed to read reference oracle: %w", err)
	}
	refPrice, err := utils.DecFromFixed(round.Answer, a.reference.Decimals())
	if err != nil {
		return types.OracleReading{}, fmt.Errorf("failed to scale reference answer: %w", err)
	}
	if a.now().Sub(round.UpdatedAt) > bounds.MaxReferenceAge {
		a.logger.Warn().
			Time("updatedAt", round.UpdatedAt).
			Dur("maxAge", bounds.MaxReferenceAge).
			Msg("Reference price is stale")
		valid = false
	}
	if refPrice.LT(bounds.Tolerance.LowerPricePerc) || refPrice.GT(bounds.Tolerance.UpperPricePerc) {
		a.logger.Warn().Str("refPrice", refPrice.String()).Msg("Reference price outside tolerance bounds")
		valid = false
	}

	// 2. Target-rate oracle validity.
	targetRate, err := a.target.TargetRate()
	if err != nil {
		return types.OracleReading{}, fmt.Errorf("failed to read target rate oracle: %w", err)
	}
	valid = valid && targetRate.Valid

	// 3. Deviation ratio floor.
	dr, err := a.reserve.DeviationRatio()
	if err != nil {
		return types.OracleReading{}, fmt.Errorf("failed to read deviation ratio: %w", err)
	}
	if dr.LT(bounds.MinSPOTDR) {
		a.logger.Warn().Str("dr", dr.String()).Str("minSPOTDR", bounds.MinSPOTDR.String()).
			Msg("Deviation ratio below floor; backing too thin to trust the price")
		valid = false
	}

	// 4. Senior collateralization floor.
	seniorOK, err := a.seniorCollateralized(bounds.MinSeniorCDR)
	if err != nil {
		return types.OracleReading{}, err
	}
	valid = valid && seniorOK

	// 5. Matured reserve dust check.
	matured, err := a.reserve.MaturedReserveBalance()
	if err != nil {
		return types.OracleReading{}, fmt.Errorf("failed to read matured reserve balance: %w", err)
	}
	if matured.GT(bounds.MaturedDustThreshold) {
		a.logger.Warn().Str("matured", matured.String()).Msg("Matured reserve above dust threshold")
		valid = false
	}

	// Combined price: target rate scaled by the system's enrichment
	// multiplier (TVL per unit of outstanding claim token).
	price, multiplierOK, err := a.enrichmentPrice(targetRate.Value)
	if err != nil {
		return types.OracleReading{}, err
	}

	return types.NewOracleReading(price, multiplierOK).WithValidity(valid), nil
}

// seniorCollateralized checks seniorClaim/totalDebt against the CDR floor.
// Zero outstanding debt cannot be under-collateralized.
func (a *Appraiser) seniorCollateralized(minCDR sdkmath.LegacyDec) (bool, error) {
	seniorClaim, err := a.tranches.SeniorClaim()
	if err != nil {
		return false, fmt.Errorf("failed to read senior claim: %w", err)
	}
	totalDebt, err := a.tranches.TotalDebt()
	if err != nil {
		return false, fmt.Errorf("failed to read total debt: %w", err)
	}
	if totalDebt.IsZero() {
		return true, nil
	}
	cdr := sdkmath.LegacyNewDecFromInt(seniorClaim).QuoTruncate(sdkmath.LegacyNewDecFromInt(totalDebt))
	if cdr.LT(minCDR) {
		a.logger.Warn().Str("cdr", cdr.String()).Str("minSeniorCDR", minCDR.String()).
			Msg("Senior tranche under-collateralized")
		return false, nil
	}
	return true, nil
}

// enrichmentPrice computes targetRate * reserveTVL/reserveSupply. When the
// supply is zero the multiplier is untrustworthy: the raw target rate is
// returned as the best-effort value with validity cleared.
func (a *Appraiser) enrichmentPrice(targetRate sdkmath.LegacyDec) (sdkmath.LegacyDec, bool, error) {
	tvl, err := a.reserve.ReserveTVL()
	if err != nil {
		return sdkmath.LegacyZeroDec(), false, fmt.Errorf("failed to read reserve TVL: %w", err)
	}
	supply, err := a.reserve.ReserveSupply()
	if err != nil {
		return sdkmath.LegacyZeroDec(), false, fmt.Errorf("failed to read reserve supply: %w", err)
	}
	if supply.IsZero() {
		return targetRate, false, nil
	}
	multiplier := sdkmath.LegacyNewDecFromInt(tvl).QuoTruncate(sdkmath.LegacyNewDecFromInt(supply))
	return targetRate.Mul(multiplier), true, nil
}

// --- owner-gated configuration ---

// UpdateAllowedPriceDeviationPercs sets the tolerance bounds around 1.0 for
// the reference price. Enforces lower < 1.0 <= upper.
func (a *Appraiser) UpdateAllowedPriceDeviationPercs(caller string, lower, upper sdkmath.LegacyDec) error {
	return a.updateBounds(caller, func(b *types.AppraisalBounds) {
		b.Tolerance = types.ToleranceBounds{LowerPricePerc: lower, UpperPricePerc: upper}
	})
}

// UpdateMinSPOTDR sets the deviation ratio floor.
func (a *Appraiser) UpdateMinSPOTDR(caller string, minDR sdkmath.LegacyDec) error {
	return a.updateBounds(caller, func(b *types.AppraisalBounds) {
		b.MinSPOTDR = minDR
	})
}

// UpdateMinPerpCollateralCDR sets the senior collateralization floor.
func (a *Appraiser) UpdateMinPerpCollateralCDR(caller string, minCDR sdkmath.LegacyDec) error {
	return a.updateBounds(caller, func(b *types.AppraisalBounds) {
		b.MinSeniorCDR = minCDR
	})
}

func (a *Appraiser) updateBounds(caller string, mutate func(*types.AppraisalBounds)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if caller != a.owner {
		return ErrUnauthorized
	}
	updated := a.bounds
	mutate(&updated)
	if err := updated.Validate(); err != nil {
		return err
	}
	a.bounds = updated
	a.logger.Info().Msg("Appraisal bounds updated")
	return nil
}
