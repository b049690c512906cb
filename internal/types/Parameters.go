package types

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrInvalidPerc           = errors.New("percentage outside allowed bounds")
	ErrInvalidLagFactor      = errors.New("lag factor must be at least 1")
	ErrInvalidRebalanceAmt   = errors.New("minimum rebalance amount must not be negative")
	ErrInvalidCooldown       = errors.New("cooldown period must be positive")
	ErrInvalidPriceBound     = errors.New("price tolerance bounds must satisfy lower < 1.0 <= upper")
	ErrInvalidDRBound        = errors.New("deviation ratio floor must not be negative")
	ErrInvalidSeniorCDRBound = errors.New("senior CDR floor must be at least 1.0")
)

// RebalanceParameters is the vault-owned mutable configuration for the
// rebalance engine. Mutated only through validated setters; the rebalance
// path itself never writes it.
type RebalanceParameters struct {
	// TargetDR is the deviation ratio the vault steers the system toward.
	TargetDR sdkmath.LegacyDec

	// LagFactorUnderlyingIntoPerp and LagFactorPerpIntoUnderlying are the
	// integer divisors damping how much of the required correction is
	// applied per rebalance, one per swap direction.
	LagFactorUnderlyingIntoPerp uint64
	LagFactorPerpIntoUnderlying uint64

	// MinRebalanceAmt is the smallest economically meaningful swap, in
	// underlying base units. Computed amounts below it clamp to zero.
	MinRebalanceAmt sdkmath.Int

	// MaxSwapFeePerc is the ceiling on the realized swap fee (0.01 == 1%).
	MaxSwapFeePerc sdkmath.LegacyDec

	// CooldownPeriod bounds how often the permissionless rebalance trigger
	// can fire.
	CooldownPeriod time.Duration
}

// Validate checks every field against its stated bound.
func (p RebalanceParameters) Validate() error {
	if p.TargetDR.IsNil() || !p.TargetDR.IsPositive() {
		return fmt.Errorf("target deviation ratio must be positive, got %s", p.TargetDR)
	}
	if p.LagFactorUnderlyingIntoPerp < 1 || p.LagFactorPerpIntoUnderlying < 1 {
		return ErrInvalidLagFactor
	}
	if p.MinRebalanceAmt.IsNil() || p.MinRebalanceAmt.IsNegative() {
		return ErrInvalidRebalanceAmt
	}
	if p.MaxSwapFeePerc.IsNil() || p.MaxSwapFeePerc.IsNegative() || p.MaxSwapFeePerc.GT(sdkmath.LegacyOneDec()) {
		return ErrInvalidPerc
	}
	if p.CooldownPeriod <= 0 {
		return ErrInvalidCooldown
	}
	return nil
}

// ToleranceBounds are the owner-configurable sanity bounds around 1.0 for
// the USD reference price. Invariant: lower < 1.0 <= upper.
type ToleranceBounds struct {
	LowerPricePerc sdkmath.LegacyDec
	UpperPricePerc sdkmath.LegacyDec
}

// Validate enforces lower < 1.0 <= upper.
func (b ToleranceBounds) Validate() error {
	if b.LowerPricePerc.IsNil() || b.UpperPricePerc.IsNil() {
		return ErrInvalidPriceBound
	}
	one := sdkmath.LegacyOneDec()
	if !b.LowerPricePerc.LT(one) || !b.UpperPricePerc.GTE(one) {
		return ErrInvalidPriceBound
	}
	if b.LowerPricePerc.IsNegative() {
		return ErrInvalidPriceBound
	}
	return nil
}

// AppraisalBounds collects the thresholds gating price validity in the
// appraisal pipeline.
type AppraisalBounds struct {
	// Tolerance brackets the USD reference price around 1.0.
	Tolerance ToleranceBounds

	// MinSPOTDR is the deviation ratio floor under which the backing is too
	// thin to trust the price.
	MinSPOTDR sdkmath.LegacyDec

	// MinSeniorCDR is the senior tranche collateralization floor.
	MinSeniorCDR sdkmath.LegacyDec

	// MaxReferenceAge is the staleness window for the round-based feed.
	MaxReferenceAge time.Duration

	// MaturedDustThreshold is the largest matured-reserve balance, in
	// underlying base units, still considered dust.
	MaturedDustThreshold sdkmath.Int
}

// Validate checks every bound.
func (b AppraisalBounds) Validate() error {
	if err := b.Tolerance.Validate(); err != nil {
		return err
	}
	if b.MinSPOTDR.IsNil() || b.MinSPOTDR.IsNegative() {
		return ErrInvalidDRBound
	}
	if b.MinSeniorCDR.IsNil() || b.MinSeniorCDR.LT(sdkmath.LegacyOneDec()) {
		return ErrInvalidSeniorCDRBound
	}
	if b.MaxReferenceAge <= 0 {
		return fmt.Errorf("reference staleness window must be positive, got %s", b.MaxReferenceAge)
	}
	if b.MaturedDustThreshold.IsNil() || b.MaturedDustThreshold.IsNegative() {
		return fmt.Errorf("matured dust threshold must not be negative")
	}
	return nil
}
