/*

This file contains the default parameters for the vault.

These defaults are used when no active parameters are found in the database
during initialization. They are deliberately conservative: the rebalance
engine moves capital with no human in the loop, so every knob here leans
toward doing less, later.

*/

package config

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/ampleforth/spot-vault/internal/types"
	"github.com/ampleforth/spot-vault/internal/utils"
)

// DefaultRebalanceParameters is the baseline rebalance configuration.
var DefaultRebalanceParameters = types.RebalanceParameters{
	TargetDR: sdkmath.LegacyOneDec(), // Steer toward full backing.
	// 1.0 is the system's own equilibrium; anything else leaves a
	// standing incentive to rebalance forever.

	LagFactorUnderlyingIntoPerp: 3,
	LagFactorPerpIntoUnderlying: 3,
	// Apply a third of the required correction per cycle. Spreading the
	// correction over multiple cycles keeps a single bad oracle round
	// from moving the whole position.

	MinRebalanceAmt: sdkmath.NewInt(100_000_000_000), // 100 AMPL in base units.
	// Swaps below this don't cover their own gas and fee overhead.

	MaxSwapFeePerc: utils.Percentage(100), // 100 bps = 1%.
	// Realized fees above this mean the venue is too thin; abort and
	// retry a later cycle rather than pay up.

	CooldownPeriod: 24 * time.Hour,
	// The trigger is permissionless. One rebalance a day bounds how often
	// an outsider can make the vault trade.
}

// DefaultAppraisalBounds is the baseline validity configuration for the
// appraisal pipeline.
var DefaultAppraisalBounds = types.AppraisalBounds{
	Tolerance: types.ToleranceBounds{
		LowerPricePerc: sdkmath.LegacyNewDecWithPrec(95, 2),  // 0.95
		UpperPricePerc: sdkmath.LegacyNewDecWithPrec(105, 2), // 1.05
	},
	// The reference asset is a USD stable; readings outside a 5% band
	// mean the feed or the peg is broken, not that the price moved.

	MinSPOTDR: sdkmath.LegacyNewDecWithPrec(8, 1), // 0.8
	// Below 80% backing the enrichment math still computes but the
	// number no longer reflects a redeemable claim.

	MinSeniorCDR: sdkmath.LegacyOneDec(),
	// Senior tranches must be at least fully collateralized.

	MaxReferenceAge: 24 * time.Hour,
	// Matches the reference feed's own heartbeat.

	MaturedDustThreshold: sdkmath.NewInt(25_000_000_000), // 25 AMPL in base units.
	// Rounding residue from rollovers. A matured balance above this
	// means rollovers have stalled and the reserve composition is off.
}
