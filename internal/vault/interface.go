package vault

import (
	sdkmath "cosmossdk.io/math"
)

// PerpSystem exposes the perpetual claim system the vault steers. The vault
// never computes the deviation ratio itself, only consumes it.
type PerpSystem interface {
	// DeviationRatio returns the system's current backing ratio, where 1.0
	// is the equilibrium target.
	DeviationRatio() (sdkmath.LegacyDec, error)

	// TVL returns the system-wide value backing all outstanding perp
	// tokens, in underlying base units.
	TVL() (sdkmath.Int, error)

	// TotalSupply returns the outstanding perp token supply in base units.
	TotalSupply() (sdkmath.Int, error)
}

// SwapVenue converts between the underlying asset and the perp token. The
// vault treats it as a black box with exact-input semantics and re-derives
// the realized rate from the output; implementations must be atomic so a
// rejected swap leaves no partial effects.
type SwapVenue interface {
	// SwapUnderlyingForPerps swaps amountIn underlying base units and
	// returns the perp token quantity received.
	SwapUnderlyingForPerps(amountIn sdkmath.Int) (sdkmath.Int, error)

	// SwapPerpsForUnderlying swaps amountIn perp base units and returns
	// the underlying quantity received.
	SwapPerpsForUnderlying(amountIn sdkmath.Int) (sdkmath.Int, error)
}

// BalanceReader reports the vault's live holdings. Balances are read on
// every use, never cached.
type BalanceReader interface {
	UnderlyingBalance() (sdkmath.Int, error)
	PerpBalance() (sdkmath.Int, error)
}
