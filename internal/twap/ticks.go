package twap

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrInvalidWindow  = errors.New("observation window must be positive")
	ErrTickOutOfRange = errors.New("tick outside supported range")
)

// MaxTick bounds the supported tick range, matching the venue's own limit.
const MaxTick = 887272

var tickBase = sdkmath.LegacyMustNewDecFromStr("1.0001")

// AvgTick derives the time-weighted average tick from two cumulative tick
// accumulator readings taken window seconds apart. Division rounds toward
// negative infinity, matching the venue's stated observation semantics: a
// negative delta with a remainder rounds one tick lower.
func AvgTick(tickCumEnd, tickCumStart int64, window int64) (int64, error) {
	if window <= 0 {
		return 0, ErrInvalidWindow
	}
	delta := tickCumEnd - tickCumStart
	avg := delta / window
	if delta < 0 && delta%window != 0 {
		avg--
	}
	return avg, nil
}

// TickToPrice converts an averaged tick to an 18-decimal price ratio,
// 1.0001^tick. Negative ticks take the reciprocal of the positive power.
func TickToPrice(tick int64) (sdkmath.LegacyDec, error) {
	if tick > MaxTick || tick < -MaxTick {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %d", ErrTickOutOfRange, tick)
	}
	if tick == 0 {
		return sdkmath.LegacyOneDec(), nil
	}
	abs := tick
	if abs < 0 {
		abs = -abs
	}
	price := tickBase.Power(uint64(abs))
	if tick < 0 {
		price = sdkmath.LegacyOneDec().Quo(price)
	}
	return price, nil
}
