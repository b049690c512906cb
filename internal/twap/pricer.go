/*
The twap pricer derives a chain of USD prices from time-weighted pool
observations and two reference feeds: reference price -> wrapped-token price
-> target-token USD price -> deviation percentage. Every stage returns an
OracleReading whose validity is the AND of its inputs while the numeric value
is always computed from the raw inputs, mirroring the appraisal pipeline's
soft-invalidity policy.
*/

package twap

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/ampleforth/spot-vault/internal/logger"
	"github.com/ampleforth/spot-vault/internal/types"
	"github.com/ampleforth/spot-vault/internal/utils"
)

// ReferenceFeed is a round-based USD feed (native asset/USD or USD-stable).
type ReferenceFeed interface {
	LatestRoundData() (types.RoundData, error)
	Decimals() int
}

// PoolObserver reports cumulative tick accumulators for a liquidity pool at
// the requested lookback offsets, most recent first. The averaged tick over
// the window prices token1 in token0 terms.
type PoolObserver interface {
	ObserveTickCumulatives(secondsAgo []int64) ([]int64, error)
}

// WrappedToken reports the unwrap rate of the wrapped underlying:
// underlying units per one wrapped token, as an 18-decimal ratio.
type WrappedToken interface {
	UnderlyingPerWrapped() (sdkmath.LegacyDec, error)
}

// PerpAccounting exposes the perp system's reserve value and supply for the
// fair-market-value price.
type PerpAccounting interface {
	ReserveTVL() (sdkmath.Int, error)
	ReserveSupply() (sdkmath.Int, error)
}

// TargetRateOracle reports the underlying's fair-value target rate.
type TargetRateOracle interface {
	TargetRate() (types.OracleReading, error)
}

// Pricer chains pool observations and reference feeds into USD prices for
// the wrapped token, the underlying and the perp token.
type Pricer struct {
	logger zerolog.Logger

	ethFeed       ReferenceFeed
	usdStableFeed ReferenceFeed
	wrappedPool   PoolObserver // WETH/WAMPL: averaged tick prices WETH per WAMPL
	perpPool      PoolObserver // USD-stable/SPOT: averaged tick prices stable per SPOT
	wrapped       WrappedToken
	perp          PerpAccounting
	target        TargetRateOracle

	window time.Duration
	maxAge time.Duration

	now func() time.Time
}

// Config holds the dependencies for creating a Pricer.
type Config struct {
	EthFeed       ReferenceFeed
	UsdStableFeed ReferenceFeed
	WrappedPool   PoolObserver
	PerpPool      PoolObserver
	Wrapped       WrappedToken
	Perp          PerpAccounting
	Target        TargetRateOracle

	// Window is the TWAP lookback; MaxFeedAge the feed staleness bound.
	Window     time.Duration
	MaxFeedAge time.Duration
}

// New creates a Pricer with validated dependencies.
func New(cfg Config) (*Pricer, error) {
	if cfg.EthFeed == nil || cfg.UsdStableFeed == nil {
		return nil, fmt.Errorf("reference feeds cannot be nil")
	}
	if cfg.WrappedPool == nil || cfg.PerpPool == nil {
		return nil, fmt.Errorf("pool observers cannot be nil")
	}
	if cfg.Wrapped == nil || cfg.Perp == nil || cfg.Target == nil {
		return nil, fmt.Errorf("wrapped token, perp accounting and target oracle cannot be nil")
	}
	if cfg.Window <= 0 {
		return nil, ErrInvalidWindow
	}
	if cfg.MaxFeedAge <= 0 {
		return nil, fmt.Errorf("feed staleness bound must be positive")
	}
	return &Pricer{
		logger:        logger.GetForComponent("twap_pricer"),
		ethFeed:       cfg.EthFeed,
		usdStableFeed: cfg.UsdStableFeed,
		wrappedPool:   cfg.WrappedPool,
		perpPool:      cfg.PerpPool,
		wrapped:       cfg.Wrapped,
		perp:          cfg.Perp,
		target:        cfg.Target,
		window:        cfg.Window,
		maxAge:        cfg.MaxFeedAge,
		now:           time.Now,
	}, nil
}

// EthUsdPrice reads the native-asset/USD feed, rescaled to 18 decimals with
// validity reflecting feed freshness.
func (p *Pricer) EthUsdPrice() (types.OracleReading, error) {
	return p.feedPrice(p.ethFeed)
}

// UsdPrice reads the USD-stable feed (the unit the perp pool quotes in).
func (p *Pricer) UsdPrice() (types.OracleReading, error) {
	return p.feedPrice(p.usdStableFeed)
}

func (p *Pricer) feedPrice(feed ReferenceFeed) (types.OracleReading, error) {
	round, err := feed.LatestRoundData()
	if err != nil {
		return types.OracleReading{}, fmt.Errorf("failed to read reference feed: %w", err)
	}
	price, err := utils.DecFromFixed(round.Answer, feed.Decimals())
	if err != nil {
		return types.OracleReading{}, fmt.Errorf("failed to scale feed answer: %w", err)
	}
	fresh := p.now().Sub(round.UpdatedAt) <= p.maxAge
	return types.NewOracleReading(price, fresh), nil
}

// WamplUsdPrice derives the wrapped token's USD price from the native-asset
// feed and the wrapped pool's time-weighted tick: the averaged tick prices
// WETH per WAMPL, so wamplUsd = ethUsd * poolPrice.
func (p *Pricer) WamplUsdPrice() (types.OracleReading, error) {
	ethUsd, err := p.EthUsdPrice()
	if err != nil {
		return types.OracleReading{}, err
	}
	poolPrice, err := p.observedPrice(p.wrappedPool)
	if err != nil {
		return types.OracleReading{}, err
	}
	return ethUsd.Mul(poolPrice), nil
}

// UnderlyingUsdPrice converts the wrapped-token price to the underlying:
// one wrapped token unwraps to UnderlyingPerWrapped underlying units.
func (p *Pricer) UnderlyingUsdPrice() (types.OracleReading, error) {
	wamplUsd, err := p.WamplUsdPrice()
	if err != nil {
		return types.OracleReading{}, err
	}
	unwrapRate, err := p.wrapped.UnderlyingPerWrapped()
	if err != nil {
		return types.OracleReading{}, fmt.Errorf("failed to read unwrap rate: %w", err)
	}
	return wamplUsd.Quo(types.NewOracleReading(unwrapRate, true)), nil
}

// PerpFmvUsdPrice is the perp token's fair market value, independent of any
// trading venue: underlyingUsd * reserveTVL/reserveSupply.
func (p *Pricer) PerpFmvUsdPrice() (types.OracleReading, error) {
	underlyingUsd, err := p.UnderlyingUsdPrice()
	if err != nil {
		return types.OracleReading{}, err
	}
	tvl, err := p.perp.ReserveTVL()
	if err != nil {
		return types.OracleReading{}, fmt.Errorf("failed to read reserve TVL: %w", err)
	}
	supply, err := p.perp.ReserveSupply()
	if err != nil {
		return types.OracleReading{}, fmt.Errorf("failed to read reserve supply: %w", err)
	}
	if supply.IsZero() {
		return types.InvalidReading(underlyingUsd.Value), nil
	}
	multiplier := sdkmath.LegacyNewDecFromInt(tvl).QuoTruncate(sdkmath.LegacyNewDecFromInt(supply))
	return underlyingUsd.Mul(types.NewOracleReading(multiplier, true)), nil
}

// PerpUsdPrice is the pool-observed perp price: the perp pool's averaged
// tick prices the USD-stable token per perp token, so
// perpUsd = stableUsd * poolPrice.
func (p *Pricer) PerpUsdPrice() (types.OracleReading, error) {
	stableUsd, err := p.UsdPrice()
	if err != nil {
		return types.OracleReading{}, err
	}
	poolPrice, err := p.observedPrice(p.perpPool)
	if err != nil {
		return types.OracleReading{}, err
	}
	return stableUsd.Mul(poolPrice), nil
}

// SpotPriceDeviation is the ratio of the pool-observed perp price to its
// fair market value. 1.0 means the venue agrees with the accounting.
func (p *Pricer) SpotPriceDeviation() (types.OracleReading, error) {
	observed, err := p.PerpUsdPrice()
	if err != nil {
		return types.OracleReading{}, err
	}
	fmv, err := p.PerpFmvUsdPrice()
	if err != nil {
		return types.OracleReading{}, err
	}
	return observed.Quo(fmv), nil
}

// AmplPriceDeviation is the ratio of the pool-observed underlying price to
// the target-rate oracle's fair value.
func (p *Pricer) AmplPriceDeviation() (types.OracleReading, error) {
	observed, err := p.UnderlyingUsdPrice()
	if err != nil {
		return types.OracleReading{}, err
	}
	target, err := p.target.TargetRate()
	if err != nil {
		return types.OracleReading{}, fmt.Errorf("failed to read target rate: %w", err)
	}
	return observed.Quo(target), nil
}

// observedPrice reads a pool's tick accumulators over the window and
// converts the averaged tick to an 18-decimal price. A reversed accumulator
// order or out-of-range tick clears validity but still reports the raw
// conversion where one is computable.
func (p *Pricer) observedPrice(pool PoolObserver) (types.OracleReading, error) {
	window := int64(p.window / time.Second)
	cumulatives, err := pool.ObserveTickCumulatives([]int64{window, 0})
	if err != nil {
		return types.OracleReading{}, fmt.Errorf("failed to observe pool: %w", err)
	}
	if len(cumulatives) != 2 {
		return types.OracleReading{}, fmt.Errorf("pool returned %d accumulators, want 2", len(cumulatives))
	}
	avgTick, err := AvgTick(cumulatives[1], cumulatives[0], window)
	if err != nil {
		return types.OracleReading{}, err
	}
	price, err := TickToPrice(avgTick)
	if err != nil {
		p.logger.Warn().Int64("avgTick", avgTick).Err(err).Msg("Averaged tick unusable")
		return types.InvalidReading(sdkmath.LegacyZeroDec()), nil
	}
	return types.NewOracleReading(price, true), nil
}
