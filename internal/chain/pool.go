package chain

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ampleforth/spot-vault/internal/twap"
	"github.com/ampleforth/spot-vault/internal/utils"
)

const (
	poolABIJSON = `[
		{"inputs":[{"internalType":"uint32[]","name":"secondsAgos","type":"uint32[]"}],"name":"observe","outputs":[{"internalType":"int56[]","name":"tickCumulatives","type":"int56[]"},{"internalType":"uint160[]","name":"secondsPerLiquidityCumulativeX128s","type":"uint160[]"}],"stateMutability":"view","type":"function"}
	]`
	wrapperABIJSON = `[
		{"inputs":[],"name":"totalUnderlying","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"totalSupply","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`

	wrappedDecimals = 18
)

var (
	poolABI    = mustABI(poolABIJSON)
	wrapperABI = mustABI(wrapperABIJSON)
)

// Pool reads a concentrated-liquidity pool's tick accumulators.
type Pool struct {
	client  *Client
	address common.Address
}

// NewPool builds a pool observer for the given pool contract.
func NewPool(client *Client, address string) (*Pool, error) {
	if address == "" {
		return nil, ErrMissingAddress
	}
	return &Pool{client: client, address: common.HexToAddress(address)}, nil
}

// ObserveTickCumulatives queries the pool's observe method at the requested
// lookback offsets and returns the tick accumulators in the same order.
func (p *Pool) ObserveTickCumulatives(secondsAgo []int64) ([]int64, error) {
	agos := make([]uint32, len(secondsAgo))
	for i, s := range secondsAgo {
		if s < 0 {
			return nil, fmt.Errorf("lookback offset cannot be negative: %d", s)
		}
		agos[i] = uint32(s)
	}
	outputs, err := p.client.call(p.address, poolABI, "observe", agos)
	if err != nil {
		return nil, err
	}
	if len(outputs) != 2 {
		return nil, fmt.Errorf("%w: observe returned %d values", ErrBadResponse, len(outputs))
	}
	raw, ok := outputs[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected accumulator type %T", ErrBadResponse, outputs[0])
	}
	if len(raw) != len(secondsAgo) {
		return nil, fmt.Errorf("%w: observe returned %d accumulators, want %d", ErrBadResponse, len(raw), len(secondsAgo))
	}
	cumulatives := make([]int64, len(raw))
	for i, c := range raw {
		if !c.IsInt64() {
			return nil, fmt.Errorf("%w: tick accumulator overflows int64", ErrBadResponse)
		}
		cumulatives[i] = c.Int64()
	}
	return cumulatives, nil
}

// Wrapper reads a wrapped-underlying token's unwrap rate. The wrapper holds
// the underlying at its native decimals while the wrapped token itself uses
// 18 decimals.
type Wrapper struct {
	client  *Client
	address common.Address
}

// NewWrapper builds a wrapped-token adapter.
func NewWrapper(client *Client, address string) (*Wrapper, error) {
	if address == "" {
		return nil, ErrMissingAddress
	}
	return &Wrapper{client: client, address: common.HexToAddress(address)}, nil
}

// UnderlyingPerWrapped reads the underlying units backing one whole wrapped
// token. A wrapper with no supply has no meaningful rate.
func (w *Wrapper) UnderlyingPerWrapped() (sdkmath.LegacyDec, error) {
	totalUnderlying, err := w.readUint("totalUnderlying")
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	totalSupply, err := w.readUint("totalSupply")
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	if totalSupply.IsZero() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: wrapper has zero supply", ErrBadResponse)
	}
	underlying, err := utils.DecFromFixed(totalUnderlying, utils.UnderlyingDecimals)
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	supply, err := utils.DecFromFixed(totalSupply, wrappedDecimals)
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	return underlying.QuoTruncate(supply), nil
}

func (w *Wrapper) readUint(method string) (sdkmath.Int, error) {
	outputs, err := w.client.call(w.address, wrapperABI, method)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if len(outputs) != 1 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s returned %d values", ErrBadResponse, method, len(outputs))
	}
	value, err := asBigInt(outputs[0])
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return sdkmath.NewIntFromBigInt(value), nil
}

var (
	_ twap.PoolObserver = (*Pool)(nil)
	_ twap.WrappedToken = (*Wrapper)(nil)
)
