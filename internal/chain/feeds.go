package chain

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ampleforth/spot-vault/internal/appraiser"
	"github.com/ampleforth/spot-vault/internal/twap"
	"github.com/ampleforth/spot-vault/internal/types"
	"github.com/ampleforth/spot-vault/internal/utils"
)

const (
	aggregatorABIJSON = `[
		{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}
	]`
	medianOracleABIJSON = `[
		{"inputs":[],"name":"getData","outputs":[{"internalType":"uint256","name":"","type":"uint256"},{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"}
	]`
)

var (
	aggregatorABI   = mustABI(aggregatorABIJSON)
	medianOracleABI = mustABI(medianOracleABIJSON)
)

// RoundFeed reads a Chainlink-style aggregator. The feed's native answer
// scale is fixed at construction rather than queried per read; answers are
// normalized to utils.FeedDecimals so consumers never see per-feed scales.
type RoundFeed struct {
	client   *Client
	address  common.Address
	decimals int
}

// NewRoundFeed builds a round-based feed adapter.
func NewRoundFeed(client *Client, address string, decimals int) (*RoundFeed, error) {
	if address == "" {
		return nil, ErrMissingAddress
	}
	return &RoundFeed{
		client:   client,
		address:  common.HexToAddress(address),
		decimals: decimals,
	}, nil
}

// LatestRoundData fetches the most recent feed round.
func (f *RoundFeed) LatestRoundData() (types.RoundData, error) {
	outputs, err := f.client.call(f.address, aggregatorABI, "latestRoundData")
	if err != nil {
		return types.RoundData{}, err
	}
	if len(outputs) != 5 {
		return types.RoundData{}, fmt.Errorf("%w: latestRoundData returned %d values", ErrBadResponse, len(outputs))
	}
	roundID, err := asBigInt(outputs[0])
	if err != nil {
		return types.RoundData{}, err
	}
	answer, err := asBigInt(outputs[1])
	if err != nil {
		return types.RoundData{}, err
	}
	startedAt, err := asBigInt(outputs[2])
	if err != nil {
		return types.RoundData{}, err
	}
	updatedAt, err := asBigInt(outputs[3])
	if err != nil {
		return types.RoundData{}, err
	}
	answeredIn, err := asBigInt(outputs[4])
	if err != nil {
		return types.RoundData{}, err
	}
	normalized, err := utils.Rescale(sdkmath.NewIntFromBigInt(answer), f.decimals, utils.FeedDecimals)
	if err != nil {
		return types.RoundData{}, fmt.Errorf("failed to normalize feed answer: %w", err)
	}
	return types.RoundData{
		RoundID:         roundID.Uint64(),
		Answer:          normalized,
		StartedAt:       time.Unix(startedAt.Int64(), 0).UTC(),
		UpdatedAt:       time.Unix(updatedAt.Int64(), 0).UTC(),
		AnsweredInRound: answeredIn.Uint64(),
	}, nil
}

// Decimals is the scale of normalized answers.
func (f *RoundFeed) Decimals() int {
	return utils.FeedDecimals
}

// TargetRateFeed reads a median-oracle style (value, isValid) pair, the
// CPI/target-rate source.
type TargetRateFeed struct {
	client   *Client
	address  common.Address
	decimals int
}

// NewTargetRateFeed builds a target-rate oracle adapter.
func NewTargetRateFeed(client *Client, address string, decimals int) (*TargetRateFeed, error) {
	if address == "" {
		return nil, ErrMissingAddress
	}
	return &TargetRateFeed{
		client:   client,
		address:  common.HexToAddress(address),
		decimals: decimals,
	}, nil
}

// TargetRate fetches the oracle's value and its own validity bit, rescaled
// to 18 decimals.
func (f *TargetRateFeed) TargetRate() (types.OracleReading, error) {
	outputs, err := f.client.call(f.address, medianOracleABI, "getData")
	if err != nil {
		return types.OracleReading{}, err
	}
	if len(outputs) != 2 {
		return types.OracleReading{}, fmt.Errorf("%w: getData returned %d values", ErrBadResponse, len(outputs))
	}
	value, err := asBigInt(outputs[0])
	if err != nil {
		return types.OracleReading{}, err
	}
	valid, ok := outputs[1].(bool)
	if !ok {
		return types.OracleReading{}, fmt.Errorf("%w: expected bool validity, got %T", ErrBadResponse, outputs[1])
	}
	rate := sdkmath.LegacyNewDecFromIntWithPrec(sdkmath.NewIntFromBigInt(value), int64(f.decimals))
	return types.NewOracleReading(rate, valid), nil
}

var (
	_ appraiser.ReferenceOracle  = (*RoundFeed)(nil)
	_ twap.ReferenceFeed         = (*RoundFeed)(nil)
	_ appraiser.TargetRateOracle = (*TargetRateFeed)(nil)
	_ twap.TargetRateOracle      = (*TargetRateFeed)(nil)
)
