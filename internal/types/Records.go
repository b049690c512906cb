package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// RebalanceRecord is the outcome of one rebalance attempt: a completed swap,
// a pure no-op, or a failed attempt (slippage rejection, venue error). Failed
// attempts roll back all vault state but still leave a record so monitoring
// can see what was tried.
type RebalanceRecord struct {
	ID      int64  `json:"id,omitempty"`
	TraceID string `json:"trace_id"`

	Timestamp time.Time `json:"timestamp"`

	// Deviation ratio snapshots around the swap.
	DRBefore sdkmath.LegacyDec `json:"dr_before"`
	DRAfter  sdkmath.LegacyDec `json:"dr_after"`

	// UnderlyingIntoPerp reports swap direction. Meaningless when the
	// amount is zero; callers must not infer anything from it then.
	UnderlyingIntoPerp bool `json:"underlying_into_perp"`

	// AmountIn is the swap size in underlying-value terms. Zero for no-ops.
	AmountIn sdkmath.Int `json:"amount_in"`

	// AmountOutValue is the received quantity re-expressed in underlying
	// terms through the perp system's TVL/supply ratio.
	AmountOutValue sdkmath.Int `json:"amount_out_value"`

	// RealizedFeePerc is 1 - received_value/amount_given (0.01 == 1%).
	// Negative when the venue returned more value than was given up.
	RealizedFeePerc sdkmath.LegacyDec `json:"realized_fee_perc"`

	NoOp bool `json:"no_op"`

	// Failed marks an attempt that executed no lasting swap; FailureReason
	// carries the cause. Both are zero on successful records.
	Failed        bool   `json:"failed"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// RoundData is one reading from a round-based external price feed. The core
// consumes Answer and UpdatedAt only; the remaining fields are carried for
// record keeping.
type RoundData struct {
	RoundID         uint64
	Answer          sdkmath.Int
	StartedAt       time.Time
	UpdatedAt       time.Time
	AnsweredInRound uint64
}
