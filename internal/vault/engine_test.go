package vault

import (
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/ampleforth/spot-vault/internal/types"
)

const owner = "vault-owner"

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

// ampl converts whole underlying units to 9-decimal base units.
func ampl(n int64) sdkmath.Int {
	return sdkmath.NewInt(n).Mul(sdkmath.NewInt(1_000_000_000))
}

type fakePerp struct {
	dr     sdkmath.LegacyDec
	tvl    sdkmath.Int
	supply sdkmath.Int
	drErr  error
}

func (p *fakePerp) DeviationRatio() (sdkmath.LegacyDec, error) { return p.dr, p.drErr }
func (p *fakePerp) TVL() (sdkmath.Int, error)                  { return p.tvl, nil }
func (p *fakePerp) TotalSupply() (sdkmath.Int, error)          { return p.supply, nil }

type fakeBalances struct {
	underlying sdkmath.Int
	perp       sdkmath.Int
}

func (b *fakeBalances) UnderlyingBalance() (sdkmath.Int, error) { return b.underlying, nil }
func (b *fakeBalances) PerpBalance() (sdkmath.Int, error)       { return b.perp, nil }

// fakeVenue returns a configurable fraction of the input, expressed in the
// counter asset at a 1:1 value rate scaled by outRate.
type fakeVenue struct {
	outRate sdkmath.LegacyDec // received = amountIn * outRate
	err     error

	underlyingIn sdkmath.Int
	perpsIn      sdkmath.Int
}

func (s *fakeVenue) SwapUnderlyingForPerps(amountIn sdkmath.Int) (sdkmath.Int, error) {
	if s.err != nil {
		return sdkmath.ZeroInt(), s.err
	}
	s.underlyingIn = amountIn
	return s.outRate.MulInt(amountIn).TruncateInt(), nil
}

func (s *fakeVenue) SwapPerpsForUnderlying(amountIn sdkmath.Int) (sdkmath.Int, error) {
	if s.err != nil {
		return sdkmath.ZeroInt(), s.err
	}
	s.perpsIn = amountIn
	return s.outRate.MulInt(amountIn).TruncateInt(), nil
}

func defaultParams() types.RebalanceParameters {
	return types.RebalanceParameters{
		TargetDR:                    sdkmath.LegacyOneDec(),
		LagFactorUnderlyingIntoPerp: 3,
		LagFactorPerpIntoUnderlying: 3,
		MinRebalanceAmt:             ampl(1),
		MaxSwapFeePerc:              dec("0.01"),
		CooldownPeriod:              24 * time.Hour,
	}
}

// newTestVault wires a vault over balanced liquidity: 10000 underlying and a
// perp holding worth 10000 underlying (TVL == supply, so value is 1:1).
func newTestVault(t *testing.T, dr string) (*Vault, *fakePerp, *fakeBalances, *fakeVenue) {
	t.Helper()
	perp := &fakePerp{dr: dec(dr), tvl: ampl(100_000), supply: ampl(100_000)}
	balances := &fakeBalances{underlying: ampl(10_000), perp: ampl(10_000)}
	venue := &fakeVenue{outRate: sdkmath.LegacyOneDec()}

	v, err := New(Config{
		Owner:      owner,
		PerpSystem: perp,
		SwapVenue:  venue,
		Balances:   balances,
		Params:     defaultParams(),
	})
	require.NoError(t, err)
	return v, perp, balances, venue
}

func TestComputeDirectionFollowsDeviation(t *testing.T) {
	cases := []struct {
		dr   string
		want bool
	}{
		{"0.2", false},
		{"0.999", false},
		{"1.0", true}, // exact equality takes the else branch
		{"1.001", true},
		{"1.8", true},
	}
	for _, tc := range cases {
		v, _, _, _ := newTestVault(t, tc.dr)
		_, underlyingIntoPerp, err := v.ComputeRebalanceAmount()
		require.NoError(t, err)
		require.Equal(t, tc.want, underlyingIntoPerp, "dr=%s", tc.dr)
	}
}

func TestComputeBelowTargetUsesVaultPerpValue(t *testing.T) {
	// dr=0.5, lag=3: required = vaultPerpValue(10000) * 0.5 = 5000,
	// adjusted = 5000/3 = 1666.666666666 underlying units.
	v, _, _, _ := newTestVault(t, "0.5")
	amount, underlyingIntoPerp, err := v.ComputeRebalanceAmount()
	require.NoError(t, err)
	require.False(t, underlyingIntoPerp)
	require.Equal(t, "1666666666666", amount.String())
}

func TestComputeAboveTargetUsesSystemTVL(t *testing.T) {
	// dr=1.2, lag=3 sized against system TVL, capped by the vault's own
	// underlying liquidity: required = 100000*0.2 = 20000, adjusted =
	// 6666.66…, available = 10000 -> amount = 6666.666666666.
	v, _, _, _ := newTestVault(t, "1.2")
	amount, underlyingIntoPerp, err := v.ComputeRebalanceAmount()
	require.NoError(t, err)
	require.True(t, underlyingIntoPerp)
	require.Equal(t, "6666666666666", amount.String())
}

func TestComputeAboveTargetSpecVector(t *testing.T) {
	// Balanced 10000/10000 with the perp system itself worth 10000:
	// amount = 10000*0.2/3 = 666.666666666.
	perp := &fakePerp{dr: dec("1.2"), tvl: ampl(10_000), supply: ampl(10_000)}
	balances := &fakeBalances{underlying: ampl(10_000), perp: ampl(10_000)}
	v, err := New(Config{
		Owner: owner, PerpSystem: perp, SwapVenue: &fakeVenue{outRate: sdkmath.LegacyOneDec()},
		Balances: balances, Params: defaultParams(),
	})
	require.NoError(t, err)

	amount, underlyingIntoPerp, err := v.ComputeRebalanceAmount()
	require.NoError(t, err)
	require.True(t, underlyingIntoPerp)
	require.Equal(t, "666666666666", amount.String())
}

func TestComputeNeverOvershoots(t *testing.T) {
	// lagFactor=1 must cap at requiredChange exactly.
	v, _, _, _ := newTestVault(t, "0.5")
	require.NoError(t, v.UpdateLagFactors(owner, 1, 1))

	amount, _, err := v.ComputeRebalanceAmount()
	require.NoError(t, err)
	required := ampl(5_000)
	require.True(t, amount.LTE(required), "amount %s exceeds required %s", amount, required)
	require.Equal(t, required.String(), amount.String())
}

func TestComputeCappedByAvailableLiquidity(t *testing.T) {
	v, _, balances, _ := newTestVault(t, "1.2")
	balances.underlying = ampl(100) // far below adjusted change

	amount, underlyingIntoPerp, err := v.ComputeRebalanceAmount()
	require.NoError(t, err)
	require.True(t, underlyingIntoPerp)
	require.Equal(t, ampl(100).String(), amount.String())
}

func TestComputeBelowMinClampsToZero(t *testing.T) {
	v, _, _, _ := newTestVault(t, "0.5")
	require.NoError(t, v.UpdateMinRebalanceAmt(owner, ampl(2_000)))

	amount, underlyingIntoPerp, err := v.ComputeRebalanceAmount()
	require.NoError(t, err)
	require.True(t, amount.IsZero())
	// Direction is still reported on a zero amount.
	require.False(t, underlyingIntoPerp)
}

func TestComputeZeroGuards(t *testing.T) {
	v, perp, _, _ := newTestVault(t, "1.2")
	perp.supply = sdkmath.ZeroInt()
	amount, _, err := v.ComputeRebalanceAmount()
	require.NoError(t, err)
	require.True(t, amount.IsZero())

	v2, perp2, _, _ := newTestVault(t, "1.2")
	perp2.tvl = sdkmath.ZeroInt()
	amount, _, err = v2.ComputeRebalanceAmount()
	require.NoError(t, err)
	require.True(t, amount.IsZero())

	v3, _, balances3, _ := newTestVault(t, "1.2")
	balances3.underlying = sdkmath.ZeroInt()
	amount, _, err = v3.ComputeRebalanceAmount()
	require.NoError(t, err)
	require.True(t, amount.IsZero())
}

func TestRebalanceUpdatesTimestamp(t *testing.T) {
	v, _, _, _ := newTestVault(t, "1.2")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	record, err := v.Rebalance()
	require.NoError(t, err)
	require.False(t, record.NoOp)
	require.Equal(t, now, v.LastRebalance())
	require.Equal(t, now, record.Timestamp)
}

func TestRebalanceNoOpConsumesCooldown(t *testing.T) {
	v, _, _, venue := newTestVault(t, "1.0") // dr at target: zero amount
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	record, err := v.Rebalance()
	require.NoError(t, err)
	require.True(t, record.NoOp)
	require.True(t, record.AmountIn.IsZero())
	require.True(t, record.UnderlyingIntoPerp)
	require.Equal(t, now, v.LastRebalance())
	// No swap was attempted.
	require.True(t, venue.underlyingIn.IsNil())
	require.True(t, venue.perpsIn.IsNil())
}

func TestRebalanceCooldownRejection(t *testing.T) {
	v, _, _, _ := newTestVault(t, "1.2")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	_, err := v.Rebalance()
	require.NoError(t, err)
	stamp := v.LastRebalance()

	// A second call inside the cooldown fails and changes nothing.
	v.now = func() time.Time { return now.Add(time.Hour) }
	_, err = v.Rebalance()
	require.ErrorIs(t, err, ErrLastRebalanceTooRecent)
	require.Equal(t, stamp, v.LastRebalance())

	// After the cooldown it succeeds again.
	v.now = func() time.Time { return now.Add(24*time.Hour + time.Second) }
	_, err = v.Rebalance()
	require.NoError(t, err)
}

func TestRebalancePausedRejection(t *testing.T) {
	v, _, _, _ := newTestVault(t, "1.2")
	require.NoError(t, v.SetPaused(owner, true))

	_, err := v.Rebalance()
	require.ErrorIs(t, err, ErrPaused)
	require.True(t, v.LastRebalance().IsZero())

	require.NoError(t, v.SetPaused(owner, false))
	_, err = v.Rebalance()
	require.NoError(t, err)
}

func TestRebalanceSlippageRejection(t *testing.T) {
	v, _, _, venue := newTestVault(t, "1.2")
	// Venue returns only 95% of value; ceiling is 1%.
	venue.outRate = dec("0.95")

	_, err := v.Rebalance()
	require.ErrorIs(t, err, ErrSlippageTooHigh)
	// Failed attempts do not consume the cooldown.
	require.True(t, v.LastRebalance().IsZero())

	// At exactly the ceiling the swap is accepted. Lag factor 2 makes the
	// amount land on the 10000-underlying liquidity cap so the realized
	// fee divides out exactly.
	require.NoError(t, v.UpdateLagFactors(owner, 2, 2))
	venue.outRate = dec("0.99")
	record, err := v.Rebalance()
	require.NoError(t, err)
	require.Equal(t, ampl(10_000).String(), record.AmountIn.String())
	require.Equal(t, "0.010000000000000000", record.RealizedFeePerc.String())
}

func TestRebalanceSwapFailureRollsBack(t *testing.T) {
	v, _, _, venue := newTestVault(t, "1.2")
	venue.err = errors.New("venue unavailable")

	_, err := v.Rebalance()
	require.Error(t, err)
	require.True(t, v.LastRebalance().IsZero())
}

func TestRebalancePerpIntoUnderlyingConvertsAmount(t *testing.T) {
	// dr=0.5 with TVL=2x supply: each perp token is worth 2 underlying, so
	// giving up N underlying of value means swapping N/2 perp tokens.
	perp := &fakePerp{dr: dec("0.5"), tvl: ampl(200_000), supply: ampl(100_000)}
	balances := &fakeBalances{underlying: ampl(10_000), perp: ampl(5_000)} // worth 10000
	venue := &fakeVenue{outRate: dec("2.0")}                               // 2 underlying per perp, fair rate
	v, err := New(Config{
		Owner: owner, PerpSystem: perp, SwapVenue: venue,
		Balances: balances, Params: defaultParams(),
	})
	require.NoError(t, err)

	record, err := v.Rebalance()
	require.NoError(t, err)
	require.False(t, record.UnderlyingIntoPerp)
	// amount = 10000*0.5/3 = 1666.666666666 underlying value,
	// perp tokens in = amount/2.
	require.Equal(t, "1666666666666", record.AmountIn.String())
	require.Equal(t, "833333333333", venue.perpsIn.String())
	// Received underlying at the fair rate: 2 * perpsIn = amountIn.
	require.Equal(t, record.AmountIn.String(), record.AmountOutValue.String())
	require.True(t, record.RealizedFeePerc.IsZero())
}

func TestRebalanceRecordSnapshotsDR(t *testing.T) {
	v, perp, _, _ := newTestVault(t, "1.2")
	record, err := v.Rebalance()
	require.NoError(t, err)
	require.Equal(t, "1.200000000000000000", record.DRBefore.String())
	require.Equal(t, perp.dr.String(), record.DRAfter.String())
}

func TestSettersValidateAndGate(t *testing.T) {
	v, _, _, _ := newTestVault(t, "1.0")

	require.ErrorIs(t, v.UpdateLagFactors("stranger", 2, 2), ErrUnauthorized)
	require.ErrorIs(t, v.UpdateLagFactors(owner, 0, 3), types.ErrInvalidLagFactor)
	require.NoError(t, v.UpdateLagFactors(owner, 2, 4))
	require.Equal(t, uint64(2), v.Parameters().LagFactorUnderlyingIntoPerp)
	require.Equal(t, uint64(4), v.Parameters().LagFactorPerpIntoUnderlying)

	require.ErrorIs(t, v.UpdateMaxSwapFeePerc(owner, dec("1.5")), types.ErrInvalidPerc)
	require.NoError(t, v.UpdateMaxSwapFeePerc(owner, dec("0.02")))

	require.Error(t, v.UpdateMinRebalanceAmt(owner, sdkmath.NewInt(-1)))
	require.NoError(t, v.UpdateMinRebalanceAmt(owner, sdkmath.ZeroInt()))

	require.ErrorIs(t, v.UpdateCooldown(owner, 0), types.ErrInvalidCooldown)
	require.ErrorIs(t, v.SetPaused("stranger", true), ErrUnauthorized)
}

func TestVaultTVL(t *testing.T) {
	v, _, _, _ := newTestVault(t, "1.0")
	tvl, err := v.TVL()
	require.NoError(t, err)
	// 10000 underlying + perp holding worth 10000.
	require.Equal(t, ampl(20_000).String(), tvl.String())
}
