package appraiser

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/ampleforth/spot-vault/internal/types"
)

const owner = "appraiser-owner"

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

func ampl(n int64) sdkmath.Int {
	return sdkmath.NewInt(n).Mul(sdkmath.NewInt(1_000_000_000))
}

type fakeReference struct {
	answer    sdkmath.Int
	updatedAt time.Time
	decimals  int
}

func (f *fakeReference) LatestRoundData() (types.RoundData, error) {
	return types.RoundData{RoundID: 7, Answer: f.answer, UpdatedAt: f.updatedAt}, nil
}
func (f *fakeReference) Decimals() int { return f.decimals }

type fakeTarget struct {
	reading types.OracleReading
}

func (f *fakeTarget) TargetRate() (types.OracleReading, error) { return f.reading, nil }

type fakeReserve struct {
	dr      sdkmath.LegacyDec
	tvl     sdkmath.Int
	supply  sdkmath.Int
	matured sdkmath.Int
}

func (f *fakeReserve) DeviationRatio() (sdkmath.LegacyDec, error)  { return f.dr, nil }
func (f *fakeReserve) ReserveTVL() (sdkmath.Int, error)            { return f.tvl, nil }
func (f *fakeReserve) ReserveSupply() (sdkmath.Int, error)         { return f.supply, nil }
func (f *fakeReserve) MaturedReserveBalance() (sdkmath.Int, error) { return f.matured, nil }

type fakeTranches struct {
	seniorClaim sdkmath.Int
	totalDebt   sdkmath.Int
}

func (f *fakeTranches) SeniorClaim() (sdkmath.Int, error) { return f.seniorClaim, nil }
func (f *fakeTranches) TotalDebt() (sdkmath.Int, error)   { return f.totalDebt, nil }

func defaultBounds() types.AppraisalBounds {
	return types.AppraisalBounds{
		Tolerance:            types.ToleranceBounds{LowerPricePerc: dec("0.95"), UpperPricePerc: dec("1.05")},
		MinSPOTDR:            dec("0.75"),
		MinSeniorCDR:         dec("1.1"),
		MaxReferenceAge:      24 * time.Hour,
		MaturedDustThreshold: ampl(10),
	}
}

// healthyFixture builds an appraiser whose every check passes and whose
// price is 1.15 * 1500000/1000000 = 1.725.
func healthyFixture(t *testing.T) (*Appraiser, *fakeReference, *fakeTarget, *fakeReserve, *fakeTranches) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	reference := &fakeReference{answer: sdkmath.NewInt(100_000_000), updatedAt: now.Add(-time.Hour), decimals: 8}
	target := &fakeTarget{reading: types.NewOracleReading(dec("1.15"), true)}
	reserve := &fakeReserve{
		dr:      dec("1.0"),
		tvl:     ampl(1_500_000),
		supply:  ampl(1_000_000),
		matured: sdkmath.ZeroInt(),
	}
	tranches := &fakeTranches{seniorClaim: ampl(1_200_000), totalDebt: ampl(1_000_000)}

	a, err := New(Config{
		Owner:            owner,
		ReferenceOracle:  reference,
		TargetRateOracle: target,
		Reserve:          reserve,
		Tranches:         tranches,
		Bounds:           defaultBounds(),
	})
	require.NoError(t, err)
	a.now = func() time.Time { return now }
	return a, reference, target, reserve, tranches
}

func TestAppraisedPriceHealthy(t *testing.T) {
	a, _, _, _, _ := healthyFixture(t)
	price, err := a.AppraisedPrice()
	require.NoError(t, err)
	require.True(t, price.Valid)
	require.Equal(t, "1.725000000000000000", price.Value.String())
}

func TestAppraisedPriceDebasementMultiplier(t *testing.T) {
	a, _, _, reserve, _ := healthyFixture(t)
	reserve.tvl = ampl(900_000)
	price, err := a.AppraisedPrice()
	require.NoError(t, err)
	require.True(t, price.Valid)
	require.Equal(t, "1.035000000000000000", price.Value.String())
}

func TestStaleReferenceInvalidates(t *testing.T) {
	a, reference, _, _, _ := healthyFixture(t)
	reference.updatedAt = reference.updatedAt.Add(-25 * time.Hour)

	price, err := a.AppraisedPrice()
	require.NoError(t, err)
	require.False(t, price.Valid)
	// The numeric value still reflects the raw computation.
	require.Equal(t, "1.725000000000000000", price.Value.String())
}

func TestReferenceOutsideToleranceInvalidates(t *testing.T) {
	a, reference, _, _, _ := healthyFixture(t)
	reference.answer = sdkmath.NewInt(94_000_000) // 0.94 at 8 decimals

	price, err := a.AppraisedPrice()
	require.NoError(t, err)
	require.False(t, price.Valid)
	require.Equal(t, "1.725000000000000000", price.Value.String())
}

func TestInvalidTargetRatePropagates(t *testing.T) {
	a, _, target, _, _ := healthyFixture(t)
	target.reading = types.InvalidReading(dec("1.15"))

	price, err := a.AppraisedPrice()
	require.NoError(t, err)
	require.False(t, price.Valid)
	require.Equal(t, "1.725000000000000000", price.Value.String())
}

func TestDeviationRatioFloorInvalidates(t *testing.T) {
	a, _, _, reserve, _ := healthyFixture(t)
	reserve.dr = dec("0.74")

	price, err := a.AppraisedPrice()
	require.NoError(t, err)
	require.False(t, price.Valid)
	require.Equal(t, "1.725000000000000000", price.Value.String())
}

func TestSeniorCDRFloorInvalidates(t *testing.T) {
	a, _, _, _, tranches := healthyFixture(t)
	tranches.seniorClaim = ampl(1_000_000) // CDR exactly 1.0 < 1.1

	price, err := a.AppraisedPrice()
	require.NoError(t, err)
	require.False(t, price.Valid)
	require.Equal(t, "1.725000000000000000", price.Value.String())
}

func TestZeroDebtSkipsCDRCheck(t *testing.T) {
	a, _, _, _, tranches := healthyFixture(t)
	tranches.totalDebt = sdkmath.ZeroInt()
	tranches.seniorClaim = sdkmath.ZeroInt()

	price, err := a.AppraisedPrice()
	require.NoError(t, err)
	require.True(t, price.Valid)
}

func TestMaturedDustInvalidates(t *testing.T) {
	a, _, _, reserve, _ := healthyFixture(t)
	reserve.matured = ampl(11) // above the 10-unit dust threshold

	price, err := a.AppraisedPrice()
	require.NoError(t, err)
	require.False(t, price.Valid)
	require.Equal(t, "1.725000000000000000", price.Value.String())

	// Exactly at the threshold still counts as dust.
	reserve.matured = ampl(10)
	price, err = a.AppraisedPrice()
	require.NoError(t, err)
	require.True(t, price.Valid)
}

func TestZeroSupplyFallsBackToTargetRate(t *testing.T) {
	a, _, _, reserve, _ := healthyFixture(t)
	reserve.supply = sdkmath.ZeroInt()

	price, err := a.AppraisedPrice()
	require.NoError(t, err)
	require.False(t, price.Valid)
	require.Equal(t, "1.150000000000000000", price.Value.String())
}

func TestMultipleFailuresStillComputeValue(t *testing.T) {
	a, reference, target, reserve, _ := healthyFixture(t)
	reference.updatedAt = reference.updatedAt.Add(-48 * time.Hour)
	target.reading = types.InvalidReading(dec("1.15"))
	reserve.dr = dec("0.1")

	price, err := a.AppraisedPrice()
	require.NoError(t, err)
	require.False(t, price.Valid)
	require.Equal(t, "1.725000000000000000", price.Value.String())
}

func TestBoundsSetters(t *testing.T) {
	a, _, _, _, _ := healthyFixture(t)

	require.ErrorIs(t, a.UpdateAllowedPriceDeviationPercs("stranger", dec("0.9"), dec("1.1")), ErrUnauthorized)
	require.ErrorIs(t, a.UpdateAllowedPriceDeviationPercs(owner, dec("1.0"), dec("1.1")), types.ErrInvalidPriceBound)
	require.ErrorIs(t, a.UpdateAllowedPriceDeviationPercs(owner, dec("0.9"), dec("0.99")), types.ErrInvalidPriceBound)
	require.NoError(t, a.UpdateAllowedPriceDeviationPercs(owner, dec("0.9"), dec("1.1")))
	require.Equal(t, "0.900000000000000000", a.Bounds().Tolerance.LowerPricePerc.String())

	require.ErrorIs(t, a.UpdateMinSPOTDR(owner, dec("-0.5")), types.ErrInvalidDRBound)
	require.NoError(t, a.UpdateMinSPOTDR(owner, dec("0.8")))

	require.ErrorIs(t, a.UpdateMinPerpCollateralCDR(owner, dec("0.99")), types.ErrInvalidSeniorCDRBound)
	require.NoError(t, a.UpdateMinPerpCollateralCDR(owner, dec("1.25")))
	require.Equal(t, "1.250000000000000000", a.Bounds().MinSeniorCDR.String())

	// Rejected updates leave the previous bounds untouched.
	require.Error(t, a.UpdateMinPerpCollateralCDR(owner, dec("0.5")))
	require.Equal(t, "1.250000000000000000", a.Bounds().MinSeniorCDR.String())
}
