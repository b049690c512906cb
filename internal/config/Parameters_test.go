package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultRebalanceParameters(t *testing.T) {
	require.NoError(t, DefaultRebalanceParameters.Validate())

	// The rebalance trigger is permissionless: once a day, no more.
	require.Equal(t, 24*time.Hour, DefaultRebalanceParameters.CooldownPeriod)
	require.Equal(t, "0.010000000000000000", DefaultRebalanceParameters.MaxSwapFeePerc.String())
	require.Equal(t, "1.000000000000000000", DefaultRebalanceParameters.TargetDR.String())
}

func TestDefaultAppraisalBounds(t *testing.T) {
	require.NoError(t, DefaultAppraisalBounds.Validate())
}
