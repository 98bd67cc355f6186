package muxcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreditsReserveAndGrant(t *testing.T) {
	c := NewCredits(100)
	require.Equal(t, uint32(100), c.Available())
	require.True(t, c.HasCapacity(100))
	require.False(t, c.HasCapacity(101))

	c.Reserve(40)
	require.Equal(t, uint32(60), c.Available())

	delta := c.Grant(20)
	require.Equal(t, uint32(20), delta)
	require.Equal(t, uint32(80), c.Available())
}

func TestCreditsGrantSaturatesAtCapacity(t *testing.T) {
	c := NewCredits(100)
	c.Reserve(10)

	delta := c.Grant(50)
	require.Equal(t, uint32(10), delta, "grant should not push available past capacity")
	require.Equal(t, uint32(100), c.Available())
}

// TestCreditsThresholdRisingEdge is the regression this package's credit
// return logic was built to fix: a naive "emit whenever past threshold"
// policy re-announces on every single byte returned once past the
// halfway mark, rather than only once per crossing.
func TestCreditsThresholdRisingEdge(t *testing.T) {
	c := NewCredits(100)
	c.Reserve(90) // available=10, well under the 50-byte threshold

	_, crossed := c.ThresholdCrossed(FCNumerator, FCDenominator)
	require.False(t, crossed)

	c.Grant(30) // available=40, unannounced=30: still under threshold
	_, crossed = c.ThresholdCrossed(FCNumerator, FCDenominator)
	require.False(t, crossed)

	c.Grant(20) // available=60, unannounced=50: crosses
	delta, crossed := c.ThresholdCrossed(FCNumerator, FCDenominator)
	require.True(t, crossed)
	require.Equal(t, uint32(50), delta)
	c.MarkAnnounced(delta)

	// Granting one more byte must NOT re-fire until a fresh batch
	// accumulates past the threshold again.
	c.Grant(1)
	_, crossed = c.ThresholdCrossed(FCNumerator, FCDenominator)
	require.False(t, crossed)
}

func TestCreditsHasCapacityAfterReserveToZero(t *testing.T) {
	c := NewCredits(10)
	c.Reserve(10)
	require.Equal(t, uint32(0), c.Available())
	require.False(t, c.HasCapacity(1))
	require.True(t, c.HasCapacity(0))
}
