package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckpointsOrdersPrimaryBeforeFallback(t *testing.T) {
	got := Checkpoints(1000)
	require.Equal(t, []float64{150, 500, 850, 250, 350, 650, 750}[:6], got)
}

func TestCheckpointsFiltersTailMargin(t *testing.T) {
	// duration 60: primary 51 exceeds 60-10=50 and is filtered; primaries 9
	// and 30 and fallbacks 15, 21, 39 and 45 survive.
	got := Checkpoints(60)
	for _, t0 := range got {
		require.LessOrEqual(t, t0, 60.0-10.0)
	}
}

func TestCheckpointsCapsAtSix(t *testing.T) {
	got := Checkpoints(10000)
	require.LessOrEqual(t, len(got), 6)
}

func TestCheckpointsOnShortVideoCanBeEmpty(t *testing.T) {
	got := Checkpoints(5)
	require.Empty(t, got)
}

func TestPrimaryCountMatchesUnfilteredPrimaryCheckpoints(t *testing.T) {
	require.Equal(t, 3, PrimaryCount(1000))
}
