package matcher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPolicyNormalizedFillsZeroValueFields(t *testing.T) {
	got := Policy{}.normalized()
	require.Equal(t, DefaultPolicy(), got)
}

func TestPolicyNormalizedRejectsOutOfRangeFractions(t *testing.T) {
	got := Policy{ScoreFloor: 1.5, EarlyExitTop: -1, EarlyExitRunnerUp: 0}.normalized()
	d := DefaultPolicy()
	require.Equal(t, d.ScoreFloor, got.ScoreFloor)
	require.Equal(t, d.EarlyExitTop, got.EarlyExitTop)
	require.Equal(t, d.EarlyExitRunnerUp, got.EarlyExitRunnerUp)
}

func TestPolicyNormalizedPreservesValidOverrides(t *testing.T) {
	custom := Policy{
		MinVideoDuration:   120,
		ScoreFloor:         0.5,
		EarlyExitTop:       0.95,
		EarlyExitRunnerUp:  0.7,
		MinTranscriptChars: 20,
	}
	require.Equal(t, custom, custom.normalized())
}
