package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThresholdsOverrideFromEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		"VECTRAL_PARALLEL_SCORE_MIN_POINTS":    "1",
		"VECTRAL_PARALLEL_SCORE_MIN_WORK":      "2",
		"VECTRAL_PARALLEL_TOP1_MIN_POINTS":     "3",
		"VECTRAL_PARALLEL_SCORE_MIN_CHUNK_LEN": "4",
	}
	got := DefaultThresholds().overrideFromEnv(func(key string) string { return env[key] })

	require.Equal(t, 1, got.ParallelScoreMinPoints)
	require.Equal(t, 2, got.ParallelScoreMinWork)
	require.Equal(t, 3, got.ParallelTop1MinPoints)
	require.Equal(t, 4, got.ParallelScoreMinChunkLen)
	// Untouched knobs keep their defaults.
	require.Equal(t, DefaultThresholds().ParallelTop1MinWork, got.ParallelTop1MinWork)
	require.Equal(t, DefaultThresholds().ParallelCandidateIDsMinLen, got.ParallelCandidateIDsMinLen)
}

func TestThresholdsOverrideIgnoresMalformedValues(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		"VECTRAL_PARALLEL_SCORE_MIN_POINTS": "not-a-number",
		"VECTRAL_PARALLEL_SCORE_MIN_WORK":   "-5",
	}
	got := DefaultThresholds().overrideFromEnv(func(key string) string { return env[key] })
	require.Equal(t, DefaultThresholds(), got)
}

func TestShouldParallelizeScanUsesTop1FloorsForKOne(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()

	// Clears the generic floors but not the higher k==1 floors.
	require.True(t, th.shouldParallelizeScan(1_000, 512, 10))
	require.False(t, th.shouldParallelizeScan(1_000, 512, 1))
	require.True(t, th.shouldParallelizeScan(10_000, 512, 1))
}
