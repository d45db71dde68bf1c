package search

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Thresholds are the tunable floors below which the engine scans a
// collection serially rather than paying the chunking/goroutine overhead of
// the parallel executor. All are overridable via environment through
// ThresholdsFromEnv (which cmd/vectrald uses); the search engine itself just
// reads whatever Thresholds it is given.
type Thresholds struct {
	ParallelScoreMinPoints     int
	ParallelScoreMinWork       int
	ParallelTop1MinPoints      int
	ParallelTop1MinWork        int
	ParallelCandidateIDsMinLen int
	ParallelCandidateMinWork   int
	ParallelScoreMinChunkLen   int
}

// DefaultThresholds returns the built-in defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ParallelScoreMinPoints:     256,
		ParallelScoreMinWork:       200_000,
		ParallelTop1MinPoints:      8_192,
		ParallelTop1MinWork:        4_000_000,
		ParallelCandidateIDsMinLen: 256,
		ParallelCandidateMinWork:   200_000,
		ParallelScoreMinChunkLen:   32,
	}
}

var (
	envThresholdsOnce sync.Once
	envThresholds     Thresholds
)

// ThresholdsFromEnv returns DefaultThresholds with any VECTRAL_PARALLEL_*
// environment overrides applied. The environment is read once, on first
// call; later changes to the process environment are not observed.
func ThresholdsFromEnv() Thresholds {
	envThresholdsOnce.Do(func() {
		envThresholds = DefaultThresholds().overrideFromEnv(os.Getenv)
	})
	return envThresholds
}

func (t Thresholds) overrideFromEnv(getenv func(string) string) Thresholds {
	override := func(dst *int, key string) {
		raw := getenv(key)
		if raw == "" {
			return
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return
		}
		*dst = v
	}
	override(&t.ParallelScoreMinPoints, "VECTRAL_PARALLEL_SCORE_MIN_POINTS")
	override(&t.ParallelScoreMinWork, "VECTRAL_PARALLEL_SCORE_MIN_WORK")
	override(&t.ParallelTop1MinPoints, "VECTRAL_PARALLEL_TOP1_MIN_POINTS")
	override(&t.ParallelTop1MinWork, "VECTRAL_PARALLEL_TOP1_MIN_WORK")
	override(&t.ParallelCandidateIDsMinLen, "VECTRAL_PARALLEL_CANDIDATE_IDS_MIN_LEN")
	override(&t.ParallelCandidateMinWork, "VECTRAL_PARALLEL_CANDIDATE_MIN_WORK")
	override(&t.ParallelScoreMinChunkLen, "VECTRAL_PARALLEL_SCORE_MIN_CHUNK_LEN")
	return t
}

func (t Thresholds) shouldParallelizeScan(points, dim, k int) bool {
	work := points * dim
	if k == 1 {
		return points >= t.ParallelTop1MinPoints && work >= t.ParallelTop1MinWork
	}
	return points >= t.ParallelScoreMinPoints && work >= t.ParallelScoreMinWork
}

func (t Thresholds) shouldParallelizeCandidates(n, dim int) bool {
	work := n * dim
	return n >= t.ParallelCandidateIDsMinLen && work >= t.ParallelCandidateMinWork
}

// parallelChunks runs worker over disjoint [start,end) ranges covering
// [0,total), one errgroup goroutine per fixed chunk of chunkLen slots; the
// Go scheduler spreads those goroutines over its threads. A worker panic is
// recovered and surfaced as a single internal error; errgroup's first error
// cancels the group context so no partial result is ever returned to the
// caller.
func parallelChunks(ctx context.Context, total, chunkLen int, worker func(ctx context.Context, start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkLen < 1 {
		chunkLen = 1
	}

	g, gctx := errgroup.WithContext(ctx)

	var next int
	numChunks := (total + chunkLen - 1) / chunkLen
	for i := 0; i < numChunks; i++ {
		start := next
		end := start + chunkLen
		if end > total {
			end = total
		}
		next = end

		g.Go(func() error {
			return runChunkSafely(gctx, start, end, worker)
		})
	}

	return g.Wait()
}

func runChunkSafely(ctx context.Context, start, end int, worker func(ctx context.Context, start, end int) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("search: worker panic scoring [%d,%d): %v", start, end, r)
		}
	}()
	return worker(ctx, start, end)
}
