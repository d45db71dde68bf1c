package search

import (
	"context"
	"runtime"
	"sync"

	"github.com/vectral/vectral/internal/collection"
	"github.com/vectral/vectral/internal/vector"
)

// preparedQuery wraps one of the three prepared-query kernel types behind a
// metric-agnostic scoring call, so the scan loops below are monomorphic
// per-candidate but dispatch once up front.
type preparedQuery struct {
	metric Metric

	dot    *vector.DotQuery
	l2     *vector.L2Query
	cosine *vector.CosineQuery

	zeroNormEpsilon float32
}

func prepareQuery(metric Metric, values []float32, opts vector.Options) (preparedQuery, error) {
	switch metric {
	case MetricDot:
		q, err := vector.NewDotQuery(values, opts)
		if err != nil {
			return preparedQuery{}, err
		}
		return preparedQuery{metric: metric, dot: q}, nil
	case MetricL2:
		q, err := vector.NewL2Query(values, opts)
		if err != nil {
			return preparedQuery{}, err
		}
		return preparedQuery{metric: metric, l2: q}, nil
	case MetricCosine:
		q, err := vector.NewCosineQuery(values, opts)
		if err != nil {
			return preparedQuery{}, err
		}
		return preparedQuery{metric: metric, cosine: q, zeroNormEpsilon: opts.ZeroNormEpsilon}, nil
	default:
		return preparedQuery{}, ErrDimensionMismatch
	}
}

// score returns candidate's score and false if the candidate is excluded
// from ranking (only possible for cosine against a near-zero-norm vector).
func (p preparedQuery) score(candidate []float32) (float32, bool) {
	switch p.metric {
	case MetricDot:
		return p.dot.ScoreUnchecked(candidate), true
	case MetricL2:
		return p.l2.ScoreSquaredUnchecked(candidate), true
	default:
		return p.cosine.ScoreUnchecked(candidate, p.zeroNormEpsilon)
	}
}

// getter resolves the i'th item of a scan range to its id, vector, and
// payload; false means the slot is unoccupied (a gap left by deletion) and
// should be skipped.
type getter func(i int) (id uint64, values []float32, payload collection.Payload, ok bool)

func slotGetter(coll *collection.Collection) getter {
	return func(i int) (uint64, []float32, collection.Payload, bool) {
		return coll.SlotAtUnsafe(i)
	}
}

func candidateGetter(coll *collection.Collection, ids []uint64) getter {
	return func(i int) (uint64, []float32, collection.Payload, bool) {
		id := ids[i]
		slot, ok := coll.SlotForIDUnsafe(id)
		if !ok {
			return 0, nil, nil, false
		}
		return coll.SlotAtUnsafe(slot)
	}
}

func scanRange(get getter, pq preparedQuery, filter *Filter, sel selector, start, end int) {
	for i := start; i < end; i++ {
		id, values, payload, ok := get(i)
		if !ok {
			continue
		}
		if !filter.Admits(payload) {
			continue
		}
		s, ok := pq.score(values)
		if !ok {
			continue
		}
		sel.push(id, rankFor(pq.metric, s), s)
	}
}

// score runs get over [0,total) and returns the top-k admitted candidates,
// splitting it into fixed chunks run on an errgroup when thresholds judge the scan
// big enough to be worth the goroutine overhead. Per-chunk partials
// merge into the final selector via the same admission rule.
func score(ctx context.Context, total int, parallel bool, chunkLen, k int, filtered bool, get getter, pq preparedQuery, filter *Filter) ([]scored, error) {
	if !parallel || total == 0 {
		sel := newSelector(k, filtered)
		scanRange(get, pq, filter, sel, 0, total)
		return sel.finalize(), nil
	}

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers < 1 {
		numWorkers = 1
	}
	perWorker := (total + numWorkers - 1) / numWorkers
	if perWorker < chunkLen {
		perWorker = chunkLen
	}

	var mu sync.Mutex
	final := newSelector(k, filtered)

	err := parallelChunks(ctx, total, perWorker, func(_ context.Context, start, end int) error {
		local := newSelector(k, filtered)
		scanRange(get, pq, filter, local, start, end)

		mu.Lock()
		mergeInto(final, local.finalize())
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return final.finalize(), nil
}

// scoreFullScan scores every live slot in coll against pq, holding the
// collection's read lock for the whole pass so the scan observes one
// consistent arena snapshot.
func scoreFullScan(ctx context.Context, coll *collection.Collection, pq preparedQuery, k int, filter *Filter, t Thresholds) ([]scored, error) {
	coll.RLock()
	defer coll.RUnlock()

	total := coll.SlotCountUnsafe()
	dim := coll.Dimension()
	parallel := t.shouldParallelizeScan(total, dim, k)

	return score(ctx, total, parallel, t.ParallelScoreMinChunkLen, k, filter != nil, slotGetter(coll), pq, filter)
}

// scoreCandidates scores only the given ids (an IVF candidate set) against
// pq, under the same read-lock discipline as scoreFullScan.
func scoreCandidates(ctx context.Context, coll *collection.Collection, ids []uint64, pq preparedQuery, k int, filter *Filter, t Thresholds) ([]scored, error) {
	coll.RLock()
	defer coll.RUnlock()

	dim := coll.Dimension()
	parallel := t.shouldParallelizeCandidates(len(ids), dim)

	return score(ctx, len(ids), parallel, t.ParallelScoreMinChunkLen, k, filter != nil, candidateGetter(coll, ids), pq, filter)
}
