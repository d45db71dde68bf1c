package search

import (
	"context"
	"runtime"
	"sync"

	"github.com/vectral/vectral/internal/collection"
	"github.com/vectral/vectral/internal/ivf"
)

// transposedMinQueriesAuto is the batch-size floor below which an
// auto-mode batch skips the transposed path; an explicit exact request
// only needs more than one query.
const transposedMinQueriesAuto = 16

const transposedMaxK = 64

// BatchRequest is one top_k_batch call: the same metric/mode/filter/k apply
// to every query in the batch.
type BatchRequest struct {
	Metric         Metric
	Mode           Mode
	K              int
	Filter         *Filter
	IncludePayload bool
	TargetRecall   *float64
}

// SearchBatch runs the same request shape across many queries. For the L2,
// unfiltered, small-k, multi-query case it takes the transposed fast path;
// otherwise it falls back to calling Search once per query.
func (e *Engine) SearchBatch(ctx context.Context, name string, coll *collection.Collection, queries [][]float32, req BatchRequest) ([]Result, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	single := Request{
		Metric:         req.Metric,
		Mode:           req.Mode,
		K:              req.K,
		Filter:         req.Filter,
		IncludePayload: req.IncludePayload,
		TargetRecall:   req.TargetRecall,
	}
	for _, q := range queries {
		single.Values = q
		if err := validateRequest(coll, single); err != nil {
			return nil, err
		}
	}

	if e.eligibleForTransposed(coll, queries, req) {
		return e.transposedBatchL2(ctx, coll, queries, req)
	}

	results := make([]Result, len(queries))
	for i, q := range queries {
		single.Values = q
		r, err := e.Search(ctx, name, coll, single)
		if err != nil {
			return nil, err
		}
		results[i] = r
	}
	return results, nil
}

func (e *Engine) eligibleForTransposed(coll *collection.Collection, queries [][]float32, req BatchRequest) bool {
	if req.Metric != MetricL2 || req.Filter != nil {
		return false
	}
	if req.K <= 0 || req.K > transposedMaxK {
		return false
	}
	if len(queries) <= 1 {
		return false
	}
	if req.Mode == ModeIVF {
		return false
	}
	if req.Mode == ModeAuto && len(queries) < transposedMinQueriesAuto {
		return false
	}

	coll.RLock()
	dense := coll.SlotsDenseUnsafe()
	coll.RUnlock()
	if !dense {
		return false
	}

	if req.Mode == ModeAuto && coll.Len() >= ivf.MinIndexedPoints {
		// An auto-mode batch on a collection large enough for IVF goes
		// through per-query Search, which uses a compatible cached IVF
		// index when there is one, instead of the brute-force transposed
		// scan. The cache is not consulted here.
		return false
	}
	return true
}

// transposedBatchL2 is the batched L2 fast path: precompute per-query
// squared norms
// and a (dim x Q) transposed query matrix, then for each candidate vector
// compute all Q dot products in one pass over its components and rank via
// the ‖q_i‖²+‖x‖²-2·d_i rearrangement.
func (e *Engine) transposedBatchL2(ctx context.Context, coll *collection.Collection, queries [][]float32, req BatchRequest) ([]Result, error) {
	coll.RLock()
	defer coll.RUnlock()

	dim := coll.Dimension()
	q := len(queries)
	total := coll.SlotCountUnsafe()

	sqNormQ := make([]float32, q)
	transposed := make([]float32, dim*q)
	for i, query := range queries {
		var sq float32
		for d := 0; d < dim; d++ {
			v := query[d]
			sq += v * v
			transposed[d*q+i] = v
		}
		sqNormQ[i] = sq
	}

	parallel := e.thresholds.shouldParallelizeScan(total, dim*q, req.K)

	final := make([]selector, q)
	for i := range final {
		final[i] = newSelector(req.K, false)
	}

	if !parallel || total == 0 {
		local := scanTransposed(coll, transposed, sqNormQ, dim, q, req.K, 0, total)
		for i := range final {
			mergeInto(final[i], local[i].finalize())
		}
	} else {
		numWorkers := runtime.GOMAXPROCS(0)
		if numWorkers < 1 {
			numWorkers = 1
		}
		perWorker := (total + numWorkers - 1) / numWorkers
		if perWorker < e.thresholds.ParallelScoreMinChunkLen {
			perWorker = e.thresholds.ParallelScoreMinChunkLen
		}

		var mu sync.Mutex
		err := parallelChunks(ctx, total, perWorker, func(_ context.Context, start, end int) error {
			local := scanTransposed(coll, transposed, sqNormQ, dim, q, req.K, start, end)
			mu.Lock()
			for i := range final {
				mergeInto(final[i], local[i].finalize())
			}
			mu.Unlock()
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	results := make([]Result, q)
	for i, sel := range final {
		hits := hydrateHits(coll, sel.finalize(), Request{Metric: MetricL2, IncludePayload: req.IncludePayload})
		results[i] = Result{Hits: hits, Mode: ModeExact, RecallAtK: exactRecall()}
	}
	return results, nil
}

func scanTransposed(coll *collection.Collection, transposed []float32, sqNormQ []float32, dim, q, k int, start, end int) []selector {
	local := make([]selector, q)
	for i := range local {
		local[i] = newSelector(k, false)
	}

	dots := make([]float32, q)
	for slot := start; slot < end; slot++ {
		id, values, _, ok := coll.SlotAtUnsafe(slot)
		if !ok {
			continue
		}

		for i := range dots {
			dots[i] = 0
		}

		var sqX float32
		for d := 0; d < dim; d++ {
			x := values[d]
			sqX += x * x
			row := transposed[d*q : d*q+q]
			for i, qv := range row {
				dots[i] += x * qv
			}
		}

		for i := 0; i < q; i++ {
			scoreSq := sqNormQ[i] + sqX - 2*dots[i]
			local[i].push(id, scoreSq, scoreSq)
		}
	}
	return local
}
