package search

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/vectral/vectral/internal/collection"
	"github.com/vectral/vectral/internal/ivf"
	"github.com/vectral/vectral/internal/logging"
	"github.com/vectral/vectral/internal/vector"
)

// Engine answers top-k queries against a collection, consulting name's
// entry in ivfCache for L2 queries large enough to benefit from it. It
// holds no reference to any particular collection: every call receives the
// collection (and its name, the cache's key) explicitly.
type Engine struct {
	ivfCache   *ivf.Cache
	thresholds Thresholds
	logger     zerolog.Logger
}

// NewEngine builds an Engine over the given shared IVF cache and parallelism
// thresholds.
func NewEngine(ivfCache *ivf.Cache, thresholds Thresholds) *Engine {
	return &Engine{
		ivfCache:   ivfCache,
		thresholds: thresholds,
		logger:     logging.WithComponent("search"),
	}
}

// Search runs req against coll (registered under name, the IVF cache key).
func (e *Engine) Search(ctx context.Context, name string, coll *collection.Collection, req Request) (Result, error) {
	if err := validateRequest(coll, req); err != nil {
		return Result{}, err
	}
	if req.Mode == ModeIVF && coll.Len() < ivf.MinIndexedPoints {
		return Result{}, ErrIVFUnavailable
	}

	opts := vector.DefaultOptions()
	opts.StrictFinite = coll.StrictFinite()
	pq, err := prepareQuery(req.Metric, req.Values, opts)
	if err != nil {
		return Result{}, err
	}

	switch {
	case req.Mode == ModeExact:
		return e.searchExact(ctx, coll, pq, req)
	case req.Mode == ModeIVF:
		return e.searchIVF(ctx, name, coll, pq, req)
	default: // ModeAuto
		if req.Metric != MetricL2 || coll.Len() < ivf.MinIndexedPoints {
			return e.searchExact(ctx, coll, pq, req)
		}
		return e.searchAuto(ctx, name, coll, pq, req)
	}
}

func (e *Engine) searchExact(ctx context.Context, coll *collection.Collection, pq preparedQuery, req Request) (Result, error) {
	results, err := scoreFullScan(ctx, coll, pq, req.K, req.Filter, e.thresholds)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Hits:      hydrateHits(coll, results, req),
		Mode:      ModeExact,
		RecallAtK: exactRecall(),
	}, nil
}

// searchIVF consults the cache, building synchronously on a miss (an
// explicit mode=ivf request pays that cost up front rather than degrading).
func (e *Engine) searchIVF(ctx context.Context, name string, coll *collection.Collection, pq preparedQuery, req Request) (Result, error) {
	idx := e.compatibleIndex(name, coll)
	if idx == nil {
		built, ok := ivf.Build(coll.Dimension(), coll.Points(), coll.MutationVersion())
		if !ok {
			// A concurrent burst of deletes dropped the collection below the
			// indexing floor between the len check above and here.
			return e.searchExact(ctx, coll, pq, req)
		}
		e.ivfCache.Store(name, built)
		idx = built
	}

	candidateIDs := idx.CandidateIDsWithTargetRecall(req.Values, req.K, req.TargetRecall)
	results, err := scoreCandidates(ctx, coll, candidateIDs, pq, req.K, req.Filter, e.thresholds)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Hits:      hydrateHits(coll, results, req),
		Mode:      ModeIVF,
		RecallAtK: nil,
	}, nil
}

// searchAuto uses a cached compatible IVF index if one exists; on a miss it
// schedules a background rebuild (subject to the cache's single-flight
// guard and cooldown) and degrades to an exact scan for this query.
func (e *Engine) searchAuto(ctx context.Context, name string, coll *collection.Collection, pq preparedQuery, req Request) (Result, error) {
	if idx := e.compatibleIndex(name, coll); idx != nil {
		candidateIDs := idx.CandidateIDsWithTargetRecall(req.Values, req.K, req.TargetRecall)
		results, err := scoreCandidates(ctx, coll, candidateIDs, pq, req.K, req.Filter, e.thresholds)
		if err != nil {
			return Result{}, err
		}
		return Result{Hits: hydrateHits(coll, results, req), Mode: ModeIVF, RecallAtK: nil}, nil
	}

	scheduled := e.ivfCache.TryScheduleRebuild(name, func() (*ivf.Index, bool) {
		return ivf.Build(coll.Dimension(), coll.Points(), coll.MutationVersion())
	})
	if scheduled {
		e.logger.Debug().Str("collection", name).Msg("ivf cache miss, scheduled async rebuild")
	}
	return e.searchExact(ctx, coll, pq, req)
}

// compatibleIndex returns the cached index for name iff it is present and
// compatible with coll's current (dimension, len, mutationVersion); a
// present but stale entry is evicted so later callers see a clean miss.
func (e *Engine) compatibleIndex(name string, coll *collection.Collection) *ivf.Index {
	idx, ok := e.ivfCache.Get(name)
	if !ok {
		return nil
	}
	if idx.IsCompatible(coll.Dimension(), coll.Len(), coll.MutationVersion()) {
		return idx
	}
	e.ivfCache.Invalidate(name)
	return nil
}

// hydrateHits converts scan results into Hits in ranked order, converting
// the squared L2 score used for ranking back to a true distance, and
// attaching payloads if requested.
func hydrateHits(coll *collection.Collection, results []scored, req Request) []Hit {
	hits := make([]Hit, len(results))
	for i, r := range results {
		score := r.score
		if req.Metric == MetricL2 {
			score = float32(math.Sqrt(float64(score)))
		}
		h := Hit{ID: r.id, Score: score}
		if req.IncludePayload {
			if p, ok := coll.GetPayload(r.id); ok {
				h.Payload = p
			}
		}
		hits[i] = h
	}
	return hits
}
