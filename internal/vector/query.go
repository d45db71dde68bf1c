package vector

// DotQuery is a prepared query for dot-product scoring. It caches nothing
// beyond the query values themselves but gives the scoring loop a single
// type to dispatch on alongside L2Query and CosineQuery.
type DotQuery struct {
	values []float32
}

// NewDotQuery validates q once and returns a reusable prepared query.
func NewDotQuery(q []float32, opts Options) (*DotQuery, error) {
	if err := validateQuery(q, opts); err != nil {
		return nil, err
	}
	return &DotQuery{values: q}, nil
}

// Values returns the underlying query vector.
func (p *DotQuery) Values() []float32 { return p.values }

// ScoreUnchecked scores candidate against the prepared query without
// re-validating either side. Callers must ensure candidate has the same
// length as the prepared query.
func (p *DotQuery) ScoreUnchecked(candidate []float32) float32 {
	return simdDot(p.values, candidate)
}

// L2Query is a prepared query for L2 scoring. It also caches ||q||^2,
// exposed through SqNorm; the transposed batch path computes its own
// per-query norms and does not use it.
type L2Query struct {
	values []float32
	sqNorm float32
}

// NewL2Query validates q once and precomputes its squared norm.
func NewL2Query(q []float32, opts Options) (*L2Query, error) {
	if err := validateQuery(q, opts); err != nil {
		return nil, err
	}
	_, sqNorm, _ := simdDotAndNorms(q, q)
	return &L2Query{values: q, sqNorm: sqNorm}, nil
}

// Values returns the underlying query vector.
func (p *L2Query) Values() []float32 { return p.values }

// SqNorm returns the cached ‖q‖².
func (p *L2Query) SqNorm() float32 { return p.sqNorm }

// ScoreSquaredUnchecked returns the squared L2 distance to candidate
// without re-validating either side.
func (p *L2Query) ScoreSquaredUnchecked(candidate []float32) float32 {
	return simdL2Squared(p.values, candidate)
}

// CosineQuery is a prepared query for cosine scoring; it caches ‖q‖² so the
// per-candidate cost is one dot product plus one candidate norm.
type CosineQuery struct {
	values []float32
	sqNorm float32
}

// NewCosineQuery validates q once and precomputes its squared norm. It
// fails fast with ZeroNormError if the query itself has near-zero norm,
// since every candidate comparison would otherwise fail identically.
func NewCosineQuery(q []float32, opts Options) (*CosineQuery, error) {
	if err := validateQuery(q, opts); err != nil {
		return nil, err
	}
	_, sqNorm, _ := simdDotAndNorms(q, q)

	epsilon := opts.ZeroNormEpsilon
	if epsilon < 0 {
		epsilon = 0
	}
	if sqNorm <= epsilon {
		return nil, &ZeroNormError{Epsilon: epsilon}
	}

	return &CosineQuery{values: q, sqNorm: sqNorm}, nil
}

// Values returns the underlying query vector.
func (p *CosineQuery) Values() []float32 { return p.values }

// SqNorm returns the cached ‖q‖².
func (p *CosineQuery) SqNorm() float32 { return p.sqNorm }

// ScoreUnchecked returns the cosine similarity to candidate without
// re-validating either side. Returns false if candidate has near-zero norm.
func (p *CosineQuery) ScoreUnchecked(candidate []float32, zeroNormEpsilon float32) (float32, bool) {
	dot, _, candidateSq := simdDotAndNorms(p.values, candidate)
	epsilon := zeroNormEpsilon
	if epsilon < 0 {
		epsilon = 0
	}
	if candidateSq <= epsilon {
		return 0, false
	}
	return dot / sqrt32(p.sqNorm*candidateSq), true
}

func validateQuery(q []float32, opts Options) error {
	if len(q) == 0 {
		return ErrEmptyVector
	}
	if opts.StrictFinite {
		for i, v := range q {
			if !isFinite32(v) {
				return &NonFiniteError{Side: SideLeft, Index: i, Value: v}
			}
		}
	}
	return nil
}
