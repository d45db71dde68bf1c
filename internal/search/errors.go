// Package search composes the vector kernels over a collection's slot arena
// (and, for L2 queries on large collections, the IVF index) to answer top-k
// nearest-neighbour queries under a metric, mode, optional metadata filter,
// and recall target, plus a batched and transposed fast path.
package search

import "errors"

// ErrEmptyCollection reports a search against a collection with no live
// points.
var ErrEmptyCollection = errors.New("search: collection is empty")

// ErrInvalidK reports a non-positive k.
var ErrInvalidK = errors.New("search: k must be > 0")

// ErrDimensionMismatch reports a query vector whose length does not match
// the collection's configured dimension.
var ErrDimensionMismatch = errors.New("search: query dimension mismatch")

// ErrInvalidTargetRecall reports a target recall outside (0, 1].
var ErrInvalidTargetRecall = errors.New("search: target_recall must be in (0, 1]")

// ErrIVFUnavailable reports that mode=ivf was requested for a query that
// cannot use the IVF index: a non-L2 metric, or a collection below the
// indexing floor.
var ErrIVFUnavailable = errors.New("search: ivf mode requires the l2 metric and a sufficiently large collection")

// ErrInvalidFilter reports a structurally invalid filter (e.g. a range
// clause with no bounds).
var ErrInvalidFilter = errors.New("search: invalid filter")
