// Package ivf implements the IVF-L2 approximate index: a k-means++-seeded
// partitioning of a collection's points into nlist centroid lists, built
// from a point snapshot and cached per collection behind a compatibility
// key, with single-flight-guarded, cooldown-limited asynchronous rebuilds.
package ivf

import "errors"

// ErrTooSmall reports that a collection has fewer than MinIndexedPoints
// points, so no index can be built for it.
var ErrTooSmall = errors.New("ivf: collection has too few points to index")
