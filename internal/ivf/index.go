package ivf

import (
	"math"
	"sort"

	"github.com/vectral/vectral/internal/collection"
)

const (
	// MinIndexedPoints is the hard floor below which the engine refuses to
	// build or consult an IVF index.
	MinIndexedPoints = 2048

	maxLists      = 256
	minLists      = 8
	kmeansIters   = 4
	defaultNProbe = 8
)

// Index is an immutable, cached IVF-L2 partitioning of one collection
// snapshot. It carries no reference back to the collection: staleness is
// detected purely from the (dimension, len, mutationVersion) compatibility
// key, so the index can outlive concurrent mutation without any cyclic
// ownership.
type Index struct {
	dimension       int
	len             int
	mutationVersion uint64
	nlist           int
	nprobe          int
	centroids       [][]float32
	lists           [][]uint64
}

// Build constructs an Index from a point snapshot. Returns false when the
// collection has fewer than MinIndexedPoints points.
func Build(dimension int, points []collection.PointSnapshot, mutationVersion uint64) (*Index, bool) {
	if len(points) < MinIndexedPoints {
		return nil, false
	}

	pts := make([]point, len(points))
	for i, p := range points {
		pts[i] = point{id: p.ID, values: p.Values}
	}

	nlist := chooseNlist(len(pts))
	if nlist == 0 {
		return nil, false
	}

	centroids := initialCentroids(pts, nlist)
	assignments := make([]int, len(pts))

	for iter := 0; iter < kmeansIters; iter++ {
		for idx, p := range pts {
			assignments[idx] = nearestCentroid(p.values, centroids)
		}
		recomputeCentroids(pts, assignments, centroids)
	}

	lists := make([][]uint64, nlist)
	for idx, p := range pts {
		c := assignments[idx]
		lists[c] = append(lists[c], p.id)
	}

	nprobe := defaultNProbe
	if nprobe > nlist {
		nprobe = nlist
	}

	return &Index{
		dimension:       dimension,
		len:             len(points),
		mutationVersion: mutationVersion,
		nlist:           nlist,
		nprobe:          nprobe,
		centroids:       centroids,
		lists:           lists,
	}, true
}

// IsCompatible reports whether the index is still valid for a collection
// currently at the given (dimension, len, mutationVersion).
func (ix *Index) IsCompatible(dimension, collectionLen int, mutationVersion uint64) bool {
	return ix.dimension == dimension && ix.len == collectionLen && ix.mutationVersion == mutationVersion
}

type centroidScore struct {
	index int
	score float32
}

// CandidateIDs returns the ids from the probe most-promising centroid lists
// for query, ordered by ascending centroid distance. limit informs how many
// lists are probed: more lists are probed as limit grows relative to the
// collection size, so a large top-k still gets enough candidates.
func (ix *Index) CandidateIDs(query []float32, limit int) []uint64 {
	return ix.CandidateIDsWithTargetRecall(query, limit, nil)
}

// CandidateIDsWithTargetRecall is CandidateIDs with an optional recall
// target: a target widens the probe toward the entire centroid set, so a
// target of 1.0 scans every list.
func (ix *Index) CandidateIDsWithTargetRecall(query []float32, limit int, targetRecall *float64) []uint64 {
	scores := make([]centroidScore, len(ix.centroids))
	for i, c := range ix.centroids {
		scores[i] = centroidScore{index: i, score: l2Squared(query, c)}
	}

	total := ix.len
	if total < 1 {
		total = 1
	}
	requiredLists := ceilDiv(limit*ix.nlist, total)
	probe := ix.nprobe
	if requiredLists > probe {
		probe = requiredLists
	}
	if targetRecall != nil {
		recallLists := int(math.Ceil(float64(ix.nlist) * *targetRecall))
		if recallLists > probe {
			probe = recallLists
		}
	}
	if probe > ix.nlist {
		probe = ix.nlist
	}
	if probe < 1 {
		probe = 1
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].score < scores[j].score })
	if probe < len(scores) {
		scores = scores[:probe]
	}

	capacity := 0
	for _, s := range scores {
		capacity += len(ix.lists[s.index])
	}
	candidateIDs := make([]uint64, 0, capacity)
	for _, s := range scores {
		candidateIDs = append(candidateIDs, ix.lists[s.index]...)
	}
	return candidateIDs
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
