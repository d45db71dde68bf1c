package ivf

import (
	"math"
	"math/bits"

	"github.com/vectral/vectral/internal/vector"
)

// point is the minimal shape kmeans needs: an id paired with its vector
// values. The index never retains a reference to the collection itself —
// only this snapshot and the compatibility key below.
type point struct {
	id     uint64
	values []float32
}

func l2Squared(left, right []float32) float32 {
	squared, err := vector.L2SquaredWithOptions(left, right, vector.Permissive())
	if err != nil {
		return float32(math.Inf(1))
	}
	return squared
}

func chooseNlist(totalPoints int) int {
	sqrt := int(math.Round(math.Sqrt(float64(totalPoints))))
	if sqrt < minLists {
		sqrt = minLists
	}
	if sqrt > maxLists {
		sqrt = maxLists
	}
	if sqrt > totalPoints {
		sqrt = totalPoints
	}
	return sqrt
}

// seededStartIndex picks the initial k-means++ centroid deterministically
// from the content of the point snapshot, so a fixed snapshot always builds
// the same index (property 7).
func seededStartIndex(points []point) int {
	stride := len(points) / 64
	if stride < 1 {
		stride = 1
	}

	hash := uint64(0x9E3779B97F4A7C15) ^ uint64(len(points))
	for i := 0; i < len(points); i += stride {
		p := points[i]
		hash ^= p.id * 0xBF58476D1CE4E5B9
		if len(p.values) > 0 {
			bitPattern := uint64(math.Float32bits(p.values[0]))
			hash ^= bitPattern * 0x94D049BB133111EB
		}
		hash = bits.RotateLeft64(hash, 17) * 0x9E3779B185EBCA87
	}
	return int(hash % uint64(len(points)))
}

func initialCentroids(points []point, nlist int) [][]float32 {
	centroids := make([][]float32, 0, nlist)
	selected := make([]bool, len(points))

	first := seededStartIndex(points)
	centroids = append(centroids, append([]float32(nil), points[first].values...))
	selected[first] = true

	for len(centroids) < nlist {
		bestIdx := -1
		bestDistance := float32(math.Inf(-1))

		for idx, p := range points {
			if selected[idx] {
				continue
			}
			nearest := float32(math.Inf(1))
			for _, c := range centroids {
				d := l2Squared(p.values, c)
				if d < nearest {
					nearest = d
				}
			}
			if nearest > bestDistance {
				bestDistance = nearest
				bestIdx = idx
			}
		}

		if bestIdx < 0 {
			for idx, flag := range selected {
				if !flag {
					bestIdx = idx
					break
				}
			}
		}
		if bestIdx < 0 {
			bestIdx = 0
		}

		selected[bestIdx] = true
		centroids = append(centroids, append([]float32(nil), points[bestIdx].values...))
	}
	return centroids
}

func nearestCentroid(values []float32, centroids [][]float32) int {
	bestIdx := 0
	bestDist := l2Squared(values, centroids[0])
	for idx := 1; idx < len(centroids); idx++ {
		d := l2Squared(values, centroids[idx])
		if d < bestDist {
			bestDist = d
			bestIdx = idx
		}
	}
	return bestIdx
}

func recomputeCentroids(points []point, assignments []int, centroids [][]float32) {
	dimension := len(centroids[0])
	sums := make([][]float32, len(centroids))
	counts := make([]int, len(centroids))
	for i := range sums {
		sums[i] = make([]float32, dimension)
	}

	for idx, p := range points {
		c := assignments[idx]
		counts[c]++
		for d, v := range p.values {
			sums[c][d] += v
		}
	}

	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		for d := 0; d < dimension; d++ {
			centroids[c][d] = sums[c][d] / float32(counts[c])
		}
	}
}
