package search

import "sort"

// scored is one candidate's admission record. rank is the metric-folded,
// ascending-is-better key: the raw score for L2 (ascending squared
// distance), the negated score for dot/cosine (so descending similarity
// becomes ascending rank). score is the original value reported to callers.
type scored struct {
	id    uint64
	rank  float32
	score float32
}

// rankFor folds a metric's native score into the ascending-is-better rank
// key the selection structures share, so one comparator serves all metrics.
func rankFor(metric Metric, score float32) float32 {
	if metric == MetricL2 {
		return score
	}
	return -score
}

// selector is the shared admission interface both the small-top-k buffer
// and the bounded heap satisfy, so a chunked parallel scan can merge
// per-chunk partials into a final structure with the same admission rule.
type selector interface {
	push(id uint64, rank, score float32)
	finalize() []scored
}

func sortFinal(items []scored) []scored {
	sort.Slice(items, func(i, j int) bool {
		if items[i].rank != items[j].rank {
			return items[i].rank < items[j].rank
		}
		return items[i].id < items[j].id
	})
	return items
}

// smallTopK is a fixed-capacity, kept-sorted linear buffer for tiny k
// (<=64): push is O(k), but k is small enough that this beats a
// heap's pointer chasing. Maintained sorted ascending by rank with the
// worst element always last.
type smallTopK struct {
	capacity int
	items    []scored
}

func newSmallTopK(capacity int) *smallTopK {
	return &smallTopK{capacity: capacity, items: make([]scored, 0, capacity)}
}

func (b *smallTopK) less(a, c scored) bool {
	if a.rank != c.rank {
		return a.rank < c.rank
	}
	return a.id < c.id
}

func (b *smallTopK) push(id uint64, rank, score float32) {
	cand := scored{id: id, rank: rank, score: score}

	if len(b.items) < b.capacity {
		i := sort.Search(len(b.items), func(i int) bool { return b.less(cand, b.items[i]) })
		b.items = append(b.items, scored{})
		copy(b.items[i+1:], b.items[i:])
		b.items[i] = cand
		return
	}

	if b.capacity == 0 {
		return
	}
	worst := b.items[len(b.items)-1]
	if !b.less(cand, worst) {
		return
	}
	i := sort.Search(len(b.items)-1, func(i int) bool { return b.less(cand, b.items[i]) })
	copy(b.items[i+1:], b.items[i:len(b.items)-1])
	b.items[i] = cand
}

func (b *smallTopK) finalize() []scored {
	out := make([]scored, len(b.items))
	copy(out, b.items)
	return out
}

// boundedHeap is a binary max-heap on rank, capped at k, so the worst
// admitted candidate is always at the root and eviction is O(log k). Used
// whenever a filter is present or k exceeds the small-top-k threshold.
type boundedHeap struct {
	capacity int
	items    []scored
}

func newBoundedHeap(capacity int) *boundedHeap {
	return &boundedHeap{capacity: capacity, items: make([]scored, 0, capacity)}
}

func (h *boundedHeap) worse(a, b scored) bool {
	if a.rank != b.rank {
		return a.rank > b.rank
	}
	return a.id > b.id
}

func (h *boundedHeap) push(id uint64, rank, score float32) {
	if h.capacity == 0 {
		return
	}
	cand := scored{id: id, rank: rank, score: score}

	if len(h.items) < h.capacity {
		h.items = append(h.items, cand)
		h.siftUp(len(h.items) - 1)
		return
	}

	if !h.worse(h.items[0], cand) {
		return
	}
	h.items[0] = cand
	h.siftDown(0)
}

func (h *boundedHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.worse(h.items[i], h.items[parent]) {
			return
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *boundedHeap) siftDown(i int) {
	n := len(h.items)
	for {
		left, right := 2*i+1, 2*i+2
		worst := i
		if left < n && h.worse(h.items[left], h.items[worst]) {
			worst = left
		}
		if right < n && h.worse(h.items[right], h.items[worst]) {
			worst = right
		}
		if worst == i {
			return
		}
		h.items[i], h.items[worst] = h.items[worst], h.items[i]
		i = worst
	}
}

func (h *boundedHeap) finalize() []scored {
	out := make([]scored, len(h.items))
	copy(out, h.items)
	return sortFinal(out)
}

// newSelector picks the small-top-k buffer when a filter is absent and k is
// tiny, falling back to the bounded heap everywhere else.
func newSelector(k int, filtered bool) selector {
	const smallTopKLimit = 64
	if !filtered && k <= smallTopKLimit {
		return newSmallTopK(k)
	}
	return newBoundedHeap(k)
}

// mergeInto pushes every item of a finalized chunk selector into dst, the
// commutative merge step that combines parallel chunks.
func mergeInto(dst selector, chunk []scored) {
	for _, s := range chunk {
		dst.push(s.id, s.rank, s.score)
	}
}
