package vector

import "math"

// laneWidth is the SIMD lane width the kernels assume; platforms without an
// 8-wide float32 vector unit fall back to the scalar tail loop as the whole
// body. Summation order is lane-then-scalar, so results are deterministic
// per input but need not match a purely scalar reference bit-for-bit.
const laneWidth = 8

// Options controls validation behaviour for kernel and prepared-query
// construction.
type Options struct {
	// StrictFinite rejects NaN/+-Inf components when true.
	StrictFinite bool
	// ZeroNormEpsilon is the squared-norm threshold at or below which
	// cosine similarity is treated as undefined.
	ZeroNormEpsilon float32
}

// DefaultOptions returns strict, production-safe defaults.
func DefaultOptions() Options {
	return Strict()
}

// Strict returns options that reject non-finite components.
func Strict() Options {
	return Options{StrictFinite: true, ZeroNormEpsilon: epsilon32}
}

// Permissive returns options that allow non-finite components.
func Permissive() Options {
	return Options{StrictFinite: false, ZeroNormEpsilon: epsilon32}
}

// epsilon32 mirrors f32::EPSILON: the smallest float32 e such that 1.0+e != 1.0.
const epsilon32 float32 = 1.1920929e-7

func sqrt32(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}

func isFinite32(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func validate(left, right []float32, opts Options) error {
	if len(left) == 0 || len(right) == 0 {
		return ErrEmptyVector
	}
	if len(left) != len(right) {
		return &DimensionMismatchError{Left: len(left), Right: len(right)}
	}

	if opts.StrictFinite {
		for i, v := range left {
			if !isFinite32(v) {
				return &NonFiniteError{Side: SideLeft, Index: i, Value: v}
			}
		}
		for i, v := range right {
			if !isFinite32(v) {
				return &NonFiniteError{Side: SideRight, Index: i, Value: v}
			}
		}
	}

	return nil
}

// Dot computes the dot product of left and right using strict validation.
func Dot(left, right []float32) (float32, error) {
	return DotWithOptions(left, right, Strict())
}

// DotWithOptions computes the dot product with custom validation options.
func DotWithOptions(left, right []float32, opts Options) (float32, error) {
	if err := validate(left, right, opts); err != nil {
		return 0, err
	}
	return simdDot(left, right), nil
}

// L2Distance computes the Euclidean distance using strict validation.
func L2Distance(left, right []float32) (float32, error) {
	return L2DistanceWithOptions(left, right, Strict())
}

// L2DistanceWithOptions computes the Euclidean distance with custom
// validation options. L2 distance is the square root of L2Squared; callers
// on the hot path should prefer L2Squared for ranking and take the square
// root only on the values actually returned to a caller.
func L2DistanceWithOptions(left, right []float32, opts Options) (float32, error) {
	squared, err := L2SquaredWithOptions(left, right, opts)
	if err != nil {
		return 0, err
	}
	return float32(math.Sqrt(float64(squared))), nil
}

// L2Squared computes the squared Euclidean distance using strict validation.
func L2Squared(left, right []float32) (float32, error) {
	return L2SquaredWithOptions(left, right, Strict())
}

// L2SquaredWithOptions computes the squared Euclidean distance with custom
// validation options.
func L2SquaredWithOptions(left, right []float32, opts Options) (float32, error) {
	if err := validate(left, right, opts); err != nil {
		return 0, err
	}
	return simdL2Squared(left, right), nil
}

// Cosine computes cosine similarity using strict validation.
func Cosine(left, right []float32) (float32, error) {
	return CosineWithOptions(left, right, Strict())
}

// CosineWithOptions computes cosine similarity with custom validation
// options in a single pass that accumulates the dot product and both
// squared norms together.
func CosineWithOptions(left, right []float32, opts Options) (float32, error) {
	if err := validate(left, right, opts); err != nil {
		return 0, err
	}

	dot, leftSq, rightSq := simdDotAndNorms(left, right)

	epsilon := opts.ZeroNormEpsilon
	if epsilon < 0 {
		epsilon = 0
	}
	if leftSq <= epsilon || rightSq <= epsilon {
		return 0, &ZeroNormError{Epsilon: epsilon}
	}

	return dot / float32(math.Sqrt(float64(leftSq))*math.Sqrt(float64(rightSq))), nil
}

// simdDot sums left[i]*right[i] with an 8-wide lane accumulator and a
// scalar tail for the remainder.
func simdDot(left, right []float32) float32 {
	var lanes [laneWidth]float32
	n := len(left) - len(left)%laneWidth

	for i := 0; i < n; i += laneWidth {
		for lane := 0; lane < laneWidth; lane++ {
			lanes[lane] += left[i+lane] * right[i+lane]
		}
	}

	var sum float32
	for _, v := range lanes {
		sum += v
	}
	for i := n; i < len(left); i++ {
		sum += left[i] * right[i]
	}
	return sum
}

func simdL2Squared(left, right []float32) float32 {
	var lanes [laneWidth]float32
	n := len(left) - len(left)%laneWidth

	for i := 0; i < n; i += laneWidth {
		for lane := 0; lane < laneWidth; lane++ {
			delta := left[i+lane] - right[i+lane]
			lanes[lane] += delta * delta
		}
	}

	var sum float32
	for _, v := range lanes {
		sum += v
	}
	for i := n; i < len(left); i++ {
		delta := left[i] - right[i]
		sum += delta * delta
	}
	return sum
}

func simdDotAndNorms(left, right []float32) (dot, leftSq, rightSq float32) {
	var dotLanes, leftLanes, rightLanes [laneWidth]float32
	n := len(left) - len(left)%laneWidth

	for i := 0; i < n; i += laneWidth {
		for lane := 0; lane < laneWidth; lane++ {
			l, r := left[i+lane], right[i+lane]
			dotLanes[lane] += l * r
			leftLanes[lane] += l * l
			rightLanes[lane] += r * r
		}
	}

	for _, v := range dotLanes {
		dot += v
	}
	for _, v := range leftLanes {
		leftSq += v
	}
	for _, v := range rightLanes {
		rightSq += v
	}
	for i := n; i < len(left); i++ {
		l, r := left[i], right[i]
		dot += l * r
		leftSq += l * l
		rightSq += r * r
	}
	return dot, leftSq, rightSq
}
