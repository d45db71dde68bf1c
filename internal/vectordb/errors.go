// Package vectordb is the service facade wiring the collection registry,
// the IVF cache, the search engine, and durable persistence together into
// the in-memory API surface a transport layer (HTTP, CLI replayer) calls
// directly.
package vectordb

import (
	"errors"

	"github.com/vectral/vectral/internal/collection"
	"github.com/vectral/vectral/internal/persistence"
	"github.com/vectral/vectral/internal/search"
)

// Kind is the user-visible error taxonomy every operation's error maps to.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindNotFound
	KindConflict
	KindResourceExhausted
	KindUnauthorized
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindUnauthorized:
		return "unauthorized"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error wraps an underlying error with the Kind a caller should act on.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

var (
	// ErrCollectionExists reports a create_collection against a name that
	// is already in use, whatever that collection's config.
	ErrCollectionExists = errors.New("vectordb: collection already exists")
	// ErrCollectionNotFound reports an operation against an unknown
	// collection.
	ErrCollectionNotFound = errors.New("vectordb: collection not found")
	// ErrPointNotFound reports get_point against an unknown id.
	ErrPointNotFound = errors.New("vectordb: point not found")
	// ErrMaxPointsExceeded reports an upsert that would breach
	// max_points_per_collection.
	ErrMaxPointsExceeded = errors.New("vectordb: collection is at its point capacity")
	// ErrMemoryBudgetExceeded reports an upsert that would breach
	// memory_budget_bytes.
	ErrMemoryBudgetExceeded = errors.New("vectordb: memory budget exceeded")
	// ErrDimensionTooLarge reports a create_collection above max_dimension.
	ErrDimensionTooLarge = errors.New("vectordb: dimension exceeds max_dimension")
)

// classify maps an error from collection, search, or persistence into the
// Kind a caller should act on.
func classify(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrCollectionExists):
		return KindConflict
	case errors.Is(err, ErrCollectionNotFound), errors.Is(err, ErrPointNotFound):
		return KindNotFound
	case errors.Is(err, ErrMaxPointsExceeded), errors.Is(err, ErrMemoryBudgetExceeded):
		return KindResourceExhausted
	case errors.Is(err, ErrDimensionTooLarge),
		errors.Is(err, collection.ErrInvalidConfig),
		errors.Is(err, collection.ErrInvalidName),
		errors.Is(err, collection.ErrInvalidDimension),
		errors.Is(err, collection.ErrNonFiniteValue),
		errors.Is(err, collection.ErrInvalidPayloadKey),
		errors.Is(err, search.ErrInvalidK),
		errors.Is(err, search.ErrDimensionMismatch),
		errors.Is(err, search.ErrInvalidTargetRecall),
		errors.Is(err, search.ErrIVFUnavailable),
		errors.Is(err, search.ErrInvalidFilter),
		errors.Is(err, search.ErrEmptyCollection):
		return KindInvalidArgument
	case errors.Is(err, persistence.ErrUnavailable):
		return KindUnavailable
	default:
		return KindInternal
	}
}

// wrap classifies err and returns nil if err is nil.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	return newError(classify(err), err)
}
