// Package collection implements the slot-indexed columnar storage for a
// single collection's points: a flat vector arena, a free-list, an id-to-slot
// map, and an ordered id set for deterministic iteration and cursor
// pagination.
package collection

import "errors"

var (
	// ErrInvalidConfig reports a structurally invalid collection config.
	ErrInvalidConfig = errors.New("collection: invalid config")
	// ErrInvalidName reports a blank or unsafe collection name.
	ErrInvalidName = errors.New("collection: invalid name")
	// ErrInvalidDimension reports a vector whose length does not match the
	// collection's configured dimension.
	ErrInvalidDimension = errors.New("collection: vector dimension mismatch")
	// ErrNonFiniteValue reports a NaN/+-Inf component rejected by a strict
	// collection.
	ErrNonFiniteValue = errors.New("collection: vector contains non-finite value")
	// ErrInvalidPayloadKey reports a blank payload key.
	ErrInvalidPayloadKey = errors.New("collection: payload key must not be blank")
)
