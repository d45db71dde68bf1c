package search

import (
	"encoding/json"
	"fmt"

	"github.com/vectral/vectral/internal/collection"
)

// Filter is a metadata filter over a point's payload: must clauses gate
// admission unconditionally, should clauses gate admission by count.
type Filter struct {
	Must               []Clause
	Should             []Clause
	MinimumShouldMatch *int
}

// Clause is a single filter predicate evaluated against a payload.
type Clause interface {
	matches(p collection.Payload) bool
}

// MatchClause is an equality clause: numeric values coerce with a small
// absolute tolerance, strings and booleans compare exactly, and a missing
// field never matches.
type MatchClause struct {
	Field string
	Value collection.Value
}

func (c MatchClause) matches(p collection.Payload) bool {
	v, ok := p[c.Field]
	if !ok {
		return false
	}
	return v.Equal(c.Value)
}

// RangeClause is a numeric range clause; at least one bound should be set.
// A non-numeric field value (including a missing field) never satisfies it.
type RangeClause struct {
	Field string
	GT    *float64
	GTE   *float64
	LT    *float64
	LTE   *float64
}

func (c RangeClause) matches(p collection.Payload) bool {
	v, ok := p[c.Field]
	if !ok {
		return false
	}
	n, ok := v.Numeric()
	if !ok {
		return false
	}
	if c.GT != nil && !(n > *c.GT) {
		return false
	}
	if c.GTE != nil && !(n >= *c.GTE) {
		return false
	}
	if c.LT != nil && !(n < *c.LT) {
		return false
	}
	if c.LTE != nil && !(n <= *c.LTE) {
		return false
	}
	return true
}

// Validate reports ErrInvalidFilter for a range clause with no bound set.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	for _, c := range append(append([]Clause{}, f.Must...), f.Should...) {
		if rc, ok := c.(RangeClause); ok {
			if rc.GT == nil && rc.GTE == nil && rc.LT == nil && rc.LTE == nil {
				return ErrInvalidFilter
			}
		}
	}
	return nil
}

// minimumShouldMatch returns the effective threshold: the explicit value if
// set, else 1 when Should is non-empty, else 0.
func (f *Filter) minimumShouldMatch() int {
	if f.MinimumShouldMatch != nil {
		return *f.MinimumShouldMatch
	}
	if len(f.Should) > 0 {
		return 1
	}
	return 0
}

// clauseWire is the wire shape for a Clause: "match" clauses carry Value,
// "range" clauses carry any of GT/GTE/LT/LTE. Mirrors collection.Value's
// own tagged-union MarshalJSON/UnmarshalJSON convention.
type clauseWire struct {
	Type  string            `json:"type"`
	Field string            `json:"field"`
	Value *collection.Value `json:"value,omitempty"`
	GT    *float64          `json:"gt,omitempty"`
	GTE   *float64          `json:"gte,omitempty"`
	LT    *float64          `json:"lt,omitempty"`
	LTE   *float64          `json:"lte,omitempty"`
}

func clauseToWire(c Clause) (clauseWire, error) {
	switch v := c.(type) {
	case MatchClause:
		return clauseWire{Type: "match", Field: v.Field, Value: &v.Value}, nil
	case RangeClause:
		return clauseWire{Type: "range", Field: v.Field, GT: v.GT, GTE: v.GTE, LT: v.LT, LTE: v.LTE}, nil
	default:
		return clauseWire{}, fmt.Errorf("search: unrecognised clause type %T", c)
	}
}

func (w clauseWire) toClause() (Clause, error) {
	switch w.Type {
	case "match":
		if w.Value == nil {
			return nil, fmt.Errorf("search: match clause on field %q has no value", w.Field)
		}
		return MatchClause{Field: w.Field, Value: *w.Value}, nil
	case "range":
		return RangeClause{Field: w.Field, GT: w.GT, GTE: w.GTE, LT: w.LT, LTE: w.LTE}, nil
	default:
		return nil, fmt.Errorf("search: unrecognised clause type %q", w.Type)
	}
}

// filterWire is Filter's wire shape.
type filterWire struct {
	Must               []clauseWire `json:"must,omitempty"`
	Should             []clauseWire `json:"should,omitempty"`
	MinimumShouldMatch *int         `json:"minimum_should_match,omitempty"`
}

// MarshalJSON encodes f as {must, should, minimum_should_match}.
func (f Filter) MarshalJSON() ([]byte, error) {
	wire := filterWire{MinimumShouldMatch: f.MinimumShouldMatch}

	for _, c := range f.Must {
		cw, err := clauseToWire(c)
		if err != nil {
			return nil, err
		}
		wire.Must = append(wire.Must, cw)
	}

	for _, c := range f.Should {
		cw, err := clauseToWire(c)
		if err != nil {
			return nil, err
		}
		wire.Should = append(wire.Should, cw)
	}

	return json.Marshal(wire)
}

// UnmarshalJSON decodes f from {must, should, minimum_should_match}.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var wire filterWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("search: decoding filter: %w", err)
	}

	must := make([]Clause, 0, len(wire.Must))
	for _, cw := range wire.Must {
		c, err := cw.toClause()
		if err != nil {
			return err
		}
		must = append(must, c)
	}

	should := make([]Clause, 0, len(wire.Should))
	for _, cw := range wire.Should {
		c, err := cw.toClause()
		if err != nil {
			return err
		}
		should = append(should, c)
	}

	f.Must = must
	f.Should = should
	f.MinimumShouldMatch = wire.MinimumShouldMatch

	return nil
}

// Admits reports whether payload passes every must clause and at least
// minimumShouldMatch should clauses. A nil filter admits everything.
func (f *Filter) Admits(p collection.Payload) bool {
	if f == nil {
		return true
	}
	for _, c := range f.Must {
		if !c.matches(p) {
			return false
		}
	}

	needed := f.minimumShouldMatch()
	if needed == 0 {
		return true
	}

	matched := 0
	for _, c := range f.Should {
		if c.matches(p) {
			matched++
			if matched >= needed {
				return true
			}
		}
	}
	return false
}
