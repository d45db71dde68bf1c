package collection

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ValueKind tags the concrete type carried by a Value.
type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
	KindFloat
	KindBool
)

// Value is a tagged payload value drawn from {string, int64, float64, bool}.
// The zero Value is the empty string; construct with the Value() helpers
// below.
type Value struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
	b    bool
}

func StringValue(s string) Value { return Value{kind: KindString, s: s} }
func IntValue(i int64) Value     { return Value{kind: KindInt, i: i} }
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }
func BoolValue(b bool) Value     { return Value{kind: KindBool, b: b} }

// Kind reports which variant v holds.
func (v Value) Kind() ValueKind { return v.kind }

// String returns v's string value and whether v is a string.
func (v Value) String() (string, bool) { return v.s, v.kind == KindString }

// Int returns v's integer value and whether v is an integer.
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt }

// Float returns v's float value and whether v is a float.
func (v Value) Float() (float64, bool) { return v.f, v.kind == KindFloat }

// Bool returns v's boolean value and whether v is a boolean.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Numeric returns v coerced to float64 for integer and float kinds only;
// strings and booleans never coerce (matching filter Match/Range semantics).
func (v Value) Numeric() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// Equal reports whether v and other represent the same logical value,
// comparing numeric kinds with a small absolute tolerance and string/bool
// kinds exactly. Values of different non-numeric kinds are never equal.
func (v Value) Equal(other Value) bool {
	const numericTolerance = 1e-9

	if vn, vok := v.Numeric(); vok {
		if on, ook := other.Numeric(); ook {
			diff := vn - on
			if diff < 0 {
				diff = -diff
			}
			return diff <= numericTolerance
		}
		return false
	}

	if v.kind != other.kind {
		return false
	}

	switch v.kind {
	case KindString:
		return v.s == other.s
	case KindBool:
		return v.b == other.b
	default:
		return false
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return nil, fmt.Errorf("collection: value has unrecognised kind %d", v.kind)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)

	switch {
	case len(trimmed) == 0:
		return fmt.Errorf("collection: empty payload value")
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("collection: decoding string payload value: %w", err)
		}
		*v = StringValue(s)
		return nil
	case string(trimmed) == "true" || string(trimmed) == "false":
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("collection: decoding bool payload value: %w", err)
		}
		*v = BoolValue(b)
		return nil
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var num json.Number
		if err := dec.Decode(&num); err != nil {
			return fmt.Errorf("collection: decoding numeric payload value: %w", err)
		}
		if i, err := num.Int64(); err == nil {
			*v = IntValue(i)
			return nil
		}
		f, err := num.Float64()
		if err != nil {
			return fmt.Errorf("collection: decoding numeric payload value: %w", err)
		}
		*v = FloatValue(f)
		return nil
	}
}

// Payload is an ordered mapping from non-blank keys to tagged values.
// encoding/json sorts map keys when marshaling, which gives the
// deterministic by-key ordering the wire format requires without any
// additional bookkeeping. An empty and an absent payload are equivalent on
// read.
type Payload map[string]Value
