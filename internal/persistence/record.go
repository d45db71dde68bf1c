package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/vectral/vectral/internal/collection"
)

// RecordType tags the variant carried by a Record.
type RecordType string

const (
	RecordCreateCollection RecordType = "create_collection"
	RecordDeleteCollection RecordType = "delete_collection"
	RecordUpsertPoint      RecordType = "upsert_point"
	RecordDeletePoint      RecordType = "delete_point"
)

// Record is one self-describing WAL line. Only the fields relevant to Type
// are populated; the rest are left zero and omitted on encode.
type Record struct {
	Type RecordType `json:"type"`

	// CreateCollection / DeleteCollection
	Name         string `json:"name,omitempty"`
	Dimension    int    `json:"dimension,omitempty"`
	StrictFinite bool   `json:"strict_finite,omitempty"`

	// UpsertPoint / DeletePoint
	Collection string             `json:"collection,omitempty"`
	ID         uint64             `json:"id,omitempty"`
	Values     []float32          `json:"values,omitempty"`
	Payload    collection.Payload `json:"payload,omitempty"`
}

func NewCreateCollection(name string, dimension int, strictFinite bool) Record {
	return Record{Type: RecordCreateCollection, Name: name, Dimension: dimension, StrictFinite: strictFinite}
}

func NewDeleteCollection(name string) Record {
	return Record{Type: RecordDeleteCollection, Name: name}
}

func NewUpsertPoint(coll string, id uint64, values []float32, payload collection.Payload) Record {
	return Record{Type: RecordUpsertPoint, Collection: coll, ID: id, Values: values, Payload: payload}
}

func NewDeletePoint(coll string, id uint64) Record {
	return Record{Type: RecordDeletePoint, Collection: coll, ID: id}
}

// Validate enforces the required-field shape per variant. It does not
// check referential integrity (does the collection exist) — that is the
// replay applier's job, since the answer depends on what else has already
// been applied.
func (r Record) Validate() error {
	switch r.Type {
	case RecordCreateCollection:
		if r.Name == "" {
			return fmt.Errorf("%w: create_collection missing name", ErrInvalidRecord)
		}
		if r.Dimension <= 0 {
			return fmt.Errorf("%w: create_collection %q: dimension must be > 0", ErrInvalidRecord, r.Name)
		}
	case RecordDeleteCollection:
		if r.Name == "" {
			return fmt.Errorf("%w: delete_collection missing name", ErrInvalidRecord)
		}
	case RecordUpsertPoint:
		if r.Collection == "" {
			return fmt.Errorf("%w: upsert_point missing collection", ErrInvalidRecord)
		}
		if len(r.Values) == 0 {
			return fmt.Errorf("%w: upsert_point %s/%d missing values", ErrInvalidRecord, r.Collection, r.ID)
		}
	case RecordDeletePoint:
		if r.Collection == "" {
			return fmt.Errorf("%w: delete_point missing collection", ErrInvalidRecord)
		}
	default:
		return fmt.Errorf("%w: unknown record type %q", ErrInvalidRecord, r.Type)
	}
	return nil
}

// Encode returns r as a single newline-terminated JSON line; no record
// spans multiple lines.
func (r Record) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("persistence: encode record: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeRecord parses a single trimmed WAL line.
func DecodeRecord(line []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Record{}, fmt.Errorf("persistence: decode record: %w", err)
	}
	return r, nil
}
