package collection

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// PointID identifies a point within its collection.
type PointID = uint64

// minCompactFreeSlots is the 256 floor from the amortised compaction
// policy: free.len() >= max(256, slot_count/2) triggers a rebuild.
const minCompactFreeSlots = 256

const maxNameLength = 128

// Config is a collection's immutable creation-time configuration.
type Config struct {
	Dimension    int
	StrictFinite bool
}

// NewConfig validates and returns a Config.
func NewConfig(dimension int, strictFinite bool) (Config, error) {
	if dimension <= 0 {
		return Config{}, fmt.Errorf("%w: dimension must be > 0, got %d", ErrInvalidConfig, dimension)
	}
	return Config{Dimension: dimension, StrictFinite: strictFinite}, nil
}

// PointSnapshot is a copied-out view of one point, used by snapshot writers
// and IVF index builds that must not hold the collection lock while they
// work.
type PointSnapshot struct {
	ID      PointID
	Values  []float32
	Payload Payload
}

// Collection owns one collection's slot arena: a parallel id/occupied array,
// a flat row-major values buffer, a payload column, a free-list of reclaimed
// slots, an id->slot map, and an ordered id set for cursor pagination.
//
// All mutating methods take the collection's lock themselves; callers that
// need a stable view across several low-level accessor calls (the scoring
// engine scanning every slot, for instance) should hold RLock explicitly
// around the *Unsafe accessors.
type Collection struct {
	mu sync.RWMutex

	name   string
	config Config

	pointSlots map[PointID]int
	orderedIDs []PointID

	slotIDs      []PointID
	slotOccupied []bool
	slotPayloads []Payload
	slotValues   []float32
	freeSlots    []int

	payloadPoints   int
	mutationVersion uint64
}

// New creates an empty collection. Fails on a blank or unsafe name, or an
// invalid config.
func New(name string, config Config) (*Collection, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be > 0", ErrInvalidConfig)
	}

	return &Collection{
		name:       name,
		config:     config,
		pointSlots: make(map[PointID]int),
	}, nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidName, name, maxNameLength)
	}
	if name == "." || name == ".." || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q is a path-like segment", ErrInvalidName, name)
	}
	for _, r := range name {
		if !isSafeNameRune(r) {
			return fmt.Errorf("%w: %q contains invalid character %q", ErrInvalidName, name, r)
		}
	}
	return nil
}

func isSafeNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == '.':
		return true
	default:
		return false
	}
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// Dimension returns the configured vector width. Immutable for the life of
// the collection, so safe to call without holding the lock.
func (c *Collection) Dimension() int { return c.config.Dimension }

// StrictFinite reports whether this collection rejects non-finite vector
// components.
func (c *Collection) StrictFinite() bool { return c.config.StrictFinite }

// Config returns the collection's config.
func (c *Collection) Config() Config { return c.config }

// Len returns the number of live points.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pointSlots)
}

// IsEmpty reports whether the collection has no live points.
func (c *Collection) IsEmpty() bool {
	return c.Len() == 0
}

// MutationVersion returns the monotonic, saturating mutation counter used
// by the IVF cache as a compatibility key.
func (c *Collection) MutationVersion() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mutationVersion
}

// HasPayloadPoints reports whether any live point carries a non-empty
// payload.
func (c *Collection) HasPayloadPoints() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.payloadPoints > 0
}

func (c *Collection) bumpMutationVersion() {
	if c.mutationVersion < math.MaxUint64 {
		c.mutationVersion++
	}
}

func (c *Collection) validateVector(values []float32) error {
	if len(values) != c.config.Dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, c.config.Dimension, len(values))
	}
	if c.config.StrictFinite {
		for i, v := range values {
			if !isFinite32(v) {
				return fmt.Errorf("%w: at index %d", ErrNonFiniteValue, i)
			}
		}
	}
	return nil
}

func isFinite32(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func validatePayload(p Payload) error {
	for k := range p {
		if strings.TrimSpace(k) == "" {
			return ErrInvalidPayloadKey
		}
	}
	return nil
}

// Upsert validates values and payload, then inserts or overwrites id.
// Returns true when a new id was inserted, false when an existing id was
// overwritten in place.
func (c *Collection) Upsert(id PointID, values []float32, payload Payload) (bool, error) {
	if err := c.validateVector(values); err != nil {
		return false, err
	}
	if err := validatePayload(payload); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upsertLocked(id, values, payload), nil
}

// UpsertUnchecked inserts or overwrites id without validating its
// preconditions, trusting that the caller (WAL replay) already validated
// the record when it was first written.
func (c *Collection) UpsertUnchecked(id PointID, values []float32, payload Payload) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upsertLocked(id, values, payload)
}

func (c *Collection) upsertLocked(id PointID, values []float32, payload Payload) bool {
	dim := c.config.Dimension
	hasPayload := len(payload) > 0

	if slot, ok := c.pointSlots[id]; ok {
		if len(c.slotPayloads[slot]) > 0 {
			c.payloadPoints--
		}
		if hasPayload {
			c.slotPayloads[slot] = payload
			c.payloadPoints++
		} else {
			c.slotPayloads[slot] = nil
		}
		start := slot * dim
		copy(c.slotValues[start:start+dim], values)
		c.bumpMutationVersion()
		return false
	}

	var stored Payload
	if hasPayload {
		stored = payload
	}

	var slot int
	if n := len(c.freeSlots); n > 0 {
		slot = c.freeSlots[n-1]
		c.freeSlots = c.freeSlots[:n-1]
		c.slotIDs[slot] = id
		c.slotOccupied[slot] = true
		c.slotPayloads[slot] = stored
		start := slot * dim
		copy(c.slotValues[start:start+dim], values)
	} else {
		slot = len(c.slotIDs)
		c.slotIDs = append(c.slotIDs, id)
		c.slotOccupied = append(c.slotOccupied, true)
		c.slotPayloads = append(c.slotPayloads, stored)
		c.slotValues = append(c.slotValues, values...)
	}

	c.pointSlots[id] = slot
	c.orderedIDs = insertSorted(c.orderedIDs, id)
	if hasPayload {
		c.payloadPoints++
	}
	c.bumpMutationVersion()
	return true
}

// Remove deletes id, releasing its slot to the free-list. Returns false if
// id was not live.
func (c *Collection) Remove(id PointID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.detachSlot(id)
	if !ok {
		return false
	}
	if len(c.slotPayloads[slot]) > 0 {
		c.payloadPoints--
	}
	c.slotPayloads[slot] = nil
	c.compactIfNeeded()
	c.bumpMutationVersion()
	return true
}

// RemoveRecord deletes id and returns its former values and payload.
func (c *Collection) RemoveRecord(id PointID) ([]float32, Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.detachSlot(id)
	if !ok {
		return nil, nil, false
	}

	dim := c.config.Dimension
	start := slot * dim
	values := append([]float32(nil), c.slotValues[start:start+dim]...)
	payload := c.slotPayloads[slot]
	c.slotPayloads[slot] = nil
	if len(payload) > 0 {
		c.payloadPoints--
	}
	c.compactIfNeeded()
	c.bumpMutationVersion()
	return values, payload, true
}

func (c *Collection) detachSlot(id PointID) (int, bool) {
	slot, ok := c.pointSlots[id]
	if !ok {
		return 0, false
	}
	delete(c.pointSlots, id)
	c.orderedIDs = removeSorted(c.orderedIDs, id)
	c.slotOccupied[slot] = false
	c.freeSlots = append(c.freeSlots, slot)
	return slot, true
}

func (c *Collection) compactIfNeeded() {
	free := len(c.freeSlots)
	total := len(c.slotIDs)
	threshold := minCompactFreeSlots
	if half := total / 2; half > threshold {
		threshold = half
	}
	if free < threshold {
		return
	}
	c.compact()
}

// compact rebuilds the arena as a dense layout, preserving live-id identity
// but reassigning slot indices. The ordered id set is untouched.
func (c *Collection) compact() {
	dim := c.config.Dimension
	live := len(c.pointSlots)

	newPointSlots := make(map[PointID]int, live)
	newSlotIDs := make([]PointID, 0, live)
	newSlotOccupied := make([]bool, 0, live)
	newSlotPayloads := make([]Payload, 0, live)
	newSlotValues := make([]float32, 0, live*dim)

	for slot := range c.slotIDs {
		if !c.slotOccupied[slot] {
			continue
		}
		id := c.slotIDs[slot]
		newSlot := len(newSlotIDs)
		start := slot * dim

		newPointSlots[id] = newSlot
		newSlotIDs = append(newSlotIDs, id)
		newSlotOccupied = append(newSlotOccupied, true)
		newSlotPayloads = append(newSlotPayloads, c.slotPayloads[slot])
		newSlotValues = append(newSlotValues, c.slotValues[start:start+dim]...)
	}

	c.pointSlots = newPointSlots
	c.slotIDs = newSlotIDs
	c.slotOccupied = newSlotOccupied
	c.slotPayloads = newSlotPayloads
	c.slotValues = newSlotValues
	c.freeSlots = c.freeSlots[:0]
}

// GetVector returns a copy of id's vector.
func (c *Collection) GetVector(id PointID) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	slot, ok := c.pointSlots[id]
	if !ok {
		return nil, false
	}
	dim := c.config.Dimension
	start := slot * dim
	out := make([]float32, dim)
	copy(out, c.slotValues[start:start+dim])
	return out, true
}

// GetPayload returns id's payload (nil if absent or empty).
func (c *Collection) GetPayload(id PointID) (Payload, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	slot, ok := c.pointSlots[id]
	if !ok {
		return nil, false
	}
	return c.slotPayloads[slot], true
}

// GetRecord returns id's vector and payload together.
func (c *Collection) GetRecord(id PointID) ([]float32, Payload, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	slot, ok := c.pointSlots[id]
	if !ok {
		return nil, nil, false
	}
	dim := c.config.Dimension
	start := slot * dim
	values := make([]float32, dim)
	copy(values, c.slotValues[start:start+dim])
	return values, c.slotPayloads[slot], true
}

// IDsPage returns up to limit ids starting at offset, in ascending order.
func (c *Collection) IDsPage(offset, limit int) []PointID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if offset >= len(c.orderedIDs) || limit <= 0 {
		return []PointID{}
	}
	end := offset + limit
	if end > len(c.orderedIDs) {
		end = len(c.orderedIDs)
	}
	out := make([]PointID, end-offset)
	copy(out, c.orderedIDs[offset:end])
	return out
}

// IDsPageAfter returns the next limit ids strictly greater than cursor (or
// from the start when cursor is nil), plus the next cursor iff more ids
// remain. A limit of zero returns an empty page with no next cursor.
func (c *Collection) IDsPageAfter(cursor *PointID, limit int) ([]PointID, *PointID) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if limit <= 0 {
		return []PointID{}, nil
	}

	start := 0
	if cursor != nil {
		start = sort.Search(len(c.orderedIDs), func(i int) bool { return c.orderedIDs[i] > *cursor })
	}

	remaining := len(c.orderedIDs) - start
	if remaining <= 0 {
		return []PointID{}, nil
	}

	take := limit
	hasMore := remaining > limit
	if !hasMore {
		take = remaining
	}

	out := make([]PointID, take)
	copy(out, c.orderedIDs[start:start+take])

	if !hasMore {
		return out, nil
	}
	next := out[len(out)-1]
	return out, &next
}

// Points returns a copy of every live point in ascending id order, for
// snapshot writers and IVF index builds.
func (c *Collection) Points() []PointSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dim := c.config.Dimension
	out := make([]PointSnapshot, 0, len(c.orderedIDs))
	for _, id := range c.orderedIDs {
		slot := c.pointSlots[id]
		start := slot * dim
		values := append([]float32(nil), c.slotValues[start:start+dim]...)
		out = append(out, PointSnapshot{ID: id, Values: values, Payload: c.slotPayloads[slot]})
	}
	return out
}

// RLock acquires the collection's read lock. Pair with RUnlock around a
// sequence of *Unsafe accessor calls that must observe one consistent
// snapshot of the arena, such as a full scoring scan.
func (c *Collection) RLock() { c.mu.RLock() }

// RUnlock releases the collection's read lock.
func (c *Collection) RUnlock() { c.mu.RUnlock() }

// SlotCountUnsafe returns the number of slots in the arena, including freed
// ones. Callers must hold RLock (or be the single writer).
func (c *Collection) SlotCountUnsafe() int { return len(c.slotIDs) }

// SlotsDenseUnsafe reports whether the free-list is empty, the fast-path
// enabler for slot-indexed iteration. Callers must hold RLock.
func (c *Collection) SlotsDenseUnsafe() bool { return len(c.freeSlots) == 0 }

// SlotAtUnsafe returns slot's id, values, and payload if occupied. Callers
// must hold RLock; the returned values slice aliases the arena and must not
// be retained past the lock.
func (c *Collection) SlotAtUnsafe(slot int) (id PointID, values []float32, payload Payload, occupied bool) {
	if slot < 0 || slot >= len(c.slotIDs) || !c.slotOccupied[slot] {
		return 0, nil, nil, false
	}
	dim := c.config.Dimension
	start := slot * dim
	return c.slotIDs[slot], c.slotValues[start : start+dim], c.slotPayloads[slot], true
}

// SlotForIDUnsafe returns id's current slot. Callers must hold RLock.
func (c *Collection) SlotForIDUnsafe(id PointID) (int, bool) {
	slot, ok := c.pointSlots[id]
	return slot, ok
}

func insertSorted(ids []PointID, id PointID) []PointID {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if i < len(ids) && ids[i] == id {
		return ids
	}
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

func removeSorted(ids []PointID, id PointID) []PointID {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if i < len(ids) && ids[i] == id {
		ids = append(ids[:i], ids[i+1:]...)
	}
	return ids
}
