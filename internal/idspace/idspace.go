// Package idspace manages the type identifier space shared between a
// parent container and its children.
//
// The space is split in half at a fixed boundary: IDs below it belong to a
// parent (or to a standalone container), IDs at or above it belong to a
// child whose types extend a parent's. Because the boundary is a power of
// two, masking the boundary bit off a global ID and subtracting the child
// offset are the same operation, so local indices can be recovered from
// global IDs with a single mask.
package idspace

import "errors"

// boundary is the first child-half type ID.
const boundary = uint32(1) << 31

// ErrExhausted is returned when a container has no assignable IDs left.
var ErrExhausted = errors.New("idspace: type identifier space exhausted")

// IsParent reports whether id lives in the parent half of the space.
// ID 0 is never valid.
func IsParent(id uint32) bool {
	return id != 0 && id < boundary
}

// IsChild reports whether id lives in the child half of the space.
func IsChild(id uint32) bool {
	return id >= boundary
}

// Index returns the container-local index of a global ID.
func Index(id uint32) uint32 {
	return id &^ boundary
}

// ID returns the global ID for a container-local index.
func ID(index uint32, child bool) uint32 {
	if child {
		return index | boundary
	}
	return index
}

// Space tracks ID assignment for one container. Indices are 1-based;
// index 0 is reserved as the invalid sentinel.
type Space struct {
	child     bool
	maxIndex  uint32 // largest encodable index for the container version
	typeMax   uint32 // highest committed index
	nextIndex uint32 // next assignable index
}

// New returns a Space for a container whose committed buffer holds typeMax
// types, with maxIndex the version limit on indices.
func New(child bool, typeMax, maxIndex uint32) *Space {
	return &Space{
		child:     child,
		maxIndex:  maxIndex,
		typeMax:   typeMax,
		nextIndex: typeMax + 1,
	}
}

// Child reports whether this container's own types live in the child half.
func (s *Space) Child() bool { return s.child }

// SetChild moves the container's own IDs into the child half. Only legal
// while no types have been defined.
func (s *Space) SetChild() { s.child = true }

// TypeMax returns the highest committed index.
func (s *Space) TypeMax() uint32 { return s.typeMax }

// LastIssued returns the most recently assigned index, or typeMax if no
// dynamic types exist.
func (s *Space) LastIssued() uint32 { return s.nextIndex - 1 }

// Local reports whether a global ID belongs to this container (as opposed
// to its parent).
func (s *Space) Local(id uint32) bool {
	if s.child {
		return IsChild(id)
	}
	return IsParent(id)
}

// Contains reports whether a global ID names a type this container has
// assigned, committed or not.
func (s *Space) Contains(id uint32) bool {
	return s.Local(id) && Index(id) < s.nextIndex && Index(id) != 0
}

// Next assigns the next dynamic ID. IDs are never reused: only Truncate
// can free the tail of the sequence.
func (s *Space) Next() (uint32, error) {
	if s.nextIndex > s.maxIndex {
		return 0, ErrExhausted
	}
	id := ID(s.nextIndex, s.child)
	s.nextIndex++
	return id, nil
}

// Truncate invalidates every index above last. Used by rollback; indices
// are not renumbered.
func (s *Space) Truncate(last uint32) {
	if last+1 < s.nextIndex {
		s.nextIndex = last + 1
	}
}
