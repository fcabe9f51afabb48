// Package ctf implements an in-memory container for Compact Type Format
// data: C-like type information paired with a variable-to-type map and a
// string table. Containers are loaded from a serialised buffer or built
// incrementally, and support name and ID based queries across a
// parent/child container chain.
package ctf

import "errors"

// Sentinel errors for common conditions.
var (
	// ErrCorrupt indicates the buffer is not a valid container.
	ErrCorrupt = errors.New("ctf: corrupt or unsupported container")

	// ErrNotFound indicates a name lookup found no type or variable.
	ErrNotFound = errors.New("ctf: type or variable not found")

	// ErrBadID indicates a type identifier outside the valid space.
	ErrBadID = errors.New("ctf: type identifier out of range")

	// ErrNoParent indicates a parent-range ID was used on a container
	// with no parent attached.
	ErrNoParent = errors.New("ctf: no parent container")

	// ErrKindMismatch indicates a query for data the type's kind does not
	// carry, such as members of a non-struct type.
	ErrKindMismatch = errors.New("ctf: unexpected type kind")

	// ErrReadOnly indicates a mutation on a container that was not opened
	// for incremental construction.
	ErrReadOnly = errors.New("ctf: container is read-only")

	// ErrFull indicates the type identifier space is exhausted.
	ErrFull = errors.New("ctf: type identifier space exhausted")

	// ErrBadSnapshot indicates a rollback target that was never issued.
	ErrBadSnapshot = errors.New("ctf: invalid rollback target")

	// ErrOverRollback indicates a rollback target already folded by a
	// commit. Rollback cannot undo a commit.
	ErrOverRollback = errors.New("ctf: rollback target predates last commit")

	// ErrDuplicate indicates a variable name that is already defined.
	ErrDuplicate = errors.New("ctf: duplicate definition")

	// ErrBadString indicates an unresolvable string table reference.
	ErrBadString = errors.New("ctf: invalid string reference")

	// ErrNotEmpty indicates an import into a container that has already
	// defined local types.
	ErrNotEmpty = errors.New("ctf: container already has local types")

	// ErrClosed indicates the container has been closed.
	ErrClosed = errors.New("ctf: container is closed")
)
