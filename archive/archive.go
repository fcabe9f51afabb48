// Package archive bundles one or more named type containers into a single
// serialised blob, and reopens such blobs. A blob holding a bare container
// is accepted transparently as a one-member archive.
package archive

import (
	"errors"
	"fmt"
	"iter"
	"sort"

	"github.com/skdltmxn/ctf-go/ctf"
	"github.com/skdltmxn/ctf-go/internal/stream"
)

// Magic identifies a multi-member archive. It differs from the container
// magic so OpenBytes can tell the two layouts apart from the first two
// bytes.
const Magic uint16 = 0xc7fa

const archiveVersion = 1

// DefaultMember is the member name used when a bare container is wrapped
// in an archive.
const DefaultMember = ".ctf"

const (
	archHeaderSize = 8  // magic, version, reserved, member count
	entrySize      = 12 // name offset, data offset, data length
)

var (
	ErrCorrupt  = errors.New("archive: corrupt archive")
	ErrNotFound = errors.New("archive: member not found")
	ErrExists   = errors.New("archive: member already exists")
)

// Archive is an ordered set of named containers. Closing the archive
// closes every member and then runs the close callback, which owners use
// to release whatever backing storage the member buffers borrow.
type Archive struct {
	names   []string
	members map[string]*ctf.Container
	closer  func() error
}

// New returns an empty archive.
func New() *Archive {
	return &Archive{members: make(map[string]*ctf.Container)}
}

// Add inserts a named member. Member names are unique.
func (a *Archive) Add(name string, c *ctf.Container) error {
	if _, ok := a.members[name]; ok {
		return fmt.Errorf("%w: %q", ErrExists, name)
	}
	a.names = append(a.names, name)
	a.members[name] = c
	return nil
}

// OpenBytes opens a serialised archive or a bare container. Container
// options are forwarded to every member.
func OpenBytes(data []byte, opts ...ctf.Option) (*Archive, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: short buffer", ErrCorrupt)
	}

	magic := uint16(data[0]) | uint16(data[1])<<8
	if magic != Magic {
		// A bare container: wrap it as the default member.
		c, err := ctf.Open(data, opts...)
		if err != nil {
			return nil, err
		}
		a := New()
		a.Add(DefaultMember, c)
		return a, nil
	}

	r := stream.NewReader(data)
	r.Skip(2)
	version, _ := r.ReadU8()
	if version != archiveVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}
	r.Skip(1)
	count, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}

	a := New()
	for i := uint32(0); i < count; i++ {
		nameOff, _ := r.ReadU32()
		dataOff, _ := r.ReadU32()
		dataLen, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated member table", ErrCorrupt)
		}

		name, err := stream.NewReader(data).CStringAt(int(nameOff))
		if err != nil {
			return nil, fmt.Errorf("%w: bad member name", ErrCorrupt)
		}
		if int(dataOff)+int(dataLen) > len(data) {
			return nil, fmt.Errorf("%w: member %q exceeds buffer", ErrCorrupt, name)
		}

		c, err := ctf.Open(data[dataOff:dataOff+dataLen], opts...)
		if err != nil {
			return nil, fmt.Errorf("archive: member %q: %w", name, err)
		}
		if err := a.Add(name, c); err != nil {
			c.Close()
			return nil, err
		}
	}
	return a, nil
}

// Encode serialises the archive. A sole member named DefaultMember is
// written as a bare container so round-tripping a wrapped container yields
// the container bytes back.
func (a *Archive) Encode() ([]byte, error) {
	if len(a.names) == 1 && a.names[0] == DefaultMember {
		return a.members[DefaultMember].Bytes()
	}

	// Members are written sorted by name so equal archives encode
	// identically regardless of insertion order.
	names := append([]string(nil), a.names...)
	sort.Strings(names)

	bodies := make([][]byte, len(names))
	for i, name := range names {
		b, err := a.members[name].Bytes()
		if err != nil {
			return nil, fmt.Errorf("archive: member %q: %w", name, err)
		}
		bodies[i] = b
	}

	nameBase := archHeaderSize + entrySize*len(names)
	nameOffs := make([]uint32, len(names))
	nameBlob := stream.NewWriter()
	for i, name := range names {
		nameOffs[i] = uint32(nameBase + nameBlob.Len())
		nameBlob.WriteCString(name)
	}

	dataBase := nameBase + nameBlob.Len()

	w := stream.NewWriter()
	w.WriteU16(Magic)
	w.WriteU8(archiveVersion)
	w.WriteU8(0)
	w.WriteU32(uint32(len(names)))

	off := dataBase
	for i := range names {
		w.WriteU32(nameOffs[i])
		w.WriteU32(uint32(off))
		w.WriteU32(uint32(len(bodies[i])))
		off += len(bodies[i])
	}
	w.WriteBytes(nameBlob.Bytes())
	for _, b := range bodies {
		w.WriteBytes(b)
	}
	return w.Bytes(), nil
}

// Lookup returns the named member. The empty string selects the default
// member, or the sole member of a one-member archive.
func (a *Archive) Lookup(name string) (*ctf.Container, error) {
	if name == "" {
		if c, ok := a.members[DefaultMember]; ok {
			return c, nil
		}
		if len(a.names) == 1 {
			return a.members[a.names[0]], nil
		}
		return nil, fmt.Errorf("%w: no default member", ErrNotFound)
	}
	c, ok := a.members[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return c, nil
}

// Len returns the number of members.
func (a *Archive) Len() int {
	return len(a.names)
}

// Containers iterates the members in insertion order.
func (a *Archive) Containers() iter.Seq2[string, *ctf.Container] {
	return func(yield func(string, *ctf.Container) bool) {
		for _, name := range a.names {
			if !yield(name, a.members[name]) {
				return
			}
		}
	}
}

// SetCloser registers a callback run by Close after every member has been
// closed. Members may borrow slices of storage the callback releases, so
// the ordering is fixed: members first, callback last.
func (a *Archive) SetCloser(fn func() error) {
	a.closer = fn
}

// Close closes every member and then runs the close callback. All errors
// are reported; a member failure does not skip the callback.
func (a *Archive) Close() error {
	var errs []error
	for _, name := range a.names {
		if err := a.members[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("archive: member %q: %w", name, err))
		}
	}
	if a.closer != nil {
		if err := a.closer(); err != nil {
			errs = append(errs, err)
		}
		a.closer = nil
	}
	return errors.Join(errs...)
}
