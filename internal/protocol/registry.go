package protocol

import (
	"fmt"
	"sort"
)

// Registry maps wire keys and names to descriptors. It is built once and is
// read-only afterwards, so lookups need no locking.
type Registry struct {
	byKey  map[Key]*Descriptor
	byName map[string]*Descriptor
	list   []*Descriptor
}

// NewRegistry validates descs and indexes private copies of them, so later
// changes to the arguments never reach the registry. Duplicate keys or
// names are rejected.
func NewRegistry(descs ...*Descriptor) (*Registry, error) {
	r := &Registry{
		byKey:  make(map[Key]*Descriptor, len(descs)),
		byName: make(map[string]*Descriptor, len(descs)),
		list:   make([]*Descriptor, 0, len(descs)),
	}
	for _, d := range descs {
		if d == nil {
			return nil, fmt.Errorf("%w: nil descriptor", ErrInvalidDescriptor)
		}
		d = d.clone()
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if prev, ok := r.byKey[d.Key()]; ok {
			return nil, fmt.Errorf("%w: %s and %s share %s", ErrDuplicateMessage, prev.Name, d.Name, d.Key())
		}
		if _, ok := r.byName[d.Name]; ok {
			return nil, fmt.Errorf("%w: name %s", ErrDuplicateMessage, d.Name)
		}
		r.byKey[d.Key()] = d
		r.byName[d.Name] = d
		r.list = append(r.list, d)
	}
	sort.Slice(r.list, func(i, j int) bool {
		if r.list[i].Frequency != r.list[j].Frequency {
			return r.list[i].Frequency < r.list[j].Frequency
		}
		return r.list[i].ID < r.list[j].ID
	})
	return r, nil
}

// Lookup resolves a wire key.
func (r *Registry) Lookup(f Frequency, id uint32) (*Descriptor, bool) {
	d, ok := r.byKey[Key{Frequency: f, ID: id}]
	return d, ok
}

// ByName resolves a message name.
func (r *Registry) ByName(name string) (*Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// List returns descriptors ordered by frequency then id.
func (r *Registry) List() []*Descriptor {
	out := make([]*Descriptor, len(r.list))
	copy(out, r.list)
	return out
}

// Len returns the number of registered message types.
func (r *Registry) Len() int {
	return len(r.list)
}

// New returns a zero-valued message of the named type.
func (r *Registry) New(name string) (*Message, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, name)
	}
	return d.New(), nil
}
