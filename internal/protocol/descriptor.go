package protocol

import "fmt"

// Key identifies a message type on the wire.
type Key struct {
	Frequency Frequency
	ID        uint32
}

func (k Key) String() string {
	if k.Frequency == FrequencyLow && k.ID > 0xFFFF {
		return fmt.Sprintf("Fixed 0x%08X", k.ID)
	}
	return fmt.Sprintf("%s %d", k.Frequency, k.ID)
}

// Descriptor is the static layout of one message type. Descriptors are
// built once, validated by NewRegistry and never mutated afterwards.
type Descriptor struct {
	Name       string
	Frequency  Frequency
	ID         uint32
	Trusted    bool
	ZeroCoded  bool
	Deprecated bool
	Blocks     []BlockSpec
}

func (d *Descriptor) Key() Key {
	return Key{Frequency: d.Frequency, ID: d.ID}
}

func (d *Descriptor) String() string {
	return d.Name + " " + d.Key().String()
}

// Validate checks names, id representability and block declarations.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: message without name", ErrInvalidDescriptor)
	}
	if err := checkID(d.Frequency, d.ID); err != nil {
		return fmt.Errorf("%s: %w", d.Name, err)
	}
	seen := make(map[string]struct{}, len(d.Blocks))
	for i := range d.Blocks {
		b := &d.Blocks[i]
		if err := b.validate(); err != nil {
			return fmt.Errorf("%s: %w", d.Name, err)
		}
		if _, dup := seen[b.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate block %s", ErrInvalidDescriptor, d.Name, b.Name)
		}
		seen[b.Name] = struct{}{}
	}
	return nil
}

// clone returns a deep copy that shares no slices with d.
func (d *Descriptor) clone() *Descriptor {
	c := *d
	c.Blocks = make([]BlockSpec, len(d.Blocks))
	for i, b := range d.Blocks {
		b.Fields = append([]FieldSpec(nil), b.Fields...)
		c.Blocks[i] = b
	}
	return &c
}

// BlockIndex returns the position of the named block, or -1.
func (d *Descriptor) BlockIndex(name string) int {
	for i := range d.Blocks {
		if d.Blocks[i].Name == name {
			return i
		}
	}
	return -1
}

// New returns a zero-valued message: Single and Multiple blocks are
// populated, Variable blocks are empty, byte fields are empty payloads.
// The header carries the descriptor's class, id and zero-coding flag.
func (d *Descriptor) New() *Message {
	m := &Message{
		Header: Header{Frequency: d.Frequency, ID: d.ID},
		desc:   d,
		groups: make([][]*Block, len(d.Blocks)),
	}
	if d.ZeroCoded {
		m.Header.Flags |= FlagZeroCoded
	}
	for i := range d.Blocks {
		spec := &d.Blocks[i]
		switch spec.Repeat {
		case RepeatSingle:
			m.groups[i] = []*Block{newBlock(spec)}
		case RepeatMultiple:
			group := make([]*Block, spec.Count)
			for j := range group {
				group[j] = newBlock(spec)
			}
			m.groups[i] = group
		default:
			m.groups[i] = []*Block{}
		}
	}
	return m
}
