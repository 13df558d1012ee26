package protocol

import "fmt"

// Message is one typed datagram: a header plus one group of block instances
// per BlockSpec of its descriptor. A message is owned by whoever built or
// decoded it and is not safe for concurrent mutation.
type Message struct {
	Header Header
	desc   *Descriptor
	groups [][]*Block
}

func (m *Message) Descriptor() *Descriptor {
	return m.desc
}

func (m *Message) Name() string {
	if m.desc == nil {
		return ""
	}
	return m.desc.Name
}

func (m *Message) group(name string) (int, error) {
	if m.desc == nil {
		return -1, fmt.Errorf("%w: message has no descriptor", ErrInvalidDescriptor)
	}
	i := m.desc.BlockIndex(name)
	if i < 0 {
		return -1, fmt.Errorf("%w: %s.%s", ErrUnknownBlock, m.desc.Name, name)
	}
	return i, nil
}

// Block returns the first instance of the named block, or nil.
func (m *Message) Block(name string) *Block {
	i, err := m.group(name)
	if err != nil || len(m.groups[i]) == 0 {
		return nil
	}
	return m.groups[i][0]
}

// Blocks returns the instances of the named block. The slice is a copy;
// use AddBlock and ResetBlocks to change the count.
func (m *Message) Blocks(name string) []*Block {
	i, err := m.group(name)
	if err != nil {
		return nil
	}
	out := make([]*Block, len(m.groups[i]))
	copy(out, m.groups[i])
	return out
}

// Count returns the number of instances of the named block.
func (m *Message) Count(name string) int {
	i, err := m.group(name)
	if err != nil {
		return 0
	}
	return len(m.groups[i])
}

// AddBlock appends a zero-valued instance to a count-prefixed block.
func (m *Message) AddBlock(name string) (*Block, error) {
	i, err := m.group(name)
	if err != nil {
		return nil, err
	}
	spec := &m.desc.Blocks[i]
	if spec.Repeat != RepeatVariable {
		return nil, fmt.Errorf("%w: %s.%s is %s", ErrCountMismatch, m.desc.Name, name, spec.Repeat)
	}
	if len(m.groups[i]) >= MaxBlockCount {
		return nil, fmt.Errorf("%w: %s.%s holds %d blocks", ErrOverflow, m.desc.Name, name, MaxBlockCount)
	}
	b := newBlock(spec)
	m.groups[i] = append(m.groups[i], b)
	return b, nil
}

// ResetBlocks empties a count-prefixed block.
func (m *Message) ResetBlocks(name string) error {
	i, err := m.group(name)
	if err != nil {
		return err
	}
	if m.desc.Blocks[i].Repeat != RepeatVariable {
		return fmt.Errorf("%w: %s.%s is %s", ErrCountMismatch, m.desc.Name, name, m.desc.Blocks[i].Repeat)
	}
	m.groups[i] = []*Block{}
	return nil
}

// Get returns one field of one block instance, or the zero Value.
func (m *Message) Get(block string, index int, field string) Value {
	i, err := m.group(block)
	if err != nil || index < 0 || index >= len(m.groups[i]) {
		return Value{}
	}
	return m.groups[i][index].Get(field)
}

// Set assigns one field of one block instance.
func (m *Message) Set(block string, index int, field string, v Value) error {
	i, err := m.group(block)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(m.groups[i]) {
		return fmt.Errorf("%w: %s.%s[%d] of %d", ErrCountMismatch, m.desc.Name, block, index, len(m.groups[i]))
	}
	return m.groups[i][index].Set(field, v)
}

// Scalars returns the values of a scalar array block in order.
func (m *Message) Scalars(block string) []Value {
	i, err := m.group(block)
	if err != nil || len(m.desc.Blocks[i].Fields) != 1 {
		return nil
	}
	out := make([]Value, len(m.groups[i]))
	for j, b := range m.groups[i] {
		out[j] = b.values[0]
	}
	return out
}

// AppendScalar adds one element to a scalar array block.
func (m *Message) AppendScalar(block string, v Value) error {
	i, err := m.group(block)
	if err != nil {
		return err
	}
	spec := &m.desc.Blocks[i]
	if spec.Shape() != ShapeScalarArray {
		return fmt.Errorf("%w: %s.%s is %s", ErrCountMismatch, m.desc.Name, block, spec.Shape())
	}
	b, err := m.AddBlock(block)
	if err != nil {
		return err
	}
	if err := b.Set(spec.Fields[0].Name, v); err != nil {
		m.groups[i] = m.groups[i][:len(m.groups[i])-1]
		return err
	}
	return nil
}
