package protocol

import "fmt"

// FieldSpec declares one field of a block.
type FieldSpec struct {
	Name string
	Kind Kind
	// Size is the byte width of a KindFixed field.
	Size int
}

// Width returns the static wire width of the field, or 0 for variable fields.
func (f FieldSpec) Width() int {
	if f.Kind == KindFixed {
		return f.Size
	}
	return f.Kind.Width()
}

// MaxLength returns the payload ceiling of a variable field.
func (f FieldSpec) MaxLength() int {
	return f.Kind.MaxLength()
}

func (f FieldSpec) String() string {
	switch f.Kind {
	case KindFixed:
		return fmt.Sprintf("%s Fixed %d", f.Name, f.Size)
	case KindVariable1:
		return fmt.Sprintf("%s Variable 1", f.Name)
	case KindVariable2:
		return fmt.Sprintf("%s Variable 2", f.Name)
	default:
		return fmt.Sprintf("%s %s", f.Name, f.Kind)
	}
}

// Repeat is how many instances of a block travel on the wire.
type Repeat uint8

const (
	// RepeatSingle is exactly one instance, no count.
	RepeatSingle Repeat = iota
	// RepeatMultiple is exactly BlockSpec.Count instances, no count.
	RepeatMultiple
	// RepeatVariable is a one byte count followed by that many instances.
	RepeatVariable
)

// MaxBlockCount is the ceiling of a count-prefixed block array.
const MaxBlockCount = 0xFF

func (r Repeat) String() string {
	switch r {
	case RepeatSingle:
		return "Single"
	case RepeatMultiple:
		return "Multiple"
	case RepeatVariable:
		return "Variable"
	default:
		return fmt.Sprintf("Repeat(%d)", uint8(r))
	}
}

// Shape classifies a block by how it is laid out on the wire.
type Shape uint8

const (
	ShapeFixed Shape = iota
	ShapeVariable
	ShapeFixedArray
	ShapeCountedArray
	ShapeScalarArray
)

func (s Shape) String() string {
	switch s {
	case ShapeFixed:
		return "fixed"
	case ShapeVariable:
		return "single-variable"
	case ShapeFixedArray:
		return "array-fixed-count"
	case ShapeCountedArray:
		return "array-count-prefixed"
	case ShapeScalarArray:
		return "scalar-array"
	default:
		return fmt.Sprintf("Shape(%d)", uint8(s))
	}
}

// BlockSpec declares one named field group of a message.
type BlockSpec struct {
	Name   string
	Repeat Repeat
	// Count is the instance count of a RepeatMultiple block.
	Count  int
	Fields []FieldSpec
}

// Shape derives the wire shape of the block.
func (b *BlockSpec) Shape() Shape {
	switch b.Repeat {
	case RepeatMultiple:
		return ShapeFixedArray
	case RepeatVariable:
		if len(b.Fields) == 1 && b.Fields[0].Width() > 0 {
			return ShapeScalarArray
		}
		return ShapeCountedArray
	default:
		if _, ok := b.InstanceWidth(); ok {
			return ShapeFixed
		}
		return ShapeVariable
	}
}

// InstanceWidth returns the width of one instance when every field is fixed.
func (b *BlockSpec) InstanceWidth() (int, bool) {
	total := 0
	for _, f := range b.Fields {
		w := f.Width()
		if w == 0 {
			return 0, false
		}
		total += w
	}
	return total, true
}

// FieldIndex returns the position of the named field, or -1.
func (b *BlockSpec) FieldIndex(name string) int {
	for i := range b.Fields {
		if b.Fields[i].Name == name {
			return i
		}
	}
	return -1
}

func (b *BlockSpec) validate() error {
	if b.Name == "" {
		return fmt.Errorf("%w: block without name", ErrInvalidDescriptor)
	}
	switch b.Repeat {
	case RepeatSingle, RepeatVariable:
	case RepeatMultiple:
		if b.Count < 1 || b.Count > MaxBlockCount {
			return fmt.Errorf("%w: block %s: multiple count %d out of range", ErrInvalidDescriptor, b.Name, b.Count)
		}
	default:
		return fmt.Errorf("%w: block %s: unknown repeat %d", ErrInvalidDescriptor, b.Name, b.Repeat)
	}
	seen := make(map[string]struct{}, len(b.Fields))
	for _, f := range b.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: block %s: field without name", ErrInvalidDescriptor, b.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: block %s: duplicate field %s", ErrInvalidDescriptor, b.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
		if !f.Kind.Valid() {
			return fmt.Errorf("%w: block %s: field %s has invalid kind", ErrInvalidDescriptor, b.Name, f.Name)
		}
		if f.Kind == KindFixed && f.Size <= 0 {
			return fmt.Errorf("%w: block %s: fixed field %s needs a positive size", ErrInvalidDescriptor, b.Name, f.Name)
		}
	}
	return nil
}

// Block is one instance of a BlockSpec holding a value per field.
type Block struct {
	spec   *BlockSpec
	values []Value
}

func newBlock(spec *BlockSpec) *Block {
	b := &Block{spec: spec, values: make([]Value, len(spec.Fields))}
	for i, f := range spec.Fields {
		b.values[i] = zeroValue(f)
	}
	return b
}

func zeroValue(f FieldSpec) Value {
	switch f.Kind {
	case KindFixed:
		return Value{kind: KindFixed, bytes: make([]byte, f.Size)}
	case KindVariable1, KindVariable2:
		return Value{kind: f.Kind, bytes: []byte{}}
	case KindQuaternion:
		return Quat(IdentityQuaternion)
	default:
		return Value{kind: f.Kind}
	}
}

// Spec returns the block's declaration.
func (b *Block) Spec() *BlockSpec {
	return b.spec
}

// Name returns the block name.
func (b *Block) Name() string {
	return b.spec.Name
}

// Get returns the named field, or the zero Value if the block has no such field.
func (b *Block) Get(field string) Value {
	v, _ := b.Lookup(field)
	return v
}

func (b *Block) Lookup(field string) (Value, bool) {
	i := b.spec.FieldIndex(field)
	if i < 0 {
		return Value{}, false
	}
	return b.values[i], true
}

// Set assigns the named field. The value kind must match the field, except
// that byte payloads take the kind of the field they are assigned to.
// Payload lengths are checked here and again at encode time.
func (b *Block) Set(field string, v Value) error {
	i := b.spec.FieldIndex(field)
	if i < 0 {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, b.spec.Name, field)
	}
	spec := b.spec.Fields[i]
	v, err := v.coerce(spec.Kind)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", b.spec.Name, field, err)
	}
	if err := checkPayload(spec, v); err != nil {
		return fmt.Errorf("%s.%s: %w", b.spec.Name, field, err)
	}
	b.values[i] = v
	return nil
}

// Values returns the field values in declaration order.
func (b *Block) Values() []Value {
	out := make([]Value, len(b.values))
	copy(out, b.values)
	return out
}

// checkPayload enforces byte payload lengths. nil payloads are left for the
// encoder to reject so that absent and empty stay distinguishable.
func checkPayload(spec FieldSpec, v Value) error {
	switch spec.Kind {
	case KindFixed:
		if v.bytes != nil && len(v.bytes) != spec.Size {
			return fmt.Errorf("%w: fixed field wants %d bytes, got %d", ErrCountMismatch, spec.Size, len(v.bytes))
		}
	case KindVariable1, KindVariable2:
		if len(v.bytes) > spec.MaxLength() {
			return fmt.Errorf("%w: %d > %d", ErrOverflow, len(v.bytes), spec.MaxLength())
		}
	}
	return nil
}
