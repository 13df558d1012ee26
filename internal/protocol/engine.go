package protocol

import "fmt"

// The descriptor drives three passes over a message body: a length pass that
// also validates every field, a write pass into a buffer of exactly that
// length, and a read pass that builds fresh block instances.

func (d *Descriptor) fieldErr(block string, index int, field string, err error) error {
	return &FieldError{Message: d.Name, Block: block, Index: index, Field: field, Err: err}
}

// bodyLength validates m against d and returns the encoded body width.
func (d *Descriptor) bodyLength(m *Message) (int, error) {
	if len(m.groups) != len(d.Blocks) {
		return 0, d.fieldErr("", 0, "", fmt.Errorf("%w: %d block groups for %d blocks", ErrCountMismatch, len(m.groups), len(d.Blocks)))
	}
	total := 0
	for i := range d.Blocks {
		spec := &d.Blocks[i]
		group := m.groups[i]
		switch spec.Repeat {
		case RepeatSingle:
			if len(group) != 1 {
				return 0, d.fieldErr(spec.Name, 0, "", fmt.Errorf("%w: single block has %d instances", ErrCountMismatch, len(group)))
			}
		case RepeatMultiple:
			if len(group) != spec.Count {
				return 0, d.fieldErr(spec.Name, 0, "", fmt.Errorf("%w: want %d instances, have %d", ErrCountMismatch, spec.Count, len(group)))
			}
		case RepeatVariable:
			if len(group) > MaxBlockCount {
				return 0, d.fieldErr(spec.Name, 0, "", fmt.Errorf("%w: %d instances > %d", ErrOverflow, len(group), MaxBlockCount))
			}
			total++
		}
		for j, b := range group {
			n, err := d.instanceLength(spec, j, b)
			if err != nil {
				return 0, err
			}
			total += n
		}
	}
	return total, nil
}

func (d *Descriptor) instanceLength(spec *BlockSpec, index int, b *Block) (int, error) {
	if b == nil || len(b.values) != len(spec.Fields) {
		return 0, d.fieldErr(spec.Name, index, "", fmt.Errorf("%w: block instance does not match its spec", ErrCountMismatch))
	}
	total := 0
	for k, f := range spec.Fields {
		v := b.values[k]
		if v.kind != f.Kind {
			return 0, d.fieldErr(spec.Name, index, f.Name, fmt.Errorf("%w: have %s, field is %s", ErrFieldKindMismatch, v.kind, f.Kind))
		}
		switch f.Kind {
		case KindFixed:
			if v.bytes == nil {
				return 0, d.fieldErr(spec.Name, index, f.Name, ErrNilField)
			}
			if len(v.bytes) != f.Size {
				return 0, d.fieldErr(spec.Name, index, f.Name, fmt.Errorf("%w: fixed field wants %d bytes, got %d", ErrCountMismatch, f.Size, len(v.bytes)))
			}
			total += f.Size
		case KindVariable1, KindVariable2:
			if v.bytes == nil {
				return 0, d.fieldErr(spec.Name, index, f.Name, ErrNilField)
			}
			if len(v.bytes) > f.MaxLength() {
				return 0, d.fieldErr(spec.Name, index, f.Name, fmt.Errorf("%w: %d > %d", ErrOverflow, len(v.bytes), f.MaxLength()))
			}
			total += f.Kind.PrefixWidth() + len(v.bytes)
		default:
			total += f.Kind.Width()
		}
	}
	return total, nil
}

// writeBody emits m. It must only run after bodyLength accepted m.
func (d *Descriptor) writeBody(w *Writer, m *Message) error {
	for i := range d.Blocks {
		spec := &d.Blocks[i]
		group := m.groups[i]
		if spec.Repeat == RepeatVariable {
			w.WriteU8(uint8(len(group)))
		}
		for j, b := range group {
			for k, f := range spec.Fields {
				if err := writeValue(w, f, b.values[k]); err != nil {
					return d.fieldErr(spec.Name, j, f.Name, err)
				}
			}
		}
	}
	return nil
}

func writeValue(w *Writer, f FieldSpec, v Value) error {
	switch f.Kind {
	case KindU8, KindS8:
		w.WriteU8(uint8(v.num))
	case KindU16, KindS16:
		w.WriteU16(uint16(v.num))
	case KindU32, KindS32, KindF32:
		w.WriteU32(uint32(v.num))
	case KindU64, KindS64, KindF64:
		w.WriteU64(v.num)
	case KindBool:
		if v.num != 0 {
			w.WriteU8(1)
		} else {
			w.WriteU8(0)
		}
	case KindUUID:
		w.WriteUUID(v.id)
	case KindVector3:
		w.WriteVector3(v.Vector3())
	case KindVector3d:
		w.WriteVector3d(v.Vector3d())
	case KindVector4:
		w.WriteVector4(v.Vector4())
	case KindQuaternion:
		w.WriteQuaternion(v.Quaternion())
	case KindIPAddr:
		w.WriteU8(uint8(v.num >> 24))
		w.WriteU8(uint8(v.num >> 16))
		w.WriteU8(uint8(v.num >> 8))
		w.WriteU8(uint8(v.num))
	case KindIPPort:
		w.WriteIPPort(uint16(v.num))
	case KindFixed:
		return w.WriteFixed(f.Size, v.bytes)
	case KindVariable1, KindVariable2:
		return w.WriteVariable(f.Kind.PrefixWidth(), v.bytes)
	default:
		return fmt.Errorf("%w: cannot write %s", ErrInvalidDescriptor, f.Kind)
	}
	return nil
}

// readBody decodes every block of d from r into fresh instances.
func (d *Descriptor) readBody(r *Reader) ([][]*Block, error) {
	groups := make([][]*Block, len(d.Blocks))
	for i := range d.Blocks {
		spec := &d.Blocks[i]
		var count int
		switch spec.Repeat {
		case RepeatSingle:
			count = 1
		case RepeatMultiple:
			count = spec.Count
		case RepeatVariable:
			n, err := r.ReadU8()
			if err != nil {
				return nil, d.fieldErr(spec.Name, 0, "", fmt.Errorf("block count: %w", err))
			}
			count = int(n)
		}
		if w, ok := spec.InstanceWidth(); ok && count*w > r.Remaining() {
			return nil, d.fieldErr(spec.Name, 0, "", fmt.Errorf("%w: %d x %d bytes, %d remain", ErrTruncatedInput, count, w, r.Remaining()))
		}
		group := make([]*Block, count)
		for j := range group {
			b := &Block{spec: spec, values: make([]Value, len(spec.Fields))}
			for k, f := range spec.Fields {
				v, err := readValue(r, f)
				if err != nil {
					return nil, d.fieldErr(spec.Name, j, f.Name, err)
				}
				b.values[k] = v
			}
			group[j] = b
		}
		groups[i] = group
	}
	return groups, nil
}

func readValue(r *Reader, f FieldSpec) (Value, error) {
	switch f.Kind {
	case KindU8:
		v, err := r.ReadU8()
		return U8(v), err
	case KindU16:
		v, err := r.ReadU16()
		return U16(v), err
	case KindU32:
		v, err := r.ReadU32()
		return U32(v), err
	case KindU64:
		v, err := r.ReadU64()
		return U64(v), err
	case KindS8:
		v, err := r.ReadU8()
		return S8(int8(v)), err
	case KindS16:
		v, err := r.ReadU16()
		return S16(int16(v)), err
	case KindS32:
		v, err := r.ReadU32()
		return S32(int32(v)), err
	case KindS64:
		v, err := r.ReadU64()
		return S64(int64(v)), err
	case KindF32:
		v, err := r.ReadF32()
		return F32(v), err
	case KindF64:
		v, err := r.ReadF64()
		return F64(v), err
	case KindBool:
		v, err := r.ReadU8()
		return Bool(v != 0), err
	case KindUUID:
		v, err := r.ReadUUID()
		return UUIDValue(v), err
	case KindVector3:
		v, err := r.ReadVector3()
		return Vec3(v), err
	case KindVector3d:
		v, err := r.ReadVector3d()
		return Vec3d(v), err
	case KindVector4:
		v, err := r.ReadVector4()
		return Vec4(v), err
	case KindQuaternion:
		v, err := r.ReadQuaternion()
		return Quat(v), err
	case KindIPAddr:
		v, err := r.ReadIPAddr()
		if err != nil {
			return Value{}, err
		}
		return IPAddr(v), nil
	case KindIPPort:
		v, err := r.ReadIPPort()
		return IPPort(v), err
	case KindFixed:
		b, err := r.ReadFixed(f.Size)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindFixed, bytes: b}, nil
	case KindVariable1, KindVariable2:
		b, err := r.ReadVariable(f.Kind.PrefixWidth())
		if err != nil {
			return Value{}, err
		}
		return Value{kind: f.Kind, bytes: b}, nil
	default:
		return Value{}, fmt.Errorf("%w: cannot read %s", ErrInvalidDescriptor, f.Kind)
	}
}
