package server

import (
	"errors"

	"github.com/danmuck/gridwire/internal/protocol"
)

type FieldView struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int    `json:"size,omitempty"`
}

type BlockView struct {
	Name   string      `json:"name"`
	Repeat string      `json:"repeat"`
	Count  int         `json:"count,omitempty"`
	Shape  string      `json:"shape"`
	Fields []FieldView `json:"fields"`
}

type DescriptorView struct {
	Name       string      `json:"name"`
	Frequency  string      `json:"frequency"`
	ID         uint32      `json:"id"`
	Key        string      `json:"key"`
	Trusted    bool        `json:"trusted"`
	ZeroCoded  bool        `json:"zero_coded"`
	Deprecated bool        `json:"deprecated"`
	Blocks     []BlockView `json:"blocks,omitempty"`
}

// DescribeDescriptor renders d; blocks are included when detail is set.
func DescribeDescriptor(d *protocol.Descriptor, detail bool) DescriptorView {
	v := DescriptorView{
		Name:       d.Name,
		Frequency:  d.Frequency.String(),
		ID:         d.ID,
		Key:        d.Key().String(),
		Trusted:    d.Trusted,
		ZeroCoded:  d.ZeroCoded,
		Deprecated: d.Deprecated,
	}
	if !detail {
		return v
	}
	v.Blocks = make([]BlockView, 0, len(d.Blocks))
	for i := range d.Blocks {
		b := &d.Blocks[i]
		bv := BlockView{
			Name:   b.Name,
			Repeat: b.Repeat.String(),
			Shape:  b.Shape().String(),
			Fields: make([]FieldView, 0, len(b.Fields)),
		}
		if b.Repeat == protocol.RepeatMultiple {
			bv.Count = b.Count
		}
		for _, f := range b.Fields {
			fv := FieldView{Name: f.Name, Type: f.Kind.String()}
			if f.Kind == protocol.KindFixed {
				fv.Size = f.Size
			}
			bv.Fields = append(bv.Fields, fv)
		}
		v.Blocks = append(v.Blocks, bv)
	}
	return v
}

type MessageView struct {
	Message  string                         `json:"message"`
	Key      string                         `json:"key"`
	Sequence uint32                         `json:"sequence"`
	Flags    string                         `json:"flags"`
	Acks     []uint32                       `json:"acks,omitempty"`
	Blocks   map[string][]map[string]string `json:"blocks"`
	Rendered string                         `json:"rendered"`
}

// DescribeMessage flattens m into block name -> instances -> field -> text.
func DescribeMessage(m *protocol.Message) MessageView {
	d := m.Descriptor()
	v := MessageView{
		Message:  d.Name,
		Key:      d.Key().String(),
		Sequence: m.Header.Sequence,
		Flags:    m.Header.Flags.String(),
		Acks:     m.Header.Acks,
		Blocks:   make(map[string][]map[string]string, len(d.Blocks)),
		Rendered: m.String(),
	}
	for i := range d.Blocks {
		spec := &d.Blocks[i]
		instances := m.Blocks(spec.Name)
		rows := make([]map[string]string, 0, len(instances))
		for _, b := range instances {
			row := make(map[string]string, len(spec.Fields))
			for _, f := range spec.Fields {
				row[f.Name] = b.Get(f.Name).String()
			}
			rows = append(rows, row)
		}
		v.Blocks[spec.Name] = rows
	}
	return v
}

type DecodeErrorView struct {
	Error   string `json:"error"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
	Block   string `json:"block,omitempty"`
	Index   int    `json:"index,omitempty"`
	Field   string `json:"field,omitempty"`
}

func DescribeDecodeError(err error) DecodeErrorView {
	v := DecodeErrorView{Error: err.Error(), Reason: protocol.Reason(err)}
	var fe *protocol.FieldError
	if errors.As(err, &fe) {
		v.Message = fe.Message
		v.Block = fe.Block
		v.Index = fe.Index
		v.Field = fe.Field
	}
	return v
}
