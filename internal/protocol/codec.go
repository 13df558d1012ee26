package protocol

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Limits constrains decode memory use.
type Limits struct {
	MaxDatagramSize int
	MaxExpandedSize int
}

func DefaultLimits() Limits {
	return Limits{
		MaxDatagramSize: 128 * 1024,
		MaxExpandedSize: 128 * 1024,
	}
}

func (l Limits) withDefaults() Limits {
	def := DefaultLimits()
	if l.MaxDatagramSize <= 0 {
		l.MaxDatagramSize = def.MaxDatagramSize
	}
	if l.MaxExpandedSize <= 0 {
		l.MaxExpandedSize = def.MaxExpandedSize
	}
	return l
}

// Codec turns datagrams into messages and back using a registry. It holds
// no mutable state and is safe for concurrent use.
type Codec struct {
	registry *Registry
	limits   Limits
}

func NewCodec(registry *Registry, limits Limits) *Codec {
	return &Codec{registry: registry, limits: limits.withDefaults()}
}

func (c *Codec) Registry() *Registry {
	return c.registry
}

func (c *Codec) Limits() Limits {
	return c.limits
}

// Decode parses one datagram. It never retains raw and returns either a
// complete message or an error.
func (c *Codec) Decode(raw []byte) (*Message, error) {
	if len(raw) > c.limits.MaxDatagramSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrDatagramTooLarge, len(raw), c.limits.MaxDatagramSize)
	}
	r := NewReader(raw)
	flags, seq, err := readPrefix(r)
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	rest := raw[PrefixSize:]

	var acks []uint32
	if flags.Has(FlagAppendedAcks) {
		rest, acks, err = splitAcks(rest)
		if err != nil {
			return nil, err
		}
	}
	if flags.Has(FlagZeroCoded) {
		rest, err = ZeroDecode(rest, c.limits.MaxExpandedSize)
		if err != nil {
			return nil, err
		}
	}

	body := NewReader(rest)
	freq, id, err := readID(body)
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	desc, ok := c.registry.Lookup(freq, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, Key{Frequency: freq, ID: id})
	}
	groups, err := desc.readBody(body)
	if err != nil {
		return nil, err
	}
	if n := body.Remaining(); n > 0 {
		return nil, &FieldError{Message: desc.Name, Err: fmt.Errorf("%w: %d bytes", ErrTrailingBytes, n)}
	}
	log.Trace().
		Str("msg_type", desc.Name).
		Uint32("seq", seq).
		Int("bytes", len(raw)).
		Msg("protocol.Decode")
	return &Message{
		Header: Header{Flags: flags, Sequence: seq, Frequency: freq, ID: id, Acks: acks},
		desc:   desc,
		groups: groups,
	}, nil
}

// EncodedLength validates m and returns the width of its plain encoding:
// header, body and ack trailer, before zero-coding.
func (c *Codec) EncodedLength(m *Message) (int, error) {
	return encodedLength(m)
}

func encodedLength(m *Message) (int, error) {
	if m == nil || m.desc == nil {
		return 0, fmt.Errorf("%w: message has no descriptor", ErrInvalidDescriptor)
	}
	d := m.desc
	if err := checkID(d.Frequency, d.ID); err != nil {
		return 0, err
	}
	if len(m.Header.Acks) > MaxAppendedAcks {
		return 0, fmt.Errorf("%w: %d appended acks > %d", ErrOverflow, len(m.Header.Acks), MaxAppendedAcks)
	}
	body, err := d.bodyLength(m)
	if err != nil {
		return 0, err
	}
	head := PrefixSize + d.Frequency.markerWidth() + d.Frequency.IDWidth()
	return head + body + ackTrailerSize(m.Header.Acks), nil
}

// Encode serializes m. Class and id come from the descriptor; the
// appended-acks flag follows len(m.Header.Acks); the body is zero-coded when
// m.Header.Flags has FlagZeroCoded. m is not modified.
func (c *Codec) Encode(m *Message) ([]byte, error) {
	return Encode(m)
}

// Encode serializes m without a registry; see Codec.Encode.
func Encode(m *Message) ([]byte, error) {
	total, err := encodedLength(m)
	if err != nil {
		return nil, err
	}
	d := m.desc
	flags := m.Header.Flags &^ FlagAppendedAcks
	if len(m.Header.Acks) > 0 {
		flags |= FlagAppendedAcks
	}

	plain := total - ackTrailerSize(m.Header.Acks)
	w := NewWriter(plain)
	writePrefix(w, flags, m.Header.Sequence)
	writeID(w, d.Frequency, d.ID)
	if err := d.writeBody(w, m); err != nil {
		return nil, err
	}
	if w.Len() != plain {
		panic(fmt.Sprintf("protocol: %s length pass %d disagrees with write pass %d", d.Name, plain, w.Len()))
	}

	out := w.Bytes()
	if flags.Has(FlagZeroCoded) {
		coded := make([]byte, 0, PrefixSize+ZeroEncodedLength(out[PrefixSize:])+ackTrailerSize(m.Header.Acks))
		coded = append(coded, out[:PrefixSize]...)
		coded = append(coded, ZeroEncode(out[PrefixSize:])...)
		out = coded
	}
	if len(m.Header.Acks) > 0 {
		out = appendAcks(out, m.Header.Acks)
	}
	return out, nil
}
