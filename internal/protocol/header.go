package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Frequency is the message class that fixes the width of the id field.
type Frequency uint8

const (
	FrequencyHigh Frequency = iota
	FrequencyMedium
	FrequencyLow
)

// FrequencyMarker prefixes Medium (once) and Low (twice) message ids.
const FrequencyMarker byte = 0xFF

// PrefixSize is the flags byte plus the sequence number.
const PrefixSize = 1 + 4

func (f Frequency) String() string {
	switch f {
	case FrequencyHigh:
		return "High"
	case FrequencyMedium:
		return "Medium"
	case FrequencyLow:
		return "Low"
	default:
		return fmt.Sprintf("Frequency(%d)", uint8(f))
	}
}

// ParseFrequency resolves a template frequency name. Fixed messages are
// carried in the Low class with their full 32 bit id.
func ParseFrequency(name string) (Frequency, bool) {
	switch name {
	case "High":
		return FrequencyHigh, true
	case "Medium":
		return FrequencyMedium, true
	case "Low", "Fixed":
		return FrequencyLow, true
	default:
		return 0, false
	}
}

func (f Frequency) markerWidth() int {
	switch f {
	case FrequencyMedium:
		return 1
	case FrequencyLow:
		return 2
	default:
		return 0
	}
}

// IDWidth returns the width of the id field, markers excluded.
func (f Frequency) IDWidth() int {
	switch f {
	case FrequencyHigh:
		return 1
	case FrequencyMedium:
		return 2
	case FrequencyLow:
		return 4
	default:
		return 0
	}
}

// checkID rejects ids whose first byte would be read back as a marker.
func checkID(f Frequency, id uint32) error {
	switch f {
	case FrequencyHigh:
		if id >= uint32(FrequencyMarker) {
			return fmt.Errorf("%w: High %d", ErrInvalidMessageID, id)
		}
	case FrequencyMedium:
		if id > 0xFFFF || byte(id) == FrequencyMarker {
			return fmt.Errorf("%w: Medium %d", ErrInvalidMessageID, id)
		}
	case FrequencyLow:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidMessageID, f)
	}
	return nil
}

// Flags is the per-datagram flag byte.
type Flags uint8

const (
	FlagReliable     Flags = 1 << 0
	FlagResent       Flags = 1 << 1
	FlagAppendedAcks Flags = 1 << 2
	FlagZeroCoded    Flags = 1 << 3
)

// Has returns true if the flags contain the specified flag.
func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f.Has(FlagReliable) {
		parts = append(parts, "reliable")
	}
	if f.Has(FlagResent) {
		parts = append(parts, "resent")
	}
	if f.Has(FlagAppendedAcks) {
		parts = append(parts, "acks")
	}
	if f.Has(FlagZeroCoded) {
		parts = append(parts, "zerocoded")
	}
	if rest := f &^ (FlagReliable | FlagResent | FlagAppendedAcks | FlagZeroCoded); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%02x", uint8(rest)))
	}
	return strings.Join(parts, "|")
}

// Header is the per-datagram framing around a message body.
//
// Wire format, little-endian:
//
//	[flags:1][sequence:4][marker:0|1|2][id:1|2|4][body ...][acks:4*N][N:1]
//
// High ids are one byte, Medium ids follow one 0xFF marker and take two
// bytes, Low ids follow two markers and take four bytes. The ack trailer is
// present only when FlagAppendedAcks is set.
type Header struct {
	Flags     Flags
	Sequence  uint32
	Frequency Frequency
	ID        uint32
	Acks      []uint32
}

// Size returns the encoded width of the prefix, markers and id.
func (h Header) Size() int {
	return PrefixSize + h.Frequency.markerWidth() + h.Frequency.IDWidth()
}

// EncodeHeader writes the prefix, markers and id of h. Acks are not written;
// they trail the body.
func EncodeHeader(h Header) ([]byte, error) {
	if err := checkID(h.Frequency, h.ID); err != nil {
		return nil, err
	}
	w := NewWriter(h.Size())
	writePrefix(w, h.Flags, h.Sequence)
	writeID(w, h.Frequency, h.ID)
	return w.Bytes(), nil
}

// DecodeHeader reads the prefix, markers and id from the front of b, which
// must already be zero-decoded. It returns the number of bytes consumed.
func DecodeHeader(b []byte) (Header, int, error) {
	r := NewReader(b)
	flags, seq, err := readPrefix(r)
	if err != nil {
		return Header{}, 0, err
	}
	f, id, err := readID(r)
	if err != nil {
		return Header{}, 0, err
	}
	return Header{Flags: flags, Sequence: seq, Frequency: f, ID: id}, r.Pos(), nil
}

func writePrefix(w *Writer, flags Flags, seq uint32) {
	w.WriteU8(uint8(flags))
	w.WriteU32(seq)
}

func readPrefix(r *Reader) (Flags, uint32, error) {
	flags, err := r.ReadU8()
	if err != nil {
		return 0, 0, err
	}
	seq, err := r.ReadU32()
	if err != nil {
		return 0, 0, err
	}
	return Flags(flags), seq, nil
}

func writeID(w *Writer, f Frequency, id uint32) {
	switch f {
	case FrequencyHigh:
		w.WriteU8(uint8(id))
	case FrequencyMedium:
		w.WriteU8(FrequencyMarker)
		w.WriteU16(uint16(id))
	default:
		w.WriteU8(FrequencyMarker)
		w.WriteU8(FrequencyMarker)
		w.WriteU32(id)
	}
}

// readID peeks marker bytes to pick the class, then reads an id of the
// matching width.
func readID(r *Reader) (Frequency, uint32, error) {
	first, err := r.ReadU8()
	if err != nil {
		return 0, 0, err
	}
	if first != FrequencyMarker {
		return FrequencyHigh, uint32(first), nil
	}
	second, err := r.ReadU8()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrMalformedFrequencyMarker, err)
	}
	if second != FrequencyMarker {
		hi, err := r.ReadU8()
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %w", ErrMalformedFrequencyMarker, err)
		}
		return FrequencyMedium, uint32(second) | uint32(hi)<<8, nil
	}
	id, err := r.ReadU32()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrMalformedFrequencyMarker, err)
	}
	return FrequencyLow, id, nil
}

// MaxAppendedAcks is the ceiling of the one byte ack count.
const MaxAppendedAcks = 0xFF

const ackSize = 4

// splitAcks cuts the ack trailer off the end of b.
func splitAcks(b []byte) ([]byte, []uint32, error) {
	if len(b) < 1 {
		return nil, nil, fmt.Errorf("%w: missing ack count", ErrTruncatedInput)
	}
	n := int(b[len(b)-1])
	trailer := n*ackSize + 1
	if len(b) < trailer {
		return nil, nil, fmt.Errorf("%w: ack trailer wants %d bytes, have %d", ErrTruncatedInput, trailer, len(b))
	}
	start := len(b) - trailer
	var acks []uint32
	if n > 0 {
		acks = make([]uint32, n)
		for i := range acks {
			off := start + i*ackSize
			acks[i] = binary.LittleEndian.Uint32(b[off : off+ackSize])
		}
	}
	return b[:start], acks, nil
}

func appendAcks(dst []byte, acks []uint32) []byte {
	for _, a := range acks {
		dst = binary.LittleEndian.AppendUint32(dst, a)
	}
	return append(dst, byte(len(acks)))
}

func ackTrailerSize(acks []uint32) int {
	if len(acks) == 0 {
		return 0
	}
	return len(acks)*ackSize + 1
}
