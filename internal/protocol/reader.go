package protocol

import (
	"encoding/binary"
	"net"
)

// Reader is a bounds-checked cursor over one datagram body.
// Every read either consumes exactly its width or fails with ErrTruncatedInput.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Pos returns the current read offset.
func (r *Reader) Pos() int {
	return r.pos
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrTruncatedInput
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) ReadF32() (float32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return getF32(b), nil
}

func (r *Reader) ReadF64() (float64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return getF64(b), nil
}

func (r *Reader) ReadUUID() (UUID, error) {
	id, n, err := DecodeUUID(r.buf[r.pos:])
	r.pos += n
	return id, err
}

func (r *Reader) ReadVector3() (Vector3, error) {
	v, n, err := DecodeVector3(r.buf[r.pos:])
	r.pos += n
	return v, err
}

func (r *Reader) ReadVector3d() (Vector3d, error) {
	v, n, err := DecodeVector3d(r.buf[r.pos:])
	r.pos += n
	return v, err
}

func (r *Reader) ReadVector4() (Vector4, error) {
	v, n, err := DecodeVector4(r.buf[r.pos:])
	r.pos += n
	return v, err
}

func (r *Reader) ReadQuaternion() (Quaternion, error) {
	q, n, err := DecodeQuaternion(r.buf[r.pos:])
	r.pos += n
	return q, err
}

// ReadIPAddr reads four address octets.
func (r *Reader) ReadIPAddr() (net.IP, error) {
	b, err := r.take(4)
	if err != nil {
		return nil, err
	}
	return net.IPv4(b[0], b[1], b[2], b[3]).To4(), nil
}

// ReadIPPort reads a port in network byte order.
func (r *Reader) ReadIPPort() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadFixed returns a copy of the next n bytes.
func (r *Reader) ReadFixed(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadVariable reads a length prefix of prefixWidth bytes (1 or 2) and
// returns a copy of the payload. The result is never nil.
func (r *Reader) ReadVariable(prefixWidth int) ([]byte, error) {
	var n int
	switch prefixWidth {
	case 1:
		v, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		n = int(v)
	case 2:
		v, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		n = int(v)
	default:
		return nil, ErrInvalidDescriptor
	}
	return r.ReadFixed(n)
}
