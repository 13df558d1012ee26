package protocol

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Writer fills a buffer sized by the length pass. Writing past the end is a
// length-pass bug and panics.
type Writer struct {
	buf []byte
	pos int
}

func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, size)}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.pos
}

// Bytes returns the written prefix of the buffer.
func (w *Writer) Bytes() []byte {
	return w.buf[:w.pos]
}

func (w *Writer) grab(n int) []byte {
	if len(w.buf)-w.pos < n {
		panic(fmt.Sprintf("protocol: writer overrun: need %d bytes, %d left", n, len(w.buf)-w.pos))
	}
	b := w.buf[w.pos : w.pos+n]
	w.pos += n
	return b
}

func (w *Writer) WriteU8(v uint8) {
	w.grab(1)[0] = v
}

func (w *Writer) WriteU16(v uint16) {
	binary.LittleEndian.PutUint16(w.grab(2), v)
}

func (w *Writer) WriteU32(v uint32) {
	binary.LittleEndian.PutUint32(w.grab(4), v)
}

func (w *Writer) WriteU64(v uint64) {
	binary.LittleEndian.PutUint64(w.grab(8), v)
}

func (w *Writer) WriteF32(v float32) {
	putF32(w.grab(4), v)
}

func (w *Writer) WriteF64(v float64) {
	putF64(w.grab(8), v)
}

func (w *Writer) WriteUUID(id UUID) {
	EncodeUUID(id, w.grab(UUIDSize))
}

func (w *Writer) WriteVector3(v Vector3) {
	EncodeVector3(v, w.grab(Vector3Size))
}

func (w *Writer) WriteVector3d(v Vector3d) {
	EncodeVector3d(v, w.grab(Vector3dSize))
}

func (w *Writer) WriteVector4(v Vector4) {
	EncodeVector4(v, w.grab(Vector4Size))
}

func (w *Writer) WriteQuaternion(q Quaternion) {
	EncodeQuaternion(q, w.grab(QuaternionSize))
}

// WriteIPAddr writes four address octets; non-IPv4 addresses write zeros.
func (w *Writer) WriteIPAddr(ip net.IP) {
	b := w.grab(4)
	if v4 := ip.To4(); v4 != nil {
		copy(b, v4)
	}
}

// WriteIPPort writes a port in network byte order.
func (w *Writer) WriteIPPort(port uint16) {
	binary.BigEndian.PutUint16(w.grab(2), port)
}

// WriteFixed writes p into exactly n bytes. A short p is a caller bug.
func (w *Writer) WriteFixed(n int, p []byte) error {
	if len(p) != n {
		return fmt.Errorf("%w: fixed field wants %d bytes, got %d", ErrCountMismatch, n, len(p))
	}
	copy(w.grab(n), p)
	return nil
}

// WriteVariable writes a prefixWidth byte length followed by p. The ceiling
// is checked before anything is written.
func (w *Writer) WriteVariable(prefixWidth int, p []byte) error {
	if p == nil {
		return ErrNilField
	}
	switch prefixWidth {
	case 1:
		if len(p) > MaxVariable1 {
			return fmt.Errorf("%w: %d > %d", ErrOverflow, len(p), MaxVariable1)
		}
		w.WriteU8(uint8(len(p)))
	case 2:
		if len(p) > MaxVariable2 {
			return fmt.Errorf("%w: %d > %d", ErrOverflow, len(p), MaxVariable2)
		}
		w.WriteU16(uint16(len(p)))
	default:
		return ErrInvalidDescriptor
	}
	copy(w.grab(len(p)), p)
	return nil
}
