package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Value is one decoded or assigned field value. Byte payloads are owned
// copies and are never mutated after construction.
type Value struct {
	kind  Kind
	num   uint64
	vec   [4]float64
	id    UUID
	bytes []byte
}

func U8(v uint8) Value   { return Value{kind: KindU8, num: uint64(v)} }
func U16(v uint16) Value { return Value{kind: KindU16, num: uint64(v)} }
func U32(v uint32) Value { return Value{kind: KindU32, num: uint64(v)} }
func U64(v uint64) Value { return Value{kind: KindU64, num: v} }
func S8(v int8) Value    { return Value{kind: KindS8, num: uint64(int64(v))} }
func S16(v int16) Value  { return Value{kind: KindS16, num: uint64(int64(v))} }
func S32(v int32) Value  { return Value{kind: KindS32, num: uint64(int64(v))} }
func S64(v int64) Value  { return Value{kind: KindS64, num: uint64(v)} }

func F32(v float32) Value {
	return Value{kind: KindF32, num: uint64(math.Float32bits(v))}
}

func F64(v float64) Value {
	return Value{kind: KindF64, num: math.Float64bits(v)}
}

func Bool(v bool) Value {
	if v {
		return Value{kind: KindBool, num: 1}
	}
	return Value{kind: KindBool}
}

func UUIDValue(id UUID) Value {
	return Value{kind: KindUUID, id: id}
}

func Vec3(v Vector3) Value {
	return Value{kind: KindVector3, vec: [4]float64{float64(v.X), float64(v.Y), float64(v.Z)}}
}

func Vec3d(v Vector3d) Value {
	return Value{kind: KindVector3d, vec: [4]float64{v.X, v.Y, v.Z}}
}

func Vec4(v Vector4) Value {
	return Value{kind: KindVector4, vec: [4]float64{float64(v.X), float64(v.Y), float64(v.Z), float64(v.S)}}
}

func Quat(q Quaternion) Value {
	return Value{kind: KindQuaternion, vec: [4]float64{float64(q.X), float64(q.Y), float64(q.Z), float64(q.W)}}
}

// IPAddr holds an IPv4 address; anything else is stored as 0.0.0.0.
func IPAddr(ip net.IP) Value {
	v := Value{kind: KindIPAddr}
	if v4 := ip.To4(); v4 != nil {
		v.num = uint64(binary.BigEndian.Uint32(v4))
	}
	return v
}

func IPPort(port uint16) Value {
	return Value{kind: KindIPPort, num: uint64(port)}
}

// Fixed holds an exact-width byte payload.
func Fixed(b []byte) Value {
	return Value{kind: KindFixed, bytes: cloneBytes(b)}
}

// Bytes holds a variable payload. The prefix width is taken from the field
// it is assigned to. A nil b stays nil and is rejected at encode time.
func Bytes(b []byte) Value {
	return Value{kind: KindVariable1, bytes: cloneBytes(b)}
}

// Text holds a NUL terminated string payload, the grid's string convention.
// An empty s encodes as a zero-length payload.
func Text(s string) Value {
	if s == "" {
		return Value{kind: KindVariable1, bytes: []byte{}}
	}
	b := make([]byte, len(s)+1)
	copy(b, s)
	return Value{kind: KindVariable1, bytes: b}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Kind returns the primitive kind of v.
func (v Value) Kind() Kind { return v.kind }

// Uint returns unsigned, boolean, port and address payloads.
func (v Value) Uint() uint64 {
	switch v.kind {
	case KindU8, KindU16, KindU32, KindU64, KindBool, KindIPPort, KindIPAddr:
		return v.num
	default:
		return 0
	}
}

// Int returns signed payloads sign-extended to 64 bits.
func (v Value) Int() int64 {
	switch v.kind {
	case KindS8:
		return int64(int8(v.num))
	case KindS16:
		return int64(int16(v.num))
	case KindS32:
		return int64(int32(v.num))
	case KindS64:
		return int64(v.num)
	default:
		return 0
	}
}

func (v Value) Float() float64 {
	switch v.kind {
	case KindF32:
		return float64(math.Float32frombits(uint32(v.num)))
	case KindF64:
		return math.Float64frombits(v.num)
	default:
		return 0
	}
}

func (v Value) Bool() bool {
	return v.kind == KindBool && v.num != 0
}

func (v Value) UUID() UUID {
	return v.id
}

func (v Value) Vector3() Vector3 {
	return Vector3{X: float32(v.vec[0]), Y: float32(v.vec[1]), Z: float32(v.vec[2])}
}

func (v Value) Vector3d() Vector3d {
	return Vector3d{X: v.vec[0], Y: v.vec[1], Z: v.vec[2]}
}

func (v Value) Vector4() Vector4 {
	return Vector4{X: float32(v.vec[0]), Y: float32(v.vec[1]), Z: float32(v.vec[2]), S: float32(v.vec[3])}
}

func (v Value) Quaternion() Quaternion {
	return Quaternion{X: float32(v.vec[0]), Y: float32(v.vec[1]), Z: float32(v.vec[2]), W: float32(v.vec[3])}
}

func (v Value) IP() net.IP {
	if v.kind != KindIPAddr {
		return nil
	}
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v.num))
	return net.IP(b)
}

func (v Value) Port() uint16 {
	if v.kind != KindIPPort {
		return 0
	}
	return uint16(v.num)
}

// Bytes returns a copy of a byte payload.
func (v Value) Bytes() []byte {
	return cloneBytes(v.bytes)
}

// Len returns the payload length of a byte value.
func (v Value) Len() int {
	return len(v.bytes)
}

// IsNil reports whether a byte value was never given a payload.
func (v Value) IsNil() bool {
	return v.kind.IsBytes() && v.bytes == nil
}

// Text returns a byte payload as a string without its NUL terminator.
func (v Value) Text() string {
	return strings.TrimRight(string(v.bytes), "\x00")
}

// String renders v for debug dumps.
func (v Value) String() string {
	switch v.kind {
	case KindU8, KindU16, KindU32, KindU64:
		return strconv.FormatUint(v.num, 10)
	case KindS8, KindS16, KindS32, KindS64:
		return strconv.FormatInt(v.Int(), 10)
	case KindF32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32)
	case KindF64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindUUID:
		return v.id.String()
	case KindVector3:
		return v.Vector3().String()
	case KindVector3d:
		return v.Vector3d().String()
	case KindVector4:
		return v.Vector4().String()
	case KindQuaternion:
		return v.Quaternion().String()
	case KindIPAddr:
		return v.IP().String()
	case KindIPPort:
		return strconv.FormatUint(v.num, 10)
	case KindFixed, KindVariable1, KindVariable2:
		return renderBytes(v.bytes)
	default:
		return "<invalid>"
	}
}

func renderBytes(b []byte) string {
	if b == nil {
		return "<nil>"
	}
	text := strings.TrimRight(string(b), "\x00")
	if utf8.ValidString(text) && isPrintable(text) {
		return strconv.Quote(text)
	}
	return "0x" + hex.EncodeToString(b)
}

func isPrintable(s string) bool {
	for _, r := range s {
		if r == '\n' || r == '\t' {
			continue
		}
		if !strconv.IsPrint(r) {
			return false
		}
	}
	return true
}

// coerce re-tags v for a field of kind k. Byte payloads may move between
// byte kinds; everything else must match exactly.
func (v Value) coerce(k Kind) (Value, error) {
	if v.kind == k {
		return v, nil
	}
	if v.kind.IsBytes() && k.IsBytes() {
		v.kind = k
		return v, nil
	}
	return Value{}, fmt.Errorf("%w: have %s, field is %s", ErrFieldKindMismatch, v.kind, k)
}
