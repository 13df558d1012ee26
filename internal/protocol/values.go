package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gofrs/uuid"
)

// Fixed widths of the composite primitives.
const (
	UUIDSize       = 16
	Vector3Size    = 12
	Vector3dSize   = 24
	Vector4Size    = 16
	QuaternionSize = 12
)

// UUID is a 16 byte identifier sent in byte order.
type UUID = uuid.UUID

// Vector3 is three little-endian float32 components.
type Vector3 struct {
	X, Y, Z float32
}

// Vector3d is three little-endian float64 components.
type Vector3d struct {
	X, Y, Z float64
}

// Vector4 is four little-endian float32 components.
type Vector4 struct {
	X, Y, Z, S float32
}

// Quaternion is a unit rotation. Only X, Y and Z travel on the wire.
type Quaternion struct {
	X, Y, Z, W float32
}

// IdentityQuaternion is the zero rotation.
var IdentityQuaternion = Quaternion{W: 1}

func (v Vector3) String() string {
	return fmt.Sprintf("<%g, %g, %g>", v.X, v.Y, v.Z)
}

func (v Vector3d) String() string {
	return fmt.Sprintf("<%g, %g, %g>", v.X, v.Y, v.Z)
}

func (v Vector4) String() string {
	return fmt.Sprintf("<%g, %g, %g, %g>", v.X, v.Y, v.Z, v.S)
}

func (q Quaternion) String() string {
	return fmt.Sprintf("<%g, %g, %g, %g>", q.X, q.Y, q.Z, q.W)
}

// DecodeUUID reads a UUID from the front of b.
func DecodeUUID(b []byte) (UUID, int, error) {
	if len(b) < UUIDSize {
		return UUID{}, 0, ErrTruncatedInput
	}
	var id UUID
	copy(id[:], b[:UUIDSize])
	return id, UUIDSize, nil
}

// EncodeUUID writes id to the front of b, which must hold UUIDSize bytes.
func EncodeUUID(id UUID, b []byte) int {
	return copy(b[:UUIDSize], id[:])
}

// DecodeVector3 reads a Vector3 from the front of b.
func DecodeVector3(b []byte) (Vector3, int, error) {
	if len(b) < Vector3Size {
		return Vector3{}, 0, ErrTruncatedInput
	}
	return Vector3{
		X: getF32(b[0:4]),
		Y: getF32(b[4:8]),
		Z: getF32(b[8:12]),
	}, Vector3Size, nil
}

// EncodeVector3 writes v to the front of b, which must hold Vector3Size bytes.
func EncodeVector3(v Vector3, b []byte) int {
	putF32(b[0:4], v.X)
	putF32(b[4:8], v.Y)
	putF32(b[8:12], v.Z)
	return Vector3Size
}

// DecodeVector3d reads a Vector3d from the front of b.
func DecodeVector3d(b []byte) (Vector3d, int, error) {
	if len(b) < Vector3dSize {
		return Vector3d{}, 0, ErrTruncatedInput
	}
	return Vector3d{
		X: getF64(b[0:8]),
		Y: getF64(b[8:16]),
		Z: getF64(b[16:24]),
	}, Vector3dSize, nil
}

// EncodeVector3d writes v to the front of b, which must hold Vector3dSize bytes.
func EncodeVector3d(v Vector3d, b []byte) int {
	putF64(b[0:8], v.X)
	putF64(b[8:16], v.Y)
	putF64(b[16:24], v.Z)
	return Vector3dSize
}

// DecodeVector4 reads a Vector4 from the front of b.
func DecodeVector4(b []byte) (Vector4, int, error) {
	if len(b) < Vector4Size {
		return Vector4{}, 0, ErrTruncatedInput
	}
	return Vector4{
		X: getF32(b[0:4]),
		Y: getF32(b[4:8]),
		Z: getF32(b[8:12]),
		S: getF32(b[12:16]),
	}, Vector4Size, nil
}

// EncodeVector4 writes v to the front of b, which must hold Vector4Size bytes.
func EncodeVector4(v Vector4, b []byte) int {
	putF32(b[0:4], v.X)
	putF32(b[4:8], v.Y)
	putF32(b[8:12], v.Z)
	putF32(b[12:16], v.S)
	return Vector4Size
}

// DecodeQuaternion reads X, Y and Z and rebuilds W as
// sqrt(max(0, 1 - x² - y² - z²)). Components whose squares sum past one
// yield W == 0 rather than NaN.
func DecodeQuaternion(b []byte) (Quaternion, int, error) {
	if len(b) < QuaternionSize {
		return Quaternion{}, 0, ErrTruncatedInput
	}
	q := Quaternion{
		X: getF32(b[0:4]),
		Y: getF32(b[4:8]),
		Z: getF32(b[8:12]),
	}
	x, y, z := float64(q.X), float64(q.Y), float64(q.Z)
	if s := 1 - x*x - y*y - z*z; s > 0 {
		q.W = float32(math.Sqrt(s))
	}
	return q, QuaternionSize, nil
}

// EncodeQuaternion writes the vector part of q to the front of b, which must
// hold QuaternionSize bytes. q and -q are the same rotation, so a negative W
// is folded into the sign of the vector part.
func EncodeQuaternion(q Quaternion, b []byte) int {
	if q.W < 0 {
		q.X, q.Y, q.Z = -q.X, -q.Y, -q.Z
	}
	putF32(b[0:4], q.X)
	putF32(b[4:8], q.Y)
	putF32(b[8:12], q.Z)
	return QuaternionSize
}

func getF32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func getF64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func putF64(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}
