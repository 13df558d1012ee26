package protocol

import "fmt"

// Kind is the primitive type of one field.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindU8
	KindU16
	KindU32
	KindU64
	KindS8
	KindS16
	KindS32
	KindS64
	KindF32
	KindF64
	KindBool
	KindUUID
	KindVector3
	KindVector3d
	KindVector4
	KindQuaternion
	KindIPAddr
	KindIPPort
	KindFixed
	KindVariable1
	KindVariable2
)

// Ceilings of the two variable length prefixes.
const (
	MaxVariable1 = 0xFF
	MaxVariable2 = 0xFFFF
)

var kindNames = [...]string{
	KindInvalid:    "Invalid",
	KindU8:         "U8",
	KindU16:        "U16",
	KindU32:        "U32",
	KindU64:        "U64",
	KindS8:         "S8",
	KindS16:        "S16",
	KindS32:        "S32",
	KindS64:        "S64",
	KindF32:        "F32",
	KindF64:        "F64",
	KindBool:       "BOOL",
	KindUUID:       "LLUUID",
	KindVector3:    "LLVector3",
	KindVector3d:   "LLVector3d",
	KindVector4:    "LLVector4",
	KindQuaternion: "LLQuaternion",
	KindIPAddr:     "IPADDR",
	KindIPPort:     "IPPORT",
	KindFixed:      "Fixed",
	KindVariable1:  "Variable1",
	KindVariable2:  "Variable2",
}

var kindWidths = [...]int{
	KindU8:         1,
	KindU16:        2,
	KindU32:        4,
	KindU64:        8,
	KindS8:         1,
	KindS16:        2,
	KindS32:        4,
	KindS64:        8,
	KindF32:        4,
	KindF64:        8,
	KindBool:       1,
	KindUUID:       UUIDSize,
	KindVector3:    Vector3Size,
	KindVector3d:   Vector3dSize,
	KindVector4:    Vector4Size,
	KindQuaternion: QuaternionSize,
	KindIPAddr:     4,
	KindIPPort:     2,
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Valid reports whether k names a known primitive.
func (k Kind) Valid() bool {
	return k > KindInvalid && k <= KindVariable2
}

// Width returns the static wire width of k. Fixed and variable kinds return 0;
// their width comes from the field spec or the length prefix.
func (k Kind) Width() int {
	if int(k) < len(kindWidths) {
		return kindWidths[k]
	}
	return 0
}

// IsVariable reports whether k carries a length prefix.
func (k Kind) IsVariable() bool {
	return k == KindVariable1 || k == KindVariable2
}

// IsBytes reports whether k holds an opaque byte payload.
func (k Kind) IsBytes() bool {
	return k == KindFixed || k.IsVariable()
}

// PrefixWidth returns the length prefix width of a variable kind.
func (k Kind) PrefixWidth() int {
	switch k {
	case KindVariable1:
		return 1
	case KindVariable2:
		return 2
	default:
		return 0
	}
}

// MaxLength returns the payload ceiling of a variable kind.
func (k Kind) MaxLength() int {
	switch k {
	case KindVariable1:
		return MaxVariable1
	case KindVariable2:
		return MaxVariable2
	default:
		return 0
	}
}

// ParseKind resolves a template type name. Fixed and Variable take a size
// argument in the template and are resolved by the caller.
func ParseKind(name string) (Kind, bool) {
	for k := KindU8; k <= KindIPPort; k++ {
		if kindNames[k] == name {
			return k, true
		}
	}
	return KindInvalid, false
}
