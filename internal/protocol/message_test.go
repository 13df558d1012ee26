package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/gridwire/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boundaryDescriptor() *Descriptor {
	return &Descriptor{
		Name:      "Boundary",
		Frequency: FrequencyLow,
		ID:        9,
		Blocks: []BlockSpec{
			{Name: "Short", Repeat: RepeatSingle, Fields: []FieldSpec{{Name: "Data", Kind: KindVariable1}}},
			{Name: "Long", Repeat: RepeatSingle, Fields: []FieldSpec{{Name: "Data", Kind: KindVariable2}}},
			{Name: "Items", Repeat: RepeatVariable, Fields: []FieldSpec{{Name: "ID", Kind: KindU32}}},
			{Name: "Pair", Repeat: RepeatMultiple, Count: 2, Fields: []FieldSpec{
				{Name: "Signed", Kind: KindS16},
				{Name: "Color", Kind: KindFixed, Size: 4},
			}},
		},
	}
}

func boundaryCodec(t *testing.T) (*Codec, *Descriptor) {
	t.Helper()
	d := boundaryDescriptor()
	reg, err := NewRegistry(d)
	require.NoError(t, err)
	return NewCodec(reg, Limits{}), d
}

func TestBlockShapes(t *testing.T) {
	d := boundaryDescriptor()
	assert.Equal(t, ShapeVariable, d.Blocks[0].Shape())
	assert.Equal(t, ShapeScalarArray, d.Blocks[2].Shape())
	assert.Equal(t, ShapeFixedArray, d.Blocks[3].Shape())
	w, ok := d.Blocks[3].InstanceWidth()
	assert.True(t, ok)
	assert.Equal(t, 6, w)

	counted := BlockSpec{Name: "C", Repeat: RepeatVariable, Fields: []FieldSpec{{Name: "A", Kind: KindU8}, {Name: "B", Kind: KindU8}}}
	assert.Equal(t, ShapeCountedArray, counted.Shape())
	fixed := BlockSpec{Name: "F", Fields: []FieldSpec{{Name: "A", Kind: KindUUID}}}
	assert.Equal(t, ShapeFixed, fixed.Shape())
}

func TestVariableOneByteBoundary(t *testing.T) {
	testlog.Start(t)
	c, d := boundaryCodec(t)
	m := d.New()
	require.NoError(t, m.Set("Short", 0, "Data", Bytes(bytes.Repeat([]byte{'x'}, 255))))

	raw, err := c.Encode(m)
	require.NoError(t, err)
	back, err := c.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, 255, back.Get("Short", 0, "Data").Len())

	err = m.Set("Short", 0, "Data", Bytes(bytes.Repeat([]byte{'x'}, 256)))
	assert.ErrorIs(t, err, ErrOverflow)

	// bypass Set to reach the encoder check
	m.groups[0][0].values[0] = Value{kind: KindVariable1, bytes: make([]byte, 256)}
	_, err = c.Encode(m)
	assert.ErrorIs(t, err, ErrOverflow)
	_, err = c.EncodedLength(m)
	assert.ErrorIs(t, err, ErrOverflow)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "Short", fe.Block)
	assert.Equal(t, "Data", fe.Field)
}

func TestVariableTwoByteBoundary(t *testing.T) {
	testlog.Start(t)
	c, d := boundaryCodec(t)
	m := d.New()
	require.NoError(t, m.Set("Long", 0, "Data", Bytes(bytes.Repeat([]byte{0xAB}, 65535))))

	raw, err := c.Encode(m)
	require.NoError(t, err)
	n, err := c.EncodedLength(m)
	require.NoError(t, err)
	assert.Equal(t, n, len(raw))

	back, err := c.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, 65535, back.Get("Long", 0, "Data").Len())

	err = m.Set("Long", 0, "Data", Bytes(make([]byte, 65536)))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestBlockCountBoundary(t *testing.T) {
	testlog.Start(t)
	c, d := boundaryCodec(t)
	m := d.New()
	for i := 0; i < MaxBlockCount; i++ {
		require.NoError(t, m.AppendScalar("Items", U32(uint32(i))))
	}
	_, err := m.AddBlock("Items")
	assert.ErrorIs(t, err, ErrOverflow)
	assert.Equal(t, 255, m.Count("Items"))

	raw, err := c.Encode(m)
	require.NoError(t, err)
	back, err := c.Decode(raw)
	require.NoError(t, err)
	items := back.Scalars("Items")
	require.Len(t, items, 255)
	assert.EqualValues(t, 254, items[254].Uint())

	m.groups[2] = append(m.groups[2], newBlock(&d.Blocks[2]))
	_, err = c.Encode(m)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestZeroCountDecodesEmptyNonNil(t *testing.T) {
	testlog.Start(t)
	c, d := boundaryCodec(t)
	raw, err := c.Encode(d.New())
	require.NoError(t, err)
	back, err := c.Decode(raw)
	require.NoError(t, err)
	assert.NotNil(t, back.groups[2])
	assert.Empty(t, back.groups[2])
	assert.NotNil(t, back.Get("Short", 0, "Data").Bytes())
}

func TestFixedArrayCountMismatch(t *testing.T) {
	testlog.Start(t)
	c, d := boundaryCodec(t)
	m := d.New()
	m.groups[3] = m.groups[3][:1]
	_, err := c.Encode(m)
	assert.ErrorIs(t, err, ErrCountMismatch)

	_, err = m.AddBlock("Pair")
	assert.ErrorIs(t, err, ErrCountMismatch)
}

func TestNilPayloadRejectedAtEncode(t *testing.T) {
	testlog.Start(t)
	c, d := boundaryCodec(t)
	m := d.New()
	require.NoError(t, m.Set("Short", 0, "Data", Bytes(nil)))
	assert.True(t, m.Get("Short", 0, "Data").IsNil())
	_, err := c.Encode(m)
	assert.ErrorIs(t, err, ErrNilField)

	require.NoError(t, m.Set("Short", 0, "Data", Bytes([]byte{})))
	_, err = c.Encode(m)
	assert.NoError(t, err)
}

func TestSetChecksKindsAndNames(t *testing.T) {
	testlog.Start(t)
	_, d := boundaryCodec(t)
	m := d.New()
	assert.ErrorIs(t, m.Set("Pair", 0, "Signed", U16(1)), ErrFieldKindMismatch)
	assert.ErrorIs(t, m.Set("Pair", 0, "Missing", S16(1)), ErrUnknownField)
	assert.ErrorIs(t, m.Set("Nope", 0, "Signed", S16(1)), ErrUnknownBlock)
	assert.ErrorIs(t, m.Set("Pair", 2, "Signed", S16(1)), ErrCountMismatch)
	assert.ErrorIs(t, m.Set("Pair", 0, "Color", Fixed([]byte{1, 2, 3})), ErrCountMismatch)
	assert.ErrorIs(t, m.AppendScalar("Items", U8(1)), ErrFieldKindMismatch)
	assert.Equal(t, 0, m.Count("Items"))

	require.NoError(t, m.Set("Pair", 1, "Signed", S16(-2)))
	require.NoError(t, m.Set("Pair", 1, "Color", Bytes([]byte{1, 2, 3, 4})))
	assert.EqualValues(t, -2, m.Get("Pair", 1, "Signed").Int())
	assert.Equal(t, KindFixed, m.Get("Pair", 1, "Color").Kind())
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	testlog.Start(t)
	c, d := boundaryCodec(t)
	raw, err := c.Encode(d.New())
	require.NoError(t, err)
	_, err = c.Decode(append(raw, 0x01))
	assert.ErrorIs(t, err, ErrTrailingBytes)
}

func TestDecodeTruncatedEverywhere(t *testing.T) {
	testlog.Start(t)
	c, d := boundaryCodec(t)
	m := d.New()
	require.NoError(t, m.Set("Short", 0, "Data", Text("hello")))
	require.NoError(t, m.Set("Long", 0, "Data", Bytes([]byte{1, 2, 3})))
	require.NoError(t, m.AppendScalar("Items", U32(7)))
	raw, err := c.Encode(m)
	require.NoError(t, err)
	for cut := 0; cut < len(raw); cut++ {
		_, err := c.Decode(raw[:cut])
		assert.ErrorIs(t, err, ErrTruncatedInput, "cut=%d", cut)
	}
}

func TestDecodeUnknownAndOversized(t *testing.T) {
	testlog.Start(t)
	c, _ := boundaryCodec(t)
	_, err := c.Decode([]byte{0, 0, 0, 0, 0, 0xFF, 0xFF, 0xAD, 0xDE, 0, 0})
	assert.ErrorIs(t, err, ErrUnknownMessageType)
	assert.Contains(t, err.Error(), "Low 57005")

	small := NewCodec(c.Registry(), Limits{MaxDatagramSize: 8})
	_, err = small.Decode(make([]byte, 9))
	assert.ErrorIs(t, err, ErrDatagramTooLarge)
}

func TestEncodeNormalizesAckFlag(t *testing.T) {
	testlog.Start(t)
	c, d := boundaryCodec(t)
	m := d.New()
	m.Header.Flags = FlagReliable | FlagAppendedAcks
	raw, err := c.Encode(m)
	require.NoError(t, err)
	assert.Equal(t, byte(FlagReliable), raw[0])

	m.Header.Acks = []uint32{10, 11}
	raw, err = c.Encode(m)
	require.NoError(t, err)
	assert.True(t, Flags(raw[0]).Has(FlagAppendedAcks))
	n, err := c.EncodedLength(m)
	require.NoError(t, err)
	assert.Equal(t, n, len(raw))

	back, err := c.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 11}, back.Header.Acks)

	m.Header.Acks = make([]uint32, MaxAppendedAcks+1)
	_, err = c.Encode(m)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestZeroCodedMessageRoundTrip(t *testing.T) {
	testlog.Start(t)
	d := boundaryDescriptor()
	d.ZeroCoded = true
	reg, err := NewRegistry(d)
	require.NoError(t, err)
	c := NewCodec(reg, DefaultLimits())

	m := d.New()
	assert.True(t, m.Header.Flags.Has(FlagZeroCoded))
	require.NoError(t, m.Set("Long", 0, "Data", Bytes(make([]byte, 1000))))
	m.Header.Acks = []uint32{3}
	m.Header.Sequence = 0x00000100

	raw, err := c.Encode(m)
	require.NoError(t, err)
	plain, err := c.EncodedLength(m)
	require.NoError(t, err)
	assert.Less(t, len(raw), plain)
	// prefix and ack trailer stay outside the coded region
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x00}, raw[1:5])
	assert.Equal(t, []byte{3, 0, 0, 0, 1}, raw[len(raw)-5:])

	back, err := c.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, 1000, back.Get("Long", 0, "Data").Len())
	assert.Equal(t, []uint32{3}, back.Header.Acks)
	assert.EqualValues(t, 0x100, back.Header.Sequence)

	reencoded, err := c.Encode(back)
	require.NoError(t, err)
	assert.Equal(t, raw, reencoded)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	testlog.Start(t)
	a := boundaryDescriptor()
	b := boundaryDescriptor()
	b.Name = "Other"
	_, err := NewRegistry(a, b)
	assert.ErrorIs(t, err, ErrDuplicateMessage)

	b.ID = 10
	b.Name = a.Name
	_, err = NewRegistry(a, b)
	assert.ErrorIs(t, err, ErrDuplicateMessage)

	_, err = NewRegistry(&Descriptor{Name: "Bad", Frequency: FrequencyHigh, ID: 0xFF})
	assert.ErrorIs(t, err, ErrInvalidMessageID)

	_, err = NewRegistry(&Descriptor{Name: "Zero", Frequency: FrequencyLow, ID: 1, Blocks: []BlockSpec{{Name: "B", Repeat: RepeatMultiple}}})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestRegistryIsolatedFromCallerDescriptors(t *testing.T) {
	testlog.Start(t)
	d := boundaryDescriptor()
	reg, err := NewRegistry(d)
	require.NoError(t, err)

	d.Name = "Renamed"
	d.Blocks[0].Name = "Mutated"
	d.Blocks[3].Fields[1].Size = 99
	d.Blocks = append(d.Blocks, BlockSpec{Name: "Extra", Repeat: RepeatSingle})

	got, ok := reg.ByName("Boundary")
	require.True(t, ok)
	assert.Equal(t, boundaryDescriptor(), got)
	assert.NotSame(t, d, got)
	_, ok = reg.ByName("Renamed")
	assert.False(t, ok)
}

func TestRegistryListOrder(t *testing.T) {
	testlog.Start(t)
	reg, err := NewRegistry(
		&Descriptor{Name: "L", Frequency: FrequencyLow, ID: 2},
		&Descriptor{Name: "H2", Frequency: FrequencyHigh, ID: 2},
		&Descriptor{Name: "M", Frequency: FrequencyMedium, ID: 1},
		&Descriptor{Name: "H1", Frequency: FrequencyHigh, ID: 1},
	)
	require.NoError(t, err)
	var names []string
	for _, d := range reg.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"H1", "H2", "M", "L"}, names)

	_, err = reg.New("Nope")
	assert.ErrorIs(t, err, ErrUnknownMessageType)
	m, err := reg.New("M")
	require.NoError(t, err)
	assert.Equal(t, "M", m.Name())
}

func TestMessageString(t *testing.T) {
	testlog.Start(t)
	_, d := boundaryCodec(t)
	m := d.New()
	require.NoError(t, m.Set("Short", 0, "Data", Text("hi")))
	require.NoError(t, m.Set("Long", 0, "Data", Bytes([]byte{0x00, 0xFF})))
	require.NoError(t, m.AppendScalar("Items", U32(5)))
	out := m.String()
	assert.True(t, strings.HasPrefix(out, "Boundary Low 9"))
	assert.Contains(t, out, "[Items] count=1")
	assert.Contains(t, out, "[Pair #1]")
	assert.Contains(t, out, `"hi`)
}
