package protocol

import (
	"bytes"
	"errors"
	"math"
	"net"
	"testing"

	"github.com/danmuck/gridwire/internal/testutil/testlog"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuaternionDecodeNeverNaN(t *testing.T) {
	testlog.Start(t)
	b := make([]byte, QuaternionSize)
	putF32(b[0:4], 0.8)
	putF32(b[4:8], 0.8)
	putF32(b[8:12], 0.8)
	q, n, err := DecodeQuaternion(b)
	require.NoError(t, err)
	assert.Equal(t, QuaternionSize, n)
	assert.False(t, math.IsNaN(float64(q.W)))
	assert.Zero(t, q.W)

	putF32(b[0:4], float32(math.NaN()))
	q, _, err = DecodeQuaternion(b)
	require.NoError(t, err)
	assert.Zero(t, q.W)
}

func TestQuaternionNegativeWFoldsSign(t *testing.T) {
	testlog.Start(t)
	b := make([]byte, QuaternionSize)
	EncodeQuaternion(Quaternion{X: 0.5, Y: 0.5, Z: 0.5, W: -0.5}, b)
	q, _, err := DecodeQuaternion(b)
	require.NoError(t, err)
	assert.Equal(t, float32(-0.5), q.X)
	assert.Equal(t, float32(-0.5), q.Y)
	assert.Equal(t, float32(-0.5), q.Z)
	assert.InDelta(t, 0.5, q.W, 1e-6)
}

func TestVectorPrimitivesLittleEndian(t *testing.T) {
	testlog.Start(t)
	b := make([]byte, Vector3Size)
	EncodeVector3(Vector3{X: 1, Y: 2, Z: 3}, b)
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, b[0:4])
	v, n, err := DecodeVector3(b)
	require.NoError(t, err)
	assert.Equal(t, Vector3Size, n)
	assert.Equal(t, Vector3{X: 1, Y: 2, Z: 3}, v)

	d := make([]byte, Vector3dSize)
	EncodeVector3d(Vector3d{X: 256000.5, Y: -1, Z: 22.25}, d)
	vd, _, err := DecodeVector3d(d)
	require.NoError(t, err)
	assert.Equal(t, Vector3d{X: 256000.5, Y: -1, Z: 22.25}, vd)

	_, _, err = DecodeVector4(make([]byte, Vector4Size-1))
	assert.ErrorIs(t, err, ErrTruncatedInput)
}

func TestUUIDWireOrderIsByteOrder(t *testing.T) {
	testlog.Start(t)
	id := uuid.Must(uuid.FromString("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
	b := make([]byte, UUIDSize)
	EncodeUUID(id, b)
	assert.Equal(t, id.Bytes(), b)
	back, _, err := DecodeUUID(b)
	require.NoError(t, err)
	assert.Equal(t, id, back)

	_, _, err = DecodeUUID(b[:15])
	assert.ErrorIs(t, err, ErrTruncatedInput)
}

func TestIPPortIsNetworkOrder(t *testing.T) {
	testlog.Start(t)
	w := NewWriter(2 + 4)
	w.WriteIPPort(13000)
	w.WriteIPAddr(net.IPv4(10, 1, 2, 3))
	assert.Equal(t, []byte{0x32, 0xc8, 10, 1, 2, 3}, w.Bytes())

	r := NewReader(w.Bytes())
	port, err := r.ReadIPPort()
	require.NoError(t, err)
	assert.EqualValues(t, 13000, port)
	ip, err := r.ReadIPAddr()
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3", ip.String())
}

func TestReaderTruncationConsumesNothing(t *testing.T) {
	testlog.Start(t)
	r := NewReader([]byte{1, 2, 3})
	_, err := r.ReadU32()
	assert.ErrorIs(t, err, ErrTruncatedInput)
	assert.Equal(t, 0, r.Pos())

	// prefix claims more than remains
	r = NewReader([]byte{0x10, 0x00, 'a', 'b'})
	_, err = r.ReadVariable(2)
	assert.ErrorIs(t, err, ErrTruncatedInput)
}

func TestReadVariableNeverNil(t *testing.T) {
	testlog.Start(t)
	r := NewReader([]byte{0x00})
	p, err := r.ReadVariable(1)
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Empty(t, p)
}

func TestWriteVariableChecksBeforeWriting(t *testing.T) {
	testlog.Start(t)
	w := NewWriter(8)
	err := w.WriteVariable(1, make([]byte, 256))
	assert.ErrorIs(t, err, ErrOverflow)
	assert.Equal(t, 0, w.Len())

	err = w.WriteVariable(1, nil)
	assert.ErrorIs(t, err, ErrNilField)
	assert.Equal(t, 0, w.Len())
}

func TestEncodeHeaderLayouts(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		h    Header
		want []byte
	}{
		{"high", Header{Flags: FlagReliable, Sequence: 1, Frequency: FrequencyHigh, ID: 4},
			[]byte{0x01, 0x01, 0x00, 0x00, 0x00, 0x04}},
		{"medium", Header{Sequence: 0x01020304, Frequency: FrequencyMedium, ID: 0x0102},
			[]byte{0x00, 0x04, 0x03, 0x02, 0x01, 0xFF, 0x02, 0x01}},
		{"low", Header{Frequency: FrequencyLow, ID: 80},
			[]byte{0x00, 0, 0, 0, 0, 0xFF, 0xFF, 80, 0, 0, 0}},
		{"fixed", Header{Frequency: FrequencyLow, ID: 0xFFFFFFFB},
			[]byte{0x00, 0, 0, 0, 0, 0xFF, 0xFF, 0xFB, 0xFF, 0xFF, 0xFF}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EncodeHeader(tc.h)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.h.Size(), len(got))

			back, n, err := DecodeHeader(got)
			require.NoError(t, err)
			assert.Equal(t, len(got), n)
			assert.Equal(t, tc.h.Frequency, back.Frequency)
			assert.Equal(t, tc.h.ID, back.ID)
			assert.Equal(t, tc.h.Sequence, back.Sequence)
			assert.Equal(t, tc.h.Flags, back.Flags)
		})
	}
}

func TestEncodeHeaderRejectsUnrepresentableIDs(t *testing.T) {
	testlog.Start(t)
	for _, h := range []Header{
		{Frequency: FrequencyHigh, ID: 0xFF},
		{Frequency: FrequencyHigh, ID: 300},
		{Frequency: FrequencyMedium, ID: 0x10000},
		{Frequency: FrequencyMedium, ID: 0x01FF},
		{Frequency: Frequency(9), ID: 1},
	} {
		_, err := EncodeHeader(h)
		assert.ErrorIs(t, err, ErrInvalidMessageID, "%s %d", h.Frequency, h.ID)
	}
}

func TestDecodeHeaderMalformedMarker(t *testing.T) {
	testlog.Start(t)
	prefix := []byte{0, 1, 0, 0, 0}
	for _, tail := range [][]byte{
		{0xFF},
		{0xFF, 0x02},
		{0xFF, 0xFF, 0x01, 0x00},
	} {
		_, _, err := DecodeHeader(append(append([]byte{}, prefix...), tail...))
		assert.ErrorIs(t, err, ErrMalformedFrequencyMarker, "% x", tail)
		assert.ErrorIs(t, err, ErrTruncatedInput)
	}
	_, _, err := DecodeHeader(prefix)
	assert.ErrorIs(t, err, ErrTruncatedInput)
	assert.NotErrorIs(t, err, ErrMalformedFrequencyMarker)

	_, _, err = DecodeHeader([]byte{0, 1})
	assert.ErrorIs(t, err, ErrTruncatedInput)
}

func TestZeroCodeRoundTrip(t *testing.T) {
	testlog.Start(t)
	src := append([]byte{1, 0, 0, 2, 0}, make([]byte, 300)...)
	src = append(src, 7)
	enc := ZeroEncode(src)
	assert.Equal(t, len(enc), ZeroEncodedLength(src))
	assert.Equal(t, []byte{1, 0, 2, 2, 0, 255, 0, 46, 7}, enc)

	dec, err := ZeroDecode(enc, 1024)
	require.NoError(t, err)
	assert.Equal(t, src, dec)
}

func TestZeroDecodeMalformed(t *testing.T) {
	testlog.Start(t)
	_, err := ZeroDecode([]byte{5, 0}, 64)
	assert.ErrorIs(t, err, ErrTruncatedInput)

	_, err = ZeroDecode([]byte{0, 255, 0, 255}, 300)
	assert.ErrorIs(t, err, ErrExpansionLimit)

	_, err = ZeroDecode(bytes.Repeat([]byte{9}, 10), 9)
	assert.ErrorIs(t, err, ErrExpansionLimit)

	out, err := ZeroDecode([]byte{0, 0}, 8)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestAckTrailer(t *testing.T) {
	testlog.Start(t)
	body := []byte{0xAA, 0xBB}
	raw := appendAcks(append([]byte{}, body...), []uint32{1, 0x01020304})
	assert.Equal(t, len(body)+ackTrailerSize([]uint32{1, 2}), len(raw))
	assert.Equal(t, byte(2), raw[len(raw)-1])

	gotBody, acks, err := splitAcks(raw)
	require.NoError(t, err)
	assert.Equal(t, body, gotBody)
	assert.Equal(t, []uint32{1, 0x01020304}, acks)

	_, _, err = splitAcks([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncatedInput)
	_, _, err = splitAcks(nil)
	assert.ErrorIs(t, err, ErrTruncatedInput)
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "none", Flags(0).String())
	assert.Equal(t, "reliable|zerocoded", (FlagReliable | FlagZeroCoded).String())
	assert.Equal(t, "acks|0x80", (FlagAppendedAcks | 0x80).String())
}

func TestReasonLabels(t *testing.T) {
	assert.Equal(t, "ok", Reason(nil))
	assert.Equal(t, "malformed_frequency_marker", Reason(errors.Join(ErrMalformedFrequencyMarker, ErrTruncatedInput)))
	assert.Equal(t, "truncated_input", Reason(&FieldError{Message: "M", Err: ErrTruncatedInput}))
	assert.Equal(t, "invalid_message", Reason(ErrNilField))
	assert.Equal(t, "other", Reason(errors.New("boom")))
}
