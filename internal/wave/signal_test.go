package wave

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSignal(width int, changes map[TimeIdx]string) *Signal {
	s := &Signal{id: "t", width: width}
	for idx := TimeIdx(0); idx < 64; idx++ {
		if bits, ok := changes[idx]; ok {
			s.record(idx, BitsValue(extend(bits, width)))
		}
	}
	return s
}

func TestSignal_ValueAt(t *testing.T) {
	s := buildSignal(8, map[TimeIdx]string{2: "1", 5: "10", 9: "11"})

	_, ok := s.ValueAt(1)
	assert.False(t, ok, "no value before the first change")

	tests := []struct {
		idx  TimeIdx
		want uint64
	}{
		{2, 1}, {4, 1}, {5, 2}, {8, 2}, {9, 3}, {40, 3},
	}
	for _, tt := range tests {
		v, ok := s.ValueAt(tt.idx)
		require.True(t, ok)
		u, err := v.Uint64()
		require.NoError(t, err)
		assert.Equal(t, tt.want, u, "value at %d", tt.idx)
	}
}

func TestSignal_NextPrevChange(t *testing.T) {
	s := buildSignal(8, map[TimeIdx]string{2: "1", 5: "10", 9: "11"})

	idx, v, ok := s.NextChange(2)
	require.True(t, ok)
	assert.Equal(t, TimeIdx(5), idx)
	assert.Equal(t, "00000010", v.Bits())

	idx, _, ok = s.NextChange(0)
	require.True(t, ok)
	assert.Equal(t, TimeIdx(2), idx)

	_, _, ok = s.NextChange(9)
	assert.False(t, ok)

	idx, _, ok = s.PrevChange(9)
	require.True(t, ok)
	assert.Equal(t, TimeIdx(5), idx)

	idx, _, ok = s.PrevChange(7)
	require.True(t, ok)
	assert.Equal(t, TimeIdx(5), idx)

	_, _, ok = s.PrevChange(2)
	assert.False(t, ok)
}

func TestSignal_FindValue(t *testing.T) {
	s := buildSignal(8, map[TimeIdx]string{0: "x", 3: "101", 4: "1", 7: "101"})

	idx, ok := s.FindValue(5)
	require.True(t, ok)
	assert.Equal(t, TimeIdx(3), idx, "first occurrence wins")

	_, ok = s.FindValue(42)
	assert.False(t, ok)
}

func TestSignal_Slice(t *testing.T) {
	// Upper nibble changes at 1 and 3, lower nibble at 2.
	s := buildSignal(8, map[TimeIdx]string{0: "00000000", 1: "00010000", 2: "00010001", 3: "00100001"})

	low, err := s.Slice(0, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, low.Width())
	assert.Equal(t, []TimeIdx{0, 2}, low.TimeIndices(), "unchanged slices collapse")

	high, err := s.Slice(4, 7)
	require.NoError(t, err)
	assert.Equal(t, []TimeIdx{0, 1, 3}, high.TimeIndices())
	_, v := high.Change(2)
	assert.Equal(t, "0010", v.Bits())

	whole, err := s.Slice(0, 7)
	require.NoError(t, err)
	assert.Equal(t, s.TimeIndices(), whole.TimeIndices())
}

func TestSignal_SliceErrors(t *testing.T) {
	s := buildSignal(8, map[TimeIdx]string{0: "1"})

	for _, r := range [][2]int{{-1, 3}, {4, 3}, {0, 8}, {8, 9}} {
		_, err := s.Slice(r[0], r[1])
		assert.True(t, errors.Is(err, ErrBitRange), "range %v", r)
	}

	r := &Signal{id: "r", width: 64, isReal: true}
	_, err := r.Slice(0, 31)
	assert.True(t, errors.Is(err, ErrRealValue))
}

func TestValue_Conversions(t *testing.T) {
	v := BitsValue("00000000000000000000000010000100")
	u32, err := v.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x84), u32)
	assert.Equal(t, "0x84", v.String())

	b, err := v.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0x84}, b)

	wide := BitsValue("1" + strings.Repeat("0", 72))
	_, err = wide.Uint64()
	assert.True(t, errors.Is(err, ErrTooWide))
	n, err := wide.Big()
	require.NoError(t, err)
	assert.Equal(t, 73, n.BitLen())

	_, err = BitsValue("0x01").Uint64()
	assert.True(t, errors.Is(err, ErrUnknownBits))
	assert.Equal(t, "b0x01", BitsValue("0X01").String())

	_, err = BitsValue(strings.Repeat("0", 32) + "1").Uint32()
	assert.True(t, errors.Is(err, ErrTooWide), "33-bit values never fit uint32")

	zero, err := BitsValue("").Uint64()
	require.NoError(t, err)
	assert.Zero(t, zero)
}

func TestExtend(t *testing.T) {
	assert.Equal(t, "0001", extend("1", 4))
	assert.Equal(t, "xxx1", extend("x1", 4))
	assert.Equal(t, "zzzz", extend("z", 4))
	assert.Equal(t, "01", extend("1101", 2))
	assert.Equal(t, "1", extend("1", 1))
}

func TestMergeChanges(t *testing.T) {
	a := buildSignal(1, map[TimeIdx]string{0: "0", 3: "1", 7: "0"})
	b := buildSignal(1, map[TimeIdx]string{1: "1", 3: "0", 9: "1"})
	empty := &Signal{}

	assert.Equal(t, []TimeIdx{0, 1, 3, 7, 9}, MergeChanges(a, b, empty, nil))
	assert.Empty(t, MergeChanges())
}
