package wave

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

var (
	// ErrUnknownBits is returned when converting a value holding x or z bits.
	ErrUnknownBits = errors.New("value has unknown bits")
	// ErrTooWide is returned when a value does not fit the requested type.
	ErrTooWide = errors.New("value too wide")
	// ErrRealValue is returned when a bit operation is applied to a real.
	ErrRealValue = errors.New("real-valued signal")
)

// Value is a signal value at one point in time: a four-state bit string
// (MSB first) or, for real variables, a float.
type Value struct {
	bits   string
	real   float64
	isReal bool
}

// BitsValue builds a value from an MSB-first string over 0, 1, x and z.
func BitsValue(bits string) Value {
	return Value{bits: strings.ToLower(bits)}
}

// RealValue builds a real-valued value.
func RealValue(f float64) Value {
	return Value{real: f, isReal: true}
}

// Bits returns the MSB-first bit string. It is empty for reals.
func (v Value) Bits() string { return v.bits }

// Width is the number of bits in the value.
func (v Value) Width() int { return len(v.bits) }

// IsReal reports whether this is a real-valued sample.
func (v Value) IsReal() bool { return v.isReal }

// Real returns the float sample of a real value.
func (v Value) Real() float64 { return v.real }

// IsKnown reports whether every bit is 0 or 1.
func (v Value) IsKnown() bool {
	if v.isReal {
		return true
	}
	return strings.Trim(v.bits, "01") == ""
}

// Equal compares two values exactly, including x/z bits.
func (v Value) Equal(o Value) bool {
	if v.isReal || o.isReal {
		return v.isReal == o.isReal && v.real == o.real
	}
	return v.bits == o.bits
}

func (v Value) String() string {
	if v.isReal {
		return strconv.FormatFloat(v.real, 'g', -1, 64)
	}
	if u, err := v.Uint64(); err == nil {
		return fmt.Sprintf("0x%x", u)
	}
	return "b" + v.bits
}

// Uint64 converts the value, failing on unknown bits or more than 64
// significant bits.
func (v Value) Uint64() (uint64, error) {
	if v.isReal {
		return 0, ErrRealValue
	}
	if !v.IsKnown() {
		return 0, fmt.Errorf("%w: b%s", ErrUnknownBits, v.bits)
	}
	bits := strings.TrimLeft(v.bits, "0")
	if len(bits) > 64 {
		return 0, fmt.Errorf("%w: %d bits for uint64", ErrTooWide, len(bits))
	}
	if bits == "" {
		return 0, nil
	}
	return strconv.ParseUint(bits, 2, 64)
}

// Uint32 converts the value like Uint64 but requires it to fit 32 bits.
func (v Value) Uint32() (uint32, error) {
	if v.Width() > 32 {
		return 0, fmt.Errorf("%w: %d bits for uint32", ErrTooWide, v.Width())
	}
	u, err := v.Uint64()
	if err != nil {
		return 0, err
	}
	return uint32(u), nil
}

// Big converts a value of any width.
func (v Value) Big() (*big.Int, error) {
	if v.isReal {
		return nil, ErrRealValue
	}
	if !v.IsKnown() {
		return nil, fmt.Errorf("%w: b%s", ErrUnknownBits, v.bits)
	}
	n := new(big.Int)
	if v.bits == "" {
		return n, nil
	}
	n.SetString(v.bits, 2)
	return n, nil
}

// Bytes returns the value big-endian, padded to whole bytes.
func (v Value) Bytes() ([]byte, error) {
	n, err := v.Big()
	if err != nil {
		return nil, err
	}
	out := make([]byte, (v.Width()+7)/8)
	return n.FillBytes(out), nil
}

// slice extracts bits [lo, hi] (LSB = bit 0).
func (v Value) slice(lo, hi int) Value {
	w := len(v.bits)
	return Value{bits: v.bits[w-1-hi : w-lo]}
}

// extend pads or truncates a VCD vector to width, following the VCD rule of
// left-extending with 0 for a known MSB and with the MSB itself otherwise.
func extend(bits string, width int) string {
	switch {
	case width <= 0 || len(bits) == width:
		return bits
	case len(bits) > width:
		return bits[len(bits)-width:]
	}
	pad := byte('0')
	if bits != "" && bits[0] != '0' && bits[0] != '1' {
		pad = bits[0]
	}
	return strings.Repeat(string(pad), width-len(bits)) + bits
}
