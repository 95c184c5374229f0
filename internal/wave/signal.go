package wave

import (
	"fmt"
	"sort"
)

// Signal is the value history of one identifier code: the time indices at
// which it changed and the value it took at each of them.
type Signal struct {
	id     string
	width  int
	isReal bool
	times  []TimeIdx
	values []Value
}

// ID is the identifier code the dump used for this signal.
func (s *Signal) ID() string { return s.id }

// Width is the declared width in bits.
func (s *Signal) Width() int { return s.width }

// TimeIndices lists the time indices at which the signal changed.
func (s *Signal) TimeIndices() []TimeIdx { return s.times }

// Len is the number of recorded changes.
func (s *Signal) Len() int { return len(s.times) }

// Change returns the n-th recorded change.
func (s *Signal) Change(n int) (TimeIdx, Value) {
	return s.times[n], s.values[n]
}

// record appends a change at idx. A second change at the same index
// replaces the first; a change to the value already held is dropped.
func (s *Signal) record(idx TimeIdx, v Value) {
	n := len(s.times)
	if n > 0 && s.times[n-1] == idx {
		s.values[n-1] = v
		if n > 1 && s.values[n-2].Equal(v) {
			s.times = s.times[:n-1]
			s.values = s.values[:n-1]
		}
		return
	}
	if n > 0 && s.values[n-1].Equal(v) {
		return
	}
	s.times = append(s.times, idx)
	s.values = append(s.values, v)
}

// ValueAt returns the value in effect at idx: the last change at or before
// it. It reports false before the first change.
func (s *Signal) ValueAt(idx TimeIdx) (Value, bool) {
	i := sort.Search(len(s.times), func(i int) bool { return s.times[i] > idx })
	if i == 0 {
		return Value{}, false
	}
	return s.values[i-1], true
}

// NextChange returns the first change strictly after idx.
func (s *Signal) NextChange(idx TimeIdx) (TimeIdx, Value, bool) {
	i := sort.Search(len(s.times), func(i int) bool { return s.times[i] > idx })
	if i == len(s.times) {
		return 0, Value{}, false
	}
	return s.times[i], s.values[i], true
}

// PrevChange returns the last change strictly before idx.
func (s *Signal) PrevChange(idx TimeIdx) (TimeIdx, Value, bool) {
	i := sort.Search(len(s.times), func(i int) bool { return s.times[i] >= idx })
	if i == 0 {
		return 0, Value{}, false
	}
	return s.times[i-1], s.values[i-1], true
}

// FindValue returns the time index of the first change to value v. This is a
// linear scan.
func (s *Signal) FindValue(v uint64) (TimeIdx, bool) {
	for i, val := range s.values {
		if u, err := val.Uint64(); err == nil && u == v {
			return s.times[i], true
		}
	}
	return 0, false
}

// Slice returns a view of bits [lo, hi] (inclusive, bit 0 is the LSB).
// Changes outside the range that leave the slice unchanged are dropped.
func (s *Signal) Slice(lo, hi int) (*Signal, error) {
	if s.isReal {
		return nil, fmt.Errorf("slice %s: %w", s.id, ErrRealValue)
	}
	if lo < 0 || lo > hi || hi >= s.width {
		return nil, fmt.Errorf("%w: [%d, %d] of %d-bit signal %s", ErrBitRange, lo, hi, s.width, s.id)
	}
	out := &Signal{
		id:    fmt.Sprintf("%s[%d:%d]", s.id, hi, lo),
		width: hi - lo + 1,
	}
	for i, v := range s.values {
		out.record(s.times[i], v.slice(lo, hi))
	}
	return out, nil
}
