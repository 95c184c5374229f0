// Package wave loads simulation waveforms and exposes their signals by
// hierarchical path. Value change dumps (VCD), plain or gzip-compressed, are
// supported.
package wave

import (
	"errors"
	"fmt"
)

var (
	// ErrSignalNotFound is returned when a hierarchical path names no variable.
	ErrSignalNotFound = errors.New("signal not found")
	// ErrBitRange is returned when a bit slice does not fit the signal.
	ErrBitRange = errors.New("bit range out of bounds")
	// ErrUnsupportedFormat is returned for waveform files that are not VCD.
	ErrUnsupportedFormat = errors.New("unsupported waveform format")
)

// TimeIdx indexes the waveform time table.
type TimeIdx uint32

// Timescale is the unit of the times recorded in a waveform, e.g. 10ns.
type Timescale struct {
	Factor uint32
	Unit   string
}

func (ts Timescale) String() string {
	if ts.Factor == 0 {
		return ""
	}
	return fmt.Sprintf("%d%s", ts.Factor, ts.Unit)
}

// Waveform is a fully loaded trace. It is read-only once parsed and safe for
// concurrent readers.
type Waveform struct {
	Timescale Timescale
	Hierarchy *Hierarchy

	times   []uint64
	signals map[string]*Signal
}

func newWaveform() *Waveform {
	return &Waveform{
		Hierarchy: newHierarchy(),
		signals:   make(map[string]*Signal),
	}
}

// SignalFromPath resolves a dotted hierarchical path such as
// "TOP.core.pc" to its signal. Repeated lookups of one path return the same
// *Signal.
func (w *Waveform) SignalFromPath(path string) (*Signal, error) {
	v, ok := w.Hierarchy.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSignalNotFound, path)
	}
	sig, ok := w.signals[v.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s (no data for id %q)", ErrSignalNotFound, path, v.ID)
	}
	return sig, nil
}

// TimeTable returns the simulation time of every time index.
func (w *Waveform) TimeTable() []uint64 {
	return w.times
}

// Time returns the simulation time at idx, or false if idx is past the end.
func (w *Waveform) Time(idx TimeIdx) (uint64, bool) {
	if int(idx) >= len(w.times) {
		return 0, false
	}
	return w.times[idx], true
}

// SignalCount reports how many distinct signals carry data.
func (w *Waveform) SignalCount() int {
	return len(w.signals)
}
