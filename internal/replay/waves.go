// Package replay steps through a core's recorded execution: the program
// counter and registers come from waveform signals, memory from the ELF.
package replay

import (
	"fmt"

	"dang/internal/signals"
	"dang/internal/wave"
)

// NumGPRs is the number of general-purpose registers of RV32I.
const NumGPRs = signals.GDBGPRCount

// Waves holds the signals a replay reads.
type Waves struct {
	PC        *wave.Signal
	GPRs      [NumGPRs]*wave.Signal
	Times     []uint64
	Timescale wave.Timescale
}

// NewWaves picks pc and x0..x31 out of a resolved signal map.
func NewWaves(wf *wave.Waveform, m map[string]*wave.Signal) (*Waves, error) {
	if err := signals.RequireGDB(m); err != nil {
		return nil, err
	}
	w := &Waves{PC: m["pc"], Times: wf.TimeTable(), Timescale: wf.Timescale}
	for i := range w.GPRs {
		w.GPRs[i] = m[signals.GPRName(i)]
	}
	if w.PC.Len() == 0 {
		return nil, fmt.Errorf("pc signal never changes")
	}
	return w, nil
}

// Changes merges the change indices of pc and every register.
func (w *Waves) Changes() []wave.TimeIdx {
	all := make([]*wave.Signal, 0, NumGPRs+1)
	all = append(all, w.PC)
	all = append(all, w.GPRs[:]...)
	return wave.MergeChanges(all...)
}

// Time converts a time index to simulation time.
func (w *Waves) Time(idx wave.TimeIdx) uint64 {
	if int(idx) < len(w.Times) {
		return w.Times[idx]
	}
	return 0
}
