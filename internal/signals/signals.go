// Package signals picks the program counter and register signals of a RISC-V
// core out of a waveform by hierarchical path.
package signals

import (
	"fmt"
)

// Waveform resolves hierarchical paths to signals of type S.
type Waveform[S any] interface {
	SignalFromPath(path string) (S, error)
}

// Slicer narrows a signal to an inclusive bit range.
type Slicer[S any] interface {
	Slice(lo, hi int) (S, error)
}

// Paths into the ibex simple system as dumped by Verilator.
const (
	PCPath        = "TOP.ibex_simple_system.u_top.u_ibex_top.u_ibex_core.wb_stage_i.pc_wb_o"
	gprPathFormat = "TOP.ibex_simple_system.u_top.u_ibex_top.gen_regfile_ff.register_file_i.rf_reg.[%d]"
)

// Register counts. The plain variant stops one short of x31.
const (
	plainGPRCount = 31
	GDBGPRCount   = 32
)

// GPRPath is the path of register file entry i.
func GPRPath(i int) string {
	return fmt.Sprintf(gprPathFormat, i)
}

// GPRName is the logical name of register i ("x0".."x31").
func GPRName(i int) string {
	return fmt.Sprintf("x%d", i)
}

func lookup[S any](w Waveform[S], name, path string) (S, error) {
	sig, err := w.SignalFromPath(path)
	if err != nil {
		return sig, fmt.Errorf("resolve %s: %w", name, err)
	}
	return sig, nil
}

// GetSignals resolves pc and x0..x30 without slicing.
func GetSignals[S any](w Waveform[S]) (map[string]S, error) {
	out := make(map[string]S, plainGPRCount+1)
	pc, err := lookup(w, "pc", PCPath)
	if err != nil {
		return nil, err
	}
	out["pc"] = pc
	for i := 0; i < plainGPRCount; i++ {
		sig, err := lookup(w, GPRName(i), GPRPath(i))
		if err != nil {
			return nil, err
		}
		out[GPRName(i)] = sig
	}
	return out, nil
}

// GetGDBSignals resolves pc and x0..x31, narrowing every register to bits
// [0, 31]. The pc is left whole.
func GetGDBSignals[S Slicer[S]](w Waveform[S]) (map[string]S, error) {
	out := make(map[string]S, GDBGPRCount+1)
	pc, err := lookup(w, "pc", PCPath)
	if err != nil {
		return nil, err
	}
	out["pc"] = pc
	for i := 0; i < GDBGPRCount; i++ {
		name := GPRName(i)
		sig, err := lookup(w, name, GPRPath(i))
		if err != nil {
			return nil, err
		}
		if sig, err = sig.Slice(0, 31); err != nil {
			return nil, fmt.Errorf("slice %s: %w", name, err)
		}
		out[name] = sig
	}
	return out, nil
}

// GetMiscSignals resolves just the program counter.
func GetMiscSignals[S any](w Waveform[S]) ([]S, error) {
	pc, err := lookup(w, "pc", PCPath)
	if err != nil {
		return nil, err
	}
	return []S{pc}, nil
}
