// Package wavetest renders small ibex simple-system dumps for tests.
package wavetest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dang/internal/wave"
)

// Step is the state retired at one clock: the write-back pc and any
// registers that changed.
type Step struct {
	PC   uint32
	Regs map[int]uint32
}

// Period is the simulation time between steps.
const Period = 10

// code returns a VCD identifier code for signal n.
func code(n int) string {
	const first, span = '!', '~' - '!' + 1
	var b []byte
	for {
		b = append(b, byte(first+n%span))
		n /= span
		if n == 0 {
			return string(b)
		}
		n--
	}
}

// IbexVCD renders steps as a VCD using the scope layout Verilator gives the
// ibex simple system. Step i happens at time i*Period; every register starts
// at zero.
func IbexVCD(steps []Step) string {
	var sb strings.Builder
	w := func(format string, args ...any) { fmt.Fprintf(&sb, format+"\n", args...) }

	w("$timescale 1ps $end")
	w("$scope module TOP $end")
	w("$scope module ibex_simple_system $end")
	w("$scope module u_top $end")
	w("$scope module u_ibex_top $end")
	w("$scope module u_ibex_core $end")
	w("$scope module wb_stage_i $end")
	w("$var wire 32 %s pc_wb_o [31:0] $end", code(0))
	w("$upscope $end")
	w("$upscope $end")
	w("$scope module gen_regfile_ff $end")
	w("$scope module register_file_i $end")
	for i := 0; i < 32; i++ {
		w("$var wire 32 %s rf_reg[%d] [31:0] $end", code(i+1), i)
	}
	w("$upscope $end")
	w("$upscope $end")
	w("$upscope $end")
	w("$upscope $end")
	w("$upscope $end")
	w("$upscope $end")
	w("$enddefinitions $end")

	for n, s := range steps {
		w("#%d", n*Period)
		if n == 0 {
			w("$dumpvars")
			for i := 0; i < 32; i++ {
				w("b%b %s", s.Regs[i], code(i+1))
			}
		} else {
			for i := 0; i < 32; i++ {
				if v, ok := s.Regs[i]; ok {
					w("b%b %s", v, code(i+1))
				}
			}
		}
		w("b%b %s", s.PC, code(0))
		if n == 0 {
			w("$end")
		}
	}
	w("#%d", len(steps)*Period)
	return sb.String()
}

// Ibex parses IbexVCD(steps).
func Ibex(tb testing.TB, steps []Step) *wave.Waveform {
	tb.Helper()
	wf, err := wave.Parse(strings.NewReader(IbexVCD(steps)))
	if err != nil {
		tb.Fatalf("parse ibex dump: %v", err)
	}
	return wf
}

// WriteIbex writes IbexVCD(steps) to a temporary file and returns its path.
func WriteIbex(tb testing.TB, steps []Step) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "sim.vcd")
	if err := os.WriteFile(path, []byte(IbexVCD(steps)), 0o644); err != nil {
		tb.Fatalf("write ibex dump: %v", err)
	}
	return path
}

// Straight returns n steps whose pc walks forward by 4 from base, with x1
// counting the steps.
func Straight(base uint32, n int) []Step {
	steps := make([]Step, n)
	for i := range steps {
		steps[i] = Step{PC: base + uint32(4*i), Regs: map[int]uint32{1: uint32(i)}}
	}
	return steps
}
