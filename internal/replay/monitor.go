package replay

import (
	"fmt"
	"strconv"
	"strings"

	"dang/internal/disasm"
)

const monitorHelp = `monitor commands:
  help          this text
  time_idx      waveform time index at the cursor
  time          simulation time at the cursor
  where         pc, symbol and the current instruction
  disas [n]     disassemble n instructions from pc (default 8)
  breakpoints   list breakpoint addresses
`

const defaultDisasCount = 8

// Monitor runs a "monitor" command from the debugger console and returns
// its output.
func (w *Waver) Monitor(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return monitorHelp
	}
	switch fields[0] {
	case "help":
		return monitorHelp
	case "time_idx":
		return fmt.Sprintf("%d\n", w.TimeIdx())
	case "time":
		return fmt.Sprintf("%d%s\n", w.Time()*uint64(max(w.waves.Timescale.Factor, 1)), w.waves.Timescale.Unit)
	case "where":
		c := w.Cursor()
		return fmt.Sprintf("step %d, time index %d\n%s\n", c.Step, c.Idx, w.Describe(w.dec.At(w.PC())))
	case "disas":
		n := defaultDisasCount
		if len(fields) > 1 {
			v, err := strconv.Atoi(fields[1])
			if err != nil || v <= 0 {
				return fmt.Sprintf("disas: bad count %q\n", fields[1])
			}
			n = v
		}
		var sb strings.Builder
		for _, inst := range w.Disassemble(w.PC(), n) {
			sb.WriteString(w.Describe(inst))
			sb.WriteByte('\n')
		}
		return sb.String()
	case "breakpoints":
		bps := w.Breakpoints()
		if len(bps) == 0 {
			return "no breakpoints\n"
		}
		var sb strings.Builder
		for _, addr := range bps {
			fmt.Fprintf(&sb, "0x%08x%s\n", addr, w.symbolSuffix(addr))
		}
		return sb.String()
	}
	return fmt.Sprintf("unknown command %q, try \"monitor help\"\n", fields[0])
}

// Describe formats an instruction as "0x00000080  addi ra,zero,1  <main+0x4>".
func (w *Waver) Describe(inst disasm.Inst) string {
	line := fmt.Sprintf("0x%08x  %-28s", inst.VA, inst.Text)
	if sym := w.symbolSuffix(inst.VA); sym != "" {
		line += sym
	}
	return strings.TrimRight(line, " ")
}

func (w *Waver) symbolSuffix(addr uint32) string {
	sym, ok := w.SymbolAt(addr)
	if !ok {
		return ""
	}
	if off := addr - sym.Addr; off != 0 {
		return fmt.Sprintf("  <%s+0x%x>", sym, off)
	}
	return fmt.Sprintf("  <%s>", sym)
}
