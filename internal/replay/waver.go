package replay

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"dang/internal/disasm"
	"dang/internal/elfx"
	"dang/internal/wave"
)

// ErrFirstPCNotFound is returned when the pc never takes the program's first
// address, usually because the waveform and ELF do not belong together.
var ErrFirstPCNotFound = errors.New("first pc not found in waveform")

// DefaultPollInterval is how many steps a continue runs between checks for
// incoming debugger data.
const DefaultPollInterval = 1024

// Memory is the program image a replay reads instructions and data from.
type Memory interface {
	Read(addr uint32, buf []byte) int
}

// Symbolizer names code addresses. *elfx.Image implements it.
type Symbolizer interface {
	SymbolAt(addr uint32) (elfx.Symbol, bool)
}

type Options struct {
	FirstPC      uint32
	ELFPath      string
	Symbols      Symbolizer
	PollInterval int
	CacheSize    int // decoded instructions kept; 0 means disasm.DefaultCacheSize
}

// Cursor is where a replay stands.
type Cursor struct {
	Step int          // pc changes since the first pc
	Idx  wave.TimeIdx // waveform time index
	Time uint64       // simulation time
}

// Waver replays one recorded run. It is not safe for concurrent use.
type Waver struct {
	waves   *Waves
	mem     Memory
	dec     *disasm.Decoder
	symbols Symbolizer
	elfPath string

	pcTimes []wave.TimeIdx
	first   int
	pos     int

	breakpoints  map[uint32]struct{}
	mode         ExecMode
	pollInterval int
}

// New positions a replay at the first time the pc equals opts.FirstPC.
func New(waves *Waves, mem Memory, opts Options) (*Waver, error) {
	idx, ok := waves.PC.FindValue(uint64(opts.FirstPC))
	if !ok {
		return nil, fmt.Errorf("%w: 0x%08x", ErrFirstPCNotFound, opts.FirstPC)
	}
	pcTimes := waves.PC.TimeIndices()
	first := sort.Search(len(pcTimes), func(i int) bool { return pcTimes[i] >= idx })

	dec, err := disasm.NewDecoder(mem, opts.CacheSize)
	if err != nil {
		return nil, err
	}

	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	w := &Waver{
		waves:        waves,
		mem:          mem,
		dec:          dec,
		symbols:      opts.Symbols,
		elfPath:      opts.ELFPath,
		pcTimes:      pcTimes,
		first:        first,
		pos:          first,
		breakpoints:  make(map[uint32]struct{}),
		mode:         ModeContinue{},
		pollInterval: poll,
	}
	slog.Debug("Replay positioned", "first_pc", fmt.Sprintf("0x%08x", opts.FirstPC), "time_idx", idx, "pc_changes", len(pcTimes)-first)
	return w, nil
}

// Close releases the instruction cache.
func (w *Waver) Close() {
	w.dec.Close()
}

// Waves returns the signals being replayed.
func (w *Waver) Waves() *Waves { return w.waves }

// ExecPath is the path of the ELF being replayed, if known.
func (w *Waver) ExecPath() string { return w.elfPath }

// TimeIdx is the waveform time index at the cursor.
func (w *Waver) TimeIdx() wave.TimeIdx { return w.pcTimes[w.pos] }

// Time is the simulation time at the cursor.
func (w *Waver) Time() uint64 { return w.waves.Time(w.TimeIdx()) }

func (w *Waver) Cursor() Cursor {
	return Cursor{Step: w.pos - w.first, Idx: w.TimeIdx(), Time: w.Time()}
}

// Remaining is the number of pc changes left before the end of the trace.
func (w *Waver) Remaining() int { return len(w.pcTimes) - 1 - w.pos }

// PC is the program counter at the cursor. Unknown bits read as zero.
func (w *Waver) PC() uint32 {
	_, v := w.waves.PC.Change(w.pos)
	u, _ := v.Uint32()
	return u
}

// GPR reads register i at the cursor. It reports false when the register
// holds unknown bits or has not been driven yet.
func (w *Waver) GPR(i int) (uint32, bool) {
	if i < 0 || i >= NumGPRs {
		return 0, false
	}
	v, ok := w.waves.GPRs[i].ValueAt(w.TimeIdx())
	if !ok {
		return 0, false
	}
	u, err := v.Uint32()
	if err != nil {
		return 0, false
	}
	return u, true
}

// Registers is x0..x31 followed by pc, in GDB's RV32 order.
type Registers struct {
	Values [NumGPRs + 1]uint32
	Known  [NumGPRs + 1]bool
}

func (w *Waver) Registers() Registers {
	var r Registers
	for i := 0; i < NumGPRs; i++ {
		r.Values[i], r.Known[i] = w.GPR(i)
	}
	r.Values[NumGPRs], r.Known[NumGPRs] = w.PC(), true
	return r
}

// ReadMemory copies program memory into buf, zero-filling unmapped bytes.
func (w *Waver) ReadMemory(addr uint32, buf []byte) int {
	return w.mem.Read(addr, buf)
}

// Disassemble decodes n instructions starting at addr.
func (w *Waver) Disassemble(addr uint32, n int) disasm.Stream {
	return w.dec.Range(addr, n)
}

// SymbolAt names the function containing addr.
func (w *Waver) SymbolAt(addr uint32) (elfx.Symbol, bool) {
	if w.symbols == nil {
		return elfx.Symbol{}, false
	}
	return w.symbols.SymbolAt(addr)
}

// AddBreakpoint stops forward and reverse execution when pc reaches addr.
func (w *Waver) AddBreakpoint(addr uint32) {
	w.breakpoints[addr] = struct{}{}
}

// RemoveBreakpoint reports false if no breakpoint was set at addr.
func (w *Waver) RemoveBreakpoint(addr uint32) bool {
	if _, ok := w.breakpoints[addr]; !ok {
		return false
	}
	delete(w.breakpoints, addr)
	return true
}

// ClearBreakpoints removes every breakpoint.
func (w *Waver) ClearBreakpoints() {
	clear(w.breakpoints)
}

// Breakpoints lists breakpoint addresses in ascending order.
func (w *Waver) Breakpoints() []uint32 {
	out := make([]uint32, 0, len(w.breakpoints))
	for addr := range w.breakpoints {
		out = append(out, addr)
	}
	slices.Sort(out)
	return out
}

// Reset moves the cursor back to the first pc.
func (w *Waver) Reset() {
	w.pos = w.first
}

func (w *Waver) atBreakpoint() bool {
	_, ok := w.breakpoints[w.PC()]
	return ok
}

// Step moves to the next pc change.
func (w *Waver) Step() Event {
	if w.pos+1 >= len(w.pcTimes) {
		return EventHalted
	}
	w.pos++
	if w.atBreakpoint() {
		return EventBreak
	}
	return EventDoneStep
}

// ReverseStep moves to the previous pc change, never before the first pc.
func (w *Waver) ReverseStep() Event {
	if w.pos <= w.first {
		return EventHistoryBegin
	}
	w.pos--
	if w.atBreakpoint() {
		return EventBreak
	}
	return EventDoneStep
}
