package replay

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dang/internal/elfx"
	"dang/internal/elfx/elftest"
	"dang/internal/signals"
	"dang/internal/wave"
	"dang/internal/wave/wavetest"
)

const base = 0x80

// program is addi x1,x1,1 repeated; the pc trace below walks it.
var program = []uint32{0x00108093, 0x00108093, 0x00108093, 0x00108093, 0x00108093, 0x00108093, 0x00008067}

func newWaver(t *testing.T, steps []wavetest.Step, opts Options) *Waver {
	t.Helper()
	wf := wavetest.Ibex(t, steps)
	m, err := signals.GetGDBSignals[*wave.Signal](wf)
	require.NoError(t, err)
	waves, err := NewWaves(wf, m)
	require.NoError(t, err)

	im, err := elfx.NewImage(bytes.NewReader(elftest.Build(elftest.Program(base, program...))), "prog.elf")
	require.NoError(t, err)
	mem, err := im.Memory()
	require.NoError(t, err)

	if opts.FirstPC == 0 {
		opts.FirstPC = im.FirstPC()
	}
	opts.Symbols = im
	w, err := New(waves, mem, opts)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func TestNew_FirstPC(t *testing.T) {
	// Boot code runs before _start.
	steps := append([]wavetest.Step{{PC: 0x10}, {PC: 0x14}}, wavetest.Straight(base, 4)...)
	w := newWaver(t, steps, Options{ELFPath: "prog.elf"})

	assert.Equal(t, uint32(base), w.PC())
	assert.Equal(t, Cursor{Step: 0, Idx: 2, Time: 20}, w.Cursor())
	assert.Equal(t, "prog.elf", w.ExecPath())
	assert.Equal(t, 3, w.Remaining())

	w.ReverseStep()
	assert.Equal(t, uint32(base), w.PC(), "never rewinds into boot code")
}

func TestNew_FirstPCMissing(t *testing.T) {
	wf := wavetest.Ibex(t, wavetest.Straight(0x400, 3))
	m, err := signals.GetGDBSignals[*wave.Signal](wf)
	require.NoError(t, err)
	waves, err := NewWaves(wf, m)
	require.NoError(t, err)

	_, err = New(waves, elfx.NewMemory(), Options{FirstPC: base})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFirstPCNotFound))
	assert.Contains(t, err.Error(), "0x00000080")
}

func TestNewWaves_RequiresAllRegisters(t *testing.T) {
	wf := wavetest.Ibex(t, wavetest.Straight(base, 2))
	m, err := signals.GetSignals[*wave.Signal](wf)
	require.NoError(t, err)

	_, err = NewWaves(wf, m)
	var missing *signals.MissingSignalsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"x31"}, missing.Missing)
}

func TestStep(t *testing.T) {
	w := newWaver(t, wavetest.Straight(base, 4), Options{})

	var pcs []uint32
	for {
		ev := w.Step()
		if ev == EventHalted {
			break
		}
		require.Equal(t, EventDoneStep, ev)
		pcs = append(pcs, w.PC())
	}
	assert.Equal(t, []uint32{0x84, 0x88, 0x8c}, pcs)
	assert.Equal(t, EventHalted, w.Step(), "halted is sticky")
	assert.Equal(t, uint32(0x8c), w.PC())

	x1, ok := w.GPR(1)
	require.True(t, ok)
	assert.Equal(t, uint32(3), x1)

	_, ok = w.GPR(32)
	assert.False(t, ok)
}

func TestReverseStep(t *testing.T) {
	w := newWaver(t, wavetest.Straight(base, 3), Options{})
	w.Step()
	w.Step()

	assert.Equal(t, EventDoneStep, w.ReverseStep())
	assert.Equal(t, uint32(0x84), w.PC())
	x1, _ := w.GPR(1)
	assert.Equal(t, uint32(1), x1, "registers follow the cursor backwards")

	assert.Equal(t, EventDoneStep, w.ReverseStep())
	assert.Equal(t, EventHistoryBegin, w.ReverseStep())
	assert.Equal(t, uint32(base), w.PC())
}

func TestRegisters(t *testing.T) {
	steps := wavetest.Straight(base, 2)
	steps[1].Regs = map[int]uint32{10: 0xcafef00d, 31: 0xffffffff}
	w := newWaver(t, steps, Options{})
	w.Step()

	r := w.Registers()
	assert.Equal(t, uint32(0xcafef00d), r.Values[10])
	assert.Equal(t, uint32(0xffffffff), r.Values[31])
	assert.Equal(t, uint32(0x84), r.Values[32])
	for i, known := range r.Known {
		assert.True(t, known, "register %d", i)
	}
}

func TestClearBreakpoints(t *testing.T) {
	w := newWaver(t, wavetest.Straight(base, 6), Options{})
	w.AddBreakpoint(0x84)
	w.AddBreakpoint(0x8c)
	w.Reset()
	assert.Len(t, w.Breakpoints(), 2, "reset keeps breakpoints")

	w.ClearBreakpoints()
	assert.Empty(t, w.Breakpoints())
	w.SetMode(ModeContinue{})
	assert.Equal(t, RunEvent{Event: EventHalted}, w.Run(nil))
}

func TestBreakpoints(t *testing.T) {
	w := newWaver(t, wavetest.Straight(base, 6), Options{})

	w.AddBreakpoint(0x8c)
	w.AddBreakpoint(0x84)
	assert.Equal(t, []uint32{0x84, 0x8c}, w.Breakpoints())
	assert.False(t, w.RemoveBreakpoint(0x90))
	assert.True(t, w.RemoveBreakpoint(0x84))

	w.SetMode(ModeContinue{})
	assert.Equal(t, RunEvent{Event: EventBreak}, w.Run(nil))
	assert.Equal(t, uint32(0x8c), w.PC())

	assert.Equal(t, RunEvent{Event: EventHalted}, w.Run(nil))
	assert.Equal(t, uint32(0x94), w.PC())

	w.SetMode(ModeReverseContinue{})
	assert.Equal(t, RunEvent{Event: EventBreak}, w.Run(nil))
	assert.Equal(t, uint32(0x8c), w.PC())

	assert.Equal(t, RunEvent{Event: EventHistoryBegin}, w.Run(nil))
	assert.Equal(t, uint32(base), w.PC())
}

func TestRun_Modes(t *testing.T) {
	w := newWaver(t, wavetest.Straight(base, 6), Options{})

	w.SetMode(ModeStep{})
	assert.Equal(t, RunEvent{Event: EventDoneStep}, w.Run(nil))
	assert.Equal(t, uint32(0x84), w.PC())

	w.SetMode(ModeReverseStep{})
	assert.Equal(t, RunEvent{Event: EventDoneStep}, w.Run(nil))
	assert.Equal(t, uint32(base), w.PC())

	w.SetMode(ModeRangeStep{Start: base, End: 0x8c})
	assert.Equal(t, RunEvent{Event: EventDoneStep}, w.Run(nil))
	assert.Equal(t, uint32(0x8c), w.PC(), "stops on the first pc outside the range")
	assert.Equal(t, ModeRangeStep{Start: base, End: 0x8c}, w.Mode())
}

func TestRun_PollsForIncomingData(t *testing.T) {
	w := newWaver(t, wavetest.Straight(base, 8), Options{PollInterval: 2})

	polls := 0
	w.SetMode(ModeContinue{})
	got := w.Run(func() bool {
		polls++
		return polls == 2
	})
	assert.Equal(t, RunEvent{IncomingData: true}, got)
	assert.Equal(t, uint32(base+4*4), w.PC())

	w.Reset()
	assert.Equal(t, uint32(base), w.PC())
	assert.Equal(t, 0, w.Cursor().Step)
}

func TestMonitor(t *testing.T) {
	w := newWaver(t, wavetest.Straight(base, 4), Options{})
	w.Step()

	assert.Equal(t, "1\n", w.Monitor("time_idx"))
	assert.Equal(t, "10ps\n", w.Monitor("time"))
	assert.Contains(t, w.Monitor(""), "time_idx")
	assert.Equal(t, w.Monitor("help"), w.Monitor("  "))

	where := w.Monitor("where")
	assert.Contains(t, where, "step 1, time index 1")
	assert.Contains(t, where, "0x00000084")
	assert.Contains(t, where, "<_start+0x4>")

	disas := strings.Split(strings.TrimSpace(w.Monitor("disas 3")), "\n")
	require.Len(t, disas, 3)
	assert.True(t, strings.HasPrefix(disas[2], "0x0000008c"))

	assert.Contains(t, w.Monitor("disas zero"), "bad count")
	assert.Equal(t, "no breakpoints\n", w.Monitor("breakpoints"))
	w.AddBreakpoint(base)
	assert.Equal(t, "0x00000080  <_start>\n", w.Monitor("breakpoints"))
	assert.Contains(t, w.Monitor("frobnicate"), `unknown command "frobnicate"`)
}

func TestWaves_Changes(t *testing.T) {
	steps := []wavetest.Step{
		{PC: base},
		{PC: base, Regs: map[int]uint32{5: 1}},
		{PC: base + 4},
	}
	w := newWaver(t, steps, Options{})
	assert.Equal(t, []wave.TimeIdx{0, 1, 2}, w.Waves().Changes())
	assert.Equal(t, uint64(20), w.Waves().Time(2))
	assert.Zero(t, w.Waves().Time(99))
}
