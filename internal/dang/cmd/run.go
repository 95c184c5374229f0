package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dang/internal/replay"
	"dang/internal/signals"
	"dang/internal/ui/colorize"
)

var runCmd = &cobra.Command{
	Use:   "run [waveform]",
	Short: "Print the replayed instruction trace without a debugger",
	Long: `Replay the waveform from the program's first instruction and print every
retired instruction with its simulation time, until the recording ends, a
breakpoint is reached or --max-steps instructions have been printed.`,
	Example: `
# Trace until main returns to _exit
dang run sim.vcd --elf prog.elf --break 0x100208

# Show register writes as well
dang run sim.vcd --elf prog.elf --max-steps 50 --regs
  `,
	Args: cobra.MaximumNArgs(1),
	RunE: runTrace,
}

func init() {
	addInputFlags(runCmd)
	runCmd.Flags().Int("max-steps", 0, "Stop after this many instructions (0: no limit)")
	runCmd.Flags().StringSlice("break", nil, "Stop at these hex addresses")
	runCmd.Flags().Bool("regs", false, "Print registers that change at each step")
	rootCmd.AddCommand(runCmd)
}

func runTrace(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd, args)
	if err != nil {
		return err
	}
	progress := cmd.ErrOrStderr()
	if quiet(cmd) {
		progress = nil
	}
	s, err := openSession(cfg, progress)
	if err != nil {
		return err
	}
	defer s.Close()

	breaks, _ := cmd.Flags().GetStringSlice("break")
	for _, b := range breaks {
		addr, err := strconv.ParseUint(strings.TrimPrefix(b, "0x"), 16, 32)
		if err != nil {
			return fmt.Errorf("bad breakpoint %q: %w", b, err)
		}
		s.waver.AddBreakpoint(uint32(addr))
	}
	maxSteps, _ := cmd.Flags().GetInt("max-steps")
	regs, _ := cmd.Flags().GetBool("regs")

	t := &tracer{w: s.waver, out: cmd.OutOrStdout(), regs: regs}
	ctx := cmd.Context()
	return t.run(maxSteps, func() bool { return ctx != nil && ctx.Err() != nil })
}

// tracer prints a replay one instruction per line.
type tracer struct {
	w    *replay.Waver
	out  io.Writer
	regs bool
}

func (t *tracer) line() {
	c := t.w.Cursor()
	inst := t.w.Disassemble(t.w.PC(), 1)[0]
	fmt.Fprintf(t.out, "%6d  %10d  %s\n", c.Step, c.Time, colorize.InstructionLine(t.w.Describe(inst)))
}

// run prints the current instruction, then steps until the trace ends,
// a breakpoint hits, maxSteps is reached or stop returns true.
func (t *tracer) run(maxSteps int, stop func() bool) error {
	t.line()
	prev := t.w.Registers()
	for n := 0; maxSteps <= 0 || n < maxSteps; n++ {
		if stop() {
			fmt.Fprintln(t.out, "interrupted")
			return nil
		}
		ev := t.w.Step()
		if ev == replay.EventHalted {
			fmt.Fprintln(t.out, "end of recording")
			return nil
		}
		cur := t.w.Registers()
		if t.regs {
			t.changes(prev, cur)
		}
		prev = cur
		t.line()
		if ev == replay.EventBreak {
			fmt.Fprintf(t.out, "breakpoint at 0x%08x\n", t.w.PC())
			return nil
		}
	}
	fmt.Fprintf(t.out, "stopped after %d steps\n", maxSteps)
	return nil
}

// changes prints the registers written by the instruction just retired.
func (t *tracer) changes(prev, cur replay.Registers) {
	var parts []string
	for i := 0; i < replay.NumGPRs; i++ {
		if !cur.Known[i] {
			continue
		}
		if prev.Known[i] && prev.Values[i] == cur.Values[i] {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=0x%08x", signals.GPRName(i), cur.Values[i]))
	}
	if len(parts) > 0 {
		fmt.Fprintf(t.out, "%20s%s\n", "", strings.Join(parts, " "))
	}
}
