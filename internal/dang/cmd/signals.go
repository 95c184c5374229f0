package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/lipgloss/v2/table"
	"github.com/spf13/cobra"

	"dang/internal/config"
	"dang/internal/dang/styles"
	"dang/internal/signals"
	"dang/internal/ui/colorize"
	"dang/internal/wave"
)

var signalsCmd = &cobra.Command{
	Use:   "signals [waveform]",
	Short: "Show the core signals dang extracts from a waveform",
	Long: `Resolve the pc and register signals of a waveform and print their values
at a time index. --variant picks one of the fixed Ibex extractions
(gdb: x0..x31 sliced to 32 bits, plain: x0..x30 unsliced, misc: pc only);
otherwise the configured mapping is used. --match lists hierarchy variables
matching a glob instead; '*' stays within one scope, '**' crosses scopes.`,
	Example: `
dang signals sim.vcd --variant gdb --time-idx 120
dang signals sim.vcd --mapping cva6.yaml
dang signals sim.vcd --match 'TOP.**.u_ibex_core.**pc*'
dang signals sim.vcd --watch
  `,
	Args: cobra.MaximumNArgs(1),
	RunE: runSignals,
}

func init() {
	signalsCmd.Flags().String("variant", "", "Fixed extraction: gdb, plain or misc")
	signalsCmd.Flags().String("mapping", "", "YAML signal mapping file")
	signalsCmd.Flags().String("builtin", "", "Builtin signal mapping (ibex, ibex-raw)")
	signalsCmd.Flags().Int("time-idx", -1, "Time index to sample (default: the last)")
	signalsCmd.Flags().String("match", "", "List hierarchy variables matching a glob")
	signalsCmd.Flags().BoolP("watch", "w", false, "Re-run whenever the waveform file changes")
	rootCmd.AddCommand(signalsCmd)
}

func runSignals(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.RequireWave(); err != nil {
		return err
	}
	variant, _ := cmd.Flags().GetString("variant")
	switch variant {
	case "", "gdb", "plain", "misc":
	default:
		return fmt.Errorf("unknown variant %q (valid: gdb, plain, misc)", variant)
	}
	idx, _ := cmd.Flags().GetInt("time-idx")
	pattern, _ := cmd.Flags().GetString("match")

	progress := cmd.ErrOrStderr()
	if quiet(cmd) {
		progress = nil
	}
	render := func() error {
		wf, err := loadWaveform(cfg.Wave.Path, progress)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if pattern != "" {
			return printMatches(out, wf, pattern)
		}
		rows, err := extractSignals(wf, cfg, variant)
		if err != nil {
			return err
		}
		return printSignals(out, wf, rows, idx)
	}

	if err := render(); err != nil {
		return err
	}
	if watch, _ := cmd.Flags().GetBool("watch"); !watch {
		return nil
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s, press Ctrl+C to stop\n", cfg.Wave.Path)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return wave.Watch(ctx, cfg.Wave.Path, func() {
		if err := render(); err != nil {
			slog.Warn("Reload failed", "path", cfg.Wave.Path, "error", err)
		}
	})
}

// namedSignal is one row of the signals table.
type namedSignal struct {
	Name   string
	Signal *wave.Signal
}

// extractSignals runs the requested extraction and orders the result as
// pc, x0..xN, then extras by name.
func extractSignals(wf *wave.Waveform, cfg *config.Config, variant string) ([]namedSignal, error) {
	var m map[string]*wave.Signal
	var err error
	switch variant {
	case "gdb":
		m, err = signals.GetGDBSignals[*wave.Signal](wf)
	case "plain":
		m, err = signals.GetSignals[*wave.Signal](wf)
	case "misc":
		var misc []*wave.Signal
		if misc, err = signals.GetMiscSignals[*wave.Signal](wf); err == nil {
			m = map[string]*wave.Signal{"pc": misc[0]}
		}
	default:
		var mapping *signals.Mapping
		if mapping, err = cfg.Wave.LoadMapping(); err == nil {
			m, err = signals.ResolveMapping[*wave.Signal](wf, mapping)
		}
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := signalRank(names[i]), signalRank(names[j])
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})

	rows := make([]namedSignal, len(names))
	for i, name := range names {
		rows[i] = namedSignal{Name: name, Signal: m[name]}
	}
	return rows, nil
}

// signalRank sorts pc first, registers numerically, extras last.
func signalRank(name string) int {
	if name == "pc" {
		return -1
	}
	if len(name) > 1 && name[0] == 'x' {
		if n, err := strconv.Atoi(name[1:]); err == nil && n < signals.GDBGPRCount {
			return n
		}
	}
	return signals.GDBGPRCount
}

// formatValue prints known values as zero-padded hex.
func formatValue(v wave.Value) string {
	if v.IsReal() || !v.IsKnown() {
		return v.String()
	}
	digits := max(1, (v.Width()+3)/4)
	if u, err := v.Uint64(); err == nil {
		return fmt.Sprintf("0x%0*x", digits, u)
	}
	n, err := v.Big()
	if err != nil {
		return v.String()
	}
	return fmt.Sprintf("0x%0*s", digits, n.Text(16))
}

func newTable(headers ...string) *table.Table {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
	if colorize.Enabled() {
		t = t.BorderStyle(styles.Border).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return styles.Header.Padding(0, 1)
				}
				return lipgloss.NewStyle().Padding(0, 1)
			})
	} else {
		t = t.StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().Padding(0, 1)
		})
	}
	return t
}

func printSignals(w io.Writer, wf *wave.Waveform, rows []namedSignal, idx int) error {
	times := wf.TimeTable()
	if len(times) == 0 {
		return fmt.Errorf("waveform has no time steps")
	}
	if idx < 0 || idx >= len(times) {
		if idx != -1 {
			return fmt.Errorf("time index %d out of range 0..%d", idx, len(times)-1)
		}
		idx = len(times) - 1
	}
	at := wave.TimeIdx(idx)

	t := newTable("Signal", "Width", "Changes", "Value")
	for _, r := range rows {
		value := "-"
		if v, ok := r.Signal.ValueAt(at); ok {
			value = formatValue(v)
		}
		t.Row(r.Name, strconv.Itoa(r.Signal.Width()), strconv.Itoa(r.Signal.Len()), value)
	}
	fmt.Fprintf(w, "time index %d (t=%d%s)\n", idx, times[idx]*uint64(max(wf.Timescale.Factor, 1)), wf.Timescale.Unit)
	fmt.Fprintln(w, t.String())
	return nil
}

func printMatches(w io.Writer, wf *wave.Waveform, pattern string) error {
	vars, err := wf.Hierarchy.Match(pattern)
	if err != nil {
		return err
	}
	if len(vars) == 0 {
		return fmt.Errorf("no variables match %q", pattern)
	}
	t := newTable("Path", "Kind", "Width", "ID")
	for _, v := range vars {
		t.Row(v.Path, v.Kind, strconv.Itoa(v.Width), v.ID)
	}
	fmt.Fprintln(w, t.String())
	return nil
}
