package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"dang/internal/config"
	"dang/internal/dang/styles"
	"dang/internal/elfx"
	"dang/internal/replay"
	"dang/internal/signals"
	"dang/internal/ui/colorize"
	"dang/internal/wave"
)

var infoCmd = &cobra.Command{
	Use:   "info [waveform]",
	Short: "Summarize a waveform, its signal mapping and the ELF",
	Long: `Print what dang sees in its inputs: the waveform's timescale and size,
whether the mapping's signals resolve, the ELF's sections and entry points,
and where the replay would start. Problems are reported in the summary
rather than as errors so a broken setup can be diagnosed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInfo,
}

func init() {
	addInputFlags(infoCmd)
	infoCmd.Flags().Bool("raw", false, "Print the markdown source instead of rendering it")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.RequireWave(); err != nil {
		return err
	}
	progress := cmd.ErrOrStderr()
	if quiet(cmd) {
		progress = nil
	}
	md, err := infoMarkdown(cfg, progress)
	if err != nil {
		return err
	}

	raw, _ := cmd.Flags().GetBool("raw")
	if raw {
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	}

	width := 100
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		width = w
	}
	r, err := styles.MarkdownRenderer(width-2, colorize.Enabled())
	if err != nil {
		return fmt.Errorf("markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

// infoMarkdown describes the configured inputs. Only an unreadable
// waveform is an error.
func infoMarkdown(cfg *config.Config, progress io.Writer) (string, error) {
	var sb strings.Builder
	wf, err := loadWaveform(cfg.Wave.Path, progress)
	if err != nil {
		return "", err
	}

	fmt.Fprintf(&sb, "# %s\n\n", filepath.Base(cfg.Wave.Path))
	times := wf.TimeTable()
	fmt.Fprintf(&sb, "## Waveform\n\n")
	fmt.Fprintf(&sb, "| | |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Path | `%s` |\n", cfg.Wave.Path)
	fmt.Fprintf(&sb, "| Timescale | %s |\n", orDash(wf.Timescale.String()))
	fmt.Fprintf(&sb, "| Signals | %d |\n", wf.SignalCount())
	fmt.Fprintf(&sb, "| Variables | %d |\n", len(wf.Hierarchy.Vars()))
	fmt.Fprintf(&sb, "| Time indices | %d |\n", len(times))
	if len(times) > 0 {
		fmt.Fprintf(&sb, "| Time range | %d .. %d |\n", times[0], times[len(times)-1])
	}
	sb.WriteString("\n")

	waves := mappingSection(&sb, cfg, wf)
	img := elfSection(&sb, cfg)
	if img != nil {
		defer img.Close()
	}
	if waves != nil && img != nil {
		replaySection(&sb, cfg, waves, img)
	}
	return sb.String(), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func mappingSection(sb *strings.Builder, cfg *config.Config, wf *wave.Waveform) *replay.Waves {
	sb.WriteString("## Mapping\n\n")
	m, err := cfg.Wave.LoadMapping()
	if err != nil {
		fmt.Fprintf(sb, "> %v\n\n", err)
		return nil
	}
	fmt.Fprintf(sb, "- Name: **%s**\n", m.Name)
	fmt.Fprintf(sb, "- pc: `%s`\n", m.PC)
	fmt.Fprintf(sb, "- Registers: %d from `%s`", m.GPR.Count, m.GPR.Template)
	if len(m.GPR.Bits) == 2 {
		fmt.Fprintf(sb, " bits [%d, %d]", m.GPR.Bits[0], m.GPR.Bits[1])
	}
	sb.WriteString("\n")
	if len(m.Extra) > 0 {
		names := make([]string, 0, len(m.Extra))
		for n := range m.Extra {
			names = append(names, n)
		}
		sort.Strings(names)
		fmt.Fprintf(sb, "- Extra: %s\n", strings.Join(names, ", "))
	}
	sb.WriteString("\n")

	sigs, err := signals.ResolveMapping[*wave.Signal](wf, m)
	if err != nil {
		fmt.Fprintf(sb, "> Does not resolve: %v\n\n", err)
		return nil
	}
	waves, err := replay.NewWaves(wf, sigs)
	if err != nil {
		var missing *signals.MissingSignalsError
		if errors.As(err, &missing) {
			fmt.Fprintf(sb, "> Resolves, but cannot drive a debugger: %v\n\n", err)
		} else {
			fmt.Fprintf(sb, "> %v\n\n", err)
		}
		return nil
	}
	fmt.Fprintf(sb, "Resolves: pc has %d changes.\n\n", waves.PC.Len())
	return waves
}

func elfSection(sb *strings.Builder, cfg *config.Config) *elfx.Image {
	sb.WriteString("## ELF\n\n")
	if cfg.ELF.Path == "" {
		sb.WriteString("> No ELF given.\n\n")
		return nil
	}
	img, err := elfx.Open(cfg.ELF.Path)
	if err != nil {
		fmt.Fprintf(sb, "> %v\n\n", err)
		return nil
	}
	fmt.Fprintf(sb, "| | |\n|---|---|\n")
	fmt.Fprintf(sb, "| Path | `%s` |\n", cfg.ELF.Path)
	fmt.Fprintf(sb, "| Entry | `0x%08x` |\n", img.Entry)
	fmt.Fprintf(sb, "| First pc | `0x%08x`%s |\n", img.FirstPC(), firstPCSource(img))
	if img.Text.Size > 0 {
		fmt.Fprintf(sb, "| .text | `0x%08x` .. `0x%08x` |\n", img.Text.VA, img.Text.VA+img.Text.Size)
	}
	fmt.Fprintf(sb, "| Symbols | %d |\n\n", len(img.Syms))

	if len(img.Loads) > 0 {
		sb.WriteString("| Segment | Vaddr | File size | Mem size | Flags |\n|---|---|---|---|---|\n")
		for i, seg := range img.Loads {
			fmt.Fprintf(sb, "| %d | `0x%08x` | %d | %d | %s |\n", i, seg.Vaddr, seg.Filesz, seg.Memsz, seg.Flags)
		}
		sb.WriteString("\n")
	}

	if mem, err := img.Memory(); err == nil {
		sb.WriteString("| Region | Start | End |\n|---|---|---|\n")
		for _, r := range mem.Regions() {
			fmt.Fprintf(sb, "| %s | `0x%08x` | `0x%08x` |\n", r.Name, r.Base, r.End())
		}
		sb.WriteString("\n")
	}
	return img
}

func firstPCSource(img *elfx.Image) string {
	for _, name := range []string{"_start", "main"} {
		if _, ok := img.Lookup(name); ok {
			return " (" + name + ")"
		}
	}
	return " (entry)"
}

func replaySection(sb *strings.Builder, cfg *config.Config, waves *replay.Waves, img *elfx.Image) {
	sb.WriteString("## Replay\n\n")
	mem, err := img.Memory()
	if err != nil {
		fmt.Fprintf(sb, "> %v\n\n", err)
		return
	}
	first, set, err := cfg.Runtime.ParseFirstPC()
	if err != nil {
		fmt.Fprintf(sb, "> %v\n\n", err)
		return
	}
	if !set {
		first = img.FirstPC()
	}
	if !mem.Mapped(first) {
		fmt.Fprintf(sb, "> First pc `0x%08x` is outside the ELF's memory; its code will disassemble as zeros.\n\n", first)
	}
	w, err := replay.New(waves, mem, replay.Options{FirstPC: first, Symbols: img, CacheSize: cfg.Runtime.CacheSize})
	if err != nil {
		fmt.Fprintf(sb, "> %v\n\n", err)
		return
	}
	defer w.Close()

	c := w.Cursor()
	fmt.Fprintf(sb, "Starts at time index %d (t=%d) and retires %d instructions.\n\n", c.Idx, c.Time, w.Remaining()+1)
	sb.WriteString("```\n")
	for _, inst := range w.Disassemble(w.PC(), 4) {
		sb.WriteString(w.Describe(inst))
		sb.WriteString("\n")
	}
	sb.WriteString("```\n")
}
