package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dang/internal/config"
	"dang/internal/elfx/elftest"
	"dang/internal/replay"
	"dang/internal/signals"
	"dang/internal/wave"
	"dang/internal/wave/wavetest"
)

const base = 0x80

// addi x1,x1,1 five times, then ret.
var program = []uint32{0x00108093, 0x00108093, 0x00108093, 0x00108093, 0x00108093, 0x00008067}

// fixture writes a six-step trace and its program and returns a config
// pointing at both. Colors are off so output can be compared as text.
func fixture(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("DANG_NO_COLOR", "1")
	cfg := config.Default()
	cfg.Wave.Path = wavetest.WriteIbex(t, wavetest.Straight(base, 6))
	cfg.ELF.Path = elftest.Write(t, elftest.Program(base, program...))
	return cfg
}

func openFixture(t *testing.T, cfg *config.Config) *session {
	t.Helper()
	s, err := openSession(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestOpenSession(t *testing.T) {
	cfg := fixture(t)
	s := openFixture(t, cfg)

	assert.Equal(t, uint32(base), s.waver.PC())
	assert.True(t, filepath.IsAbs(s.waver.ExecPath()))
	assert.Equal(t, "ibex", s.mapping.Name)
	assert.Equal(t, 5, s.waver.Remaining())
}

func TestOpenSession_MissingInputs(t *testing.T) {
	cfg := config.Default()
	_, err := openSession(cfg, nil)
	assert.ErrorIs(t, err, config.ErrMissingInput)

	cfg = fixture(t)
	cfg.ELF.Path = ""
	_, err = openSession(cfg, nil)
	assert.ErrorIs(t, err, config.ErrMissingInput)
}

func TestOpenSession_FirstPCOverride(t *testing.T) {
	cfg := fixture(t)
	cfg.Runtime.FirstPC = "0x88"
	s := openFixture(t, cfg)
	assert.Equal(t, uint32(0x88), s.waver.PC())

	cfg.Runtime.FirstPC = "0x1000"
	_, err := openSession(cfg, nil)
	assert.ErrorIs(t, err, replay.ErrFirstPCNotFound)
}

func TestOpenSession_MappingWithoutAllRegisters(t *testing.T) {
	cfg := fixture(t)
	cfg.Wave.Builtin = "ibex-raw"
	_, err := openSession(cfg, nil)
	var missing *signals.MissingSignalsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"x31"}, missing.Missing)
}

func TestTracer(t *testing.T) {
	s := openFixture(t, fixture(t))

	var out bytes.Buffer
	tr := &tracer{w: s.waver, out: &out, regs: true}
	require.NoError(t, tr.run(0, func() bool { return false }))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Contains(t, lines[0], "0x00000080")
	assert.Contains(t, lines[0], "addi")
	assert.Contains(t, lines[0], "<_start>")
	assert.Contains(t, out.String(), "x1=0x00000001")
	assert.Contains(t, out.String(), "<_start+0x14>")
	assert.Equal(t, "end of recording", lines[len(lines)-1])
}

func TestTracer_Stops(t *testing.T) {
	s := openFixture(t, fixture(t))

	var out bytes.Buffer
	tr := &tracer{w: s.waver, out: &out}
	require.NoError(t, tr.run(2, func() bool { return false }))
	assert.Contains(t, out.String(), "stopped after 2 steps")
	assert.Equal(t, 3, strings.Count(out.String(), "addi"))

	out.Reset()
	s.waver.Reset()
	s.waver.AddBreakpoint(0x8c)
	require.NoError(t, tr.run(0, func() bool { return false }))
	assert.Contains(t, out.String(), "breakpoint at 0x0000008c")

	out.Reset()
	require.NoError(t, tr.run(0, func() bool { return true }))
	assert.Contains(t, out.String(), "interrupted")
}

func TestExtractSignals(t *testing.T) {
	cfg := fixture(t)
	wf, err := wave.Open(cfg.Wave.Path)
	require.NoError(t, err)

	tests := []struct {
		variant string
		rows    int
		last    string
	}{
		{variant: "gdb", rows: 33, last: "x31"},
		{variant: "plain", rows: 32, last: "x30"},
		{variant: "misc", rows: 1, last: "pc"},
		{variant: "", rows: 33, last: "x31"},
	}
	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			rows, err := extractSignals(wf, cfg, tt.variant)
			require.NoError(t, err)
			require.Len(t, rows, tt.rows)
			assert.Equal(t, "pc", rows[0].Name)
			assert.Equal(t, tt.last, rows[len(rows)-1].Name)
			if tt.rows > 2 {
				assert.Equal(t, "x2", rows[3].Name, "registers sort numerically")
			}
		})
	}
}

func TestPrintSignals(t *testing.T) {
	cfg := fixture(t)
	wf, err := wave.Open(cfg.Wave.Path)
	require.NoError(t, err)
	rows, err := extractSignals(wf, cfg, "gdb")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printSignals(&out, wf, rows, -1))
	assert.Contains(t, out.String(), "time index 6 (t=60ps)")
	assert.Contains(t, out.String(), "0x00000094")
	assert.Contains(t, out.String(), "0x00000005")

	out.Reset()
	require.NoError(t, printSignals(&out, wf, rows, 0))
	assert.Contains(t, out.String(), "0x00000080")

	assert.Error(t, printSignals(&out, wf, rows, 99))
}

func TestPrintMatches(t *testing.T) {
	cfg := fixture(t)
	wf, err := wave.Open(cfg.Wave.Path)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printMatches(&out, wf, "**pc_wb_o"))
	assert.Contains(t, out.String(), signals.PCPath)

	assert.Error(t, printMatches(&out, wf, "**no_such_signal"))
}

func TestPrintMatches_HelpExamples(t *testing.T) {
	cfg := fixture(t)
	wf, err := wave.Open(cfg.Wave.Path)
	require.NoError(t, err)

	regs, err := wf.Hierarchy.Match("**register_file_i**")
	require.NoError(t, err)
	assert.Len(t, regs, 32)

	pc, err := wf.Hierarchy.Match("TOP.**.u_ibex_core.**pc*")
	require.NoError(t, err)
	require.Len(t, pc, 1)
	assert.Equal(t, signals.PCPath, pc[0].Path)

	single, err := wf.Hierarchy.Match("*register_file_i*")
	require.NoError(t, err)
	assert.Empty(t, single, "'*' does not cross scopes")
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "0xa", formatValue(wave.BitsValue("1010")))
	assert.Equal(t, "0x0000000a", formatValue(wave.BitsValue(strings.Repeat("0", 28)+"1010")))
	assert.Equal(t, "bx1", formatValue(wave.BitsValue("x1")))
	assert.Equal(t, "1.5", formatValue(wave.RealValue(1.5)))
	wide := "1" + strings.Repeat("0", 67)
	assert.Equal(t, "0x80000000000000000", formatValue(wave.BitsValue(wide)))
}

func TestInfoMarkdown(t *testing.T) {
	cfg := fixture(t)
	md, err := infoMarkdown(cfg, nil)
	require.NoError(t, err)

	assert.NotContains(t, md, "outside the ELF's memory")
	for _, want := range []string{"# sim.vcd", "## Waveform", "| Timescale | 1ps |", "## Mapping", "Resolves: pc has 6 changes.", "## ELF", "(_start)", "| 0 | `0x00000080` | 24 | 24 |", "## Replay", "retires 6 instructions"} {
		assert.Contains(t, md, want)
	}
}

func TestInfoMarkdown_FirstPCOutsideELF(t *testing.T) {
	cfg := fixture(t)
	cfg.ELF.Path = elftest.Write(t, elftest.Program(base, program[:2]...))
	cfg.Runtime.FirstPC = "0x90"
	md, err := infoMarkdown(cfg, nil)
	require.NoError(t, err)
	assert.Contains(t, md, "First pc `0x00000090` is outside the ELF's memory")
	assert.Contains(t, md, "retires 2 instructions")
}

func TestInfoMarkdown_Problems(t *testing.T) {
	cfg := fixture(t)
	cfg.Wave.Builtin = "ibex-raw"
	cfg.ELF.Path = ""
	md, err := infoMarkdown(cfg, nil)
	require.NoError(t, err)
	assert.Contains(t, md, "cannot drive a debugger: missing signals: x31")
	assert.Contains(t, md, "No ELF given.")
	assert.NotContains(t, md, "## Replay")

	cfg.Wave.Path = filepath.Join(t.TempDir(), "missing.vcd")
	_, err = infoMarkdown(cfg, nil)
	assert.Error(t, err)
}

func TestConfigSchema(t *testing.T) {
	bts, err := configSchema()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(bts, &doc))
	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"server", "wave", "elf", "runtime", "log"} {
		assert.Contains(t, props, key)
	}
	assert.Contains(t, string(bts), "poll_interval")
}

func TestTailFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dang-20250101-000000-debug.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, tailFile(context.Background(), &out, path, false))
	assert.Equal(t, "one\ntwo\n", out.String())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	out.Reset()
	require.NoError(t, tailFile(ctx, &out, path, true))
	assert.Contains(t, out.String(), "one")

	assert.Error(t, tailFile(context.Background(), &out, path+".missing", false))
}

// runCLI executes the command line in-process with an isolated home.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_Run(t *testing.T) {
	cfg := fixture(t)
	out, err := runCLI(t, "run", cfg.Wave.Path, "--elf", cfg.ELF.Path, "--max-steps", "2", "-q")
	require.NoError(t, err)
	assert.Contains(t, out, "stopped after 2 steps")
}

func TestCLI_Signals(t *testing.T) {
	cfg := fixture(t)
	out, err := runCLI(t, "signals", cfg.Wave.Path, "--variant", "misc", "--time-idx", "1", "-q")
	require.NoError(t, err)
	assert.Contains(t, out, "0x00000084")

	_, err = runCLI(t, "signals", cfg.Wave.Path, "--variant", "bogus", "-q")
	assert.ErrorContains(t, err, "unknown variant")
}

func TestCLI_BadConfig(t *testing.T) {
	cfg := fixture(t)
	_, err := runCLI(t, "info", cfg.Wave.Path, "--builtin", "nope", "-q")
	assert.ErrorIs(t, err, config.ErrInvalidWave)
}
