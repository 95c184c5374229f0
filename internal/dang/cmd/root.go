// Package cmd is the dang command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"dang/internal/config"
	dlog "dang/internal/dang/log"
)

var rootCmd = &cobra.Command{
	Use:   "dang [waveform]",
	Short: "Debug a RISC-V simulation waveform with GDB",
	Long: `Dang replays the execution of a RISC-V core recorded in a simulation
waveform and serves it to GDB over the remote serial protocol. The waveform
supplies the program counter and registers; the simulated ELF supplies memory
and symbols. Without a subcommand dang runs "serve".`,
	Example: `
# Serve a trace, then in gdb: target remote :9001
dang sim.vcd --elf prog.elf

# Trace the first 100 instructions without a debugger
dang run sim.vcd --elf prog.elf --max-steps 100

# List the register file signals in a waveform
dang signals sim.vcd --match '**register_file_i**'
  `,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.PersistentFlags().String("config", "", "Config file (default is .dang.yaml in the working or home directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Hide progress bars")

	addInputFlags(rootCmd)
	addServerFlags(rootCmd)
}

// addInputFlags registers the flags that select what is replayed.
func addInputFlags(c *cobra.Command) {
	c.Flags().String("elf", "", "ELF that was simulated")
	c.Flags().String("mapping", "", "YAML signal mapping file")
	c.Flags().String("builtin", "", "Builtin signal mapping (ibex, ibex-raw)")
	c.Flags().String("first-pc", "", "Hex address replay starts at (default: _start, main or the ELF entry)")
	c.Flags().Int("poll-interval", 0, "Steps between checks for debugger input while continuing")
	c.Flags().Int("cache-size", 0, "Decoded instructions kept in memory")
}

func addServerFlags(c *cobra.Command) {
	c.Flags().String("host", "", "Address to listen on")
	c.Flags().IntP("port", "p", 0, "Port to listen on (0 picks a free port)")
}

// setup loads the configuration for cmd and installs the logger. A
// positional waveform argument overrides wave.path.
func setup(cmd *cobra.Command, args []string) (*config.Config, error) {
	cwd, err := ResolveCwd(cmd)
	if err != nil {
		return nil, err
	}

	opts := []config.LoaderOption{config.WithFlags(cmd.Flags())}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	cfg, err := config.NewLoader(cwd, opts...).Load()
	if err != nil {
		return nil, err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Log.Level = "debug"
	}
	if len(args) > 0 {
		cfg.Wave.Path = args[0]
	}

	dlog.Setup(cfg.Log)
	return cfg, nil
}

// quiet reports whether progress output should be suppressed.
func quiet(cmd *cobra.Command) bool {
	q, _ := cmd.Flags().GetBool("quiet")
	return q || !term.IsTerminal(os.Stderr.Fd())
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	defer dlog.Close()

	// Bypass fang when output is being piped
	if !term.IsTerminal(os.Stdout.Fd()) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := rootCmd.ExecuteContext(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return 1
		}
		return 0
	}

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		return 1
	}
	return 0
}

func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		err := os.Chdir(cwd)
		if err != nil {
			return "", fmt.Errorf("failed to change directory: %v", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %v", err)
	}
	return cwd, nil
}
