package cmd

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/spf13/cobra"

	"dang/internal/gdb"
)

var serveCmd = &cobra.Command{
	Use:   "serve [waveform]",
	Short: "Serve a waveform replay to GDB",
	Long: `Load the waveform, signal mapping and ELF, then wait for GDB on
host:port. Debugging sessions run one at a time and each starts from the
program's first instruction.`,
	Example: `
dang serve sim.vcd --elf prog.elf --port 3333
riscv32-unknown-elf-gdb prog.elf -ex 'target remote :3333'
  `,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	addInputFlags(serveCmd)
	addServerFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	ln, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	slog.Info("Waiting for GDB", "addr", ln.Addr().String(), "elf", s.waver.ExecPath())
	fmt.Fprintf(cmd.ErrOrStderr(), "Listening on %s (target remote %s)\n", ln.Addr(), ln.Addr())

	return gdb.NewServer(s.waver).Serve(cmd.Context(), ln)
}
