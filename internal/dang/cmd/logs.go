package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/nxadm/tail"
	"github.com/spf13/cobra"

	"dang/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs [file]",
	Short: "Print the newest dang log file",
	Long: `Print a log file written with DANG_LOG_TO_FILE=1 (or log.to_file).
Without an argument the newest dang-*-debug.log in log.dir is used.
Use --follow to keep printing new lines (like tail -f).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output (tail -f behavior)")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	path := ""
	if len(args) > 0 {
		path = args[0]
	} else if path, err = logging.Latest(cfg.Log.Dir); err != nil {
		return err
	}
	follow, _ := cmd.Flags().GetBool("follow")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return tailFile(ctx, cmd.OutOrStdout(), path, follow)
}

// tailFile copies the lines of path to w. With follow it keeps waiting for
// new lines until ctx is done.
func tailFile(ctx context.Context, w io.Writer, path string, follow bool) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer t.Cleanup()
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				return fmt.Errorf("read log: %w", line.Err)
			}
			fmt.Fprintln(w, line.Text)
		}
	}
}
