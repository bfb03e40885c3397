package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	stride "github.com/TFMV/walkdetector/internal/walk"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var traceCmd = &cobra.Command{
	Use:   "trace <file|->",
	Short: "Feed a recorded access trace to the detector",
	Long: `Trace reads a recorded access trace, one event per line, and prints the
walks detected from it. Use - to read from standard input.

Trace format:
  # comment
  file <path>
  dir <path> <files> <dirs>
  dir <files> <dirs>          (listing of the root)

Examples:
  walkdetector trace accesses.txt
  walkdetector trace --format=yaml accesses.txt
  cat accesses.txt | walkdetector trace -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrace(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(traceCmd)
}

func runTrace(cmd *cobra.Command, name string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	d, err := newDetector(logger)
	if err != nil {
		return err
	}
	mode, err := errorMode()
	if err != nil {
		return err
	}

	var r io.Reader = cmd.InOrStdin()
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return fmt.Errorf("error opening trace: %w", err)
		}
		defer f.Close()
		r = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stats, err := stride.ReadTrace(ctx, r, d, mode)
	logger.Info("trace complete",
		zap.String("trace", name),
		zap.Int64("files", stats.FilesRead),
		zap.Int64("dirs", stats.DirsRead),
		zap.Int64("errors", stats.ErrorCount),
	)
	if err != nil && mode == stride.ErrorHandlingStop {
		return err
	}
	if err != nil {
		logger.Warn("trace finished with errors", zap.Error(err))
	}
	return writeReport(cmd.OutOrStdout(), d)
}
