package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	stride "github.com/TFMV/walkdetector/internal/walk"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var replayCmd = &cobra.Command{
	Use:   "replay [options] <path>",
	Short: "Replay a traversal of a directory tree and print the detected walks",
	Long: `Replay traverses a directory tree the way a client enumerating it would,
feeds every directory listing and file read to the walk detector, and prints
the walks it detected.

Examples:
  walkdetector replay /path/to/tree
  walkdetector replay --max-depth=2 --exclude-dir=.git,node_modules /path/to/tree
  walkdetector replay --record=trace.txt --format=json /path/to/tree`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplay(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringSlice("exclude-dir", []string{}, "Directory patterns to exclude")
	replayCmd.Flags().Bool("include-hidden", false, "Include hidden files and directories")
	replayCmd.Flags().IntP("max-depth", "d", 0, "Maximum directory depth to traverse")
	replayCmd.Flags().Bool("follow-symlinks", false, "Follow symbolic links")
	replayCmd.Flags().String("record", "", "Also write the events to this trace file")
	replayCmd.Flags().Bool("progress", false, "Show progress updates")

	viper.BindPFlag("replay.exclude-dir", replayCmd.Flags().Lookup("exclude-dir"))
	viper.BindPFlag("replay.include-hidden", replayCmd.Flags().Lookup("include-hidden"))
	viper.BindPFlag("replay.max-depth", replayCmd.Flags().Lookup("max-depth"))
	viper.BindPFlag("replay.follow-symlinks", replayCmd.Flags().Lookup("follow-symlinks"))
	viper.BindPFlag("replay.record", replayCmd.Flags().Lookup("record"))
	viper.BindPFlag("replay.progress", replayCmd.Flags().Lookup("progress"))
}

func runReplay(cmd *cobra.Command, root string) error {
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

	var sink stride.AccessSink = d
	if record := viper.GetString("replay.record"); record != "" {
		f, err := os.Create(record)
		if err != nil {
			return fmt.Errorf("error creating trace file: %w", err)
		}
		defer f.Close()
		sink = stride.Tee(stride.NewTraceWriter(f), d)
	}

	opts := stride.ReplayOptions{
		ErrorHandling: mode,
		Filter: stride.FilterOptions{
			ExcludeDir:    viper.GetStringSlice("replay.exclude-dir"),
			IncludeHidden: viper.GetBool("replay.include-hidden"),
		},
		MaxDepth:       viper.GetInt("replay.max-depth"),
		FollowSymlinks: viper.GetBool("replay.follow-symlinks"),
		NumWorkers:     viper.GetInt("workers"),
		Logger:         logger.Named("replay"),
	}

	// Set progress function if requested
	if viper.GetBool("replay.progress") {
		stderr := cmd.ErrOrStderr()
		opts.Progress = func(stats stride.Stats) {
			if viper.GetString("format") == stride.FormatJSON {
				jsonStats, _ := json.Marshal(stats)
				fmt.Fprintln(stderr, string(jsonStats))
			} else {
				fmt.Fprintf(stderr, "\rReplayed: %d files, %d dirs, %d errors, %.0f events/s",
					stats.FilesRead, stats.DirsRead, stats.ErrorCount, stats.EventsPerSec)
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stats, err := stride.Replay(ctx, root, sink, opts)
	if opts.Progress != nil {
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	logger.Info("replay complete",
		zap.String("root", root),
		zap.Int64("files", stats.FilesRead),
		zap.Int64("dirs", stats.DirsRead),
		zap.Int64("errors", stats.ErrorCount),
		zap.Duration("elapsed", stats.ElapsedTime),
	)
	if err != nil && mode == stride.ErrorHandlingStop {
		return err
	}
	if err != nil {
		logger.Warn("replay finished with errors", zap.Error(err))
	}
	return writeReport(cmd.OutOrStdout(), d)
}
