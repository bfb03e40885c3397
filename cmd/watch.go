package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	stride "github.com/TFMV/walkdetector/internal/walk"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Detect walks from live filesystem activity",
	Long: `Watch monitors a directory tree, feeds created and modified files and new
directories to the walk detector, and periodically prints the walks it
currently knows about.

Examples:
  walkdetector watch /path/to/watch
  walkdetector watch --interval=10s --format="{type} {path} {depth}" /path/to/watch
  walkdetector watch --metrics-listen=:9090 /path/to/watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get the directory to watch
		var watchDir string
		if len(args) > 0 {
			watchDir = args[0]
		} else {
			var err error
			watchDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("error getting current directory: %w", err)
			}
		}
		return runWatch(cmd, watchDir)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	// Define flags for the watch command
	watchCmd.Flags().StringSlice("events", []string{}, "Events that count as a file access (create, modify, chmod)")
	watchCmd.Flags().Bool("recursive", true, "Watch subdirectories recursively")
	watchCmd.Flags().StringSlice("exclude-dir", []string{}, "Directory patterns to exclude")
	watchCmd.Flags().Bool("include-hidden", false, "Include hidden files and directories")
	watchCmd.Flags().Duration("interval", 5*time.Second, "How often to print the detected walks")
	watchCmd.Flags().Duration("timeout", 0, "Duration to watch before exiting (e.g., 1h, 30m)")
	watchCmd.Flags().String("metrics-listen", "", "Address to serve Prometheus metrics on (e.g., :9090)")

	for _, name := range []string{"events", "recursive", "exclude-dir", "include-hidden", "interval", "timeout", "metrics-listen"} {
		viper.BindPFlag("watch."+name, watchCmd.Flags().Lookup(name))
	}
}

func runWatch(cmd *cobra.Command, root string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	d, err := newDetector(logger)
	if err != nil {
		return err
	}

	// Convert string events to WatchEvent types
	var events []stride.WatchEvent
	for _, e := range viper.GetStringSlice("watch.events") {
		switch strings.ToLower(e) {
		case "create":
			events = append(events, stride.EventCreate)
		case "write", "modify":
			events = append(events, stride.EventModify)
		case "chmod":
			events = append(events, stride.EventChmod)
		default:
			return fmt.Errorf("unknown event type: %s", e)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if addr := viper.GetString("watch.metrics-listen"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failure", zap.Error(err))
			}
		}()
		defer server.Close()
		logger.Info("serving metrics", zap.String("address", addr))
	}

	// Only print when something happened since the last report.
	var dirty atomic.Bool
	out := cmd.OutOrStdout()
	interval := viper.GetDuration("watch.interval")
	if interval <= 0 {
		return fmt.Errorf("invalid interval: %s", interval)
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !dirty.Swap(false) {
					continue
				}
				if err := writeReport(out, d); err != nil {
					logger.Error("error writing walks", zap.Error(err))
				}
			}
		}
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s for activity...\nPress Ctrl+C to exit.\n", root)
	err = stride.Watch(ctx, root, d, stride.WatchOptions{
		Events:    events,
		Recursive: viper.GetBool("watch.recursive"),
		Filter: stride.FilterOptions{
			ExcludeDir:    viper.GetStringSlice("watch.exclude-dir"),
			IncludeHidden: viper.GetBool("watch.include-hidden"),
		},
		Timeout: viper.GetDuration("watch.timeout"),
		Logger:  logger.Named("watch"),
		OnEvent: func(string, bool) { dirty.Store(true) },
	})
	if err != nil {
		return fmt.Errorf("error watching directory: %w", err)
	}
	return writeReport(out, d)
}
