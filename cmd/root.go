package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/TFMV/walkdetector/internal/detector"
	stride "github.com/TFMV/walkdetector/internal/walk"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	version = "0.1.0"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "walkdetector",
	Short: "Detect directory walks from file and directory reads",
	Long: `walkdetector watches a stream of file and directory read events and
infers which subtrees are being walked, and how deep, so that a virtual
filesystem can prefetch ahead of the client.

Events can come from a replayed directory traversal, from live filesystem
activity, or from a recorded access trace.`,
	Version:      version,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default is $HOME/.walkdetector.yaml)")
	flags.Int("threshold", detector.DefaultMinDirWalkThreshold, "Number of walked children that make a directory walked")
	flags.Duration("gc-interval", detector.DefaultGCInterval, "Minimum time between garbage collection sweeps")
	flags.Duration("gc-timeout", detector.DefaultGCTimeout, "Idle time after which walk state is forgotten")
	flags.String("log-level", "info", "Log level (error|warn|info|debug)")
	flags.String("format", stride.FormatText, `Output format (text|json|yaml) or a template using {path}, {depth} and {type}`)
	flags.IntP("workers", "w", 0, "Number of concurrent workers (default is the number of CPUs)")
	flags.String("error-mode", "continue", "Error handling mode (continue|stop|skip)")

	// Bind flags to viper
	for _, name := range []string{"threshold", "gc-interval", "gc-timeout", "log-level", "format", "workers", "error-mode"} {
		viper.BindPFlag(name, flags.Lookup(name))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		// Search config in home directory with name ".walkdetector" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".walkdetector")
	}

	viper.SetEnvPrefix("walkdetector")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the logger selected by the log-level setting.
func newLogger() (*zap.Logger, error) {
	levelName := viper.GetString("log-level")
	level, ok := stride.ParseLogLevel(levelName)
	if !ok {
		return nil, fmt.Errorf("invalid log-level: %s", levelName)
	}
	return stride.NewLogger(level), nil
}

// newDetector builds a detector from the threshold and gc settings.
func newDetector(logger *zap.Logger) (*detector.Detector, error) {
	return detector.NewDetector(detector.Options{
		MinDirWalkThreshold: viper.GetInt("threshold"),
		GCInterval:          viper.GetDuration("gc-interval"),
		GCTimeout:           viper.GetDuration("gc-timeout"),
		Logger:              logger.Named("detector"),
	})
}

func errorMode() (stride.ErrorHandling, error) {
	mode, ok := stride.ParseErrorHandling(viper.GetString("error-mode"))
	if !ok {
		return mode, fmt.Errorf("invalid error-mode: %s", viper.GetString("error-mode"))
	}
	return mode, nil
}

func writeReport(w io.Writer, d *detector.Detector) error {
	return stride.WriteWalks(w, viper.GetString("format"), stride.Snapshot(d))
}
