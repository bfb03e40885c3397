// Package stride turns filesystem activity into the read events consumed by
// a walk detector: directory traversals, live fsnotify events, and recorded
// access traces.
package stride

import (
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AccessSink receives read events. Paths are slash-separated and relative to
// the traversed root; the empty path is the root itself. *detector.Detector
// satisfies this interface.
type AccessSink interface {
	FileRead(path string) error
	DirRead(path string, fileCount, dirCount int) error
}

// --------------------------------------------------------------------------
// Progress monitoring
// --------------------------------------------------------------------------

// ProgressFn is called periodically with event statistics.
// Implementations must be thread-safe as this may be called concurrently.
type ProgressFn func(stats Stats)

// Stats holds event statistics that are updated atomically while a source
// is running.
type Stats struct {
	FilesRead    int64         // Number of file events delivered
	DirsRead     int64         // Number of directory events delivered
	EmptyDirs    int64         // Number of directories without children
	ErrorCount   int64         // Number of errors encountered
	ElapsedTime  time.Duration // Total time elapsed
	EventsPerSec float64       // Delivery rate
}

func (s *Stats) snapshot(start time.Time) Stats {
	out := Stats{
		FilesRead:   atomic.LoadInt64(&s.FilesRead),
		DirsRead:    atomic.LoadInt64(&s.DirsRead),
		EmptyDirs:   atomic.LoadInt64(&s.EmptyDirs),
		ErrorCount:  atomic.LoadInt64(&s.ErrorCount),
		ElapsedTime: time.Since(start),
	}
	if sec := out.ElapsedTime.Seconds(); sec > 0 {
		out.EventsPerSec = float64(out.FilesRead+out.DirsRead) / sec
	}
	return out
}

// startProgress calls fn every interval until the returned function is
// called, which also delivers a final update.
func (s *Stats) startProgress(fn ProgressFn, interval time.Duration, start time.Time) (stop func()) {
	if fn == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn(s.snapshot(start))
			}
		}
	}()
	return func() {
		close(done)
		<-finished
		fn(s.snapshot(start))
	}
}

// DefaultProgressInterval is how often ProgressFn is called when no interval
// is given.
const DefaultProgressInterval = 500 * time.Millisecond

// --------------------------------------------------------------------------
// Configuration types
// --------------------------------------------------------------------------

// ErrorHandling defines how errors are handled while producing events.
type ErrorHandling int

const (
	ErrorHandlingContinue ErrorHandling = iota // Collect errors and keep going
	ErrorHandlingStop                          // Stop on first error
	ErrorHandlingSkip                          // Drop failing paths silently
)

// ParseErrorHandling maps "continue", "stop" and "skip" to their modes.
func ParseErrorHandling(s string) (ErrorHandling, bool) {
	switch strings.ToLower(s) {
	case "continue", "":
		return ErrorHandlingContinue, true
	case "stop":
		return ErrorHandlingStop, true
	case "skip":
		return ErrorHandlingSkip, true
	}
	return ErrorHandlingContinue, false
}

// LogLevel defines the verbosity of logging.
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// ParseLogLevel maps a level name to a LogLevel.
func ParseLogLevel(s string) (LogLevel, bool) {
	switch strings.ToLower(s) {
	case "error":
		return LogLevelError, true
	case "warn", "warning":
		return LogLevelWarn, true
	case "info", "":
		return LogLevelInfo, true
	case "debug":
		return LogLevelDebug, true
	}
	return LogLevelInfo, false
}

// NewLogger creates a zap logger with the specified log level.
func NewLogger(level LogLevel) *zap.Logger {
	var config zap.Config

	switch level {
	case LogLevelError:
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	case LogLevelWarn:
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case LogLevelDebug:
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// FilterOptions selects which entries of a tree produce events.
type FilterOptions struct {
	ExcludeDir    []string // Directory name patterns to exclude
	IncludeHidden bool     // Whether to include dot files and directories
}

// skip reports whether the entry called name is filtered out.
func (f FilterOptions) skip(name string, isDir bool) bool {
	if !f.IncludeHidden && isHidden(name) {
		return true
	}
	if isDir {
		for _, exclude := range f.ExcludeDir {
			if matched, _ := filepath.Match(exclude, name); matched {
				return true
			}
		}
	}
	return false
}

// isHidden checks if a file is hidden
func isHidden(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
