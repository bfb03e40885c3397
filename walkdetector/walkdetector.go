package walkdetector

import (
	"context"
	"io"
	"time"

	"github.com/TFMV/walkdetector/internal/detector"
	internal "github.com/TFMV/walkdetector/internal/walk"
	"go.uber.org/zap"
)

// Re-export the types from the internal packages
type (
	// Detector infers directory walks from read events.
	Detector = detector.Detector
	// Options configures a Detector.
	Options = detector.Options
	// WalkType selects file content or directory listing walks.
	WalkType = detector.WalkType
	// Walk is the depth of a walk, relative to the directory holding it.
	Walk = detector.Walk
	// DetectedWalk is a walk together with its directory.
	DetectedWalk = detector.DetectedWalk
	// Containment describes the walk covering a queried path.
	Containment = detector.Containment
	// Clock is the time source used for garbage collection.
	Clock = detector.Clock
	// FixedClock always returns the same instant.
	FixedClock = detector.FixedClock

	// AccessSink receives read events.
	AccessSink = internal.AccessSink
	// Stats holds event statistics.
	Stats = internal.Stats
	// ProgressFn is called periodically with event statistics.
	ProgressFn = internal.ProgressFn
	// ErrorHandling defines how errors are handled while producing events.
	ErrorHandling = internal.ErrorHandling
	// LogLevel defines the verbosity of logging.
	LogLevel = internal.LogLevel
	// FilterOptions selects which entries of a tree produce events.
	FilterOptions = internal.FilterOptions
	// ReplayOptions configures Replay.
	ReplayOptions = internal.ReplayOptions
	// WatchEvent is a filesystem event type counted as an access.
	WatchEvent = internal.WatchEvent
	// WatchOptions configures Watch.
	WatchOptions = internal.WatchOptions
	// WalkReport is a snapshot of the walks known to a detector.
	WalkReport = internal.WalkReport
	// TraceWriter records events in trace format.
	TraceWriter = internal.TraceWriter
)

// Re-export all the constants
const (
	FileWalk = detector.FileWalk
	DirWalk  = detector.DirWalk

	DefaultMinDirWalkThreshold = detector.DefaultMinDirWalkThreshold
	DefaultGCInterval          = detector.DefaultGCInterval
	DefaultGCTimeout           = detector.DefaultGCTimeout

	// Error handling modes
	ErrorHandlingContinue = internal.ErrorHandlingContinue
	ErrorHandlingStop     = internal.ErrorHandlingStop
	ErrorHandlingSkip     = internal.ErrorHandlingSkip

	// Log levels
	LogLevelError = internal.LogLevelError
	LogLevelWarn  = internal.LogLevelWarn
	LogLevelInfo  = internal.LogLevelInfo
	LogLevelDebug = internal.LogLevelDebug

	// Watch event constants
	EventCreate = internal.EventCreate
	EventModify = internal.EventModify
	EventChmod  = internal.EventChmod

	// Output formats
	FormatText = internal.FormatText
	FormatJSON = internal.FormatJSON
	FormatYAML = internal.FormatYAML
)

// Re-export the sentinel errors
var (
	ErrInvalidPath    = detector.ErrInvalidPath
	ErrInvalidHint    = detector.ErrInvalidHint
	ErrInvalidConfig  = detector.ErrInvalidConfig
	ErrMalformedTrace = internal.ErrMalformedTrace
	ErrUnknownFormat  = internal.ErrUnknownFormat
)

// New returns a Detector with the default options.
func New() *Detector {
	return detector.New()
}

// NewDetector returns a Detector configured by opts.
func NewDetector(opts Options) (*Detector, error) {
	return detector.NewDetector(opts)
}

// DefaultOptions returns the options used by New.
func DefaultOptions() Options {
	return detector.DefaultOptions()
}

// NewLogger creates a zap logger with the specified log level.
func NewLogger(level LogLevel) *zap.Logger {
	return internal.NewLogger(level)
}

// Replay traverses the tree below root and reports it to sink.
func Replay(ctx context.Context, root string, sink AccessSink, opts ReplayOptions) (Stats, error) {
	return internal.Replay(ctx, root, sink, opts)
}

// Watch reports live activity below root to sink until ctx is done.
func Watch(ctx context.Context, root string, sink AccessSink, opts WatchOptions) error {
	return internal.Watch(ctx, root, sink, opts)
}

// ReadTrace feeds every event of a recorded trace to sink.
func ReadTrace(ctx context.Context, r io.Reader, sink AccessSink, mode ErrorHandling) (Stats, error) {
	return internal.ReadTrace(ctx, r, sink, mode)
}

// NewTraceWriter returns a sink recording events to w in trace format.
func NewTraceWriter(w io.Writer) *TraceWriter {
	return internal.NewTraceWriter(w)
}

// Tee returns a sink that delivers every event to each of sinks.
func Tee(sinks ...AccessSink) AccessSink {
	return internal.Tee(sinks...)
}

// CountChildren returns the number of files and directories directly in dir.
func CountChildren(dir string) (files, dirs int, err error) {
	return internal.CountChildren(dir)
}

// Snapshot builds a report from the current state of d.
func Snapshot(d *Detector) WalkReport {
	return internal.Snapshot(d)
}

// WriteWalks renders report to w.
func WriteWalks(w io.Writer, format string, report WalkReport) error {
	return internal.WriteWalks(w, format, report)
}

// NewWithClock is a convenience for tests and simulations that need
// deterministic garbage collection.
func NewWithClock(now time.Time) *Detector {
	d := detector.New()
	d.SetNow(now)
	return d
}
