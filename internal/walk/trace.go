package stride

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrMalformedTrace is returned for trace lines that cannot be parsed.
var ErrMalformedTrace = errors.New("stride: malformed trace")

// A trace is a line oriented record of read events:
//
//	# comment
//	file <path>
//	dir <path> <files> <dirs>
//	dir <files> <dirs>
//
// Paths are relative and slash-separated and may contain spaces, but no line
// breaks and no leading or trailing white space, which are trimmed when the
// line is read. TraceWriter rejects such paths. The last form lists the root.
const (
	traceFile = "file"
	traceDir  = "dir"
)

// ReadTrace feeds every event of the trace in r to sink, in order.
// Malformed lines and rejected events are handled according to mode.
func ReadTrace(ctx context.Context, r io.Reader, sink AccessSink, mode ErrorHandling) (Stats, error) {
	stats := &Stats{}
	start := time.Now()
	var errs []error

	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return stats.snapshot(start), err
		}
		err := replayTraceLine(scanner.Text(), sink, stats)
		if err == nil {
			continue
		}
		atomic.AddInt64(&stats.ErrorCount, 1)
		err = fmt.Errorf("line %d: %w", line, err)
		switch mode {
		case ErrorHandlingStop:
			return stats.snapshot(start), err
		case ErrorHandlingContinue:
			errs = append(errs, err)
		}
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, err)
	}
	return stats.snapshot(start), errors.Join(errs...)
}

func replayTraceLine(line string, sink AccessSink, stats *Stats) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	kind, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch kind {
	case traceFile:
		if rest == "" {
			return fmt.Errorf("%w: missing path", ErrMalformedTrace)
		}
		if err := sink.FileRead(rest); err != nil {
			return err
		}
		atomic.AddInt64(&stats.FilesRead, 1)
		return nil

	case traceDir:
		rest, dirs, err := cutCount(rest)
		if err != nil {
			return err
		}
		path, files, err := cutCount(rest)
		if err != nil {
			return err
		}
		if err := sink.DirRead(path, files, dirs); err != nil {
			return err
		}
		atomic.AddInt64(&stats.DirsRead, 1)
		if files+dirs == 0 {
			atomic.AddInt64(&stats.EmptyDirs, 1)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown event %q", ErrMalformedTrace, kind)
}

// cutCount splits the trailing count off s.
func cutCount(s string) (string, int, error) {
	i := strings.LastIndexAny(s, " \t")
	field := s[i+1:]
	if field == "" {
		return "", 0, fmt.Errorf("%w: missing count", ErrMalformedTrace)
	}
	n, err := strconv.Atoi(field)
	if err != nil {
		return "", 0, fmt.Errorf("%w: bad count %q", ErrMalformedTrace, field)
	}
	if i < 0 {
		return "", n, nil
	}
	return strings.TrimSpace(s[:i]), n, nil
}

// TraceWriter is an AccessSink that records events in the format read by
// ReadTrace. It is safe for concurrent use.
type TraceWriter struct {
	lock sync.Mutex
	w    io.Writer
}

// NewTraceWriter returns a TraceWriter writing to w.
func NewTraceWriter(w io.Writer) *TraceWriter {
	return &TraceWriter{w: w}
}

func (t *TraceWriter) FileRead(path string) error {
	if err := checkTracePath(path); err != nil {
		return err
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	_, err := fmt.Fprintf(t.w, "%s %s\n", traceFile, path)
	return err
}

func (t *TraceWriter) DirRead(path string, fileCount, dirCount int) error {
	if err := checkTracePath(path); err != nil {
		return err
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	var err error
	if path == "" {
		_, err = fmt.Fprintf(t.w, "%s %d %d\n", traceDir, fileCount, dirCount)
	} else {
		_, err = fmt.Fprintf(t.w, "%s %s %d %d\n", traceDir, path, fileCount, dirCount)
	}
	return err
}

// checkTracePath rejects paths that would not read back unchanged.
func checkTracePath(path string) error {
	if strings.ContainsAny(path, "\n\r") || strings.TrimSpace(path) != path {
		return fmt.Errorf("%w: path %q cannot be recorded", ErrMalformedTrace, path)
	}
	return nil
}

// Tee returns a sink that delivers every event to each of sinks in turn,
// stopping at the first error.
func Tee(sinks ...AccessSink) AccessSink {
	return teeSink(sinks)
}

type teeSink []AccessSink

func (t teeSink) FileRead(path string) error {
	for _, s := range t {
		if err := s.FileRead(path); err != nil {
			return err
		}
	}
	return nil
}

func (t teeSink) DirRead(path string, fileCount, dirCount int) error {
	for _, s := range t {
		if err := s.DirRead(path, fileCount, dirCount); err != nil {
			return err
		}
	}
	return nil
}
