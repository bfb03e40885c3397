package stride

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TFMV/walkdetector/internal/repopath"
	"github.com/karrick/godirwalk"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// errHalt stops a traversal whose cause has already been recorded.
var errHalt = errors.New("stride: replay halted")

// ReplayOptions configures Replay.
type ReplayOptions struct {
	ErrorHandling  ErrorHandling
	Filter         FilterOptions
	MaxDepth       int  // Deepest directory level to descend into; 0 means unlimited
	FollowSymlinks bool // Whether to descend into symlinked directories
	NumWorkers     int  // Concurrent FileRead calls; defaults to the number of CPUs
	Logger         *zap.Logger
	Progress       ProgressFn
	ProgressEvery  time.Duration
}

// Replay traverses the tree below root the way a client enumerating it would,
// and reports the traversal to sink. Every directory produces a DirRead with
// its own child counts before any of its children; files are dispatched to a
// pool of workers that issue FileRead.
//
// With a single worker events are delivered in traversal order.
func Replay(ctx context.Context, root string, sink AccessSink, opts ReplayOptions) (Stats, error) {
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	root = filepath.Clean(root)

	logger.Debug("starting replay",
		zap.String("root", root),
		zap.Int("num_workers", opts.NumWorkers),
		zap.Int("max_depth", opts.MaxDepth),
		zap.Any("error_handling", opts.ErrorHandling),
	)

	stats := &Stats{}
	start := time.Now()
	stopProgress := stats.startProgress(opts.Progress, opts.ProgressEvery, start)

	var g *errgroup.Group
	walkCtx := ctx
	if opts.ErrorHandling == ErrorHandlingStop {
		g, walkCtx = errgroup.WithContext(ctx)
	} else {
		g = &errgroup.Group{}
	}
	g.SetLimit(opts.NumWorkers)

	var walkErrors []error
	var errLock sync.Mutex
	// fail records err according to the error handling mode. A non-nil
	// return value stops the traversal.
	fail := func(path string, err error) error {
		atomic.AddInt64(&stats.ErrorCount, 1)
		logger.Debug("replay error", zap.String("path", path), zap.Error(err))
		switch opts.ErrorHandling {
		case ErrorHandlingStop:
			return fmt.Errorf("path %q: %w", path, err)
		case ErrorHandlingSkip:
			return nil
		default:
			errLock.Lock()
			walkErrors = append(walkErrors, fmt.Errorf("path %q: %w", path, err))
			errLock.Unlock()
			return nil
		}
	}

	deliver := func(osPath string, rel repopath.Path) error {
		if walkCtx.Err() != nil {
			return nil
		}
		if err := sink.FileRead(rel.String()); err != nil {
			return fail(osPath, err)
		}
		atomic.AddInt64(&stats.FilesRead, 1)
		return nil
	}

	visit := func(osPath string, de *godirwalk.Dirent) error {
		if err := walkCtx.Err(); err != nil {
			logger.Warn("replay canceled", zap.String("path", osPath))
			return err
		}
		rel, err := repopath.FromOS(root, osPath)
		if err != nil {
			return fail(osPath, err)
		}

		isDir := de.IsDir()
		if !isDir && opts.FollowSymlinks && de.IsSymlink() {
			if isDir, err = de.IsDirOrSymlinkToDir(); err != nil {
				return fail(osPath, err)
			}
		}

		if !rel.IsRoot() && opts.Filter.skip(de.Name(), isDir) {
			if isDir {
				return filepath.SkipDir
			}
			return nil
		}

		if !isDir {
			if opts.NumWorkers == 1 {
				return deliver(osPath, rel)
			}
			g.Go(func() error { return deliver(osPath, rel) })
			return nil
		}

		if opts.MaxDepth > 0 && rel.Depth() > opts.MaxDepth {
			return filepath.SkipDir
		}
		files, dirs, err := countChildren(osPath, opts.Filter)
		if err != nil {
			return fail(osPath, err)
		}
		if files+dirs == 0 {
			atomic.AddInt64(&stats.EmptyDirs, 1)
		}
		// A listing always precedes the reads of its children.
		if err := sink.DirRead(rel.String(), files, dirs); err != nil {
			return fail(osPath, err)
		}
		atomic.AddInt64(&stats.DirsRead, 1)
		return nil
	}

	err := godirwalk.Walk(root, &godirwalk.Options{
		FollowSymbolicLinks: opts.FollowSymlinks,
		Callback: func(osPath string, de *godirwalk.Dirent) error {
			err := visit(osPath, de)
			if err == nil || errors.Is(err, filepath.SkipDir) {
				return err
			}
			errLock.Lock()
			walkErrors = append(walkErrors, err)
			errLock.Unlock()
			return errHalt
		},
		ErrorCallback: func(osPath string, err error) godirwalk.ErrorAction {
			if errors.Is(err, errHalt) || fail(osPath, err) != nil {
				return godirwalk.Halt
			}
			return godirwalk.SkipNode
		},
	})
	if err != nil && !errors.Is(err, errHalt) && !errors.Is(err, filepath.SkipDir) {
		errLock.Lock()
		walkErrors = append(walkErrors, err)
		errLock.Unlock()
	}
	if err := g.Wait(); err != nil {
		errLock.Lock()
		walkErrors = append(walkErrors, err)
		errLock.Unlock()
	}

	stopProgress()
	final := stats.snapshot(start)

	logger.Debug("replay finished",
		zap.String("root", root),
		zap.Int64("files", final.FilesRead),
		zap.Int64("dirs", final.DirsRead),
		zap.Int64("errors", final.ErrorCount),
	)
	return final, errors.Join(walkErrors...)
}

// CountChildren returns the number of files and directories directly inside
// dir. Symlinks count as files.
func CountChildren(dir string) (files, dirs int, err error) {
	return countChildren(dir, FilterOptions{IncludeHidden: true})
}

func countChildren(dir string, filter FilterOptions) (files, dirs int, err error) {
	dirents, err := godirwalk.ReadDirents(dir, nil)
	if err != nil {
		return 0, 0, err
	}
	for _, de := range dirents {
		isDir := de.IsDir()
		if filter.skip(de.Name(), isDir) {
			continue
		}
		if isDir {
			dirs++
		} else {
			files++
		}
	}
	return files, dirs, nil
}
