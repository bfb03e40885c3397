package stride

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/TFMV/walkdetector/internal/repopath"
	"github.com/fsnotify/fsnotify"
	"github.com/karrick/godirwalk"
	"go.uber.org/zap"
)

// WatchEvent represents a filesystem event type
type WatchEvent string

// Watch event types
const (
	EventCreate WatchEvent = "create"
	EventModify WatchEvent = "modify"
	EventChmod  WatchEvent = "chmod"
)

// WatchOptions defines options for turning live filesystem changes into
// read events.
type WatchOptions struct {
	// Events that count as a file access. If empty, create and modify are
	// used.
	Events []WatchEvent

	// Whether to watch subdirectories recursively
	Recursive bool

	Filter FilterOptions

	// Timeout duration (0 means no timeout)
	Timeout time.Duration

	Logger *zap.Logger

	// Called after every delivered event. Optional.
	OnEvent func(path string, isDir bool)
}

// Watch monitors root and reports activity below it to sink until ctx is
// done. Accessed files become FileRead events. Newly created directories
// become DirRead events carrying their current child counts and, in
// recursive mode, are watched as well.
//
// Sink errors are logged and do not stop the watch.
func Watch(ctx context.Context, root string, sink AccessSink, opts WatchOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	root = filepath.Clean(root)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := addWatches(watcher, root, opts, logger); err != nil {
		return err
	}

	ops := fsnotify.Create | fsnotify.Write
	if len(opts.Events) > 0 {
		ops = 0
		for _, e := range opts.Events {
			switch e {
			case EventCreate:
				ops |= fsnotify.Create
			case EventModify:
				ops |= fsnotify.Write
			case EventChmod:
				ops |= fsnotify.Chmod
			}
		}
	}

	logger.Info("watching", zap.String("root", root), zap.Bool("recursive", opts.Recursive))
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&ops == 0 {
				continue
			}
			handleWatchEvent(watcher, root, event, sink, opts, logger)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))

		case <-ctx.Done():
			return nil
		}
	}
}

func handleWatchEvent(watcher *fsnotify.Watcher, root string, event fsnotify.Event, sink AccessSink, opts WatchOptions, logger *zap.Logger) {
	rel, err := repopath.FromOS(root, event.Name)
	if err != nil || rel.IsRoot() {
		return
	}
	// Filtered directories are never watched, so only the base name needs
	// checking.
	dirent, err := godirwalk.NewDirent(event.Name)
	if err != nil {
		// Removed again before we got to it.
		logger.Debug("skipping vanished entry", zap.String("path", event.Name), zap.Error(err))
		return
	}
	isDir := dirent.IsDir()
	if opts.Filter.skip(dirent.Name(), isDir) {
		return
	}

	if isDir {
		if !event.Has(fsnotify.Create) {
			return
		}
		if opts.Recursive {
			if err := addWatches(watcher, event.Name, opts, logger); err != nil {
				logger.Warn("error watching new directory", zap.String("path", event.Name), zap.Error(err))
			}
		}
		files, dirs, err := countChildren(event.Name, opts.Filter)
		if err != nil {
			logger.Warn("error counting children", zap.String("path", event.Name), zap.Error(err))
			return
		}
		if err := sink.DirRead(rel.String(), files, dirs); err != nil {
			logger.Warn("dir read rejected", zap.String("path", rel.String()), zap.Error(err))
			return
		}
	} else if err := sink.FileRead(rel.String()); err != nil {
		logger.Warn("file read rejected", zap.String("path", rel.String()), zap.Error(err))
		return
	}

	logger.Debug("access", zap.String("path", rel.String()), zap.Bool("dir", isDir), zap.Stringer("op", event.Op))
	if opts.OnEvent != nil {
		opts.OnEvent(rel.String(), isDir)
	}
}

// addWatches watches dir, and all directories below it in recursive mode.
func addWatches(watcher *fsnotify.Watcher, dir string, opts WatchOptions, logger *zap.Logger) error {
	if !opts.Recursive {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("error watching directory %s: %w", dir, err)
		}
		return nil
	}
	err := godirwalk.Walk(dir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if !de.IsDir() {
				return nil
			}
			if path != dir && opts.Filter.skip(de.Name(), true) {
				return filepath.SkipDir
			}
			if err := watcher.Add(path); err != nil {
				logger.Warn("error watching directory", zap.String("path", path), zap.Error(err))
			}
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			logger.Warn("error walking directory tree", zap.String("path", path), zap.Error(err))
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		return fmt.Errorf("error walking directory tree: %w", err)
	}
	return nil
}
