package walkdetector

import (
	"time"

	"go.uber.org/zap"
)

// SinkMiddleware wraps an AccessSink.
type SinkMiddleware func(next AccessSink) AccessSink

// Chain applies middlewares to sink, the first one outermost.
func Chain(sink AccessSink, middlewares ...SinkMiddleware) AccessSink {
	for i := len(middlewares) - 1; i >= 0; i-- {
		sink = middlewares[i](sink)
	}
	return sink
}

type sinkFuncs struct {
	fileRead func(path string) error
	dirRead  func(path string, fileCount, dirCount int) error
}

func (s sinkFuncs) FileRead(path string) error { return s.fileRead(path) }

func (s sinkFuncs) DirRead(path string, fileCount, dirCount int) error {
	return s.dirRead(path, fileCount, dirCount)
}

// LoggingSink creates a middleware that logs every event, and every event
// rejected by the wrapped sink.
func LoggingSink(logger *zap.Logger) SinkMiddleware {
	return func(next AccessSink) AccessSink {
		return sinkFuncs{
			fileRead: func(path string) error {
				logger.Debug("file read", zap.String("path", path))
				err := next.FileRead(path)
				if err != nil {
					logger.Error("error recording file read",
						zap.String("path", path),
						zap.Error(err),
					)
				}
				return err
			},
			dirRead: func(path string, fileCount, dirCount int) error {
				logger.Debug("dir read",
					zap.String("path", path),
					zap.Int("files", fileCount),
					zap.Int("dirs", dirCount),
				)
				err := next.DirRead(path, fileCount, dirCount)
				if err != nil {
					logger.Error("error recording dir read",
						zap.String("path", path),
						zap.Error(err),
					)
				}
				return err
			},
		}
	}
}

// TimingSink creates a middleware that warns about events taking longer
// than threshold to record.
func TimingSink(logger *zap.Logger, threshold time.Duration) SinkMiddleware {
	return func(next AccessSink) AccessSink {
		check := func(path string, start time.Time) {
			if d := time.Since(start); d > threshold {
				logger.Warn("slow event", zap.String("path", path), zap.Duration("duration", d))
			}
		}
		return sinkFuncs{
			fileRead: func(path string) error {
				defer check(path, time.Now())
				return next.FileRead(path)
			},
			dirRead: func(path string, fileCount, dirCount int) error {
				defer check(path, time.Now())
				return next.DirRead(path, fileCount, dirCount)
			},
		}
	}
}
