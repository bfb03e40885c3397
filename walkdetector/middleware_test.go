package walkdetector_test

import (
	"testing"
	"time"

	"github.com/TFMV/walkdetector/walkdetector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggingSink(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d := walkdetector.New()
	sink := walkdetector.Chain(d, walkdetector.LoggingSink(zap.New(core)))

	require.NoError(t, sink.DirRead("a", 2, 0))
	require.NoError(t, sink.FileRead("a/x"))
	require.NoError(t, sink.FileRead("a/y"))
	assert.Equal(t, []walkdetector.DetectedWalk{{Path: "a", Depth: 0}}, d.FileWalks())

	debug := logs.FilterLevelExact(zapcore.DebugLevel)
	require.Equal(t, 1, debug.FilterMessage("dir read").Len())
	dir := debug.FilterMessage("dir read").All()[0].ContextMap()
	assert.Equal(t, "a", dir["path"])
	assert.EqualValues(t, 2, dir["files"])
	assert.EqualValues(t, 0, dir["dirs"])
	assert.Equal(t, 2, debug.FilterMessage("file read").Len())

	t.Run("Rejected", func(t *testing.T) {
		err := sink.FileRead("/abs")
		require.ErrorIs(t, err, walkdetector.ErrInvalidPath)
		err = sink.DirRead("b", -1, 0)
		require.ErrorIs(t, err, walkdetector.ErrInvalidHint)

		errs := logs.FilterLevelExact(zapcore.ErrorLevel)
		assert.Equal(t, 1, errs.FilterMessage("error recording file read").FilterField(zap.String("path", "/abs")).Len())
		assert.Equal(t, 1, errs.FilterMessage("error recording dir read").FilterField(zap.String("path", "b")).Len())
	})
}

type slowSink struct {
	walkdetector.AccessSink
	delay time.Duration
}

func (s slowSink) FileRead(path string) error {
	time.Sleep(s.delay)
	return s.AccessSink.FileRead(path)
}

func TestTimingSink(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	d := walkdetector.New()
	sink := walkdetector.Chain(slowSink{AccessSink: d, delay: 20 * time.Millisecond},
		walkdetector.TimingSink(zap.New(core), 5*time.Millisecond))

	require.NoError(t, sink.DirRead("a", 1, 0))
	require.NoError(t, sink.FileRead("a/x"))

	slow := logs.FilterMessage("slow event").All()
	require.Len(t, slow, 1)
	assert.Equal(t, "a/x", slow[0].ContextMap()["path"])
}

func TestChainOrder(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	outer := zap.New(core).Named("outer")
	inner := zap.New(core).Named("inner")
	sink := walkdetector.Chain(walkdetector.New(),
		walkdetector.LoggingSink(outer),
		walkdetector.LoggingSink(inner),
	)

	require.NoError(t, sink.FileRead("x"))
	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "outer", entries[0].LoggerName)
	assert.Equal(t, "inner", entries[1].LoggerName)
}
