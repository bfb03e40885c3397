package walkdetector_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/TFMV/walkdetector/walkdetector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceRoundTrip(t *testing.T) {
	var recorded bytes.Buffer
	live := walkdetector.New()
	sink := walkdetector.Tee(live, walkdetector.NewTraceWriter(&recorded))

	require.NoError(t, sink.DirRead("", 0, 2))
	for _, dir := range []string{"a", "b"} {
		require.NoError(t, sink.DirRead(dir, 2, 0))
		require.NoError(t, sink.FileRead(dir+"/1"))
		require.NoError(t, sink.FileRead(dir+"/2"))
	}

	replayed := walkdetector.New()
	stats, err := walkdetector.ReadTrace(context.Background(), &recorded, replayed, walkdetector.ErrorHandlingStop)
	require.NoError(t, err)
	assert.EqualValues(t, 4, stats.FilesRead)
	assert.EqualValues(t, 3, stats.DirsRead)

	assert.Equal(t, []walkdetector.DetectedWalk{{Path: "", Depth: 1}}, live.FileWalks())
	assert.Equal(t, live.FileWalks(), replayed.FileWalks())
	assert.Equal(t, live.DirWalks(), replayed.DirWalks())

	var out strings.Builder
	require.NoError(t, walkdetector.WriteWalks(&out, walkdetector.FormatText, walkdetector.Snapshot(replayed)))
	assert.Equal(t, "file\t.\t1\n", out.String())
}

func TestNewWithClock(t *testing.T) {
	epoch := time.Unix(1700000000, 0)
	d := walkdetector.NewWithClock(epoch)
	require.NoError(t, d.FileRead("a/x"))
	require.NoError(t, d.FileRead("a/y"))
	require.Len(t, d.FileWalks(), 1)

	d.SetNow(epoch.Add(walkdetector.DefaultGCTimeout))
	assert.Empty(t, d.FileWalks())
}

func TestNewDetectorRejectsInvalidOptions(t *testing.T) {
	opts := walkdetector.DefaultOptions()
	opts.MinDirWalkThreshold = 0
	_, err := walkdetector.NewDetector(opts)
	require.ErrorIs(t, err, walkdetector.ErrInvalidConfig)
}
