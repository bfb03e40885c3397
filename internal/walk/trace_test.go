package stride

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/TFMV/walkdetector/internal/detector"
	"github.com/stretchr/testify/require"
)

func TestReadTrace(t *testing.T) {
	trace := `
# listing of the root
dir 1 2
dir root/dir1 2 0
file root/dir1/a
file root/dir1/b

dir with space 3 4
file with space/x y
`
	var out bytes.Buffer
	stats, err := ReadTrace(context.Background(), strings.NewReader(trace), NewTraceWriter(&out), ErrorHandlingStop)
	require.NoError(t, err)
	require.Equal(t, `dir 1 2
dir root/dir1 2 0
file root/dir1/a
file root/dir1/b
dir with space 3 4
file with space/x y
`, out.String())
	require.EqualValues(t, 3, stats.FilesRead)
	require.EqualValues(t, 3, stats.DirsRead)
}

func TestReadTraceMalformed(t *testing.T) {
	for name, line := range map[string]string{
		"UnknownEvent": "stat a/b",
		"MissingPath":  "file",
		"MissingCount": "dir a 1",
		"BadCount":     "dir a x 1",
		"NoCounts":     "dir",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadTrace(context.Background(), strings.NewReader("file ok\n"+line+"\n"), newCountingSink(), ErrorHandlingStop)
			require.ErrorIs(t, err, ErrMalformedTrace)
			require.ErrorContains(t, err, "line 2")
		})
	}
}

func TestReadTraceErrorHandling(t *testing.T) {
	trace := "file a/x\nbogus\nfile a/y\n"

	t.Run("Continue", func(t *testing.T) {
		sink := newCountingSink()
		stats, err := ReadTrace(context.Background(), strings.NewReader(trace), sink, ErrorHandlingContinue)
		require.ErrorIs(t, err, ErrMalformedTrace)
		require.Len(t, sink.files, 2)
		require.EqualValues(t, 1, stats.ErrorCount)
	})

	t.Run("Skip", func(t *testing.T) {
		sink := newCountingSink()
		_, err := ReadTrace(context.Background(), strings.NewReader(trace), sink, ErrorHandlingSkip)
		require.NoError(t, err)
		require.Len(t, sink.files, 2)
	})

	t.Run("Stop", func(t *testing.T) {
		sink := newCountingSink()
		_, err := ReadTrace(context.Background(), strings.NewReader(trace), sink, ErrorHandlingStop)
		require.ErrorIs(t, err, ErrMalformedTrace)
		require.Len(t, sink.files, 1)
	})

	t.Run("RejectedByDetector", func(t *testing.T) {
		d := detector.New()
		_, err := ReadTrace(context.Background(), strings.NewReader("file /abs\ndir a -1 0\n"), d, ErrorHandlingContinue)
		require.ErrorIs(t, err, detector.ErrInvalidPath)
		require.ErrorIs(t, err, detector.ErrInvalidHint)
	})
}

func TestReadTraceCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadTrace(ctx, strings.NewReader("file a\n"), newCountingSink(), ErrorHandlingContinue)
	require.ErrorIs(t, err, context.Canceled)
}

func TestReadTraceDetectsWalk(t *testing.T) {
	trace := `file root/dir1/a
file root/dir1/b
file root/dir2/a
file root/dir2/b
`
	d := detector.New()
	_, err := ReadTrace(context.Background(), strings.NewReader(trace), d, ErrorHandlingStop)
	require.NoError(t, err)
	require.Equal(t, []detector.DetectedWalk{{Path: "root", Depth: 1}}, d.FileWalks())
}

func TestTee(t *testing.T) {
	errBoom := errors.New("boom")
	first, second := newCountingSink(), newCountingSink()
	sink := Tee(first, failingSink{AccessSink: second, path: "bad", err: errBoom})

	require.NoError(t, sink.FileRead("a"))
	require.NoError(t, sink.DirRead("d", 1, 1))
	require.ErrorIs(t, sink.FileRead("bad"), errBoom)

	require.Equal(t, map[string]int{"a": 1, "bad": 1}, first.files)
	require.Equal(t, map[string]int{"a": 1}, second.files)
	require.Equal(t, map[string]int{"d": 1}, second.dirs)
}

func TestTraceWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewTraceWriter(&buf)
	require.NoError(t, w.DirRead("", 1, 1))
	require.NoError(t, w.DirRead("with space", 2, 0))
	require.NoError(t, w.FileRead("with space/a b"))
	require.NoError(t, w.FileRead("tab\tinside"))

	for _, path := range []string{" leading", "trailing ", "new\nline", "carriage\rreturn", "dir/\t"} {
		require.ErrorIs(t, w.FileRead(path), ErrMalformedTrace, "%q", path)
		require.ErrorIs(t, w.DirRead(path, 1, 0), ErrMalformedTrace, "%q", path)
	}

	sink := newCountingSink()
	stats, err := ReadTrace(context.Background(), &buf, sink, ErrorHandlingStop)
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.FilesRead)
	require.EqualValues(t, 2, stats.DirsRead)
	require.Equal(t, map[string]int{"with space/a b": 1, "tab\tinside": 1}, sink.files)
	require.Equal(t, map[string]int{"": 1, "with space": 1}, sink.dirs)
}
