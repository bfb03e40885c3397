package stride

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/TFMV/walkdetector/internal/detector"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testReport() WalkReport {
	return WalkReport{
		FileWalks: []detector.DetectedWalk{{Path: "", Depth: 1}, {Path: "src/lib", Depth: 3}},
		DirWalks:  []detector.DetectedWalk{{Path: "docs", Depth: 0}},
	}
}

func TestWriteWalks(t *testing.T) {
	t.Run("Text", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, WriteWalks(&out, FormatText, testReport()))
		require.Equal(t, "file\t.\t1\nfile\tsrc/lib\t3\ndir\tdocs\t0\n", out.String())
	})

	t.Run("JSON", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, WriteWalks(&out, FormatJSON, testReport()))
		var got WalkReport
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		require.Equal(t, testReport(), got)
		require.Contains(t, out.String(), `"file_walks"`)
	})

	t.Run("YAML", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, WriteWalks(&out, FormatYAML, testReport()))
		var got WalkReport
		require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
		require.Equal(t, testReport(), got)
	})

	t.Run("EmptyJSON", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, WriteWalks(&out, FormatJSON, WalkReport{}))
		require.JSONEq(t, `{"file_walks": [], "dir_walks": []}`, out.String())
	})

	t.Run("Template", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, WriteWalks(&out, `prefetch {"path"} --depth={depth} # {type}`, testReport()))
		require.Equal(t, `prefetch "." --depth=1 # file
prefetch "src/lib" --depth=3 # file
prefetch "docs" --depth=0 # dir
`, out.String())
	})

	t.Run("Unknown", func(t *testing.T) {
		require.ErrorIs(t, WriteWalks(&bytes.Buffer{}, "xml", testReport()), ErrUnknownFormat)
	})
}

func TestSnapshot(t *testing.T) {
	d := detector.New()
	require.True(t, Snapshot(d).Empty())

	for _, path := range []string{"dir/a", "dir/b"} {
		require.NoError(t, d.FileRead(path))
	}
	report := Snapshot(d)
	require.False(t, report.Empty())
	require.Equal(t, []detector.DetectedWalk{{Path: "dir", Depth: 0}}, report.FileWalks)
	require.Empty(t, report.DirWalks)
}
