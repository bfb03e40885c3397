package stride

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/TFMV/walkdetector/internal/detector"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned by WriteWalks for unsupported formats.
var ErrUnknownFormat = errors.New("stride: unknown output format")

// Output formats understood by WriteWalks. Any other format containing a
// placeholder is used as a per-walk template.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// WalkReport is a snapshot of the walks known to a detector.
type WalkReport struct {
	FileWalks []detector.DetectedWalk `json:"file_walks" yaml:"file_walks"`
	DirWalks  []detector.DetectedWalk `json:"dir_walks" yaml:"dir_walks"`
}

// Snapshot builds a report from the current state of d.
func Snapshot(d *detector.Detector) WalkReport {
	return WalkReport{
		FileWalks: d.FileWalks(),
		DirWalks:  d.DirWalks(),
	}
}

// Empty reports whether no walk is known.
func (r WalkReport) Empty() bool {
	return len(r.FileWalks) == 0 && len(r.DirWalks) == 0
}

// WriteWalks renders report to w in the given format.
//
// Templates may use {path}, {depth} and {type}, and the quoted forms
// {"path"}, {"depth"} and {"type"}. The root is rendered as ".".
func WriteWalks(w io.Writer, format string, report WalkReport) error {
	switch format {
	case FormatText, "":
		return writeTemplate(w, "{type}\t{path}\t{depth}", report)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(nonNil(report))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(nonNil(report)); err != nil {
			return err
		}
		return enc.Close()
	}
	if !strings.Contains(format, "{") {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return writeTemplate(w, format, report)
}

func nonNil(r WalkReport) WalkReport {
	if r.FileWalks == nil {
		r.FileWalks = []detector.DetectedWalk{}
	}
	if r.DirWalks == nil {
		r.DirWalks = []detector.DetectedWalk{}
	}
	return r
}

func writeTemplate(w io.Writer, template string, report WalkReport) error {
	for _, t := range detector.WalkTypes {
		walks := report.FileWalks
		if t == detector.DirWalk {
			walks = report.DirWalks
		}
		for _, walk := range walks {
			if _, err := fmt.Fprintln(w, formatWalk(template, t, walk)); err != nil {
				return err
			}
		}
	}
	return nil
}

// formatWalk replaces placeholders in a template with values from the walk.
func formatWalk(template string, t detector.WalkType, walk detector.DetectedWalk) string {
	path := walk.Path
	if path == "" {
		path = "."
	}
	depth := strconv.Itoa(walk.Depth)

	str := template
	str = strings.ReplaceAll(str, "{path}", path)
	str = strings.ReplaceAll(str, "{depth}", depth)
	str = strings.ReplaceAll(str, "{type}", t.String())

	// Replace quoted versions
	str = strings.ReplaceAll(str, `{"path"}`, strconv.Quote(path))
	str = strings.ReplaceAll(str, `{"depth"}`, strconv.Quote(depth))
	str = strings.ReplaceAll(str, `{"type"}`, strconv.Quote(t.String()))
	return str
}
