// Package detector infers directory walks from a stream of individual file
// and directory read events, so that a virtual filesystem can prefetch ahead
// of a client that enumerates a subtree.
package detector

import (
	"fmt"
)

// WalkType selects one of the two independently tracked namespaces of walk
// state kept on the same tree.
type WalkType int

const (
	// FileWalk tracks reads of file contents.
	FileWalk WalkType = iota
	// DirWalk tracks directory listings.
	DirWalk

	walkTypeCount = 2
)

// WalkTypes lists every walk type, in a stable order.
var WalkTypes = [...]WalkType{FileWalk, DirWalk}

func (t WalkType) String() string {
	switch t {
	case FileWalk:
		return "file"
	case DirWalk:
		return "dir"
	default:
		return fmt.Sprintf("WalkType(%d)", int(t))
	}
}

// coveringTypes are the walk types whose walks make activity of type t
// redundant. Reading file contents implies listing the directories on the
// way, so file walks cover directory activity but not the other way around.
func (t WalkType) coveringTypes() []WalkType {
	if t == DirWalk {
		return []WalkType{DirWalk, FileWalk}
	}
	return []WalkType{FileWalk}
}

// coveredTypes is the inverse of coveringTypes.
func (t WalkType) coveredTypes() []WalkType {
	if t == FileWalk {
		return []WalkType{FileWalk, DirWalk}
	}
	return []WalkType{DirWalk}
}

// Walk is the extent of a detected walk: the node holding it plus Depth
// additional levels of descendants.
type Walk struct {
	Depth int
}

// contains reports whether a walk at distance dist below w, with depth
// depth, is entirely covered by w.
func (w Walk) contains(dist, depth int) bool {
	return w.Depth >= dist+depth
}

// DetectedWalk is a walk together with the path of the node holding it.
type DetectedWalk struct {
	Path  string `json:"path" yaml:"path"`
	Depth int    `json:"depth" yaml:"depth"`
}

func (w DetectedWalk) String() string {
	if w.Path == "" {
		return fmt.Sprintf("<root> (depth %d)", w.Depth)
	}
	return fmt.Sprintf("%s (depth %d)", w.Path, w.Depth)
}

// DirHint is the child count of a directory, as last reported by the
// filesystem layer.
type DirHint struct {
	Files int
	Dirs  int
}
