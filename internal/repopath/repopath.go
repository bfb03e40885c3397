// Package repopath validates and manipulates the slash-separated paths that
// are handed to the walk detector. Paths are relative to the watched root;
// the empty path denotes the root itself.
package repopath

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidPath is returned for paths that cannot be represented.
var ErrInvalidPath = errors.New("repopath: invalid path")

// Separator between path components.
const Separator = "/"

// Path is a validated, NFC-normalised relative path.
type Path struct {
	s string
}

// Root is the empty path.
var Root = Path{}

// Parse validates s and returns it as a Path.
func Parse(s string) (Path, error) {
	if s == "" {
		return Root, nil
	}
	if !utf8.ValidString(s) {
		return Root, fmt.Errorf("%w %q: not valid UTF-8", ErrInvalidPath, s)
	}
	// Filesystems hand us both composed and decomposed forms; only one of them
	// may end up in the tree.
	s = norm.NFC.String(s)
	if strings.HasPrefix(s, Separator) {
		return Root, fmt.Errorf("%w %q: must be relative", ErrInvalidPath, s)
	}
	if strings.HasSuffix(s, Separator) {
		return Root, fmt.Errorf("%w %q: trailing separator", ErrInvalidPath, s)
	}
	for _, c := range strings.Split(s, Separator) {
		if err := validateComponent(c); err != nil {
			return Root, fmt.Errorf("%w %q: %v", ErrInvalidPath, s, err)
		}
	}
	return Path{s: s}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// FromComponents joins already validated components.
func FromComponents(components []string) Path {
	return Path{s: strings.Join(components, Separator)}
}

// FromOS converts an OS path below root into a Path.
func FromOS(root, osPath string) (Path, error) {
	rel, err := filepath.Rel(root, osPath)
	if err != nil {
		return Root, fmt.Errorf("%w %q: %v", ErrInvalidPath, osPath, err)
	}
	if rel == "." {
		return Root, nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Root, fmt.Errorf("%w %q: outside of %q", ErrInvalidPath, osPath, root)
	}
	return Parse(filepath.ToSlash(rel))
}

func validateComponent(c string) error {
	switch c {
	case "":
		return errors.New("empty component")
	case ".", "..":
		return fmt.Errorf("component %q not allowed", c)
	}
	if strings.ContainsRune(c, 0) {
		return errors.New("component contains NUL byte")
	}
	return nil
}

// IsRoot reports whether p is the empty path.
func (p Path) IsRoot() bool {
	return p.s == ""
}

// String returns the slash-separated form.
func (p Path) String() string {
	return p.s
}

// Components splits p into its components. The root has none.
func (p Path) Components() []string {
	if p.s == "" {
		return nil
	}
	return strings.Split(p.s, Separator)
}

// Depth is the number of components.
func (p Path) Depth() int {
	if p.s == "" {
		return 0
	}
	return strings.Count(p.s, Separator) + 1
}

// Split returns the parent directory and the last component. The root has
// no parent, in which case ok is false.
func (p Path) Split() (parent Path, base string, ok bool) {
	if p.s == "" {
		return Root, "", false
	}
	i := strings.LastIndex(p.s, Separator)
	if i < 0 {
		return Root, p.s, true
	}
	return Path{s: p.s[:i]}, p.s[i+1:], true
}

// Parent returns the containing directory; the root is its own parent.
func (p Path) Parent() Path {
	parent, _, _ := p.Split()
	return parent
}

// Base returns the last component, or "" for the root.
func (p Path) Base() string {
	_, base, _ := p.Split()
	return base
}

// Join appends a single component.
func (p Path) Join(name string) (Path, error) {
	if err := validateComponent(name); err != nil {
		return Root, fmt.Errorf("%w %q: %v", ErrInvalidPath, name, err)
	}
	if strings.Contains(name, Separator) {
		return Root, fmt.Errorf("%w %q: component contains separator", ErrInvalidPath, name)
	}
	name = norm.NFC.String(name)
	if p.s == "" {
		return Path{s: name}, nil
	}
	return Path{s: p.s + Separator + name}, nil
}
