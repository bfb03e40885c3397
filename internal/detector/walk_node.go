package detector

import (
	"sort"
	"time"

	"github.com/TFMV/walkdetector/internal/repopath"
)

// typeState is the per-WalkType state kept by a WalkNode.
type typeState struct {
	walk *Walk

	// Children read directly in this directory (file names for FileWalk,
	// listed subdirectories for DirWalk).
	read map[string]struct{}

	// Children whose activity reaches further than this node's current
	// boundary, mapped to the furthest depth reached, measured from this
	// node.
	advanced map[string]int
}

func (s *typeState) addRead(name string) bool {
	if _, ok := s.read[name]; ok {
		return false
	}
	if s.read == nil {
		s.read = map[string]struct{}{}
	}
	s.read[name] = struct{}{}
	return true
}

func (s *typeState) markAdvanced(name string, reach int) {
	if s.advanced == nil {
		s.advanced = map[string]int{}
	}
	if old, ok := s.advanced[name]; !ok || reach > old {
		s.advanced[name] = reach
	}
}

func (s *typeState) forgetChild(name string) {
	delete(s.read, name)
	delete(s.advanced, name)
}

// WalkNode is a node of the walk detection tree, keyed by path component.
// It is not safe for concurrent use; Detector provides the locking.
type WalkNode struct {
	children   map[string]*WalkNode
	state      [walkTypeCount]typeState
	hint       *DirHint
	lastAccess time.Time
}

// NewWalkNode returns an empty node.
func NewWalkNode() *WalkNode {
	return &WalkNode{}
}

func (n *WalkNode) child(name string) *WalkNode {
	return n.children[name]
}

func (n *WalkNode) getOrCreateChild(name string) *WalkNode {
	if c, ok := n.children[name]; ok {
		return c
	}
	if n.children == nil {
		n.children = map[string]*WalkNode{}
	}
	c := &WalkNode{}
	n.children[name] = c
	return c
}

func (n *WalkNode) getNode(components []string) *WalkNode {
	node := n
	for _, name := range components {
		if node = node.child(name); node == nil {
			return nil
		}
	}
	return node
}

// nodesAlong returns the nodes for every prefix of components, starting with
// n itself. Entries for nodes that do not exist are nil.
func (n *WalkNode) nodesAlong(components []string) []*WalkNode {
	nodes := make([]*WalkNode, len(components)+1)
	nodes[0] = n
	for i, name := range components {
		if nodes[i] == nil {
			break
		}
		nodes[i+1] = nodes[i].child(name)
	}
	return nodes
}

// createAlong is like nodesAlong, but creates missing nodes and marks all
// of them as accessed.
func (n *WalkNode) createAlong(components []string, now time.Time) []*WalkNode {
	nodes := make([]*WalkNode, len(components)+1)
	nodes[0] = n
	n.touch(now)
	for i, name := range components {
		nodes[i+1] = nodes[i].getOrCreateChild(name)
		nodes[i+1].touch(now)
	}
	return nodes
}

func (n *WalkNode) touch(now time.Time) {
	if now.After(n.lastAccess) {
		n.lastAccess = now
	}
}

// WalkFor returns the walk of type t held by this node.
func (n *WalkNode) WalkFor(t WalkType) (Walk, bool) {
	if w := n.state[t].walk; w != nil {
		return *w, true
	}
	return Walk{}, false
}

// Hint returns the child counts last reported for this directory.
func (n *WalkNode) Hint() (DirHint, bool) {
	if n.hint == nil {
		return DirHint{}, false
	}
	return *n.hint, true
}

func (n *WalkNode) setHint(h DirHint) {
	n.hint = &h
}

// containedAt reports whether a walk of type t with the given depth, placed
// dist levels below n, is already covered by a walk held by n.
func (n *WalkNode) containedAt(t WalkType, dist, depth int) bool {
	for _, u := range t.coveringTypes() {
		if w := n.state[u].walk; w != nil && w.contains(dist, depth) {
			return true
		}
	}
	return false
}

// holdsCoveringWalk reports whether n holds any walk that covers activity
// of type t.
func (n *WalkNode) holdsCoveringWalk(t WalkType) bool {
	for _, u := range t.coveringTypes() {
		if n.state[u].walk != nil {
			return true
		}
	}
	return false
}

// InsertWalk stores walk at path, unless a walk on the way already contains
// it. Walks and advanced markers below path that become contained are
// cleared. It reports whether the tree changed.
func (n *WalkNode) InsertWalk(t WalkType, path repopath.Path, walk Walk) bool {
	return n.insertWalk(t, path.Components(), walk)
}

func (n *WalkNode) insertWalk(t WalkType, components []string, walk Walk) bool {
	node := n
	for i := 0; node != nil; i++ {
		if node.containedAt(t, len(components)-i, walk.Depth) {
			return false
		}
		if i == len(components) {
			break
		}
		node = node.child(components[i])
	}

	node = n
	for _, name := range components {
		node = node.getOrCreateChild(name)
	}
	w := walk
	node.state[t].walk = &w
	node.state[t].read = nil
	node.clearContained(t, walk.Depth, 0)
	return true
}

// clearContained removes the walks and advanced markers dist levels below
// a freshly inserted walk of type t that the new walk makes redundant.
func (n *WalkNode) clearContained(t WalkType, depth, dist int) {
	bound := Walk{Depth: depth}
	for _, u := range t.coveredTypes() {
		s := &n.state[u]
		if dist > 0 || u != t {
			if s.walk != nil && bound.contains(dist, s.walk.Depth) {
				s.walk = nil
			}
		}
		for name, reach := range s.advanced {
			if bound.contains(dist, reach) {
				delete(s.advanced, name)
			}
		}
		if bound.contains(dist, 0) {
			s.read = nil
		}
	}
	// Nothing deeper than depth levels can be contained.
	if dist >= depth {
		return
	}
	for _, c := range n.children {
		c.clearContained(t, depth, dist+1)
	}
}

// GetWalk returns the walk stored exactly at path. Ancestors are not
// consulted.
func (n *WalkNode) GetWalk(t WalkType, path repopath.Path) (Walk, bool) {
	node := n.getNode(path.Components())
	if node == nil {
		return Walk{}, false
	}
	return node.WalkFor(t)
}

// GetContainingNode returns the deepest node along path holding a walk of
// type t that reaches path, together with the part of path below it.
func (n *WalkNode) GetContainingNode(t WalkType, path repopath.Path) (*WalkNode, repopath.Path, bool) {
	components := path.Components()
	node, at := n.containingNode(t, components)
	if node == nil {
		return nil, repopath.Root, false
	}
	return node, repopath.FromComponents(components[at:]), true
}

func (n *WalkNode) containingNode(t WalkType, components []string) (*WalkNode, int) {
	var found *WalkNode
	foundAt := 0
	node := n
	for i := 0; node != nil; i++ {
		if w := node.state[t].walk; w != nil && w.Depth >= len(components)-i {
			found, foundAt = node, i
		}
		if i == len(components) {
			break
		}
		node = node.child(components[i])
	}
	return found, foundAt
}

// ListWalks returns every walk of type t below n, in path order.
func (n *WalkNode) ListWalks(t WalkType) []DetectedWalk {
	var walks []DetectedWalk
	n.listWalks(t, nil, &walks)
	return walks
}

func (n *WalkNode) listWalks(t WalkType, prefix []string, walks *[]DetectedWalk) {
	if w := n.state[t].walk; w != nil {
		*walks = append(*walks, DetectedWalk{
			Path:  repopath.FromComponents(prefix).String(),
			Depth: w.Depth,
		})
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		n.children[name].listWalks(t, append(prefix, name), walks)
	}
}

// sweep removes every descendant that has not been accessed for at least
// timeout. Ancestors are always touched along with their descendants, so a
// stale node never has fresh children. It returns the number of nodes
// removed.
func (n *WalkNode) sweep(now time.Time, timeout time.Duration) int {
	removed := 0
	for name, c := range n.children {
		if now.Sub(c.lastAccess) >= timeout {
			removed += c.size()
			delete(n.children, name)
			for i := range n.state {
				n.state[i].forgetChild(name)
			}
			continue
		}
		removed += c.sweep(now, timeout)
	}
	return removed
}

func (n *WalkNode) size() int {
	s := 1
	for _, c := range n.children {
		s += c.size()
	}
	return s
}
