package detector

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TFMV/walkdetector/internal/repopath"
	"go.uber.org/zap"
)

// Defaults used by New and DefaultOptions.
const (
	DefaultMinDirWalkThreshold = 2
	DefaultGCInterval          = 10 * time.Second
	DefaultGCTimeout           = time.Minute
)

var (
	// ErrInvalidPath is returned for events whose path cannot be represented
	// in the tree. Such events are not recorded.
	ErrInvalidPath = errors.New("detector: invalid path")
	// ErrInvalidHint is returned for negative child counts.
	ErrInvalidHint = errors.New("detector: invalid directory hint")
	// ErrInvalidConfig is returned for out of range configuration values.
	ErrInvalidConfig = errors.New("detector: invalid configuration")
)

// Options configures a Detector.
type Options struct {
	// Number of distinct children that need to show activity before a
	// directory is considered walked. Hints may lower it per directory.
	MinDirWalkThreshold int
	// Minimum time between two garbage collection sweeps.
	GCInterval time.Duration
	// Idle time after which tree state is forgotten.
	GCTimeout time.Duration

	Clock  Clock
	Logger *zap.Logger
}

// DefaultOptions returns the options used by New.
func DefaultOptions() Options {
	return Options{
		MinDirWalkThreshold: DefaultMinDirWalkThreshold,
		GCInterval:          DefaultGCInterval,
		GCTimeout:           DefaultGCTimeout,
	}
}

// Validate checks that all values are in range.
func (o Options) Validate() error {
	if err := validateThreshold(o.MinDirWalkThreshold); err != nil {
		return err
	}
	if err := validateDuration("gc interval", o.GCInterval); err != nil {
		return err
	}
	return validateDuration("gc timeout", o.GCTimeout)
}

func validateThreshold(threshold int) error {
	if threshold < 1 {
		return fmt.Errorf("%w: min dir walk threshold must be at least 1, got %d", ErrInvalidConfig, threshold)
	}
	return nil
}

func validateDuration(name string, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: %s must not be negative, got %s", ErrInvalidConfig, name, d)
	}
	return nil
}

// Detector tracks which subtrees are currently being walked, based on the
// read events reported to it. It is safe for concurrent use; all methods
// serialize on a single lock, as promotion may touch an unbounded chain of
// ancestors.
type Detector struct {
	lock sync.Mutex

	root                *WalkNode
	minDirWalkThreshold int
	gcInterval          time.Duration
	gcTimeout           time.Duration
	clock               Clock
	lastGC              time.Time
	logger              *zap.Logger
}

// New returns a Detector using DefaultOptions.
func New() *Detector {
	d, err := NewDetector(DefaultOptions())
	if err != nil {
		panic(err)
	}
	return d
}

// NewDetector returns a Detector configured by opts.
func NewDetector(opts Options) (*Detector, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	registerMetrics()

	clock := opts.Clock
	if clock == nil {
		clock = SystemClock
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		root:                NewWalkNode(),
		minDirWalkThreshold: opts.MinDirWalkThreshold,
		gcInterval:          opts.GCInterval,
		gcTimeout:           opts.GCTimeout,
		clock:               clock,
		logger:              logger,
	}, nil
}

// SetMinDirWalkThreshold changes the number of distinct children that need
// activity before a walk is detected.
func (d *Detector) SetMinDirWalkThreshold(threshold int) error {
	if err := validateThreshold(threshold); err != nil {
		return err
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	d.minDirWalkThreshold = threshold
	return nil
}

// SetGCInterval changes the minimum time between two garbage collection
// sweeps.
func (d *Detector) SetGCInterval(interval time.Duration) error {
	if err := validateDuration("gc interval", interval); err != nil {
		return err
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	d.gcInterval = interval
	return nil
}

// SetGCTimeout changes the idle time after which tree state is forgotten.
func (d *Detector) SetGCTimeout(timeout time.Duration) error {
	if err := validateDuration("gc timeout", timeout); err != nil {
		return err
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	d.gcTimeout = timeout
	return nil
}

// SetClock replaces the time source.
func (d *Detector) SetClock(clock Clock) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.clock = clock
}

// SetNow pins the detector's notion of the current time to now.
func (d *Detector) SetNow(now time.Time) {
	d.SetClock(FixedClock(now))
}

func parsePath(path string) (repopath.Path, error) {
	p, err := repopath.Parse(path)
	if err != nil {
		detectorRejectedEvents.Inc()
		return repopath.Root, fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	return p, nil
}

// FileRead records that the contents of the file at path were read.
func (d *Detector) FileRead(path string) error {
	p, err := parsePath(path)
	if err != nil {
		return err
	}
	dir, name, ok := p.Split()
	if !ok {
		detectorRejectedEvents.Inc()
		return fmt.Errorf("%w: the root is not a file", ErrInvalidPath)
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	now := d.clock.Now()
	d.maybeGC(now)
	detectorEvents.WithLabelValues(FileWalk.String()).Inc()
	d.recordRead(FileWalk, dir.Components(), name, now)
	return nil
}

// DirRead records that the directory at path was listed, and that it
// contains fileCount files and dirCount directories. The counts replace any
// earlier ones for the same directory.
func (d *Detector) DirRead(path string, fileCount, dirCount int) error {
	p, err := parsePath(path)
	if err != nil {
		return err
	}
	if fileCount < 0 || dirCount < 0 {
		detectorRejectedEvents.Inc()
		return fmt.Errorf("%w: %q has %d files and %d directories", ErrInvalidHint, path, fileCount, dirCount)
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	now := d.clock.Now()
	d.maybeGC(now)
	detectorEvents.WithLabelValues(DirWalk.String()).Inc()

	components := p.Components()
	nodes := d.root.createAlong(components, now)
	nodes[len(components)].setHint(DirHint{Files: fileCount, Dirs: dirCount})

	// Listing the root says nothing about a walk above it.
	if dir, name, ok := p.Split(); ok {
		d.recordRead(DirWalk, dir.Components(), name, now)
	}
	return nil
}

// FileWalks returns the detected walks over file contents.
func (d *Detector) FileWalks() []DetectedWalk {
	return d.Walks(FileWalk)
}

// DirWalks returns the detected walks over directory listings.
func (d *Detector) DirWalks() []DetectedWalk {
	return d.Walks(DirWalk)
}

// Walks returns all walks of type t, outermost only, in path order.
func (d *Detector) Walks(t WalkType) []DetectedWalk {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.maybeGC(d.clock.Now())
	return d.root.ListWalks(t)
}

// GetWalk returns the walk of type t stored exactly at path.
func (d *Detector) GetWalk(t WalkType, path string) (Walk, bool, error) {
	p, err := repopath.Parse(path)
	if err != nil {
		return Walk{}, false, fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	d.maybeGC(d.clock.Now())
	w, ok := d.root.GetWalk(t, p)
	return w, ok, nil
}

// Containment describes the walk that covers a queried path.
type Containment struct {
	// The walk, with the path of the directory holding it.
	Walk DetectedWalk
	// The part of the queried path below Walk.Path.
	Suffix string
}

// GetContainingWalk returns the deepest walk of type t that covers path.
func (d *Detector) GetContainingWalk(t WalkType, path string) (Containment, bool, error) {
	p, err := repopath.Parse(path)
	if err != nil {
		return Containment{}, false, fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	components := p.Components()

	d.lock.Lock()
	defer d.lock.Unlock()

	d.maybeGC(d.clock.Now())
	node, at := d.root.containingNode(t, components)
	if node == nil {
		return Containment{}, false, nil
	}
	w, _ := node.WalkFor(t)
	return Containment{
		Walk: DetectedWalk{
			Path:  repopath.FromComponents(components[:at]).String(),
			Depth: w.Depth,
		},
		Suffix: repopath.FromComponents(components[at:]).String(),
	}, true, nil
}

// recordRead records that child name of the directory at dir was read.
func (d *Detector) recordRead(t WalkType, dir []string, name string, now time.Time) {
	nodes := d.root.nodesAlong(dir)
	if depths := effectiveDepths(t, nodes); depths[len(dir)] >= 0 {
		// Already part of a walk. Only keep the walk alive.
		for _, n := range nodes {
			if n != nil {
				n.touch(now)
			}
		}
		return
	}

	nodes = d.root.createAlong(dir, now)
	if !nodes[len(dir)].state[t].addRead(name) {
		return
	}
	d.promote(t, dir)
}

// effectiveDepths returns, for every node along a path, how many levels
// below it are covered by walks held by the node or its ancestors, or -1 if
// the node itself is not covered.
func effectiveDepths(t WalkType, nodes []*WalkNode) []int {
	depths := make([]int, len(nodes))
	horizon := -1
	for i, n := range nodes {
		if n != nil {
			for _, u := range t.coveringTypes() {
				if w := n.state[u].walk; w != nil && i+w.Depth > horizon {
					horizon = i + w.Depth
				}
			}
		}
		if horizon >= i {
			depths[i] = horizon - i
		} else {
			depths[i] = -1
		}
	}
	return depths
}

// promote re-evaluates the directory at components after it received new
// activity. Every walk that gets created or advanced marks its ancestors,
// which are then re-evaluated in turn until no level changes.
func (d *Detector) promote(t WalkType, components []string) {
	candidates := []int{len(components)}
	for {
		nodes := d.root.nodesAlong(components)
		depths := effectiveDepths(t, nodes)
		promotedAt, promotedDepth := -1, 0
		for _, at := range candidates {
			if depth, ok := d.eligibleDepth(t, nodes[at], depths[at]); ok && d.setWalk(t, components[:at], depth) {
				promotedAt, promotedDepth = at, depth
				break
			}
		}
		if promotedAt < 0 {
			return
		}
		components = components[:promotedAt]
		candidates = append([]int{promotedAt}, d.markAncestors(t, components, promotedDepth)...)
	}
}

// markAncestors records a walk of the given depth at components as advanced
// activity on the ancestors that it reaches beyond. Marking stops at the
// parent if that is not covered by any walk, and otherwise at the nearest
// ancestor holding the covering walk. It returns the marked prefix lengths,
// deepest first.
func (d *Detector) markAncestors(t WalkType, components []string, depth int) []int {
	nodes := d.root.nodesAlong(components)
	depths := effectiveDepths(t, nodes)
	var marked []int
	for at := len(components) - 1; at >= 0; at-- {
		node := nodes[at]
		if reach := len(components) - at + depth; reach > depths[at] {
			node.state[t].markAdvanced(components[at], reach)
			marked = append(marked, at)
		}
		if depths[at] < 0 || node.holdsCoveringWalk(t) {
			break
		}
	}
	return marked
}

// eligibleDepth returns the depth of the walk that node qualifies for, if
// that is deeper than what it is already covered by.
func (d *Detector) eligibleDepth(t WalkType, node *WalkNode, effective int) (int, bool) {
	s := &node.state[t]
	best := -1

	// Enough active children turn an uncovered directory into a walk of its
	// own contents. Direct reads are capped by the hinted count of the kind
	// of child they read, any mix of reads and walked subdirectories by the
	// hinted total.
	if effective < 0 && len(s.read) > 0 {
		if len(s.read) >= d.threshold(node, func(h DirHint) int { return readHintCount(t, h) }) ||
			activeChildren(t, node) >= d.threshold(node, func(h DirHint) int { return totalHintCount(t, h) }) {
			best = 0
		}
	}

	// Enough advanced subdirectories push the boundary down to the
	// shallowest of them.
	advanced, minReach := 0, 0
	for _, reach := range s.advanced {
		if reach > effective {
			if advanced == 0 || reach < minReach {
				minReach = reach
			}
			advanced++
		}
	}
	if advanced > 0 && advanced >= d.threshold(node, func(h DirHint) int { return h.Dirs }) && minReach > best {
		best = minReach
	}

	if best <= effective {
		return 0, false
	}
	return best, true
}

// readHintCount is the number of children that direct reads of type t are
// drawn from.
func readHintCount(t WalkType, h DirHint) int {
	if t == DirWalk {
		return h.Dirs
	}
	return h.Files
}

// totalHintCount is the number of children of any kind that can show
// activity of type t.
func totalHintCount(t WalkType, h DirHint) int {
	if t == DirWalk {
		return h.Dirs
	}
	return h.Files + h.Dirs
}

// activeChildren counts the distinct children of node that were read
// directly, are marked advanced, or hold a walk of type t.
func activeChildren(t WalkType, node *WalkNode) int {
	s := &node.state[t]
	n := len(s.read)
	for name := range s.advanced {
		if _, ok := s.read[name]; !ok {
			n++
		}
	}
	for name, c := range node.children {
		if _, ok := s.read[name]; ok {
			continue
		}
		if _, ok := s.advanced[name]; ok {
			continue
		}
		if c.state[t].walk != nil {
			n++
		}
	}
	return n
}

// threshold is the configured threshold, capped by the hinted number of
// children of node when known.
func (d *Detector) threshold(node *WalkNode, count func(DirHint) int) int {
	threshold := d.minDirWalkThreshold
	if h, ok := node.Hint(); ok {
		if c := max(count(h), 1); c < threshold {
			threshold = c
		}
	}
	return threshold
}

// setWalk inserts a walk at components, logging and counting the change.
func (d *Detector) setWalk(t WalkType, components []string, depth int) bool {
	previous, existed := Walk{}, false
	if node := d.root.getNode(components); node != nil {
		previous, existed = node.WalkFor(t)
	}
	if !d.root.insertWalk(t, components, Walk{Depth: depth}) {
		return false
	}

	path := repopath.FromComponents(components).String()
	if existed {
		detectorWalksAdvanced.WithLabelValues(t.String()).Inc()
		d.logger.Debug("walk advanced",
			zap.Stringer("type", t),
			zap.String("path", path),
			zap.Int("previous_depth", previous.Depth),
			zap.Int("depth", depth))
	} else {
		detectorWalksCreated.WithLabelValues(t.String()).Inc()
		d.logger.Debug("walk created",
			zap.Stringer("type", t),
			zap.String("path", path),
			zap.Int("depth", depth))
	}
	return true
}

// maybeGC sweeps idle nodes if at least gcInterval passed since the last
// sweep.
func (d *Detector) maybeGC(now time.Time) {
	if d.lastGC.IsZero() {
		d.lastGC = now
		return
	}
	if now.Sub(d.lastGC) < d.gcInterval {
		return
	}
	d.lastGC = now
	detectorGCSweeps.Inc()

	evicted := d.root.sweep(now, d.gcTimeout)
	// The root cannot be removed. Its children are never fresher than
	// the root itself, so they are gone already.
	if now.Sub(d.root.lastAccess) >= d.gcTimeout {
		d.root = NewWalkNode()
	}
	if evicted > 0 {
		detectorGCEvictedNodes.Add(float64(evicted))
		d.logger.Info("evicted idle walk state", zap.Int("nodes", evicted))
	}
}
