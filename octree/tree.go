package octree

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/rangescan/shapedetect/pointcloud"
)

// Tree builds an octree by splitting any leaf holding more points than a
// configured maximum. All storage is pooled and reused across Initialize
// calls; a Tree and its pools belong to a single pipeline instance and must
// not be shared across concurrent runs.
type Tree struct {
	maxPerNode int

	// pools: the prefix up to the live count is in use, everything past it
	// is scrubbed and ready for checkout
	nodes        []Node
	numNodes     int
	entries      []Entry
	numEntries   int
	childSets    [][8]int32
	numChildSets int
}

// New creates a tree which splits leaves holding more than maxPerNode
// entries. Initialize must be called before points are added.
func New(maxPerNode int) (*Tree, error) {
	if maxPerNode < 1 {
		return nil, errors.Errorf("invalid max points per node (%d) for octree", maxPerNode)
	}
	return &Tree{maxPerNode: maxPerNode}, nil
}

// Initialize resets the tree to a single leaf root covering bounds. Pool
// capacity is retained but every previously live object is scrubbed before
// the counts reset, keeping the free region of each pool fully reset.
func (t *Tree) Initialize(bounds pointcloud.Box) {
	for i := 0; i < t.numNodes; i++ {
		n := &t.nodes[i]
		n.Bounds = pointcloud.Box{}
		n.Divider = r3.Vector{}
		n.parent = nilRef
		n.children = nilRef
		n.entries = n.entries[:0]
	}
	for i := 0; i < t.numEntries; i++ {
		e := &t.entries[i]
		e.Point = r3.Vector{}
		e.Data = nil
		e.Index = -1
	}
	for i := 0; i < t.numChildSets; i++ {
		for j := range t.childSets[i] {
			t.childSets[i][j] = nilRef
		}
	}
	t.numNodes = 0
	t.numEntries = 0
	t.numChildSets = 0

	t.checkoutNode(nilRef, bounds)
}

// Root returns the root node. Valid until the next Initialize or AddPoint.
func (t *Tree) Root() *Node {
	return &t.nodes[0]
}

// Size returns the total number of entries in the tree.
func (t *Tree) Size() int {
	return t.numEntries
}

// Child returns node n's child in the given octant, or nil if n is a leaf or
// the slot is empty.
func (t *Tree) Child(n *Node, octant int) *Node {
	if n.children == nilRef {
		return nil
	}
	ci := t.childSets[n.children][octant]
	if ci == nilRef {
		return nil
	}
	return &t.nodes[ci]
}

// EntryAt returns the i-th entry stored at or below node n.
func (t *Tree) EntryAt(n *Node, i int) *Entry {
	return &t.entries[n.entries[i]]
}

// AppendPath appends the nodes visited routing p from the root to the
// containing leaf onto dst and returns it. The point must lie within the
// indexed bounds.
func (t *Tree) AppendPath(p r3.Vector, dst []*Node) []*Node {
	ni := int32(0)
	for {
		n := &t.nodes[ni]
		dst = append(dst, n)
		if n.IsLeaf() {
			return dst
		}
		ci := t.childSets[n.children][ChildIndex(n.Divider, p)]
		if ci == nilRef {
			return dst
		}
		ni = ci
	}
}

// AddPoint routes a new entry from the root down to its containing leaf,
// appending it to the cumulative list of every node on the path. Routing for
// points outside the initialized bounds is undefined; staying in bounds is
// the caller's responsibility.
func (t *Tree) AddPoint(p r3.Vector, data interface{}) {
	ei := t.checkoutEntry(p, data)

	ni := int32(0)
	for {
		t.nodes[ni].entries = append(t.nodes[ni].entries, ei)
		if t.nodes[ni].IsLeaf() {
			if len(t.nodes[ni].entries) > t.maxPerNode {
				t.trySplit(ni)
			}
			return
		}
		oct := ChildIndex(t.nodes[ni].Divider, p)
		ci := t.childSets[t.nodes[ni].children][oct]
		if ci == nilRef {
			ci = t.checkoutNode(ni, t.nodes[ni].Bounds.Octant(oct))
			t.childSets[t.nodes[ni].children][oct] = ci
		}
		ni = ci
	}
}

// trySplit turns leaf ni into an internal node if its entries would occupy at
// least two distinct octants. When every entry routes to the same octant
// (coincident points) the leaf is left alone, which is what guarantees
// termination on degenerate input. Entries stay on the split node to keep
// the cumulative-count invariant.
func (t *Tree) trySplit(ni int32) {
	var hist [8]int
	for _, ei := range t.nodes[ni].entries {
		hist[ChildIndex(t.nodes[ni].Divider, t.entries[ei].Point)]++
	}
	distinct := 0
	for _, c := range hist {
		if c > 0 {
			distinct++
		}
	}
	if distinct < 2 {
		return
	}

	csi := t.checkoutChildSet()
	t.nodes[ni].children = csi
	for i := 0; i < len(t.nodes[ni].entries); i++ {
		ei := t.nodes[ni].entries[i]
		oct := ChildIndex(t.nodes[ni].Divider, t.entries[ei].Point)
		ci := t.childSets[csi][oct]
		if ci == nilRef {
			ci = t.checkoutNode(ni, t.nodes[ni].Bounds.Octant(oct))
			t.childSets[csi][oct] = ci
		}
		t.nodes[ci].entries = append(t.nodes[ci].entries, ei)
	}

	for _, ci := range t.childSets[csi] {
		if ci != nilRef && len(t.nodes[ci].entries) > t.maxPerNode {
			t.trySplit(ci)
		}
	}
}

func (t *Tree) checkoutNode(parent int32, bounds pointcloud.Box) int32 {
	if t.numNodes == len(t.nodes) {
		t.nodes = append(t.nodes, Node{parent: nilRef, children: nilRef})
	}
	n := &t.nodes[t.numNodes]
	n.Bounds = bounds
	n.Divider = bounds.Center()
	n.parent = parent
	n.children = nilRef
	n.entries = n.entries[:0]
	t.numNodes++
	return int32(t.numNodes - 1)
}

func (t *Tree) checkoutEntry(p r3.Vector, data interface{}) int32 {
	if t.numEntries == len(t.entries) {
		t.entries = append(t.entries, Entry{Index: -1})
	}
	e := &t.entries[t.numEntries]
	e.Point = p
	e.Data = data
	e.Index = t.numEntries
	t.numEntries++
	return int32(t.numEntries - 1)
}

func (t *Tree) checkoutChildSet() int32 {
	if t.numChildSets == len(t.childSets) {
		var fresh [8]int32
		for i := range fresh {
			fresh[i] = nilRef
		}
		t.childSets = append(t.childSets, fresh)
	}
	t.numChildSets++
	return int32(t.numChildSets - 1)
}
