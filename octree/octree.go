// Package octree implements an adaptive octree over a point cloud, used to
// draw spatially local samples during shape detection.
//
// Nodes keep a cumulative list of every entry inserted at or below them, so
// "all points under this node" is a slice lookup rather than a traversal.
// Nodes, entries and child arrays live in index-addressed pools owned by the
// tree; a node references its parent and children by pool index, never by
// pointer.
package octree

import (
	"github.com/golang/geo/r3"

	"github.com/rangescan/shapedetect/pointcloud"
)

// nilRef marks an absent pool reference.
const nilRef = int32(-1)

// Entry associates an indexed point with its caller payload. Index is the
// insertion order, which for a cloud inserted front to back is the original
// cloud index.
type Entry struct {
	Point r3.Vector
	Data  interface{}
	Index int
}

// Node is a single cube of the partition. A node is either a leaf (no child
// array) or internal with 8 child slots, each independently absent or
// occupied.
type Node struct {
	// Bounds is the cube of space this node covers.
	Bounds pointcloud.Box
	// Divider is the geometric center of the cube, used to route children.
	Divider r3.Vector

	parent   int32
	children int32   // index into the tree's child-array pool, nilRef for a leaf
	entries  []int32 // cumulative entry references, root through leaf
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.children == nilRef
}

// PointCount returns the number of entries inserted at or below this node.
func (n *Node) PointCount() int {
	return len(n.entries)
}

// ChildIndex returns the octant of p relative to divider. Bit 0 is set when
// x >= divider.X, bit 1 when y >= divider.Y and bit 2 when z >= divider.Z.
func ChildIndex(divider, p r3.Vector) int {
	idx := 0
	if p.X >= divider.X {
		idx |= 1
	}
	if p.Y >= divider.Y {
		idx |= 2
	}
	if p.Z >= divider.Z {
		idx |= 4
	}
	return idx
}
