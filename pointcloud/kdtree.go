package pointcloud

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Neighbor is a single nearest-neighbor query result. Index refers to the
// position of the point in the slice the tree was built from and Dist is the
// Euclidean distance to the query point.
type Neighbor struct {
	P     r3.Vector
	Index int
	Dist  float64
}

// KDTree extends the gonum k-d tree with queries in terms of r3 vectors and
// original point indices.
type KDTree struct {
	tree *kdtree.Tree
	size int
}

// NewKDTree creates a k-d tree from the given points. The tree holds its own
// copy of the coordinates; the caller's slice is not retained.
func NewKDTree(points []r3.Vector) *KDTree {
	ps := make(treePoints, len(points))
	for i, p := range points {
		ps[i] = treePoint{Point: kdtree.Point{p.X, p.Y, p.Z}, index: i}
	}
	return &KDTree{tree: kdtree.New(ps, false), size: len(points)}
}

// Size returns the number of points the tree was built from.
func (kd *KDTree) Size() int {
	return kd.size
}

// KNearestNeighbors returns up to k neighbors of q within maxDist, sorted by
// ascending distance. The query point itself is returned when it is part of
// the tree; callers that want it excluded filter it out by index.
func (kd *KDTree) KNearestNeighbors(q r3.Vector, k int, maxDist float64) []Neighbor {
	if k <= 0 || kd.size == 0 {
		return nil
	}
	keep := kdtree.NewNKeeper(k)
	kd.tree.NearestSet(keep, treePoint{Point: kdtree.Point{q.X, q.Y, q.Z}, index: -1})

	// gonum reports squared Euclidean distances.
	maxSq := maxDist * maxDist
	nbrs := make([]Neighbor, 0, keep.Heap.Len())
	for _, cd := range keep.Heap {
		if cd.Comparable == nil || cd.Dist > maxSq {
			continue
		}
		tp := cd.Comparable.(treePoint)
		nbrs = append(nbrs, Neighbor{
			P:     r3.Vector{X: tp.Point[0], Y: tp.Point[1], Z: tp.Point[2]},
			Index: tp.index,
			Dist:  math.Sqrt(cd.Dist),
		})
	}
	sort.Slice(nbrs, func(i, j int) bool { return nbrs[i].Dist < nbrs[j].Dist })
	return nbrs
}

// treePoint, treePoints and treePlane implement the gonum kdtree interfaces
// following the pattern documented by that package, carrying the original
// point index alongside the coordinates.
type treePoint struct {
	kdtree.Point
	index int
}

func (p treePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(treePoint)
	return p.Point[d] - q.Point[d]
}

func (p treePoint) Dims() int { return len(p.Point) }

func (p treePoint) Distance(c kdtree.Comparable) float64 {
	q := c.(treePoint)
	return p.Point.Distance(q.Point)
}

type treePoints []treePoint

func (p treePoints) Index(i int) kdtree.Comparable { return p[i] }
func (p treePoints) Len() int                      { return len(p) }
func (p treePoints) Pivot(d kdtree.Dim) int {
	return treePlane{treePoints: p, Dim: d}.Pivot()
}

func (p treePoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

type treePlane struct {
	kdtree.Dim
	treePoints
}

func (p treePlane) Less(i, j int) bool {
	return p.treePoints[i].Point[p.Dim] < p.treePoints[j].Point[p.Dim]
}

func (p treePlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }

func (p treePlane) Slice(start, end int) kdtree.SortSlicer {
	p.treePoints = p.treePoints[start:end]
	return p
}

func (p treePlane) Swap(i, j int) {
	p.treePoints[i], p.treePoints[j] = p.treePoints[j], p.treePoints[i]
}
