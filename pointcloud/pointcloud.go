// Package pointcloud defines a point cloud and the geometric capabilities the
// shape detection pipeline consumes: bounding boxes, nearest-neighbor search
// and total-least-squares plane fitting.
//
// The container is dictionary based and sparse. It owns the point data; the
// spatial index and the estimators only hold positions and indices into it.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// MetaData is data about what's stored in the point cloud.
type MetaData struct {
	HasValue bool

	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
}

// PointCloud is a general purpose container of points. It does not dictate
// whether or not the cloud is sparse or dense.
type PointCloud interface {
	// Size returns the number of points in the cloud.
	Size() int

	// MetaData returns meta data.
	MetaData() MetaData

	// Set places the given point in the cloud.
	Set(p r3.Vector, d Data) error

	// At returns the point in the cloud at the given position.
	// The 2nd return is if the point exists, the first is data if any.
	At(x, y, z float64) (Data, bool)

	// Iterate iterates over all points in the cloud and calls the given
	// function for each point. If the supplied function returns false,
	// iteration will stop after the function returns.
	Iterate(fn func(p r3.Vector, d Data) bool)
}

// NewMetaData returns a new point cloud metadata struct.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge updates the meta data with the new point information.
func (meta *MetaData) Merge(v r3.Vector, data Data) {
	if data != nil && data.HasValue() {
		meta.HasValue = true
	}

	if v.X > meta.MaxX {
		meta.MaxX = v.X
	}
	if v.Y > meta.MaxY {
		meta.MaxY = v.Y
	}
	if v.Z > meta.MaxZ {
		meta.MaxZ = v.Z
	}

	if v.X < meta.MinX {
		meta.MinX = v.X
	}
	if v.Y < meta.MinY {
		meta.MinY = v.Y
	}
	if v.Z < meta.MinZ {
		meta.MinZ = v.Z
	}
}

// BoundingBox returns the axis-aligned box spanned by the points merged so
// far. It is only meaningful on a non-empty cloud.
func (meta *MetaData) BoundingBox() Box {
	return Box{
		Min: r3.Vector{X: meta.MinX, Y: meta.MinY, Z: meta.MinZ},
		Max: r3.Vector{X: meta.MaxX, Y: meta.MaxY, Z: meta.MaxZ},
	}
}
