package pointcloud

import (
	"github.com/golang/geo/r3"
)

// NewVector is a convenience method for creating a vector.
func NewVector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// Data describes data associated with a single point within a PointCloud.
// The pipeline treats it as opaque caller payload; it is carried through to
// the results untouched.
type Data interface {
	// HasValue returns whether or not this point has some user data value
	// associated with it.
	HasValue() bool

	// Value returns the user data set value, if it exists.
	Value() int

	// SetValue sets the given user data value on the point.
	SetValue(v int) Data
}

// PointAndData is a tight coupling of a point position and its data.
type PointAndData struct {
	P r3.Vector
	D Data
}

type basicData struct {
	hasValue bool
	value    int
}

// NewBasicData returns a point data that is solely positionally based.
func NewBasicData() Data {
	return &basicData{}
}

// NewValueData returns a point data that has a user data value.
func NewValueData(v int) Data {
	return &basicData{value: v, hasValue: true}
}

func (bp *basicData) HasValue() bool {
	return bp.hasValue
}

func (bp *basicData) Value() int {
	return bp.value
}

func (bp *basicData) SetValue(v int) Data {
	bp.hasValue = true
	bp.value = v
	return bp
}
