package pointcloud

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Plane is a plane in point-normal form. Normal is unit length and its sign
// is arbitrary.
type Plane struct {
	Normal r3.Vector
	Center r3.Vector
	Offset float64
}

// NewPlane creates a plane from a unit normal and a point on the plane.
func NewPlane(normal, center r3.Vector) Plane {
	return Plane{Normal: normal, Center: center, Offset: -normal.Dot(center)}
}

// Equation returns the plane equation [0]x + [1]y + [2]z + [3] = 0.
func (p Plane) Equation() [4]float64 {
	return [4]float64{p.Normal.X, p.Normal.Y, p.Normal.Z, p.Offset}
}

// Distance returns the signed distance from the plane to the given point.
func (p Plane) Distance(pt r3.Vector) float64 {
	return p.Normal.Dot(pt) + p.Offset
}

// FitPlaneToPoints fits a plane to the given points by total least squares:
// the normal is the singular vector of the centered coordinate matrix with
// the smallest singular value. At least 3 points are required and the caller
// must avoid handing in fewer than 3 distinct positions.
func FitPlaneToPoints(points []r3.Vector) (Plane, error) {
	if len(points) < 3 {
		return Plane{}, errors.Errorf("need at least 3 points to fit a plane, got %d", len(points))
	}

	center := r3.Vector{}
	for _, p := range points {
		center = center.Add(p)
	}
	center = center.Mul(1. / float64(len(points)))

	m := mat.NewDense(len(points), 3, nil)
	for i, p := range points {
		m.Set(i, 0, p.X-center.X)
		m.Set(i, 1, p.Y-center.Y)
		m.Set(i, 2, p.Z-center.Z)
	}

	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDThinV); !ok {
		return Plane{}, errors.New("failed to factorize point matrix")
	}
	var v mat.Dense
	svd.VTo(&v)

	// singular values are sorted descending, so the last right singular
	// vector spans the direction of least variance
	normal := r3.Vector{X: v.At(0, 2), Y: v.At(1, 2), Z: v.At(2, 2)}
	if normal.Norm() == 0 {
		return Plane{}, errors.New("degenerate plane fit")
	}
	return NewPlane(normal.Normalize(), center), nil
}
