package segmentation

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/rangescan/shapedetect/pointcloud"
)

// ShapeType tags the kind of primitive a detection describes.
type ShapeType int

// The primitive shapes the detector knows how to search for.
const (
	ShapeTypePlane ShapeType = iota
	ShapeTypeSphere
	ShapeTypeCylinder
)

func (t ShapeType) String() string {
	switch t {
	case ShapeTypePlane:
		return "plane"
	case ShapeTypeSphere:
		return "sphere"
	case ShapeTypeCylinder:
		return "cylinder"
	default:
		return "unknown"
	}
}

// Primitive is a parametric surface fit to a point subset.
type Primitive interface {
	// Distance returns the unsigned distance from p to the surface.
	Distance(p r3.Vector) float64
	// NormalAt returns the surface normal at the projection of p onto the
	// surface. Only the axis of the returned vector is meaningful.
	NormalAt(p r3.Vector) r3.Vector
}

// Plane is a planar primitive.
type Plane struct {
	pointcloud.Plane
}

// Distance returns the unsigned distance from p to the plane.
func (s Plane) Distance(p r3.Vector) float64 {
	return math.Abs(s.Plane.Distance(p))
}

// NormalAt returns the plane normal regardless of position.
func (s Plane) NormalAt(r3.Vector) r3.Vector {
	return s.Plane.Normal
}

// Sphere is a spherical primitive.
type Sphere struct {
	Center r3.Vector
	Radius float64
}

// Distance returns the unsigned distance from p to the sphere surface.
func (s Sphere) Distance(p r3.Vector) float64 {
	return math.Abs(p.Sub(s.Center).Norm() - s.Radius)
}

// NormalAt returns the radial direction at p.
func (s Sphere) NormalAt(p r3.Vector) r3.Vector {
	d := p.Sub(s.Center)
	if d.Norm() == 0 {
		return r3.Vector{}
	}
	return d.Normalize()
}

// Cylinder is an infinite cylindrical primitive described by a point on its
// axis, the unit axis direction and a radius.
type Cylinder struct {
	Center r3.Vector
	Axis   r3.Vector
	Radius float64
}

// Distance returns the unsigned distance from p to the cylinder surface.
func (c Cylinder) Distance(p r3.Vector) float64 {
	return math.Abs(c.radial(p).Norm() - c.Radius)
}

// NormalAt returns the outward radial direction at p.
func (c Cylinder) NormalAt(p r3.Vector) r3.Vector {
	radial := c.radial(p)
	if radial.Norm() == 0 {
		return r3.Vector{}
	}
	return radial.Normalize()
}

// radial is the component of p relative to the axis line, perpendicular to
// the axis.
func (c Cylinder) radial(p r3.Vector) r3.Vector {
	d := p.Sub(c.Center)
	return d.Sub(c.Axis.Mul(d.Dot(c.Axis)))
}

// almostParallelTol rejects minimal samples whose normals are too close to
// parallel to constrain a sphere or cylinder.
const almostParallelTol = 1e-6

// fitter fits primitive parameters from a minimal point sample.
type fitter interface {
	// sampleSize is the number of sample points the fit consumes.
	sampleSize() int
	// fit attempts the fit; ok is false when the sample is degenerate.
	fit(sample []*PointVector) (prim Primitive, ok bool)
}

func fitterForShapeType(t ShapeType) (fitter, error) {
	switch t {
	case ShapeTypePlane:
		return planeFitter{}, nil
	case ShapeTypeSphere:
		return sphereFitter{}, nil
	case ShapeTypeCylinder:
		return cylinderFitter{}, nil
	default:
		return nil, errors.Errorf("unknown shape type (%d)", int(t))
	}
}

// planeFitter fits a plane through 3 sample points.
type planeFitter struct{}

func (planeFitter) sampleSize() int { return 3 }

func (planeFitter) fit(sample []*PointVector) (Primitive, bool) {
	v1 := sample[1].P.Sub(sample[0].P)
	v2 := sample[2].P.Sub(sample[0].P)
	cross := v1.Cross(v2)
	if cross.Norm() < almostParallelTol {
		return nil, false
	}
	return Plane{pointcloud.NewPlane(cross.Normalize(), sample[0].P)}, true
}

// sphereFitter fits a sphere from 2 sample points and their normals: the
// center is the midpoint of the closest approach of the two normal lines.
type sphereFitter struct{}

func (sphereFitter) sampleSize() int { return 2 }

func (sphereFitter) fit(sample []*PointVector) (Primitive, bool) {
	p1, n1 := sample[0].P, sample[0].Normal
	p2, n2 := sample[1].P, sample[1].Normal
	if n1.Norm() == 0 || n2.Norm() == 0 {
		return nil, false
	}

	c1, c2, ok := closestOnLines(p1, n1, p2, n2)
	if !ok {
		return nil, false
	}
	center := c1.Add(c2).Mul(0.5)
	r1 := center.Sub(p1).Norm()
	r2 := center.Sub(p2).Norm()
	radius := (r1 + r2) / 2
	if radius < almostParallelTol {
		return nil, false
	}
	return Sphere{Center: center, Radius: radius}, true
}

// cylinderFitter fits a cylinder from 2 sample points and their normals: the
// axis direction is the cross product of the normals, and the axis position
// is where the normals, projected onto a plane perpendicular to the axis,
// meet.
type cylinderFitter struct{}

func (cylinderFitter) sampleSize() int { return 2 }

func (cylinderFitter) fit(sample []*PointVector) (Primitive, bool) {
	p1, n1 := sample[0].P, sample[0].Normal
	p2, n2 := sample[1].P, sample[1].Normal
	if n1.Norm() == 0 || n2.Norm() == 0 {
		return nil, false
	}
	axis := n1.Cross(n2)
	if axis.Norm() < almostParallelTol {
		return nil, false
	}
	axis = axis.Normalize()

	proj := func(v r3.Vector) r3.Vector { return v.Sub(axis.Mul(v.Dot(axis))) }
	m1, m2 := proj(n1), proj(n2)
	if m1.Norm() < almostParallelTol || m2.Norm() < almostParallelTol {
		return nil, false
	}
	c1, c2, ok := closestOnLines(proj(p1), m1.Normalize(), proj(p2), m2.Normalize())
	if !ok {
		return nil, false
	}
	center := c1.Add(c2).Mul(0.5)

	cyl := Cylinder{Center: center, Axis: axis}
	r1 := cyl.radial(p1).Norm()
	r2 := cyl.radial(p2).Norm()
	cyl.Radius = (r1 + r2) / 2
	if cyl.Radius < almostParallelTol {
		return nil, false
	}
	return cyl, true
}

// closestOnLines returns the closest pair of points between the lines
// p1 + s*d1 and p2 + t*d2. ok is false for (near) parallel lines.
func closestOnLines(p1, d1, p2, d2 r3.Vector) (c1, c2 r3.Vector, ok bool) {
	r := p1.Sub(p2)
	a := d1.Dot(d1)
	b := d1.Dot(d2)
	e := d2.Dot(d2)
	c := d1.Dot(r)
	f := d2.Dot(r)

	den := a*e - b*b
	if math.Abs(den) < almostParallelTol {
		return r3.Vector{}, r3.Vector{}, false
	}
	s := (b*f - c*e) / den
	t := (a*f - b*c) / den
	return p1.Add(d1.Mul(s)), p2.Add(d2.Mul(t)), true
}
