package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Box is an axis-aligned box described by its two extreme corners.
type Box struct {
	Min r3.Vector
	Max r3.Vector
}

// Center returns the geometric center of the box.
func (b Box) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Lengths returns the side lengths of the box along each axis.
func (b Box) Lengths() r3.Vector {
	return b.Max.Sub(b.Min)
}

// LongestSide returns the longest of the three side lengths.
func (b Box) LongestSide() float64 {
	l := b.Lengths()
	return math.Max(l.X, math.Max(l.Y, l.Z))
}

// Contains reports whether p lies within the box, boundary included.
func (b Box) Contains(p r3.Vector) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Octant returns the sub-box covering octant i of the box subdivided at its
// center. Bit 0 selects the upper x half, bit 1 the upper y half and bit 2
// the upper z half, matching octree child routing.
func (b Box) Octant(i int) Box {
	c := b.Center()
	out := Box{Min: b.Min, Max: c}
	if i&1 != 0 {
		out.Min.X, out.Max.X = c.X, b.Max.X
	}
	if i&2 != 0 {
		out.Min.Y, out.Max.Y = c.Y, b.Max.Y
	}
	if i&4 != 0 {
		out.Min.Z, out.Max.Z = c.Z, b.Max.Z
	}
	return out
}

// BoundingBoxOf returns the minimal axis-aligned box containing all the
// given points.
func BoundingBoxOf(points []r3.Vector) (Box, error) {
	if len(points) == 0 {
		return Box{}, errors.New("cannot compute the bounding box of an empty point list")
	}
	b := Box{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		b.Min.X = math.Min(b.Min.X, p.X)
		b.Min.Y = math.Min(b.Min.Y, p.Y)
		b.Min.Z = math.Min(b.Min.Z, p.Z)
		b.Max.X = math.Max(b.Max.X, p.X)
		b.Max.Y = math.Max(b.Max.Y, p.Y)
		b.Max.Z = math.Max(b.Max.Z, p.Z)
	}
	return b, nil
}

// BoundingCubeOf returns the minimal enclosing cube of the given points: the
// bounding box grown about its center until all sides equal the longest one.
func BoundingCubeOf(points []r3.Vector) (Box, error) {
	b, err := BoundingBoxOf(points)
	if err != nil {
		return Box{}, err
	}
	half := b.LongestSide() / 2
	c := b.Center()
	r := r3.Vector{X: half, Y: half, Z: half}
	return Box{Min: c.Sub(r), Max: c.Add(r)}, nil
}
