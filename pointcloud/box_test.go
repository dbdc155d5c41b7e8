package pointcloud

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestBoxBasics(t *testing.T) {
	b := Box{Min: r3.Vector{X: -1, Y: -2, Z: -3}, Max: r3.Vector{X: 3, Y: 2, Z: 1}}
	test.That(t, b.Center(), test.ShouldResemble, r3.Vector{X: 1, Y: 0, Z: -1})
	test.That(t, b.Lengths(), test.ShouldResemble, r3.Vector{X: 4, Y: 4, Z: 4})
	test.That(t, b.LongestSide(), test.ShouldEqual, 4.)

	test.That(t, b.Contains(r3.Vector{}), test.ShouldBeTrue)
	test.That(t, b.Contains(b.Min), test.ShouldBeTrue)
	test.That(t, b.Contains(b.Max), test.ShouldBeTrue)
	test.That(t, b.Contains(r3.Vector{X: 4, Y: 0, Z: 0}), test.ShouldBeFalse)
}

func TestBoxOctant(t *testing.T) {
	b := Box{Min: r3.Vector{X: -1, Y: -1, Z: -1}, Max: r3.Vector{X: 1, Y: 1, Z: 1}}

	lower := b.Octant(0)
	test.That(t, lower.Min, test.ShouldResemble, r3.Vector{X: -1, Y: -1, Z: -1})
	test.That(t, lower.Max, test.ShouldResemble, r3.Vector{})

	upper := b.Octant(7)
	test.That(t, upper.Min, test.ShouldResemble, r3.Vector{})
	test.That(t, upper.Max, test.ShouldResemble, r3.Vector{X: 1, Y: 1, Z: 1})

	mixed := b.Octant(5) // upper x, lower y, upper z
	test.That(t, mixed.Min, test.ShouldResemble, r3.Vector{X: 0, Y: -1, Z: 0})
	test.That(t, mixed.Max, test.ShouldResemble, r3.Vector{X: 1, Y: 0, Z: 1})
}

func TestBoundingBoxOf(t *testing.T) {
	_, err := BoundingBoxOf(nil)
	test.That(t, err, test.ShouldNotBeNil)

	points := []r3.Vector{
		{X: 1, Y: 2, Z: 3},
		{X: -4, Y: 0, Z: 2},
		{X: 2, Y: -1, Z: 8},
	}
	b, err := BoundingBoxOf(points)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.Min, test.ShouldResemble, r3.Vector{X: -4, Y: -1, Z: 2})
	test.That(t, b.Max, test.ShouldResemble, r3.Vector{X: 2, Y: 2, Z: 8})
}

func TestBoundingCubeOf(t *testing.T) {
	points := []r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 6, Y: 2, Z: 4},
	}
	b, err := BoundingCubeOf(points)
	test.That(t, err, test.ShouldBeNil)

	l := b.Lengths()
	test.That(t, l.X, test.ShouldEqual, 6.)
	test.That(t, l.Y, test.ShouldEqual, 6.)
	test.That(t, l.Z, test.ShouldEqual, 6.)
	test.That(t, b.Center(), test.ShouldResemble, r3.Vector{X: 3, Y: 1, Z: 2})
	for _, p := range points {
		test.That(t, b.Contains(p), test.ShouldBeTrue)
	}
}
