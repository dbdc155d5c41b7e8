package segmentation

import (
	"math"
	"math/rand"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/rangescan/shapedetect/pointcloud"
	"github.com/rangescan/shapedetect/utils"
)

func TestDetectorConfig(t *testing.T) {
	cfg := DetectorConfig{}
	err := cfg.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "shapes cannot be empty")
	test.That(t, err.Error(), test.ShouldContainSubstring, "min_points cannot be less than 1")
	test.That(t, err.Error(), test.ShouldContainSubstring, "max_rounds cannot be less than 1")
	test.That(t, err.Error(), test.ShouldContainSubstring, "samples_per_round cannot be less than 1")
	test.That(t, err.Error(), test.ShouldContainSubstring, "distance_threshold must be greater than 0")
	test.That(t, err.Error(), test.ShouldContainSubstring, "octree_max_per_node cannot be less than 1")

	cfg = DetectorConfig{
		Shapes:            []ShapeType{ShapeTypePlane, ShapeTypePlane},
		MinPoints:         10,
		MaxRounds:         5,
		SamplesPerRound:   10,
		DistanceThreshold: 0.1,
		NormalThreshold:   0.5,
		OctreeMaxPerNode:  32,
	}
	err = cfg.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `duplicate shape type "plane"`)

	cfg.Shapes = []ShapeType{ShapeTypePlane, ShapeType(99)}
	err = cfg.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown shape type")

	cfg.Shapes = []ShapeType{ShapeTypePlane, ShapeTypeSphere}
	test.That(t, cfg.CheckValid(), test.ShouldBeNil)

	cfg.NormalThreshold = math.Pi
	err = cfg.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "normal_threshold must be between 0 and pi/2 radians")

	_, err = NewDetector(DetectorConfig{}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

// gridPointVectors lays points on the z=0 plane with exact upward normals.
func gridPointVectors(nx, ny int) []*PointVector {
	points := make([]*PointVector, 0, nx*ny)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			points = append(points, &PointVector{
				P:      r3.Vector{X: float64(x), Y: float64(y), Z: 0},
				Index:  len(points),
				Normal: r3.Vector{X: 0, Y: 0, Z: 1},
			})
		}
	}
	return points
}

func reindex(points []*PointVector) []*PointVector {
	for i, pv := range points {
		pv.Index = i
	}
	return points
}

func detectorBounds() pointcloud.Box {
	return pointcloud.Box{
		Min: r3.Vector{X: -50, Y: -50, Z: -50},
		Max: r3.Vector{X: 50, Y: 50, Z: 50},
	}
}

// A planar grid plus a handful of stray points: one plane comes back and the
// strays stay unmatched.
func TestDetectorFindsPlane(t *testing.T) {
	d, err := NewDetector(DetectorConfig{
		Shapes:            []ShapeType{ShapeTypePlane},
		MinPoints:         50,
		MaxRounds:         10,
		SamplesPerRound:   50,
		DistanceThreshold: 0.2,
		NormalThreshold:   utils.DegToRad(30),
		OctreeMaxPerNode:  32,
		Seed:              42,
	}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	points := gridPointVectors(14, 14)
	strays := []*PointVector{
		{P: r3.Vector{X: 3, Y: 3, Z: 20}},
		{P: r3.Vector{X: -8, Y: 2, Z: 11}},
		{P: r3.Vector{X: 7, Y: -9, Z: -14}},
	}
	points = reindex(append(points, strays...))

	d.Process(points, detectorBounds())

	found := d.Found()
	test.That(t, len(found), test.ShouldEqual, 1)
	test.That(t, found[0].TypeIndex, test.ShouldEqual, 0)
	test.That(t, len(found[0].Points), test.ShouldEqual, 14*14)

	plane := found[0].Shape.(Plane)
	test.That(t, math.Abs(plane.Normal.Dot(r3.Vector{X: 0, Y: 0, Z: 1})), test.ShouldBeGreaterThan, 0.999)

	unmatched := d.AppendUnmatched(nil)
	test.That(t, len(unmatched), test.ShouldEqual, len(strays))
	for _, pv := range unmatched {
		test.That(t, pv.Normal, test.ShouldResemble, r3.Vector{})
	}
}

// The search stops once no candidate reaches the minimum support.
func TestDetectorMinPointsTerminates(t *testing.T) {
	d, err := NewDetector(DetectorConfig{
		Shapes:            []ShapeType{ShapeTypePlane},
		MinPoints:         50,
		MaxRounds:         10,
		SamplesPerRound:   50,
		DistanceThreshold: 0.2,
		NormalThreshold:   utils.DegToRad(30),
		OctreeMaxPerNode:  32,
		Seed:              42,
	}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	points := gridPointVectors(5, 4)
	d.Process(points, detectorBounds())

	test.That(t, len(d.Found()), test.ShouldEqual, 0)
	test.That(t, len(d.AppendUnmatched(nil)), test.ShouldEqual, len(points))
}

// Rings on a cylinder barrel with exact radial normals: the detector must
// recover the axis, radius and full support.
func TestDetectorFindsCylinder(t *testing.T) {
	d, err := NewDetector(DetectorConfig{
		Shapes:            []ShapeType{ShapeTypeCylinder},
		MinPoints:         100,
		MaxRounds:         10,
		SamplesPerRound:   100,
		DistanceThreshold: 0.2,
		NormalThreshold:   utils.DegToRad(30),
		OctreeMaxPerNode:  32,
		Seed:              7,
	}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	const radius = 2.0
	var points []*PointVector
	for ring := 0; ring < 10; ring++ {
		for k := 0; k < 24; k++ {
			phi := 2 * math.Pi * float64(k) / 24
			n := r3.Vector{X: math.Cos(phi), Y: math.Sin(phi), Z: 0}
			points = append(points, &PointVector{
				P:      n.Mul(radius).Add(r3.Vector{Z: float64(ring)}),
				Normal: n,
			})
		}
	}
	points = reindex(points)

	d.Process(points, detectorBounds())

	found := d.Found()
	test.That(t, len(found), test.ShouldEqual, 1)
	test.That(t, len(found[0].Points), test.ShouldEqual, len(points))

	cyl := found[0].Shape.(Cylinder)
	test.That(t, math.Abs(cyl.Axis.Dot(r3.Vector{Z: 1})), test.ShouldBeGreaterThan, 0.999)
	test.That(t, cyl.Radius, test.ShouldAlmostEqual, radius, 0.05)
	axisOffset := r3.Vector{X: cyl.Center.X, Y: cyl.Center.Y}
	test.That(t, axisOffset.Norm(), test.ShouldBeLessThan, 0.05)
}

// A noisy planar patch yields minimal samples with near-parallel normals
// whose sphere fit has an enormous radius yet locally matches the plane. Such
// candidates must be rejected so the patch is detected as a plane.
func TestDetectorNoisyPlaneStaysPlane(t *testing.T) {
	d, err := NewDetector(DetectorConfig{
		Shapes:            []ShapeType{ShapeTypePlane, ShapeTypeSphere},
		MinPoints:         50,
		MaxRounds:         10,
		SamplesPerRound:   100,
		DistanceThreshold: 0.3,
		NormalThreshold:   utils.DegToRad(30),
		OctreeMaxPerNode:  32,
		Seed:              11,
	}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	r := rand.New(rand.NewSource(17))
	var points []*PointVector
	for x := 0; x < 14; x++ {
		for y := 0; y < 14; y++ {
			points = append(points, &PointVector{
				P: r3.Vector{X: float64(x), Y: float64(y), Z: r.Float64()*0.1 - 0.05},
				Normal: r3.Vector{
					X: r.Float64()*0.16 - 0.08,
					Y: r.Float64()*0.16 - 0.08,
					Z: 1,
				}.Normalize(),
			})
		}
	}
	points = reindex(points)

	bounds := pointcloud.Box{
		Min: r3.Vector{X: -1, Y: -1, Z: -1},
		Max: r3.Vector{X: 15, Y: 15, Z: 15},
	}
	d.Process(points, bounds)

	found := d.Found()
	test.That(t, len(found), test.ShouldEqual, 1)
	test.That(t, found[0].TypeIndex, test.ShouldEqual, 0)
	test.That(t, len(found[0].Points), test.ShouldBeGreaterThanOrEqualTo, 190)

	// a radius beyond the indexed cube never survives candidate validation
	test.That(t, d.plausibleCandidate(Sphere{Radius: d.maxRadius + 1}), test.ShouldBeFalse)
	test.That(t, d.plausibleCandidate(Cylinder{Radius: d.maxRadius + 1}), test.ShouldBeFalse)
	test.That(t, d.plausibleCandidate(Sphere{Radius: 3}), test.ShouldBeTrue)
}

// Runs with the same seed and input produce identical results.
func TestDetectorReproducible(t *testing.T) {
	cfg := DetectorConfig{
		Shapes:            []ShapeType{ShapeTypePlane, ShapeTypeSphere},
		MinPoints:         30,
		MaxRounds:         10,
		SamplesPerRound:   40,
		DistanceThreshold: 0.2,
		NormalThreshold:   utils.DegToRad(30),
		OctreeMaxPerNode:  16,
		Seed:              11,
	}
	logger := golog.NewTestLogger(t)

	run := func() []FoundShape {
		d, err := NewDetector(cfg, logger)
		test.That(t, err, test.ShouldBeNil)
		d.Process(gridPointVectors(12, 12), detectorBounds())
		return append([]FoundShape(nil), d.Found()...)
	}

	a, b := run(), run()
	test.That(t, len(a), test.ShouldEqual, len(b))
	for i := range a {
		test.That(t, a[i].TypeIndex, test.ShouldEqual, b[i].TypeIndex)
		test.That(t, a[i].Shape, test.ShouldResemble, b[i].Shape)
		test.That(t, len(a[i].Points), test.ShouldEqual, len(b[i].Points))
	}
}
