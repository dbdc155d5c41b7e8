package segmentation

import (
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/rangescan/shapedetect/pointcloud"
)

// FinderConfig wires the configurations of the pipeline stages.
type FinderConfig struct {
	Normals  NormalEstimatorConfig `json:"normals"`
	Detector DetectorConfig        `json:"detector"`
	Merger   MergerConfig          `json:"merger"`
}

// CheckValid checks every stage config for sane values.
func (cfg *FinderConfig) CheckValid() error {
	return multierr.Combine(
		cfg.Normals.CheckValid(),
		cfg.Detector.CheckValid(),
		cfg.Merger.CheckValid(),
	)
}

// Shape is a caller-facing accepted detection: the shape type tag, the
// fitted parameters, and the supporting points with their original cloud
// indices.
type Shape struct {
	Type       ShapeType
	Parameters Primitive
	Points     []r3.Vector
	Indexes    []int
}

// ShapeFinder sequences the full pipeline over one cloud per Process call:
// normal estimation, octree-accelerated RANSAC detection and duplicate
// merging. A finder and its pooled storage serve one run at a time; parallel
// processing of multiple clouds requires one finder per run.
type ShapeFinder struct {
	estimator *NormalEstimator
	detector  *Detector
	merger    *Merger
	logger    golog.Logger

	positions []r3.Vector
	unmatched []*PointVector
	found     []Shape
}

// NewShapeFinder validates the configuration and assembles the pipeline.
func NewShapeFinder(cfg FinderConfig, logger golog.Logger) (*ShapeFinder, error) {
	estimator, err := NewNormalEstimator(cfg.Normals)
	if err != nil {
		return nil, err
	}
	detector, err := NewDetector(cfg.Detector, logger)
	if err != nil {
		return nil, err
	}
	merger, err := NewMerger(cfg.Merger)
	if err != nil {
		return nil, err
	}
	return &ShapeFinder{
		estimator: estimator,
		detector:  detector,
		merger:    merger,
		logger:    logger,
	}, nil
}

// GetPointCloudPositions extracts the positions of the points from the
// point cloud into an r3 slice, in iteration order.
func GetPointCloudPositions(cloud pointcloud.PointCloud) []r3.Vector {
	positions := make([]r3.Vector, 0, cloud.Size())
	cloud.Iterate(func(p r3.Vector, d pointcloud.Data) bool {
		positions = append(positions, p)
		return true
	})
	return positions
}

// Process runs the pipeline over the cloud. bounds may be nil, in which case
// the minimal enclosing cube of the cloud is used. Results are retrieved
// with Found and AppendUnmatched and remain valid until the next call.
func (f *ShapeFinder) Process(cloud pointcloud.PointCloud, bounds *pointcloud.Box) error {
	f.found = f.found[:0]
	f.unmatched = f.unmatched[:0]

	f.positions = f.positions[:0]
	cloud.Iterate(func(p r3.Vector, d pointcloud.Data) bool {
		f.positions = append(f.positions, p)
		return true
	})
	if len(f.positions) == 0 {
		return nil
	}

	pointVectors, err := f.estimator.Process(f.positions)
	if err != nil {
		return errors.Wrap(err, "estimating surface normals")
	}

	var box pointcloud.Box
	if bounds != nil {
		box = *bounds
	} else {
		box, err = pointcloud.BoundingCubeOf(f.positions)
		if err != nil {
			return err
		}
	}

	f.detector.Process(pointVectors, box)
	merged := f.merger.Merge(f.detector.Found(), len(f.positions))
	f.unmatched = f.detector.AppendUnmatched(f.unmatched)

	shapeTypes := f.detector.cfg.Shapes
	for _, fs := range merged {
		shape := Shape{
			Type:       shapeTypes[fs.TypeIndex],
			Parameters: fs.Shape,
			Points:     make([]r3.Vector, 0, len(fs.Points)),
			Indexes:    make([]int, 0, len(fs.Points)),
		}
		for _, pv := range fs.Points {
			shape.Points = append(shape.Points, pv.P)
			shape.Indexes = append(shape.Indexes, pv.Index)
		}
		f.found = append(f.found, shape)
	}
	f.logger.Debugf("found %d shapes, %d points unmatched", len(f.found), len(f.unmatched))
	return nil
}

// Found returns the accepted shapes of the last run.
func (f *ShapeFinder) Found() []Shape {
	return f.found
}

// AppendUnmatched appends every point with no shape support onto dst and
// returns it.
func (f *ShapeFinder) AppendUnmatched(dst []r3.Vector) []r3.Vector {
	for _, pv := range f.unmatched {
		dst = append(dst, pv.P)
	}
	return dst
}

// ShapeTypes returns the configured shape type list, in detection index
// order.
func (f *ShapeFinder) ShapeTypes() []ShapeType {
	return f.detector.cfg.Shapes
}
