// Package segmentation extracts geometric primitives (planes, spheres,
// cylinders) from unorganized 3D point clouds: per-point surface normals are
// estimated from local neighborhoods, an octree-accelerated RANSAC search
// finds primitive shapes greedily, and duplicate detections are merged.
package segmentation

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/rangescan/shapedetect/pointcloud"
	"github.com/rangescan/shapedetect/utils"
)

// PointVector is a cloud point annotated with its nearest neighbors and an
// estimated local surface normal. A zero normal means no normal could be
// determined. The normal's sign is arbitrary per point; consumers must treat
// its direction as axis-only.
type PointVector struct {
	P      r3.Vector
	Index  int
	Normal r3.Vector

	// Neighbors holds at most the configured neighbor count, closest first.
	Neighbors []*PointVector
}

// NormalEstimatorConfig parameterizes surface normal estimation.
type NormalEstimatorConfig struct {
	// NumPlane is the number of closest points used to fit the local plane.
	NumPlane int `json:"num_plane"`
	// NumNeighbors is the number of neighbors searched for.
	NumNeighbors int `json:"num_neighbors"`
	// MaxDistanceNeighbor is the maximum distance two points can be apart
	// and still be considered neighbors.
	MaxDistanceNeighbor float64 `json:"max_distance_neighbor"`
}

// CheckValid checks the config for sane values.
func (cfg *NormalEstimatorConfig) CheckValid() error {
	var err error
	if cfg.NumPlane <= 2 {
		err = multierr.Combine(err, errors.New("num_plane must be greater than 2"))
	}
	if cfg.NumNeighbors < cfg.NumPlane {
		err = multierr.Combine(err, errors.New("num_neighbors cannot be less than num_plane"))
	}
	if cfg.MaxDistanceNeighbor <= 0 {
		err = multierr.Combine(err, errors.New("max_distance_neighbor must be greater than 0"))
	}
	return err
}

// NormalEstimator estimates the tangent plane of the surface at each point
// of a cloud from its nearest neighbors, after Hoppe et al., "Surface
// reconstruction from unorganized points" (1992). The two possible normal
// directions are not reconciled across points.
type NormalEstimator struct {
	cfg NormalEstimatorConfig

	// scratch reused across calls
	distances []float64
	fitBuf    []r3.Vector
}

// NewNormalEstimator validates the configuration and returns an estimator.
func NewNormalEstimator(cfg NormalEstimatorConfig) (*NormalEstimator, error) {
	if err := cfg.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "invalid normal estimator configuration")
	}
	return &NormalEstimator{cfg: cfg}, nil
}

// Process computes a PointVector for every input point. Points with fewer
// than 2 neighbors within the search radius get a zero normal. The output
// index matches the input index.
func (e *NormalEstimator) Process(points []r3.Vector) ([]*PointVector, error) {
	out := make([]*PointVector, len(points))
	for i := range points {
		out[i] = &PointVector{P: points[i], Index: i}
	}
	if len(points) == 0 {
		return out, nil
	}

	kd := pointcloud.NewKDTree(points)
	for i, pv := range out {
		// the query point matches itself, hence the +1
		nbrs := kd.KNearestNeighbors(pv.P, e.cfg.NumNeighbors+1, e.cfg.MaxDistanceNeighbor)
		for _, nb := range nbrs {
			if nb.Index == i {
				continue
			}
			pv.Neighbors = append(pv.Neighbors, out[nb.Index])
		}
		if len(pv.Neighbors) > e.cfg.NumNeighbors {
			pv.Neighbors = pv.Neighbors[:e.cfg.NumNeighbors]
		}

		if err := e.computeNormal(pv, nbrs); err != nil {
			return nil, errors.Wrapf(err, "estimating normal of point %d", i)
		}
	}
	return out, nil
}

// computeNormal fits a plane to the closest neighbors around the point and
// stores its normal. nbrs is the raw neighbor query result, which still
// contains the point itself.
func (e *NormalEstimator) computeNormal(pv *PointVector, nbrs []pointcloud.Neighbor) error {
	// a plane needs 3 points: the point itself and two neighbors
	if len(pv.Neighbors) < 2 {
		pv.Normal = r3.Vector{}
		return nil
	}

	fit := e.fitBuf[:0]
	if len(pv.Neighbors)-1 < e.cfg.NumPlane {
		fit = append(fit, pv.P)
		for _, nb := range pv.Neighbors {
			fit = append(fit, nb.P)
		}
	} else {
		// select the point itself plus its numPlane-1 closest neighbors.
		// The raw result list contains the point at distance zero, so the
		// (numPlane-1)-th smallest distance bounds exactly that set.
		d := e.distances[:0]
		for _, nb := range nbrs {
			d = append(d, nb.Dist)
		}
		e.distances = d
		threshold := utils.QuickSelect(d, e.cfg.NumPlane-1)
		for _, nb := range nbrs {
			if nb.Dist <= threshold {
				fit = append(fit, nb.P)
			}
		}
	}
	e.fitBuf = fit

	plane, err := pointcloud.FitPlaneToPoints(fit)
	if err != nil {
		return err
	}
	pv.Normal = plane.Normal
	return nil
}
