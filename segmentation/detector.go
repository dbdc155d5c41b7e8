package segmentation

import (
	"math"
	"math/rand"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/rangescan/shapedetect/octree"
	"github.com/rangescan/shapedetect/pointcloud"
	"github.com/rangescan/shapedetect/utils"
)

// sampleLocality is how many times the minimal sample size an octree node
// must hold before it is used as a sampling neighborhood.
const sampleLocality = 3

// sampleAttempts bounds the rejection sampling of unclaimed, distinct points
// out of a neighborhood before giving up on it.
const sampleAttempts = 30

// DetectorConfig parameterizes the RANSAC shape search.
type DetectorConfig struct {
	// Shapes is the ordered list of shape types to search for. The position
	// of a type in this list is its detection type index.
	Shapes []ShapeType `json:"shapes"`
	// MinPoints is the minimum support for a candidate to be accepted.
	MinPoints int `json:"min_points"`
	// MaxRounds bounds the number of detection rounds.
	MaxRounds int `json:"max_rounds"`
	// SamplesPerRound is the number of minimal samples drawn each round.
	SamplesPerRound int `json:"samples_per_round"`
	// DistanceThreshold is the maximum distance of an inlier to the shape
	// surface.
	DistanceThreshold float64 `json:"distance_threshold"`
	// NormalThreshold is the maximum angle in radians between a point normal
	// and the shape surface normal, compared sign-invariantly.
	NormalThreshold float64 `json:"normal_threshold"`
	// OctreeMaxPerNode is the split threshold of the sampling octree.
	OctreeMaxPerNode int `json:"octree_max_per_node"`
	// Seed seeds the sampler; runs with the same seed and input are
	// reproducible.
	Seed int64 `json:"seed"`
}

// CheckValid checks the config for sane values.
func (cfg *DetectorConfig) CheckValid() error {
	var err error
	if len(cfg.Shapes) == 0 {
		err = multierr.Combine(err, errors.New("shapes cannot be empty"))
	}
	seen := map[ShapeType]bool{}
	for _, t := range cfg.Shapes {
		if _, fitErr := fitterForShapeType(t); fitErr != nil {
			err = multierr.Combine(err, fitErr)
			continue
		}
		if seen[t] {
			err = multierr.Combine(err, errors.Errorf("duplicate shape type %q", t))
		}
		seen[t] = true
	}
	if cfg.MinPoints < 1 {
		err = multierr.Combine(err, errors.New("min_points cannot be less than 1"))
	}
	if cfg.MaxRounds < 1 {
		err = multierr.Combine(err, errors.New("max_rounds cannot be less than 1"))
	}
	if cfg.SamplesPerRound < 1 {
		err = multierr.Combine(err, errors.New("samples_per_round cannot be less than 1"))
	}
	if cfg.DistanceThreshold <= 0 {
		err = multierr.Combine(err, errors.New("distance_threshold must be greater than 0"))
	}
	if cfg.NormalThreshold <= 0 || cfg.NormalThreshold >= math.Pi/2 {
		err = multierr.Combine(err, errors.New("normal_threshold must be between 0 and pi/2 radians"))
	}
	if cfg.OctreeMaxPerNode < 1 {
		err = multierr.Combine(err, errors.New("octree_max_per_node cannot be less than 1"))
	}
	return err
}

// FoundShape is a single accepted detection. TypeIndex is the position of
// the shape's type in the configured shape list.
type FoundShape struct {
	TypeIndex int
	Shape     Primitive
	Points    []*PointVector
}

// Detector runs the efficient-RANSAC search: minimal samples are drawn with
// a spatial-locality bias from an octree, every configured shape type is fit
// to each sample, and the best supported candidate of a round is accepted
// greedily, claiming its inliers. A Detector and its pooled storage serve one
// run at a time.
type Detector struct {
	cfg       DetectorConfig
	logger    golog.Logger
	fitters   []fitter
	sample    int
	cosTol    float64
	maxRadius float64

	tree *octree.Tree
	rnd  *rand.Rand

	points  []*PointVector
	claimed []bool
	active  []int
	path    []*octree.Node
	samples [][]*PointVector
	found   []FoundShape
}

// NewDetector validates the configuration and returns a detector.
func NewDetector(cfg DetectorConfig, logger golog.Logger) (*Detector, error) {
	if err := cfg.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "invalid detector configuration")
	}
	d := &Detector{
		cfg:    cfg,
		logger: logger,
		cosTol: math.Cos(cfg.NormalThreshold),
	}
	for _, t := range cfg.Shapes {
		f, err := fitterForShapeType(t)
		if err != nil {
			return nil, err
		}
		d.fitters = append(d.fitters, f)
		d.sample = utils.MaxInt(d.sample, f.sampleSize())
	}
	tree, err := octree.New(cfg.OctreeMaxPerNode)
	if err != nil {
		return nil, err
	}
	d.tree = tree
	return d, nil
}

// Process searches points for shapes. bounds must contain every point. The
// results of the previous run are discarded.
func (d *Detector) Process(points []*PointVector, bounds pointcloud.Box) {
	d.points = points
	d.found = d.found[:0]
	d.rnd = rand.New(rand.NewSource(d.cfg.Seed))
	d.maxRadius = bounds.LongestSide()

	d.claimed = d.claimed[:0]
	for range points {
		d.claimed = append(d.claimed, false)
	}

	d.tree.Initialize(bounds)
	for _, pv := range points {
		d.tree.AddPoint(pv.P, pv)
	}

	unclaimed := len(points)
	for round := 0; round < d.cfg.MaxRounds; round++ {
		if unclaimed < d.sample {
			break
		}
		typeIndex, prim := d.searchRound()
		if prim == nil {
			break
		}
		support := d.claimSupport(prim)
		unclaimed -= len(support)
		d.found = append(d.found, FoundShape{TypeIndex: typeIndex, Shape: prim, Points: support})
		d.logger.Debugf("round %d accepted %s with %d supporting points",
			round, d.cfg.Shapes[typeIndex], len(support))
	}
}

// Found returns the accepted shapes of the last run.
func (d *Detector) Found() []FoundShape {
	return d.found
}

// AppendUnmatched appends every point never claimed by an accepted shape
// onto dst and returns it.
func (d *Detector) AppendUnmatched(dst []*PointVector) []*PointVector {
	for i, pv := range d.points {
		if !d.claimed[i] {
			dst = append(dst, pv)
		}
	}
	return dst
}

// searchRound draws the round's samples, fits every configured shape to each
// of them and returns the candidate with the largest support, or nil when no
// candidate reaches the minimum. Ties break toward the earlier shape type,
// then the earlier sample.
func (d *Detector) searchRound() (int, Primitive) {
	d.refreshActive()
	d.samples = d.samples[:0]
	for i := 0; i < d.cfg.SamplesPerRound; i++ {
		if s := d.drawSample(); s != nil {
			d.samples = append(d.samples, s)
		}
	}

	bestScore := d.cfg.MinPoints - 1
	bestType := -1
	var best Primitive
	for ti, f := range d.fitters {
		for _, s := range d.samples {
			prim, ok := f.fit(s[:f.sampleSize()])
			if !ok || !d.plausibleCandidate(prim) {
				continue
			}
			if score := d.countSupport(prim); score > bestScore {
				bestScore = score
				bestType = ti
				best = prim
			}
		}
	}
	return bestType, best
}

// plausibleCandidate rejects fits whose radius could not belong to a surface
// inside the indexed bounds. A minimal sample drawn from a noisy planar patch
// has near-parallel normals whose closest approach lies far away, so the fit
// comes back as a sphere or cylinder of enormous radius that locally coincides
// with the plane and would shadow it during scoring.
func (d *Detector) plausibleCandidate(prim Primitive) bool {
	switch s := prim.(type) {
	case Sphere:
		return s.Radius <= d.maxRadius
	case Cylinder:
		return s.Radius <= d.maxRadius
	}
	return true
}

// refreshActive rebuilds the list of unclaimed point indices.
func (d *Detector) refreshActive() {
	d.active = d.active[:0]
	for i := range d.points {
		if !d.claimed[i] {
			d.active = append(d.active, i)
		}
	}
}

// drawSample draws one minimal sample biased toward spatial locality: a
// random unclaimed seed point picks an octree node on its root-to-leaf path,
// and the rest of the sample comes from that node's cumulative entry list.
// Falls back to a uniform draw over unclaimed points when the neighborhood
// rejects too many picks.
func (d *Detector) drawSample() []*PointVector {
	if len(d.active) < d.sample {
		return nil
	}
	seed := d.points[d.active[d.rnd.Intn(len(d.active))]]

	d.path = d.tree.AppendPath(seed.P, d.path[:0])
	var candidates []*octree.Node
	for _, n := range d.path {
		if n.PointCount() >= sampleLocality*d.sample {
			candidates = append(candidates, n)
		}
	}

	sample := make([]*PointVector, 0, d.sample)
	sample = append(sample, seed)
	if len(candidates) > 0 {
		node := candidates[d.rnd.Intn(len(candidates))]
		for attempt := 0; attempt < sampleAttempts && len(sample) < d.sample; attempt++ {
			e := d.tree.EntryAt(node, d.rnd.Intn(node.PointCount()))
			pv := e.Data.(*PointVector)
			if d.claimed[pv.Index] || contains(sample, pv) {
				continue
			}
			sample = append(sample, pv)
		}
	}
	for attempt := 0; attempt < sampleAttempts && len(sample) < d.sample; attempt++ {
		pv := d.points[d.active[utils.SampleRandomIntRange(0, len(d.active)-1, d.rnd)]]
		if contains(sample, pv) {
			continue
		}
		sample = append(sample, pv)
	}
	if len(sample) < d.sample {
		return nil
	}
	return sample
}

func contains(sample []*PointVector, pv *PointVector) bool {
	for _, s := range sample {
		if s.Index == pv.Index {
			return true
		}
	}
	return false
}

// isInlier reports whether an unclaimed point supports the candidate: it
// must lie within the distance tolerance of the surface and its normal,
// when determined, must align with the surface normal within the angular
// tolerance. Points with an undetermined normal never support a shape.
func (d *Detector) isInlier(prim Primitive, pv *PointVector) bool {
	if d.claimed[pv.Index] {
		return false
	}
	if prim.Distance(pv.P) > d.cfg.DistanceThreshold {
		return false
	}
	if pv.Normal.Norm() == 0 {
		return false
	}
	return math.Abs(pv.Normal.Dot(prim.NormalAt(pv.P))) >= d.cosTol
}

func (d *Detector) countSupport(prim Primitive) int {
	count := 0
	for _, pv := range d.points {
		if d.isInlier(prim, pv) {
			count++
		}
	}
	return count
}

// claimSupport marks every inlier of the accepted candidate as claimed and
// returns them. Once claimed, a point cannot support a later candidate in
// the same run.
func (d *Detector) claimSupport(prim Primitive) []*PointVector {
	var support []*PointVector
	for i, pv := range d.points {
		if d.isInlier(prim, pv) {
			d.claimed[i] = true
			support = append(support, pv)
		}
	}
	return support
}
