package segmentation

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// MergerConfig parameterizes duplicate-shape merging.
type MergerConfig struct {
	// CommonFraction is the fraction of a shape's support that must lie on
	// another shape's surface for the two to be considered duplicates.
	CommonFraction float64 `json:"common_fraction"`
	// DistanceThreshold is the maximum distance of a support point to the
	// other shape's surface for it to count as common.
	DistanceThreshold float64 `json:"distance_threshold"`
	// NormalThreshold is the maximum angle in radians between a support
	// point's normal and the other shape's surface normal, compared
	// sign-invariantly.
	NormalThreshold float64 `json:"normal_threshold"`
}

// CheckValid checks the config for sane values.
func (cfg *MergerConfig) CheckValid() error {
	var err error
	if cfg.CommonFraction <= 0 || cfg.CommonFraction > 1 {
		err = multierr.Combine(err, errors.New("common_fraction must be in (0, 1]"))
	}
	if cfg.DistanceThreshold <= 0 {
		err = multierr.Combine(err, errors.New("distance_threshold must be greater than 0"))
	}
	if cfg.NormalThreshold <= 0 || cfg.NormalThreshold >= math.Pi/2 {
		err = multierr.Combine(err, errors.New("normal_threshold must be between 0 and pi/2 radians"))
	}
	return err
}

// Merger deduplicates detections of the same physical surface: when most of
// one shape's support also lies on another shape, the two are combined into
// one, keeping the parameters of the larger detection. Merging runs to a
// fixpoint, which makes it idempotent, and support unions are deduplicated
// by original index so no supporting point is dropped or double counted.
type Merger struct {
	cfg    MergerConfig
	cosTol float64

	member []bool
}

// NewMerger validates the configuration and returns a merger.
func NewMerger(cfg MergerConfig) (*Merger, error) {
	if err := cfg.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "invalid merger configuration")
	}
	return &Merger{cfg: cfg, cosTol: math.Cos(cfg.NormalThreshold)}, nil
}

// Merge combines duplicate shapes and returns the deduplicated list. The
// input slice is not modified. cloudSize is the total number of points in
// the processed cloud and sizes the membership scratch.
func (m *Merger) Merge(shapes []FoundShape, cloudSize int) []FoundShape {
	out := append([]FoundShape(nil), shapes...)

	m.member = m.member[:0]
	for i := 0; i < cloudSize; i++ {
		m.member = append(m.member, false)
	}

	for {
		i, j, found := m.findDuplicatePair(out)
		if !found {
			return out
		}
		// absorb the smaller detection into the larger one
		if len(out[i].Points) < len(out[j].Points) {
			i, j = j, i
		}
		out[i].Points = m.unionSupport(out[i].Points, out[j].Points)
		out = append(out[:j], out[j+1:]...)
	}
}

// findDuplicatePair returns the first pair of shapes that describe the same
// surface, in list order so results are deterministic.
func (m *Merger) findDuplicatePair(shapes []FoundShape) (int, int, bool) {
	for i := 0; i < len(shapes); i++ {
		for j := i + 1; j < len(shapes); j++ {
			if m.commonFraction(shapes[i], shapes[j]) >= m.cfg.CommonFraction ||
				m.commonFraction(shapes[j], shapes[i]) >= m.cfg.CommonFraction {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// commonFraction returns the fraction of a's support lying on b's surface.
func (m *Merger) commonFraction(a, b FoundShape) float64 {
	if len(a.Points) == 0 {
		return 0
	}
	common := 0
	for _, pv := range a.Points {
		if b.Shape.Distance(pv.P) > m.cfg.DistanceThreshold {
			continue
		}
		if pv.Normal.Norm() == 0 {
			continue
		}
		if math.Abs(pv.Normal.Dot(b.Shape.NormalAt(pv.P))) >= m.cosTol {
			common++
		}
	}
	return float64(common) / float64(len(a.Points))
}

// unionSupport returns the union of the two support lists, deduplicated by
// original index, without touching either input.
func (m *Merger) unionSupport(a, b []*PointVector) []*PointVector {
	union := make([]*PointVector, 0, len(a)+len(b))
	union = append(union, a...)
	for _, pv := range a {
		m.member[pv.Index] = true
	}
	for _, pv := range b {
		if !m.member[pv.Index] {
			union = append(union, pv)
		}
	}
	for _, pv := range a {
		m.member[pv.Index] = false
	}
	return union
}
