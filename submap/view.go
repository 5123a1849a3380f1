package submap

import (
	"github.com/golang/geo/r3"

	"go.viam.com/mapeval/tsdf"
)

// View is the capability interface evaluators use to query a map without
// knowing its representation. Implementations hold a non-owning reference to
// a map owned by the caller for the duration of one evaluation run.
type View interface {
	// DistanceAt returns the interpolated signed distance at p. The second
	// return is false when p lies in unknown space.
	DistanceAt(p r3.Vector) (float64, bool)

	// IsObserved reports whether the map has observed the space at p.
	IsObserved(p r3.Vector) bool
}

// CollectionView answers queries against a multi-volume map. Volumes are
// consulted in ID order and the first valid reading wins.
type CollectionView struct {
	collection *Collection

	// Single-field collections keep free space and ignore change states;
	// true multi-volume maps do the opposite.
	considerChangeState bool
	includeFreeSpace    bool

	interpolators map[int]*tsdf.Interpolator
}

// NewCollectionView returns a view over the collection. With singleField
// set, free-space volumes are included and change states are ignored.
func NewCollectionView(c *Collection, singleField bool) *CollectionView {
	return &CollectionView{
		collection:          c,
		considerChangeState: !singleField,
		includeFreeSpace:    singleField,
		interpolators:       make(map[int]*tsdf.Interpolator),
	}
}

func (cv *CollectionView) skip(s *Submap) bool {
	if !cv.includeFreeSpace && s.Label == LabelFreeSpace {
		return true
	}
	if cv.considerChangeState && (s.Change == ChangeAbsent || s.Change == ChangeUnobserved) {
		return true
	}
	return false
}

func (cv *CollectionView) interpolator(s *Submap) *tsdf.Interpolator {
	if in, ok := cv.interpolators[s.ID]; ok {
		return in
	}
	in := tsdf.NewInterpolator(s.Tsdf)
	cv.interpolators[s.ID] = in
	return in
}

// DistanceAt implements View.
func (cv *CollectionView) DistanceAt(p r3.Vector) (float64, bool) {
	for _, s := range cv.collection.Submaps() {
		if cv.skip(s) || !s.ContainsPoint(p) {
			continue
		}
		if d, observed := cv.interpolator(s).Distance(p); observed {
			return d, true
		}
	}
	return 0, false
}

// IsObserved implements View.
func (cv *CollectionView) IsObserved(p r3.Vector) bool {
	for _, s := range cv.collection.Submaps() {
		if cv.skip(s) {
			continue
		}
		if s.Tsdf.IsObserved(p) {
			return true
		}
	}
	return false
}

// FieldView answers queries against a single dense field.
type FieldView struct {
	layer  *tsdf.Layer
	interp *tsdf.Interpolator
}

// NewFieldView returns a view over the field.
func NewFieldView(layer *tsdf.Layer) *FieldView {
	return &FieldView{layer: layer, interp: tsdf.NewInterpolator(layer)}
}

// DistanceAt implements View.
func (fv *FieldView) DistanceAt(p r3.Vector) (float64, bool) {
	return fv.interp.Distance(p)
}

// IsObserved implements View.
func (fv *FieldView) IsObserved(p r3.Vector) bool {
	return fv.layer.IsObserved(p)
}
