package submap

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/mapeval/tsdf"
)

// flatSubmap builds a submap whose field is fully observed around the
// origin with the given constant distance.
func flatSubmap(id int, distance float64) *Submap {
	s := NewSubmap(id, 0.1, 8)
	for _, dx := range []float64{-0.8, 0, 0.8} {
		for _, dy := range []float64{-0.8, 0, 0.8} {
			for _, dz := range []float64{-0.8, 0, 0.8} {
				idx := s.Tsdf.BlockIndexFromCoordinates(r3.Vector{X: dx, Y: dy, Z: dz})
				b := s.Tsdf.AllocateBlock(idx)
				for i := 0; i < b.NumVoxels(); i++ {
					v := b.VoxelByLinearIndex(i)
					v.Distance = distance
					v.Weight = 1
				}
			}
		}
	}
	return s
}

func TestClassVoxelLabels(t *testing.T) {
	instance := &Submap{ID: 1, ClassID: 7, InstanceID: 42, Label: LabelInstance}
	background := &Submap{ID: 2, ClassID: 3, Label: LabelBackground}

	for _, kind := range []ClassVoxelKind{ClassBinaryCount, ClassMovingBinaryCount} {
		v := ClassVoxel{Kind: kind, BelongsToSubmap: true}
		label, ok := v.Label(instance)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, label, test.ShouldEqual, 7*1000+42)

		label, ok = v.Label(background)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, label, test.ShouldEqual, 3*1000)

		_, ok = ClassVoxel{Kind: kind}.Label(instance)
		test.That(t, ok, test.ShouldBeFalse)
	}

	for _, kind := range []ClassVoxelKind{ClassFixedCount, ClassVariableCount, ClassPanopticWeight} {
		v := ClassVoxel{Kind: kind, BelongingID: 55}
		label, ok := v.Label(instance)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, label, test.ShouldEqual, 55)
	}
}

func TestClassLayerRoundTrip(t *testing.T) {
	cl := NewClassLayer(0.1, 8)
	v := cl.AllocateVoxelAt(r3.Vector{X: 0.15, Y: 0.25, Z: 0.05})
	v.Kind = ClassPanopticWeight
	v.BelongingID = 9

	_, ok := cl.VoxelAt(r3.Vector{X: 5, Y: 5, Z: 5})
	test.That(t, ok, test.ShouldBeFalse)

	data, err := cl.GobEncode()
	test.That(t, err, test.ShouldBeNil)
	var got ClassLayer
	test.That(t, got.GobDecode(data), test.ShouldBeNil)

	gv, ok := got.VoxelAt(r3.Vector{X: 0.15, Y: 0.25, Z: 0.05})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, gv.Kind, test.ShouldEqual, ClassPanopticWeight)
	test.That(t, gv.BelongingID, test.ShouldEqual, 9)
}

func TestCollectionSaveLoad(t *testing.T) {
	c := NewCollection()
	s := flatSubmap(3, 0.02)
	s.ClassID = 11
	s.InstanceID = 4
	s.Label = LabelInstance
	s.Change = ChangePersistent
	mesh := s.Meshes.AllocateMesh(tsdf.BlockIndex{})
	mesh.Vertices = []r3.Vector{{X: 0, Y: 0, Z: 0}, {X: 0.1, Y: 0, Z: 0}, {X: 0, Y: 0.1, Z: 0}}
	mesh.Colors = []color.NRGBA{{1, 1, 1, 255}, {1, 1, 1, 255}, {1, 1, 1, 255}}
	c.Add(s)

	path := filepath.Join(t.TempDir(), "map"+ExtCollection)
	test.That(t, c.Save(path), test.ShouldBeNil)

	got, err := LoadCollection(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Size(), test.ShouldEqual, 1)

	gs, ok := got.Get(3)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, gs.ClassID, test.ShouldEqual, 11)
	test.That(t, gs.Label, test.ShouldEqual, LabelInstance)
	test.That(t, gs.Change, test.ShouldEqual, ChangePersistent)
	test.That(t, gs.HasClassLayer(), test.ShouldBeFalse)
	gm, ok := gs.Meshes.MeshByIndex(tsdf.BlockIndex{})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, gm.Vertices, test.ShouldHaveLength, 3)

	gv, ok := gs.Tsdf.VoxelAt(r3.Vector{X: 0.05, Y: 0.05, Z: 0.05})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, gv.Distance, test.ShouldAlmostEqual, 0.02)
}

func TestLoadMapDispatch(t *testing.T) {
	dir := t.TempDir()

	c := NewCollection()
	c.Add(flatSubmap(1, 0))
	smapPath := filepath.Join(dir, "map"+ExtCollection)
	test.That(t, c.Save(smapPath), test.ShouldBeNil)

	m, err := LoadMap(smapPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.IsSingleField(), test.ShouldBeFalse)

	l := tsdf.NewLayer(0.1, 8)
	l.AllocateVoxelAt(r3.Vector{}).Weight = 1
	tsdfPath := filepath.Join(dir, "map"+ExtField)
	test.That(t, tsdf.SaveLayer(l, tsdfPath), test.ShouldBeNil)

	m, err = LoadMap(tsdfPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.IsSingleField(), test.ShouldBeTrue)

	_, err = LoadMap(filepath.Join(dir, "map.obj"))
	test.That(t, errors.Is(err, ErrUnsupportedFormat), test.ShouldBeTrue)

	_, err = LoadMap(filepath.Join(dir, "missing"+ExtCollection))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCollectionViewSkipRules(t *testing.T) {
	c := NewCollection()

	active := flatSubmap(1, 0.05)
	active.Change = ChangePersistent

	absent := flatSubmap(2, 0.9)
	absent.Change = ChangeAbsent

	free := flatSubmap(3, 0.5)
	free.Label = LabelFreeSpace
	free.Change = ChangePersistent

	c.Add(absent)
	c.Add(free)
	c.Add(active)

	view := NewCollectionView(c, false)
	d, observed := view.DistanceAt(r3.Vector{X: 0.1, Y: 0.1, Z: 0.1})
	test.That(t, observed, test.ShouldBeTrue)
	test.That(t, d, test.ShouldAlmostEqual, 0.05)
	test.That(t, view.IsObserved(r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}), test.ShouldBeTrue)

	// With only excluded submaps the point is unknown.
	c.Remove(active.ID)
	view = NewCollectionView(c, false)
	_, observed = view.DistanceAt(r3.Vector{X: 0.1, Y: 0.1, Z: 0.1})
	test.That(t, observed, test.ShouldBeFalse)
	test.That(t, view.IsObserved(r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}), test.ShouldBeFalse)

	// The single-field behavior includes free space and ignores change
	// states.
	view = NewCollectionView(c, true)
	d, observed = view.DistanceAt(r3.Vector{X: 0.1, Y: 0.1, Z: 0.1})
	test.That(t, observed, test.ShouldBeTrue)
	test.That(t, d, test.ShouldAlmostEqual, 0.9)
}

func TestFieldView(t *testing.T) {
	l := tsdf.NewLayer(0.1, 8)
	idx := l.BlockIndexFromCoordinates(r3.Vector{})
	b := l.AllocateBlock(idx)
	for i := 0; i < b.NumVoxels(); i++ {
		v := b.VoxelByLinearIndex(i)
		v.Distance = 0.07
		v.Weight = 1
	}

	view := NewFieldView(l)
	d, observed := view.DistanceAt(r3.Vector{X: 0.4, Y: 0.4, Z: 0.4})
	test.That(t, observed, test.ShouldBeTrue)
	test.That(t, d, test.ShouldAlmostEqual, 0.07)
	test.That(t, view.IsObserved(r3.Vector{X: 0.4, Y: 0.4, Z: 0.4}), test.ShouldBeTrue)
	test.That(t, view.IsObserved(r3.Vector{X: 4, Y: 4, Z: 4}), test.ShouldBeFalse)
}
