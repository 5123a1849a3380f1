package evaluation

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/mapeval/pointcloud"
	"go.viam.com/mapeval/submap"
	"go.viam.com/mapeval/tsdf"
)

// classifiedSubmap builds an instance submap with one mesh vertex per given
// position, each backed by a belonging binary-count class voxel.
func classifiedSubmap(id, classID, instanceID int, vertices ...r3.Vector) *submap.Submap {
	s := submap.NewSubmap(id, 0.1, 8)
	s.ClassID = classID
	s.InstanceID = instanceID
	s.Label = submap.LabelInstance
	s.Change = submap.ChangePersistent
	s.Classes = submap.NewClassLayer(0.1, 8)
	mesh := s.Meshes.AllocateMesh(tsdf.BlockIndex{})
	for _, v := range vertices {
		mesh.Vertices = append(mesh.Vertices, v)
		mesh.Colors = append(mesh.Colors, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
		cv := s.Classes.AllocateVoxelAt(v)
		cv.Kind = submap.ClassBinaryCount
		cv.BelongsToSubmap = true
	}
	return s
}

func TestLabeledCloud(t *testing.T) {
	c := submap.NewCollection()
	c.Add(classifiedSubmap(1, 7, 42, r3.Vector{X: 0.05}, r3.Vector{X: 0.15}))

	// A vertex whose class voxel does not belong to the submap is dropped.
	dropped := classifiedSubmap(2, 7, 43, r3.Vector{X: 5.05})
	cv, ok := dropped.Classes.VoxelAt(r3.Vector{X: 5.05})
	test.That(t, ok, test.ShouldBeTrue)
	cv.BelongsToSubmap = false
	c.Add(dropped)

	// Labels beyond the export limit are dropped too.
	c.Add(classifiedSubmap(3, 51, 0, r3.Vector{X: 10.05}))

	// Submaps without a classification layer contribute nothing.
	unclassified := meshedSubmap(4, submap.ChangePersistent, r3.Vector{X: 20.05})
	c.Add(unclassified)

	cloud := LabeledCloud(c)
	test.That(t, cloud.Size(), test.ShouldEqual, 2)
	d, ok := cloud.At(0.05, 0, 0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d.Value(), test.ShouldEqual, 7*1000+42)
	r, g, b := d.RGB255()
	test.That(t, []uint8{r, g, b}, test.ShouldResemble, []uint8{10, 20, 30})
}

func TestLoadLabelRemap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.csv")
	content := "InstanceID,ClassID\n42,7\n43,9\n"
	test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)

	remap, err := LoadLabelRemap(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, remap, test.ShouldResemble, map[int]int{42: 7, 43: 9})

	_, err = LoadLabelRemap(filepath.Join(t.TempDir(), "missing.csv"))
	test.That(t, err, test.ShouldNotBeNil)

	bad := filepath.Join(t.TempDir(), "bad.csv")
	test.That(t, os.WriteFile(bad, []byte("A,B\n1,2\n"), 0o600), test.ShouldBeNil)
	_, err = LoadLabelRemap(bad)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRemapLabels(t *testing.T) {
	cloud := pointcloud.New()
	test.That(t, cloud.Set(r3.Vector{X: 1}, pointcloud.NewValueData(42)), test.ShouldBeNil)
	test.That(t, cloud.Set(r3.Vector{X: 2}, pointcloud.NewValueData(5)), test.ShouldBeNil)

	out := RemapLabels(cloud, map[int]int{42: 7})

	d, ok := out.At(1, 0, 0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d.Value(), test.ShouldEqual, 7*1000+42)

	// Unmapped labels are multiplied by 1000.
	d, ok = out.At(2, 0, 0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d.Value(), test.ShouldEqual, 5000)
}

func TestExportLabeledPointcloudRoundTrip(t *testing.T) {
	logger := golog.NewTestLogger(t)
	dir := t.TempDir()

	c := submap.NewCollection()
	c.Add(classifiedSubmap(1, 0, 42, r3.Vector{X: 0.05}))
	// With label 0*1000+42 the submap acts as a raw instance id source.

	labelMap := filepath.Join(dir, "map.csv")
	test.That(t, os.WriteFile(labelMap, []byte("InstanceID,ClassID\n42,7\n"), 0o600), test.ShouldBeNil)

	out := filepath.Join(dir, "map.pointcloud.ply")
	test.That(t, ExportLabeledPointcloud(c, out, labelMap, true, logger), test.ShouldBeNil)

	got, err := pointcloud.NewFromFile(out, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Size(), test.ShouldEqual, 1)
	var label int
	got.Iterate(func(_ r3.Vector, d pointcloud.Data) bool {
		label = d.Value()
		return true
	})
	test.That(t, label, test.ShouldEqual, 7*1000+42)
}

func TestExportMergedMesh(t *testing.T) {
	dir := t.TempDir()
	c := submap.NewCollection()
	s := submap.NewSubmap(1, 0.1, 8)
	mesh := s.Meshes.AllocateMesh(tsdf.BlockIndex{})
	mesh.Vertices = []r3.Vector{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 1, Y: 1, Z: 0}}
	c.Add(s)

	out := filepath.Join(dir, "map.mesh.ply")
	test.That(t, ExportMergedMesh(c, out), test.ShouldBeNil)

	data, err := os.ReadFile(out)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data[:4]), test.ShouldEqual, "ply\n")
	// Shared vertices are deduplicated into 4 vertices and 2 faces.
	test.That(t, string(data), test.ShouldContainSubstring, "element vertex 4")
	test.That(t, string(data), test.ShouldContainSubstring, "element face 2")
}
