package pointcloud

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestVoxelCoordinates(t *testing.T) {
	c := GetVoxelCoordinates(r3.Vector{X: 0.12, Y: -0.01, Z: 0.049}, 0.05)
	test.That(t, c, test.ShouldResemble, VoxelCoords{I: 2, J: -1, K: 0})
	test.That(t, c.IsEqual(VoxelCoords{I: 2, J: -1, K: 0}), test.ShouldBeTrue)
}

func TestVoxelGridFromPointCloud(t *testing.T) {
	pc := New()
	// Two points in the same cell, one in a distant cell.
	test.That(t, pc.Set(NewVector(0.01, 0.01, 0.01), nil), test.ShouldBeNil)
	test.That(t, pc.Set(NewVector(0.03, 0.03, 0.01), nil), test.ShouldBeNil)
	test.That(t, pc.Set(NewVector(0.26, 0.01, 0.01), nil), test.ShouldBeNil)

	vg := NewVoxelGridFromPointCloud(pc, 0.05)
	test.That(t, vg.Size(), test.ShouldEqual, 2)

	vox, ok := vg.GetVoxelFromKey(VoxelCoords{0, 0, 0})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, len(vox.Points), test.ShouldEqual, 2)
	test.That(t, vox.Center.X, test.ShouldAlmostEqual, 0.02)
	test.That(t, vox.Center.Y, test.ShouldAlmostEqual, 0.02)
	test.That(t, vox.Center.Z, test.ShouldAlmostEqual, 0.01)

	test.That(t, vg.MinCoords, test.ShouldResemble, VoxelCoords{0, 0, 0})
	test.That(t, vg.MaxCoords, test.ShouldResemble, VoxelCoords{5, 0, 0})
	test.That(t, vg.TotalCells(), test.ShouldEqual, 6)

	cells := 0
	occupied := 0
	vg.IterateCells(func(coords VoxelCoords, vox *Voxel) bool {
		cells++
		if vox != nil {
			occupied++
		}
		return true
	})
	test.That(t, cells, test.ShouldEqual, 6)
	test.That(t, occupied, test.ShouldEqual, 2)
}

func TestSyntheticCentroid(t *testing.T) {
	vg := &VoxelGrid{VoxelSize: 0.05, Voxels: map[VoxelCoords]*Voxel{}}

	// The origin cell has no corner-to-center direction; the corner itself is
	// used.
	p := vg.SyntheticCentroid(VoxelCoords{0, 0, 0})
	test.That(t, p, test.ShouldResemble, r3.Vector{})

	p = vg.SyntheticCentroid(VoxelCoords{1, 0, 0})
	test.That(t, p.X, test.ShouldAlmostEqual, 0.05+0.025)
	test.That(t, p.Y, test.ShouldAlmostEqual, 0)
	test.That(t, p.Z, test.ShouldAlmostEqual, 0)

	p = vg.SyntheticCentroid(VoxelCoords{1, 1, 0})
	offset := 0.025 / math.Sqrt2
	test.That(t, p.X, test.ShouldAlmostEqual, 0.05+offset)
	test.That(t, p.Y, test.ShouldAlmostEqual, 0.05+offset)
	test.That(t, p.Z, test.ShouldAlmostEqual, 0)
}
