package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// VoxelCoords stores voxel coordinates on a grid anchored at the world
// origin.
type VoxelCoords struct {
	I, J, K int64
}

// IsEqual tests if two VoxelCoords are the same.
func (c VoxelCoords) IsEqual(c2 VoxelCoords) bool {
	return c.I == c2.I && c.J == c2.J && c.K == c2.K
}

// GetVoxelCoordinates computes the voxel coordinates of a point on a grid
// with the given voxel size.
func GetVoxelCoordinates(pt r3.Vector, voxelSize float64) VoxelCoords {
	return VoxelCoords{
		I: int64(math.Floor(pt.X / voxelSize)),
		J: int64(math.Floor(pt.Y / voxelSize)),
		K: int64(math.Floor(pt.Z / voxelSize)),
	}
}

// GetVoxelCenter computes the barycenter of a slice of points.
func GetVoxelCenter(points []r3.Vector) r3.Vector {
	center := r3.Vector{}
	for _, pt := range points {
		center = center.Add(pt)
	}
	if len(points) > 0 {
		center = center.Mul(1. / float64(len(points)))
	}
	return center
}

// Voxel gathers the points of one occupied grid cell.
type Voxel struct {
	Key    VoxelCoords
	Points []r3.Vector
	Center r3.Vector
}

// VoxelGrid is a fixed-size voxelization of a point cloud. Only occupied
// cells are stored; the bounding box of occupied cells is kept so callers
// can walk every cell inside it.
type VoxelGrid struct {
	VoxelSize float64
	Voxels    map[VoxelCoords]*Voxel
	MinCoords VoxelCoords
	MaxCoords VoxelCoords
}

// NewVoxelGridFromPointCloud creates and fills a VoxelGrid from a point
// cloud, computing each occupied cell's centroid.
func NewVoxelGridFromPointCloud(pc PointCloud, voxelSize float64) *VoxelGrid {
	vg := &VoxelGrid{
		VoxelSize: voxelSize,
		Voxels:    make(map[VoxelCoords]*Voxel),
		MinCoords: VoxelCoords{math.MaxInt64, math.MaxInt64, math.MaxInt64},
		MaxCoords: VoxelCoords{math.MinInt64, math.MinInt64, math.MinInt64},
	}
	pc.Iterate(func(p r3.Vector, _ Data) bool {
		coords := GetVoxelCoordinates(p, voxelSize)
		vox, ok := vg.Voxels[coords]
		if !ok {
			vox = &Voxel{Key: coords}
			vg.Voxels[coords] = vox
			vg.mergeBounds(coords)
		}
		vox.Points = append(vox.Points, p)
		return true
	})
	for _, vox := range vg.Voxels {
		vox.Center = GetVoxelCenter(vox.Points)
	}
	return vg
}

func (vg *VoxelGrid) mergeBounds(c VoxelCoords) {
	vg.MinCoords.I = min(vg.MinCoords.I, c.I)
	vg.MinCoords.J = min(vg.MinCoords.J, c.J)
	vg.MinCoords.K = min(vg.MinCoords.K, c.K)
	vg.MaxCoords.I = max(vg.MaxCoords.I, c.I)
	vg.MaxCoords.J = max(vg.MaxCoords.J, c.J)
	vg.MaxCoords.K = max(vg.MaxCoords.K, c.K)
}

// GetVoxelFromKey returns the voxel stored at the given coordinates, if any.
func (vg *VoxelGrid) GetVoxelFromKey(coords VoxelCoords) (*Voxel, bool) {
	vox, ok := vg.Voxels[coords]
	return vox, ok
}

// Size returns the number of occupied cells.
func (vg *VoxelGrid) Size() int {
	return len(vg.Voxels)
}

// TotalCells returns the number of grid cells inside the occupied bounding
// box, occupied or not.
func (vg *VoxelGrid) TotalCells() int {
	if len(vg.Voxels) == 0 {
		return 0
	}
	return int((vg.MaxCoords.I - vg.MinCoords.I + 1) *
		(vg.MaxCoords.J - vg.MinCoords.J + 1) *
		(vg.MaxCoords.K - vg.MinCoords.K + 1))
}

// SyntheticCentroid returns the deterministic representative point of an
// empty cell: the cell corner offset by half a cell size along the
// corner-to-center unit vector. It is distinguishable from any real surface
// centroid.
func (vg *VoxelGrid) SyntheticCentroid(coords VoxelCoords) r3.Vector {
	corner := r3.Vector{
		X: float64(coords.I) * vg.VoxelSize,
		Y: float64(coords.J) * vg.VoxelSize,
		Z: float64(coords.K) * vg.VoxelSize,
	}
	t := r3.Vector{
		X: float64(coords.I), Y: float64(coords.J), Z: float64(coords.K),
	}.Normalize().Mul(vg.VoxelSize / 2)
	return corner.Add(t)
}

// IterateCells walks every cell index inside the occupied bounding box,
// occupied or not, until fn returns false.
func (vg *VoxelGrid) IterateCells(fn func(coords VoxelCoords, vox *Voxel) bool) {
	if len(vg.Voxels) == 0 {
		return
	}
	for i := vg.MinCoords.I; i <= vg.MaxCoords.I; i++ {
		for j := vg.MinCoords.J; j <= vg.MaxCoords.J; j++ {
			for k := vg.MinCoords.K; k <= vg.MaxCoords.K; k++ {
				coords := VoxelCoords{i, j, k}
				if !fn(coords, vg.Voxels[coords]) {
					return
				}
			}
		}
	}
}
