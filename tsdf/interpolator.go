package tsdf

import (
	"math"

	"github.com/golang/geo/r3"
)

// Interpolator answers signed distance queries against a layer using
// trilinear interpolation over the 8 voxel centers surrounding the query
// point.
type Interpolator struct {
	layer *Layer
}

// NewInterpolator returns an interpolator reading from the given layer. The
// interpolator does not own the layer.
func NewInterpolator(layer *Layer) *Interpolator {
	return &Interpolator{layer: layer}
}

// Distance returns the interpolated signed distance at p. The second return
// is false when any of the 8 surrounding voxels is unallocated or
// unobserved; interpolating into unknown space is never safe.
func (in *Interpolator) Distance(p r3.Vector) (float64, bool) {
	vs := in.layer.voxelSize
	// Shift by half a voxel so the surrounding voxel centers bracket p.
	sx := p.X/vs - 0.5
	sy := p.Y/vs - 0.5
	sz := p.Z/vs - 0.5
	bx, by, bz := math.Floor(sx), math.Floor(sy), math.Floor(sz)
	fx, fy, fz := sx-bx, sy-by, sz-bz

	var distance float64
	for corner := 0; corner < 8; corner++ {
		dx := float64(corner & 1)
		dy := float64((corner >> 1) & 1)
		dz := float64((corner >> 2) & 1)
		center := r3.Vector{
			X: (bx + dx + 0.5) * vs,
			Y: (by + dy + 0.5) * vs,
			Z: (bz + dz + 0.5) * vs,
		}
		voxel, ok := in.layer.VoxelAt(center)
		if !ok || !voxel.Observed() {
			return 0, false
		}
		weight := lerpWeight(fx, dx) * lerpWeight(fy, dy) * lerpWeight(fz, dz)
		distance += weight * voxel.Distance
	}
	return distance, true
}

func lerpWeight(frac, corner float64) float64 {
	if corner == 0 {
		return 1 - frac
	}
	return frac
}
