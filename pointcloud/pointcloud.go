// Package pointcloud defines a point cloud and the spatial primitives the
// evaluation engine needs on top of one: a kd-tree index, a fixed-size voxel
// grid, and a PLY codec.
//
// The implementation is dictionary based and sparse; clouds are treated as
// immutable once loaded.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// MetaData is data about what's stored in the point cloud.
type MetaData struct {
	HasColor bool
	HasValue bool

	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64

	// TotalX/Y/Z allow centroid computation without a second pass.
	TotalX, TotalY, TotalZ float64
}

// PointCloud is a general purpose container of points. It does not dictate
// whether or not the cloud is sparse or dense.
type PointCloud interface {
	// Size returns the number of points in the cloud.
	Size() int

	// MetaData returns meta data.
	MetaData() MetaData

	// Set places the given point in the cloud.
	Set(p r3.Vector, d Data) error

	// At returns the point in the cloud at the given position.
	// The 2nd return is if the point exists, the first is data if any.
	At(x, y, z float64) (Data, bool)

	// Iterate iterates over all points in the cloud and calls the given
	// function for each point. If the supplied function returns false,
	// iteration will stop after the function returns.
	Iterate(fn func(p r3.Vector, d Data) bool)
}

// NewMetaData returns a new MetaData with bounds ready to merge points into.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge merges in new data to the meta data.
func (meta *MetaData) Merge(v r3.Vector, data Data) {
	if data != nil {
		if data.HasColor() {
			meta.HasColor = true
		}
		if data.HasValue() {
			meta.HasValue = true
		}
	}

	if v.X > meta.MaxX {
		meta.MaxX = v.X
	}
	if v.Y > meta.MaxY {
		meta.MaxY = v.Y
	}
	if v.Z > meta.MaxZ {
		meta.MaxZ = v.Z
	}

	if v.X < meta.MinX {
		meta.MinX = v.X
	}
	if v.Y < meta.MinY {
		meta.MinY = v.Y
	}
	if v.Z < meta.MinZ {
		meta.MinZ = v.Z
	}

	meta.TotalX += v.X
	meta.TotalY += v.Y
	meta.TotalZ += v.Z
}

// CloudCentroid returns the centroid of a pointcloud as a vector.
func CloudCentroid(pc PointCloud) r3.Vector {
	if pc.Size() == 0 {
		return r3.Vector{}
	}
	meta := pc.MetaData()
	return r3.Vector{
		X: meta.TotalX / float64(pc.Size()),
		Y: meta.TotalY / float64(pc.Size()),
		Z: meta.TotalZ / float64(pc.Size()),
	}
}

// CloudContains returns whether a point cloud contains the given position.
func CloudContains(cloud PointCloud, x, y, z float64) bool {
	_, got := cloud.At(x, y, z)
	return got
}

// VectorsToPointCloud converts a list of vectors to a point cloud.
func VectorsToPointCloud(vectors []r3.Vector) (PointCloud, error) {
	cloud := NewWithPrealloc(len(vectors))
	for _, v := range vectors {
		if err := cloud.Set(v, nil); err != nil {
			return cloud, err
		}
	}
	return cloud, nil
}
