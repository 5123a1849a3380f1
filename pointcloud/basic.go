package pointcloud

import (
	"github.com/golang/geo/r3"
)

// PointAndData is a tiny struct to couple a point with its data.
type PointAndData struct {
	P r3.Vector
	D Data
}

// basicPointCloud is the basic implementation of the PointCloud interface
// backed by a slice of points with a position index.
type basicPointCloud struct {
	points   []PointAndData
	indexMap map[r3.Vector]int
	meta     MetaData
}

// New returns an empty PointCloud backed by a basicPointCloud.
func New() PointCloud {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty, preallocated PointCloud backed by a
// basicPointCloud.
func NewWithPrealloc(size int) PointCloud {
	return &basicPointCloud{
		points:   make([]PointAndData, 0, size),
		indexMap: make(map[r3.Vector]int, size),
		meta:     NewMetaData(),
	}
}

func (cloud *basicPointCloud) Size() int {
	return len(cloud.points)
}

func (cloud *basicPointCloud) MetaData() MetaData {
	return cloud.meta
}

func (cloud *basicPointCloud) At(x, y, z float64) (Data, bool) {
	i, ok := cloud.indexMap[r3.Vector{X: x, Y: y, Z: z}]
	if !ok {
		return nil, false
	}
	return cloud.points[i].D, true
}

func (cloud *basicPointCloud) Set(p r3.Vector, d Data) error {
	if i, ok := cloud.indexMap[p]; ok {
		cloud.points[i].D = d
		return nil
	}
	cloud.indexMap[p] = len(cloud.points)
	cloud.points = append(cloud.points, PointAndData{P: p, D: d})
	cloud.meta.Merge(p, d)
	return nil
}

func (cloud *basicPointCloud) Iterate(fn func(p r3.Vector, d Data) bool) {
	for _, pd := range cloud.points {
		if !fn(pd.P, pd.D) {
			return
		}
	}
}
