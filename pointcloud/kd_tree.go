package pointcloud

import (
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// KDTree is a k-nearest-neighbor index over a snapshot of a point cloud. The
// tree holds its own copy of the coordinates; rebuild it if the source cloud
// changes.
type KDTree struct {
	tree *kdtree.Tree
	size int
}

// Neighbor is one k-nearest-neighbor query result.
type Neighbor struct {
	// Index is the position of the neighbor in build order.
	Index int
	Point r3.Vector
	// SqDist is the squared Euclidean distance to the query point.
	SqDist float64
}

type treePoint struct {
	pos r3.Vector
	idx int
}

var (
	_ kdtree.Comparable = treePoint{}
	_ kdtree.Interface  = treePoints{}
)

func (p treePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(treePoint)
	switch d {
	case 0:
		return p.pos.X - q.pos.X
	case 1:
		return p.pos.Y - q.pos.Y
	default:
		return p.pos.Z - q.pos.Z
	}
}

func (p treePoint) Dims() int { return 3 }

func (p treePoint) Distance(c kdtree.Comparable) float64 {
	q := c.(treePoint)
	return p.pos.Sub(q.pos).Norm2()
}

type treePoints []treePoint

func (p treePoints) Index(i int) kdtree.Comparable { return p[i] }
func (p treePoints) Len() int                      { return len(p) }
func (p treePoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

func (p treePoints) Pivot(d kdtree.Dim) int {
	return treePlane{treePoints: p, Dim: d}.Pivot()
}

type treePlane struct {
	treePoints
	kdtree.Dim
}

func (p treePlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.treePoints[i].pos.X < p.treePoints[j].pos.X
	case 1:
		return p.treePoints[i].pos.Y < p.treePoints[j].pos.Y
	default:
		return p.treePoints[i].pos.Z < p.treePoints[j].pos.Z
	}
}

func (p treePlane) Pivot() int {
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

func (p treePlane) Slice(start, end int) kdtree.SortSlicer {
	p.treePoints = p.treePoints[start:end]
	return p
}

func (p treePlane) Swap(i, j int) {
	p.treePoints[i], p.treePoints[j] = p.treePoints[j], p.treePoints[i]
}

// ToKDTree creates a KDTree from a point cloud, indexing points in iteration
// order.
func ToKDTree(cloud PointCloud) *KDTree {
	vecs := make([]r3.Vector, 0, cloud.Size())
	cloud.Iterate(func(p r3.Vector, _ Data) bool {
		vecs = append(vecs, p)
		return true
	})
	return NewKDTree(vecs)
}

// NewKDTree creates a KDTree directly from a list of vectors, indexed in
// order.
func NewKDTree(points []r3.Vector) *KDTree {
	tps := make(treePoints, len(points))
	for i, p := range points {
		tps[i] = treePoint{pos: p, idx: i}
	}
	if len(tps) == 0 {
		return &KDTree{size: 0}
	}
	return &KDTree{tree: kdtree.New(tps, false), size: len(tps)}
}

// Size returns the number of indexed points.
func (kd *KDTree) Size() int {
	return kd.size
}

// KNearestNeighbors returns up to k neighbors of p sorted ascending by
// distance. An empty index returns no results.
func (kd *KDTree) KNearestNeighbors(p r3.Vector, k int) []Neighbor {
	if kd.size == 0 || k <= 0 {
		return nil
	}
	if k > kd.size {
		k = kd.size
	}
	keeper := kdtree.NewNKeeper(k)
	kd.tree.NearestSet(keeper, treePoint{pos: p, idx: -1})

	nns := make([]Neighbor, 0, k)
	for _, cd := range keeper.Heap {
		if cd.Comparable == nil {
			continue
		}
		tp := cd.Comparable.(treePoint)
		nns = append(nns, Neighbor{Index: tp.idx, Point: tp.pos, SqDist: cd.Dist})
	}
	sort.Slice(nns, func(i, j int) bool { return nns[i].SqDist < nns[j].SqDist })
	return nns
}

// NearestNeighbor returns the single closest indexed point to p.
func (kd *KDTree) NearestNeighbor(p r3.Vector) (Neighbor, bool) {
	if kd.size == 0 {
		return Neighbor{}, false
	}
	got, dist := kd.tree.Nearest(treePoint{pos: p, idx: -1})
	if got == nil {
		return Neighbor{}, false
	}
	tp := got.(treePoint)
	return Neighbor{Index: tp.idx, Point: tp.pos, SqDist: dist}, true
}
