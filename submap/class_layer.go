package submap

import (
	"bytes"
	"encoding/gob"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/mapeval/tsdf"
)

// ClassVoxelKind discriminates the classification voxel encodings. Each kind
// has exactly one decoding function; there is no dispatch through a common
// voxel base type.
type ClassVoxelKind int

const (
	// ClassBinaryCount counts belongs/does-not-belong observations.
	ClassBinaryCount ClassVoxelKind = iota
	// ClassMovingBinaryCount is a binary count with temporal decay.
	ClassMovingBinaryCount
	// ClassFixedCount counts votes over a fixed id set.
	ClassFixedCount
	// ClassVariableCount counts votes over a growing id set.
	ClassVariableCount
	// ClassPanopticWeight tracks a weighted winning id.
	ClassPanopticWeight
)

// ClassVoxel is a tagged union over the classification voxel encodings.
// Which fields are meaningful depends on Kind.
type ClassVoxel struct {
	Kind ClassVoxelKind

	// BelongsToSubmap is meaningful for the binary-count kinds.
	BelongsToSubmap bool
	// BelongingID is meaningful for the counting and weight kinds.
	BelongingID int
}

// Label decodes the panoptic label this voxel assigns to a mesh vertex of
// the owning submap. The second return is false when the voxel assigns no
// label (e.g. a binary-count voxel not belonging to the submap).
func (v ClassVoxel) Label(owner *Submap) (int, bool) {
	switch v.Kind {
	case ClassBinaryCount, ClassMovingBinaryCount:
		return decodeBinaryCountLabel(v, owner)
	case ClassFixedCount, ClassVariableCount, ClassPanopticWeight:
		return decodeBelongingLabel(v)
	default:
		return 0, false
	}
}

func decodeBinaryCountLabel(v ClassVoxel, owner *Submap) (int, bool) {
	if !v.BelongsToSubmap {
		return 0, false
	}
	label := owner.ClassID * 1000
	if owner.Label == LabelInstance {
		label += owner.InstanceID
	}
	return label, true
}

func decodeBelongingLabel(v ClassVoxel) (int, bool) {
	return v.BelongingID, true
}

// ClassLayer is a block-sparse layer of classification voxels sharing the
// geometry of the submap's distance layer.
type ClassLayer struct {
	voxelSize     float64
	voxelsPerSide int
	blocks        map[tsdf.BlockIndex][]ClassVoxel
}

// NewClassLayer returns an empty classification layer with the given
// geometry.
func NewClassLayer(voxelSize float64, voxelsPerSide int) *ClassLayer {
	return &ClassLayer{
		voxelSize:     voxelSize,
		voxelsPerSide: voxelsPerSide,
		blocks:        make(map[tsdf.BlockIndex][]ClassVoxel),
	}
}

func (cl *ClassLayer) blockSize() float64 {
	return float64(cl.voxelsPerSide) * cl.voxelSize
}

func (cl *ClassLayer) blockIndex(p r3.Vector) tsdf.BlockIndex {
	side := cl.blockSize()
	return tsdf.BlockIndex{
		X: int32(math.Floor(p.X / side)),
		Y: int32(math.Floor(p.Y / side)),
		Z: int32(math.Floor(p.Z / side)),
	}
}

func (cl *ClassLayer) linearIndex(p r3.Vector, idx tsdf.BlockIndex) int {
	side := cl.blockSize()
	n := cl.voxelsPerSide
	clamp := func(v int) int {
		if v < 0 {
			return 0
		}
		if v >= n {
			return n - 1
		}
		return v
	}
	x := clamp(int(math.Floor((p.X - float64(idx.X)*side) / cl.voxelSize)))
	y := clamp(int(math.Floor((p.Y - float64(idx.Y)*side) / cl.voxelSize)))
	z := clamp(int(math.Floor((p.Z - float64(idx.Z)*side) / cl.voxelSize)))
	return x + y*n + z*n*n
}

// HasBlock reports whether the layer has voxels for the given block.
func (cl *ClassLayer) HasBlock(idx tsdf.BlockIndex) bool {
	_, ok := cl.blocks[idx]
	return ok
}

// VoxelAt returns the classification voxel containing p, if allocated.
func (cl *ClassLayer) VoxelAt(p r3.Vector) (*ClassVoxel, bool) {
	idx := cl.blockIndex(p)
	voxels, ok := cl.blocks[idx]
	if !ok {
		return nil, false
	}
	return &voxels[cl.linearIndex(p, idx)], true
}

// AllocateVoxelAt returns the classification voxel containing p, allocating
// its block if needed.
func (cl *ClassLayer) AllocateVoxelAt(p r3.Vector) *ClassVoxel {
	idx := cl.blockIndex(p)
	voxels, ok := cl.blocks[idx]
	if !ok {
		n := cl.voxelsPerSide
		voxels = make([]ClassVoxel, n*n*n)
		cl.blocks[idx] = voxels
	}
	return &voxels[cl.linearIndex(p, idx)]
}

type classLayerGob struct {
	VoxelSize     float64
	VoxelsPerSide int
	Indices       []tsdf.BlockIndex
	Blocks        [][]ClassVoxel
}

// GobEncode implements gob.GobEncoder.
func (cl *ClassLayer) GobEncode() ([]byte, error) {
	out := classLayerGob{
		VoxelSize:     cl.voxelSize,
		VoxelsPerSide: cl.voxelsPerSide,
	}
	indices := make([]tsdf.BlockIndex, 0, len(cl.blocks))
	for idx := range cl.blocks {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool {
		a, b := indices[i], indices[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	for _, idx := range indices {
		out.Indices = append(out.Indices, idx)
		out.Blocks = append(out.Blocks, cl.blocks[idx])
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (cl *ClassLayer) GobDecode(data []byte) error {
	var in classLayerGob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&in); err != nil {
		return err
	}
	if in.VoxelSize <= 0 || in.VoxelsPerSide <= 0 {
		return errors.Errorf("invalid class layer geometry %f/%d", in.VoxelSize, in.VoxelsPerSide)
	}
	*cl = *NewClassLayer(in.VoxelSize, in.VoxelsPerSide)
	for i, idx := range in.Indices {
		cl.blocks[idx] = in.Blocks[i]
	}
	return nil
}
