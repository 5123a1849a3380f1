// Package tsdf implements a block-sparse truncated signed distance field
// with trilinear distance interpolation and the mesh layers derived from it.
//
// The evaluation engine only reads these structures; fusion of new sensor
// data is out of scope.
package tsdf

import (
	"image/color"
	"math"
	"sort"

	"github.com/golang/geo/r3"
)

// minVoxelWeight is the observation weight below which a voxel counts as
// never observed.
const minVoxelWeight = 1e-6

// Voxel is a single truncated signed distance cell.
type Voxel struct {
	Distance float64
	Weight   float64
	Color    color.NRGBA
}

// Observed reports whether the voxel carries any observation.
func (v *Voxel) Observed() bool {
	return v.Weight > minVoxelWeight
}

// BlockIndex addresses one block on the block grid.
type BlockIndex struct {
	X, Y, Z int32
}

// Block is a cube of VoxelsPerSide^3 voxels.
type Block struct {
	Index  BlockIndex
	Voxels []Voxel

	voxelsPerSide int
	voxelSize     float64
}

// NumVoxels returns the number of voxels in the block.
func (b *Block) NumVoxels() int {
	return len(b.Voxels)
}

// VoxelByLinearIndex returns a pointer to the voxel at the given linear
// index.
func (b *Block) VoxelByLinearIndex(i int) *Voxel {
	return &b.Voxels[i]
}

// Origin returns the low corner of the block in world coordinates.
func (b *Block) Origin() r3.Vector {
	side := float64(b.voxelsPerSide) * b.voxelSize
	return r3.Vector{
		X: float64(b.Index.X) * side,
		Y: float64(b.Index.Y) * side,
		Z: float64(b.Index.Z) * side,
	}
}

// VoxelCenter computes the world coordinates of the voxel at the given
// linear index.
func (b *Block) VoxelCenter(i int) r3.Vector {
	n := b.voxelsPerSide
	x := i % n
	y := (i / n) % n
	z := i / (n * n)
	origin := b.Origin()
	return r3.Vector{
		X: origin.X + (float64(x)+0.5)*b.voxelSize,
		Y: origin.Y + (float64(y)+0.5)*b.voxelSize,
		Z: origin.Z + (float64(z)+0.5)*b.voxelSize,
	}
}

// Layer is a block-sparse voxel layer.
type Layer struct {
	voxelSize     float64
	voxelsPerSide int
	blocks        map[BlockIndex]*Block
}

// NewLayer returns an empty layer with the given voxel size and block side
// length (in voxels).
func NewLayer(voxelSize float64, voxelsPerSide int) *Layer {
	return &Layer{
		voxelSize:     voxelSize,
		voxelsPerSide: voxelsPerSide,
		blocks:        make(map[BlockIndex]*Block),
	}
}

// VoxelSize returns the edge length of one voxel.
func (l *Layer) VoxelSize() float64 { return l.voxelSize }

// VoxelsPerSide returns the block side length in voxels.
func (l *Layer) VoxelsPerSide() int { return l.voxelsPerSide }

// BlockSize returns the edge length of one block.
func (l *Layer) BlockSize() float64 {
	return float64(l.voxelsPerSide) * l.voxelSize
}

// NumAllocatedBlocks returns the number of allocated blocks.
func (l *Layer) NumAllocatedBlocks() int {
	return len(l.blocks)
}

// BlockIndexFromCoordinates computes the index of the block containing p.
func (l *Layer) BlockIndexFromCoordinates(p r3.Vector) BlockIndex {
	side := l.BlockSize()
	return BlockIndex{
		X: int32(math.Floor(p.X / side)),
		Y: int32(math.Floor(p.Y / side)),
		Z: int32(math.Floor(p.Z / side)),
	}
}

// Block returns the allocated block at the given index, if any.
func (l *Layer) Block(idx BlockIndex) (*Block, bool) {
	b, ok := l.blocks[idx]
	return b, ok
}

// AllocateBlock returns the block at the given index, allocating it if
// needed.
func (l *Layer) AllocateBlock(idx BlockIndex) *Block {
	if b, ok := l.blocks[idx]; ok {
		return b
	}
	n := l.voxelsPerSide
	b := &Block{
		Index:         idx,
		Voxels:        make([]Voxel, n*n*n),
		voxelsPerSide: n,
		voxelSize:     l.voxelSize,
	}
	l.blocks[idx] = b
	return b
}

// AllocatedBlockIndices returns the indices of all allocated blocks in a
// deterministic order.
func (l *Layer) AllocatedBlockIndices() []BlockIndex {
	indices := make([]BlockIndex, 0, len(l.blocks))
	for idx := range l.blocks {
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
	return indices
}

func (l *Layer) linearIndexInBlock(p r3.Vector, blockIdx BlockIndex) int {
	side := l.BlockSize()
	n := l.voxelsPerSide
	localX := int(math.Floor((p.X - float64(blockIdx.X)*side) / l.voxelSize))
	localY := int(math.Floor((p.Y - float64(blockIdx.Y)*side) / l.voxelSize))
	localZ := int(math.Floor((p.Z - float64(blockIdx.Z)*side) / l.voxelSize))
	clamp := func(v int) int {
		if v < 0 {
			return 0
		}
		if v >= n {
			return n - 1
		}
		return v
	}
	localX, localY, localZ = clamp(localX), clamp(localY), clamp(localZ)
	return localX + localY*n + localZ*n*n
}

// VoxelAt returns the voxel containing p, or nil if its block is not
// allocated.
func (l *Layer) VoxelAt(p r3.Vector) (*Voxel, bool) {
	blockIdx := l.BlockIndexFromCoordinates(p)
	b, ok := l.blocks[blockIdx]
	if !ok {
		return nil, false
	}
	return b.VoxelByLinearIndex(l.linearIndexInBlock(p, blockIdx)), true
}

// AllocateVoxelAt returns the voxel containing p, allocating its block if
// needed. Used when constructing fields.
func (l *Layer) AllocateVoxelAt(p r3.Vector) *Voxel {
	blockIdx := l.BlockIndexFromCoordinates(p)
	b := l.AllocateBlock(blockIdx)
	return b.VoxelByLinearIndex(l.linearIndexInBlock(p, blockIdx))
}

// IsObserved reports whether the voxel containing p carries an observation.
func (l *Layer) IsObserved(p r3.Vector) bool {
	v, ok := l.VoxelAt(p)
	return ok && v.Observed()
}
