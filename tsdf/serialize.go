package tsdf

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"image/color"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// The on-disk format is a gob stream; gob is self-describing, so layers
// written by older builds keep decoding as fields are added.

type layerGob struct {
	VoxelSize     float64
	VoxelsPerSide int
	Blocks        []blockGob
}

type blockGob struct {
	Index  BlockIndex
	Voxels []Voxel
}

// GobEncode implements gob.GobEncoder.
func (l *Layer) GobEncode() ([]byte, error) {
	out := layerGob{
		VoxelSize:     l.voxelSize,
		VoxelsPerSide: l.voxelsPerSide,
	}
	for _, idx := range l.AllocatedBlockIndices() {
		b := l.blocks[idx]
		out.Blocks = append(out.Blocks, blockGob{Index: idx, Voxels: b.Voxels})
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (l *Layer) GobDecode(data []byte) error {
	var in layerGob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&in); err != nil {
		return err
	}
	if in.VoxelSize <= 0 || in.VoxelsPerSide <= 0 {
		return errors.Errorf("invalid layer geometry %f/%d", in.VoxelSize, in.VoxelsPerSide)
	}
	*l = *NewLayer(in.VoxelSize, in.VoxelsPerSide)
	want := in.VoxelsPerSide * in.VoxelsPerSide * in.VoxelsPerSide
	for _, bg := range in.Blocks {
		if len(bg.Voxels) != want {
			return errors.Errorf("block %v has %d voxels, want %d", bg.Index, len(bg.Voxels), want)
		}
		b := l.AllocateBlock(bg.Index)
		copy(b.Voxels, bg.Voxels)
	}
	return nil
}

type meshLayerGob struct {
	Indices  []BlockIndex
	Vertices [][]r3.Vector
	Colors   [][]color.NRGBA
}

// GobEncode implements gob.GobEncoder.
func (ml *MeshLayer) GobEncode() ([]byte, error) {
	var out meshLayerGob
	for _, idx := range ml.AllocatedMeshIndices() {
		m := ml.meshes[idx]
		out.Indices = append(out.Indices, idx)
		out.Vertices = append(out.Vertices, m.Vertices)
		out.Colors = append(out.Colors, m.Colors)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (ml *MeshLayer) GobDecode(data []byte) error {
	var in meshLayerGob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&in); err != nil {
		return err
	}
	ml.meshes = make(map[BlockIndex]*Mesh, len(in.Indices))
	for i, idx := range in.Indices {
		m := ml.AllocateMesh(idx)
		m.Vertices = in.Vertices[i]
		m.Colors = in.Colors[i]
		m.Updated = true
	}
	return nil
}

// SaveLayer writes a single dense field to path as a gob stream.
func SaveLayer(l *Layer, path string) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "cannot create %q", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err = gob.NewEncoder(w).Encode(l); err != nil {
		return errors.Wrapf(err, "cannot encode layer to %q", path)
	}
	return w.Flush()
}

// LoadLayer reads a single dense field from path.
func LoadLayer(path string) (*Layer, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %q", path)
	}
	defer utils.UncheckedErrorFunc(f.Close)
	var l Layer
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&l); err != nil {
		return nil, errors.Wrapf(err, "cannot decode layer from %q", path)
	}
	return &l, nil
}
