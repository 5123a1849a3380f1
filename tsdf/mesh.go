package tsdf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"sort"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
)

// Mesh is the triangle soup extracted for one block: every run of three
// vertices is one triangle. Colors, when present, parallel the vertices.
type Mesh struct {
	Vertices []r3.Vector
	Colors   []color.NRGBA
	// Updated is cleared when stored colors change and the rendered mesh
	// needs regeneration.
	Updated bool
}

// MeshLayer stores the per-block meshes of one volume.
type MeshLayer struct {
	meshes map[BlockIndex]*Mesh
}

// NewMeshLayer returns an empty mesh layer.
func NewMeshLayer() *MeshLayer {
	return &MeshLayer{meshes: make(map[BlockIndex]*Mesh)}
}

// MeshByIndex returns the mesh stored for the given block, if any.
func (ml *MeshLayer) MeshByIndex(idx BlockIndex) (*Mesh, bool) {
	m, ok := ml.meshes[idx]
	return m, ok
}

// AllocateMesh returns the mesh for the given block, allocating it if
// needed.
func (ml *MeshLayer) AllocateMesh(idx BlockIndex) *Mesh {
	if m, ok := ml.meshes[idx]; ok {
		return m
	}
	m := &Mesh{}
	ml.meshes[idx] = m
	return m
}

// Size returns the number of allocated block meshes.
func (ml *MeshLayer) Size() int {
	return len(ml.meshes)
}

// AllocatedMeshIndices returns the indices of all allocated block meshes in
// a deterministic order.
func (ml *MeshLayer) AllocatedMeshIndices() []BlockIndex {
	indices := make([]BlockIndex, 0, len(ml.meshes))
	for idx := range ml.meshes {
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

// NumVertices returns the total vertex count across all block meshes.
func (ml *MeshLayer) NumVertices() int {
	total := 0
	for _, m := range ml.meshes {
		total += len(m.Vertices)
	}
	return total
}

// ConnectedMesh is a merged, vertex-deduplicated surface with explicit
// triangle indices.
type ConnectedMesh struct {
	Vertices []r3.Vector
	Colors   []color.NRGBA
	Faces    [][3]int
}

// ConnectMeshes merges triangle soups into one connected mesh, collapsing
// identical vertex positions. The first color seen for a position wins.
func ConnectMeshes(meshes []*Mesh) *ConnectedMesh {
	cm := &ConnectedMesh{}
	seen := make(map[r3.Vector]int)
	add := func(v r3.Vector, c color.NRGBA) int {
		if i, ok := seen[v]; ok {
			return i
		}
		i := len(cm.Vertices)
		seen[v] = i
		cm.Vertices = append(cm.Vertices, v)
		cm.Colors = append(cm.Colors, c)
		return i
	}
	for _, m := range meshes {
		for i := 0; i+2 < len(m.Vertices); i += 3 {
			var face [3]int
			for j := 0; j < 3; j++ {
				c := color.NRGBA{A: 255}
				if i+j < len(m.Colors) {
					c = m.Colors[i+j]
				}
				face[j] = add(m.Vertices[i+j], c)
			}
			cm.Faces = append(cm.Faces, face)
		}
	}
	return cm
}

// WritePLY writes the connected mesh as a PLY surface with vertex colors and
// triangle faces.
func (cm *ConnectedMesh) WritePLY(out io.Writer, binaryMode bool) error {
	format := "ascii"
	if binaryMode {
		format = "binary_little_endian"
	}
	header := fmt.Sprintf("ply\nformat %s 1.0\nelement vertex %d\n"+
		"property float x\nproperty float y\nproperty float z\n"+
		"property uchar red\nproperty uchar green\nproperty uchar blue\n"+
		"element face %d\nproperty list uchar int vertex_indices\nend_header\n",
		format, len(cm.Vertices), len(cm.Faces))
	if _, err := io.WriteString(out, header); err != nil {
		return err
	}
	for i, v := range cm.Vertices {
		c := cm.Colors[i]
		if binaryMode {
			buf := make([]byte, 15)
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v.X)))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(v.Y)))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(v.Z)))
			buf[12], buf[13], buf[14] = c.R, c.G, c.B
			if _, err := out.Write(buf); err != nil {
				return err
			}
		} else if _, err := fmt.Fprintf(out, "%f %f %f %d %d %d\n", v.X, v.Y, v.Z, c.R, c.G, c.B); err != nil {
			return err
		}
	}
	for _, f := range cm.Faces {
		if binaryMode {
			buf := make([]byte, 13)
			buf[0] = 3
			binary.LittleEndian.PutUint32(buf[1:], uint32(f[0]))
			binary.LittleEndian.PutUint32(buf[5:], uint32(f[1]))
			binary.LittleEndian.PutUint32(buf[9:], uint32(f[2]))
			if _, err := out.Write(buf); err != nil {
				return err
			}
		} else if _, err := fmt.Fprintf(out, "3 %d %d %d\n", f[0], f[1], f[2]); err != nil {
			return err
		}
	}
	return nil
}

// WritePLYFile writes the connected mesh to the given path.
func (cm *ConnectedMesh) WritePLYFile(path string) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err = cm.WritePLY(w, true); err != nil {
		return err
	}
	return w.Flush()
}
