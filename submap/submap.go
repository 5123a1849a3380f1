// Package submap models a reconstructed map as a collection of
// independently-placed bounded volumes, each carrying a truncated signed
// distance field, an optional classification layer, and a derived mesh.
//
// A single unbounded field is supported through the same query interface so
// evaluators never branch on the map representation.
package submap

import (
	"github.com/golang/geo/r3"

	"go.viam.com/mapeval/tsdf"
)

// PanopticLabel is the semantic class of a submap.
type PanopticLabel int

const (
	// LabelBackground marks stuff regions (walls, floor).
	LabelBackground PanopticLabel = iota
	// LabelInstance marks one tracked object instance.
	LabelInstance
	// LabelFreeSpace marks the traversable free-space volume.
	LabelFreeSpace
)

func (l PanopticLabel) String() string {
	switch l {
	case LabelBackground:
		return "background"
	case LabelInstance:
		return "instance"
	case LabelFreeSpace:
		return "free_space"
	default:
		return "unknown"
	}
}

// ChangeState is the temporal classification of a submap across repeated
// observations of the same scene.
type ChangeState int

const (
	// ChangeNew marks a volume observed for the first time.
	ChangeNew ChangeState = iota
	// ChangePersistent marks a volume confirmed to still exist.
	ChangePersistent
	// ChangeAbsent marks a volume confirmed to have disappeared.
	ChangeAbsent
	// ChangeUnobserved marks a volume not seen again yet.
	ChangeUnobserved
)

func (c ChangeState) String() string {
	switch c {
	case ChangeNew:
		return "new"
	case ChangePersistent:
		return "persistent"
	case ChangeAbsent:
		return "absent"
	case ChangeUnobserved:
		return "unobserved"
	default:
		return "unknown"
	}
}

// Submap is one independently bounded volume of the map.
type Submap struct {
	ID         int
	ClassID    int
	InstanceID int
	Label      PanopticLabel
	Change     ChangeState

	// TruncationDistance is the maximum meaningful signed distance magnitude
	// stored near the surface.
	TruncationDistance float64

	Tsdf    *tsdf.Layer
	Classes *ClassLayer // nil when the submap has no classification layer
	Meshes  *tsdf.MeshLayer
}

// NewSubmap returns a submap with allocated empty layers.
func NewSubmap(id int, voxelSize float64, voxelsPerSide int) *Submap {
	return &Submap{
		ID:                 id,
		Change:             ChangeNew,
		TruncationDistance: 2 * voxelSize,
		Tsdf:               tsdf.NewLayer(voxelSize, voxelsPerSide),
		Meshes:             tsdf.NewMeshLayer(),
	}
}

// HasClassLayer reports whether the submap carries classification voxels.
func (s *Submap) HasClassLayer() bool {
	return s.Classes != nil
}

// ContainsPoint reports whether p falls inside the submap's allocated
// volume.
func (s *Submap) ContainsPoint(p r3.Vector) bool {
	_, ok := s.Tsdf.VoxelAt(p)
	return ok
}
