package submap

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"go.viam.com/mapeval/tsdf"
)

// File extensions the map loader understands.
const (
	// ExtCollection marks a self-describing multi-volume map.
	ExtCollection = ".smap"
	// ExtField marks a single dense volumetric field.
	ExtField = ".tsdf"
)

// ErrUnsupportedFormat is returned when a map file extension is not
// recognized.
var ErrUnsupportedFormat = errors.New("unsupported map format")

// Map is a loaded reconstructed map in either representation. Exactly one
// of Collection and Field is set.
type Map struct {
	Collection *Collection
	Field      *tsdf.Layer
}

// LoadMap reads a map file, dispatched by extension.
func LoadMap(path string) (*Map, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtCollection:
		c, err := LoadCollection(path)
		if err != nil {
			return nil, err
		}
		return &Map{Collection: c}, nil
	case ExtField:
		l, err := tsdf.LoadLayer(path)
		if err != nil {
			return nil, err
		}
		return &Map{Field: l}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "cannot load %q", path)
	}
}

// IsSingleField reports whether the map is a single dense field rather than
// a submap collection.
func (m *Map) IsSingleField() bool {
	return m.Field != nil
}

// View returns the query view appropriate for the map representation. For
// collections, singleTSDF selects the single-field query behavior (free
// space included, change states ignored).
func (m *Map) View(singleTSDF bool) View {
	if m.Field != nil {
		return NewFieldView(m.Field)
	}
	return NewCollectionView(m.Collection, singleTSDF)
}
