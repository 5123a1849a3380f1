package submap

import (
	"bufio"
	"encoding/gob"
	"os"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/mapeval/tsdf"
)

// Collection owns the submaps of one reconstructed map. Iteration order is
// ascending by submap ID.
type Collection struct {
	submaps map[int]*Submap
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{submaps: make(map[int]*Submap)}
}

// Size returns the number of submaps.
func (c *Collection) Size() int {
	return len(c.submaps)
}

// Add inserts a submap, replacing any existing submap with the same ID.
func (c *Collection) Add(s *Submap) {
	c.submaps[s.ID] = s
}

// Get returns the submap with the given ID, if present.
func (c *Collection) Get(id int) (*Submap, bool) {
	s, ok := c.submaps[id]
	return s, ok
}

// Remove deletes the submap with the given ID.
func (c *Collection) Remove(id int) {
	delete(c.submaps, id)
}

// Submaps returns all submaps ordered by ID.
func (c *Collection) Submaps() []*Submap {
	out := make([]*Submap, 0, len(c.submaps))
	for _, s := range c.submaps {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type collectionGob struct {
	Submaps []*Submap
}

// Save writes the collection to path as a gob stream.
func (c *Collection) Save(path string) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "cannot create %q", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err = gob.NewEncoder(w).Encode(collectionGob{Submaps: c.Submaps()}); err != nil {
		return errors.Wrapf(err, "cannot encode collection to %q", path)
	}
	return w.Flush()
}

// LoadCollection reads a collection from path.
func LoadCollection(path string) (*Collection, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %q", path)
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var in collectionGob
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&in); err != nil {
		return nil, errors.Wrapf(err, "cannot decode collection from %q", path)
	}
	c := NewCollection()
	for _, s := range in.Submaps {
		if s.Tsdf == nil {
			return nil, errors.Errorf("submap %d in %q has no distance layer", s.ID, path)
		}
		if s.Meshes == nil {
			s.Meshes = tsdf.NewMeshLayer()
		}
		c.Add(s)
	}
	return c, nil
}
