package evaluation

import (
	"encoding/csv"
	"image/color"
	"os"
	"strconv"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/mapeval/pointcloud"
	"go.viam.com/mapeval/submap"
	"go.viam.com/mapeval/tsdf"
)

// maxExportLabel is the largest panoptic label written to a labeled cloud;
// larger values come from corrupted classification voxels.
const maxExportLabel = 50000

// ExportMergedMesh merges all submap meshes into one connected surface and
// writes it as a binary PLY.
func ExportMergedMesh(c *submap.Collection, path string) error {
	var meshes []*tsdf.Mesh
	for _, s := range c.Submaps() {
		for _, idx := range s.Meshes.AllocatedMeshIndices() {
			mesh, _ := s.Meshes.MeshByIndex(idx)
			meshes = append(meshes, mesh)
		}
	}
	combined := tsdf.ConnectMeshes(meshes)
	if err := combined.WritePLYFile(path); err != nil {
		return errors.Wrapf(err, "cannot write merged mesh to %q", path)
	}
	return nil
}

// LabeledCloud builds a point cloud of all classified mesh vertices, each
// carrying its mesh color and the submap's panoptic label. Submaps without a
// classification layer contribute nothing; binary-count voxels not belonging
// to their submap are dropped, as are labels beyond maxExportLabel.
func LabeledCloud(c *submap.Collection) pointcloud.PointCloud {
	out := pointcloud.New()
	for _, s := range c.Submaps() {
		if !s.HasClassLayer() {
			continue
		}
		for _, idx := range s.Meshes.AllocatedMeshIndices() {
			mesh, _ := s.Meshes.MeshByIndex(idx)
			for i, vertex := range mesh.Vertices {
				label := 0
				if v, ok := s.Classes.VoxelAt(vertex); ok {
					decoded, keep := v.Label(s)
					if !keep {
						continue
					}
					label = decoded
				}
				if label > maxExportLabel {
					continue
				}
				vc := color.NRGBA{A: 255}
				if i < len(mesh.Colors) {
					vc = mesh.Colors[i]
				}
				//nolint:errcheck
				out.Set(vertex, pointcloud.NewColoredData(vc).SetValue(label))
			}
		}
	}
	return out
}

// LoadLabelRemap reads an instance-to-class table from a two-column CSV with
// an "InstanceID,ClassID" header. Extra columns are ignored.
func LoadLabelRemap(path string) (map[int]int, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open label map %q", path)
	}
	defer utils.UncheckedErrorFunc(f.Close)

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read label map %q", path)
	}
	if len(records) == 0 {
		return nil, errors.Errorf("label map %q is empty", path)
	}
	instCol, classCol := -1, -1
	for i, name := range records[0] {
		switch name {
		case "InstanceID":
			instCol = i
		case "ClassID":
			classCol = i
		}
	}
	if instCol < 0 || classCol < 0 {
		return nil, errors.Errorf("label map %q lacks InstanceID/ClassID columns", path)
	}
	remap := make(map[int]int, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) <= instCol || len(rec) <= classCol {
			continue
		}
		inst, err := strconv.Atoi(rec[instCol])
		if err != nil {
			return nil, errors.Wrapf(err, "bad InstanceID %q", rec[instCol])
		}
		class, err := strconv.Atoi(rec[classCol])
		if err != nil {
			return nil, errors.Wrapf(err, "bad ClassID %q", rec[classCol])
		}
		remap[inst] = class
	}
	return remap, nil
}

// RemapLabels rewrites every point label through the instance-to-class
// table: mapped instances become classID*1000+instanceID, unmapped labels
// are multiplied by 1000.
func RemapLabels(cloud pointcloud.PointCloud, remap map[int]int) pointcloud.PointCloud {
	out := pointcloud.NewWithPrealloc(cloud.Size())
	cloud.Iterate(func(p r3.Vector, d pointcloud.Data) bool {
		if d == nil || !d.HasValue() {
			//nolint:errcheck
			out.Set(p, d)
			return true
		}
		label := d.Value()
		if class, ok := remap[label]; ok {
			label = class*1000 + label
		} else {
			label *= 1000
		}
		//nolint:errcheck
		out.Set(p, d.SetValue(label))
		return true
	})
	return out
}

// ExportLabeledPointcloud writes the labeled vertex cloud of the collection
// as a binary PLY. For single-field maps a label map CSV sitting next to the
// map (<name>.csv) remaps instance labels to class labels first.
func ExportLabeledPointcloud(
	c *submap.Collection,
	outPath, labelMapPath string,
	singleTSDF bool,
	logger golog.Logger,
) error {
	cloud := LabeledCloud(c)
	if singleTSDF {
		if _, err := os.Stat(labelMapPath); err == nil {
			remap, err := LoadLabelRemap(labelMapPath)
			if err != nil {
				return err
			}
			logger.Debugf("remapping labels through %q (%d entries)", labelMapPath, len(remap))
			cloud = RemapLabels(cloud, remap)
		}
	}
	if err := pointcloud.WriteToFile(outPath, cloud); err != nil {
		return errors.Wrapf(err, "cannot write labeled point cloud to %q", outPath)
	}
	return nil
}
