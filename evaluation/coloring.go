package evaluation

import (
	"context"
	"image/color"
	"math"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"go.viam.com/mapeval/pointcloud"
	"go.viam.com/mapeval/submap"
	"go.viam.com/mapeval/tsdf"
)

// maxNeighborsFactor bounds the per-voxel neighbor search. The allowed
// neighbor count scales with the squared voxel size so denser grids search
// proportionally fewer points.
const maxNeighborsFactor = 25000

// ColorReconstructionError overwrites the map's stored colors with the
// green-to-red error gradient and saves the colored copy next to the
// original map. Grey marks regions with no nearby ground-truth surface.
//
// With ColorByMeshDistance set, each mesh vertex is colored by its distance
// to the nearest ground-truth point and the copy is saved as
// <map>_evaluated.smap. Otherwise each distance voxel is colored by the mean
// (or maximum) interpolated error of the ground-truth points within one
// voxel size, saved as <map>_evaluated_mean.smap or _max.smap.
func ColorReconstructionError(
	ctx context.Context,
	index *pointcloud.KDTree,
	m *submap.Map,
	request Request,
	logger golog.Logger,
) error {
	if m.Collection == nil {
		return errors.New("coloring requires a submap collection")
	}
	pruneInactiveSubmaps(m.Collection, request.IsSingleTSDF)

	dir, name := splitMapPath(request.MapFile)
	if request.ColorByMeshDistance {
		if err := colorByMeshDistance(ctx, index, m.Collection, request); err != nil {
			return err
		}
		out := filepath.Join(dir, name+"_evaluated"+submap.ExtCollection)
		logger.Debugf("saving colored map to %q", out)
		return m.Collection.Save(out)
	}

	if err := colorByVoxelError(ctx, index, m.Collection, request, logger); err != nil {
		return err
	}
	mode := "mean"
	if request.ColorByMaxError {
		mode = "max"
	}
	out := filepath.Join(dir, name+"_evaluated_"+mode+submap.ExtCollection)
	logger.Debugf("saving colored map to %q", out)
	return m.Collection.Save(out)
}

// pruneInactiveSubmaps drops free-space and non-persistent submaps so the
// colored map shows only surviving surface.
func pruneInactiveSubmaps(c *submap.Collection, singleTSDF bool) {
	if singleTSDF {
		return
	}
	var remove []int
	for _, s := range c.Submaps() {
		if s.Label == submap.LabelFreeSpace || s.Change != submap.ChangePersistent {
			remove = append(remove, s.ID)
		}
	}
	for _, id := range remove {
		c.Remove(id)
	}
}

func colorByMeshDistance(
	ctx context.Context,
	index *pointcloud.KDTree,
	c *submap.Collection,
	request Request,
) error {
	for _, s := range c.Submaps() {
		for _, idx := range s.Meshes.AllocatedMeshIndices() {
			if err := ctx.Err(); err != nil {
				return err
			}
			mesh, _ := s.Meshes.MeshByIndex(idx)
			mesh.Colors = make([]color.NRGBA, len(mesh.Vertices))
			for i, vertex := range mesh.Vertices {
				nn, ok := index.NearestNeighbor(vertex)
				if !ok {
					mesh.Colors[i] = unknownColor
					continue
				}
				frac := ErrorFraction(math.Sqrt(nn.SqDist), request.MaximumDistance)
				mesh.Colors[i] = ErrorColor(frac)
			}
			mesh.Updated = false
		}
	}
	return nil
}

func colorByVoxelError(
	ctx context.Context,
	index *pointcloud.KDTree,
	c *submap.Collection,
	request Request,
	logger golog.Logger,
) error {
	for _, s := range c.Submaps() {
		voxelSize := s.Tsdf.VoxelSize()
		voxelSizeSqr := voxelSize * voxelSize
		maxNeighbors := int(maxNeighborsFactor * voxelSizeSqr)
		if maxNeighbors < 1 {
			maxNeighbors = 1
		}
		interp := tsdf.NewInterpolator(s.Tsdf)

		blocks := s.Tsdf.AllocatedBlockIndices()
		for bi, blockIdx := range blocks {
			if err := ctx.Err(); err != nil {
				return err
			}
			block, _ := s.Tsdf.Block(blockIdx)
			for li := 0; li < block.NumVoxels(); li++ {
				voxel := block.VoxelByLinearIndex(li)
				if voxel.Distance > s.TruncationDistance || voxel.Distance < -s.TruncationDistance {
					// These voxels can never be surface.
					continue
				}
				center := block.VoxelCenter(li)

				// Ground-truth points within one voxel size.
				neighbors := index.KNearestNeighbors(center, maxNeighbors)
				if len(neighbors) == 0 {
					voxel.Color = unknownColor
					continue
				}
				totalError := 0.0
				maxError := 0.0
				counted := 0
				minDistSqr := math.Inf(1)
				for _, nn := range neighbors {
					minDistSqr = math.Min(minDistSqr, nn.SqDist)
					if nn.SqDist > voxelSizeSqr {
						continue
					}
					if d, observed := interp.Distance(nn.Point); observed {
						err := math.Abs(d)
						totalError += err
						maxError = math.Max(maxError, err)
						counted++
					}
				}
				if counted == 0 {
					counted = 1
					totalError = math.Sqrt(minDistSqr)
					maxError = totalError
				}
				errValue := totalError / float64(counted)
				if request.ColorByMaxError {
					errValue = maxError
				}
				voxel.Color = ErrorColor(ErrorFraction(errValue, request.MaximumDistance))
			}
			if request.Verbosity >= 2 {
				logger.Debugf("coloring submap %d: %d%%", s.ID, (bi+1)*100/len(blocks))
			}
		}

		// Stored vertex colors no longer match the voxel colors.
		for _, idx := range s.Meshes.AllocatedMeshIndices() {
			mesh, _ := s.Meshes.MeshByIndex(idx)
			mesh.Updated = false
		}
	}
	return nil
}
