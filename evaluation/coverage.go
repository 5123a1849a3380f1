package evaluation

import (
	"context"

	"github.com/edaniels/golog"

	"go.viam.com/mapeval/pointcloud"
	"go.viam.com/mapeval/submap"
)

// coverageCellSize is the edge length of the coverage grid cells.
const coverageCellSize = 0.05

// CoverageCloud voxelizes the ground truth on a fixed grid and keeps, for
// every grid cell inside the occupied bounding box, its representative point
// when the map has observed that location. Occupied cells are represented by
// their in-cell centroid, empty cells by a deterministic synthetic centroid,
// so real surface and probed empty space stay distinguishable.
func CoverageCloud(
	ctx context.Context,
	groundTruth pointcloud.PointCloud,
	view submap.View,
	logger golog.Logger,
) (pointcloud.PointCloud, error) {
	grid := pointcloud.NewVoxelGridFromPointCloud(groundTruth, coverageCellSize)
	logger.Debugf("coverage grid: %d occupied of %d cells", grid.Size(), grid.TotalCells())

	out := pointcloud.New()
	var iterErr error
	grid.IterateCells(func(coords pointcloud.VoxelCoords, vox *pointcloud.Voxel) bool {
		if err := ctx.Err(); err != nil {
			iterErr = err
			return false
		}
		rep := grid.SyntheticCentroid(coords)
		if vox != nil {
			rep = vox.Center
		}
		if !view.IsObserved(rep) {
			return true
		}
		iterErr = out.Set(rep, nil)
		return iterErr == nil
	})
	if iterErr != nil {
		return nil, iterErr
	}
	return out, nil
}

// CoverageRatio relates an observed coverage cloud to the grid it was built
// from: covered cells over all cells in the ground-truth bounding box.
func CoverageRatio(coverage pointcloud.PointCloud, groundTruth pointcloud.PointCloud) float64 {
	grid := pointcloud.NewVoxelGridFromPointCloud(groundTruth, coverageCellSize)
	total := grid.TotalCells()
	if total == 0 {
		return 0
	}
	return float64(coverage.Size()) / float64(total)
}
