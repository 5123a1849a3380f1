package evaluation

import (
	"context"
	"math"

	"github.com/edaniels/golog"

	"go.viam.com/mapeval/pointcloud"
	"go.viam.com/mapeval/submap"
)

// skipForMeshPass excludes submaps whose vertices should not count against
// the ground truth: free-space volumes and volumes marked absent or
// unobserved. Single-field maps keep everything.
func skipForMeshPass(s *submap.Submap, singleTSDF bool) bool {
	if singleTSDF {
		return false
	}
	return s.Label == submap.LabelFreeSpace ||
		s.Change == submap.ChangeAbsent ||
		s.Change == submap.ChangeUnobserved
}

// MeshError measures, for every mesh vertex of the active submaps, the
// distance to the nearest ground-truth point. Vertices with no neighbor
// (empty index) are silently skipped.
//
// Cancelling the context aborts the pass and returns a partial summary with
// Completed unset.
func MeshError(
	ctx context.Context,
	index *pointcloud.KDTree,
	collection *submap.Collection,
	request Request,
	logger golog.Logger,
) Summary {
	samples := NewSampleSet(0)
	var inliers, outliers uint64

	totalBlocks := 0
	for _, s := range collection.Submaps() {
		totalBlocks += s.Meshes.Size()
	}
	blockCount := 0
	interrupted := false

	for _, s := range collection.Submaps() {
		if skipForMeshPass(s, request.IsSingleTSDF) {
			blockCount += s.Meshes.Size()
			continue
		}
		for _, idx := range s.Meshes.AllocatedMeshIndices() {
			if ctx.Err() != nil {
				interrupted = true
				break
			}
			mesh, _ := s.Meshes.MeshByIndex(idx)
			for _, vertex := range mesh.Vertices {
				nn, ok := index.NearestNeighbor(vertex)
				if !ok {
					continue
				}
				err := math.Sqrt(nn.SqDist)
				samples.Add(err)
				if err <= request.InlierDistance {
					inliers++
				} else {
					outliers++
				}
			}
			blockCount++
			if totalBlocks > 0 && request.Verbosity >= 2 {
				logger.Debugf("mesh error: %d%%", blockCount*100/totalBlocks)
			}
		}
		if interrupted {
			break
		}
	}

	summary := summarize(samples)
	summary.TotalPoints = uint64(samples.Size())
	summary.Inliers = inliers
	summary.Outliers = outliers
	summary.Completed = !interrupted

	if request.Verbosity >= 3 {
		logErrorHistogram("mesh error", samples, logger)
	}
	return summary
}
