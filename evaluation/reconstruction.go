package evaluation

import (
	"context"
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"

	"go.viam.com/mapeval/pointcloud"
	"go.viam.com/mapeval/submap"
)

// ReconstructionError measures, for every ground-truth point, the
// interpolated map distance at that point. Points in unknown space are
// counted but contribute no sample; points beyond the clamp distance
// contribute the clamp distance unless truncated points are ignored. The
// inlier test uses the raw distance.
//
// Cancelling the context aborts the pass and returns a partial summary with
// Completed unset.
func ReconstructionError(
	ctx context.Context,
	cloud pointcloud.PointCloud,
	view submap.View,
	request Request,
	logger golog.Logger,
) Summary {
	samples := NewSampleSet(cloud.Size())
	var total, unknown, truncated, inliers uint64

	interval := cloud.Size() / 100
	if interval == 0 {
		interval = 1
	}
	count := 0
	interrupted := false

	cloud.Iterate(func(p r3.Vector, _ pointcloud.Data) bool {
		if ctx.Err() != nil {
			interrupted = true
			return false
		}
		total++

		distance, observed := view.DistanceAt(p)
		if observed {
			d := math.Abs(distance)
			if d > request.MaximumDistance {
				truncated++
				if !request.IgnoreTruncatedPoints {
					samples.Add(request.MaximumDistance)
				}
			} else {
				samples.Add(d)
			}
			if d <= request.InlierDistance {
				inliers++
			}
		} else {
			unknown++
		}

		if count%interval == 0 && request.Verbosity >= 2 {
			logger.Debugf("reconstruction error: %d%%", count*100/cloud.Size())
		}
		count++
		return true
	})

	summary := summarize(samples)
	summary.TotalPoints = total
	summary.UnknownPoints = unknown
	summary.TruncatedPoints = truncated
	summary.Inliers = inliers
	summary.Completed = !interrupted

	if request.Verbosity >= 3 {
		logErrorHistogram("reconstruction error", samples, logger)
	}
	return summary
}
