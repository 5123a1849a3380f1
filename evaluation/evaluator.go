package evaluation

import (
	"context"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/mapeval/pointcloud"
	"go.viam.com/mapeval/submap"
)

// renderPixelsPerUnit is the resolution of the optional top-down render.
const renderPixelsPerUnit = 100

// Evaluator runs the configured passes of one request. The ground truth and
// its spatial index are loaded once and shared by all passes; the evaluated
// map is owned by the evaluator for the duration of one run.
type Evaluator struct {
	request Request
	logger  golog.Logger

	groundTruth pointcloud.PointCloud
	index       *pointcloud.KDTree
}

// NewEvaluator validates the request and returns an evaluator for it.
func NewEvaluator(request Request, logger golog.Logger) (*Evaluator, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{request: request, logger: logger}, nil
}

// loadGroundTruth reads the ground-truth cloud and builds the neighbor
// index over a snapshot of it.
func (e *Evaluator) loadGroundTruth() error {
	if e.groundTruth != nil {
		return nil
	}
	cloud, err := pointcloud.NewFromFile(e.request.GroundTruthFile, e.logger)
	if err != nil {
		return errors.Wrapf(err, "cannot load ground truth point cloud from %q",
			e.request.GroundTruthFile)
	}
	e.groundTruth = cloud
	e.index = pointcloud.ToKDTree(cloud)
	if e.request.Verbosity >= 2 {
		e.logger.Debugf("loaded ground truth point cloud (%d points)", cloud.Size())
	}
	return nil
}

// Run executes the requested passes against the request's map file.
func (e *Evaluator) Run(ctx context.Context) error {
	req := e.request
	needsGroundTruth := req.Evaluate || req.ComputeColoring || req.ExportCoveragePointcloud
	if needsGroundTruth {
		if err := e.loadGroundTruth(); err != nil {
			return err
		}
	}

	m, err := submap.LoadMap(req.MapFile)
	if err != nil {
		return errors.Wrapf(err, "cannot load map from %q", req.MapFile)
	}
	if req.Verbosity >= 2 {
		e.logger.Debugf("loaded map %q", req.MapFile)
	}
	return e.processMap(ctx, m)
}

func (e *Evaluator) processMap(ctx context.Context, m *submap.Map) error {
	req := e.request
	dir, name := splitMapPath(req.MapFile)

	if req.Evaluate {
		if err := e.writeReconstructionSummary(ctx, m, dir, name); err != nil {
			return err
		}
	}
	if req.ExportMesh && m.Collection != nil {
		out := filepath.Join(dir, name+".mesh.ply")
		if err := ExportMergedMesh(m.Collection, out); err != nil {
			return err
		}
	}
	if req.ExportLabeledPointcloud && m.Collection != nil {
		out := filepath.Join(dir, name+".pointcloud.ply")
		labelMap := filepath.Join(dir, name+".csv")
		if err := ExportLabeledPointcloud(m.Collection, out, labelMap, req.IsSingleTSDF, e.logger); err != nil {
			return err
		}
	}
	if req.ExportCoveragePointcloud {
		if err := e.writeCoverage(ctx, m, dir, name); err != nil {
			return err
		}
	}
	if req.ComputeColoring {
		if req.Verbosity >= 2 {
			e.logger.Debug("computing visualization coloring")
		}
		if err := ColorReconstructionError(ctx, e.index, m, req, e.logger); err != nil {
			return err
		}
	}
	if req.Visualize && m.Collection != nil {
		out := filepath.Join(dir, name+"_evaluated.png")
		cloud := ColoredVertexCloud(m.Collection)
		if cloud.Size() > 0 {
			if err := WriteTopDownPNG(cloud, out, renderPixelsPerUnit); err != nil {
				return errors.Wrapf(err, "cannot render map image to %q", out)
			}
		}
	}
	if req.Verbosity >= 2 {
		e.logger.Debug("done")
	}
	return nil
}

func (e *Evaluator) writeReconstructionSummary(
	ctx context.Context, m *submap.Map, dir, name string,
) (err error) {
	out := filepath.Join(dir, name+"_"+e.request.OutputSuffix+".csv")
	sw, err := newSummaryWriter(out, reconstructionHeader)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, sw.Close())
	}()

	if e.request.Verbosity >= 2 {
		e.logger.Debug("computing reconstruction error")
	}
	summary := ReconstructionError(ctx, e.groundTruth,
		m.View(e.request.IsSingleTSDF), e.request, e.logger)
	if err = sw.writeRow(summary.reconstructionRow()); err != nil {
		return err
	}
	if !summary.Completed {
		return errors.Wrap(ctx.Err(), "reconstruction error pass interrupted")
	}
	return nil
}

func (e *Evaluator) writeCoverage(ctx context.Context, m *submap.Map, dir, name string) error {
	coverage, err := CoverageCloud(ctx, e.groundTruth,
		m.View(e.request.IsSingleTSDF), e.logger)
	if err != nil {
		return err
	}
	out := filepath.Join(dir, name+".coverage.ply")
	if err := pointcloud.WriteToFile(out, coverage); err != nil {
		return errors.Wrapf(err, "cannot write coverage point cloud to %q", out)
	}
	return nil
}
