package evaluation

import (
	"context"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/mapeval/pointcloud"
	"go.viam.com/mapeval/submap"
)

// ErrEvaluationRunning is returned by ProcessMap when another evaluation of
// the same session is still in progress.
var ErrEvaluationRunning = errors.New("an evaluation is already running")

// Session evaluates many maps against one ground truth, appending one row
// per map to a single summary CSV. The request's MapFile names the output
// directory. The session is opened once at service start and closed at
// shutdown. At most one evaluation runs at a time; overlapping ProcessMap
// calls are rejected with ErrEvaluationRunning.
type Session struct {
	request Request
	logger  golog.Logger
	busy    atomic.Bool

	groundTruth pointcloud.PointCloud
	index       *pointcloud.KDTree
	summary     *summaryWriter
}

// NewSession validates the request, loads the ground truth, and opens the
// summary stream. The CSV carries both the reconstruction and the mesh pass
// columns.
func NewSession(request Request, logger golog.Logger) (*Session, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	cloud, err := pointcloud.NewFromFile(request.GroundTruthFile, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load ground truth point cloud from %q",
			request.GroundTruthFile)
	}

	out := filepath.Join(request.MapFile, request.OutputSuffix+".csv")
	sw, err := newSummaryWriter(out, sessionHeader)
	if err != nil {
		return nil, err
	}
	return &Session{
		request:     request,
		logger:      logger,
		groundTruth: cloud,
		index:       pointcloud.ToKDTree(cloud),
		summary:     sw,
	}, nil
}

// ProcessMap loads one map, runs the configured passes, and appends one
// summary row. Triggers can race in from both the HTTP service and the
// directory watcher; the session serializes them itself.
func (s *Session) ProcessMap(ctx context.Context, mapPath string) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrEvaluationRunning
	}
	defer s.busy.Store(false)

	m, err := submap.LoadMap(mapPath)
	if err != nil {
		return errors.Wrapf(err, "cannot load map from %q", mapPath)
	}
	if m.Collection == nil {
		return errors.Errorf("multi-map processing requires a submap collection, got %q", mapPath)
	}
	dir, name := splitMapPath(mapPath)

	if s.request.Evaluate {
		recon := ReconstructionError(ctx, s.groundTruth,
			m.View(s.request.IsSingleTSDF), s.request, s.logger)
		mesh := MeshError(ctx, s.index, m.Collection, s.request, s.logger)
		row := append(recon.reconstructionRow(), mesh.meshRow()...)
		if err := s.summary.writeRow(row); err != nil {
			return err
		}
		if !recon.Completed || !mesh.Completed {
			return errors.Wrap(ctx.Err(), "evaluation interrupted")
		}
	}
	if s.request.ExportMesh {
		if err := ExportMergedMesh(m.Collection, filepath.Join(dir, name+".mesh.ply")); err != nil {
			return err
		}
	}
	if s.request.ExportLabeledPointcloud {
		out := filepath.Join(dir, name+".pointcloud.ply")
		labelMap := filepath.Join(dir, name+".csv")
		if err := ExportLabeledPointcloud(m.Collection, out, labelMap,
			s.request.IsSingleTSDF, s.logger); err != nil {
			return err
		}
	}
	if s.request.ExportCoveragePointcloud {
		coverage, err := CoverageCloud(ctx, s.groundTruth,
			m.View(s.request.IsSingleTSDF), s.logger)
		if err != nil {
			return err
		}
		out := filepath.Join(dir, name+".coverage.ply")
		if err := pointcloud.WriteToFile(out, coverage); err != nil {
			return errors.Wrapf(err, "cannot write coverage point cloud to %q", out)
		}
	}
	return nil
}

// Close flushes and closes the summary stream.
func (s *Session) Close() error {
	return s.summary.Close()
}
