// Package evaluation measures the geometric accuracy of a reconstructed map
// against a ground-truth point cloud and derives coloring, coverage, and
// export artifacts from the result.
package evaluation

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// Request configures one evaluation run.
type Request struct {
	// MapFile is the reconstructed map to evaluate. In multi-map session
	// mode it names the output directory instead.
	MapFile string
	// GroundTruthFile is a PLY point cloud of the true surface.
	GroundTruthFile string
	// OutputSuffix names the summary CSV.
	OutputSuffix string

	// MaximumDistance clamps error samples and normalizes coloring. Must be
	// positive.
	MaximumDistance float64
	// InlierDistance is the inlier classification threshold. Must be
	// positive.
	InlierDistance float64

	Evaluate              bool
	Visualize             bool
	ComputeColoring       bool
	ColorByMaxError       bool
	ColorByMeshDistance   bool
	IgnoreTruncatedPoints bool
	// IsSingleTSDF treats a one-submap collection as a single dense field:
	// free space is kept and change states are ignored.
	IsSingleTSDF             bool
	ExportMesh               bool
	ExportLabeledPointcloud  bool
	ExportCoveragePointcloud bool

	Verbosity int
}

// DefaultRequest returns a request with the standard thresholds and passes
// enabled.
func DefaultRequest() Request {
	return Request{
		OutputSuffix:        "evaluation_data",
		MaximumDistance:     0.2,
		InlierDistance:      0.1,
		Evaluate:            true,
		ColorByMeshDistance: true,
		Verbosity:           2,
	}
}

// Validate checks the request thresholds. It must pass before any file is
// touched.
func (r *Request) Validate() error {
	if r.MaximumDistance <= 0 {
		return utils.NewConfigValidationError("maximum_distance", errors.New("must be positive"))
	}
	if r.InlierDistance <= 0 {
		return utils.NewConfigValidationError("inlier_distance", errors.New("must be positive"))
	}
	return nil
}

// splitMapPath returns the directory and extensionless base name of a map
// file. Derived artifacts are written next to the map under this name.
func splitMapPath(path string) (dir, name string) {
	dir = filepath.Dir(path)
	name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return dir, name
}
