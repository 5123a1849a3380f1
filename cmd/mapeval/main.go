// Package main contains a command to evaluate reconstructed maps against a
// ground-truth point cloud, either once or as a long-lived trigger service.
package main

import (
	"context"
	"strconv"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/mapeval/evaluation"
	"go.viam.com/mapeval/web"
)

var logger = golog.NewDevelopmentLogger("mapeval")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	MapFile         string `flag:"map,required,usage=map file to evaluate (directory in -serve mode)"`
	GroundTruth     string `flag:"ground-truth,required,usage=ground truth point cloud (.ply)"`
	OutputSuffix    string `flag:"output-suffix,default=evaluation_data,usage=suffix of the summary csv"`
	MaximumDistance string `flag:"maximum-distance,default=0.2,usage=error clamp distance in meters"`
	InlierDistance  string `flag:"inlier-distance,default=0.1,usage=inlier threshold in meters"`

	Evaluate              bool `flag:"evaluate,default=true,usage=compute the error summary"`
	Visualize             bool `flag:"visualize,usage=render a top-down image of the colored map"`
	ComputeColoring       bool `flag:"compute-coloring,usage=write an error-colored copy of the map"`
	ColorByMaxError       bool `flag:"color-by-max-error,usage=per-voxel coloring uses the maximum error"`
	ColorByMeshDistance   bool `flag:"color-by-mesh-distance,default=true,usage=color mesh vertices by nearest ground-truth distance"`
	IgnoreTruncatedPoints bool `flag:"ignore-truncated-points,usage=exclude truncated points from the statistics"`
	SingleTSDF            bool `flag:"single-tsdf,usage=treat the map as a single dense field"`

	ExportMesh     bool `flag:"export-mesh,usage=export the merged map mesh as ply"`
	ExportLabeled  bool `flag:"export-labeled-pointcloud,usage=export a labeled vertex point cloud as ply"`
	ExportCoverage bool `flag:"export-coverage-pointcloud,usage=export the observed coverage cloud as ply"`
	Verbosity      int  `flag:"verbosity,default=2,usage=diagnostic log detail (0-4)"`

	Serve   bool   `flag:"serve,usage=host the evaluation trigger service"`
	Address string `flag:"address,default=localhost:8080,usage=listen address in -serve mode"`
	Watch   string `flag:"watch,usage=directory to watch for new maps in -serve mode"`
}

func (args *Arguments) request() (evaluation.Request, error) {
	maxDist, err := strconv.ParseFloat(args.MaximumDistance, 64)
	if err != nil {
		return evaluation.Request{}, errors.Wrap(err, "invalid -maximum-distance")
	}
	inlierDist, err := strconv.ParseFloat(args.InlierDistance, 64)
	if err != nil {
		return evaluation.Request{}, errors.Wrap(err, "invalid -inlier-distance")
	}
	return evaluation.Request{
		MapFile:                  args.MapFile,
		GroundTruthFile:          args.GroundTruth,
		OutputSuffix:             args.OutputSuffix,
		MaximumDistance:          maxDist,
		InlierDistance:           inlierDist,
		Evaluate:                 args.Evaluate,
		Visualize:                args.Visualize,
		ComputeColoring:          args.ComputeColoring,
		ColorByMaxError:          args.ColorByMaxError,
		ColorByMeshDistance:      args.ColorByMeshDistance,
		IgnoreTruncatedPoints:    args.IgnoreTruncatedPoints,
		IsSingleTSDF:             args.SingleTSDF,
		ExportMesh:               args.ExportMesh,
		ExportLabeledPointcloud:  args.ExportLabeled,
		ExportCoveragePointcloud: args.ExportCoverage,
		Verbosity:                args.Verbosity,
	}, nil
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	request, err := argsParsed.request()
	if err != nil {
		return err
	}

	if argsParsed.Serve {
		return serve(ctx, request, argsParsed.Address, argsParsed.Watch, logger)
	}

	evaluator, err := evaluation.NewEvaluator(request, logger)
	if err != nil {
		return err
	}
	return evaluator.Run(ctx)
}

func serve(
	ctx context.Context,
	request evaluation.Request,
	address, watchDir string,
	logger golog.Logger,
) (err error) {
	session, err := evaluation.NewSession(request, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, session.Close())
	}()

	if watchDir != "" {
		utils.PanicCapturingGo(func() {
			if err := web.WatchDirectory(ctx, watchDir, session, logger); err != nil {
				logger.Errorw("watcher stopped", "error", err)
			}
		})
	}
	return web.NewService(session, logger).Serve(ctx, address)
}
