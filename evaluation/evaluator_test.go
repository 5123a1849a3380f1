package evaluation

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/mapeval/pointcloud"
	"go.viam.com/mapeval/submap"
	"go.viam.com/mapeval/tsdf"
)

// writeGroundTruth writes the unit-square cloud as a PLY file.
func writeGroundTruth(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "ground_truth.ply")
	test.That(t, pointcloud.WriteToFile(path, unitSquareCloud(t)), test.ShouldBeNil)
	return path
}

// writeFieldMapFile saves a constant dense field as a map file.
func writeFieldMapFile(t *testing.T, dir string, distance float64) string {
	t.Helper()
	path := filepath.Join(dir, "map"+submap.ExtField)
	test.That(t, tsdf.SaveLayer(constantField(distance), path), test.ShouldBeNil)
	return path
}

// writeCollectionMapFile saves a one-submap collection wrapping a constant
// field, with a small mesh.
func writeCollectionMapFile(t *testing.T, dir string, distance float64) string {
	t.Helper()
	c := submap.NewCollection()
	s := submap.NewSubmap(1, 0.1, 8)
	s.Tsdf = constantField(distance)
	s.Change = submap.ChangePersistent
	mesh := s.Meshes.AllocateMesh(tsdf.BlockIndex{})
	mesh.Vertices = []r3.Vector{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}}
	c.Add(s)
	path := filepath.Join(dir, "map"+submap.ExtCollection)
	test.That(t, c.Save(path), test.ShouldBeNil)
	return path
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	test.That(t, err, test.ShouldBeNil)
	defer f.Close() //nolint:errcheck
	records, err := csv.NewReader(f).ReadAll()
	test.That(t, err, test.ShouldBeNil)
	return records
}

func TestEvaluatorRejectsInvalidRequest(t *testing.T) {
	logger := golog.NewTestLogger(t)
	req := testRequest()
	req.MaximumDistance = 0
	_, err := NewEvaluator(req, logger)
	test.That(t, err, test.ShouldNotBeNil)

	req = testRequest()
	req.InlierDistance = -1
	_, err = NewEvaluator(req, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEvaluatorRun(t *testing.T) {
	logger := golog.NewTestLogger(t)
	dir := t.TempDir()

	req := testRequest()
	req.GroundTruthFile = writeGroundTruth(t, dir)
	req.MapFile = writeFieldMapFile(t, dir, 0)
	req.IsSingleTSDF = true

	evaluator, err := NewEvaluator(req, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, evaluator.Run(context.Background()), test.ShouldBeNil)

	records := readCSV(t, filepath.Join(dir, "map_evaluation_data.csv"))
	test.That(t, records, test.ShouldHaveLength, 2)
	test.That(t, records[0], test.ShouldResemble, reconstructionHeader)
	// 4 perfectly reconstructed points, all inliers.
	test.That(t, records[1][3], test.ShouldEqual, "4")
	test.That(t, records[1][4], test.ShouldEqual, "0")
	test.That(t, records[1][6], test.ShouldEqual, "4")
}

func TestEvaluatorExports(t *testing.T) {
	logger := golog.NewTestLogger(t)
	dir := t.TempDir()

	req := testRequest()
	req.Evaluate = false
	req.GroundTruthFile = writeGroundTruth(t, dir)
	req.MapFile = writeCollectionMapFile(t, dir, 0)
	req.ExportMesh = true
	req.ExportCoveragePointcloud = true

	evaluator, err := NewEvaluator(req, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, evaluator.Run(context.Background()), test.ShouldBeNil)

	_, err = os.Stat(filepath.Join(dir, "map.mesh.ply"))
	test.That(t, err, test.ShouldBeNil)

	coverage, err := pointcloud.NewFromFile(filepath.Join(dir, "map.coverage.ply"), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, coverage.Size(), test.ShouldBeGreaterThan, 0)
}

func TestEvaluatorLoadFailures(t *testing.T) {
	logger := golog.NewTestLogger(t)
	dir := t.TempDir()

	req := testRequest()
	req.GroundTruthFile = filepath.Join(dir, "missing.ply")
	req.MapFile = writeFieldMapFile(t, dir, 0)
	evaluator, err := NewEvaluator(req, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, evaluator.Run(context.Background()), test.ShouldNotBeNil)

	req = testRequest()
	req.GroundTruthFile = writeGroundTruth(t, dir)
	req.MapFile = filepath.Join(dir, "map.unknown")
	evaluator, err = NewEvaluator(req, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, evaluator.Run(context.Background()), test.ShouldNotBeNil)
}
