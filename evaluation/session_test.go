package evaluation

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils"
)

func TestSession(t *testing.T) {
	logger := golog.NewTestLogger(t)
	dir := t.TempDir()

	req := testRequest()
	req.MapFile = dir
	req.GroundTruthFile = writeGroundTruth(t, dir)

	session, err := NewSession(req, logger)
	test.That(t, err, test.ShouldBeNil)

	mapPath := writeCollectionMapFile(t, dir, 0)
	test.That(t, session.ProcessMap(context.Background(), mapPath), test.ShouldBeNil)
	test.That(t, session.ProcessMap(context.Background(), mapPath), test.ShouldBeNil)
	test.That(t, session.Close(), test.ShouldBeNil)

	records := readCSV(t, filepath.Join(dir, "evaluation_data.csv"))
	// One header plus one row per processed map.
	test.That(t, records, test.ShouldHaveLength, 3)
	test.That(t, records[0], test.ShouldResemble, sessionHeader)
	for _, row := range records[1:] {
		test.That(t, row, test.ShouldHaveLength, len(sessionHeader))
		// 4 ground-truth points, all inliers.
		test.That(t, row[3], test.ShouldEqual, "4")
		test.That(t, row[6], test.ShouldEqual, "4")
	}
}

func TestSessionRejectsOverlappingCalls(t *testing.T) {
	logger := golog.NewTestLogger(t)
	dir := t.TempDir()

	req := testRequest()
	req.MapFile = dir
	req.GroundTruthFile = writeGroundTruth(t, dir)

	session, err := NewSession(req, logger)
	test.That(t, err, test.ShouldBeNil)

	mapPath := writeCollectionMapFile(t, dir, 0)

	// An evaluation still in flight on another trigger path rejects the call.
	session.busy.Store(true)
	err = session.ProcessMap(context.Background(), mapPath)
	test.That(t, errors.Is(err, ErrEvaluationRunning), test.ShouldBeTrue)
	session.busy.Store(false)

	// Concurrent triggers from the watcher and the HTTP service either run
	// or are rejected, never interleaved; the summary ends with exactly one
	// row per accepted call.
	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for i := 0; i < cap(errs); i++ {
		wg.Add(1)
		utils.PanicCapturingGo(func() {
			defer wg.Done()
			errs <- session.ProcessMap(context.Background(), mapPath)
		})
	}
	wg.Wait()
	close(errs)

	accepted := 0
	for err := range errs {
		if err == nil {
			accepted++
			continue
		}
		test.That(t, errors.Is(err, ErrEvaluationRunning), test.ShouldBeTrue)
	}
	test.That(t, accepted, test.ShouldBeGreaterThan, 0)
	test.That(t, session.Close(), test.ShouldBeNil)

	records := readCSV(t, filepath.Join(dir, "evaluation_data.csv"))
	test.That(t, records, test.ShouldHaveLength, accepted+1)
}

func TestSessionRejectsFieldMaps(t *testing.T) {
	logger := golog.NewTestLogger(t)
	dir := t.TempDir()

	req := testRequest()
	req.MapFile = dir
	req.GroundTruthFile = writeGroundTruth(t, dir)

	session, err := NewSession(req, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, session.Close(), test.ShouldBeNil)
	}()

	fieldPath := writeFieldMapFile(t, dir, 0)
	test.That(t, session.ProcessMap(context.Background(), fieldPath), test.ShouldNotBeNil)
}

func TestSessionInvalidRequest(t *testing.T) {
	logger := golog.NewTestLogger(t)
	req := testRequest()
	req.MaximumDistance = -1
	_, err := NewSession(req, logger)
	test.That(t, err, test.ShouldNotBeNil)
}
