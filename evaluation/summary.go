package evaluation

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Summary is the result of one evaluation pass. The mesh pass fills the
// outlier counter; the reconstruction pass fills the unknown and truncated
// counters.
type Summary struct {
	Mean   float64
	StdDev float64
	RMSE   float64

	TotalPoints     uint64
	UnknownPoints   uint64
	TruncatedPoints uint64
	Inliers         uint64
	Outliers        uint64

	// Completed is false when the pass was interrupted and the summary
	// covers only part of the input.
	Completed bool
}

func summarize(samples *SampleSet) Summary {
	return Summary{
		Mean:      samples.Mean(),
		StdDev:    samples.StdDev(),
		RMSE:      samples.RMSE(),
		Completed: true,
	}
}

var reconstructionHeader = []string{
	"MeanError [m]", "StdError [m]", "RMSE [m]",
	"TotalPoints [1]", "UnknownPoints [1]", "TruncatedPoints [1]", "Inliers [1]",
}

var sessionHeader = []string{
	"MeanGTError [m]", "StdGTError [m]", "GTRMSE [m]",
	"TotalPoints [1]", "UnknownPoints [1]", "TruncatedPoints [1]", "GTInliers [1]",
	"MeanMapError [m]", "StdMapError [m]", "MapRMSE [m]", "MapInliers [1]", "MapOutliers [1]",
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatCount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// reconstructionRow lists the summary in reconstructionHeader order.
func (s Summary) reconstructionRow() []string {
	return []string{
		formatFloat(s.Mean), formatFloat(s.StdDev), formatFloat(s.RMSE),
		formatCount(s.TotalPoints), formatCount(s.UnknownPoints),
		formatCount(s.TruncatedPoints), formatCount(s.Inliers),
	}
}

// meshRow lists the mesh-pass columns of the session header.
func (s Summary) meshRow() []string {
	return []string{
		formatFloat(s.Mean), formatFloat(s.StdDev), formatFloat(s.RMSE),
		formatCount(s.Inliers), formatCount(s.Outliers),
	}
}

// summaryWriter appends summary rows to a CSV stream, header first.
type summaryWriter struct {
	f *os.File
	w *csv.Writer
}

func newSummaryWriter(path string, header []string) (*summaryWriter, error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open output file %q", path)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return nil, multierr.Combine(err, f.Close())
	}
	return &summaryWriter{f: f, w: w}, nil
}

func (sw *summaryWriter) writeRow(row []string) error {
	if err := sw.w.Write(row); err != nil {
		return err
	}
	sw.w.Flush()
	return sw.w.Error()
}

func (sw *summaryWriter) Close() error {
	sw.w.Flush()
	return multierr.Combine(sw.w.Error(), sw.f.Close())
}
