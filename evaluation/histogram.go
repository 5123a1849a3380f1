package evaluation

import (
	"strings"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/edaniels/golog"
)

// logErrorHistogram prints a terminal histogram of the accumulated error
// samples, a quick look at the error distribution beyond mean and RMSE.
func logErrorHistogram(name string, samples *SampleSet, logger golog.Logger) {
	if samples.Size() == 0 {
		return
	}
	hist := histogram.Hist(10, samples.Values())
	var sb strings.Builder
	if err := histogram.Fprint(&sb, hist, histogram.Linear(40)); err != nil {
		logger.Debugw("cannot render histogram", "error", err)
		return
	}
	logger.Debugf("%s distribution:\n%s", name, sb.String())
}
