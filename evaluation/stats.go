package evaluation

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SampleSet accumulates absolute error samples for one evaluation pass. The
// raw values are retained because the sample-corrected standard deviation
// needs the mean first.
type SampleSet struct {
	values []float64
}

// NewSampleSet returns an accumulator preallocated for the expected sample
// count.
func NewSampleSet(capacity int) *SampleSet {
	return &SampleSet{values: make([]float64, 0, capacity)}
}

// Add appends one error sample.
func (s *SampleSet) Add(v float64) {
	s.values = append(s.values, v)
}

// Size returns the number of accumulated samples.
func (s *SampleSet) Size() int {
	return len(s.values)
}

// Values returns the raw sample sequence.
func (s *SampleSet) Values() []float64 {
	return s.values
}

// Mean returns the arithmetic mean, 0 when empty.
func (s *SampleSet) Mean() float64 {
	if len(s.values) == 0 {
		return 0
	}
	return stat.Mean(s.values, nil)
}

// StdDev returns the sample (n-1) standard deviation. Sets of two or fewer
// samples report 0.
func (s *SampleSet) StdDev() float64 {
	if len(s.values) <= 2 {
		return 0
	}
	return stat.StdDev(s.values, nil)
}

// RMSE returns the root mean squared error, 0 when empty.
func (s *SampleSet) RMSE() float64 {
	if len(s.values) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(s.values, s.values) / float64(len(s.values)))
}
