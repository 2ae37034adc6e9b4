package pipeline

import (
	"fmt"
	"math"

	"github.com/carbocation/pfx"
)

// DefaultBins is the number of histogram bins when a step asks for a
// histogram without saying how many.
const DefaultBins = 20

// Histogram configures the distribution a filter reports of the statistic
// it filters on. With no Range the range is the span of the observed
// values, which costs the pipeline a second pass over its input.
type Histogram struct {
	Enabled bool      `mapstructure:"do_histogram" yaml:"do_histogram"`
	Bins    int       `mapstructure:"bins" yaml:"bins"`
	Range   []float64 `mapstructure:"range" yaml:"range"`
}

// HistogramOptions returns h itself. Embedding Histogram in a filter makes
// the filter a HistogramStep.
func (h Histogram) HistogramOptions() Histogram { return h }

// wanted reports whether a histogram is computed at all. A Range alone asks
// for one.
func (h Histogram) wanted() bool {
	return h.Enabled || len(h.Range) > 0
}

func (h Histogram) bins() int {
	if h.Bins <= 0 {
		return DefaultBins
	}
	return h.Bins
}

func (h Histogram) validate() error {
	if len(h.Range) == 0 {
		return nil
	}
	if len(h.Range) != 2 || !(h.Range[0] < h.Range[1]) {
		return pfx.Err(fmt.Errorf("Histogram range must be [low, high] with low < high, got %v", h.Range))
	}
	return nil
}

// span tracks the extremes of the defined values seen so far.
type span struct {
	lo, hi float64
	any    bool
}

func (s *span) add(values []float64) {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if !s.any {
			s.lo, s.hi, s.any = v, v, true
			continue
		}
		s.lo = math.Min(s.lo, v)
		s.hi = math.Max(s.hi, v)
	}
}

// edges spreads bins+1 equally spaced edges over the observed span. An
// empty span becomes [0, 1] and a single value v becomes [v-0.5, v+0.5].
func (s span) edges(bins int) []float64 {
	lo, hi := 0.0, 1.0
	if s.any {
		lo, hi = s.lo, s.hi
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	return linspace(lo, hi, bins+1)
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}

// binCounts adds every value of values into counts. Bins are half open
// except the last, which includes the upper edge. NaN and out of range
// values are not counted.
func binCounts(counts []int, edges []float64, values []float64) {
	bins := len(counts)
	lo, hi := edges[0], edges[bins]
	for _, v := range values {
		if math.IsNaN(v) || v < lo || v > hi {
			continue
		}
		b := int((v - lo) / (hi - lo) * float64(bins))
		if b >= bins {
			b = bins - 1
		}
		// Rounding can put a value one bin off its edges.
		if b > 0 && v < edges[b] {
			b--
		} else if b < bins-1 && v >= edges[b+1] {
			b++
		}
		counts[b]++
	}
}
