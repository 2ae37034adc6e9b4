package pipeline

import (
	"fmt"
	"math"
	"strconv"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/carbocation/pfx"
	"github.com/carbocation/variation"
	"github.com/carbocation/variation/stats"
)

// Float returns a pointer to v, for the bounds of a filter.
func Float(v float64) *float64 { return &v }

// Bounds is an inclusive interval. A nil end is open. NaN is never inside.
type Bounds struct {
	Min *float64 `mapstructure:"min"`
	Max *float64 `mapstructure:"max"`
}

func (b Bounds) contains(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	if b.Min != nil && v < *b.Min {
		return false
	}
	if b.Max != nil && v > *b.Max {
		return false
	}
	return true
}

// FilterOptions is embedded in every row filter.
type FilterOptions struct {
	// NoFiltering makes the filter report its statistics but pass every row
	// through.
	NoFiltering bool `mapstructure:"no_filtering"`

	Histogram `mapstructure:",squash"`
}

func (FilterOptions) filtersRows() {}

// outcome keeps the rows of c that pass, unless filtering is off.
func (o FilterOptions) outcome(c *variation.Arrays, values []float64, pass func(i int) bool) *Outcome {
	var rows []int
	for i := 0; i < c.NumVariations(); i++ {
		if pass(i) {
			rows = append(rows, i)
		}
	}

	out := &Outcome{Chunk: c, Values: values, Kept: len(rows)}
	if o.NoFiltering || out.Kept == c.NumVariations() {
		return out
	}
	out.Chunk = c.TakeRows(rows)
	return out
}

func (o FilterOptions) byBounds(c *variation.Arrays, values []float64, b Bounds) *Outcome {
	return o.outcome(c, values, func(i int) bool { return b.contains(values[i]) })
}

// gtOf returns the genotypes of c, restricted to samples when given.
func gtOf(c *variation.Arrays, samples []string) (*variation.Matrix[int32], error) {
	gt, err := c.GT()
	if err != nil {
		return nil, pfx.Err(err)
	}
	if samples == nil {
		return gt, nil
	}
	idx, err := variation.SampleIndices(c.Samples(), samples)
	if err != nil {
		return nil, pfx.Err(err)
	}
	arr, err := gt.TakeAxis1(idx)
	if err != nil {
		return nil, pfx.Err(err)
	}
	sub, err := variation.AsInt(arr)
	if err != nil {
		return nil, pfx.Err(err)
	}
	return sub, nil
}

// MinCalledGTsFilter keeps variants with at least MinCalled called
// genotypes. MinCalled is a rate unless Counts is set.
type MinCalledGTsFilter struct {
	MinCalled float64 `mapstructure:"min_called"`
	Counts    bool    `mapstructure:"counts"`

	FilterOptions `mapstructure:",squash"`
}

func (f MinCalledGTsFilter) Apply(c *variation.Arrays) (*Outcome, error) {
	gt, err := c.GT()
	if err != nil {
		return nil, pfx.Err(err)
	}
	var values []float64
	if f.Counts {
		for _, n := range stats.CalledGTs(gt) {
			values = append(values, float64(n))
		}
	} else {
		values = stats.CalledGTRates(gt)
	}
	return f.byBounds(c, values, Bounds{Min: Float(f.MinCalled)}), nil
}

// MAFFilter keeps variants whose major allele frequency, over Samples or
// all samples, lies within Bounds.
type MAFFilter struct {
	Bounds          `mapstructure:",squash"`
	MinNumGenotypes int      `mapstructure:"min_num_genotypes"`
	Samples         []string `mapstructure:"samples"`

	FilterOptions `mapstructure:",squash"`
}

func (f MAFFilter) Apply(c *variation.Arrays) (*Outcome, error) {
	gt, err := gtOf(c, f.Samples)
	if err != nil {
		return nil, pfx.Err(err)
	}
	return f.byBounds(c, stats.MAF(gt, f.MinNumGenotypes), f.Bounds), nil
}

// MACFilter keeps variants whose major allele count lies within Bounds.
type MACFilter struct {
	Bounds          `mapstructure:",squash"`
	MinNumGenotypes int      `mapstructure:"min_num_genotypes"`
	Samples         []string `mapstructure:"samples"`

	FilterOptions `mapstructure:",squash"`
}

func (f MACFilter) Apply(c *variation.Arrays) (*Outcome, error) {
	gt, err := gtOf(c, f.Samples)
	if err != nil {
		return nil, pfx.Err(err)
	}
	return f.byBounds(c, stats.MAC(gt, f.MinNumGenotypes), f.Bounds), nil
}

// ObsHetFilter keeps variants whose observed heterozygosity lies within
// Bounds.
type ObsHetFilter struct {
	Bounds          `mapstructure:",squash"`
	MinNumGenotypes int      `mapstructure:"min_num_genotypes"`
	Samples         []string `mapstructure:"samples"`

	FilterOptions `mapstructure:",squash"`
}

func (f ObsHetFilter) Apply(c *variation.Arrays) (*Outcome, error) {
	gt, err := gtOf(c, f.Samples)
	if err != nil {
		return nil, pfx.Err(err)
	}
	return f.byBounds(c, stats.ObsHet(gt, f.MinNumGenotypes), f.Bounds), nil
}

// SNPQualFilter keeps variants whose QUAL lies within Bounds. Missing
// qualities fail.
type SNPQualFilter struct {
	Bounds `mapstructure:",squash"`

	FilterOptions `mapstructure:",squash"`
}

func (f SNPQualFilter) Apply(c *variation.Arrays) (*Outcome, error) {
	arr, err := c.Get(variation.QualField)
	if err != nil {
		return nil, pfx.Err(err)
	}
	qual, err := variation.AsFloat(arr)
	if err != nil {
		return nil, pfx.Err(err)
	}
	values := append([]float64(nil), qual.Data()...)
	return f.byBounds(c, values, f.Bounds), nil
}

// NonBiallelicFilter keeps variants with exactly two alleles among their
// called genotypes. Its statistic is the number of alleles seen.
type NonBiallelicFilter struct {
	FilterOptions `mapstructure:",squash"`
}

func (f NonBiallelicFilter) Apply(c *variation.Arrays) (*Outcome, error) {
	gt, err := c.GT()
	if err != nil {
		return nil, pfx.Err(err)
	}
	counts := stats.ObservedAlleles(gt)
	values := make([]float64, len(counts))
	for i, n := range counts {
		values[i] = float64(n)
	}
	return f.outcome(c, values, func(i int) bool { return counts[i] == 2 }), nil
}

// Chi2GtFreqs2SampleSetsFilter tests, per variant, whether the genotype
// frequencies of two sample sets differ and keeps the variants whose
// p-value is at least MinPval. Its statistic is the p-value.
type Chi2GtFreqs2SampleSetsFilter struct {
	Samples1 []string `mapstructure:"samples1"`
	Samples2 []string `mapstructure:"samples2"`
	MinPval  float64  `mapstructure:"min_pval"`

	FilterOptions `mapstructure:",squash"`
}

func (f Chi2GtFreqs2SampleSetsFilter) Apply(c *variation.Arrays) (*Outcome, error) {
	gt, err := c.GT()
	if err != nil {
		return nil, pfx.Err(err)
	}
	set1, err := variation.SampleIndices(c.Samples(), f.Samples1)
	if err != nil {
		return nil, pfx.Err(err)
	}
	set2, err := variation.SampleIndices(c.Samples(), f.Samples2)
	if err != nil {
		return nil, pfx.Err(err)
	}
	_, pvals := stats.GenotypeFreqChi2(gt, set1, set2)
	return f.byBounds(c, pvals, Bounds{Min: Float(f.MinPval)}), nil
}

// FieldValueFilter keeps variants whose one-value-per-variant field at Path
// equals Value. Value is converted to the type of the field, so 0 and "0"
// both match an integer 0.
type FieldValueFilter struct {
	Path  string      `mapstructure:"path"`
	Value interface{} `mapstructure:"value"`

	FilterOptions `mapstructure:",squash"`
}

func (f FieldValueFilter) Apply(c *variation.Arrays) (*Outcome, error) {
	arr, err := c.Get(f.Path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	if len(arr.Shape()) != 1 {
		return nil, pfx.Err(fmt.Errorf("Field %s has shape %v, expected one value per variant", f.Path, arr.Shape()))
	}

	text := fmt.Sprint(f.Value)
	var pass func(i int) bool
	switch m := arr.(type) {
	case *variation.Matrix[int32]:
		want, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return nil, pfx.Err(fmt.Errorf("Value %v does not fit integer field %s: %w", f.Value, f.Path, err))
		}
		pass = func(i int) bool { return m.At(i) == int32(want) }
	case *variation.Matrix[float64]:
		want, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, pfx.Err(fmt.Errorf("Value %v does not fit float field %s: %w", f.Value, f.Path, err))
		}
		pass = func(i int) bool { return m.At(i) == want }
	case *variation.Matrix[bool]:
		want, err := strconv.ParseBool(text)
		if err != nil {
			return nil, pfx.Err(fmt.Errorf("Value %v does not fit flag field %s: %w", f.Value, f.Path, err))
		}
		pass = func(i int) bool { return m.At(i) == want }
	case *variation.Matrix[string]:
		pass = func(i int) bool { return m.At(i) == text }
	default:
		return nil, pfx.Err(fmt.Errorf("Field %s has unsupported type %s", f.Path, arr.Type()))
	}
	return f.outcome(c, nil, pass), nil
}

// LowDPGTsToMissingSetter replaces genotypes whose depth is below MinDP,
// or unknown, with missing alleles. It never removes a variant.
type LowDPGTsToMissingSetter struct {
	MinDP int32 `mapstructure:"min_dp"`
}

func (f LowDPGTsToMissingSetter) Apply(c *variation.Arrays) (*Outcome, error) {
	gt, err := c.GT()
	if err != nil {
		return nil, pfx.Err(err)
	}
	arr, err := c.Get(variation.DPField)
	if err != nil {
		return nil, pfx.Err(err)
	}
	dp, err := variation.AsInt(arr)
	if err != nil {
		return nil, pfx.Err(err)
	}
	if shape, want := dp.Shape(), gt.Shape()[:2]; len(shape) != 2 || shape[0] != want[0] || shape[1] != want[1] {
		return nil, pfx.Err(fmt.Errorf("%s has shape %v, expected one depth per call %v", variation.DPField, shape, want))
	}

	out := gt.Clone().(*variation.Matrix[int32])
	ploidy := gt.Shape()[2]
	data := out.Data()
	for i, d := range dp.Data() {
		if d >= f.MinDP {
			continue
		}
		for k := i * ploidy; k < (i+1)*ploidy; k++ {
			data[k] = variation.MissingGT
		}
	}

	next := c.Copy()
	meta := c.Metadata()[variation.GTField]
	if err := next.Set(variation.GTField, out, &meta); err != nil {
		return nil, pfx.Err(err)
	}
	return &Outcome{Chunk: next}, nil
}

// SampleFilter keeps the listed samples, in the listed order, or with
// Reverse every sample but the listed ones.
type SampleFilter struct {
	Samples []string `mapstructure:"samples"`
	Reverse bool     `mapstructure:"reverse"`
}

func (f SampleFilter) Apply(c *variation.Arrays) (*Outcome, error) {
	idx, err := variation.SampleIndices(c.Samples(), f.Samples)
	if err != nil {
		return nil, pfx.Err(err)
	}
	if f.Reverse {
		listed := roaring.New()
		for _, i := range idx {
			listed.Add(uint32(i))
		}
		keep := roaring.New()
		keep.AddRange(0, uint64(len(c.Samples())))
		keep.AndNot(listed)
		idx = idx[:0]
		for _, i := range keep.ToArray() {
			idx = append(idx, int(i))
		}
	}

	next, err := c.TakeSamples(idx)
	if err != nil {
		return nil, pfx.Err(err)
	}
	return &Outcome{Chunk: next}, nil
}

// FieldFilter projects every chunk onto Kept, or drops Ignored. Setting
// both is an error. Paths absent from a chunk are skipped.
type FieldFilter struct {
	Kept    []string `mapstructure:"kept"`
	Ignored []string `mapstructure:"ignored"`
}

func (f FieldFilter) Apply(c *variation.Arrays) (*Outcome, error) {
	if len(f.Kept) > 0 && len(f.Ignored) > 0 {
		return nil, pfx.Err(variation.ErrConflictingFieldSelection)
	}
	if len(f.Kept) > 0 {
		return &Outcome{Chunk: c.Project(f.Kept)}, nil
	}

	next := c.Copy()
	for _, p := range f.Ignored {
		if !next.Has(p) {
			continue
		}
		if err := next.Delete(p); err != nil {
			return nil, pfx.Err(err)
		}
	}
	return &Outcome{Chunk: next}, nil
}
