// Package ld estimates linkage disequilibrium between variants with the
// Rogers-Huff r, which needs no phase information: r is the correlation of
// the 0/1/2 dosages of two variants across samples.
package ld

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/carbocation/pfx"
	"github.com/carbocation/variation"
	"github.com/carbocation/variation/stats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultMinNumGenotypes is the fewest samples an r is computed from.
	DefaultMinNumGenotypes = 10

	// DefaultMaxMAF is the highest major allele frequency LD is computed
	// for. The estimator is unreliable for nearly monomorphic sites.
	DefaultMaxMAF = 0.95

	// denomEpsilon is the smallest variance product treated as non-zero.
	denomEpsilon = 1e-12
)

type Options struct {
	MinNumGenotypes int
	MaxMAF          float64

	// ChunkSize and MaxDist configure the banded chunk pairs walked by
	// AlongGenome. With a MaxDist only pairs on one chromosome within
	// MaxDist bases are reported.
	ChunkSize int
	MaxDist   int

	// Rand drives RandomPairs. When nil a time-seeded source is used.
	Rand *rand.Rand

	// MaxAttempts bounds the draws RandomPairs makes. Zero means 100 draws
	// per requested pair.
	MaxAttempts int

	Logger *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		MinNumGenotypes: DefaultMinNumGenotypes,
		MaxMAF:          DefaultMaxMAF,
		ChunkSize:       variation.DefaultChunkSize,
		MaxDist:         variation.NoMaxDist,
	}
}

func WithMinNumGenotypes(n int) func(o *Options) {
	return func(o *Options) { o.MinNumGenotypes = n }
}

func WithMaxMAF(maf float64) func(o *Options) {
	return func(o *Options) { o.MaxMAF = maf }
}

func WithChunkSize(n int) func(o *Options) {
	return func(o *Options) { o.ChunkSize = n }
}

func WithMaxDist(d int) func(o *Options) {
	return func(o *Options) { o.MaxDist = d }
}

func WithRand(r *rand.Rand) func(o *Options) {
	return func(o *Options) { o.Rand = r }
}

func WithMaxAttempts(n int) func(o *Options) {
	return func(o *Options) { o.MaxAttempts = n }
}

func WithLogger(l *slog.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

func options(optFns []func(o *Options)) Options {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

func hasMissing(m *variation.Matrix[int32]) bool {
	for _, v := range m.Data() {
		if v == variation.MissingInt {
			return true
		}
	}
	return false
}

// RogersHuffR returns |r| for every pair of a variant of dos1 with a variant
// of dos2, as a (variants1 x variants2) matrix. Both arguments are dosage
// matrices shaped (variants, samples), such as variation.Dosage012 returns.
//
// When no dosage is missing all pairs come from one covariance matrix.
// Otherwise each pair is computed over the samples called in both
// variants. Either way, r is NaN when fewer than minNumGenotypes samples
// take part or when a variant has no variance.
func RogersHuffR(dos1, dos2 *variation.Matrix[int32], minNumGenotypes int) *mat.Dense {
	n1, n2 := dos1.Rows(), dos2.Rows()
	if n1 == 0 || n2 == 0 {
		return &mat.Dense{}
	}
	if !hasMissing(dos1) && !hasMissing(dos2) {
		return rogersHuffNoMissing(dos1, dos2, minNumGenotypes)
	}

	out := mat.NewDense(n1, n2, nil)
	for i := 0; i < n1; i++ {
		for j := 0; j < n2; j++ {
			out.Set(i, j, PairR(dos1.Row(i), dos2.Row(j), minNumGenotypes))
		}
	}
	return out
}

func rogersHuffNoMissing(dos1, dos2 *variation.Matrix[int32], minNumGenotypes int) *mat.Dense {
	n1, n2 := dos1.Rows(), dos2.Rows()
	ns := dos1.RowLen()
	out := mat.NewDense(n1, n2, nil)
	if ns < minNumGenotypes || ns < 2 {
		for i := 0; i < n1; i++ {
			for j := 0; j < n2; j++ {
				out.Set(i, j, math.NaN())
			}
		}
		return out
	}

	// Observations are samples, variables are the variants of both sides.
	x := mat.NewDense(ns, n1+n2, nil)
	for i := 0; i < n1; i++ {
		for s, v := range dos1.Row(i) {
			x.Set(s, i, float64(v))
		}
	}
	for j := 0; j < n2; j++ {
		for s, v := range dos2.Row(j) {
			x.Set(s, n1+j, float64(v))
		}
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)
	for i := 0; i < n1; i++ {
		for j := 0; j < n2; j++ {
			out.Set(i, j, correlation(cov.At(i, n1+j), cov.At(i, i), cov.At(n1+j, n1+j)))
		}
	}
	return out
}

func correlation(cov, var1, var2 float64) float64 {
	denom := math.Sqrt(var1 * var2)
	if math.IsNaN(denom) || denom < denomEpsilon {
		return math.NaN()
	}
	return math.Abs(cov / denom)
}

// PairR is |r| between two dosage vectors over the samples called in both.
func PairR(x, y []int32, minNumGenotypes int) float64 {
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if x[i] == variation.MissingInt || y[i] == variation.MissingInt {
			continue
		}
		xs = append(xs, float64(x[i]))
		ys = append(ys, float64(y[i]))
	}
	if len(xs) < minNumGenotypes || len(xs) < 2 {
		return math.NaN()
	}
	return correlation(stat.Covariance(xs, ys, nil), stat.Variance(xs, nil), stat.Variance(ys, nil))
}

// checkMAF fails unless every variant of gt has a defined MAF no greater
// than maxMAF.
func checkMAF(gt *variation.Matrix[int32], chrom *variation.Matrix[string], pos *variation.Matrix[int32], opts Options) error {
	for i, maf := range stats.MAF(gt, opts.MinNumGenotypes) {
		if math.IsNaN(maf) {
			return fmt.Errorf("%w: fewer than %d genotypes called at %s:%d", variation.ErrLDPrecondition, opts.MinNumGenotypes, chrom.At(i), pos.At(i))
		}
		if maf > opts.MaxMAF {
			return fmt.Errorf("%w: MAF %.3f above %.3f at %s:%d, Rogers-Huff is unreliable there", variation.ErrLDPrecondition, maf, opts.MaxMAF, chrom.At(i), pos.At(i))
		}
	}
	return nil
}

// sites pulls the columns LD needs out of a chunk.
type sites struct {
	gt    *variation.Matrix[int32]
	chrom *variation.Matrix[string]
	pos   *variation.Matrix[int32]
}

func sitesOf(c *variation.Arrays) (*sites, error) {
	gt, err := c.GT()
	if err != nil {
		return nil, pfx.Err(err)
	}
	arr, err := c.Get(variation.ChromField)
	if err != nil {
		return nil, pfx.Err(err)
	}
	chrom, err := variation.AsString(arr)
	if err != nil {
		return nil, pfx.Err(err)
	}
	arr, err = c.Get(variation.PosField)
	if err != nil {
		return nil, pfx.Err(err)
	}
	pos, err := variation.AsInt(arr)
	if err != nil {
		return nil, pfx.Err(err)
	}
	return &sites{gt: gt, chrom: chrom, pos: pos}, nil
}
