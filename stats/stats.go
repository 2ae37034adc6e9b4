// Package stats computes per-variant genotype statistics. Every function
// works row by row on a genotype array shaped (variants, samples, ploidy),
// so results never depend on how a store was chunked.
//
// A genotype is called when none of its alleles is missing.
package stats

import (
	"math"
	"sort"

	"github.com/carbocation/pfx"
	"github.com/carbocation/variation"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultMinNumGenotypes is how many called genotypes a variant needs before
// frequency statistics are defined for it.
const DefaultMinNumGenotypes = 10

func dims(gt *variation.Matrix[int32]) (n, ns, ploidy int) {
	shape := gt.Shape()
	n = shape[0]
	if len(shape) > 1 {
		ns = shape[1]
	}
	ploidy = 1
	if len(shape) > 2 {
		ploidy = shape[2]
	}
	return n, ns, ploidy
}

func called(alleles []int32) bool {
	for _, a := range alleles {
		if a == variation.MissingGT {
			return false
		}
	}
	return true
}

// CalledGTs counts the called genotypes of every variant.
func CalledGTs(gt *variation.Matrix[int32]) []int {
	n, ns, ploidy := dims(gt)
	out := make([]int, n)
	for r := 0; r < n; r++ {
		row := gt.Row(r)
		for s := 0; s < ns; s++ {
			if called(row[s*ploidy : (s+1)*ploidy]) {
				out[r]++
			}
		}
	}
	return out
}

// CalledGTRates is CalledGTs divided by the number of samples. It is NaN
// when there are no samples.
func CalledGTRates(gt *variation.Matrix[int32]) []float64 {
	_, ns, _ := dims(gt)
	counts := CalledGTs(gt)
	out := make([]float64, len(counts))
	for i, c := range counts {
		if ns == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = float64(c) / float64(ns)
	}
	return out
}

// maskFewGenotypes sets stat to NaN wherever fewer than min genotypes were
// called.
func maskFewGenotypes(stat []float64, gt *variation.Matrix[int32], min int) []float64 {
	for i, c := range CalledGTs(gt) {
		if c < min {
			stat[i] = math.NaN()
		}
	}
	return stat
}

// majorAllele returns, per variant, the number of copies of the most common
// allele and the number of non-missing alleles.
func majorAllele(gt *variation.Matrix[int32]) (major, total []float64) {
	counts := variation.CountsByRow(gt, nil)
	n := counts.Rows()
	major = make([]float64, n)
	total = make([]float64, n)
	row := make([]float64, counts.RowLen())
	if len(row) == 0 {
		// Nothing was called.
		return major, total
	}
	for r := 0; r < n; r++ {
		for i, c := range counts.Row(r) {
			row[i] = float64(c)
		}
		major[r] = floats.Max(row)
		total[r] = floats.Sum(row)
	}
	return major, total
}

// MAF is the frequency of the most common allele of each variant: 1 for a
// monomorphic site, 0.5 for a perfectly balanced bi-allelic one. It is NaN
// when fewer than minNumGenotypes genotypes were called.
func MAF(gt *variation.Matrix[int32], minNumGenotypes int) []float64 {
	major, total := majorAllele(gt)
	out := make([]float64, len(major))
	for i := range out {
		if total[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = major[i] / total[i]
	}
	return maskFewGenotypes(out, gt, minNumGenotypes)
}

// MAC is the number of copies of the most common allele, NaN when fewer
// than minNumGenotypes genotypes were called.
func MAC(gt *variation.Matrix[int32], minNumGenotypes int) []float64 {
	major, _ := majorAllele(gt)
	return maskFewGenotypes(major, gt, minNumGenotypes)
}

// ObsHet is the fraction of called genotypes that carry more than one
// distinct allele, NaN when fewer than minNumGenotypes were called.
func ObsHet(gt *variation.Matrix[int32], minNumGenotypes int) []float64 {
	n, ns, ploidy := dims(gt)
	out := make([]float64, n)
	for r := 0; r < n; r++ {
		row := gt.Row(r)
		var nCalled, nHet int
		for s := 0; s < ns; s++ {
			alleles := row[s*ploidy : (s+1)*ploidy]
			if !called(alleles) {
				continue
			}
			nCalled++
			for _, a := range alleles[1:] {
				if a != alleles[0] {
					nHet++
					break
				}
			}
		}
		if nCalled == 0 {
			out[r] = math.NaN()
			continue
		}
		out[r] = float64(nHet) / float64(nCalled)
	}
	return maskFewGenotypes(out, gt, minNumGenotypes)
}

// MAFOfStore runs MAF over every variant of s, chunk by chunk.
func MAFOfStore(s variation.Store, minNumGenotypes int) ([]float64, error) {
	var out []float64
	cr := s.IterateChunks(variation.WithKeptFields(variation.GTField))
	for c := cr.Read(); c != nil; c = cr.Read() {
		gt, err := c.GT()
		if err != nil {
			return nil, pfx.Err(err)
		}
		out = append(out, MAF(gt, minNumGenotypes)...)
	}
	if err := cr.Error(); err != nil {
		return nil, pfx.Err(err)
	}
	return out, nil
}

// genotypeKey identifies an unphased genotype: its sorted alleles.
func genotypeKey(alleles []int32, buf []int32) string {
	buf = append(buf[:0], alleles...)
	sort.Slice(buf, func(i, j int) bool { return buf[i] < buf[j] })
	key := make([]byte, 0, 4*len(buf))
	for _, a := range buf {
		key = append(key, byte(a), byte(a>>8), byte(a>>16), byte(a>>24))
	}
	return string(key)
}

// GenotypeFreqChi2 compares, per variant, the genotype class counts of two
// sample sets (given as sample indices) with a chi-square test of
// independence on the 2 x k contingency table. Genotypes are unphased and
// only called genotypes count.
//
// The statistic and p-value are NaN when either set has no called
// genotype. A variant with fewer than two genotype classes has statistic 0
// and p-value 1.
func GenotypeFreqChi2(gt *variation.Matrix[int32], set1, set2 []int) (chi2, pvals []float64) {
	n, _, ploidy := dims(gt)
	chi2 = make([]float64, n)
	pvals = make([]float64, n)
	buf := make([]int32, 0, ploidy)

	for r := 0; r < n; r++ {
		row := gt.Row(r)
		classes := map[string]int{}
		var table [2][]float64
		var totals [2]float64
		for set, samples := range [2][]int{set1, set2} {
			for _, s := range samples {
				alleles := row[s*ploidy : (s+1)*ploidy]
				if !called(alleles) {
					continue
				}
				key := genotypeKey(alleles, buf)
				col, ok := classes[key]
				if !ok {
					col = len(classes)
					classes[key] = col
					table[0] = append(table[0], 0)
					table[1] = append(table[1], 0)
				}
				table[set][col]++
				totals[set]++
			}
		}

		if totals[0] == 0 || totals[1] == 0 {
			chi2[r], pvals[r] = math.NaN(), math.NaN()
			continue
		}
		k := len(classes)
		if k < 2 {
			chi2[r], pvals[r] = 0, 1
			continue
		}

		grand := totals[0] + totals[1]
		var stat float64
		for col := 0; col < k; col++ {
			colTotal := table[0][col] + table[1][col]
			for set := 0; set < 2; set++ {
				expected := totals[set] * colTotal / grand
				d := table[set][col] - expected
				stat += d * d / expected
			}
		}
		chi2[r] = stat
		pvals[r] = distuv.ChiSquared{K: float64(k - 1)}.Survival(stat)
	}
	return chi2, pvals
}

// IsVariable reports, per variant, whether the called genotypes of the given
// samples (indices, nil for all) are not all the same unphased genotype.
// The result is three-valued: variation.TrueInt, variation.FalseInt, or
// variation.MissingInt when none of the samples is called.
func IsVariable(gt *variation.Matrix[int32], samples []int) []int32 {
	n, ns, ploidy := dims(gt)
	if samples == nil {
		samples = make([]int, ns)
		for i := range samples {
			samples[i] = i
		}
	}
	out := make([]int32, n)
	buf := make([]int32, 0, ploidy)
	for r := 0; r < n; r++ {
		row := gt.Row(r)
		out[r] = variation.MissingInt
		var first string
		for _, s := range samples {
			alleles := row[s*ploidy : (s+1)*ploidy]
			if !called(alleles) {
				continue
			}
			key := genotypeKey(alleles, buf)
			if out[r] == variation.MissingInt {
				first = key
				out[r] = variation.FalseInt
			} else if key != first {
				out[r] = variation.TrueInt
				break
			}
		}
	}
	return out
}

// ObservedAlleles counts the distinct alleles called in every variant.
func ObservedAlleles(gt *variation.Matrix[int32]) []int {
	n := gt.Rows()
	out := make([]int, n)
	seen := map[int32]struct{}{}
	for r := 0; r < n; r++ {
		for k := range seen {
			delete(seen, k)
		}
		for _, a := range gt.Row(r) {
			if a >= 0 {
				seen[a] = struct{}{}
			}
		}
		out[r] = len(seen)
	}
	return out
}
