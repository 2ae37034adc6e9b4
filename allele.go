package variation

import (
	"fmt"
	"sort"

	"github.com/carbocation/pfx"
)

// CountsByRow counts, for each variant of a genotype array shaped
// (variants, samples, ploidy), how many slots hold each of alleles, one
// column per allele in the given order. With nil alleles the columns are
// the alleles observed in gt, ascending. Missing alleles are never counted.
func CountsByRow(gt *Matrix[int32], alleles []int32) *Matrix[int32] {
	if alleles == nil {
		alleles = ObservedAlleles(gt)
	}
	var top int32 = -1
	for _, a := range alleles {
		if a > top {
			top = a
		}
	}
	col := make([]int, top+1)
	for i := range col {
		col[i] = -1
	}
	for j, a := range alleles {
		if a >= 0 {
			col[a] = j
		}
	}

	n := gt.Rows()
	out := NewMatrix([]int{n, len(alleles)}, int32(0))
	for r := 0; r < n; r++ {
		dst := out.Row(r)
		for _, a := range gt.Row(r) {
			if a >= 0 && a <= top && col[a] >= 0 {
				dst[col[a]]++
			}
		}
	}
	return out
}

// ObservedAlleles lists the distinct non-missing alleles of gt, ascending.
func ObservedAlleles(gt *Matrix[int32]) []int32 {
	seen := map[int32]struct{}{}
	for _, a := range gt.Data() {
		if a >= 0 {
			seen[a] = struct{}{}
		}
	}
	return sortedAlleles(seen)
}

func sortedAlleles(seen map[int32]struct{}) []int32 {
	out := make([]int32, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// alleleCount counts alleles over the genotypes of s chunk by chunk. The
// columns are the alleles observed anywhere in s, so every chunk is counted
// against its own alleles first and then spread onto the common columns.
func alleleCount(s Store, chunkSize int) (*Matrix[int32], error) {
	type part struct {
		counts  *Matrix[int32]
		alleles []int32
	}
	cr := s.IterateChunks(WithChunkSize(chunkSize), WithKeptFields(GTField))
	var parts []part
	seen := map[int32]struct{}{}
	for {
		c := cr.Read()
		if c == nil {
			break
		}
		gt, err := c.GT()
		if err != nil {
			return nil, pfx.Err(err)
		}
		alleles := ObservedAlleles(gt)
		for _, a := range alleles {
			seen[a] = struct{}{}
		}
		parts = append(parts, part{counts: CountsByRow(gt, alleles), alleles: alleles})
	}
	if err := cr.Error(); err != nil {
		return nil, pfx.Err(err)
	}

	alleles := sortedAlleles(seen)
	col := make(map[int32]int, len(alleles))
	for j, a := range alleles {
		col[a] = j
	}
	out := NewMatrix([]int{s.NumVariations(), len(alleles)}, int32(0))
	row := 0
	for _, p := range parts {
		for r := 0; r < p.counts.Rows(); r++ {
			dst := out.Row(row)
			for j, n := range p.counts.Row(r) {
				dst[col[p.alleles[j]]] = n
			}
			row++
		}
	}
	return out, nil
}

// GT returns the genotype array of the chunk.
func (a *Arrays) GT() (*Matrix[int32], error) {
	arr, err := a.Get(GTField)
	if err != nil {
		return nil, pfx.Err(err)
	}
	gt, err := AsInt(arr)
	if err != nil {
		return nil, pfx.Err(err)
	}
	if len(gt.Shape()) != 3 {
		return nil, pfx.Err(fmt.Errorf("Genotypes have shape %v, expected (variants, samples, ploidy)", gt.Shape()))
	}
	return gt, nil
}

// GTIsMissing marks, per (variant, sample), calls with at least one missing
// allele.
func GTIsMissing(gt *Matrix[int32]) *Matrix[bool] {
	shape := gt.Shape()
	out := NewMatrix(shape[:2], false)
	ploidy := shape[2]
	data := gt.Data()
	for i := range out.Data() {
		for _, a := range data[i*ploidy : (i+1)*ploidy] {
			if a < 0 {
				out.Data()[i] = true
				break
			}
		}
	}
	return out
}

// Dosage012 encodes each call as its number of non-reference alleles. Calls
// with any missing allele become MissingInt.
func Dosage012(gt *Matrix[int32]) *Matrix[int32] {
	shape := gt.Shape()
	out := NewMatrix(shape[:2], int32(0))
	ploidy := shape[2]
	data := gt.Data()
	for i := range out.Data() {
		var n int32
		for _, a := range data[i*ploidy : (i+1)*ploidy] {
			if a < 0 {
				n = MissingInt
				break
			}
			if a > 0 {
				n++
			}
		}
		out.Data()[i] = n
	}
	return out
}
