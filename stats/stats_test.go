package stats

import (
	"math"
	"testing"

	"github.com/carbocation/variation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Four variants, four diploid samples.
func testGT() *variation.Matrix[int32] {
	return variation.FromSlice([]int32{
		0, 0, 0, 1, 1, 1, -1, -1,
		0, 0, 0, 0, 0, 0, 0, 0,
		-1, -1, -1, -1, -1, -1, -1, -1,
		0, -1, 1, 1, 1, 1, 1, 2,
	}, 4, 4, 2)
}

func assertFloats(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		if math.IsNaN(want[i]) {
			assert.True(t, math.IsNaN(got[i]), "index %d: got %v, expected NaN", i, got[i])
			continue
		}
		assert.InDelta(t, want[i], got[i], 1e-9, "index %d", i)
	}
}

func TestCalledGTs(t *testing.T) {
	assert.Equal(t, []int{3, 4, 0, 3}, CalledGTs(testGT()))
	assertFloats(t, []float64{0.75, 1, 0, 0.75}, CalledGTRates(testGT()))

	empty := variation.NewMatrix([]int{2, 0, 2}, variation.MissingGT)
	assertFloats(t, []float64{math.NaN(), math.NaN()}, CalledGTRates(empty))
}

func TestMAF(t *testing.T) {
	nan := math.NaN()
	assertFloats(t, []float64{0.5, 1, nan, 5.0 / 7}, MAF(testGT(), 3))
	assertFloats(t, []float64{nan, 1, nan, nan}, MAF(testGT(), 4))
	assertFloats(t, []float64{3, 8, nan, 5}, MAC(testGT(), 3))
}

func TestObsHet(t *testing.T) {
	nan := math.NaN()
	assertFloats(t, []float64{1.0 / 3, 0, nan, 1.0 / 3}, ObsHet(testGT(), 0))
	assertFloats(t, []float64{nan, 0, nan, nan}, ObsHet(testGT(), 4))
}

func TestGenotypeFreqChi2(t *testing.T) {
	chi2, pvals := GenotypeFreqChi2(testGT(), []int{0, 1}, []int{2, 3})
	nan := math.NaN()

	assertFloats(t, []float64{3, 0, nan}, chi2[:3])
	assertFloats(t, []float64{math.Exp(-1.5), 1, nan}, pvals[:3])

	// 0/1 and 1/0 are the same genotype.
	gt := variation.FromSlice([]int32{0, 1, 1, 0}, 1, 2, 2)
	chi2, pvals = GenotypeFreqChi2(gt, []int{0}, []int{1})
	assertFloats(t, []float64{0}, chi2)
	assertFloats(t, []float64{1}, pvals)
}

func TestMAFOfStore(t *testing.T) {
	gt := testGT()
	n := gt.Rows()
	chrom := variation.NewMatrix([]int{n}, "1")
	pos := variation.FromSlice([]int32{10, 20, 30, 40}, n)
	c, err := variation.NewChunk(map[string]variation.Array{
		variation.GTField:    gt,
		variation.ChromField: chrom,
		variation.PosField:   pos,
	}, nil, []string{"a", "b", "c", "d"}, 2)
	require.NoError(t, err)

	s := variation.NewArrays()
	s.ChunkSize = 3
	require.NoError(t, s.AppendChunk(c))

	mafs, err := MAFOfStore(s, 3)
	require.NoError(t, err)
	assertFloats(t, MAF(gt, 3), mafs)
}

func TestIsVariable(t *testing.T) {
	gt := variation.FromSlice([]int32{
		-1, -1, 1, 1, 0, 1, 1, 1, -1, -1,
		0, 0, 0, 0, 0, 0, 0, 0, 1, 1,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 1,
		0, 0, 0, 0, 0, 1, 0, 0, 0, 0,
	}, 4, 5, 2)

	want := []int32{variation.MissingInt, variation.TrueInt, variation.TrueInt, variation.FalseInt}
	assert.Equal(t, want, IsVariable(gt, []int{0, 4}))
	assert.Equal(t, []int32{variation.TrueInt, variation.TrueInt, variation.TrueInt, variation.TrueInt}, IsVariable(gt, nil))
}

func TestObservedAlleles(t *testing.T) {
	assert.Equal(t, []int{2, 1, 0, 3}, ObservedAlleles(testGT()))
}
