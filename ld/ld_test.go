package ld

import (
	"math"
	"math/rand"
	"testing"

	"github.com/carbocation/variation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSamples = 12

type site struct {
	chrom string
	pos   int32
}

// testStore lays random diploid genotypes over the given sites.
func testStore(t *testing.T, seed int64, sites []site) *variation.Arrays {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	n := len(sites)

	gt := variation.NewMatrix([]int{n, testSamples, 2}, variation.MissingGT)
	chrom := variation.NewMatrix([]int{n}, variation.MissingString)
	pos := variation.NewMatrix([]int{n}, variation.MissingInt)
	for r, st := range sites {
		chrom.Set(st.chrom, r)
		pos.Set(st.pos, r)
		// The first two samples are opposite homozygotes, which keeps every
		// site polymorphic.
		gt.Set(1, r, 1, 0)
		gt.Set(1, r, 1, 1)
		gt.Set(0, r, 0, 0)
		gt.Set(0, r, 0, 1)
		for s := 2; s < testSamples; s++ {
			gt.Set(int32(rng.Intn(2)), r, s, 0)
			gt.Set(int32(rng.Intn(2)), r, s, 1)
		}
	}

	samples := make([]string, testSamples)
	for i := range samples {
		samples[i] = string(rune('a' + i))
	}
	c, err := variation.NewChunk(map[string]variation.Array{
		variation.GTField:    gt,
		variation.ChromField: chrom,
		variation.PosField:   pos,
	}, nil, samples, 2)
	require.NoError(t, err)

	s := variation.NewArrays()
	require.NoError(t, s.AppendChunk(c))
	return s
}

var twoChroms = []site{
	{"1", 100}, {"1", 200}, {"1", 350}, {"1", 1000}, {"1", 1050},
	{"2", 100}, {"2", 150}, {"2", 900},
}

func TestPairR(t *testing.T) {
	x := []int32{0, 1, 2, 0, 1, 2, 0, 1, 2, 0, 1, 2}
	inv := make([]int32, len(x))
	for i, v := range x {
		inv[i] = 2 - v
	}
	assert.InDelta(t, 1, PairR(x, x, 10), 1e-12)
	assert.InDelta(t, 1, PairR(x, inv, 10), 1e-12)

	flat := make([]int32, len(x))
	assert.True(t, math.IsNaN(PairR(x, flat, 10)))

	withMissing := append([]int32(nil), x...)
	withMissing[0], withMissing[1], withMissing[2] = -1, -1, -1
	assert.True(t, math.IsNaN(PairR(x, withMissing, 10)))
	assert.InDelta(t, 1, PairR(x, withMissing, 9), 1e-12)
}

func TestRogersHuffPathsAgree(t *testing.T) {
	s := testStore(t, 1, twoChroms)
	gt, err := s.GT()
	require.NoError(t, err)
	dos := variation.Dosage012(gt)

	r := RogersHuffR(dos, dos, DefaultMinNumGenotypes)
	n := dos.Rows()
	rows, cols := r.Dims()
	require.Equal(t, n, rows)
	require.Equal(t, n, cols)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := PairR(dos.Row(i), dos.Row(j), DefaultMinNumGenotypes)
			assert.InDelta(t, want, r.At(i, j), 1e-9, "pair %d,%d", i, j)
			assert.True(t, r.At(i, j) >= 0 && r.At(i, j) <= 1+1e-12)
		}
		assert.InDelta(t, 1, r.At(i, i), 1e-9)
	}

	// Too few samples makes every r undefined on the batched path as well.
	r = RogersHuffR(dos, dos, testSamples+1)
	assert.True(t, math.IsNaN(r.At(0, 1)))
}

func collect(t *testing.T, g *GenomeReader) map[[2]site]Pair {
	t.Helper()
	out := map[[2]site]Pair{}
	for p := g.Read(); p != nil; p = g.Read() {
		key := [2]site{{p.Chrom1, p.Pos1}, {p.Chrom2, p.Pos2}}
		_, dup := out[key]
		require.False(t, dup, "pair %v reported twice", key)
		out[key] = *p
	}
	require.NoError(t, g.Error())
	return out
}

func TestAlongGenome(t *testing.T) {
	s := testStore(t, 2, twoChroms)
	n := len(twoChroms)

	whole := collect(t, AlongGenome(s, WithChunkSize(100)))
	assert.Len(t, whole, n*(n-1)/2)
	for key, p := range whole {
		assert.NotEqual(t, key[0], key[1])
		if p.Chrom1 != p.Chrom2 {
			assert.True(t, math.IsNaN(p.Dist), "%v", key)
		} else {
			assert.Equal(t, math.Abs(float64(p.Pos1-p.Pos2)), p.Dist)
		}
		if !math.IsNaN(p.R) {
			assert.True(t, p.R >= 0 && p.R <= 1+1e-12)
		}
	}

	for _, size := range []int{1, 2, 3} {
		chunked := collect(t, AlongGenome(s, WithChunkSize(size)))
		require.Len(t, chunked, len(whole), "chunk size %d", size)
		for key, p := range whole {
			assert.InDelta(t, p.R, chunked[key].R, 1e-9, "chunk size %d, %v", size, key)
		}
	}
}

func TestAlongGenomeMaxDist(t *testing.T) {
	s := testStore(t, 3, twoChroms)
	got := collect(t, AlongGenome(s, WithChunkSize(2), WithMaxDist(150)))

	want := map[[2]site]bool{
		{{"1", 100}, {"1", 200}}:   true,
		{{"1", 200}, {"1", 350}}:   true,
		{{"1", 1000}, {"1", 1050}}: true,
		{{"2", 100}, {"2", 150}}:   true,
	}
	assert.Len(t, got, len(want))
	for key := range want {
		assert.Contains(t, got, key)
	}
}

func TestAlongGenomeRejectsMonomorphic(t *testing.T) {
	s := testStore(t, 4, twoChroms)
	gt, err := s.GT()
	require.NoError(t, err)
	for i := range gt.Row(3) {
		gt.Row(3)[i] = 0
	}

	g := AlongGenome(s)
	assert.Nil(t, g.Read())
	assert.ErrorIs(t, g.Error(), variation.ErrLDPrecondition)
}

func TestRandomPairs(t *testing.T) {
	s := testStore(t, 5, twoChroms)
	rr, err := RandomPairs(s, 20, WithRand(rand.New(rand.NewSource(7))))
	require.NoError(t, err)

	var got int
	for p := rr.Read(); p != nil; p = rr.Read() {
		got++
		assert.NotEqual(t, p.Chrom1, p.Chrom2)
		assert.False(t, math.IsNaN(p.R))
		assert.Equal(t, twoChroms[p.Idx1].chrom, p.Chrom1)
	}
	assert.Equal(t, 20, got)
	assert.GreaterOrEqual(t, rr.Attempts(), 20)

	// A budget too small to satisfy the request ends early.
	rr, err = RandomPairs(s, 20, WithRand(rand.New(rand.NewSource(7))), WithMaxAttempts(5))
	require.NoError(t, err)
	got = 0
	for p := rr.Read(); p != nil; p = rr.Read() {
		got++
	}
	assert.LessOrEqual(t, got, 5)
	assert.Equal(t, 5, rr.Attempts())
}

func TestRandomPairsNeedTwoChromosomes(t *testing.T) {
	s := testStore(t, 6, twoChroms[:5])
	_, err := RandomPairs(s, 5)
	assert.ErrorIs(t, err, variation.ErrLDPrecondition)
}
