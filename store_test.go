package variation

import (
	"math"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSamples = []string{"s1", "s2", "s3"}

// testChunk builds n variants starting at global row start. Every third row
// carries a second alternate allele so that chunks differ in alt width.
func testChunk(t *testing.T, start, n int) *Arrays {
	t.Helper()

	altWidth := 1
	for i := start; i < start+n; i++ {
		if i%3 == 2 {
			altWidth = 2
		}
	}

	chrom := NewMatrix([]int{n}, MissingString)
	pos := NewMatrix([]int{n}, MissingInt)
	id := NewMatrix([]int{n}, MissingString)
	ref := NewMatrix([]int{n}, MissingString)
	alt := NewMatrix([]int{n, altWidth}, MissingString)
	qual := NewMatrix([]int{n}, MissingFloat())
	pass := NewMatrix([]int{n}, false)
	gt := NewMatrix([]int{n, len(testSamples), 2}, MissingGT)
	dp := NewMatrix([]int{n, len(testSamples)}, MissingInt)

	for r := 0; r < n; r++ {
		i := start + r
		chrom.Set("20", r)
		pos.Set(int32(100*(i+1)), r)
		id.Set("rs"+strconv.Itoa(i), r)
		ref.Set("A", r)
		alt.Set("G", r, 0)
		if i%3 == 2 {
			alt.Set("T", r, 1)
		}
		if i%4 != 0 {
			qual.Set(float64(i), r)
		}
		pass.Set(i%2 == 0, r)
		for s := range testSamples {
			if (i+s)%5 == 0 {
				continue
			}
			gt.Set(int32((i+s)%2), r, s, 0)
			gt.Set(int32((i*s)%3%2), r, s, 1)
			dp.Set(int32(i+s), r, s)
		}
	}

	c, err := NewChunk(map[string]Array{
		ChromField:      chrom,
		PosField:        pos,
		IDField:         id,
		RefField:        ref,
		AltField:        alt,
		QualField:       qual,
		FilterPassField: pass,
		GTField:         gt,
		DPField:         dp,
	}, VariationsMetadata(), testSamples, 2)
	require.NoError(t, err)
	return c
}

type chunkList struct {
	chunks []*Arrays
	i      int
}

func (l *chunkList) Read() *Arrays {
	if l.i >= len(l.chunks) {
		return nil
	}
	l.i++
	return l.chunks[l.i-1]
}

func (l *chunkList) Error() error { return nil }

func testChunks(t *testing.T, sizes ...int) *chunkList {
	l := &chunkList{}
	start := 0
	for _, n := range sizes {
		l.chunks = append(l.chunks, testChunk(t, start, n))
		start += n
	}
	return l
}

func openBackends(t *testing.T, optFns ...func(o *PagedOptions)) map[string]Store {
	dir := t.TempDir()
	sq, err := OpenSQLite(filepath.Join(dir, "store.sqlite"), optFns...)
	require.NoError(t, err)
	bo, err := OpenBolt(filepath.Join(dir, "store.bolt"), optFns...)
	require.NoError(t, err)
	t.Cleanup(func() {
		sq.Close()
		bo.Close()
	})
	return map[string]Store{
		"memory": NewArrays(),
		"sqlite": sq,
		"bolt":   bo,
	}
}

func requireSameStore(t *testing.T, want, got Store) {
	t.Helper()
	require.Equal(t, want.Keys(), got.Keys())
	require.Equal(t, want.NumVariations(), got.NumVariations())
	require.Equal(t, want.Samples(), got.Samples())
	require.Equal(t, want.Ploidy(), got.Ploidy())
	for _, k := range want.Keys() {
		a, err := want.Get(k)
		require.NoError(t, err)
		b, err := got.Get(k)
		require.NoError(t, err)
		assert.Truef(t, a.Equal(b), "%s: %v != %v", k, a, b)
	}
}

func TestBackendEquivalence(t *testing.T) {
	for _, c := range []Compression{CompressionDisabled, CompressionZStandard, CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			stores := openBackends(t, WithCompression(c), WithPageChunkSize(4))
			for name, s := range stores {
				require.NoError(t, s.PutChunks(testChunks(t, 2, 5, 1)), name)
			}
			mem := stores["memory"]
			assert.Equal(t, 8, mem.NumVariations())
			for _, name := range []string{"sqlite", "bolt"} {
				requireSameStore(t, mem, stores[name])
			}
		})
	}
}

func TestAppendWidensTrailingShape(t *testing.T) {
	for name, s := range openBackends(t) {
		// The first chunk has a single alternate column, the second two.
		require.NoError(t, s.PutChunks(testChunks(t, 2, 2)), name)

		arr, err := s.Get(AltField)
		require.NoError(t, err, name)
		alt, err := AsString(arr)
		require.NoError(t, err, name)
		assert.Equal(t, []int{4, 2}, alt.Shape(), name)
		assert.Equal(t, []string{"G", MissingString}, alt.Row(0), name)
		assert.Equal(t, []string{"G", "T"}, alt.Row(2), name)
	}
}

func TestGetRowsAcrossPages(t *testing.T) {
	for name, s := range openBackends(t) {
		require.NoError(t, s.PutChunks(testChunks(t, 3, 3, 3)), name)

		arr, err := s.GetRows(PosField, 2, 7)
		require.NoError(t, err, name)
		pos, err := AsInt(arr)
		require.NoError(t, err, name)
		assert.Equal(t, []int32{300, 400, 500, 600, 700}, pos.Data(), name)

		empty, err := s.GetRows(PosField, 4, 4)
		require.NoError(t, err, name)
		assert.Equal(t, 0, empty.Rows(), name)

		_, err = s.GetRows(PosField, 5, 10)
		assert.Error(t, err, name)
	}
}

func TestManyAppendsJoinOnRead(t *testing.T) {
	s := NewArrays()
	for i := 0; i < 20; i++ {
		require.NoError(t, s.AppendChunk(testChunk(t, i, 1)))
	}
	assert.Len(t, s.tails[PosField], 19)

	arr, err := s.Get(PosField)
	require.NoError(t, err)
	assert.Nil(t, s.tails)
	assert.Equal(t, 20, arr.Rows())

	for i := 20; i < 30; i++ {
		require.NoError(t, s.AppendChunk(testChunk(t, i, 1)))
	}
	want := NewArrays()
	require.NoError(t, want.AppendChunk(testChunk(t, 0, 30)))
	requireSameStore(t, want, s)
}

func TestAppendRejectsMismatchedChunks(t *testing.T) {
	for name, s := range openBackends(t) {
		require.NoError(t, s.AppendChunk(testChunk(t, 0, 3)), name)

		fewer := testChunk(t, 3, 2)
		require.NoError(t, fewer.Delete(DPField))
		assert.Error(t, s.AppendChunk(fewer), name)

		other := testChunk(t, 3, 2)
		other.samples = []string{"x", "y", "z"}
		assert.Error(t, s.AppendChunk(other), name)

		retyped := testChunk(t, 3, 2)
		require.NoError(t, retyped.Set(DPField, NewMatrix([]int{2, len(testSamples)}, 1.5), nil))
		assert.Error(t, s.AppendChunk(retyped), name)

		// Failed appends leave the store untouched.
		assert.Equal(t, 3, s.NumVariations(), name)
		arr, err := s.Get(DPField)
		require.NoError(t, err, name)
		assert.Equal(t, 3, arr.Rows(), name)
	}
}

func TestIterateChunksBoundaryInvariance(t *testing.T) {
	for name, s := range openBackends(t) {
		require.NoError(t, s.PutChunks(testChunks(t, 4, 4, 3)), name)

		whole, err := s.Get(GTField)
		require.NoError(t, err, name)

		for _, size := range []int{1, 3, 4, 11, 50} {
			var joined Array
			cr := s.IterateChunks(WithChunkSize(size), WithKeptFields(GTField))
			for c := cr.Read(); c != nil; c = cr.Read() {
				assert.Equal(t, []string{GTField}, c.Keys())
				gt, err := c.Get(GTField)
				require.NoError(t, err)
				joined, err = Concat(joined, gt)
				require.NoError(t, err)
			}
			require.NoError(t, cr.Error())
			assert.Truef(t, whole.Equal(joined), "%s: chunk size %d", name, size)
		}
	}
}

func TestIterateChunksUnknownField(t *testing.T) {
	s := NewArrays()
	require.NoError(t, s.AppendChunk(testChunk(t, 0, 3)))
	cr := s.IterateChunks(WithKeptFields("/calls/XX"))
	assert.Nil(t, cr.Read())
	assert.ErrorIs(t, cr.Error(), ErrNoSuchField)
}

func TestSetAndDelete(t *testing.T) {
	for name, s := range openBackends(t, WithPageChunkSize(2)) {
		require.NoError(t, s.AppendChunk(testChunk(t, 0, 5)), name)

		flag := FromSlice([]int32{1, 0, -1, 1, 0}, 5)
		meta := &FieldMetadata{Kind: KindInfo, Type: TypeInteger, Number: 1}
		require.NoError(t, s.Set(InfoPath("FLAG"), flag, meta), name)
		got, err := s.Get(InfoPath("FLAG"))
		require.NoError(t, err, name)
		assert.True(t, flag.Equal(got), name)
		assert.Equal(t, *meta, s.Metadata()[InfoPath("FLAG")], name)

		assert.Error(t, s.Set(InfoPath("SHORT"), FromSlice([]int32{1}, 1), nil), name)

		require.NoError(t, s.Delete(InfoPath("FLAG")), name)
		assert.NotContains(t, s.Keys(), InfoPath("FLAG"), name)
		_, err = s.Get(InfoPath("FLAG"))
		assert.ErrorIs(t, err, ErrNoSuchField, name)
	}
}

func TestPagedReopen(t *testing.T) {
	for _, open := range []func(string, ...func(o *PagedOptions)) (*Paged, error){OpenSQLite, OpenBolt} {
		path := filepath.Join(t.TempDir(), "store")

		s, err := open(path, WithCompression(CompressionLZ4))
		require.NoError(t, err)
		require.NoError(t, s.PutChunks(testChunks(t, 3, 3)))
		want := NewArrays()
		require.NoError(t, want.PutChunks(testChunks(t, 3, 3)))
		require.NoError(t, s.Close())

		ro, err := open(path, WithMode(ModeRead), WithCompression(CompressionZStandard))
		require.NoError(t, err)
		assert.Equal(t, CompressionLZ4, ro.Compression())
		requireSameStore(t, want, ro)
		assert.Equal(t, want.Metadata(), ro.Metadata())
		assert.ErrorIs(t, ro.AppendChunk(testChunk(t, 6, 1)), ErrReadOnly)
		assert.ErrorIs(t, ro.Delete(GTField), ErrReadOnly)
		require.NoError(t, ro.Close())

		w, err := open(path, WithMode(ModeWrite))
		require.NoError(t, err)
		assert.Equal(t, 0, w.NumVariations())
		assert.Empty(t, w.Keys())
		require.NoError(t, w.Close())
	}
}

func TestRenamedSamplesSurviveReopen(t *testing.T) {
	for _, open := range []func(string, ...func(o *PagedOptions)) (*Paged, error){OpenSQLite, OpenBolt} {
		path := filepath.Join(t.TempDir(), "store")

		s, err := open(path)
		require.NoError(t, err)
		require.NoError(t, s.SetSamples([]string{"a", "b"}))
		require.NoError(t, s.SetSamples([]string{"c", "d"}))
		require.NoError(t, s.Close())

		ro, err := open(path, WithMode(ModeRead))
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "d"}, ro.Samples())
		require.NoError(t, ro.Close())
	}
}

func TestModeReadRequiresFile(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "missing.sqlite"), WithMode(ModeRead))
	assert.Error(t, err)
}

func TestAlleleCount(t *testing.T) {
	gt := FromSlice([]int32{
		0, 0, 1, 0, 1, 1,
		0, 0, 0, 1, 0, 0,
		1, 2, 2, 1, 2, 2,
		0, 0, 0, 0, -1, -1,
	}, 4, 3, 2)
	c, err := NewChunk(map[string]Array{GTField: gt}, nil, testSamples, 2)
	require.NoError(t, err)

	for name, s := range openBackends(t, WithPageChunkSize(1)) {
		require.NoError(t, s.AppendChunk(c), name)
		counts, err := s.AlleleCount()
		require.NoError(t, err, name)
		assert.Equal(t, []int{4, 3}, counts.Shape(), name)
		assert.Equal(t, []int32{3, 3, 0, 5, 1, 0, 0, 2, 4, 4, 0, 0}, counts.Data(), name)
	}
}

func TestAlleleCountObservedAllelesOnly(t *testing.T) {
	first, err := NewChunk(map[string]Array{
		GTField: FromSlice([]int32{0, 2, 2, 2, 0, 0}, 1, 3, 2),
	}, nil, testSamples, 2)
	require.NoError(t, err)
	second, err := NewChunk(map[string]Array{
		GTField: FromSlice([]int32{0, 0, 2, 0, 2, 2}, 1, 3, 2),
	}, nil, testSamples, 2)
	require.NoError(t, err)

	for name, s := range openBackends(t, WithPageChunkSize(1)) {
		require.NoError(t, s.AppendChunk(first), name)
		require.NoError(t, s.AppendChunk(second), name)
		counts, err := s.AlleleCount()
		require.NoError(t, err, name)
		assert.Equal(t, []int{2, 2}, counts.Shape(), name)
		assert.Equal(t, []int32{3, 3, 3, 3}, counts.Data(), name)
	}
}

func TestIterateChunkPairs(t *testing.T) {
	pos := []int32{10, 20, 30, 40, 1000, 1010, 5, 15}
	chrom := []string{"1", "1", "1", "1", "1", "1", "2", "2"}
	c, err := NewChunk(map[string]Array{
		ChromField: FromSlice(chrom, 8),
		PosField:   FromSlice(pos, 8),
	}, nil, nil, 0)
	require.NoError(t, err)
	s := NewArrays()
	require.NoError(t, s.AppendChunk(c))

	collect := func(optFns ...func(o *ChunkPairOptions)) [][2]int {
		var out [][2]int
		pr := s.IterateChunkPairs(optFns...)
		for p := pr.Read(); p != nil; p = pr.Read() {
			out = append(out, [2]int{p.FirstStart, p.SecondStart})
			assert.Equal(t, p.FirstStart == p.SecondStart, p.Diagonal())
		}
		require.NoError(t, pr.Error())
		return out
	}

	all := collect(WithPairChunkSize(2))
	assert.Len(t, all, 10)

	near := collect(WithPairChunkSize(2), WithMaxDist(15))
	assert.Equal(t, [][2]int{{0, 0}, {0, 2}, {2, 2}, {4, 4}, {6, 6}}, near)
}

func TestCompressionRoundTrip(t *testing.T) {
	arrays := []Array{
		NewMatrix([]int{50, 3, 2}, int32(7)),
		FromSlice([]float64{1.5, math.NaN(), -2}, 3),
		FromSlice([]string{"", "abc", "de", ""}, 2, 2),
		FromSlice([]bool{true, false, true}, 3),
		NewEmpty(TypeInteger, []int{3}),
	}
	for _, c := range []Compression{CompressionDisabled, CompressionZStandard, CompressionLZ4} {
		for _, a := range arrays {
			block, err := encodePage(a, c)
			require.NoError(t, err)
			got, err := decodePage(block, c)
			require.NoError(t, err)
			assert.Truef(t, a.Equal(got), "%s %v", c, a)
		}
	}
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionDisabled, CompressionZStandard, CompressionLZ4} {
		got, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCompression("brotli")
	assert.Error(t, err)
}

func TestTimeScan(t *testing.T) {
	want := time.Unix(1650000000, 0)

	v, err := Time(want).Value()
	require.NoError(t, err)
	assert.Equal(t, int64(1650000000), v)

	for _, in := range []interface{}{int64(1650000000), want, want.UTC().Format(sqliteTimeLayout), []byte(want.UTC().Format(sqliteTimeLayout))} {
		var got Time
		require.NoError(t, got.Scan(in), "%T", in)
		assert.True(t, want.Equal(time.Time(got)), "%T", in)
	}

	var got Time
	assert.Error(t, got.Scan(3.5))
}
