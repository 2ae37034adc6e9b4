package vcf

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/carbocation/variation"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const formatDef = "testdata/format_def.vcf"

func openFormatDef(t *testing.T, optFns ...func(o *Options)) *Parser {
	t.Helper()
	f, err := os.Open(formatDef)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	p, err := NewParser(f, optFns...)
	require.NoError(t, err)
	return p
}

func readAll(t *testing.T, p *Parser) []*variation.Record {
	t.Helper()
	var out []*variation.Record
	for rec := p.Read(); rec != nil; rec = p.Read() {
		out = append(out, rec)
	}
	require.NoError(t, p.Error())
	return out
}

func loadFormatDef(t *testing.T, optFns ...func(o *Options)) *variation.Arrays {
	t.Helper()
	s := variation.NewArrays()
	require.NoError(t, s.PutVars(openFormatDef(t, optFns...)))
	return s
}

func ints(t *testing.T, s variation.Store, path string) *variation.Matrix[int32] {
	t.Helper()
	arr, err := s.Get(path)
	require.NoError(t, err, path)
	m, err := variation.AsInt(arr)
	require.NoError(t, err, path)
	return m
}

// tabs turns a space-separated literal into a VCF line.
func tabs(lines ...string) string {
	var b strings.Builder
	for _, l := range lines {
		if strings.HasPrefix(l, "##") {
			b.WriteString(l)
		} else {
			b.WriteString(strings.ReplaceAll(l, " ", "\t"))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

var miniHeader = []string{
	"##fileformat=VCFv4.2",
	`##INFO=<ID=DP,Number=1,Type=Integer,Description="Depth">`,
	`##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">`,
	`##FORMAT=<ID=DP,Number=1,Type=Integer,Description="Depth">`,
	"#CHROM POS ID REF ALT QUAL FILTER INFO FORMAT a b",
}

func mini(records ...string) string {
	return tabs(append(append([]string(nil), miniHeader...), records...)...)
}

func TestParserHeader(t *testing.T) {
	p := openFormatDef(t)

	assert.Equal(t, "VCFv4.0", p.Format())
	assert.Equal(t, []string{"myImputationProgramV3.1"}, p.Header()["source"])
	assert.Equal(t, []string{"<ID=20,length=62435964>"}, p.Header()["contig"])
	assert.Equal(t, []string{"NA00001", "NA00002", "NA00003"}, p.Samples())
	assert.Equal(t, 2, p.Ploidy())

	meta := p.Metadata()
	assert.Equal(t, variation.FieldMetadata{
		Kind: variation.KindFormat, Type: variation.TypeInteger, Number: 2, Description: "Haplotype Quality",
	}, meta["/calls/HQ"])
	assert.True(t, meta["/variations/info/AF"].Number.IsVariable())
	assert.Equal(t, "dbSNP membership, build 129", meta["/variations/info/DB"].Description)
	assert.Equal(t, variation.TypeFlag, meta["/variations/filter/q10"].Type)
	assert.Equal(t, variation.TypeInteger, meta[variation.GTField].Type)
	assert.Contains(t, meta, variation.FilterPassField)
	assert.Contains(t, meta, variation.QualField)

	// The whole file fits in the look-ahead, so widths are already known.
	assert.Equal(t, 2, p.MaxFieldLens().Alt)
	assert.Equal(t, 2, p.MaxFieldLens().Info["AF"])
}

func TestParserRecords(t *testing.T) {
	recs := readAll(t, openFormatDef(t))
	require.Len(t, recs, 5)

	first := recs[0]
	assert.Equal(t, "20", first.Chrom)
	assert.Equal(t, int32(14370), first.Pos)
	assert.Equal(t, "rs6054257", first.ID)
	assert.Equal(t, []string{"A"}, first.Alt)
	assert.Equal(t, 29.0, first.Qual)
	assert.Equal(t, []string{}, first.Filters)
	assert.Equal(t, []int32{3}, first.Info["NS"])
	assert.Equal(t, []float64{0.5}, first.Info["AF"])
	assert.Equal(t, true, first.Info["DB"])
	require.Len(t, first.Calls, 4)
	assert.Equal(t, "GT", first.Calls[0].Name)
	assert.Equal(t, [][]int32{{0, 0}, {1, 0}, {1, 1}}, first.Calls[0].Values)
	assert.Equal(t, [][]int32{{51, 51}, {51, 51}, {-1, -1}}, first.Calls[3].Values)

	assert.Equal(t, variation.MissingString, recs[1].ID)
	assert.Equal(t, []string{"q10"}, recs[1].Filters)
	assert.Nil(t, recs[3].Alt)
	assert.Equal(t, []string{"G", "GTACT"}, recs[4].Alt)
	assert.Equal(t, []string{"G"}, recs[4].Info["AA"])
}

func TestPutVarsFormatDef(t *testing.T) {
	dir := t.TempDir()
	paged, err := variation.OpenSQLite(filepath.Join(dir, "format_def.sqlite"))
	require.NoError(t, err)
	defer paged.Close()
	require.NoError(t, paged.PutVars(openFormatDef(t)))

	for name, s := range map[string]variation.Store{"memory": loadFormatDef(t), "sqlite": paged} {
		require.Equal(t, 5, s.NumVariations(), name)

		gt := ints(t, s, variation.GTField)
		assert.Equal(t, []int{5, 3, 2}, gt.Shape(), name)
		assert.Equal(t, []int32{0, 0, 0, 1, 0, 0}, gt.Row(1), name)

		gq := ints(t, s, "/calls/GQ")
		assert.Equal(t, []int32{48, 48, 43}, gq.Row(0), name)

		hq := ints(t, s, "/calls/HQ")
		assert.Equal(t, []int{5, 3, 2}, hq.Shape(), name)
		assert.Equal(t, []int32{51, 51, 51, 51, -1, -1}, hq.Row(0), name)
		assert.Equal(t, []int32{58, 50, 65, 3, -1, -1}, hq.Row(1), name)
		assert.Equal(t, []int32{23, 27, 18, 2, -1, -1}, hq.Row(2), name)
		assert.Equal(t, []int32{56, 60, 51, 51, -1, -1}, hq.Row(3), name)
		assert.Equal(t, []int32{-1, -1, -1, -1, -1, -1}, hq.Row(4), name)

		ac, err := s.AlleleCount()
		require.NoError(t, err, name)
		assert.Equal(t, []int32{
			3, 3, 0,
			5, 1, 0,
			0, 2, 4,
			6, 0, 0,
			2, 3, 1,
		}, ac.Data(), name)

		ns := ints(t, s, "/variations/info/NS")
		assert.Equal(t, []int32{3, 3, 2, 3, 3}, ns.Data(), name)

		arr, err := s.Get("/variations/info/AF")
		require.NoError(t, err, name)
		af := arr.(*variation.Matrix[float64])
		assert.Equal(t, []int{5, 2}, af.Shape(), name)
		assert.Equal(t, 0.5, af.At(0, 0), name)
		assert.True(t, math.IsNaN(af.At(0, 1)), name)
		assert.Equal(t, []float64{0.333, 0.667}, af.Row(2), name)

		arr, err = s.Get("/variations/info/DB")
		require.NoError(t, err, name)
		assert.Equal(t, []bool{true, false, true, false, false}, arr.(*variation.Matrix[bool]).Data(), name)

		for path, want := range map[string][]bool{
			"/variations/filter/q10":        {false, true, false, false, false},
			"/variations/filter/s50":        {false, false, false, false, false},
			variation.FilterPassField:       {true, false, true, true, true},
			variation.FilterNoFiltersField: {false, false, false, false, false},
		} {
			arr, err := s.Get(path)
			require.NoError(t, err, path)
			assert.Equal(t, want, arr.(*variation.Matrix[bool]).Data(), path)
		}

		arr, err = s.Get(variation.AltField)
		require.NoError(t, err, name)
		alt := arr.(*variation.Matrix[string])
		assert.Equal(t, []string{"", ""}, alt.Row(3), name)
		assert.Equal(t, []string{"G", "T"}, alt.Row(2), name)

		arr, err = s.Get(variation.QualField)
		require.NoError(t, err, name)
		assert.Equal(t, []float64{29, 3, 67, 47, 50}, arr.(*variation.Matrix[float64]).Data(), name)
	}
}

func TestKeptFields(t *testing.T) {
	s := loadFormatDef(t, WithKeptFields(variation.GTField))

	assert.True(t, s.Has(variation.GTField))
	assert.False(t, s.Has("/calls/GQ"))
	assert.False(t, s.Has("/calls/HQ"))
	assert.True(t, s.Has("/variations/filter/q10"))
	assert.Contains(t, s.Metadata(), "/variations/filter/q10")
	// Declarations survive even when no array is produced.
	assert.Contains(t, s.Metadata(), "/calls/HQ")

	s = loadFormatDef(t, WithKeptFields(variation.QualField))
	assert.False(t, s.Has(variation.GTField))
	assert.True(t, s.Has(variation.QualField))
	assert.Contains(t, s.Metadata(), "/calls/HQ")
}

func TestIgnoredFields(t *testing.T) {
	s := loadFormatDef(t, WithIgnoredFields(variation.QualField, "/calls/HQ", "/variations/info/AF"))

	for _, path := range []string{variation.QualField, "/calls/HQ", "/variations/info/AF"} {
		assert.False(t, s.Has(path), path)
		assert.NotContains(t, s.Metadata(), path)
	}
	assert.True(t, s.Has("/calls/GQ"))
	assert.True(t, s.Has("/variations/info/NS"))
}

func TestConflictingFieldSelection(t *testing.T) {
	_, err := NewParser(strings.NewReader(mini()),
		WithKeptFields(variation.GTField),
		WithIgnoredFields("/calls/DP"))
	assert.ErrorIs(t, err, variation.ErrConflictingFieldSelection)
}

func TestUndeclaredFields(t *testing.T) {
	p, err := NewParser(strings.NewReader(mini(
		"1 10 . A T 5 PASS DP=4 GT 0/1 1/1",
		"1 20 . A T 5 PASS XX=1 GT 0/1 1/1",
	)))
	require.NoError(t, err)

	require.NotNil(t, p.Read())
	assert.Nil(t, p.Read())
	err = p.Error()
	assert.ErrorIs(t, err, variation.ErrUndeclaredField)
	assert.Contains(t, err.Error(), "INFO metadata was not defined in header: XX")

	p, err = NewParser(strings.NewReader(mini("1 10 . A T 5 PASS . GT:ZZ 0/1:1 1/1:2")))
	require.NoError(t, err)
	assert.Nil(t, p.Read())
	assert.ErrorIs(t, p.Error(), variation.ErrUndeclaredField)
	assert.Contains(t, p.Error().Error(), "FORMAT metadata was not defined in header: ZZ")

	// Ignoring a field also silences the declaration check.
	p, err = NewParser(strings.NewReader(mini("1 10 . A T 5 PASS XX=1 GT 0/1 1/1")),
		WithIgnoredFields("/variations/info/XX"))
	require.NoError(t, err)
	assert.NotNil(t, p.Read())
	assert.NoError(t, p.Error())
}

func TestMalformedHeader(t *testing.T) {
	cases := map[string]string{
		"missing id":  `##INFO=<Number=1,Type=Integer,Description="No ID">`,
		"unsupported": `##FORMATS=<ID=GT,Number=1,Type=String>`,
		"no equals":   `##justtext`,
		"bad type":    `##INFO=<ID=X,Number=1,Type=Blob,Description="x">`,
	}
	for name, line := range cases {
		in := tabs(line, "#CHROM POS ID REF ALT QUAL FILTER INFO FORMAT a", "1 1 . A T . . . GT 0/1")
		_, err := NewParser(strings.NewReader(in))
		assert.ErrorIs(t, err, variation.ErrMalformedHeader, name)
	}

	_, err := NewParser(strings.NewReader("##fileformat=VCFv4.2\n"))
	assert.ErrorIs(t, err, variation.ErrMalformedHeader)
}

func TestQuotedCommaInDescription(t *testing.T) {
	in := tabs(`##INFO=<ID=X,Number=1,Type=String,Description="a, b, and c">`,
		"#CHROM POS ID REF ALT QUAL FILTER INFO", "1 1 . A T . . X=y")
	p, err := NewParser(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "a, b, and c", p.Metadata()["/variations/info/X"].Description)

	recs := readAll(t, p)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].Calls)
	assert.Empty(t, p.Samples())
}

func TestPloidySniff(t *testing.T) {
	p, err := NewParser(strings.NewReader(mini(
		"1 10 . A T . . . GT . .",
		"1 20 . A T . . . DP:GT 3:. 4:1",
		"1 30 . A T . . . GT 0/1 1",
	)))
	require.NoError(t, err)
	assert.Equal(t, 1, p.Ploidy())

	// No line was lost to the sniff.
	recs := readAll(t, p)
	require.Len(t, recs, 3)
	assert.Equal(t, [][]int32{{-1}, {-1}}, recs[0].Calls[0].Values)

	p, err = NewParser(strings.NewReader(mini("1 10 . A T . . . GT 0|1|1 ./././.")))
	require.NoError(t, err)
	assert.Equal(t, 3, p.Ploidy())

	p, err = NewParser(strings.NewReader(mini()))
	require.NoError(t, err)
	assert.Equal(t, DefaultPloidy, p.Ploidy())
	assert.Nil(t, p.Read())
	assert.NoError(t, p.Error())
}

func TestPloidySniffStopsWithoutSamples(t *testing.T) {
	text := "##fileformat=VCFv4.2\n" +
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n" +
		"1\t10\t.\tA\tT\t.\t.\t.\n" +
		"1\t20\t.\tA\tT\t.\t.\t.\n"

	p := &Parser{lines: newLineReader(strings.NewReader(text))}
	require.NoError(t, p.sniffPloidy())
	assert.Equal(t, DefaultPloidy, p.ploidy)
	// Only the header was read ahead.
	assert.Len(t, p.lines.pushed, 2)

	recs := readAll(t, mustParse(t, text))
	assert.Len(t, recs, 2)
}

func TestMissingSampleValues(t *testing.T) {
	recs := readAll(t, mustParse(t, mini("1 10 . A T . . DP=. GT:DP ./.:7 .")))
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.True(t, math.IsNaN(rec.Qual))
	assert.Nil(t, rec.Filters)
	assert.Equal(t, []int32{variation.MissingInt}, rec.Info["DP"])
	assert.Equal(t, [][]int32{{-1, -1}, {-1, -1}}, rec.Calls[0].Values)
	assert.Equal(t, [][]int32{{7}, nil}, rec.Calls[1].Values)
}

func mustParse(t *testing.T, in string, optFns ...func(o *Options)) *Parser {
	t.Helper()
	p, err := NewParser(strings.NewReader(in), optFns...)
	require.NoError(t, err)
	return p
}

func TestMaxNumVars(t *testing.T) {
	assert.Len(t, readAll(t, openFormatDef(t, WithMaxNumVars(2))), 2)
	assert.Len(t, readAll(t, openFormatDef(t, WithMaxNumVars(2), WithPreReadMaxSize(0))), 2)
}

func TestLookAheadBudget(t *testing.T) {
	// Without look-ahead the later, wider AF is not known yet.
	p := openFormatDef(t, WithPreReadMaxSize(0))
	assert.Equal(t, 0, p.MaxFieldLens().Info["AF"])
	lazy := readAll(t, p)
	assert.Equal(t, 2, p.MaxFieldLens().Info["AF"])

	// A budget smaller than one line still reads one record ahead.
	p = openFormatDef(t, WithPreReadMaxSize(1))
	assert.Equal(t, 1, p.MaxFieldLens().Info["AF"])
	eager := readAll(t, p)

	require.Len(t, eager, len(lazy))
	for i := range lazy {
		assert.Equal(t, lazy[i], eager[i])
	}

	// Seeds widen arrays beyond what the data needs.
	lens := variation.NewFieldLens()
	lens.Alt = 4
	s := loadFormatDef(t, WithMaxFieldLens(lens))
	arr, err := s.Get(variation.AltField)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 4}, arr.Shape())
}

func TestGzipInput(t *testing.T) {
	raw, err := os.ReadFile(formatDef)
	require.NoError(t, err)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err = gz.Write(raw)
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "format_def.vcf.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0600))

	for _, in := range []string{path, formatDef} {
		r, err := Open(context.Background(), in)
		require.NoError(t, err, in)
		p, err := NewParser(r)
		require.NoError(t, err, in)
		assert.Len(t, readAll(t, p), 5, in)
		assert.NoError(t, r.Close(), in)
	}
}

func TestSplitGCSPath(t *testing.T) {
	bucket, object, err := splitGCSPath("gs://my-bucket/dir/file.vcf.gz")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "dir/file.vcf.gz", object)

	_, _, err = splitGCSPath("gs://my-bucket")
	assert.Error(t, err)
}

func TestStoreRoundTrip(t *testing.T) {
	parsed := readAll(t, openFormatDef(t))
	s := loadFormatDef(t)

	var exported []*variation.Record
	cr := s.IterateChunks(variation.WithChunkSize(2))
	for c := cr.Read(); c != nil; c = cr.Read() {
		recs, err := variation.RecordsFromChunk(c)
		require.NoError(t, err)
		exported = append(exported, recs...)
	}
	require.NoError(t, cr.Error())
	require.Len(t, exported, len(parsed))

	call := func(rec *variation.Record, name string) interface{} {
		for _, c := range rec.Calls {
			if c.Name == name {
				return c.Values
			}
		}
		return nil
	}

	for i, want := range parsed {
		got := exported[i]
		assert.Equal(t, want.Chrom, got.Chrom)
		assert.Equal(t, want.Pos, got.Pos)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Alt, got.Alt)
		assert.Equal(t, want.Qual, got.Qual)
		assert.Equal(t, want.Filters, got.Filters)
		assert.Equal(t, want.Info, got.Info)
		assert.Equal(t, call(want, "GT"), call(got, "GT"))
		assert.Equal(t, call(want, "GQ"), call(got, "GQ"))
	}
}

func TestPerGenotypeFieldWidth(t *testing.T) {
	in := tabs(
		"##fileformat=VCFv4.2",
		`##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">`,
		`##FORMAT=<ID=PL,Number=G,Type=Integer,Description="Phred-scaled genotype likelihoods">`,
		"#CHROM POS ID REF ALT QUAL FILTER INFO FORMAT a b",
		"1 10 . A T,C . . . GT:PL 0/1:. 1/2:.",
	)
	p := mustParse(t, in)
	// Two alternate alleles give six diploid genotypes, even though no
	// sample carries a value.
	assert.Equal(t, 6, p.MaxFieldLens().Format["PL"])
}
