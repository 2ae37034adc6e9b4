package variation

import (
	"fmt"

	"github.com/carbocation/pfx"
)

// ChunkReader streams consecutive row slices of a Store. Read returns nil at
// the end of the store or after a failure; check Error afterwards.
type ChunkReader struct {
	s      Store
	size   int
	fields []string
	start  int
	end    int
	err    error
}

func newChunkReader(s Store, defaultSize int, optFns ...func(o *ChunkOptions)) *ChunkReader {
	opts := ChunkOptions{ChunkSize: defaultSize}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	cr := &ChunkReader{s: s, size: opts.ChunkSize, end: s.NumVariations()}
	if opts.KeptFields == nil {
		cr.fields = s.Keys()
		return cr
	}

	have := make(map[string]struct{})
	for _, k := range s.Keys() {
		have[k] = struct{}{}
	}
	for _, k := range opts.KeptFields {
		if _, ok := have[k]; !ok {
			cr.err = pfx.Err(fmt.Errorf("%w: %s", ErrNoSuchField, k))
			return cr
		}
		cr.fields = append(cr.fields, k)
	}
	return cr
}

// ChunkSize is the number of rows in every chunk but possibly the last.
func (cr *ChunkReader) ChunkSize() int { return cr.size }

// Offset is the row at which the next chunk starts.
func (cr *ChunkReader) Offset() int { return cr.start }

func (cr *ChunkReader) Read() *Arrays {
	if cr.err != nil || cr.start >= cr.end {
		return nil
	}
	end := cr.start + cr.size
	if end > cr.end {
		end = cr.end
	}
	c, err := readChunk(cr.s, cr.fields, cr.start, end)
	if err != nil {
		cr.err = pfx.Err(err)
		return nil
	}
	cr.start = end
	return c
}

func (cr *ChunkReader) Error() error { return cr.err }

func readChunk(s Store, fields []string, start, end int) (*Arrays, error) {
	c := NewArrays()
	c.samples = s.Samples()
	c.ploidy = s.Ploidy()
	c.metadata = s.Metadata().Clone()
	for _, p := range fields {
		arr, err := s.GetRows(p, start, end)
		if err != nil {
			return nil, pfx.Err(err)
		}
		c.fields[p] = arr
	}
	c.nvars = end - start
	return c, nil
}

// ChunkPair is one pair of chunks from IterateChunkPairs, with the store rows
// at which each begins. When FirstStart == SecondStart both chunks are the
// same slice of the store.
type ChunkPair struct {
	First       *Arrays
	Second      *Arrays
	FirstStart  int
	SecondStart int
}

// Diagonal reports whether both halves of the pair are the same chunk.
func (p *ChunkPair) Diagonal() bool { return p.FirstStart == p.SecondStart }

// chunkSpan summarizes where a chunk's variants lie on each chromosome.
type chunkSpan map[string][2]int32

// ChunkPairReader yields every unordered pair of chunks (i <= j), optionally
// restricted to pairs close enough on the genome to hold a variant pair
// within the maximum distance.
type ChunkPairReader struct {
	s       Store
	size    int
	maxDist int
	starts  []int
	spans   []chunkSpan
	i, j    int
	first   *Arrays
	err     error
}

func newChunkPairReader(s Store, defaultSize int, optFns ...func(o *ChunkPairOptions)) *ChunkPairReader {
	opts := ChunkPairOptions{ChunkSize: defaultSize, MaxDist: NoMaxDist}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	pr := &ChunkPairReader{s: s, size: opts.ChunkSize, maxDist: opts.MaxDist}
	for start := 0; start < s.NumVariations(); start += opts.ChunkSize {
		pr.starts = append(pr.starts, start)
	}
	if opts.MaxDist >= 0 && len(pr.starts) > 0 {
		if err := pr.loadSpans(); err != nil {
			pr.err = pfx.Err(err)
		}
	}
	return pr
}

func (pr *ChunkPairReader) loadSpans() error {
	chromArr, err := pr.s.Get(ChromField)
	if err != nil {
		return pfx.Err(err)
	}
	posArr, err := pr.s.Get(PosField)
	if err != nil {
		return pfx.Err(err)
	}
	chrom, err := AsString(chromArr)
	if err != nil {
		return pfx.Err(err)
	}
	pos, err := AsInt(posArr)
	if err != nil {
		return pfx.Err(err)
	}

	for _, start := range pr.starts {
		span := chunkSpan{}
		end := pr.chunkEnd(start)
		for r := start; r < end; r++ {
			c, p := chrom.Data()[r], pos.Data()[r]
			iv, ok := span[c]
			if !ok {
				span[c] = [2]int32{p, p}
				continue
			}
			if p < iv[0] {
				iv[0] = p
			}
			if p > iv[1] {
				iv[1] = p
			}
			span[c] = iv
		}
		pr.spans = append(pr.spans, span)
	}
	return nil
}

func (pr *ChunkPairReader) chunkEnd(start int) int {
	end := start + pr.size
	if n := pr.s.NumVariations(); end > n {
		end = n
	}
	return end
}

// near reports whether chunks i and j share a chromosome on which their
// position intervals come within maxDist of each other.
func (pr *ChunkPairReader) near(i, j int) bool {
	if pr.maxDist < 0 || i == j {
		return true
	}
	for chrom, a := range pr.spans[i] {
		b, ok := pr.spans[j][chrom]
		if !ok {
			continue
		}
		lo, hi := a[0], a[1]
		if b[0] > lo {
			lo = b[0]
		}
		if b[1] < hi {
			hi = b[1]
		}
		gap := int64(lo) - int64(hi)
		if gap <= int64(pr.maxDist) {
			return true
		}
	}
	return false
}

func (pr *ChunkPairReader) Read() *ChunkPair {
	for pr.err == nil && pr.i < len(pr.starts) {
		if pr.j >= len(pr.starts) {
			pr.i++
			pr.j = pr.i
			pr.first = nil
			continue
		}
		i, j := pr.i, pr.j
		pr.j++
		if !pr.near(i, j) {
			continue
		}

		fields := pr.s.Keys()
		if pr.first == nil {
			first, err := readChunk(pr.s, fields, pr.starts[i], pr.chunkEnd(pr.starts[i]))
			if err != nil {
				pr.err = pfx.Err(err)
				return nil
			}
			pr.first = first
		}
		second := pr.first
		if j != i {
			var err error
			second, err = readChunk(pr.s, fields, pr.starts[j], pr.chunkEnd(pr.starts[j]))
			if err != nil {
				pr.err = pfx.Err(err)
				return nil
			}
		}
		return &ChunkPair{
			First:       pr.first,
			Second:      second,
			FirstStart:  pr.starts[i],
			SecondStart: pr.starts[j],
		}
	}
	return nil
}

func (pr *ChunkPairReader) Error() error { return pr.err }
