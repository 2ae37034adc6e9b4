package variation

import (
	"fmt"
	"sort"

	"github.com/carbocation/pfx"
)

// DefaultChunkSize is the number of variants per chunk when none is given.
const DefaultChunkSize = 200

// NoMaxDist disables distance banding in IterateChunkPairs.
const NoMaxDist = -1

// Store is an addressable mapping from field path to array. The in-memory
// Arrays and the disk-backed Paged stores implement it identically.
//
// All arrays in a Store share the same number of rows and the same sample
// ordering. Stores change only by whole-chunk appends, whole-field sets and
// field deletion. A Store has a single writer.
type Store interface {
	Keys() []string
	// Get returns the whole array for path.
	Get(path string) (Array, error)
	// GetRows returns rows [start, end) of path.
	GetRows(path string, start, end int) (Array, error)
	// Set stores a whole field. Its row count must match the store's.
	Set(path string, a Array, meta *FieldMetadata) error
	Delete(path string) error

	Metadata() Metadata
	Samples() []string
	Ploidy() int
	NumVariations() int

	// PutVars drains a record reader into the store.
	PutVars(r RecordReader) error
	// PutChunks appends every chunk of src, in order.
	PutChunks(src ChunkSource) error
	// AppendChunk appends one chunk atomically.
	AppendChunk(c *Arrays) error

	IterateChunks(optFns ...func(o *ChunkOptions)) *ChunkReader
	IterateChunkPairs(optFns ...func(o *ChunkPairOptions)) *ChunkPairReader

	// AlleleCount counts, per variant, how many genotype slots hold each
	// allele. Columns are ordered by ascending allele id.
	AlleleCount() (*Matrix[int32], error)

	Close() error
}

// ChunkSource is a lazy, forward-only sequence of chunks.
type ChunkSource interface {
	Read() *Arrays
	Error() error
}

// ChunkOptions configures IterateChunks.
type ChunkOptions struct {
	ChunkSize int
	// KeptFields projects each chunk onto a subset of fields. Nil keeps all.
	KeptFields []string
}

// ChunkPairOptions configures IterateChunkPairs.
type ChunkPairOptions struct {
	ChunkSize int
	// MaxDist bands the pairs to chunks that hold at least one same-chromosome
	// pair of variants within MaxDist bases. NoMaxDist yields every pair.
	MaxDist int
}

func WithChunkSize(n int) func(o *ChunkOptions) {
	return func(o *ChunkOptions) { o.ChunkSize = n }
}

func WithKeptFields(fields ...string) func(o *ChunkOptions) {
	return func(o *ChunkOptions) { o.KeptFields = fields }
}

func WithPairChunkSize(n int) func(o *ChunkPairOptions) {
	return func(o *ChunkPairOptions) { o.ChunkSize = n }
}

func WithMaxDist(d int) func(o *ChunkPairOptions) {
	return func(o *ChunkPairOptions) { o.MaxDist = d }
}

// putChunks is shared by both backends.
func putChunks(s Store, src ChunkSource) error {
	for {
		c := src.Read()
		if c == nil {
			break
		}
		if err := s.AppendChunk(c); err != nil {
			return pfx.Err(err)
		}
	}
	if err := src.Error(); err != nil {
		return pfx.Err(err)
	}
	return nil
}

// putVars batches records into chunks and appends them.
func putVars(s Store, r RecordReader, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	batch := make([]*Record, 0, chunkSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		c, err := BuildChunk(batch, LayoutOf(r))
		if err != nil {
			return pfx.Err(err)
		}
		batch = batch[:0]
		return s.AppendChunk(c)
	}

	for {
		rec := r.Read()
		if rec == nil {
			break
		}
		batch = append(batch, rec)
		if len(batch) == chunkSize {
			if err := flush(); err != nil {
				return pfx.Err(err)
			}
		}
	}
	if err := r.Error(); err != nil {
		return pfx.Err(err)
	}
	if err := flush(); err != nil {
		return pfx.Err(err)
	}
	return nil
}

// checkChunkFields verifies that a chunk carries exactly the fields the
// store already has.
func checkChunkFields(storeKeys []string, c *Arrays) error {
	chunkKeys := c.Keys()
	if len(chunkKeys) != len(storeKeys) {
		return pfx.Err(fmt.Errorf("Chunk fields %v do not match store fields %v", chunkKeys, storeKeys))
	}
	for i := range chunkKeys {
		if chunkKeys[i] != storeKeys[i] {
			return pfx.Err(fmt.Errorf("Chunk fields %v do not match store fields %v", chunkKeys, storeKeys))
		}
	}
	return nil
}

func checkSamples(have, got []string) error {
	if len(have) == 0 || len(got) == 0 {
		return nil
	}
	if len(have) != len(got) {
		return pfx.Err(fmt.Errorf("Chunk has %d samples, store has %d", len(got), len(have)))
	}
	for i := range have {
		if have[i] != got[i] {
			return pfx.Err(fmt.Errorf("Sample %d is %q in the chunk but %q in the store", i, got[i], have[i]))
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// InferMetadata builds a descriptor for a field that has none, from its
// path and array.
func InferMetadata(path string, a Array) FieldMetadata {
	meta := FieldMetadata{Type: a.Type(), Number: 1}
	switch {
	case IsCallPath(path):
		meta.Kind = KindFormat
		if len(a.Shape()) > 2 {
			meta.Number = Number(a.Shape()[2])
		}
	case len(path) > len(InfoPrefix) && path[:len(InfoPrefix)] == InfoPrefix:
		meta.Kind = KindInfo
	case len(path) > len(FilterPrefix) && path[:len(FilterPrefix)] == FilterPrefix:
		meta.Kind = KindFilter
		meta.Number = 0
	case len(path) > len(VariationsPrefix) && path[:len(VariationsPrefix)] == VariationsPrefix:
		meta.Kind = KindVariations
	default:
		meta.Kind = KindOther
	}
	if !IsCallPath(path) && len(a.Shape()) > 1 {
		meta.Number = Number(a.Shape()[1])
	}
	return meta
}

// SampleIndices resolves sample names to their positions in samples.
func SampleIndices(samples, wanted []string) ([]int, error) {
	pos := make(map[string]int, len(samples))
	for i, s := range samples {
		pos[s] = i
	}
	idx := make([]int, 0, len(wanted))
	for _, w := range wanted {
		i, ok := pos[w]
		if !ok {
			return nil, pfx.Err(fmt.Errorf("Sample %q is not in the store", w))
		}
		idx = append(idx, i)
	}
	return idx, nil
}
