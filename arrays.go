package variation

import (
	"fmt"

	"github.com/carbocation/pfx"
)

// Arrays is the in-memory Store. It is also the unit of exchange between
// stores, readers and pipeline steps: every chunk is an *Arrays.
type Arrays struct {
	fields   map[string]Array
	metadata Metadata
	samples  []string
	ploidy   int
	nvars    int

	// tails holds the rows appended since fields was last joined, per field.
	tails map[string][]Array

	// ChunkSize is the batch size used by PutVars and the iterators when
	// the caller does not pass one.
	ChunkSize int
}

var _ Store = (*Arrays)(nil)

func NewArrays() *Arrays {
	return &Arrays{
		fields:    map[string]Array{},
		metadata:  Metadata{},
		ChunkSize: DefaultChunkSize,
	}
}

// NewChunk builds an Arrays from already-shaped fields. All arrays must have
// the same number of rows.
func NewChunk(fields map[string]Array, meta Metadata, samples []string, ploidy int) (*Arrays, error) {
	a := NewArrays()
	a.samples = append([]string(nil), samples...)
	a.ploidy = ploidy
	a.metadata = meta.Clone()
	first := true
	for path, arr := range fields {
		if first {
			a.nvars = arr.Rows()
			first = false
		} else if arr.Rows() != a.nvars {
			return nil, pfx.Err(fmt.Errorf("Field %s has %d rows, expected %d", path, arr.Rows(), a.nvars))
		}
		a.fields[path] = arr
		if _, ok := a.metadata[path]; !ok {
			a.metadata[path] = InferMetadata(path, arr)
		}
	}
	return a, nil
}

func (a *Arrays) Keys() []string { return sortedKeys(a.fields) }

func (a *Arrays) Get(path string) (Array, error) {
	a.join()
	arr, ok := a.fields[path]
	if !ok {
		return nil, pfx.Err(fmt.Errorf("%w: %s", ErrNoSuchField, path))
	}
	return arr, nil
}

func (a *Arrays) GetRows(path string, start, end int) (Array, error) {
	arr, err := a.Get(path)
	if err != nil {
		return nil, err
	}
	if start < 0 || end > arr.Rows() || start > end {
		return nil, pfx.Err(fmt.Errorf("Rows [%d, %d) out of range for %d variants", start, end, arr.Rows()))
	}
	return arr.Slice(start, end), nil
}

// Has reports whether path holds an array.
func (a *Arrays) Has(path string) bool {
	_, ok := a.fields[path]
	return ok
}

func (a *Arrays) Set(path string, arr Array, meta *FieldMetadata) error {
	a.join()
	if len(a.fields) > 0 && arr.Rows() != a.nvars {
		return pfx.Err(fmt.Errorf("Field %s has %d rows, store has %d", path, arr.Rows(), a.nvars))
	}
	if IsCallPath(path) && len(a.samples) > 0 {
		if shape := arr.Shape(); len(shape) < 2 || shape[1] != len(a.samples) {
			return pfx.Err(fmt.Errorf("Field %s has shape %v, store has %d samples", path, shape, len(a.samples)))
		}
	}
	if len(a.fields) == 0 {
		a.nvars = arr.Rows()
	}
	a.fields[path] = arr
	if meta != nil {
		a.metadata[path] = *meta
	} else if _, ok := a.metadata[path]; !ok {
		a.metadata[path] = InferMetadata(path, arr)
	}
	if path == GTField && a.ploidy == 0 {
		if shape := arr.Shape(); len(shape) == 3 {
			a.ploidy = shape[2]
		}
	}
	return nil
}

func (a *Arrays) Delete(path string) error {
	a.join()
	if _, ok := a.fields[path]; !ok {
		return pfx.Err(fmt.Errorf("%w: %s", ErrNoSuchField, path))
	}
	delete(a.fields, path)
	delete(a.metadata, path)
	if len(a.fields) == 0 {
		a.nvars = 0
	}
	return nil
}

func (a *Arrays) Metadata() Metadata { return a.metadata }

func (a *Arrays) Samples() []string { return a.samples }

// SetSamples fixes the sample ordering. It can only be changed while the
// store holds no per-sample fields.
func (a *Arrays) SetSamples(samples []string) error {
	for path := range a.fields {
		if IsCallPath(path) {
			if err := checkSamples(a.samples, samples); err != nil {
				return pfx.Err(err)
			}
			break
		}
	}
	a.samples = append([]string(nil), samples...)
	return nil
}

func (a *Arrays) Ploidy() int { return a.ploidy }

func (a *Arrays) SetPloidy(p int) { a.ploidy = p }

func (a *Arrays) NumVariations() int { return a.nvars }

func (a *Arrays) PutVars(r RecordReader) error {
	return putVars(a, r, a.ChunkSize)
}

func (a *Arrays) PutChunks(src ChunkSource) error {
	return putChunks(a, src)
}

// AppendChunk concatenates c under the current contents. The first chunk
// fixes the field set, the samples and the ploidy; later chunks must agree.
// On error the store is left unchanged. Appended rows are gathered and
// joined on the next read, so a run of appends costs linear time.
func (a *Arrays) AppendChunk(c *Arrays) error {
	if c == nil || c.NumVariations() == 0 {
		return nil
	}

	if len(a.fields) == 0 {
		for path, arr := range c.fields {
			a.fields[path] = arr.Clone()
		}
		a.nvars = c.nvars
		if len(a.samples) == 0 {
			a.samples = append([]string(nil), c.samples...)
		}
		if a.ploidy == 0 {
			a.ploidy = c.ploidy
		}
		a.metadata.Merge(c.metadata)
		return nil
	}

	if err := checkChunkFields(a.Keys(), c); err != nil {
		return pfx.Err(err)
	}
	if err := checkSamples(a.samples, c.samples); err != nil {
		return pfx.Err(err)
	}

	for path, arr := range a.fields {
		if err := compatible(arr, c.fields[path]); err != nil {
			return pfx.Err(fmt.Errorf("%s: %w", path, err))
		}
	}
	if a.tails == nil {
		a.tails = make(map[string][]Array, len(a.fields))
	}
	for path := range a.fields {
		a.tails[path] = append(a.tails[path], c.fields[path].Clone())
	}
	a.nvars += c.nvars
	a.metadata.Merge(c.metadata)
	return nil
}

// join concatenates the appended rows of every field onto it, once.
func (a *Arrays) join() {
	if len(a.tails) == 0 {
		return
	}
	for path, arr := range a.fields {
		joined, err := ConcatAll(append([]Array{arr}, a.tails[path]...))
		if err != nil {
			// AppendChunk checked that every tail fits its field.
			panic(fmt.Sprintf("variation: joining %s: %v", path, err))
		}
		a.fields[path] = joined
	}
	a.tails = nil
}

func (a *Arrays) IterateChunks(optFns ...func(o *ChunkOptions)) *ChunkReader {
	return newChunkReader(a, a.ChunkSize, optFns...)
}

func (a *Arrays) IterateChunkPairs(optFns ...func(o *ChunkPairOptions)) *ChunkPairReader {
	return newChunkPairReader(a, a.ChunkSize, optFns...)
}

func (a *Arrays) AlleleCount() (*Matrix[int32], error) {
	return alleleCount(a, a.ChunkSize)
}

func (a *Arrays) Close() error { return nil }

// Project returns a chunk holding only the listed fields. Paths that are not
// present are skipped.
func (a *Arrays) Project(paths []string) *Arrays {
	a.join()
	out := NewArrays()
	out.samples = a.samples
	out.ploidy = a.ploidy
	out.ChunkSize = a.ChunkSize
	for _, p := range paths {
		if arr, ok := a.fields[p]; ok {
			out.fields[p] = arr
			if m, ok := a.metadata[p]; ok {
				out.metadata[p] = m
			}
		}
	}
	if len(out.fields) > 0 {
		out.nvars = a.nvars
	}
	return out
}

// TakeRows returns a new chunk with only the given rows of every field.
func (a *Arrays) TakeRows(rows []int) *Arrays {
	a.join()
	out := a.emptyCopy()
	for p, arr := range a.fields {
		out.fields[p] = arr.TakeRows(rows)
	}
	out.nvars = len(rows)
	return out
}

// TakeSamples returns a new chunk restricted to the given sample positions.
// Only per-sample fields are sliced; the rest are shared.
func (a *Arrays) TakeSamples(idx []int) (*Arrays, error) {
	a.join()
	out := a.emptyCopy()
	out.samples = make([]string, 0, len(idx))
	for _, i := range idx {
		out.samples = append(out.samples, a.samples[i])
	}
	for p, arr := range a.fields {
		if !IsCallPath(p) {
			out.fields[p] = arr
			continue
		}
		taken, err := arr.TakeAxis1(idx)
		if err != nil {
			return nil, pfx.Err(fmt.Errorf("%s: %w", p, err))
		}
		out.fields[p] = taken
	}
	out.nvars = a.nvars
	return out, nil
}

func (a *Arrays) emptyCopy() *Arrays {
	out := NewArrays()
	out.samples = a.samples
	out.ploidy = a.ploidy
	out.ChunkSize = a.ChunkSize
	out.metadata = a.metadata.Clone()
	return out
}

// Copy returns a chunk that shares the arrays of a under its own field map,
// so fields can be set or deleted without touching a.
func (a *Arrays) Copy() *Arrays {
	a.join()
	out := a.emptyCopy()
	for p, arr := range a.fields {
		out.fields[p] = arr
	}
	out.nvars = a.nvars
	return out
}
