package variation

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/carbocation/pfx"
)

// ErrReadOnly is returned by mutating operations on a store opened with
// ModeRead.
var ErrReadOnly = errors.New("store is open read-only")

// OpenMode says what to do with an existing file when opening a Paged store
type OpenMode uint32

const (
	// ModeAppend opens an existing file, or creates one, and keeps its
	// contents.
	ModeAppend OpenMode = iota
	// ModeWrite discards any existing file.
	ModeWrite
	// ModeRead requires an existing file and rejects every mutation.
	ModeRead
)

func (m OpenMode) String() string {
	switch m {
	case ModeAppend:
		return "append"
	case ModeWrite:
		return "write"
	case ModeRead:
		return "read"

	default:
		return "Illegal selection"
	}
}

// prepareOpen applies mode to the file at path before it is opened.
func prepareOpen(path string, mode OpenMode) error {
	path = strings.TrimPrefix(path, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	switch mode {
	case ModeWrite:
		for _, suffix := range []string{"", "-journal", "-wal", "-shm"} {
			if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
				return pfx.Err(err)
			}
		}
	case ModeRead:
		if _, err := os.Stat(path); err != nil {
			return pfx.Err(err)
		}
	}
	return nil
}

// Paged is the disk-backed Store. Every field is kept as a sequence of pages
// in a PageFile; only the header lives in memory. Appends and field changes
// are committed one transaction at a time, so a failed append leaves the
// file as it was.
type Paged struct {
	pf       PageFile
	h        *PagedHeader
	readOnly bool

	// ChunkSize is the batch size used by PutVars and the iterators when
	// the caller does not pass one. Set pages are split at this size too.
	ChunkSize int
}

var _ Store = (*Paged)(nil)

// PagedOptions configures a Paged store. Compression only applies to a new
// file; an existing file keeps the compression it was created with.
type PagedOptions struct {
	Compression Compression
	ChunkSize   int
	Mode        OpenMode
}

func DefaultPagedOptions() PagedOptions {
	return PagedOptions{Compression: CompressionZStandard, ChunkSize: DefaultChunkSize}
}

func WithCompression(c Compression) func(o *PagedOptions) {
	return func(o *PagedOptions) { o.Compression = c }
}

func WithPageChunkSize(n int) func(o *PagedOptions) {
	return func(o *PagedOptions) { o.ChunkSize = n }
}

func WithMode(m OpenMode) func(o *PagedOptions) {
	return func(o *PagedOptions) { o.Mode = m }
}

func pagedOptions(optFns []func(o *PagedOptions)) PagedOptions {
	opts := DefaultPagedOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return opts
}

// NewPaged wraps an open PageFile.
func NewPaged(pf PageFile, optFns ...func(o *PagedOptions)) (*Paged, error) {
	opts := pagedOptions(optFns)

	h, err := pf.ReadHeader()
	if err != nil {
		return nil, pfx.Err(err)
	}
	if h == nil {
		h = newPagedHeader(opts.Compression)
	}
	return &Paged{pf: pf, h: h, ChunkSize: opts.ChunkSize, readOnly: opts.Mode == ModeRead}, nil
}

// Compression reports how pages of this store are compressed.
func (p *Paged) Compression() Compression { return p.h.Compression }

func (p *Paged) Keys() []string { return sortedKeys(p.h.Fields) }

func (p *Paged) Get(path string) (Array, error) {
	return p.GetRows(path, 0, p.h.NumVariations)
}

func (p *Paged) GetRows(path string, start, end int) (Array, error) {
	f, ok := p.h.Fields[path]
	if !ok {
		return nil, pfx.Err(fmt.Errorf("%w: %s", ErrNoSuchField, path))
	}
	if start < 0 || end > p.h.NumVariations || start > end {
		return nil, pfx.Err(fmt.Errorf("Rows [%d, %d) out of range for %d variants", start, end, p.h.NumVariations))
	}

	if start == end {
		return NewEmpty(f.Type, f.Trailing), nil
	}

	pages, err := p.pf.ReadPages(path, start, end)
	if err != nil {
		return nil, pfx.Err(err)
	}
	parts := make([]Array, 0, len(pages)+1)
	parts = append(parts, NewEmpty(f.Type, f.Trailing))
	for _, pg := range pages {
		arr, err := decodePage(pg.Data, p.h.Compression)
		if err != nil {
			return nil, pfx.Err(fmt.Errorf("%s rows %d+%d: %w", path, pg.RowStart, pg.RowCount, err))
		}
		lo, hi := 0, pg.RowCount
		if start > pg.RowStart {
			lo = start - pg.RowStart
		}
		if end < pg.RowStart+pg.RowCount {
			hi = end - pg.RowStart
		}
		if lo != 0 || hi != pg.RowCount {
			arr = arr.Slice(lo, hi)
		}
		parts = append(parts, arr)
	}
	out, err := ConcatAll(parts)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}
	if out.Rows() != end-start {
		return nil, pfx.Err(fmt.Errorf("%s: read %d rows, expected %d", path, out.Rows(), end-start))
	}
	return out, nil
}

// pagesOf encodes rows of arr as pages of at most ChunkSize rows, numbered
// from rowStart.
func (p *Paged) pagesOf(path string, arr Array, rowStart int) ([]Page, error) {
	var pages []Page
	n := arr.Rows()
	for lo := 0; lo < n; lo += p.ChunkSize {
		hi := lo + p.ChunkSize
		if hi > n {
			hi = n
		}
		part := arr
		if lo != 0 || hi != n {
			part = arr.Slice(lo, hi)
		}
		data, err := encodePage(part, p.h.Compression)
		if err != nil {
			return nil, pfx.Err(err)
		}
		pages = append(pages, Page{Path: path, RowStart: rowStart + lo, RowCount: hi - lo, Data: data})
	}
	return pages, nil
}

func (p *Paged) Set(path string, arr Array, meta *FieldMetadata) error {
	if p.readOnly {
		return pfx.Err(ErrReadOnly)
	}
	if len(p.h.Fields) > 0 && arr.Rows() != p.h.NumVariations {
		return pfx.Err(fmt.Errorf("Field %s has %d rows, store has %d", path, arr.Rows(), p.h.NumVariations))
	}
	if IsCallPath(path) && len(p.h.Samples) > 0 {
		if shape := arr.Shape(); len(shape) < 2 || shape[1] != len(p.h.Samples) {
			return pfx.Err(fmt.Errorf("Field %s has shape %v, store has %d samples", path, shape, len(p.h.Samples)))
		}
	}

	pages, err := p.pagesOf(path, arr, 0)
	if err != nil {
		return pfx.Err(err)
	}

	h := p.h.clone()
	if len(h.Fields) == 0 {
		h.NumVariations = arr.Rows()
	}
	h.Fields[path] = &PagedField{Type: arr.Type(), Trailing: arr.Shape()[1:]}
	if meta != nil {
		h.Metadata[path] = *meta
	} else if _, ok := h.Metadata[path]; !ok {
		h.Metadata[path] = InferMetadata(path, arr)
	}
	if path == GTField && h.Ploidy == 0 {
		if shape := arr.Shape(); len(shape) == 3 {
			h.Ploidy = shape[2]
		}
	}

	if err := p.pf.Commit(h, pages, []string{path}); err != nil {
		return pfx.Err(err)
	}
	p.h = h
	return nil
}

func (p *Paged) Delete(path string) error {
	if p.readOnly {
		return pfx.Err(ErrReadOnly)
	}
	if _, ok := p.h.Fields[path]; !ok {
		return pfx.Err(fmt.Errorf("%w: %s", ErrNoSuchField, path))
	}
	h := p.h.clone()
	delete(h.Fields, path)
	delete(h.Metadata, path)
	if len(h.Fields) == 0 {
		h.NumVariations = 0
	}
	if err := p.pf.Commit(h, nil, []string{path}); err != nil {
		return pfx.Err(err)
	}
	p.h = h
	return nil
}

func (p *Paged) Metadata() Metadata { return p.h.Metadata }

func (p *Paged) Samples() []string { return p.h.Samples }

// SetSamples fixes the sample ordering of an empty store.
func (p *Paged) SetSamples(samples []string) error {
	if p.readOnly {
		return pfx.Err(ErrReadOnly)
	}
	if len(p.h.Fields) > 0 {
		if err := checkSamples(p.h.Samples, samples); err != nil {
			return pfx.Err(err)
		}
	}
	h := p.h.clone()
	h.Samples = append([]string(nil), samples...)
	if err := p.pf.Commit(h, nil, nil); err != nil {
		return pfx.Err(err)
	}
	p.h = h
	return nil
}

func (p *Paged) Ploidy() int { return p.h.Ploidy }

func (p *Paged) NumVariations() int { return p.h.NumVariations }

func (p *Paged) PutVars(r RecordReader) error {
	return putVars(p, r, p.ChunkSize)
}

func (p *Paged) PutChunks(src ChunkSource) error {
	return putChunks(p, src)
}

func (p *Paged) AppendChunk(c *Arrays) error {
	if p.readOnly {
		return pfx.Err(ErrReadOnly)
	}
	if c == nil || c.NumVariations() == 0 {
		return nil
	}

	h := p.h.clone()
	if len(h.Fields) == 0 {
		if len(h.Samples) == 0 {
			h.Samples = append([]string(nil), c.Samples()...)
		}
		if h.Ploidy == 0 {
			h.Ploidy = c.Ploidy()
		}
		for _, path := range c.Keys() {
			arr, _ := c.Get(path)
			h.Fields[path] = &PagedField{Type: arr.Type(), Trailing: arr.Shape()[1:]}
		}
	} else {
		if err := checkChunkFields(p.Keys(), c); err != nil {
			return pfx.Err(err)
		}
		if err := checkSamples(h.Samples, c.Samples()); err != nil {
			return pfx.Err(err)
		}
	}

	var pages []Page
	for _, path := range c.Keys() {
		arr, _ := c.Get(path)
		f := h.Fields[path]
		if arr.Type() != f.Type {
			return pfx.Err(fmt.Errorf("%s: cannot append a %s array to a %s field", path, arr.Type(), f.Type))
		}
		shape := arr.Shape()
		if len(shape)-1 != len(f.Trailing) {
			return pfx.Err(fmt.Errorf("%s: cannot append shape %v to trailing shape %v", path, shape, f.Trailing))
		}
		for d, n := range shape[1:] {
			if n > f.Trailing[d] {
				f.Trailing[d] = n
			}
		}
		data, err := encodePage(arr, h.Compression)
		if err != nil {
			return pfx.Err(err)
		}
		pages = append(pages, Page{Path: path, RowStart: h.NumVariations, RowCount: arr.Rows(), Data: data})
	}
	h.NumVariations += c.NumVariations()
	h.Metadata.Merge(c.Metadata())

	if err := p.pf.Commit(h, pages, nil); err != nil {
		return pfx.Err(err)
	}
	p.h = h
	return nil
}

func (p *Paged) IterateChunks(optFns ...func(o *ChunkOptions)) *ChunkReader {
	return newChunkReader(p, p.ChunkSize, optFns...)
}

func (p *Paged) IterateChunkPairs(optFns ...func(o *ChunkPairOptions)) *ChunkPairReader {
	return newChunkPairReader(p, p.ChunkSize, optFns...)
}

func (p *Paged) AlleleCount() (*Matrix[int32], error) {
	return alleleCount(p, p.ChunkSize)
}

func (p *Paged) Close() error {
	return p.pf.Close()
}
