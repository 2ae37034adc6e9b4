package variation

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/carbocation/pfx"
)

// PageFile is the durable half of a Paged store: a header plus, per field
// path, a sequence of encoded pages each covering a contiguous run of rows.
// Implementations exist for SQLite and for bbolt.
type PageFile interface {
	// ReadHeader returns nil and no error for a file that was never written.
	ReadHeader() (*PagedHeader, error)
	// ReadPages returns, in row order, the pages of path that overlap rows
	// [start, end).
	ReadPages(path string, start, end int) ([]Page, error)
	// Commit atomically drops every page of the paths in dropped, adds pages
	// and replaces the header.
	Commit(h *PagedHeader, pages []Page, dropped []string) error
	Close() error
}

// Page is one encoded, possibly compressed, run of rows of a single field.
type Page struct {
	Path     string `db:"path"`
	RowStart int    `db:"row_start"`
	RowCount int    `db:"row_count"`
	Data     []byte `db:"data"`
}

// PagedField records the element type of a stored field and the largest
// trailing shape any of its pages has had. Narrower pages are widened on
// read.
type PagedField struct {
	Type     ValueType `json:"type"`
	Trailing []int     `json:"trailing"`
}

// PagedHeader is everything about a Paged store except its pages.
type PagedHeader struct {
	Samples       []string
	Ploidy        int
	NumVariations int
	Compression   Compression
	CreatedAt     time.Time
	Fields        map[string]*PagedField
	Metadata      Metadata
}

func newPagedHeader(c Compression) *PagedHeader {
	return &PagedHeader{
		Compression: c,
		CreatedAt:   time.Now(),
		Fields:      map[string]*PagedField{},
		Metadata:    Metadata{},
	}
}

func (h *PagedHeader) clone() *PagedHeader {
	out := *h
	out.Samples = append([]string(nil), h.Samples...)
	out.Metadata = h.Metadata.Clone()
	out.Fields = make(map[string]*PagedField, len(h.Fields))
	for k, f := range h.Fields {
		out.Fields[k] = &PagedField{Type: f.Type, Trailing: append([]int(nil), f.Trailing...)}
	}
	return &out
}

// encodePage serializes an array as
// [type byte][ndim uvarint][dims uvarint...][values], little endian, with
// strings prefixed by their uvarint length, then compresses the result.
func encodePage(a Array, c Compression) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(a.Type()))
	shape := a.Shape()
	buf.Write(binary.AppendUvarint(nil, uint64(len(shape))))
	for _, d := range shape {
		buf.Write(binary.AppendUvarint(nil, uint64(d)))
	}

	switch m := a.(type) {
	case *Matrix[int32]:
		b := make([]byte, 4*len(m.data))
		for i, v := range m.data {
			binary.LittleEndian.PutUint32(b[4*i:], uint32(v))
		}
		buf.Write(b)
	case *Matrix[float64]:
		b := make([]byte, 8*len(m.data))
		for i, v := range m.data {
			binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
		}
		buf.Write(b)
	case *Matrix[bool]:
		for _, v := range m.data {
			if v {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		}
	case *Matrix[string]:
		for _, v := range m.data {
			buf.Write(binary.AppendUvarint(nil, uint64(len(v))))
			buf.WriteString(v)
		}
	default:
		return nil, pfx.Err(fmt.Errorf("Unsupported array %T", a))
	}

	return compressBlock(buf.Bytes(), c)
}

func decodePage(block []byte, c Compression) (Array, error) {
	raw, err := decompressBlock(block, c)
	if err != nil {
		return nil, pfx.Err(err)
	}
	r := bytes.NewReader(raw)
	t, err := r.ReadByte()
	if err != nil {
		return nil, pfx.Err(err)
	}
	ndim, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, pfx.Err(err)
	}
	shape := make([]int, ndim)
	for i := range shape {
		d, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, pfx.Err(err)
		}
		shape[i] = int(d)
	}
	n := product(shape)
	rest := raw[len(raw)-r.Len():]

	switch ValueType(t) {
	case TypeInteger:
		if len(rest) < 4*n {
			return nil, pfx.Err(fmt.Errorf("Integer page holds %d bytes, expected %d", len(rest), 4*n))
		}
		data := make([]int32, n)
		for i := range data {
			data[i] = int32(binary.LittleEndian.Uint32(rest[4*i:]))
		}
		return FromSlice(data, shape...), nil
	case TypeFloat:
		if len(rest) < 8*n {
			return nil, pfx.Err(fmt.Errorf("Float page holds %d bytes, expected %d", len(rest), 8*n))
		}
		data := make([]float64, n)
		for i := range data {
			data[i] = math.Float64frombits(binary.LittleEndian.Uint64(rest[8*i:]))
		}
		return FromSlice(data, shape...), nil
	case TypeFlag:
		if len(rest) < n {
			return nil, pfx.Err(fmt.Errorf("Flag page holds %d bytes, expected %d", len(rest), n))
		}
		data := make([]bool, n)
		for i := range data {
			data[i] = rest[i] != 0
		}
		return FromSlice(data, shape...), nil
	case TypeString:
		data := make([]string, n)
		for i := range data {
			l, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, pfx.Err(err)
			}
			s := make([]byte, l)
			if _, err := io.ReadFull(r, s); err != nil {
				return nil, pfx.Err(err)
			}
			data[i] = string(s)
		}
		return FromSlice(data, shape...), nil
	}

	return nil, pfx.Err(fmt.Errorf("Unsupported page type %d", t))
}
