package variation

import (
	"fmt"
	"strings"

	"github.com/carbocation/pfx"
)

// BuildChunk lays a batch of records out as fixed-shape arrays. Every path
// in l.Fields gets an array, whether or not any record in the batch carries
// it, so that all chunks from one reader share a field set. A nil l.Fields
// means every declared path plus the fixed columns.
//
// Variable-cardinality fields are as wide as the larger of l.Lens and the
// widest value in the batch. Absent values are stored as missing.
func BuildChunk(records []*Record, l Layout) (*Arrays, error) {
	ns := len(l.Samples)

	known := l.Metadata.Clone()
	known.Merge(variationsMetadata())
	known.Merge(DefaultFilterMetadata())

	paths := l.Fields
	if paths == nil {
		paths = sortedKeys(known)
	}

	fields := map[string]Array{}
	chunkMeta := l.Metadata.Clone()
	for _, path := range paths {
		m, ok := known[path]
		if !ok {
			continue
		}
		var (
			arr Array
			err error
		)
		switch m.Kind {
		case KindVariations:
			arr = buildVariations(records, path, l.Lens.Alt)
		case KindFilter:
			arr = buildFilter(records, FieldName(path))
		case KindInfo:
			arr, err = buildInfo(records, FieldName(path), m, l.Lens.Info[FieldName(path)])
		case KindFormat:
			if path == GTField {
				arr, err = buildGT(records, ns, l.Ploidy)
			} else {
				arr, err = buildCall(records, FieldName(path), m, ns, l.Lens.Format[FieldName(path)])
			}
		default:
			continue
		}
		if err != nil {
			return nil, pfx.Err(err)
		}
		if arr == nil {
			continue
		}
		fields[path] = arr
		chunkMeta[path] = m
	}

	return NewChunk(fields, chunkMeta, l.Samples, l.Ploidy)
}

// DefaultFilterMetadata describes the two filter flags every store carries.
func DefaultFilterMetadata() Metadata {
	return Metadata{
		FilterPassField:      {Kind: KindFilter, Type: TypeFlag, Number: 0, Description: "All filters passed"},
		FilterNoFiltersField: {Kind: KindFilter, Type: TypeFlag, Number: 0, Description: "Filters not applied"},
	}
}

func buildVariations(records []*Record, path string, altHint int) Array {
	n := len(records)
	switch path {
	case ChromField, IDField, RefField:
		out := NewMatrix([]int{n}, MissingString)
		for r, rec := range records {
			switch path {
			case ChromField:
				out.Set(rec.Chrom, r)
			case IDField:
				out.Set(rec.ID, r)
			default:
				out.Set(rec.Ref, r)
			}
		}
		return out
	case PosField:
		out := NewMatrix([]int{n}, MissingInt)
		for r, rec := range records {
			out.Set(rec.Pos, r)
		}
		return out
	case QualField:
		out := NewMatrix([]int{n}, MissingFloat())
		for r, rec := range records {
			out.Set(rec.Qual, r)
		}
		return out
	case AltField:
		width := altHint
		for _, rec := range records {
			if len(rec.Alt) > width {
				width = len(rec.Alt)
			}
		}
		if width < 1 {
			width = 1
		}
		out := NewMatrix([]int{n, width}, MissingString)
		for r, rec := range records {
			copy(out.Row(r), rec.Alt)
		}
		return out
	}
	return nil
}

// buildFilter marks the records that carry the named filter. PASS is set for
// records that passed and no_filters for records whose FILTER column was ".".
func buildFilter(records []*Record, name string) *Matrix[bool] {
	out := NewMatrix([]int{len(records)}, false)
	for r, rec := range records {
		switch {
		case name == "no_filters":
			out.Set(rec.Filters == nil, r)
		case name == "PASS":
			out.Set(rec.Filters != nil && len(rec.Filters) == 0, r)
		default:
			for _, f := range rec.Filters {
				if f == name {
					out.Set(true, r)
					break
				}
			}
		}
	}
	return out
}

func fieldWidth(m FieldMetadata, seen int) int {
	if !m.Number.IsVariable() {
		return int(m.Number)
	}
	if seen < 1 {
		return 1
	}
	return seen
}

func buildInfo(records []*Record, key string, m FieldMetadata, lensHint int) (Array, error) {
	n := len(records)

	if m.Type == TypeFlag || m.Number == 0 {
		out := NewMatrix([]int{n}, false)
		for r, rec := range records {
			if v, ok := rec.Info[key]; ok {
				b, isBool := v.(bool)
				out.Set(!isBool || b, r)
			}
		}
		return out, nil
	}

	seen := lensHint
	for _, rec := range records {
		if v, ok := rec.Info[key]; ok {
			if l := valueLen(v); l > seen {
				seen = l
			}
		}
	}
	width := fieldWidth(m, seen)
	scalar := m.Number == 1

	shape := []int{n, width}
	if scalar {
		shape = []int{n}
	}

	switch m.Type {
	case TypeInteger:
		out := NewMatrix(shape, MissingInt)
		for r, rec := range records {
			if vs, ok := rec.Info[key].([]int32); ok {
				copy(out.Data()[r*width:(r+1)*width], vs)
			} else if rec.Info[key] != nil {
				return nil, pfx.Err(fmt.Errorf("INFO %s holds %T, expected Integer", key, rec.Info[key]))
			}
		}
		return out, nil
	case TypeFloat:
		out := NewMatrix(shape, MissingFloat())
		for r, rec := range records {
			if vs, ok := rec.Info[key].([]float64); ok {
				copy(out.Data()[r*width:(r+1)*width], vs)
			} else if rec.Info[key] != nil {
				return nil, pfx.Err(fmt.Errorf("INFO %s holds %T, expected Float", key, rec.Info[key]))
			}
		}
		return out, nil
	}

	out := NewMatrix(shape, MissingString)
	for r, rec := range records {
		if vs, ok := rec.Info[key].([]string); ok {
			copy(out.Data()[r*width:(r+1)*width], vs)
		} else if rec.Info[key] != nil {
			return nil, pfx.Err(fmt.Errorf("INFO %s holds %T, expected String", key, rec.Info[key]))
		}
	}
	return out, nil
}

func valueLen(v interface{}) int {
	switch t := v.(type) {
	case []int32:
		return len(t)
	case []float64:
		return len(t)
	case []string:
		return len(t)
	}
	return 1
}

func findCall(rec *Record, name string) interface{} {
	for _, c := range rec.Calls {
		if c.Name == name {
			return c.Values
		}
	}
	return nil
}

func buildGT(records []*Record, ns, ploidy int) (*Matrix[int32], error) {
	if ploidy < 1 {
		ploidy = 1
	}
	out := NewMatrix([]int{len(records), ns, ploidy}, MissingGT)
	for r, rec := range records {
		v := findCall(rec, "GT")
		if v == nil {
			continue
		}
		calls, ok := v.([][]int32)
		if !ok {
			return nil, pfx.Err(fmt.Errorf("GT holds %T, expected allele lists", v))
		}
		if len(calls) != ns {
			return nil, pfx.Err(fmt.Errorf("Record at %s:%d has %d genotypes for %d samples", rec.Chrom, rec.Pos, len(calls), ns))
		}
		for s, alleles := range calls {
			if len(alleles) > ploidy {
				return nil, pfx.Err(fmt.Errorf("Genotype with %d alleles at %s:%d exceeds ploidy %d", len(alleles), rec.Chrom, rec.Pos, ploidy))
			}
			base := (r*ns + s) * ploidy
			copy(out.Data()[base:base+ploidy], alleles)
		}
	}
	return out, nil
}

func buildCall(records []*Record, name string, m FieldMetadata, ns, lensHint int) (Array, error) {
	n := len(records)
	seen := lensHint
	for _, rec := range records {
		if l := maxInnerLen(findCall(rec, name)); l > seen {
			seen = l
		}
	}
	width := fieldWidth(m, seen)
	if m.Type == TypeFlag {
		width = 1
	}
	shape := []int{n, ns, width}
	if width == 1 && m.Number == 1 {
		shape = []int{n, ns}
	}

	switch m.Type {
	case TypeInteger:
		out := NewMatrix(shape, MissingInt)
		err := fillCalls(records, name, ns, width, out.Data())
		return out, err
	case TypeFloat:
		out := NewMatrix(shape, MissingFloat())
		err := fillCalls(records, name, ns, width, out.Data())
		return out, err
	}
	out := NewMatrix(shape, MissingString)
	err := fillCalls(records, name, ns, width, out.Data())
	return out, err
}

func fillCalls[T Scalar](records []*Record, name string, ns, width int, data []T) error {
	for r, rec := range records {
		v := findCall(rec, name)
		if v == nil {
			continue
		}
		calls, ok := v.([][]T)
		if !ok {
			return pfx.Err(fmt.Errorf("FORMAT %s holds %T at %s:%d", name, v, rec.Chrom, rec.Pos))
		}
		for s, vs := range calls {
			if s >= ns {
				break
			}
			base := (r*ns + s) * width
			if len(vs) > width {
				vs = vs[:width]
			}
			copy(data[base:base+width], vs)
		}
	}
	return nil
}

func maxInnerLen(v interface{}) int {
	m := 0
	switch t := v.(type) {
	case [][]int32:
		for _, vs := range t {
			if len(vs) > m {
				m = len(vs)
			}
		}
	case [][]float64:
		for _, vs := range t {
			if len(vs) > m {
				m = len(vs)
			}
		}
	case [][]string:
		for _, vs := range t {
			if len(vs) > m {
				m = len(vs)
			}
		}
	}
	return m
}

// RecordsFromChunk rebuilds records from a chunk. It is the inverse of
// BuildChunk up to missing-value padding, and is used to export stores.
func RecordsFromChunk(c *Arrays) ([]*Record, error) {
	n := c.NumVariations()
	out := make([]*Record, n)

	get := func(p string) Array {
		arr, _ := c.Get(p)
		return arr
	}
	chrom, _ := get(ChromField).(*Matrix[string])
	pos, _ := get(PosField).(*Matrix[int32])
	id, _ := get(IDField).(*Matrix[string])
	ref, _ := get(RefField).(*Matrix[string])
	alt, _ := get(AltField).(*Matrix[string])
	qual, _ := get(QualField).(*Matrix[float64])
	if chrom == nil || pos == nil {
		return nil, pfx.Err(fmt.Errorf("Chunk has no %s or %s", ChromField, PosField))
	}

	for r := 0; r < n; r++ {
		rec := &Record{Chrom: chrom.At(r), Pos: pos.At(r), Qual: MissingFloat(), Info: map[string]interface{}{}}
		if id != nil {
			rec.ID = id.At(r)
		}
		if ref != nil {
			rec.Ref = ref.At(r)
		}
		if qual != nil {
			rec.Qual = qual.At(r)
		}
		if alt != nil {
			for _, a := range alt.Row(r) {
				if a != MissingString {
					rec.Alt = append(rec.Alt, a)
				}
			}
		}
		out[r] = rec
	}

	for _, path := range c.Keys() {
		name := FieldName(path)
		arr := get(path)
		switch {
		case strings.HasPrefix(path, FilterPrefix):
			flags, err := AsFlag(arr)
			if err != nil {
				return nil, pfx.Err(err)
			}
			for r, rec := range out {
				if !flags.At(r) {
					continue
				}
				switch name {
				case "PASS":
					if rec.Filters == nil {
						rec.Filters = []string{}
					}
				case "no_filters":
				default:
					rec.Filters = append(rec.Filters, name)
				}
			}
		case strings.HasPrefix(path, InfoPrefix):
			for r, rec := range out {
				if v, ok := infoValue(arr, r); ok {
					rec.Info[name] = v
				}
			}
		case IsCallPath(path):
			for r, rec := range out {
				rec.Calls = append(rec.Calls, CallField{Name: name, Values: callValues(arr, r, name == "GT")})
			}
		}
	}
	return out, nil
}

func infoValue(arr Array, r int) (interface{}, bool) {
	switch m := arr.(type) {
	case *Matrix[bool]:
		if m.At(r) {
			return true, true
		}
		return nil, false
	case *Matrix[int32]:
		vs := trimMissing(m.Row(r), func(v int32) bool { return v == MissingInt })
		return vs, len(vs) > 0
	case *Matrix[float64]:
		vs := trimMissing(m.Row(r), IsMissingFloat)
		return vs, len(vs) > 0
	case *Matrix[string]:
		vs := trimMissing(m.Row(r), func(v string) bool { return v == MissingString })
		return vs, len(vs) > 0
	}
	return nil, false
}

// trimMissing copies vs without its trailing missing values.
func trimMissing[T Scalar](vs []T, missing func(T) bool) []T {
	end := len(vs)
	for end > 0 && missing(vs[end-1]) {
		end--
	}
	return append([]T(nil), vs[:end]...)
}

func callValues(arr Array, r int, keepMissing bool) interface{} {
	switch m := arr.(type) {
	case *Matrix[int32]:
		return splitCalls(m, r, func(v int32) bool { return !keepMissing && v == MissingInt })
	case *Matrix[float64]:
		return splitCalls(m, r, IsMissingFloat)
	case *Matrix[string]:
		return splitCalls(m, r, func(v string) bool { return v == MissingString })
	}
	return nil
}

func splitCalls[T Scalar](m *Matrix[T], r int, missing func(T) bool) [][]T {
	shape := m.Shape()
	ns := shape[1]
	width := 1
	if len(shape) > 2 {
		width = shape[2]
	}
	row := m.Row(r)
	out := make([][]T, ns)
	for s := 0; s < ns; s++ {
		vs := trimMissing(row[s*width:(s+1)*width], missing)
		if len(vs) > 0 {
			out[s] = vs
		}
	}
	return out
}
