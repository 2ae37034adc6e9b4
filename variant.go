package variation

// Record is one parsed variant line. Absent values are carried as typed
// sentinels; only Qual and Filters use nil-ness to signal "unknown".
type Record struct {
	Chrom string
	Pos   int32
	ID    string
	Ref   string
	Alt   []string
	Qual  float64 // MissingFloat when absent

	// Filters is nil when the FILTER column was "." and empty (non-nil) when
	// the record PASSed.
	Filters []string

	// Info values are one of []int32, []float64, []string or bool (flags).
	Info map[string]interface{}

	// Calls holds the per-sample FORMAT sub-fields in FORMAT order.
	Calls []CallField
}

// CallField holds one FORMAT sub-field for every sample. Values is one of
// [][]int32 (GT alleles and Integer fields), [][]float64 or [][]string; a nil
// inner slice means the sample had no value.
type CallField struct {
	Name   string
	Values interface{}
}

// FieldLens carries the running maxima collected while scanning records,
// used to size variable-cardinality fields.
type FieldLens struct {
	Alt    int
	Filter int
	Info   map[string]int
	Format map[string]int
}

func NewFieldLens() FieldLens {
	return FieldLens{Info: map[string]int{}, Format: map[string]int{}}
}

func (l FieldLens) Clone() FieldLens {
	out := FieldLens{Alt: l.Alt, Filter: l.Filter, Info: map[string]int{}, Format: map[string]int{}}
	for k, v := range l.Info {
		out.Info[k] = v
	}
	for k, v := range l.Format {
		out.Format[k] = v
	}
	return out
}

// RecordReader is a lazy, forward-only source of records, such as the VCF
// parser. Read returns nil once the stream is exhausted or has failed; Error
// then reports the failure, if any.
type RecordReader interface {
	Read() *Record
	Error() error

	Samples() []string
	Ploidy() int
	// Metadata describes every declared field path, including paths the
	// reader was told not to produce.
	Metadata() Metadata
	// Fields lists the paths the reader produces values for.
	Fields() []string
	// MaxFieldLens reports the maxima seen so far.
	MaxFieldLens() FieldLens
}

// Layout is everything BuildChunk needs besides the records themselves.
type Layout struct {
	Metadata Metadata
	// Fields gets one array each. Paths missing from Metadata are skipped.
	Fields  []string
	Samples []string
	Ploidy  int
	Lens    FieldLens
}

// LayoutOf snapshots the current layout of a reader.
func LayoutOf(r RecordReader) Layout {
	return Layout{
		Metadata: r.Metadata(),
		Fields:   r.Fields(),
		Samples:  r.Samples(),
		Ploidy:   r.Ploidy(),
		Lens:     r.MaxFieldLens(),
	}
}
