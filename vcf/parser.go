// Package vcf streams variant records out of VCF text.
//
// A Parser reads the header eagerly, then yields one *variation.Record per
// data line. Before the first record is handed out it parses up to
// PreReadMaxSize bytes of records ahead, so that the widths of
// variable-length fields are known by the time a store allocates arrays.
package vcf

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/carbocation/variation"
)

// DefaultPreReadMaxSize is the look-ahead budget, in bytes of input.
const DefaultPreReadMaxSize = 10 * 1024 * 1024

// DefaultPloidy is assumed when no record carries a called genotype.
const DefaultPloidy = 2

// headerItem splits the inside of a <...> declaration on commas that are not
// inside a quoted string.
var headerItem = regexp.MustCompile(`(?:[^,"]|"(?:\\.|[^"])*")+`)

type Options struct {
	// IgnoredFields names field paths, such as /calls/GL or
	// /variations/qual, that are neither parsed nor described.
	IgnoredFields []string

	// KeptFields restricts the per-sample fields to the /calls/ paths it
	// names. It cannot be combined with IgnoredFields.
	KeptFields []string

	// MaxFieldLens seeds the widths of variable-length fields.
	MaxFieldLens variation.FieldLens

	// MaxNumVars stops the parser after that many records. Zero means no
	// limit.
	MaxNumVars int

	// PreReadMaxSize bounds the look-ahead, in bytes of input.
	PreReadMaxSize int

	Logger *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		MaxFieldLens:   variation.NewFieldLens(),
		PreReadMaxSize: DefaultPreReadMaxSize,
	}
}

func WithIgnoredFields(paths ...string) func(o *Options) {
	return func(o *Options) { o.IgnoredFields = append(o.IgnoredFields, paths...) }
}

func WithKeptFields(paths ...string) func(o *Options) {
	return func(o *Options) { o.KeptFields = append(o.KeptFields, paths...) }
}

func WithMaxFieldLens(l variation.FieldLens) func(o *Options) {
	return func(o *Options) { o.MaxFieldLens = l }
}

func WithMaxNumVars(n int) func(o *Options) {
	return func(o *Options) { o.MaxNumVars = n }
}

func WithPreReadMaxSize(n int) func(o *Options) {
	return func(o *Options) { o.PreReadMaxSize = n }
}

func WithLogger(l *slog.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// formatField is one parsed entry of a FORMAT column.
type formatField struct {
	name string
	meta variation.FieldMetadata
	skip bool
	list bool
}

// Parser is a variation.RecordReader over VCF text. It is not safe for
// concurrent use.
type Parser struct {
	lines *lineReader
	opts  Options
	log   *slog.Logger

	format  string
	header  map[string][]string
	samples []string
	ploidy  int

	meta       variation.Metadata
	fields     []string
	infoMeta   map[string]variation.FieldMetadata
	formatMeta map[string]variation.FieldMetadata
	ignored    map[string]bool
	kept       map[string]bool
	lens       variation.FieldLens

	// FORMAT fields with one value per possible genotype (Number=G).
	perGT map[string]bool

	// Memoized FORMAT column and GT string parses. Values in gtCache are
	// shared between records and must not be modified.
	fmtCache map[string][]formatField
	gtCache  map[string][]int32
	emptyGT  []int32

	cache      []*variation.Record
	cacheHead  int
	pendingErr error

	served int
	err    error
}

var _ variation.RecordReader = (*Parser)(nil)

// NewParser reads the header from r and pre-reads records up to the
// configured budget. It fails if the header cannot be understood.
func NewParser(r io.Reader, optFns ...func(o *Options)) (*Parser, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if len(opts.IgnoredFields) > 0 && len(opts.KeptFields) > 0 {
		return nil, pfx.Err(variation.ErrConflictingFieldSelection)
	}

	p := &Parser{
		lines:      newLineReader(r),
		opts:       opts,
		log:        opts.Logger,
		header:     map[string][]string{},
		meta:       variation.Metadata{},
		infoMeta:   map[string]variation.FieldMetadata{},
		formatMeta: map[string]variation.FieldMetadata{},
		perGT:      map[string]bool{},
		ignored:    map[string]bool{},
		kept:       map[string]bool{},
		lens:       opts.MaxFieldLens.Clone(),
		fmtCache:   map[string][]formatField{},
		gtCache:    map[string][]int32{},
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	for _, path := range opts.IgnoredFields {
		p.ignored[path] = true
	}
	for _, path := range opts.KeptFields {
		p.kept[path] = true
	}

	if err := p.sniffPloidy(); err != nil {
		return nil, pfx.Err(err)
	}
	p.emptyGT = make([]int32, p.ploidy)
	for i := range p.emptyGT {
		p.emptyGT[i] = variation.MissingGT
	}

	if err := p.parseHeader(); err != nil {
		return nil, pfx.Err(err)
	}
	p.preRead()

	return p, nil
}

// sniffPloidy counts the alleles of the first called genotype and then
// pushes every line it consumed back onto the stream.
func (p *Parser) sniffPloidy() error {
	var consumed []string
	defer func() {
		for i := len(consumed) - 1; i >= 0; i-- {
			p.lines.unread(consumed[i])
		}
	}()

	for {
		line, ok := p.lines.next()
		if !ok {
			break
		}
		consumed = append(consumed, line)
		if strings.HasPrefix(line, "#CHROM") && len(strings.Split(line, "\t")) <= 9 {
			// No samples, so no genotype will ever be found.
			break
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		cols := strings.Split(line, "\t")
		if len(cols) < 10 {
			continue
		}
		gtIdx := -1
		for i, name := range strings.Split(cols[8], ":") {
			if name == "GT" {
				gtIdx = i
				break
			}
		}
		if gtIdx < 0 {
			continue
		}
		for _, sample := range cols[9:] {
			if sample == "." {
				continue
			}
			subs := strings.Split(sample, ":")
			if gtIdx >= len(subs) || subs[gtIdx] == "." || subs[gtIdx] == "" {
				continue
			}
			p.ploidy = len(splitGT(subs[gtIdx]))
			return nil
		}
	}
	if err := p.lines.readErr(); err != nil {
		return err
	}

	p.ploidy = DefaultPloidy
	return nil
}

func splitGT(gt string) []string {
	if strings.Contains(gt, "|") {
		return strings.Split(gt, "|")
	}
	return strings.Split(gt, "/")
}

func (p *Parser) parseHeader() error {
	for {
		line, ok := p.lines.next()
		if !ok {
			if err := p.lines.readErr(); err != nil {
				return err
			}
			return fmt.Errorf("%w: no #CHROM line", variation.ErrMalformedHeader)
		}
		if strings.HasPrefix(line, "#CHROM") {
			cols := strings.Split(line, "\t")
			if len(cols) > 9 {
				p.samples = append([]string(nil), cols[9:]...)
			}
			break
		}
		if !strings.HasPrefix(line, "##") {
			return fmt.Errorf("%w: line %d precedes the #CHROM line: %q", variation.ErrMalformedHeader, p.lines.lineNo, line)
		}
		if err := p.parseHeaderLine(line[2:]); err != nil {
			return err
		}
	}

	for path, m := range variation.VariationsMetadata() {
		p.declare(path, m)
	}
	for path, m := range variation.DefaultFilterMetadata() {
		p.declare(path, m)
	}

	for path, m := range p.meta {
		if m.Kind == variation.KindFormat && len(p.kept) > 0 && !p.kept[path] {
			continue
		}
		p.fields = append(p.fields, path)
	}
	sort.Strings(p.fields)

	p.log.Debug("parsed VCF header",
		"format", p.format,
		"samples", len(p.samples),
		"ploidy", p.ploidy,
		"fields", len(p.fields))
	return nil
}

// declare records a field in the store metadata unless it is ignored.
func (p *Parser) declare(path string, m variation.FieldMetadata) {
	if p.ignored[path] {
		return
	}
	p.meta[path] = m
}

func (p *Parser) parseHeaderLine(body string) error {
	if len(body) >= 5 {
		switch body[:5] {
		case "FORMA", "INFO=", "FILTE":
			return p.parseDeclaration(body)
		}
	}

	key, val, ok := strings.Cut(body, "=")
	if !ok {
		return fmt.Errorf("%w: header line %d has no '=': ##%s", variation.ErrMalformedHeader, p.lines.lineNo, body)
	}
	if key == "fileformat" {
		p.format = val
		return nil
	}
	p.header[key] = append(p.header[key], val)
	return nil
}

func (p *Parser) parseDeclaration(body string) error {
	var (
		kind  variation.Kind
		inner string
	)
	switch {
	case strings.HasPrefix(body, "FORMAT=<"):
		kind, inner = variation.KindFormat, body[len("FORMAT=<"):]
	case strings.HasPrefix(body, "INFO=<"):
		kind, inner = variation.KindInfo, body[len("INFO=<"):]
	case strings.HasPrefix(body, "FILTER=<"):
		kind, inner = variation.KindFilter, body[len("FILTER=<"):]
	default:
		return fmt.Errorf("%w: unsupported VCF declaration: ##%s", variation.ErrMalformedHeader, body)
	}
	inner = strings.TrimSuffix(inner, ">")

	var id, number, typ, desc string
	for _, item := range headerItem.FindAllString(inner, -1) {
		key, val, ok := strings.Cut(item, "=")
		if !ok {
			return fmt.Errorf("%w: item %q without '=' in ##%s", variation.ErrMalformedHeader, item, body)
		}
		switch key {
		case "ID":
			id = strings.TrimSpace(val)
		case "Number":
			number = val
		case "Type":
			typ = val
		case "Description":
			desc = strings.Trim(val, `"`)
		}
	}
	if id == "" {
		return fmt.Errorf("%w: header line has no ID: ##%s", variation.ErrMalformedHeader, body)
	}

	m := variation.FieldMetadata{Kind: kind, Description: desc}
	if kind == variation.KindFilter {
		m.Type, m.Number = variation.TypeFlag, 0
		p.declare(variation.FilterPath(id), m)
		return nil
	}

	t, err := variation.ParseValueType(typ)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", variation.ErrMalformedHeader, kind, id, err)
	}
	m.Type = t
	m.Number = variation.ParseNumber(number)
	if t == variation.TypeFlag {
		m.Number = 0
	}
	if kind == variation.KindFormat && id == "GT" {
		// Stored as allele indices whatever the header says.
		m.Type = variation.TypeInteger
	}

	if kind == variation.KindInfo {
		p.infoMeta[id] = m
		p.declare(variation.InfoPath(id), m)
	} else {
		if number == "G" && !p.ignored[variation.CallPath(id)] {
			p.perGT[id] = true
		}
		p.formatMeta[id] = m
		p.declare(variation.CallPath(id), m)
	}
	return nil
}

func (p *Parser) preRead() {
	budget := p.opts.PreReadMaxSize
	size := 0
	for budget > 0 && size < budget {
		if p.opts.MaxNumVars > 0 && len(p.cache) >= p.opts.MaxNumVars {
			break
		}
		rec, n, err := p.parseNext()
		if err != nil {
			p.pendingErr = err
			break
		}
		if rec == nil {
			break
		}
		p.cache = append(p.cache, rec)
		size += n
	}
	p.log.Debug("pre-read VCF records", "records", len(p.cache), "bytes", size, "budget", budget)
}

// Format is the value of the ##fileformat header line.
func (p *Parser) Format() string { return p.format }

// Header holds the generic ##KEY=VALUE header lines, in file order per key.
func (p *Parser) Header() map[string][]string {
	out := make(map[string][]string, len(p.header))
	for k, v := range p.header {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func (p *Parser) Samples() []string { return append([]string(nil), p.samples...) }

func (p *Parser) Ploidy() int { return p.ploidy }

func (p *Parser) Metadata() variation.Metadata { return p.meta.Clone() }

func (p *Parser) Fields() []string { return append([]string(nil), p.fields...) }

func (p *Parser) MaxFieldLens() variation.FieldLens { return p.lens.Clone() }

// Read returns the next record, or nil once the input is exhausted, the
// record cap is reached, or parsing failed.
func (p *Parser) Read() *variation.Record {
	if p.err != nil {
		return nil
	}
	if p.opts.MaxNumVars > 0 && p.served >= p.opts.MaxNumVars {
		return nil
	}

	if p.cacheHead < len(p.cache) {
		rec := p.cache[p.cacheHead]
		p.cache[p.cacheHead] = nil
		p.cacheHead++
		if p.cacheHead == len(p.cache) {
			p.cache, p.cacheHead = nil, 0
		}
		p.served++
		return rec
	}
	if p.pendingErr != nil {
		p.err = p.pendingErr
		return nil
	}

	rec, _, err := p.parseNext()
	if err != nil {
		p.err = err
		return nil
	}
	if rec == nil {
		return nil
	}
	p.served++
	return rec
}

func (p *Parser) Error() error {
	if p.err == nil {
		return nil
	}
	return pfx.Err(p.err)
}

// parseNext parses the next data line, returning nil at the end of input.
// n is the number of input bytes the record took.
func (p *Parser) parseNext() (*variation.Record, int, error) {
	for {
		line, ok := p.lines.next()
		if !ok {
			return nil, 0, p.lines.readErr()
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := p.parseRecord(line)
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", p.lines.lineNo, err)
		}
		return rec, len(line) + 1, nil
	}
}

func (p *Parser) parseRecord(line string) (*variation.Record, error) {
	cols := strings.Split(line, "\t")
	if len(cols) < 8 {
		return nil, fmt.Errorf("record has %d columns, expected at least 8", len(cols))
	}

	pos, err := strconv.ParseInt(cols[1], 10, 32)
	if err != nil {
		return nil, err
	}
	rec := &variation.Record{
		Chrom: cols[0],
		Pos:   int32(pos),
		ID:    cols[2],
		Ref:   cols[3],
		Qual:  variation.MissingFloat(),
	}
	if rec.ID == "." {
		rec.ID = variation.MissingString
	}

	if cols[4] != "." {
		rec.Alt = strings.Split(cols[4], ",")
		if len(rec.Alt) > p.lens.Alt {
			p.lens.Alt = len(rec.Alt)
		}
	}
	for name := range p.perGT {
		if n := variation.NumGenotypes(len(rec.Alt)+1, p.ploidy); n > p.lens.Format[name] {
			p.lens.Format[name] = n
		}
	}

	if cols[5] != "." {
		rec.Qual, err = strconv.ParseFloat(cols[5], 64)
		if err != nil {
			return nil, err
		}
	}

	switch cols[6] {
	case "PASS":
		rec.Filters = []string{}
	case ".":
	default:
		rec.Filters = strings.Split(cols[6], ";")
		if len(rec.Filters) > p.lens.Filter {
			p.lens.Filter = len(rec.Filters)
		}
	}

	if rec.Info, err = p.parseInfo(cols[7]); err != nil {
		return nil, err
	}

	if len(cols) > 8 && cols[8] != "" && cols[8] != "." {
		if rec.Calls, err = p.parseCalls(cols[8], cols[9:]); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func (p *Parser) parseInfo(s string) (map[string]interface{}, error) {
	info := map[string]interface{}{}
	if s == "." || s == "" {
		return info, nil
	}

	for _, item := range strings.Split(s, ";") {
		if item == "" {
			continue
		}
		key, val, hasVal := strings.Cut(item, "=")
		if p.ignored[variation.InfoPath(key)] {
			continue
		}
		m, ok := p.infoMeta[key]
		if !ok {
			return nil, fmt.Errorf("%w: INFO metadata was not defined in header: %s", variation.ErrUndeclaredField, key)
		}
		if m.Type == variation.TypeFlag || m.Number == 0 {
			info[key] = true
			continue
		}
		if !hasVal {
			// A bare key for a valued field carries nothing.
			continue
		}

		vals := strings.Split(val, ",")
		var (
			v   interface{}
			err error
		)
		switch m.Type {
		case variation.TypeInteger:
			v, err = parseInts(vals)
		case variation.TypeFloat:
			v, err = parseFloats(vals)
		default:
			v = parseStrings(vals)
		}
		if err != nil {
			return nil, fmt.Errorf("INFO %s: %w", key, err)
		}
		info[key] = v
		if m.Number.IsVariable() && len(vals) > p.lens.Info[key] {
			p.lens.Info[key] = len(vals)
		}
	}
	return info, nil
}

func (p *Parser) parseFormat(s string) ([]formatField, error) {
	if f, ok := p.fmtCache[s]; ok {
		return f, nil
	}

	names := strings.Split(s, ":")
	out := make([]formatField, len(names))
	for i, name := range names {
		path := variation.CallPath(name)
		out[i].name = name
		if p.ignored[path] {
			out[i].skip = true
			continue
		}
		m, ok := p.formatMeta[name]
		if !ok {
			return nil, fmt.Errorf("%w: FORMAT metadata was not defined in header: %s", variation.ErrUndeclaredField, name)
		}
		out[i].meta = m
		out[i].list = m.Number != 1
		out[i].skip = len(p.kept) > 0 && !p.kept[path]
	}
	p.fmtCache[s] = out
	return out, nil
}

func (p *Parser) parseGT(raw string) ([]int32, error) {
	if raw == "" {
		return p.emptyGT, nil
	}
	if gt, ok := p.gtCache[raw]; ok {
		return gt, nil
	}

	alleles := splitGT(raw)
	gt := make([]int32, len(alleles))
	for i, a := range alleles {
		if a == "." {
			gt[i] = variation.MissingGT
			continue
		}
		v, err := strconv.ParseInt(a, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("genotype %q: %w", raw, err)
		}
		gt[i] = int32(v)
	}
	p.gtCache[raw] = gt
	return gt, nil
}

func (p *Parser) parseCalls(fmtStr string, cols []string) ([]variation.CallField, error) {
	format, err := p.parseFormat(fmtStr)
	if err != nil {
		return nil, err
	}

	ns := len(p.samples)
	subs := make([][]string, ns)
	for s := 0; s < ns && s < len(cols); s++ {
		if cols[s] != "." {
			subs[s] = strings.Split(cols[s], ":")
		}
	}
	raw := func(s, i int) string {
		if i >= len(subs[s]) {
			return ""
		}
		return subs[s][i]
	}

	calls := make([]variation.CallField, 0, len(format))
	for i, f := range format {
		if f.skip {
			continue
		}

		var (
			values interface{}
			maxLen int
		)
		switch {
		case f.name == "GT":
			gts := make([][]int32, ns)
			for s := range gts {
				if gts[s], err = p.parseGT(raw(s, i)); err != nil {
					return nil, err
				}
				if len(gts[s]) > maxLen {
					maxLen = len(gts[s])
				}
			}
			values = gts
		case f.meta.Type == variation.TypeInteger:
			vals := make([][]int32, ns)
			for s := range vals {
				if vals[s], err = parseSampleInts(raw(s, i), f.list); err != nil {
					return nil, fmt.Errorf("FORMAT %s: %w", f.name, err)
				}
				if len(vals[s]) > maxLen {
					maxLen = len(vals[s])
				}
			}
			values = vals
		case f.meta.Type == variation.TypeFloat:
			vals := make([][]float64, ns)
			for s := range vals {
				if vals[s], err = parseSampleFloats(raw(s, i), f.list); err != nil {
					return nil, fmt.Errorf("FORMAT %s: %w", f.name, err)
				}
				if len(vals[s]) > maxLen {
					maxLen = len(vals[s])
				}
			}
			values = vals
		default:
			vals := make([][]string, ns)
			for s := range vals {
				vals[s] = parseSampleStrings(raw(s, i), f.list)
				if len(vals[s]) > maxLen {
					maxLen = len(vals[s])
				}
			}
			values = vals
		}

		if f.meta.Number.IsVariable() && f.name != "GT" && maxLen > p.lens.Format[f.name] {
			p.lens.Format[f.name] = maxLen
		}
		calls = append(calls, variation.CallField{Name: f.name, Values: values})
	}
	return calls, nil
}

func parseInts(vals []string) ([]int32, error) {
	out := make([]int32, len(vals))
	for i, v := range vals {
		if v == "." || v == "" {
			out[i] = variation.MissingInt
			continue
		}
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return nil, err
		}
		out[i] = int32(n)
	}
	return out, nil
}

func parseFloats(vals []string) ([]float64, error) {
	out := make([]float64, len(vals))
	for i, v := range vals {
		if v == "." || v == "" {
			out[i] = math.NaN()
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func parseStrings(vals []string) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		if v != "." {
			out[i] = v
		}
	}
	return out
}

// sampleValues splits one sample's sub-field. A missing sub-field yields
// nil; scalar fields are never split on commas.
func sampleValues(raw string, list bool) []string {
	if raw == "" || raw == "." {
		return nil
	}
	if !list {
		return []string{raw}
	}
	return strings.Split(raw, ",")
}

func parseSampleInts(raw string, list bool) ([]int32, error) {
	vals := sampleValues(raw, list)
	if vals == nil {
		return nil, nil
	}
	return parseInts(vals)
}

func parseSampleFloats(raw string, list bool) ([]float64, error) {
	vals := sampleValues(raw, list)
	if vals == nil {
		return nil, nil
	}
	return parseFloats(vals)
}

func parseSampleStrings(raw string, list bool) []string {
	vals := sampleValues(raw, list)
	if vals == nil {
		return nil
	}
	return parseStrings(vals)
}
