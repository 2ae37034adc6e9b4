// Package pipeline runs ordered sequences of steps (filters and annotators)
// over the chunks of a variation.Store.
//
// Every step sees each chunk in turn, after the steps registered before it.
// Per-step statistics are sums over chunks, so a pipeline reports the same
// numbers whatever its chunk size, and running a step through RunStep over a
// whole store gives exactly what the step reports as the sole step of a
// pipeline.
package pipeline

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/carbocation/pfx"
	"github.com/carbocation/variation"
	"github.com/google/uuid"
)

// Outcome is what a step makes of one chunk.
type Outcome struct {
	// Chunk is the step's output. It may be the input chunk itself when the
	// step changes nothing.
	Chunk *variation.Arrays

	// Values is the per-variant statistic of the input chunk that a
	// histogram is built over. Nil for steps without one.
	Values []float64

	// Kept is, for filters, the number of input rows that passed, whether
	// or not the failing rows were removed.
	Kept int
}

// Step transforms one chunk at a time. Steps hold no state between chunks.
type Step interface {
	Apply(c *variation.Arrays) (*Outcome, error)
}

// HistogramStep is a Step that can report the distribution of its
// statistic.
type HistogramStep interface {
	Step
	HistogramOptions() Histogram
}

// filter is implemented by steps that pass or fail whole rows and report
// FilterStats.
type filter interface {
	Step
	filtersRows()
}

// FilterStats are the row tallies of a filter.
type FilterStats struct {
	Total       int
	Kept        int
	FilteredOut int
}

// StepResult is what one step reported over a whole run.
type StepResult struct {
	Order int

	// Counts and Edges are set for steps that computed a histogram. Edges
	// has one more entry than Counts.
	Counts []int
	Edges  []float64

	// Stats is set for filters.
	Stats *FilterStats
}

// Result holds the outcome of one run, keyed by step id.
type Result struct {
	RunID uuid.UUID
	Steps map[string]*StepResult

	// Rows is the number of rows the last step let through.
	Rows int
}

type entry struct {
	id   string
	step Step
}

// Pipeline is an ordered list of steps.
type Pipeline struct {
	steps []entry
}

func New() *Pipeline {
	return &Pipeline{}
}

// Append registers s after the steps already present. An empty id becomes
// the position of the step.
func (p *Pipeline) Append(s Step, id string) error {
	if id == "" {
		id = strconv.Itoa(len(p.steps))
	}
	for _, e := range p.steps {
		if e.id == id {
			return pfx.Err(fmt.Errorf("Step id %q is already in use", id))
		}
	}
	if hs, ok := s.(HistogramStep); ok {
		if err := hs.HistogramOptions().validate(); err != nil {
			return pfx.Err(fmt.Errorf("step %s: %w", id, err))
		}
	}
	p.steps = append(p.steps, entry{id: id, step: s})
	return nil
}

// IDs returns the step ids in execution order.
func (p *Pipeline) IDs() []string {
	out := make([]string, len(p.steps))
	for i, e := range p.steps {
		out[i] = e.id
	}
	return out
}

type Options struct {
	ChunkSize int
	Logger    *slog.Logger
}

func DefaultOptions() Options {
	return Options{ChunkSize: variation.DefaultChunkSize}
}

func WithChunkSize(n int) func(o *Options) {
	return func(o *Options) { o.ChunkSize = n }
}

func WithLogger(l *slog.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

func options(optFns []func(o *Options)) Options {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = variation.DefaultChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// needsSpan reports whether some step wants a histogram with no fixed range.
func (p *Pipeline) needsSpan() bool {
	for _, e := range p.steps {
		if hs, ok := e.step.(HistogramStep); ok {
			h := hs.HistogramOptions()
			if h.wanted() && len(h.Range) == 0 {
				return true
			}
		}
	}
	return false
}

// Run drives every chunk of in through the steps and appends what is left
// of each chunk to out. With a nil out only statistics are gathered.
//
// When a histogram has no fixed range, in is read twice: once to find the
// span of the values and once to bin them.
func (p *Pipeline) Run(in variation.Store, out variation.Store, optFns ...func(o *Options)) (*Result, error) {
	opts := options(optFns)
	chunks := func() variation.ChunkSource {
		return in.IterateChunks(variation.WithChunkSize(opts.ChunkSize))
	}

	var spans []span
	if p.needsSpan() {
		var err error
		if spans, err = p.spans(chunks()); err != nil {
			return nil, pfx.Err(err)
		}
	}
	res, err := p.run(chunks(), out, spans, opts)
	if err != nil {
		return nil, pfx.Err(err)
	}
	return res, nil
}

// RunChunks is Run over a one-shot chunk source. Every histogram must then
// have a fixed range.
func (p *Pipeline) RunChunks(src variation.ChunkSource, out variation.Store, optFns ...func(o *Options)) (*Result, error) {
	if p.needsSpan() {
		return nil, pfx.Err(fmt.Errorf("Histograms over a chunk source need a fixed range"))
	}
	res, err := p.run(src, out, nil, options(optFns))
	if err != nil {
		return nil, pfx.Err(err)
	}
	return res, nil
}

// spans makes a statistics-only pass and records the span of every step's
// values.
func (p *Pipeline) spans(src variation.ChunkSource) ([]span, error) {
	spans := make([]span, len(p.steps))
	for c := src.Read(); c != nil; c = src.Read() {
		err := p.applyAll(c, func(i int, _ *variation.Arrays, o *Outcome) {
			spans[i].add(o.Values)
		})
		if err != nil {
			return nil, err
		}
	}
	if err := src.Error(); err != nil {
		return nil, pfx.Err(err)
	}
	return spans, nil
}

// applyAll runs the steps in order over c, handing every step's input and
// outcome to seen. Steps after one that removed every row are skipped.
func (p *Pipeline) applyAll(c *variation.Arrays, seen func(i int, in *variation.Arrays, o *Outcome)) error {
	for i, e := range p.steps {
		if c.NumVariations() == 0 {
			return nil
		}
		o, err := e.step.Apply(c)
		if err != nil {
			return pfx.Err(fmt.Errorf("step %s: %w", e.id, err))
		}
		seen(i, c, o)
		c = o.Chunk
	}
	return nil
}

func (p *Pipeline) run(src variation.ChunkSource, out variation.Store, spans []span, opts Options) (*Result, error) {
	res := &Result{RunID: uuid.New(), Steps: make(map[string]*StepResult, len(p.steps))}
	log := opts.Logger.With("run_id", res.RunID.String())
	log.Info("running pipeline", "steps", p.IDs(), "chunk_size", opts.ChunkSize)

	results := make([]*StepResult, len(p.steps))
	for i, e := range p.steps {
		r := &StepResult{Order: i}
		if hs, ok := e.step.(HistogramStep); ok && hs.HistogramOptions().wanted() {
			h := hs.HistogramOptions()
			if len(h.Range) == 2 {
				r.Edges = linspace(h.Range[0], h.Range[1], h.bins()+1)
			} else {
				r.Edges = spans[i].edges(h.bins())
			}
			r.Counts = make([]int, h.bins())
		}
		if _, ok := e.step.(filter); ok {
			r.Stats = &FilterStats{}
		}
		results[i] = r
		res.Steps[e.id] = r
	}

	var nChunks int
	for c := src.Read(); c != nil; c = src.Read() {
		final := c
		err := p.applyAll(c, func(i int, in *variation.Arrays, o *Outcome) {
			r := results[i]
			if r.Counts != nil {
				binCounts(r.Counts, r.Edges, o.Values)
			}
			if r.Stats != nil {
				r.Stats.Total += in.NumVariations()
				r.Stats.Kept += o.Kept
				r.Stats.FilteredOut += in.NumVariations() - o.Kept
			}
			final = o.Chunk
		})
		if err != nil {
			return nil, pfx.Err(err)
		}
		if final.NumVariations() > 0 && out != nil {
			if err := out.AppendChunk(final); err != nil {
				return nil, pfx.Err(err)
			}
		}
		res.Rows += final.NumVariations()
		nChunks++
		log.Debug("pipeline chunk done", "chunk", nChunks, "rows_in", c.NumVariations(), "rows_out", final.NumVariations())
	}
	if err := src.Error(); err != nil {
		return nil, pfx.Err(err)
	}

	log.Info("pipeline done", "chunks", nChunks, "rows_kept", res.Rows)
	return res, nil
}

// RunStep applies s on its own to the whole of in, as one chunk, and
// returns its result and the resulting rows.
func RunStep(s Step, in variation.Store, optFns ...func(o *Options)) (*StepResult, *variation.Arrays, error) {
	p := New()
	if err := p.Append(s, ""); err != nil {
		return nil, nil, pfx.Err(err)
	}
	n := in.NumVariations()
	if n == 0 {
		n = 1
	}
	out := variation.NewArrays()
	res, err := p.Run(in, out, append(optFns, WithChunkSize(n))...)
	if err != nil {
		return nil, nil, pfx.Err(err)
	}
	return res.Steps["0"], out, nil
}
