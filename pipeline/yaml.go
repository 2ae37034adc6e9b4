package pipeline

import (
	"fmt"
	"io"
	"sort"

	"github.com/carbocation/pfx"
	"github.com/mitchellh/mapstructure"
	yaml "gopkg.in/yaml.v2"
)

// StepDefinition declares one step of a pipeline file. Params are decoded
// into the step of the given kind by their mapstructure names; unknown
// params are an error.
type StepDefinition struct {
	ID     string                 `yaml:"id"`
	Kind   string                 `yaml:"kind"`
	Params map[string]interface{} `yaml:"params"`
}

// Definition is a pipeline file:
//
//	chunk_size: 500
//	steps:
//	  - id: called
//	    kind: min_called_gts
//	    params: {min_called: 0.8, do_histogram: true}
//	  - kind: maf
//	    params: {max: 0.95, min_num_genotypes: 10}
type Definition struct {
	ChunkSize int              `yaml:"chunk_size"`
	Steps     []StepDefinition `yaml:"steps"`
}

var kinds = map[string]func() Step{
	"min_called_gts":              func() Step { return &MinCalledGTsFilter{} },
	"maf":                         func() Step { return &MAFFilter{} },
	"mac":                         func() Step { return &MACFilter{} },
	"obs_het":                     func() Step { return &ObsHetFilter{} },
	"snp_qual":                    func() Step { return &SNPQualFilter{} },
	"non_biallelic":               func() Step { return &NonBiallelicFilter{} },
	"chi2_gt_freqs_2_sample_sets": func() Step { return &Chi2GtFreqs2SampleSetsFilter{} },
	"field_value":                 func() Step { return &FieldValueFilter{} },
	"low_dp_gts_to_missing":       func() Step { return &LowDPGTsToMissingSetter{} },
	"samples":                     func() Step { return &SampleFilter{} },
	"fields":                      func() Step { return &FieldFilter{} },
	"is_variable":                 func() Step { return &IsVariableAnnotator{} },
}

// Kinds lists the step kinds a Definition can name.
func Kinds() []string {
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Decode reads a YAML pipeline definition.
func Decode(r io.Reader) (*Definition, error) {
	def := &Definition{}
	if err := yaml.NewDecoder(r).Decode(def); err != nil {
		return nil, pfx.Err(err)
	}
	return def, nil
}

// Build instantiates the steps of d in order.
func (d *Definition) Build() (*Pipeline, error) {
	p := New()
	for i, sd := range d.Steps {
		newStep, ok := kinds[sd.Kind]
		if !ok {
			return nil, pfx.Err(fmt.Errorf("Step %d has unknown kind %q, expected one of %v", i, sd.Kind, Kinds()))
		}
		step := newStep()
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			ErrorUnused:      true,
			Result:           step,
		})
		if err != nil {
			return nil, pfx.Err(err)
		}
		if err := dec.Decode(sd.Params); err != nil {
			return nil, pfx.Err(fmt.Errorf("step %d (%s): %w", i, sd.Kind, err))
		}
		if err := p.Append(step, sd.ID); err != nil {
			return nil, pfx.Err(err)
		}
	}
	return p, nil
}
