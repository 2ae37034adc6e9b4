package pipeline

import (
	"fmt"

	"github.com/carbocation/pfx"
	"github.com/carbocation/variation"
	"github.com/carbocation/variation/stats"
)

// IsVariableAnnotator writes, into the INFO field named ID, whether the
// called genotypes of Samples (all samples when empty) differ within each
// variant: variation.TrueInt, variation.FalseInt, or variation.MissingInt
// when none of them is called.
type IsVariableAnnotator struct {
	ID      string   `mapstructure:"id"`
	Samples []string `mapstructure:"samples"`
}

// Path is the field the annotation is written to.
func (a IsVariableAnnotator) Path() string {
	return variation.InfoPath(a.ID)
}

func (a IsVariableAnnotator) Apply(c *variation.Arrays) (*Outcome, error) {
	if a.ID == "" {
		return nil, pfx.Err(fmt.Errorf("IsVariableAnnotator needs an annotation id"))
	}
	gt, err := c.GT()
	if err != nil {
		return nil, pfx.Err(err)
	}
	var idx []int
	if len(a.Samples) > 0 {
		if idx, err = variation.SampleIndices(c.Samples(), a.Samples); err != nil {
			return nil, pfx.Err(err)
		}
	}

	values := stats.IsVariable(gt, idx)
	next := c.Copy()
	meta := variation.FieldMetadata{
		Kind:        variation.KindInfo,
		Type:        variation.TypeInteger,
		Number:      1,
		Description: "Whether the called genotypes of the selected samples differ",
	}
	if err := next.Set(a.Path(), variation.FromSlice(values, len(values)), &meta); err != nil {
		return nil, pfx.Err(err)
	}
	return &Outcome{Chunk: next}, nil
}
