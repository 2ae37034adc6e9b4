package variation

import (
	"fmt"
	"strconv"
)

// VariableNumber marks a field whose cardinality must be inferred from the
// data (Number=., A, R, G in the header).
const VariableNumber = -1

// Number is the declared cardinality of a field
type Number int

// ParseNumber parses a header Number= token. Anything non-numeric becomes
// VariableNumber.
func ParseNumber(s string) Number {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return VariableNumber
	}
	return Number(n)
}

func (n Number) IsVariable() bool {
	return n == VariableNumber
}

func (n Number) String() string {
	if n.IsVariable() {
		return "."
	}
	return strconv.Itoa(int(n))
}

// FieldMetadata describes one field path. It is derived once from the header
// and is immutable thereafter.
type FieldMetadata struct {
	Kind        Kind      `json:"kind"`
	Type        ValueType `json:"type"`
	Number      Number    `json:"number"`
	Description string    `json:"description,omitempty"`
}

func (m FieldMetadata) String() string {
	return fmt.Sprintf("%s[%s,Number=%s]", m.Kind, m.Type, m.Number)
}

// Metadata maps field paths to their descriptors.
type Metadata map[string]FieldMetadata

func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge copies entries of other that are not already present.
func (m Metadata) Merge(other Metadata) {
	for k, v := range other {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
}

// variationsMetadata is the schema of the fixed record columns.
func variationsMetadata() Metadata {
	return Metadata{
		ChromField: {Kind: KindVariations, Type: TypeString, Number: 1},
		PosField:   {Kind: KindVariations, Type: TypeInteger, Number: 1},
		IDField:    {Kind: KindVariations, Type: TypeString, Number: 1},
		RefField:   {Kind: KindVariations, Type: TypeString, Number: 1},
		AltField:   {Kind: KindVariations, Type: TypeString, Number: VariableNumber},
		QualField:  {Kind: KindVariations, Type: TypeFloat, Number: 1},
	}
}

// VariationsMetadata returns a fresh copy of the fixed-column schema.
func VariationsMetadata() Metadata {
	return variationsMetadata()
}
