package variation

import (
	"fmt"

	"github.com/carbocation/pfx"
)

// ValueType is the declared type of a field's values
type ValueType uint32

const (
	TypeInteger ValueType = iota
	TypeFloat
	TypeString
	TypeFlag
)

func (t ValueType) String() string {
	switch t {
	case TypeInteger:
		return "Integer"
	case TypeFloat:
		return "Float"
	case TypeString:
		return "String"
	case TypeFlag:
		return "Flag"

	default:
		return "Illegal selection"
	}
}

// ParseValueType maps the VCF header Type= token onto a ValueType. Character
// fields are treated as strings.
func ParseValueType(s string) (ValueType, error) {
	switch s {
	case "Integer":
		return TypeInteger, nil
	case "Float":
		return TypeFloat, nil
	case "String", "Character":
		return TypeString, nil
	case "Flag":
		return TypeFlag, nil
	}

	return TypeString, pfx.Err(fmt.Errorf("Unsupported value type %q", s))
}

// MarshalText lets ValueType round-trip through JSON and YAML as its name.
func (t ValueType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ValueType) UnmarshalText(b []byte) error {
	v, err := ParseValueType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Kind is the semantic section a field belongs to
type Kind uint32

const (
	KindFormat Kind = iota
	KindInfo
	KindFilter
	KindVariations
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindFormat:
		return "FORMAT"
	case KindInfo:
		return "INFO"
	case KindFilter:
		return "FILTER"
	case KindVariations:
		return "VARIATIONS"
	case KindOther:
		return "OTHER"

	default:
		return "Illegal selection"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for _, c := range []Kind{KindFormat, KindInfo, KindFilter, KindVariations, KindOther} {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return pfx.Err(fmt.Errorf("Unsupported kind %q", string(b)))
}
