// Package variation stores genomic variant calls as a set of flat columnar
// arrays addressed by field path, either fully in memory or paged to disk.
package variation

import "math"

// Missing values stand in for data that is absent in the source. They are
// typed so that fixed-shape arrays can be allocated up front, and they also
// pad the slots a record leaves unwritten in a wider field.
const (
	MissingInt    int32  = -1
	MissingGT     int32  = -1
	MissingString string = ""
)

// Flags are stored in three-valued integer fields (unknown/true/false) by the
// annotators. Unknown is MissingInt.
const (
	TrueInt  int32 = 1
	FalseInt int32 = 0
)

// MissingFloat returns the float sentinel (NaN).
func MissingFloat() float64 {
	return math.NaN()
}

// IsMissingFloat reports whether v is the missing float sentinel.
func IsMissingFloat(v float64) bool {
	return math.IsNaN(v)
}
