package variation

import "strings"

// Fixed field paths. Every array in a Store is addressed by one of these or
// by a path built with the helpers below.
const (
	CallsPrefix      = "/calls/"
	VariationsPrefix = "/variations/"
	InfoPrefix       = "/variations/info/"
	FilterPrefix     = "/variations/filter/"

	GTField    = "/calls/GT"
	DPField    = "/calls/DP"
	ChromField = "/variations/chrom"
	PosField   = "/variations/pos"
	IDField    = "/variations/id"
	RefField   = "/variations/ref"
	AltField   = "/variations/alt"
	QualField  = "/variations/qual"

	FilterPassField      = "/variations/filter/PASS"
	FilterNoFiltersField = "/variations/filter/no_filters"
)

func CallPath(name string) string   { return CallsPrefix + name }
func InfoPath(name string) string   { return InfoPrefix + name }
func FilterPath(name string) string { return FilterPrefix + name }

// IsCallPath reports whether path addresses a per-sample field, whose second
// dimension runs over samples.
func IsCallPath(path string) bool {
	return strings.HasPrefix(path, CallsPrefix)
}

// FieldName returns the last component of a field path.
func FieldName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
