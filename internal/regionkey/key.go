// Package regionkey holds the byte-ordering primitives every ordered
// container in the region manager builds on: region names and meta start
// keys are compared as unsigned byte strings, never as Go strings.
package regionkey

import "bytes"

// Compare orders two byte keys by unsigned lexicographic comparison. This is
// the Go equivalent of Bytes.BYTES_COMPARATOR: the sole ordering primitive
// the rest of the package is allowed to use. Comparing the string
// conversions of two keys with < gives the same bytewise unsigned order in
// Go; ordered containers and sorts call Compare or Less anyway so that key
// ordering is defined in one place.
func Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// Less reports whether a sorts strictly before b.
func Less(a, b []byte) bool {
	return Compare(a, b) < 0
}

// Equal reports byte-for-byte equality.
func Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// MetaRowPrefix is the row-key prefix that identifies a request to locate a
// meta region itself, rather than a user region. Rows beginning with this
// prefix are resolved against the root region instead of the meta map.
const MetaRowPrefix = ".META.,"

// IsMetaRow reports whether row names a meta-table row, which must be routed
// to root rather than looked up in onlineMetaRegions.
func IsMetaRow(row []byte) bool {
	if len(row) < len(MetaRowPrefix) {
		return false
	}
	return string(row[:len(MetaRowPrefix)]) == MetaRowPrefix
}
