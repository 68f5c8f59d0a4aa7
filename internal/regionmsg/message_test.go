package regionmsg

import "testing"

// TestTypeOrdinalsAreStable guards the wire encoding in
// internal/regionmanager/grpc, which serializes Type as a plain int32: any
// reordering of these constants would silently change the wire meaning of
// existing values.
func TestTypeOrdinalsAreStable(t *testing.T) {
	cases := map[Type]int{
		RegionOpen:               0,
		RegionClose:              1,
		RegionSplit:              2,
		RegionCompact:            3,
		RegionMajorCompact:       4,
		RegionFlush:              5,
		ColumnFamilyCompact:      6,
		ColumnFamilyMajorCompact: 7,
	}
	for typ, want := range cases {
		if int(typ) != want {
			t.Fatalf("Type ordinal changed: got %d, want %d", typ, want)
		}
	}
}
