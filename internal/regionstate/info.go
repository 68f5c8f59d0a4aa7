// Package regionstate holds the region descriptor and the per-region
// lifecycle record the rest of the manager transitions under lock.
package regionstate

import (
	"fmt"

	"regionmaster/internal/regionkey"
)

// Info is the immutable descriptor of a region: the table it belongs to,
// its key range, and the numeric id assigned at creation time. Two Info
// values with the same Name are the same region.
type Info struct {
	TableName string
	StartKey  []byte
	EndKey    []byte
	RegionID  int64
}

// IsRoot reports whether this descriptor names the bootstrap root region.
func (i Info) IsRoot() bool {
	return i.TableName == RootTableName
}

// IsMeta reports whether this descriptor names a catalog (meta) region.
func (i Info) IsMeta() bool {
	return i.TableName == MetaTableName
}

// RootTableName and MetaTableName are the reserved table names for the
// bootstrap root region and the catalog meta regions.
const (
	RootTableName = "-ROOT-"
	MetaTableName = ".META."
)

// Name returns the canonical <table,startKey,regionId> byte name, which is
// authoritative for ordering throughout the manager.
func (i Info) Name() []byte {
	return regionkey.Name(i.TableName, i.StartKey, i.RegionID)
}

// Encoded returns the stable short hash of Name, used as the coordination
// service mirror node's path component.
func (i Info) Encoded() string {
	return regionkey.EncodedName(i.Name())
}

func (i Info) String() string {
	return fmt.Sprintf("%s,%s,%d", i.TableName, i.StartKey, i.RegionID)
}

// ContainsKey reports whether row falls within [StartKey, EndKey) using
// unsigned byte comparison. An empty EndKey means "no upper bound".
func (i Info) ContainsKey(row []byte) bool {
	if regionkey.Compare(row, i.StartKey) < 0 {
		return false
	}
	if len(i.EndKey) == 0 {
		return true
	}
	return regionkey.Compare(row, i.EndKey) < 0
}

// RootRegionInfo is the well-known singleton descriptor for the root region.
var RootRegionInfo = Info{TableName: RootTableName, RegionID: 0}
