package regionkey

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// Name builds the canonical region name <table,startKey,regionId>, the byte
// string that is authoritative for ordering throughout the manager.
func Name(table string, startKey []byte, regionID int64) []byte {
	return []byte(fmt.Sprintf("%s,%s,%d", table, startKey, regionID))
}

// EncodedName returns the stable short hash of a region name, used as the
// coordination-service mirror node's path component.
func EncodedName(regionName []byte) string {
	sum := md5.Sum(regionName)
	return hex.EncodeToString(sum[:])
}
