// Package regionmsg defines the outbound instructions the manager hands
// back to a reporting region server in a heartbeat response -- the Go
// analogue of the source's HMsg. The Assignment Engine, the Load Balancer,
// and the Action Queues all produce these; the transport layer
// (internal/regionmanager/grpc) serializes them onto the wire.
package regionmsg

import "regionmaster/internal/regionstate"

// Type distinguishes the instruction kinds the manager can issue, matching
// the heartbeat-out vocabulary of §6: OPEN, CLOSE, SPLIT, COMPACT,
// MAJOR_COMPACT, FLUSH, CF_COMPACT, CF_MAJOR_COMPACT.
type Type int

const (
	RegionOpen Type = iota
	RegionClose
	RegionSplit
	RegionCompact
	RegionMajorCompact
	RegionFlush
	ColumnFamilyCompact
	ColumnFamilyMajorCompact
)

// CloseReason annotates why a RegionClose message was issued.
type CloseReason string

// OverloadedReason marks a close issued by the Load Balancer to shed load
// rather than in response to a split, disable, or other user action.
const OverloadedReason CloseReason = "OVERLOADED"

// Message is one outbound instruction destined for a single region server.
type Message struct {
	Type   Type
	Server string
	Region regionstate.Info
	Reason CloseReason // only meaningful for RegionClose
	Family string      // only meaningful for ColumnFamily{Compact,MajorCompact}
}
