// Package mirror implements the manager's view of the external
// coordination-service session: a durable key/value mirror of transition
// state, keyed by each region's encoded short name, plus the dedicated
// root-location node. The real coordination service is an external
// collaborator (see spec §6); this package stands in for its session state
// using the same bbolt-backed persistence the rest of this lineage already
// uses for comparable durability needs.
package mirror

import (
	"encoding/binary"
	"fmt"
)

// EventType is the kind byte of a RegionTransitionEventData payload.
type EventType byte

const (
	// EventRegionOffline is written when a region becomes UNASSIGNED, and
	// also -- per the design note on coordination-service writes during
	// assignment -- when a region moves to PENDING_OPEN: "master has
	// cleared the region, any server may claim it." Preserved exactly as
	// the source does it for compatibility with region-server handlers.
	EventRegionOffline EventType = 1
	// EventRegionOpened marks a region fully OPEN and acknowledged.
	EventRegionOpened EventType = 2
	// EventRegionClosing marks a region in the process of closing.
	EventRegionClosing EventType = 3
)

// Event is the wire payload of a mirror node: an event kind byte followed by
// a length-prefixed sender string. The binary layout is part of the
// external contract and must not change shape.
type Event struct {
	Type   EventType
	Sender string
}

// Marshal encodes an Event as: 1 byte kind, 4 byte big-endian length, then
// the sender bytes.
func (e Event) Marshal() []byte {
	buf := make([]byte, 1+4+len(e.Sender))
	buf[0] = byte(e.Type)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(e.Sender)))
	copy(buf[5:], e.Sender)
	return buf
}

// UnmarshalEvent decodes a payload written by Marshal.
func UnmarshalEvent(data []byte) (Event, error) {
	if len(data) < 5 {
		return Event{}, fmt.Errorf("mirror: event payload too short (%d bytes)", len(data))
	}
	n := binary.BigEndian.Uint32(data[1:5])
	if int(5+n) > len(data) {
		return Event{}, fmt.Errorf("mirror: event payload truncated: want %d more bytes", n)
	}
	return Event{Type: EventType(data[0]), Sender: string(data[5 : 5+n])}, nil
}
