// Package transition implements the Transition Table: the process-wide
// ordered map from region name to region state, mirrored into the
// coordination service. This is the manager's outermost lock -- no other
// manager lock may be acquired while holding it, except the
// preferred-assignment lock (see internal/preferred), which nests inside it.
package transition

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/btree"

	"regionmaster/internal/mirror"
	"regionmaster/internal/regionstate"
)

type entry struct {
	name   []byte
	record *regionstate.Record
}

func lessEntry(a, b *entry) bool {
	return bytes.Compare(a.name, b.name) < 0
}

// Table is the manager's single source of truth for in-flight region
// states. Mirror writes (the OFFLINE node on an UNASSIGNED Put or on
// WriteOffline, node deletion on Remove and ClearFromInTransition) happen
// under the same lock as the table change, so mirror writes observe a
// single total order.
type Table struct {
	mu      sync.Mutex
	tree    *btree.BTreeG[*entry]
	session mirror.Session
	self    string // identity written as the mirror event sender
}

// New creates an empty Transition Table backed by session for its mirror
// writes. self identifies this master instance as the event sender.
func New(session mirror.Session, self string) *Table {
	return &Table{
		tree:    btree.NewG(32, lessEntry),
		session: session,
		self:    self,
	}
}

// Put inserts or replaces the record for name. If the record's current
// state is UNASSIGNED, the mirror node is written with an OFFLINE event;
// for any other state Put leaves the mirror untouched. Callers that want the
// OFFLINE payload for a PENDING_OPEN transition (see doc on
// EventRegionOffline) call WriteOffline explicitly.
func (t *Table) Put(record *regionstate.Record) error {
	name := record.RegionName()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tree.ReplaceOrInsert(&entry{name: name, record: record})
	if record.CurrentState() == regionstate.Unassigned {
		return t.writeOfflineLocked(record)
	}
	return nil
}

// WriteOffline writes the OFFLINE mirror event for record's region without
// changing its Transition Table membership. Used both when a region becomes
// UNASSIGNED and -- per the preserved source behavior -- when it is moved to
// PENDING_OPEN (the master has cleared the region; any server may claim it).
func (t *Table) WriteOffline(record *regionstate.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeOfflineLocked(record)
}

func (t *Table) writeOfflineLocked(record *regionstate.Record) error {
	encoded := record.Info().Encoded()
	payload := mirror.Event{Type: mirror.EventRegionOffline, Sender: t.self}.Marshal()
	return t.session.Upsert(encoded, payload)
}

// Remove deletes the entry (and its mirror node) for name.
func (t *Table) Remove(name []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.tree.Delete(&entry{name: name})
	if !ok {
		return
	}
	_ = t.session.Delete(e.record.Info().Encoded())
}

// Contains reports whether name currently has a transition entry.
func (t *Table) Contains(name []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.tree.Get(&entry{name: name})
	return ok
}

// Get returns the record for name, if present.
func (t *Table) Get(name []byte) (*regionstate.Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.tree.Get(&entry{name: name})
	if !ok {
		return nil, false
	}
	return e.record, true
}

// Ascend visits every record in region-name order, stopping early if fn
// returns false. fn is called while the table lock is held, matching the
// source's synchronized iteration discipline -- fn must not call back into
// the Table.
func (t *Table) Ascend(fn func(*regionstate.Record) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tree.Ascend(func(e *entry) bool {
		return fn(e.record)
	})
}

// Len returns the number of entries currently tracked.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tree.Len()
}

// Snapshot returns a point-in-time copy of region name -> human readable
// state string, used by diagnostics (the out-of-scope master status page).
func (t *Table) Snapshot() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, t.tree.Len())
	t.tree.Ascend(func(e *entry) bool {
		out[string(e.name)] = e.record.String()
		return true
	})
	return out
}

// ClearFromInTransition forcefully removes any entry whose region name
// equals name, used by the shutdown processor when a server is declared
// dead outside the normal transition flow. Returns true if an entry was
// removed.
func (t *Table) ClearFromInTransition(name []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.tree.Delete(&entry{name: name})
	if !ok {
		return false
	}
	_ = t.session.Delete(e.record.Info().Encoded())
	return true
}

// SortedNames returns every tracked region name in ascending order. Used by
// tests asserting iteration order without reaching into the tree directly.
func (t *Table) SortedNames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, 0, t.tree.Len())
	t.tree.Ascend(func(e *entry) bool {
		out = append(out, e.name)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i], out[j]) < 0 })
	return out
}
