// Package catalog tracks the location of the root region, the set of
// currently online meta regions, and the expected meta region count --
// the manager's view of where the catalog table itself lives.
package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/btree"

	"regionmaster/internal/mirror"
	"regionmaster/internal/regionkey"
	"regionmaster/internal/regionstate"
)

// ErrNotAllMetaRegionsOnline is surfaced to callers of catalog-resolution
// APIs when the meta quorum is incomplete (or root is missing, for
// .META. row lookups).
var ErrNotAllMetaRegionsOnline = errors.New("catalog: not all meta regions are online")

// MetaEntry is one row of the online-meta-regions map: the meta region's
// start key, the server currently hosting it, and its descriptor.
type MetaEntry struct {
	StartKey []byte
	Server   string
	Info     regionstate.Info
}

func lessMeta(a, b *MetaEntry) bool {
	return regionkey.Less(a.StartKey, b.StartKey)
}

// Catalog is the manager's catalog-tracking component (component 4). The
// meta map uses a reader-writer lock since reads dominate, per the design
// note recommending that discipline specifically for this table; the root
// location uses its own lock plus a condition variable so
// WaitForRootRegionLocation can block efficiently.
type Catalog struct {
	metaMu              sync.RWMutex
	metaTree            *btree.BTreeG[*MetaEntry]
	numberOfMetaRegions int

	rootMu           sync.Mutex
	rootCond         *sync.Cond
	rootLocation     string
	shutdownRequest  bool

	session     mirror.Session
	retryPolicy mirror.RetryPolicy
}

// New creates an empty Catalog backed by session for the durable
// root-location write.
func New(session mirror.Session) *Catalog {
	c := &Catalog{
		metaTree:    btree.NewG(32, lessMeta),
		session:     session,
		retryPolicy: mirror.DefaultRetryPolicy,
	}
	c.rootCond = sync.NewCond(&c.rootMu)
	return c
}

// SetRootRegionLocation persists addr to the coordination service with
// bounded retries, then sets the in-memory location and wakes all waiters.
// Exhausting retries requests master shutdown and returns the write error.
func (c *Catalog) SetRootRegionLocation(addr string) error {
	err := mirror.UpsertWithRetry(c.session, mirror.RootLocationPath(), []byte(addr), c.retryPolicy, nil)
	c.rootMu.Lock()
	defer c.rootMu.Unlock()
	if err != nil {
		c.shutdownRequest = true
		c.rootCond.Broadcast()
		return err
	}
	c.rootLocation = addr
	c.rootCond.Broadcast()
	return nil
}

// RootRegionLocation returns the current root server address, or "" if
// unassigned.
func (c *Catalog) RootRegionLocation() string {
	c.rootMu.Lock()
	defer c.rootMu.Unlock()
	return c.rootLocation
}

// UnsetRootRegion clears the in-memory location. It does not schedule
// reassignment; callers wanting that call ReassignRootRegion.
func (c *Catalog) UnsetRootRegion() {
	c.rootMu.Lock()
	defer c.rootMu.Unlock()
	c.rootLocation = ""
}

// IsShutdownRequested reports whether root-location persistence has
// exhausted its retries and asked for master shutdown.
func (c *Catalog) IsShutdownRequested() bool {
	c.rootMu.Lock()
	defer c.rootMu.Unlock()
	return c.shutdownRequest
}

// WaitForRootRegionLocation blocks until the root location is known,
// shutdown has been requested, or ctx is canceled, waking every wakeFreq to
// re-check shutdown the way the source's periodic wake-frequency poll does.
func (c *Catalog) WaitForRootRegionLocation(ctx context.Context, wakeFreq time.Duration) string {
	if wakeFreq <= 0 {
		wakeFreq = 30 * time.Second
	}
	notify := make(chan struct{})
	go func() {
		ticker := time.NewTicker(wakeFreq)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.rootCond.Broadcast()
			case <-ctx.Done():
				c.rootCond.Broadcast()
				return
			case <-notify:
				return
			}
		}
	}()
	defer close(notify)

	c.rootMu.Lock()
	defer c.rootMu.Unlock()
	for c.rootLocation == "" && !c.shutdownRequest && ctx.Err() == nil {
		c.rootCond.Wait()
	}
	return c.rootLocation
}

// SetRetryPolicy overrides the retry policy used by SetRootRegionLocation.
func (c *Catalog) SetRetryPolicy(policy mirror.RetryPolicy) {
	c.rootMu.Lock()
	defer c.rootMu.Unlock()
	c.retryPolicy = policy
}

// IsRootServer reports whether addr currently hosts the root region.
func (c *Catalog) IsRootServer(addr string) bool {
	return c.RootRegionLocation() == addr
}

// PutMetaRegionOnline records that info's meta region is now hosted at
// server.
func (c *Catalog) PutMetaRegionOnline(startKey []byte, server string, info regionstate.Info) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	c.metaTree.ReplaceOrInsert(&MetaEntry{StartKey: startKey, Server: server, Info: info})
}

// OfflineMetaRegionWithStartKey removes the meta region with the given
// start key from the online set.
func (c *Catalog) OfflineMetaRegionWithStartKey(startKey []byte) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	c.metaTree.Delete(&MetaEntry{StartKey: startKey})
}

// SetNumberOfMetaRegions records the root scanner's estimate of how many
// meta regions exist in total.
func (c *Catalog) SetNumberOfMetaRegions(n int) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	c.numberOfMetaRegions = n
}

// OnlineMetaCount returns the number of meta regions currently online.
func (c *Catalog) OnlineMetaCount() int {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	return c.metaTree.Len()
}

// AreAllMetaRegionsOnline reports root located AND online meta count equals
// the expected count.
func (c *Catalog) AreAllMetaRegionsOnline() bool {
	located := c.RootRegionLocation() != ""
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	return located && c.metaTree.Len() == c.numberOfMetaRegions
}

// IsReassigningMetas reports whether the online meta count is below the
// expected count -- during which user-region assignment is paused.
func (c *Catalog) IsReassigningMetas() bool {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	return c.metaTree.Len() < c.numberOfMetaRegions
}

// GetMetaRegionForRow returns the meta region whose start key is the
// greatest key <= row. Rows prefixed with ".META.," are special-cased to
// resolve against root instead (signalled by the boolean return).
func (c *Catalog) GetMetaRegionForRow(row []byte) (entry *MetaEntry, useRoot bool, err error) {
	if regionkey.IsMetaRow(row) {
		if c.RootRegionLocation() == "" {
			return nil, true, ErrNotAllMetaRegionsOnline
		}
		return nil, true, nil
	}
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	var found *MetaEntry
	c.metaTree.DescendLessOrEqual(&MetaEntry{StartKey: row}, func(e *MetaEntry) bool {
		found = e
		return false
	})
	if found == nil {
		return nil, false, ErrNotAllMetaRegionsOnline
	}
	return found, false, nil
}

// GetFirstMetaRegionForRegion performs a floor-entry lookup by region name;
// with exactly one meta region online, that single entry is returned
// regardless of key (fast path), matching the source.
func (c *Catalog) GetFirstMetaRegionForRegion(name []byte) (*MetaEntry, error) {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	if c.metaTree.Len() == 1 {
		var only *MetaEntry
		c.metaTree.Ascend(func(e *MetaEntry) bool {
			only = e
			return false
		})
		return only, nil
	}
	var found *MetaEntry
	c.metaTree.DescendLessOrEqual(&MetaEntry{StartKey: name}, func(e *MetaEntry) bool {
		found = e
		return false
	})
	if found == nil {
		return nil, ErrNotAllMetaRegionsOnline
	}
	return found, nil
}

// GetMetaRegionsForTable returns the suffix of the meta map beginning at
// the greatest start key <= tableName.
func (c *Catalog) GetMetaRegionsForTable(tableName []byte) ([]*MetaEntry, error) {
	if !c.AreAllMetaRegionsOnline() {
		return nil, ErrNotAllMetaRegionsOnline
	}
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	var start []byte
	c.metaTree.DescendLessOrEqual(&MetaEntry{StartKey: tableName}, func(e *MetaEntry) bool {
		start = e.StartKey
		return false
	})
	if start == nil {
		// No floor entry: fall back to the whole map, ordered.
		start = []byte{}
	}
	var out []*MetaEntry
	c.metaTree.AscendGreaterOrEqual(&MetaEntry{StartKey: start}, func(e *MetaEntry) bool {
		out = append(out, e)
		return true
	})
	return out, nil
}

// IsMetaServer reports whether addr currently hosts any online meta region.
//
// Open question (a) from the design notes: the source's isMetaServer
// compares server.toString() (an address) against RegionState.serverName,
// which also encodes a start code -- the two are never equal by
// construction, so the secondary check can never fire. This
// implementation instead compares addresses against the meta map's own
// Server field, which is address-only, closing the mismatch rather than
// reproducing it.
func (c *Catalog) IsMetaServer(addr string) bool {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	found := false
	c.metaTree.Ascend(func(e *MetaEntry) bool {
		if e.Server == addr {
			found = true
			return false
		}
		return true
	})
	return found
}

// OfflineMetaServer clears the root location (if addr hosted it) and removes
// every meta region addr was hosting from the online set, returning the
// removed entries, for clean handling of a server declared dead. It does not
// touch the Transition Table; re-queueing root or meta is left to the caller.
func (c *Catalog) OfflineMetaServer(addr string) (offlinedMeta []*MetaEntry) {
	if c.IsRootServer(addr) {
		c.UnsetRootRegion()
	}
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	var toRemove []([]byte)
	c.metaTree.Ascend(func(e *MetaEntry) bool {
		if e.Server == addr {
			offlinedMeta = append(offlinedMeta, e)
			toRemove = append(toRemove, e.StartKey)
		}
		return true
	})
	for _, k := range toRemove {
		c.metaTree.Delete(&MetaEntry{StartKey: k})
	}
	return offlinedMeta
}

// OnlineMetaRegions returns a snapshot of the online meta map ordered by
// start key.
func (c *Catalog) OnlineMetaRegions() []*MetaEntry {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	out := make([]*MetaEntry, 0, c.metaTree.Len())
	c.metaTree.Ascend(func(e *MetaEntry) bool {
		out = append(out, e)
		return true
	})
	return out
}
