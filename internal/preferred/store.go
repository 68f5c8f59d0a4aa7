// Package preferred implements the Preferred Assignment Store and its
// delay-queue expiry timer: a time-bounded reservation of regions for a
// specific server, used across planned restarts (addRegionServerForRestart)
// and independent of locality-mode placement.
package preferred

import (
	"sync"
	"time"

	"github.com/huandu/skiplist"

	"regionmaster/internal/regionstate"
)

const defaultHoldPeriod = 60 * time.Second

// Store holds preferredAssignmentMap (server -> held regions) and its
// reverse index (regionsWithPreferredAssignment), guarded by a single lock,
// plus the delay queue backing their expiry. The design note recommends a
// priority queue keyed by deadline with a condition variable whose wait
// timeout equals the next deadline; huandu/skiplist, ordered by deadline,
// gives exactly that shape.
type Store struct {
	mu sync.Mutex

	byServer map[string]map[string]regionstate.Info // server -> region name string -> info
	heldBy   map[string]string                      // region name string -> server

	queue *skiplist.SkipList // key: delayKey; value: *holdEntry
	wake  chan struct{}      // signalled (non-blocking) whenever a new entry is queued
	seq   uint64

	holdPeriod time.Duration
}

type delayKey struct {
	deadline int64 // UnixNano
	seq      uint64
}

func compareDelayKey(l, r interface{}) int {
	lk, rk := l.(delayKey), r.(delayKey)
	switch {
	case lk.deadline < rk.deadline:
		return -1
	case lk.deadline > rk.deadline:
		return 1
	case lk.seq < rk.seq:
		return -1
	case lk.seq > rk.seq:
		return 1
	default:
		return 0
	}
}

type holdEntry struct {
	server string
	region regionstate.Info
	key    delayKey
}

// New creates an empty Store. holdPeriod is the default delay applied to
// new holds; zero selects the source's 60-second default.
func New(holdPeriod time.Duration) *Store {
	if holdPeriod <= 0 {
		holdPeriod = defaultHoldPeriod
	}
	s := &Store{
		byServer:   make(map[string]map[string]regionstate.Info),
		heldBy:     make(map[string]string),
		queue:      skiplist.New(skiplist.GreaterThanFunc(compareDelayKey)),
		wake:       make(chan struct{}, 1),
		holdPeriod: holdPeriod,
	}
	return s
}

// signalWake wakes one blocked PollExpired call, if any; a no-op if the
// channel already carries a pending wake.
func (s *Store) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// AddRegion inserts region into server's held set and the reverse index,
// then enqueues its delay-queue expiry entry. Mirrors
// addRegionToPreferredAssignment.
func (s *Store) AddRegion(server string, region regionstate.Info) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := string(region.Name())
	if s.byServer[server] == nil {
		s.byServer[server] = make(map[string]regionstate.Info)
	}
	s.byServer[server][name] = region
	s.heldBy[name] = server

	s.seq++
	key := delayKey{deadline: time.Now().Add(s.holdPeriod).UnixNano(), seq: s.seq}
	s.queue.Set(key, &holdEntry{server: server, region: region, key: key})
	s.signalWake()
}

// AddRegions is the bulk form used by addRegionServerForRestart.
func (s *Store) AddRegions(server string, regions []regionstate.Info) {
	for _, r := range regions {
		s.AddRegion(server, r)
	}
}

// HasPreferredAssignment reports whether server currently holds any region.
func (s *Store) HasPreferredAssignment(server string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byServer[server]) > 0
}

// HeldServerFor returns the server holding region (if any) and whether a
// hold exists.
func (s *Store) HeldServerFor(regionName []byte) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	server, ok := s.heldBy[string(regionName)]
	return server, ok
}

// RegionsFor returns every region currently held for server.
func (s *Store) RegionsFor(server string) []regionstate.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.byServer[server]
	out := make([]regionstate.Info, 0, len(set))
	for _, info := range set {
		out = append(out, info)
	}
	return out
}

// Remove atomically removes region from server's held set and the reverse
// index, dropping the per-server set if it becomes empty. Returns true if a
// hold was removed. Mirrors removeRegionFromPreferredAssignment; the
// matching delay-queue entry is left to expire naturally and become a no-op
// (its region will no longer be found in heldBy) -- cheaper than a
// linear scan of the skiplist on every explicit removal.
func (s *Store) Remove(server string, region regionstate.Info) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(server, region)
}

func (s *Store) removeLocked(server string, region regionstate.Info) bool {
	name := string(region.Name())
	set, ok := s.byServer[server]
	if !ok {
		return false
	}
	if _, present := set[name]; !present {
		return false
	}
	delete(set, name)
	if len(set) == 0 {
		delete(s.byServer, server)
	}
	delete(s.heldBy, name)
	return true
}

// Len reports the total number of held regions across all servers --
// equals |regionsWithPreferredAssignment|, checked against
// Σ|preferredAssignmentMap[s]| as an invariant in tests.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heldBy)
}

// QueueLen reports the number of entries remaining in the delay queue,
// including stale ones awaiting their natural expiry.
func (s *Store) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// defaultWakeFrequency bounds how long PollExpired sleeps when the queue is
// empty, so a hold added concurrently is never missed beyond this delay even
// if a wake signal races the check (mirrors the source's periodic
// wakeFrequency poll rather than relying solely on notification).
const defaultWakeFrequency = 30 * time.Second

// PollExpired blocks until the earliest delay-queue entry's deadline passes
// or stop is closed, then pops and returns it ("", _, false on stop).
// Entries whose hold was already explicitly removed are skipped as stale.
func (s *Store) PollExpired(stop <-chan struct{}) (server string, region regionstate.Info, ok bool) {
	for {
		s.mu.Lock()
		front := s.queue.Front()
		if front == nil {
			s.mu.Unlock()
			select {
			case <-stop:
				return "", regionstate.Info{}, false
			case <-s.wake:
				continue
			case <-time.After(defaultWakeFrequency):
				continue
			}
		}

		entry := front.Value.(*holdEntry)
		now := time.Now().UnixNano()
		if entry.key.deadline > now {
			wait := time.Duration(entry.key.deadline - now)
			s.mu.Unlock()
			select {
			case <-stop:
				return "", regionstate.Info{}, false
			case <-s.wake:
				continue
			case <-time.After(wait):
				continue
			}
		}

		s.queue.Remove(entry.key)
		name := string(entry.region.Name())
		cur, held := s.heldBy[name]
		stale := !held || cur != entry.server
		if !stale {
			s.removeLocked(entry.server, entry.region)
		}
		s.mu.Unlock()
		if stale {
			continue
		}
		return entry.server, entry.region, true
	}
}
