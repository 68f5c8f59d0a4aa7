// Package assignengine implements the Assignment Engine (component 7): the
// per-heartbeat decision of which regions to hand a reporting server, and
// the follow-on Load Balancer invocation when there is nothing new to give
// it.
package assignengine

import (
	"math"
	"sort"
	"sync"
	"time"

	"regionmaster/internal/balancer"
	"regionmaster/internal/catalog"
	"regionmaster/internal/preferred"
	"regionmaster/internal/regionkey"
	"regionmaster/internal/regionmsg"
	"regionmaster/internal/regionstate"
	"regionmaster/internal/transition"
)

// DefaultMaxAssignInOneGo matches the source's default per-heartbeat
// assignment cap.
const DefaultMaxAssignInOneGo = 10

// ServerManager is the small slice of cluster-membership state the engine
// needs but does not own itself; the top-level Manager (component 10)
// implements it.
type ServerManager interface {
	// UserRegionsAssignable reports whether user-table regions may be
	// handed out yet (false while bootstrap/catalog-only assignment is
	// still settling).
	UserRegionsAssignable() bool
	// IsSingleServer reports whether exactly one region server is known.
	IsSingleServer() bool
	// ServerCount returns the number of known region servers.
	ServerCount() int
}

// Engine wires the Transition Table, Catalog, Preferred Assignment Store,
// and Load Balancer together to answer one heartbeat at a time. A single
// mutex serializes HandleHeartbeat calls across reporting servers, standing
// in for the source's coarse synchronized-method discipline across the
// handful of collaborating components -- simpler than threading one lock
// acquisition order through three independently-locked components, and
// heartbeat handling was never meant to be the high-concurrency path.
type Engine struct {
	mu sync.Mutex

	table     *transition.Table
	cat       *catalog.Catalog
	preferred *preferred.Store
	bal       *balancer.Balancer
	locality  *Locality
	servers   ServerManager

	maxAssignInOneGo int
	pendingOpsEmpty  func() bool
}

// Config bundles the Engine's construction-time dependencies.
type Config struct {
	Table            *transition.Table
	Catalog          *catalog.Catalog
	Preferred        *preferred.Store
	Balancer         *balancer.Balancer
	Locality         *Locality // nil disables locality mode entirely
	Servers          ServerManager
	MaxAssignInOneGo int
	// PendingOpsEmpty reports whether the Action Queues (component 8) have
	// no outstanding operations; nil is treated as always-empty.
	PendingOpsEmpty func() bool
}

// New constructs an Engine from cfg.
func New(cfg Config) *Engine {
	maxAssign := cfg.MaxAssignInOneGo
	if maxAssign <= 0 {
		maxAssign = DefaultMaxAssignInOneGo
	}
	return &Engine{
		table:            cfg.Table,
		cat:              cfg.Catalog,
		preferred:        cfg.Preferred,
		bal:              cfg.Balancer,
		locality:         cfg.Locality,
		servers:          cfg.Servers,
		maxAssignInOneGo: maxAssign,
		pendingOpsEmpty:  cfg.PendingOpsEmpty,
	}
}

// candidate pairs a region's live record with its descriptor, avoiding a
// second Transition Table lookup once a name has been resolved.
type candidate struct {
	record *regionstate.Record
	info   regionstate.Info
}

// HandleHeartbeat is invoked once per heartbeat from server, carrying its
// current region count (thisLoad), the fleet-wide load snapshot, and its
// most-loaded-regions report (consulted only if the Load Balancer runs). It
// returns the outbound instructions for that server's heartbeat response.
func (e *Engine) HandleHeartbeat(server string, thisLoad int, fleet balancer.Fleet, mostLoaded []regionstate.Info) []regionmsg.Message {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	if e.locality != nil {
		e.locality.NoteHeartbeat(hostOf(server))
	}

	candidates, bypassed := e.regionsAwaitingAssignment(server, now)
	if len(candidates) == 0 {
		if bypassed {
			return nil
		}
		localityActive := e.locality != nil && e.locality.Active(now)
		pendingEmpty := e.pendingOpsEmpty == nil || e.pendingOpsEmpty()
		if pendingEmpty && !localityActive {
			return e.runBalancer(server, thisLoad, fleet, mostLoaded)
		}
		return nil
	}

	var selected []candidate
	localityActive := e.locality != nil && e.locality.Active(now)
	switch {
	case bypassed, localityActive, e.servers.IsSingleServer():
		selected = candidates
	default:
		selected = e.balancedAssignment(candidates, thisLoad, fleet, server)
	}

	if len(selected) > e.maxAssignInOneGo {
		selected = selected[:e.maxAssignInOneGo]
	}

	out := make([]regionmsg.Message, 0, len(selected))
	for _, c := range selected {
		out = append(out, e.doRegionAssignment(server, c))
	}
	return out
}

// regionsAwaitingAssignment is step 1 of §4.3. bypassed reports whether the
// preferred-assignment short-circuit fired, in which case the result must be
// delivered as-is without locality or balance shaping.
func (e *Engine) regionsAwaitingAssignment(server string, now time.Time) (out []candidate, bypassed bool) {
	if e.preferred != nil && e.preferred.HasPreferredAssignment(server) {
		held := e.preferred.RegionsFor(server)
		result := make([]candidate, 0, len(held))
		for _, info := range held {
			record, ok := e.table.Get(info.Name())
			if ok && record.IsUnassigned() {
				result = append(result, candidate{record: record, info: info})
				e.preferred.Remove(server, info)
			}
		}
		return result, true
	}

	if e.cat.RootRegionLocation() == "" {
		// Root is handed out only while it is UNASSIGNED (or not tracked
		// yet); a root already PENDING_OPEN elsewhere is left alone.
		root := regionstate.RootRegionInfo
		record, ok := e.table.Get(root.Name())
		if !ok || record.IsUnassigned() {
			if e.cat.IsMetaServer(server) && e.servers.ServerCount() > 1 {
				return nil, false
			}
			if !ok {
				record = regionstate.NewRecord(root, regionstate.Unassigned)
			}
			return []candidate{{record: record, info: root}}, false
		}
	}

	reassigningMetas := e.cat.IsReassigningMetas()
	if reassigningMetas && (e.cat.IsRootServer(server) || e.cat.IsMetaServer(server)) && !e.servers.IsSingleServer() {
		return nil, false
	}

	localityActive := e.locality != nil && e.locality.Active(now)
	userAssignable := e.servers.UserRegionsAssignable()
	e.table.Ascend(func(record *regionstate.Record) bool {
		info := record.Info()
		if !info.IsMeta() && reassigningMetas {
			return true
		}
		if !info.IsMeta() && !info.IsRoot() && !userAssignable {
			return true
		}
		if e.preferred != nil {
			if holder, held := e.preferred.HeldServerFor(info.Name()); held && holder != server {
				return true
			}
		}
		if localityActive && !e.locality.Assignable(now, info, server) {
			return true
		}
		if record.IsUnassigned() {
			out = append(out, candidate{record: record, info: info})
		}
		return true
	})
	return out, false
}

// balancedAssignment is §4.3.1.
func (e *Engine) balancedAssignment(candidates []candidate, thisLoad int, fleet balancer.Fleet, self string) []candidate {
	nToAssign := len(candidates)
	toOthers := regionsToGiveOtherServers(nToAssign, thisLoad, fleet, self)
	n := nToAssign - toOthers

	metaCount := 0
	for _, c := range candidates {
		if c.info.IsMeta() {
			metaCount++
		}
	}
	if n <= 0 && metaCount == 0 {
		return nil
	}
	if n < 0 {
		n = 0
	}

	heavierLoad, nHeavier, heavierExists := nextHeavierTier(thisLoad, fleet, self)
	climbConsumed := n
	if heavierExists {
		capacity := heavierLoad - thisLoad
		if capacity < 0 {
			capacity = 0
		}
		if capacity < n {
			climbConsumed = capacity
		}
	}

	assignToSelf := climbConsumed
	if climbConsumed < n {
		totalServers := len(fleet)
		if totalServers == 0 {
			totalServers = 1
		}
		if heavierExists && nHeavier > 0 {
			assignToSelf = int(math.Ceil(float64(n) / float64(nHeavier)))
		} else {
			assignToSelf = int(math.Ceil(float64(n) / float64(totalServers)))
		}
	}

	sorted := make([]candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		return regionkey.Less(sorted[i].info.Name(), sorted[j].info.Name())
	})

	out := make([]candidate, 0, assignToSelf+metaCount)
	taken := make(map[string]bool, assignToSelf+metaCount)
	// Meta regions are always assignable, even when assignToSelf is 0.
	for _, c := range sorted {
		if c.info.IsMeta() && len(out) < assignToSelf+metaCount {
			out = append(out, c)
			taken[string(c.info.Name())] = true
		}
	}
	for _, c := range sorted {
		if len(out) >= assignToSelf+metaCount {
			break
		}
		if taken[string(c.info.Name())] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// regionsToGiveOtherServers simulates filling each strictly lighter server
// up to thisLoad, saturating at nToAssign.
func regionsToGiveOtherServers(nToAssign, thisLoad int, fleet balancer.Fleet, self string) int {
	total := 0
	for server, load := range fleet {
		if server == self || load >= thisLoad {
			continue
		}
		total += thisLoad - load
		if total >= nToAssign {
			return nToAssign
		}
	}
	return total
}

// nextHeavierTier returns the lowest load strictly greater than thisLoad
// among fleet (excluding self), and how many servers sit at it.
func nextHeavierTier(thisLoad int, fleet balancer.Fleet, self string) (load int, count int, exists bool) {
	for server, l := range fleet {
		if server == self || l <= thisLoad {
			continue
		}
		if !exists || l < load {
			load, exists = l, true
		}
	}
	if !exists {
		return 0, 0, false
	}
	for server, l := range fleet {
		if server == self {
			continue
		}
		if l == load {
			count++
		}
	}
	return load, count, true
}

// doRegionAssignment is step 3 of §4.3: moves c to PENDING_OPEN, writes the
// OFFLINE mirror event (the region server will claim it, not OPENING), and
// ensures the Transition Table carries the entry.
func (e *Engine) doRegionAssignment(server string, c candidate) regionmsg.Message {
	c.record.SetPendingOpen(server)
	_ = e.table.WriteOffline(c.record)
	_ = e.table.Put(c.record)
	return regionmsg.Message{Type: regionmsg.RegionOpen, Server: server, Region: c.info}
}

// runBalancer invokes the Load Balancer when the candidate set came back
// empty.
func (e *Engine) runBalancer(server string, thisLoad int, fleet balancer.Fleet, mostLoaded []regionstate.Info) []regionmsg.Message {
	if e.bal == nil {
		return nil
	}
	chosen := e.bal.SelectToShed(server, thisLoad, fleet, mostLoaded, e.table.Contains)
	if len(chosen) == 0 {
		return nil
	}
	return balancer.Apply(e.table, server, chosen)
}

func hostOf(serverAddr string) string {
	for i, c := range serverAddr {
		if c == ':' || c == ',' {
			return serverAddr[:i]
		}
	}
	return serverAddr
}
