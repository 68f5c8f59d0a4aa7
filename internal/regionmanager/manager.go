// Package regionmanager wires the Region Manager's components together
// (component 10): scanner goroutines, the heartbeat entry point, and the
// lifecycle (Start/Stop) every other collaborator in this lineage exposes.
package regionmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"regionmaster/internal/actionqueue"
	"regionmaster/internal/assignengine"
	"regionmaster/internal/balancer"
	"regionmaster/internal/catalog"
	"regionmaster/internal/mirror"
	"regionmaster/internal/preferred"
	"regionmaster/internal/regionmsg"
	"regionmaster/internal/regionstate"
	"regionmaster/internal/reopener"
	"regionmaster/internal/transition"
)

// Config bundles every tunable named in §6's configuration-keys table plus
// the collaborators the Manager does not own itself.
type Config struct {
	Self string // this master instance's identity, for mirror event senders

	Session mirror.Session // nil selects an in-memory, non-durable session

	Slop             float64       // hbase.regions.slop
	MaxRegToClose    int           // hbase.regions.close.max
	MaxAssignInOneGo int           // hbase.regions.percheckin
	PreferredHold    time.Duration // hbase.regionserver.preferredAssignment.regionHoldPeriod
	RetryPolicy      mirror.RetryPolicy

	ApplyPreferredAssignmentPeriod  time.Duration
	HoldRegionForBestLocalityPeriod time.Duration
	PreferredHosts                  map[string]string // region encoded name -> preferred hostname

	ReopenerParallelism int

	ScanInterval  time.Duration // root/meta scanner poll period
	WakeFrequency time.Duration // periodic re-check period used by blocking waits
}

func (c Config) withDefaults() Config {
	// A negative slop is passed through; balancer.New resets it to 1.
	if c.Slop == 0 {
		c.Slop = balancer.DefaultSlop
	}
	if c.MaxRegToClose == 0 {
		c.MaxRegToClose = balancer.DefaultMaxRegToClose
	}
	if c.MaxAssignInOneGo <= 0 {
		c.MaxAssignInOneGo = assignengine.DefaultMaxAssignInOneGo
	}
	if c.ReopenerParallelism <= 0 {
		c.ReopenerParallelism = reopener.DefaultParallelism
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = 5 * time.Second
	}
	if c.WakeFrequency <= 0 {
		c.WakeFrequency = 30 * time.Second
	}
	return c
}

// Manager is the Region Manager: the assembled Transition Table, Catalog,
// Preferred Assignment Store, Load Balancer, Assignment Engine, Action
// Queues, and Reopener Registry, plus the scanner and expiry goroutines
// that drive them outside the heartbeat path.
type Manager struct {
	cfg Config

	table     *transition.Table
	cat       *catalog.Catalog
	preferred *preferred.Store
	bal       *balancer.Balancer
	locality  *assignengine.Locality
	engine    *assignengine.Engine
	queues    *actionqueue.Queues
	reopeners *reopener.Registry
	session   mirror.Session

	serverMu              sync.Mutex
	servers               map[string]int // address -> last reported load
	userRegionsAssignable bool

	masterStart time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// MetaRegionSource, if set, is polled by the catalog scanner goroutine
	// to discover online meta regions. Left nil in configurations where
	// catalog discovery is driven externally (the catalog scanners are an
	// out-of-scope external collaborator per §1); the scanner goroutine
	// still runs, but with a nil source each tick does nothing.
	MetaRegionSource func(ctx context.Context) ([]catalog.MetaEntry, error)
}

// New assembles a Manager from cfg. A nil cfg.Session selects a non-durable
// in-memory mirror, appropriate for tests and single-process demos.
func New(cfg Config) *Manager {
	cfg = cfg.withDefaults()

	session := cfg.Session
	if session == nil {
		session = mirror.NewInMemorySession()
	}

	table := transition.New(session, cfg.Self)
	cat := catalog.New(session)
	if cfg.RetryPolicy.MaxAttempts > 0 {
		cat.SetRetryPolicy(cfg.RetryPolicy)
	}
	pref := preferred.New(cfg.PreferredHold)
	bal := balancer.New(cfg.Slop, cfg.MaxRegToClose)

	var locality *assignengine.Locality
	if cfg.ApplyPreferredAssignmentPeriod > 0 {
		locality = assignengine.NewLocality(time.Now(), cfg.ApplyPreferredAssignmentPeriod, cfg.HoldRegionForBestLocalityPeriod, cfg.PreferredHosts)
	}

	queues := actionqueue.New()

	m := &Manager{
		cfg:         cfg,
		table:       table,
		cat:         cat,
		preferred:   pref,
		bal:         bal,
		locality:    locality,
		queues:      queues,
		reopeners:   reopener.New(cfg.ReopenerParallelism),
		session:     session,
		servers:     make(map[string]int),
		masterStart: time.Now(),
	}

	m.engine = assignengine.New(assignengine.Config{
		Table:            table,
		Catalog:          cat,
		Preferred:        pref,
		Balancer:         bal,
		Locality:         locality,
		Servers:          m,
		MaxAssignInOneGo: cfg.MaxAssignInOneGo,
		PendingOpsEmpty:  queues.Empty,
	})

	return m
}

// assignengine.ServerManager implementation.

func (m *Manager) UserRegionsAssignable() bool {
	m.serverMu.Lock()
	defer m.serverMu.Unlock()
	return m.userRegionsAssignable
}

func (m *Manager) IsSingleServer() bool {
	m.serverMu.Lock()
	defer m.serverMu.Unlock()
	return len(m.servers) <= 1
}

func (m *Manager) ServerCount() int {
	m.serverMu.Lock()
	defer m.serverMu.Unlock()
	return len(m.servers)
}

// SetUserRegionsAssignable flips whether user-table regions may be handed
// out; false while bootstrap/catalog-only assignment is still settling.
func (m *Manager) SetUserRegionsAssignable(v bool) {
	m.serverMu.Lock()
	defer m.serverMu.Unlock()
	m.userRegionsAssignable = v
}

func (m *Manager) fleetSnapshot() balancer.Fleet {
	m.serverMu.Lock()
	defer m.serverMu.Unlock()
	out := make(balancer.Fleet, len(m.servers))
	for addr, load := range m.servers {
		out[addr] = load
	}
	return out
}

// HandleHeartbeat is the manager's public entry point, invoked once per
// heartbeat from the RPC layer with the reporting server's identity,
// current load, and most-loaded-regions report. It records the server's
// load, drains any due action-queue entries for it, runs the Assignment
// Engine, and returns the combined outbound instruction list.
func (m *Manager) HandleHeartbeat(server string, load int, mostLoaded []regionstate.Info) []regionmsg.Message {
	m.serverMu.Lock()
	m.servers[server] = load
	m.serverMu.Unlock()

	var out []regionmsg.Message
	out = append(out, drainActions(m.queues, server)...)
	out = append(out, m.engine.HandleHeartbeat(server, load, m.fleetSnapshot(), mostLoaded)...)
	return out
}

func drainActions(q *actionqueue.Queues, server string) []regionmsg.Message {
	var out []regionmsg.Message
	for _, a := range q.Split.DrainForServer(server) {
		out = append(out, regionmsg.Message{Type: regionmsg.RegionSplit, Server: server, Region: a.Region})
	}
	for _, a := range q.Compact.DrainForServer(server) {
		out = append(out, regionmsg.Message{Type: regionmsg.RegionCompact, Server: server, Region: a.Region})
	}
	for _, a := range q.MajorCompact.DrainForServer(server) {
		out = append(out, regionmsg.Message{Type: regionmsg.RegionMajorCompact, Server: server, Region: a.Region})
	}
	for _, a := range q.Flush.DrainForServer(server) {
		out = append(out, regionmsg.Message{Type: regionmsg.RegionFlush, Server: server, Region: a.Region})
	}
	for _, a := range q.CFCompact.DrainForServer(server) {
		out = append(out, regionmsg.Message{Type: regionmsg.ColumnFamilyCompact, Server: server, Region: a.Region, Family: a.Family})
	}
	for _, a := range q.CFMajorCompact.DrainForServer(server) {
		out = append(out, regionmsg.Message{Type: regionmsg.ColumnFamilyMajorCompact, Server: server, Region: a.Region, Family: a.Family})
	}
	return out
}

// RemoveServer is called by the shutdown processor (an external
// collaborator per §1) when a server is declared dead: it drops the server
// from fleet bookkeeping, offlines any meta regions (and root) it was
// hosting, and puts each of them back into the Transition Table as
// UNASSIGNED so they are reassigned.
func (m *Manager) RemoveServer(server string) []*catalog.MetaEntry {
	m.serverMu.Lock()
	delete(m.servers, server)
	m.serverMu.Unlock()
	wasRoot := m.cat.IsRootServer(server)
	offlined := m.cat.OfflineMetaServer(server)
	if wasRoot {
		m.ReassignRootRegion()
	}
	for _, e := range offlined {
		record, ok := m.table.Get(e.Info.Name())
		if !ok {
			record = regionstate.NewRecord(e.Info, regionstate.Unassigned)
		} else {
			record.SetUnassigned()
		}
		_ = m.table.Put(record)
	}
	return offlined
}

// NotifyRegionOpened marks record OPEN and forwards the confirmation to the
// Reopener Registry, in case a throttled table alteration is waiting on it.
func (m *Manager) NotifyRegionOpened(record *regionstate.Record) {
	record.SetOpen()
	_ = m.table.Put(record)
	m.reopeners.NotifyRegionReopened(record.Info())
}

// NotifyRegionClosed marks record CLOSED.
func (m *Manager) NotifyRegionClosed(record *regionstate.Record) error {
	if err := record.SetClosed(); err != nil {
		return fmt.Errorf("regionmanager: %w", err)
	}
	_ = m.table.Put(record)
	return nil
}

// ReassignRootRegion clears the in-memory root location and resets root's
// Transition Table entry (creating it if absent) to UNASSIGNED so the next
// heartbeat picks it up via regionsAwaitingAssignment step 2.
func (m *Manager) ReassignRootRegion() {
	m.cat.UnsetRootRegion()
	record, ok := m.table.Get(regionstate.RootRegionInfo.Name())
	if !ok {
		record = regionstate.NewRecord(regionstate.RootRegionInfo, regionstate.Unassigned)
	} else {
		record.SetUnassigned()
	}
	_ = m.table.Put(record)
}

// UnsetRootRegion clears the in-memory root location without touching the
// Transition Table, used when the master merely lost track of root (e.g. a
// stale heartbeat) rather than needing a fresh assignment cycle.
func (m *Manager) UnsetRootRegion() {
	m.cat.UnsetRootRegion()
}

// RegionsInTransition returns a snapshot of every region currently tracked
// by the Transition Table, keyed by region name -- supplemented from
// original_source's getRegionsInTransition, used by diagnostics.
func (m *Manager) RegionsInTransition() map[string]string {
	return m.table.Snapshot()
}

// ClearFromInTransition forcefully drops name from the Transition Table,
// used by the shutdown processor when a server is declared dead outside the
// normal transition flow.
func (m *Manager) ClearFromInTransition(name []byte) bool {
	return m.table.ClearFromInTransition(name)
}

// AddRegionServerForRestart places every region currently hosted by server
// under a preferred-assignment hold, so a planned restart reclaims the same
// regions rather than scattering them across the fleet. Supplemented from
// original_source's addRegionServerForRestart.
func (m *Manager) AddRegionServerForRestart(server string, hosted []regionstate.Info) {
	m.preferred.AddRegions(server, hosted)
}

// HasPreferredAssignment reports whether server currently holds any region
// under a preferred-assignment hold.
func (m *Manager) HasPreferredAssignment(server string) bool {
	return m.preferred.HasPreferredAssignment(server)
}

// ScheduleSplit, ScheduleCompact, ScheduleMajorCompact, and ScheduleFlush
// enqueue a region-scoped administrative action for delivery on server's
// next heartbeat.
func (m *Manager) ScheduleSplit(region regionstate.Info, server string) {
	m.queues.Split.Put(region, server)
}

func (m *Manager) ScheduleCompact(region regionstate.Info, server string) {
	m.queues.Compact.Put(region, server)
}

func (m *Manager) ScheduleMajorCompact(region regionstate.Info, server string) {
	m.queues.MajorCompact.Put(region, server)
}

func (m *Manager) ScheduleFlush(region regionstate.Info, server string) {
	m.queues.Flush.Put(region, server)
}

// ScheduleColumnFamilyCompact and ScheduleColumnFamilyMajorCompact enqueue a
// column-family-scoped administrative action.
func (m *Manager) ScheduleColumnFamilyCompact(region regionstate.Info, family, server string) {
	m.queues.CFCompact.Put(region, family, server)
}
func (m *Manager) ScheduleColumnFamilyMajorCompact(region regionstate.Info, family, server string) {
	m.queues.CFMajorCompact.Put(region, family, server)
}

// CreateThrottledReopener registers (or reuses) a reopen coordinator for
// table, scheduled to reopen regions.
func (m *Manager) CreateThrottledReopener(table string, regions []regionstate.Info) *reopener.Reopener {
	return m.reopeners.Create(table, regions)
}

// DeleteThrottledReopener drops the reopen coordinator registered for table.
func (m *Manager) DeleteThrottledReopener(table string) {
	m.reopeners.Delete(table)
}

// Table, Catalog, and Session expose the underlying components for
// collaborators (the transport layer, tests) that need direct access beyond
// the Manager's own method set.
func (m *Manager) Table() *transition.Table {
	return m.table
}

func (m *Manager) Catalog() *catalog.Catalog {
	return m.cat
}

func (m *Manager) Session() mirror.Session {
	return m.session
}

// Stats is a point-in-time snapshot of Manager state for the metrics
// collector; see internal/observability/metrics.RegionManagerCollector.
type Stats struct {
	OnlineMetaRegions int
	AllMetaOnline     bool
	RootLocated       bool
	ServerCount       int
	TotalLoad         int
	PreferredPending  int
	SplitQueueLen     int
	CompactQueueLen   int
	MajorCompactLen   int
	FlushQueueLen     int
}

// Stats reports a snapshot suitable for Prometheus gauge observation.
func (m *Manager) Stats() Stats {
	m.serverMu.Lock()
	serverCount := len(m.servers)
	total := 0
	for _, load := range m.servers {
		total += load
	}
	m.serverMu.Unlock()

	return Stats{
		OnlineMetaRegions: m.cat.OnlineMetaCount(),
		AllMetaOnline:     m.cat.AreAllMetaRegionsOnline(),
		RootLocated:       m.cat.RootRegionLocation() != "",
		ServerCount:       serverCount,
		TotalLoad:         total,
		PreferredPending:  m.preferred.Len(),
		SplitQueueLen:     m.queues.Split.Len(),
		CompactQueueLen:   m.queues.Compact.Len(),
		MajorCompactLen:   m.queues.MajorCompact.Len(),
		FlushQueueLen:     m.queues.Flush.Len(),
	}
}

// Start launches the scanner goroutines: the root/meta scanner poll loop
// and the preferred-assignment expiry handler.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.ctx, m.cancel = ctx, cancel

	m.wg.Add(1)
	go m.runCatalogScanner()

	m.wg.Add(1)
	go m.runPreferredAssignmentExpiry()
}

// Stop cancels the scanner goroutines and blocks until they exit, then
// closes the mirror session.
func (m *Manager) Stop() error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	return m.session.Close()
}

// runCatalogScanner polls MetaRegionSource (if configured) on ScanInterval,
// re-syncing the Catalog's online-meta-regions map, the expected meta count,
// and whether user regions are assignable (AreAllMetaRegionsOnline). Root
// discovery is not polled; it is driven by SetRootRegionLocation calls. With
// MetaRegionSource nil the loop only waits for shutdown.
func (m *Manager) runCatalogScanner() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.syncCatalog()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) syncCatalog() {
	if m.MetaRegionSource == nil {
		return
	}
	entries, err := m.MetaRegionSource(m.ctx)
	if err != nil {
		return
	}
	for _, e := range entries {
		m.cat.PutMetaRegionOnline(e.StartKey, e.Server, e.Info)
	}
	m.cat.SetNumberOfMetaRegions(len(entries))
	m.SetUserRegionsAssignable(m.cat.AreAllMetaRegionsOnline())
}

// runPreferredAssignmentExpiry blocks on the Preferred Assignment Store's
// delay queue, removing each hold as it expires.
func (m *Manager) runPreferredAssignmentExpiry() {
	defer m.wg.Done()
	stop := m.ctx.Done()
	for {
		_, _, ok := m.preferred.PollExpired(stop)
		if !ok {
			return
		}
	}
}

// WaitForRootRegionLocation blocks until the root region's location is
// known or shutdown is requested, per §4.2/§5.
func (m *Manager) WaitForRootRegionLocation(ctx context.Context) string {
	return m.cat.WaitForRootRegionLocation(ctx, m.cfg.WakeFrequency)
}

// SetRootRegionLocation persists addr as the root region's location with
// retry, and records its Transition Table entry as OPEN.
func (m *Manager) SetRootRegionLocation(addr string) error {
	if err := m.cat.SetRootRegionLocation(addr); err != nil {
		return err
	}
	record, ok := m.table.Get(regionstate.RootRegionInfo.Name())
	if !ok {
		record = regionstate.NewRecord(regionstate.RootRegionInfo, regionstate.Unassigned)
	}
	record.SetPendingOpen(addr)
	record.SetOpen()
	return m.table.Put(record)
}
