package assignengine

import (
	"testing"
	"time"

	"regionmaster/internal/balancer"
	"regionmaster/internal/catalog"
	"regionmaster/internal/mirror"
	"regionmaster/internal/preferred"
	"regionmaster/internal/regionstate"
	"regionmaster/internal/transition"
)

type fakeServers struct {
	count    int
	single   bool
	assigned bool
}

func (f *fakeServers) UserRegionsAssignable() bool { return f.assigned }
func (f *fakeServers) IsSingleServer() bool        { return f.single }
func (f *fakeServers) ServerCount() int            { return f.count }

func newTestEngine(servers *fakeServers) (*Engine, *transition.Table, *catalog.Catalog) {
	session := mirror.NewInMemorySession()
	table := transition.New(session, "master1")
	cat := catalog.New(session)
	pref := preferred.New(time.Hour)
	bal := balancer.New(balancer.DefaultSlop, balancer.DefaultMaxRegToClose)
	e := New(Config{
		Table:            table,
		Catalog:          cat,
		Preferred:        pref,
		Balancer:         bal,
		Servers:          servers,
		MaxAssignInOneGo: DefaultMaxAssignInOneGo,
	})
	return e, table, cat
}

func TestHandleHeartbeatAssignsUnassignedRoot(t *testing.T) {
	servers := &fakeServers{count: 1, single: true, assigned: true}
	e, _, _ := newTestEngine(servers)

	messages := e.HandleHeartbeat("server1:1", 0, balancer.Fleet{"server1:1": 0}, nil)
	if len(messages) != 1 {
		t.Fatalf("expected the root region to be assigned, got %+v", messages)
	}
	if !messages[0].Region.IsRoot() {
		t.Fatalf("expected the assigned region to be root, got %+v", messages[0].Region)
	}
}

func TestHandleHeartbeatWithholdsRootFromMetaServerWhenMultiServer(t *testing.T) {
	servers := &fakeServers{count: 2, single: false, assigned: true}
	e, _, cat := newTestEngine(servers)
	cat.PutMetaRegionOnline([]byte(""), "server1:1", regionstate.Info{TableName: regionstate.MetaTableName})

	messages := e.HandleHeartbeat("server1:1", 1, balancer.Fleet{"server1:1": 1, "server2:1": 0}, nil)
	if len(messages) != 0 {
		t.Fatalf("expected no assignment: root must go to a different server than an existing meta holder, got %+v", messages)
	}
}

func TestHandleHeartbeatAssignsUserRegionOnceUserRegionsAssignable(t *testing.T) {
	servers := &fakeServers{count: 1, single: true, assigned: true}
	e, table, cat := newTestEngine(servers)
	_ = cat.SetRootRegionLocation("server1:1")
	cat.SetNumberOfMetaRegions(0)

	info := regionstate.Info{TableName: "t1", RegionID: 1}
	if err := table.Put(regionstate.NewRecord(info, regionstate.Unassigned)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	messages := e.HandleHeartbeat("server1:1", 0, balancer.Fleet{"server1:1": 0}, nil)
	if len(messages) != 1 || messages[0].Region.RegionID != 1 {
		t.Fatalf("expected the user region assigned, got %+v", messages)
	}

	record, ok := table.Get(info.Name())
	if !ok || !record.IsPendingOpen() {
		t.Fatalf("expected region PENDING_OPEN after assignment, got ok=%v", ok)
	}
}

func TestHandleHeartbeatSkipsUserRegionsWhenNotYetAssignable(t *testing.T) {
	servers := &fakeServers{count: 1, single: true, assigned: false}
	e, table, cat := newTestEngine(servers)
	_ = cat.SetRootRegionLocation("server1:1")
	cat.SetNumberOfMetaRegions(0)

	info := regionstate.Info{TableName: "t1", RegionID: 1}
	if err := table.Put(regionstate.NewRecord(info, regionstate.Unassigned)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	messages := e.HandleHeartbeat("server1:1", 0, balancer.Fleet{"server1:1": 0}, nil)
	if len(messages) != 0 {
		t.Fatalf("expected no assignment while user regions are not yet assignable, got %+v", messages)
	}
}

func TestHandleHeartbeatRunsBalancerWhenNothingToAssign(t *testing.T) {
	servers := &fakeServers{count: 5, single: false, assigned: true}
	e, _, cat := newTestEngine(servers)
	_ = cat.SetRootRegionLocation("root:1")
	cat.SetNumberOfMetaRegions(0)

	fleet := balancer.Fleet{"s1": 10, "s2": 10, "s3": 10, "s4": 10, "s5": 20}
	mostLoaded := []regionstate.Info{
		{TableName: "t1", RegionID: 1},
		{TableName: "t1", RegionID: 2},
	}

	messages := e.HandleHeartbeat("s5", 20, fleet, mostLoaded)
	if len(messages) == 0 {
		t.Fatalf("expected the balancer to shed regions from an overloaded server")
	}
	for _, m := range messages {
		if m.Server != "s5" {
			t.Fatalf("expected close instructions targeted at s5, got %+v", m)
		}
	}
}

func TestHandleHeartbeatRespectsMaxAssignInOneGo(t *testing.T) {
	servers := &fakeServers{count: 1, single: true, assigned: true}
	session := mirror.NewInMemorySession()
	table := transition.New(session, "master1")
	cat := catalog.New(session)
	_ = cat.SetRootRegionLocation("server1:1")
	cat.SetNumberOfMetaRegions(0)

	for i := 0; i < 5; i++ {
		info := regionstate.Info{TableName: "t1", RegionID: int64(i)}
		if err := table.Put(regionstate.NewRecord(info, regionstate.Unassigned)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	e := New(Config{
		Table:            table,
		Catalog:          cat,
		Servers:          servers,
		MaxAssignInOneGo: 2,
	})

	messages := e.HandleHeartbeat("server1:1", 0, balancer.Fleet{"server1:1": 0}, nil)
	if len(messages) != 2 {
		t.Fatalf("expected assignment capped at MaxAssignInOneGo=2, got %d", len(messages))
	}
}

func TestRegionsToGiveOtherServers(t *testing.T) {
	fleet := balancer.Fleet{"self": 10, "lighter1": 2, "lighter2": 5, "heavier": 15}
	got := regionsToGiveOtherServers(100, 10, fleet, "self")
	// lighter1 can take 8, lighter2 can take 5: total 13, capped at 100? no,
	// nToAssign=100 just bounds the saturating sum, not capped below it.
	if got != 13 {
		t.Fatalf("regionsToGiveOtherServers() = %d, want 13", got)
	}
}

func TestRegionsToGiveOtherServersSaturatesAtNToAssign(t *testing.T) {
	fleet := balancer.Fleet{"self": 10, "lighter1": 0}
	got := regionsToGiveOtherServers(3, 10, fleet, "self")
	if got != 3 {
		t.Fatalf("regionsToGiveOtherServers() = %d, want saturated at nToAssign=3", got)
	}
}

func TestNextHeavierTier(t *testing.T) {
	fleet := balancer.Fleet{"self": 10, "a": 12, "b": 12, "c": 20}
	load, count, exists := nextHeavierTier(10, fleet, "self")
	if !exists || load != 12 || count != 2 {
		t.Fatalf("nextHeavierTier() = %d, %d, %v, want 12, 2, true", load, count, exists)
	}
}

func TestNextHeavierTierNoneExists(t *testing.T) {
	fleet := balancer.Fleet{"self": 10, "a": 5}
	_, _, exists := nextHeavierTier(10, fleet, "self")
	if exists {
		t.Fatalf("expected no heavier tier to exist")
	}
}

func TestHostOf(t *testing.T) {
	cases := map[string]string{
		"hostA:1234,5678": "hostA",
		"hostA:1234":      "hostA",
		"hostA":           "hostA",
	}
	for in, want := range cases {
		if got := hostOf(in); got != want {
			t.Fatalf("hostOf(%q) = %q, want %q", in, got, want)
		}
	}
}
