package regionmanager

import (
	"context"
	"testing"
	"time"

	"regionmaster/internal/regionmsg"
	"regionmaster/internal/regionstate"
)

func TestNewFillsDefaults(t *testing.T) {
	m := New(Config{Self: "master1"})
	if m == nil {
		t.Fatalf("New returned nil")
	}
	if m.cfg.MaxAssignInOneGo == 0 {
		t.Fatalf("expected a default MaxAssignInOneGo to be filled in")
	}
}

func TestHandleHeartbeatBootstrapsRootThenUserRegions(t *testing.T) {
	m := New(Config{Self: "master1"})
	m.SetUserRegionsAssignable(true)

	messages := m.HandleHeartbeat("server1:1", 0, nil)
	if len(messages) != 1 || !messages[0].Region.IsRoot() {
		t.Fatalf("expected the root region assigned on first heartbeat, got %+v", messages)
	}

	if err := m.SetRootRegionLocation("server1:1"); err != nil {
		t.Fatalf("SetRootRegionLocation: %v", err)
	}

	info := regionstate.Info{TableName: "t1", RegionID: 1}
	if err := m.Table().Put(regionstate.NewRecord(info, regionstate.Unassigned)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	messages = m.HandleHeartbeat("server1:1", 0, nil)
	if len(messages) != 1 || messages[0].Region.RegionID != 1 {
		t.Fatalf("expected the user region assigned, got %+v", messages)
	}
}

func TestHandleHeartbeatDrainsScheduledActions(t *testing.T) {
	m := New(Config{Self: "master1"})
	m.SetUserRegionsAssignable(true)
	_ = m.SetRootRegionLocation("server1:1")

	info := regionstate.Info{TableName: "t1", RegionID: 1}
	m.ScheduleSplit(info, "server1:1")
	m.ScheduleColumnFamilyCompact(info, "cf1", "server1:1")

	messages := m.HandleHeartbeat("server1:1", 0, nil)

	var sawSplit, sawCFCompact bool
	for _, msg := range messages {
		if msg.Type == regionmsg.RegionSplit {
			sawSplit = true
		}
		if msg.Type == regionmsg.ColumnFamilyCompact && msg.Family == "cf1" {
			sawCFCompact = true
		}
	}
	if !sawSplit {
		t.Fatalf("expected a drained split action, got %+v", messages)
	}
	if !sawCFCompact {
		t.Fatalf("expected a drained CF compact action, got %+v", messages)
	}
}

func TestRemoveServerOfflinesItsMetaRegions(t *testing.T) {
	m := New(Config{Self: "master1"})
	_ = m.SetRootRegionLocation("server1:1")
	m.Catalog().PutMetaRegionOnline([]byte(""), "server1:1", regionstate.Info{TableName: regionstate.MetaTableName})

	offlined := m.RemoveServer("server1:1")
	if len(offlined) != 1 {
		t.Fatalf("expected 1 offlined meta region, got %d", len(offlined))
	}
	if m.Catalog().RootRegionLocation() != "" {
		t.Fatalf("expected root location cleared once its server was removed")
	}
}

func TestNotifyRegionOpenedAndClosed(t *testing.T) {
	m := New(Config{Self: "master1"})
	info := regionstate.Info{TableName: "t1", RegionID: 1}
	record := regionstate.NewRecord(info, regionstate.PendingOpen)
	if err := m.Table().Put(record); err != nil {
		t.Fatalf("Put: %v", err)
	}

	m.NotifyRegionOpened(record)
	if !record.IsOpen() {
		t.Fatalf("expected region OPEN after NotifyRegionOpened")
	}

	record.SetClosing("server1:1", false)
	record.SetPendingClose()
	if err := m.NotifyRegionClosed(record); err != nil {
		t.Fatalf("NotifyRegionClosed: %v", err)
	}
	if !record.IsClosed() {
		t.Fatalf("expected region CLOSED after NotifyRegionClosed")
	}
}

func TestReassignRootRegionResetsToUnassigned(t *testing.T) {
	m := New(Config{Self: "master1"})
	if err := m.SetRootRegionLocation("server1:1"); err != nil {
		t.Fatalf("SetRootRegionLocation: %v", err)
	}

	m.ReassignRootRegion()
	if m.Catalog().RootRegionLocation() != "" {
		t.Fatalf("expected root location cleared")
	}
	record, ok := m.Table().Get(regionstate.RootRegionInfo.Name())
	if !ok || !record.IsUnassigned() {
		t.Fatalf("expected root region UNASSIGNED after reassignment, ok=%v", ok)
	}
}

func TestAddRegionServerForRestartGrantsPreferredAssignment(t *testing.T) {
	m := New(Config{Self: "master1"})
	info := regionstate.Info{TableName: "t1", RegionID: 1}
	m.AddRegionServerForRestart("server1:1", []regionstate.Info{info})

	if !m.HasPreferredAssignment("server1:1") {
		t.Fatalf("expected server1:1 to hold a preferred assignment after restart registration")
	}
}

func TestStartAndStopLifecycle(t *testing.T) {
	m := New(Config{Self: "master1", ScanInterval: 10 * time.Millisecond})
	ctx := context.Background()
	m.Start(ctx)

	done := make(chan error, 1)
	go func() { done <- m.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return: scanner goroutines may not have exited")
	}
}

func TestStatsReflectsFleetAndQueues(t *testing.T) {
	m := New(Config{Self: "master1"})
	m.HandleHeartbeat("server1:1", 3, nil)
	m.ScheduleFlush(regionstate.Info{TableName: "t1", RegionID: 1}, "server1:1")

	stats := m.Stats()
	if stats.ServerCount != 1 {
		t.Fatalf("Stats().ServerCount = %d, want 1", stats.ServerCount)
	}
	if stats.TotalLoad != 3 {
		t.Fatalf("Stats().TotalLoad = %d, want 3", stats.TotalLoad)
	}
	if stats.FlushQueueLen != 1 {
		t.Fatalf("Stats().FlushQueueLen = %d, want 1", stats.FlushQueueLen)
	}
}
