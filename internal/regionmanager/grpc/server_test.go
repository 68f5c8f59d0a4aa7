package grpc

import (
	"context"
	"testing"

	"regionmaster/internal/regionmsg"
	"regionmaster/internal/regionstate"
	api "regionmaster/pkg/api"
)

type fakeHeartbeater struct {
	gotServer     string
	gotLoad       int
	gotMostLoaded []regionstate.Info
	toReturn      []regionmsg.Message
}

func (f *fakeHeartbeater) HandleHeartbeat(server string, load int, mostLoaded []regionstate.Info) []regionmsg.Message {
	f.gotServer = server
	f.gotLoad = load
	f.gotMostLoaded = mostLoaded
	return f.toReturn
}

func TestServerHeartbeatTranslatesRequestToDomainTypes(t *testing.T) {
	fake := &fakeHeartbeater{}
	s := NewServer(fake)

	req := &api.HeartbeatRequest{
		Server: "server1:1",
		Load:   7,
		MostLoadedRegions: []*api.RegionDescriptor{
			{TableName: "t1", StartKey: []byte("a"), EndKey: []byte("b"), RegionId: 1},
		},
	}
	if _, err := s.Heartbeat(context.Background(), req); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	if fake.gotServer != "server1:1" || fake.gotLoad != 7 {
		t.Fatalf("server/load not translated: got %q, %d", fake.gotServer, fake.gotLoad)
	}
	if len(fake.gotMostLoaded) != 1 || fake.gotMostLoaded[0].TableName != "t1" || fake.gotMostLoaded[0].RegionID != 1 {
		t.Fatalf("most-loaded descriptor not translated, got %+v", fake.gotMostLoaded)
	}
}

func TestServerHeartbeatTranslatesResponseToWireTypes(t *testing.T) {
	fake := &fakeHeartbeater{
		toReturn: []regionmsg.Message{
			{
				Type:   regionmsg.RegionSplit,
				Server: "server1:1",
				Region: regionstate.Info{TableName: "t1", RegionID: 2},
				Family: "",
			},
			{
				Type:   regionmsg.RegionClose,
				Server: "server1:1",
				Region: regionstate.Info{TableName: "t1", RegionID: 3},
				Reason: regionmsg.CloseReason("split"),
			},
		},
	}
	s := NewServer(fake)

	resp, err := s.Heartbeat(context.Background(), &api.HeartbeatRequest{Server: "server1:1"})
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("len(resp.Messages) = %d, want 2", len(resp.Messages))
	}
	if resp.Messages[0].Type != int32(regionmsg.RegionSplit) {
		t.Fatalf("Messages[0].Type = %d, want %d", resp.Messages[0].Type, regionmsg.RegionSplit)
	}
	if resp.Messages[0].Region.RegionId != 2 {
		t.Fatalf("Messages[0].Region.RegionId = %d, want 2", resp.Messages[0].Region.RegionId)
	}
	if resp.Messages[1].Reason != "split" {
		t.Fatalf("Messages[1].Reason = %q, want %q", resp.Messages[1].Reason, "split")
	}
}

func TestServerHeartbeatHandlesNilMostLoadedDescriptor(t *testing.T) {
	fake := &fakeHeartbeater{}
	s := NewServer(fake)

	req := &api.HeartbeatRequest{
		Server:            "server1:1",
		MostLoadedRegions: []*api.RegionDescriptor{nil},
	}
	if _, err := s.Heartbeat(context.Background(), req); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if len(fake.gotMostLoaded) != 1 || fake.gotMostLoaded[0].TableName != "" {
		t.Fatalf("expected a zero-value Info for a nil descriptor, got %+v", fake.gotMostLoaded)
	}
}
