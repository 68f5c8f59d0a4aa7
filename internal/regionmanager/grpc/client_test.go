package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"regionmaster/internal/regionmsg"
	"regionmaster/internal/regionstate"
	api "regionmaster/pkg/api"
)

func TestClientHeartbeatRoundTripsThroughRealServer(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()

	fake := &fakeHeartbeater{
		toReturn: []regionmsg.Message{
			{Type: regionmsg.RegionOpen, Server: "server1:1", Region: regionstate.Info{TableName: "t1", RegionID: 9}},
		},
	}
	grpcSrv := grpc.NewServer()
	api.RegisterRegionMasterServer(grpcSrv, NewServer(fake))
	go grpcSrv.Serve(lis)
	defer grpcSrv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	client, err := NewClient(ctx, addr, grpc.WithInsecure(), grpc.WithBlock())
	require.NoError(t, err)
	defer client.Close()

	info := regionstate.Info{TableName: "t1", RegionID: 1}
	messages, err := client.Heartbeat(context.Background(), "server1:1", 5, []regionstate.Info{info})
	require.NoError(t, err)

	require.Equal(t, "server1:1", fake.gotServer)
	require.Equal(t, 5, fake.gotLoad)
	require.Len(t, fake.gotMostLoaded, 1)
	require.Equal(t, "t1", fake.gotMostLoaded[0].TableName)

	require.Len(t, messages, 1)
	require.Equal(t, regionmsg.RegionOpen, messages[0].Type)
	require.Equal(t, int64(9), messages[0].Region.RegionID)
}

func TestClientCloseReleasesConnection(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	grpcSrv := grpc.NewServer()
	api.RegisterRegionMasterServer(grpcSrv, NewServer(&fakeHeartbeater{}))
	go grpcSrv.Serve(lis)
	defer grpcSrv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	client, err := NewClient(ctx, addr, grpc.WithInsecure(), grpc.WithBlock())
	require.NoError(t, err)
	require.NoError(t, client.Close())
}
