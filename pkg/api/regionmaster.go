package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// --- Region Manager heartbeat service placeholders ---
//
// Hand-rolled: no .proto file, plain structs for the wire types, a manually built grpc.ServiceDesc
// for the server side, and a thin generated-client-shaped wrapper around
// grpc.ClientConnInterface for the client side.

// RegionDescriptor mirrors internal/regionstate.Info on the wire.
type RegionDescriptor struct {
	TableName string
	StartKey  []byte
	EndKey    []byte
	RegionId  int64
}

// HeartbeatRequest carries the reporting region server's identity, current
// load, and most-loaded-regions report.
type HeartbeatRequest struct {
	Server            string
	Load              int32
	MostLoadedRegions []*RegionDescriptor
}

// OutboundMessage mirrors internal/regionmsg.Message on the wire. Type
// follows the same numbering as regionmsg.Type.
type OutboundMessage struct {
	Type   int32
	Server string
	Region *RegionDescriptor
	Reason string
	Family string
}

// HeartbeatResponse carries the outbound instruction list for the
// reporting server.
type HeartbeatResponse struct {
	Messages []*OutboundMessage
}

// RegionMasterServer is implemented by the Region Manager's gRPC adapter.
type RegionMasterServer interface {
	Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error)
}

type UnimplementedRegionMasterServer struct{}

func (UnimplementedRegionMasterServer) Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error) {
	return nil, fmt.Errorf("not implemented")
}

type regionMasterServerWrapper interface {
	RegionMasterServer
}

var regionMasterServiceDesc = grpc.ServiceDesc{
	ServiceName: "regionmaster.api.RegionMaster",
	HandlerType: (*regionMasterServerWrapper)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Heartbeat", Handler: _RegionMaster_Heartbeat_Handler},
	},
}

func RegisterRegionMasterServer(s *grpc.Server, srv RegionMasterServer) {
	s.RegisterService(&regionMasterServiceDesc, srv)
}

func _RegionMaster_Heartbeat_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(HeartbeatRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RegionMasterServer).Heartbeat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/regionmaster.api.RegionMaster/Heartbeat"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RegionMasterServer).Heartbeat(ctx, req.(*HeartbeatRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// RegionMasterClient is the client-side stub a region server's heartbeat
// loop dials against.
type RegionMasterClient interface {
	Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error)
}

type regionMasterClient struct {
	cc grpc.ClientConnInterface
}

// NewRegionMasterClient wraps conn as a RegionMasterClient.
func NewRegionMasterClient(conn grpc.ClientConnInterface) RegionMasterClient {
	return &regionMasterClient{cc: conn}
}

func (c *regionMasterClient) Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error) {
	out := new(HeartbeatResponse)
	if err := c.cc.Invoke(ctx, "/regionmaster.api.RegionMaster/Heartbeat", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
