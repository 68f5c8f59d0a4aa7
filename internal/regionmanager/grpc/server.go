// Package grpc adapts the Region Manager to the hand-rolled RegionMaster
// gRPC service (pkg/api), translating between the wire types and the
// manager's own regionstate/regionmsg vocabulary.
package grpc

import (
	"context"

	"regionmaster/internal/regionmsg"
	"regionmaster/internal/regionstate"
	api "regionmaster/pkg/api"
)

// Heartbeater is the slice of *regionmanager.Manager this adapter depends
// on, kept narrow so tests can supply a fake.
type Heartbeater interface {
	HandleHeartbeat(server string, load int, mostLoaded []regionstate.Info) []regionmsg.Message
}

// Server implements api.RegionMasterServer over a Heartbeater.
type Server struct {
	api.UnimplementedRegionMasterServer
	manager Heartbeater
}

// NewServer wraps manager as a gRPC RegionMasterServer.
func NewServer(manager Heartbeater) *Server {
	return &Server{manager: manager}
}

func (s *Server) Heartbeat(ctx context.Context, req *api.HeartbeatRequest) (*api.HeartbeatResponse, error) {
	mostLoaded := make([]regionstate.Info, 0, len(req.MostLoadedRegions))
	for _, d := range req.MostLoadedRegions {
		mostLoaded = append(mostLoaded, descriptorToInfo(d))
	}

	messages := s.manager.HandleHeartbeat(req.Server, int(req.Load), mostLoaded)

	resp := &api.HeartbeatResponse{Messages: make([]*api.OutboundMessage, 0, len(messages))}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, messageToWire(m))
	}
	return resp, nil
}

func descriptorToInfo(d *api.RegionDescriptor) regionstate.Info {
	if d == nil {
		return regionstate.Info{}
	}
	return regionstate.Info{
		TableName: d.TableName,
		StartKey:  d.StartKey,
		EndKey:    d.EndKey,
		RegionID:  d.RegionId,
	}
}

func infoToDescriptor(i regionstate.Info) *api.RegionDescriptor {
	return &api.RegionDescriptor{
		TableName: i.TableName,
		StartKey:  i.StartKey,
		EndKey:    i.EndKey,
		RegionId:  i.RegionID,
	}
}

func messageToWire(m regionmsg.Message) *api.OutboundMessage {
	return &api.OutboundMessage{
		Type:   int32(m.Type),
		Server: m.Server,
		Region: infoToDescriptor(m.Region),
		Reason: string(m.Reason),
		Family: m.Family,
	}
}
