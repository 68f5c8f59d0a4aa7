package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"regionmaster/internal/regionmsg"
	"regionmaster/internal/regionstate"
	api "regionmaster/pkg/api"
)

// Client is the region-server-side heartbeat loop's handle onto a
// RegionMaster: a thin wrapper translating this package's domain types to and from the wire
// types around a dialed connection.
type Client struct {
	conn   *grpc.ClientConn
	client api.RegionMasterClient
}

// NewClient dials target and wraps it as a Client.
func NewClient(ctx context.Context, target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithInsecure())
	}
	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, client: api.NewRegionMasterClient(conn)}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Heartbeat reports server's current load and most-loaded-regions report,
// returning the outbound instructions the master sent back.
func (c *Client) Heartbeat(ctx context.Context, server string, load int, mostLoaded []regionstate.Info) ([]regionmsg.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req := &api.HeartbeatRequest{
		Server:            server,
		Load:              int32(load),
		MostLoadedRegions: make([]*api.RegionDescriptor, 0, len(mostLoaded)),
	}
	for _, info := range mostLoaded {
		req.MostLoadedRegions = append(req.MostLoadedRegions, infoToDescriptor(info))
	}

	resp, err := c.client.Heartbeat(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make([]regionmsg.Message, 0, len(resp.Messages))
	for _, wm := range resp.Messages {
		out = append(out, regionmsg.Message{
			Type:   regionmsg.Type(wm.Type),
			Server: wm.Server,
			Region: descriptorToInfo(wm.Region),
			Reason: regionmsg.CloseReason(wm.Reason),
			Family: wm.Family,
		})
	}
	return out, nil
}
