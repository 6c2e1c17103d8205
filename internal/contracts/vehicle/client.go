package vehicle

import (
	"context"

	"github.com/danmuck/opencab/internal/client"
	"github.com/danmuck/opencab/internal/protocol"
	"github.com/danmuck/opencab/internal/version"
)

func Branches() []client.Branch[Payload] {
	return []client.Branch[Payload]{
		{Version: V02, Decode: func(b protocol.Bundle) (Payload, error) { return DecodeV02(b) }},
		{Version: V03, Decode: func(b protocol.Bundle) (Payload, error) { return DecodeV03(b) }},
	}
}

// Client calls the vehicle information contract at one provider endpoint.
type Client struct {
	rpc *client.Client
}

// NewClient builds a client requesting maxVersion, or Latest when absent.
func NewClient(caller client.Caller, endpoint string, maxVersion version.Version) (*Client, error) {
	if maxVersion.IsZero() {
		maxVersion = Latest
	}
	rpc, err := client.New(caller, endpoint, Floor, maxVersion)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: rpc}, nil
}

func (c *Client) Endpoint() string {
	return c.rpc.Authority()
}

func (c *Client) GetVehicleInformation(ctx context.Context) (Payload, error) {
	p, _, err := client.Fetch(ctx, c.rpc, MethodGetVehicleInformation, protocol.Bundle{}, Branches()...)
	return p, err
}
