package identity

import (
	"context"

	"github.com/danmuck/opencab/internal/client"
	"github.com/danmuck/opencab/internal/protocol"
	"github.com/danmuck/opencab/internal/version"
)

func CredentialsBranches() []client.Branch[CredentialsPayload] {
	return []client.Branch[CredentialsPayload]{
		{Version: V02, Decode: func(b protocol.Bundle) (CredentialsPayload, error) { return DecodeCredentialsV02(b) }},
		{Version: V03, Decode: func(b protocol.Bundle) (CredentialsPayload, error) { return DecodeCredentialsV03(b) }},
	}
}

func DriversBranches() []client.Branch[[]Driver] {
	return []client.Branch[[]Driver]{
		{Version: V02, Decode: DecodeDrivers},
		{Version: V03, Decode: DecodeDrivers},
	}
}

// Client calls the identity contract at one provider endpoint.
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

func (c *Client) GetLoginCredentials(ctx context.Context) (CredentialsPayload, error) {
	p, _, err := client.Fetch(ctx, c.rpc, MethodGetLoginCredentials, protocol.Bundle{}, CredentialsBranches()...)
	return p, err
}

func (c *Client) GetActiveDrivers(ctx context.Context) ([]Driver, error) {
	drivers, _, err := client.Fetch(ctx, c.rpc, MethodGetActiveDrivers, protocol.Bundle{}, DriversBranches()...)
	return drivers, err
}
