package hos

import (
	"context"
	"fmt"

	"github.com/danmuck/opencab/internal/client"
	"github.com/danmuck/opencab/internal/protocol"
	"github.com/danmuck/opencab/internal/version"
)

// Branches decodes every getHOS shape this package knows.
func Branches() []client.Branch[Payload] {
	return []client.Branch[Payload]{
		{Version: V02, Decode: func(b protocol.Bundle) (Payload, error) { return DecodeV02(b) }},
		{Version: V03, Decode: func(b protocol.Bundle) (Payload, error) { return DecodeV03(b) }},
		{Version: V04, Decode: func(b protocol.Bundle) (Payload, error) { return DecodeV04(b) }},
	}
}

// Decode decodes a getHOS reply by its served version.
func Decode(reply client.Reply) (Payload, error) {
	return client.Decode(reply, Branches()...)
}

// Client calls the HOS contract at one provider endpoint.
type Client struct {
	rpc *client.Client
}

// NewClient builds a client requesting maxVersion, or Latest when maxVersion is absent.
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

func (c *Client) GetHOS(ctx context.Context) (Payload, error) {
	p, _, err := client.Fetch(ctx, c.rpc, MethodGetHOS, protocol.Bundle{}, Branches()...)
	return p, err
}

// GetHOSAsync runs GetHOS on its own goroutine.
func (c *Client) GetHOSAsync(ctx context.Context) <-chan StatusResult {
	out := make(chan StatusResult, 1)
	go func() {
		p, err := c.GetHOS(ctx)
		out <- StatusResult{Payload: p, Err: err}
	}()
	return out
}

type StatusResult struct {
	Payload Payload
	Err     error
}

func (c *Client) StartNavigation(ctx context.Context) (bool, error) {
	return c.navigation(ctx, MethodStartNavigation)
}

func (c *Client) EndNavigation(ctx context.Context) (bool, error) {
	return c.navigation(ctx, MethodEndNavigation)
}

func (c *Client) navigation(ctx context.Context, method string) (bool, error) {
	branches := make([]client.Branch[bool], 0, len(Versions()))
	for _, v := range Versions() {
		branches = append(branches, client.Branch[bool]{Version: v, Decode: decodeNavigation})
	}
	ok, _, err := client.Fetch(ctx, c.rpc, method, protocol.Bundle{}, branches...)
	return ok, err
}

func decodeNavigation(b protocol.Bundle) (bool, error) {
	v, ok, err := b.GetBool(KeyNavigationResult)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if !ok {
		return false, fmt.Errorf("%w: missing %s", ErrMalformedPayload, KeyNavigationResult)
	}
	return v, nil
}
