// Package client calls a contract on a peer and decodes the reply by the
// version the server actually served.
//
// The client always requests its own maximum version. A reply served above
// that maximum is a hard error; a reply without a served version is treated as
// the contract floor. Decoding dispatches to exactly one branch per known
// version.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/opencab/internal/protocol"
	"github.com/danmuck/opencab/internal/version"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoDecodeBranch       = errors.New("client: no decode branch for served version")
	ErrAmbiguousBranch      = errors.New("client: several decode branches match served version")
	ErrInvalidClient        = errors.New("client: invalid configuration")
	ErrForwardCompatibility = protocol.ErrForwardCompatibility
)

// Caller is the host call primitive: one synchronous request to the provider
// published under authority. A returned error is a transport failure; contract
// failures travel in Response.Error.
type Caller interface {
	Call(ctx context.Context, authority string, req protocol.Request) (protocol.Response, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, authority string, req protocol.Request) (protocol.Response, error)

func (f CallerFunc) Call(ctx context.Context, authority string, req protocol.Request) (protocol.Response, error) {
	return f(ctx, authority, req)
}

// Reply is a successful response with its effective served version.
type Reply struct {
	Served  version.Version
	Payload protocol.Bundle
}

// RemoteError is a failure reported by the server in the response error field.
type RemoteError struct {
	Authority string
	Method    string
	Served    version.Version
	Message   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Authority, e.Method, e.Message)
}

// Is matches the taxonomy sentinels by message prefix, since only the text
// survives the call boundary.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case protocol.ErrUnsupportedVersion, protocol.ErrDataUnavailable, protocol.ErrUnknownMethod:
		return strings.HasPrefix(e.Message, target.Error())
	default:
		return false
	}
}

// Client calls one contract at one authority.
type Client struct {
	caller    Caller
	authority string
	floor     version.Version
	max       version.Version
}

// New builds a client that requests maxVersion and treats a missing served version
// as floor.
func New(caller Caller, authority string, floor, maxVersion version.Version) (*Client, error) {
	if caller == nil || strings.TrimSpace(authority) == "" {
		return nil, fmt.Errorf("%w: caller and authority are required", ErrInvalidClient)
	}
	if floor.IsZero() || maxVersion.IsZero() || maxVersion.Less(floor) {
		return nil, fmt.Errorf("%w: need floor <= max, got floor=%q max=%q", ErrInvalidClient, floor, maxVersion)
	}
	return &Client{caller: caller, authority: authority, floor: floor, max: maxVersion}, nil
}

func (c *Client) Authority() string {
	return c.authority
}

func (c *Client) Max() version.Version {
	return c.max
}

// Call performs one synchronous call. It blocks for as long as the provider's
// data source does; callers that must stay responsive use CallAsync.
func (c *Client) Call(ctx context.Context, method string, extras protocol.Bundle) (Reply, error) {
	req := protocol.Request{Method: method, Version: c.max, Extras: extras}
	resp, err := c.caller.Call(ctx, c.authority, req)
	if err != nil {
		log.Warn().Err(err).Str("authority", c.authority).Str("method", method).Msg("client.Call transport")
		return Reply{}, err
	}
	served := resp.ServedVersion
	if served.IsZero() {
		served = c.floor
	}
	// A version above max voids the whole response, error included.
	if served.Compare(c.max) > 0 {
		return Reply{}, fmt.Errorf("%w: %s served %s above client max %s",
			ErrForwardCompatibility, c.authority, served, c.max)
	}
	if resp.Failed() {
		return Reply{}, &RemoteError{
			Authority: c.authority,
			Method:    method,
			Served:    resp.ServedVersion,
			Message:   resp.Error,
		}
	}
	log.Debug().
		Str("authority", c.authority).
		Str("method", method).
		Str("requested", c.max.String()).
		Str("served", served.String()).
		Msg("client.Call")
	return Reply{Served: served, Payload: resp.Payload}, nil
}

// Result is delivered by CallAsync.
type Result struct {
	Reply Reply
	Err   error
}

// CallAsync runs Call on its own goroutine. The returned channel is buffered
// and receives exactly one Result; a caller that stops waiting leaks nothing.
func (c *Client) CallAsync(ctx context.Context, method string, extras protocol.Bundle) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		reply, err := c.Call(ctx, method, extras)
		out <- Result{Reply: reply, Err: err}
	}()
	return out
}

// Branch decodes the payload shape of exactly one version.
type Branch[T any] struct {
	Version version.Version
	Decode  func(protocol.Bundle) (T, error)
}

// Decode dispatches reply to the single branch equal to its served version.
func Decode[T any](reply Reply, branches ...Branch[T]) (T, error) {
	var zero T
	match := -1
	for i, b := range branches {
		if !b.Version.Equal(reply.Served) {
			continue
		}
		if match >= 0 {
			return zero, fmt.Errorf("%w: %s", ErrAmbiguousBranch, reply.Served)
		}
		match = i
	}
	if match < 0 {
		return zero, fmt.Errorf("%w: %s", ErrNoDecodeBranch, reply.Served)
	}
	return branches[match].Decode(reply.Payload)
}

// Fetch is Call followed by Decode.
func Fetch[T any](ctx context.Context, c *Client, method string, extras protocol.Bundle, branches ...Branch[T]) (T, version.Version, error) {
	var zero T
	reply, err := c.Call(ctx, method, extras)
	if err != nil {
		return zero, version.Version{}, err
	}
	out, err := Decode(reply, branches...)
	if err != nil {
		return zero, reply.Served, err
	}
	return out, reply.Served, nil
}
