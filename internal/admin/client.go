package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danmuck/opencab/internal/discovery"
	"github.com/danmuck/opencab/internal/provider"
)

// Client talks JSON to a running admin server.
type Client struct {
	base  string
	token string
	http  *http.Client
}

func NewClient(addr string) *Client {
	base := strings.TrimRight(strings.TrimSpace(addr), "/")
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{base: base, http: &http.Client{Timeout: 10 * time.Second}}
}

// WithToken sets the bearer token sent with every request.
func (c *Client) WithToken(token string) *Client {
	c.token = strings.TrimSpace(token)
	return c
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) Directory(ctx context.Context) (discovery.Directory, error) {
	var out discovery.Directory
	err := c.do(ctx, http.MethodGet, "/directory", nil, &out)
	return out, err
}

func (c *Client) Discover(ctx context.Context, kind string, patterns ...string) ([]discovery.Descriptor, error) {
	q := url.Values{}
	q.Set("kind", kind)
	for _, p := range patterns {
		q.Add("pattern", p)
	}
	var out struct {
		Descriptors []discovery.Descriptor `json:"descriptors"`
	}
	err := c.do(ctx, http.MethodGet, "/discover?"+q.Encode(), nil, &out)
	return out.Descriptors, err
}

// Call sends a raw contract call. Contract failures come back in
// CallResponse.Error, not as an error.
func (c *Client) Call(ctx context.Context, req CallRequest) (CallResponse, error) {
	var out CallResponse
	err := c.do(ctx, http.MethodPost, "/call", req, &out)
	return out, err
}

func (c *Client) Broadcast(ctx context.Context, action string) (string, error) {
	var out struct {
		EventID string `json:"event_id"`
	}
	err := c.do(ctx, http.MethodPost, "/broadcast", BroadcastRequest{Action: action}, &out)
	return out.EventID, err
}

func (c *Client) ProviderState(ctx context.Context, identity string) (provider.State, error) {
	var out provider.State
	err := c.do(ctx, http.MethodGet, "/providers/"+url.PathEscape(identity), nil, &out)
	return out, err
}

func (c *Client) Action(ctx context.Context, identity, action string, req ActionRequest) (provider.State, error) {
	var out struct {
		State provider.State `json:"state"`
	}
	path := "/providers/" + url.PathEscape(identity) + "/actions/" + url.PathEscape(action)
	err := c.do(ctx, http.MethodPost, path, req, &out)
	return out.State, err
}

// ConsumerView fetches one consumer view (hos, credentials, drivers,
// vehicles, events) as raw JSON.
func (c *Client) ConsumerView(ctx context.Context, identity, view string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodGet, "/consumers/"+url.PathEscape(identity)+"/"+url.PathEscape(view), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.base == "" {
		return fmt.Errorf("admin: addr required")
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e errorBody
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("admin: %s %s: %d %s", method, path, resp.StatusCode, e.Error)
		}
		return fmt.Errorf("admin: %s %s: %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
