// Package host is an in-process device platform.
//
// It keeps the installed-package table, routes calls to the provider
// published under an authority, and delivers events explicitly to one
// receiver at a time. Every request, response and event is parcelled through
// the wire codec on its way across, as the platform would between processes.
package host

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/danmuck/opencab/internal/discovery"
	"github.com/danmuck/opencab/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	ErrAppExists        = errors.New("host: app already installed")
	ErrInvalidApp       = errors.New("host: invalid app")
	ErrUnknownAuthority = errors.New("host: unknown authority")
	ErrUnknownComponent = errors.New("host: unknown component")
	ErrReceiverCrashed  = errors.New("host: receiver crashed")
)

// Provider answers contract calls. *server.Server satisfies it.
type Provider interface {
	Serve(ctx context.Context, req protocol.Request) protocol.Response
}

// Receiver handles one delivered event.
type Receiver interface {
	Receive(ctx context.Context, e protocol.Event) error
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx context.Context, e protocol.Event) error

func (f ReceiverFunc) Receive(ctx context.Context, e protocol.Event) error {
	return f(ctx, e)
}

// App is one installable package. Providers are keyed by contract authority
// and Receivers by receiver name; both are published under the app identity
// as "<identity>.<name>".
type App struct {
	Identity  string
	Providers map[string]Provider
	Receivers map[string]Receiver
}

// Endpoint returns the published name of a local endpoint.
func Endpoint(identity, name string) string {
	return identity + "." + name
}

type installed struct {
	providers map[string]Provider
	receivers map[string]Receiver
}

// Device holds the installed apps of one device.
type Device struct {
	name string

	mu   sync.RWMutex
	apps map[string]installed
}

func NewDevice(name string) *Device {
	return &Device{name: name, apps: make(map[string]installed)}
}

func (d *Device) Name() string {
	return d.name
}

// Install adds app. Identities are unique per device.
func (d *Device) Install(app App) error {
	identity := strings.TrimSpace(app.Identity)
	if identity == "" || strings.HasSuffix(identity, ".") {
		return fmt.Errorf("%w: identity %q", ErrInvalidApp, app.Identity)
	}
	entry := installed{
		providers: make(map[string]Provider, len(app.Providers)),
		receivers: make(map[string]Receiver, len(app.Receivers)),
	}
	for name, p := range app.Providers {
		if p == nil || strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: %s provider %q", ErrInvalidApp, identity, name)
		}
		entry.providers[Endpoint(identity, name)] = p
	}
	for name, r := range app.Receivers {
		if r == nil || strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: %s receiver %q", ErrInvalidApp, identity, name)
		}
		entry.receivers[Endpoint(identity, name)] = r
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.apps[identity]; ok {
		return fmt.Errorf("%w: %s", ErrAppExists, identity)
	}
	d.apps[identity] = entry
	log.Debug().
		Str("device", d.name).
		Str("app", identity).
		Int("providers", len(entry.providers)).
		Int("receivers", len(entry.receivers)).
		Msg("host.Install")
	return nil
}

// Uninstall removes an app and reports whether it was installed.
func (d *Device) Uninstall(identity string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.apps[identity]; !ok {
		return false
	}
	delete(d.apps, identity)
	return true
}

// Apps returns installed identities in order.
func (d *Device) Apps() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Sorted(maps.Keys(d.apps))
}

// Directory returns a snapshot of every installed app and its published
// endpoints, ordered by identity.
func (d *Device) Directory() discovery.Directory {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dir := discovery.Directory{Packages: make([]discovery.Package, 0, len(d.apps))}
	for identity, entry := range d.apps {
		dir.Packages = append(dir.Packages, discovery.Package{
			Identity:  identity,
			Providers: slices.Sorted(maps.Keys(entry.providers)),
			Receivers: slices.Sorted(maps.Keys(entry.receivers)),
		})
	}
	slices.SortFunc(dir.Packages, func(a, b discovery.Package) int {
		return cmp.Compare(a.Identity, b.Identity)
	})
	return dir
}

// Call routes req to the provider published under authority. The returned
// error covers routing and parcelling only; contract failures are in the
// response.
func (d *Device) Call(ctx context.Context, authority string, req protocol.Request) (protocol.Response, error) {
	provider, ok := d.provider(authority)
	if !ok {
		return protocol.Response{}, fmt.Errorf("%w: %s", ErrUnknownAuthority, authority)
	}
	rawReq, err := protocol.MarshalRequest(req)
	if err != nil {
		return protocol.Response{}, err
	}
	parcelled, err := protocol.UnmarshalRequest(rawReq)
	if err != nil {
		return protocol.Response{}, err
	}

	resp := provider.Serve(ctx, parcelled)

	rawResp, err := protocol.MarshalResponse(resp)
	if err != nil {
		return protocol.Response{}, err
	}
	return protocol.UnmarshalResponse(rawResp)
}

// Deliver hands e to exactly one receiver. A crashing receiver is reported as
// ErrReceiverCrashed and does not take the device down.
func (d *Device) Deliver(ctx context.Context, target discovery.Descriptor, e protocol.Event) (err error) {
	receiver, ok := d.receiver(target)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComponent, target)
	}
	raw, err := protocol.MarshalEvent(e)
	if err != nil {
		return err
	}
	parcelled, err := protocol.UnmarshalEvent(raw)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrReceiverCrashed, target, r)
		}
	}()
	return receiver.Receive(ctx, parcelled)
}

func (d *Device) provider(authority string) (Provider, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, entry := range d.apps {
		if p, ok := entry.providers[authority]; ok {
			return p, true
		}
	}
	return nil, false
}

func (d *Device) receiver(target discovery.Descriptor) (Receiver, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.apps[target.Owner]
	if !ok {
		return nil, false
	}
	r, ok := entry.receivers[target.Endpoint]
	return r, ok
}
