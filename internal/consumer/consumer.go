// Package consumer is the sample consumer application. It registers the two
// standard receivers, keeps a log of the events they see, and queries every
// installed provider of a contract in one pass.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/opencab/internal/broadcast"
	"github.com/danmuck/opencab/internal/client"
	"github.com/danmuck/opencab/internal/contracts/hos"
	"github.com/danmuck/opencab/internal/contracts/identity"
	"github.com/danmuck/opencab/internal/contracts/vehicle"
	"github.com/danmuck/opencab/internal/host"
	"github.com/danmuck/opencab/internal/protocol"
	"github.com/danmuck/opencab/internal/version"
	"github.com/rs/zerolog/log"
)

const DefaultIdentity = "com.eleostech.exampleconsumer"

var ErrInvalidSettings = errors.New("consumer: invalid settings")

// Device is what the consumer needs from the host: calls and a directory.
type Device interface {
	client.Caller
	broadcast.DirectorySource
}

// Settings pins the highest version requested per contract.
type Settings struct {
	Identity        string
	HOSVersion      version.Version
	IdentityVersion version.Version
	VehicleVersion  version.Version
	// Parallelism bounds concurrent provider calls; 1 or less is sequential.
	Parallelism int
	// LogLimit caps the event log; 0 keeps DefaultLogLimit entries.
	LogLimit int
}

func DefaultSettings() Settings {
	return Settings{
		Identity:        DefaultIdentity,
		HOSVersion:      hos.Latest,
		IdentityVersion: identity.Latest,
		VehicleVersion:  vehicle.Latest,
		Parallelism:     4,
		LogLimit:        DefaultLogLimit,
	}
}

func (s Settings) Validate() error {
	if strings.TrimSpace(s.Identity) == "" {
		return fmt.Errorf("%w: identity is required", ErrInvalidSettings)
	}
	for _, c := range []struct {
		name  string
		v     version.Version
		floor version.Version
	}{
		{"hos", s.HOSVersion, hos.Floor},
		{"identity", s.IdentityVersion, identity.Floor},
		{"vehicle", s.VehicleVersion, vehicle.Floor},
	} {
		if c.v.IsZero() || c.v.Less(c.floor) {
			return fmt.Errorf("%w: %s version %q below floor %s", ErrInvalidSettings, c.name, c.v, c.floor)
		}
	}
	if s.LogLimit < 0 {
		return fmt.Errorf("%w: log limit must be >= 0", ErrInvalidSettings)
	}
	return nil
}

type Option func(*App)

func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}

type App struct {
	settings Settings
	device   Device
	events   *EventLog
	now      func() time.Time

	mu         sync.RWMutex
	vehicles   []Result[vehicle.Payload]
	vehicleGen uint64
	refreshGen uint64
	refreshes  sync.WaitGroup
}

func New(settings Settings, device Device, opts ...Option) (*App, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if device == nil {
		return nil, fmt.Errorf("%w: device is required", ErrInvalidSettings)
	}
	a := &App{
		settings: settings,
		device:   device,
		events:   NewEventLog(settings.LogLimit),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *App) Identity() string {
	return a.settings.Identity
}

func (a *App) Events() *EventLog {
	return a.events
}

// HostApp publishes the identity and vehicle receivers.
func (a *App) HostApp() host.App {
	return host.App{
		Identity: a.settings.Identity,
		Receivers: map[string]host.Receiver{
			broadcast.ReceiverIdentityChanged:           host.ReceiverFunc(a.onIdentityChanged),
			broadcast.ReceiverVehicleInformationChanged: host.ReceiverFunc(a.onVehicleChanged),
		},
	}
}

func (a *App) onIdentityChanged(_ context.Context, e protocol.Event) error {
	a.record(broadcast.ReceiverIdentityChanged, e)
	return nil
}

// onVehicleChanged records the event and refreshes vehicle information on
// its own goroutine, so delivery returns before any provider is called.
func (a *App) onVehicleChanged(ctx context.Context, e protocol.Event) error {
	a.record(broadcast.ReceiverVehicleInformationChanged, e)
	ctx = context.WithoutCancel(ctx)
	a.refreshes.Add(1)
	go func() {
		defer a.refreshes.Done()
		a.RefreshVehicles(ctx)
	}()
	return nil
}

// Wait blocks until every background vehicle refresh has finished.
func (a *App) Wait() {
	a.refreshes.Wait()
}

func (a *App) record(receiver string, e protocol.Event) {
	a.events.Add(Entry{
		At:       a.now(),
		Receiver: receiver,
		Action:   e.Action,
		EventID:  e.ID,
	})
	log.Info().Msgf("consumer.receive identity=%s receiver=%s action=%s", a.settings.Identity, receiver, e.Action)
}

// RefreshVehicles re-reads vehicle information and keeps it as the latest
// snapshot.
// A refresh that finishes after a newer one started is not stored.
func (a *App) RefreshVehicles(ctx context.Context) []Result[vehicle.Payload] {
	a.mu.Lock()
	a.refreshGen++
	gen := a.refreshGen
	a.mu.Unlock()

	results := a.VehicleInformation(ctx)
	a.mu.Lock()
	if gen > a.vehicleGen {
		a.vehicles = results
		a.vehicleGen = gen
	}
	a.mu.Unlock()
	return results
}

// Vehicles returns the latest refreshed snapshot.
func (a *App) Vehicles() []Result[vehicle.Payload] {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Result[vehicle.Payload](nil), a.vehicles...)
}

func (a *App) HOS(ctx context.Context) []Result[hos.Payload] {
	return CallAll(ctx, a.device, hos.Authority, a.settings.Parallelism,
		func(ctx context.Context, endpoint string) (hos.Payload, error) {
			c, err := hos.NewClient(a.device, endpoint, a.settings.HOSVersion)
			if err != nil {
				return nil, err
			}
			return c.GetHOS(ctx)
		})
}

func (a *App) LoginCredentials(ctx context.Context) []Result[identity.CredentialsPayload] {
	return CallAll(ctx, a.device, identity.Authority, a.settings.Parallelism,
		func(ctx context.Context, endpoint string) (identity.CredentialsPayload, error) {
			c, err := identity.NewClient(a.device, endpoint, a.settings.IdentityVersion)
			if err != nil {
				return nil, err
			}
			return c.GetLoginCredentials(ctx)
		})
}

func (a *App) ActiveDrivers(ctx context.Context) []Result[[]identity.Driver] {
	return CallAll(ctx, a.device, identity.Authority, a.settings.Parallelism,
		func(ctx context.Context, endpoint string) ([]identity.Driver, error) {
			c, err := identity.NewClient(a.device, endpoint, a.settings.IdentityVersion)
			if err != nil {
				return nil, err
			}
			return c.GetActiveDrivers(ctx)
		})
}

func (a *App) VehicleInformation(ctx context.Context) []Result[vehicle.Payload] {
	return CallAll(ctx, a.device, vehicle.Authority, a.settings.Parallelism,
		func(ctx context.Context, endpoint string) (vehicle.Payload, error) {
			c, err := vehicle.NewClient(a.device, endpoint, a.settings.VehicleVersion)
			if err != nil {
				return nil, err
			}
			return c.GetVehicleInformation(ctx)
		})
}
