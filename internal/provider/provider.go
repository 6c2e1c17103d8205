// Package provider is the sample provider application: it keeps the driver's
// session in memory, serves the HOS, identity and vehicle contracts from that
// state, and fans out events when the state changes.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/opencab/internal/broadcast"
	"github.com/danmuck/opencab/internal/contract"
	"github.com/danmuck/opencab/internal/contracts/hos"
	"github.com/danmuck/opencab/internal/contracts/identity"
	"github.com/danmuck/opencab/internal/contracts/vehicle"
	"github.com/danmuck/opencab/internal/host"
	"github.com/danmuck/opencab/internal/protocol"
	"github.com/danmuck/opencab/internal/server"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrInvalidUsername = errors.New("provider: invalid username")

// Broadcaster fans an event out to every matching receiver.
type Broadcaster interface {
	Broadcast(ctx context.Context, e protocol.Event) error
}

type Option func(*App)

// WithClock replaces time.Now for clock generation and token minting.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}

// State is a read-only snapshot of the session.
type State struct {
	Identity      string               `json:"identity"`
	Username      string               `json:"username,omitempty"`
	Duty          DutyStatus           `json:"duty"`
	ActiveDrivers []identity.Driver    `json:"active_drivers"`
	Navigating    bool                 `json:"navigating"`
	TeamDriving   bool                 `json:"team_driving"`
	Vehicle       *vehicle.Information `json:"vehicle,omitempty"`
}

type App struct {
	mu         sync.RWMutex
	settings   Settings
	username   string
	drivers    []identity.Driver
	navigating bool

	now func() time.Time
	bc  Broadcaster
}

func New(settings Settings, bc Broadcaster, opts ...Option) (*App, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if bc == nil {
		return nil, fmt.Errorf("%w: broadcaster is required", ErrInvalidSettings)
	}
	s := settings.clone()
	if s.TokenMode == TokenJWT && len(s.SigningKey) == 0 {
		s.SigningKey = []byte(uuid.NewString())
	}
	a := &App{settings: s, now: time.Now, bc: bc}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *App) Identity() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings.Identity
}

func (a *App) Settings() Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings.clone()
}

func (a *App) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return State{
		Identity:      a.settings.Identity,
		Username:      a.username,
		Duty:          a.settings.Duty,
		ActiveDrivers: append([]identity.Driver{}, a.drivers...),
		Navigating:    a.navigating,
		TeamDriving:   a.settings.TeamDriving,
		Vehicle:       cloneVehicle(a.settings.Vehicle),
	}
}

// HostApp builds the installable package serving all three contracts.
// HOSVersions is read here, so a changed version set needs a reinstall.
func (a *App) HostApp() (host.App, error) {
	s := a.Settings()
	hosDef, err := hos.Definition(hosSource{a}, s.HOSVersions...)
	if err != nil {
		return host.App{}, err
	}
	idDef, err := identity.Definition(identitySource{a})
	if err != nil {
		return host.App{}, err
	}
	vehicleDef, err := vehicle.Definition(vehicleSource{a})
	if err != nil {
		return host.App{}, err
	}
	defs := map[string]contract.Contract{
		hos.Authority:      hosDef,
		identity.Authority: idDef,
		vehicle.Authority:  vehicleDef,
	}
	providers := make(map[string]host.Provider, len(defs))
	for name, def := range defs {
		srv, err := server.New(def)
		if err != nil {
			return host.App{}, err
		}
		providers[name] = srv
	}
	return host.App{Identity: s.Identity, Providers: providers}, nil
}

// Login starts a session for username off duty and announces it.
func (a *App) Login(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrInvalidUsername
	}
	a.mu.Lock()
	a.username = username
	a.settings.Duty = DutyOff
	a.drivers = []identity.Driver{{Username: username}}
	a.mu.Unlock()
	log.Info().Msgf("provider.Login identity=%s username=%s", a.Identity(), username)
	return a.emit(ctx, broadcast.ActionDriverLogin)
}

// Logout clears the session and announces it.
func (a *App) Logout(ctx context.Context) error {
	a.mu.Lock()
	if a.username == "" {
		a.mu.Unlock()
		return ErrNotLoggedIn
	}
	prev := a.username
	a.username = ""
	a.drivers = nil
	a.navigating = false
	a.settings.Duty = DutyOff
	a.mu.Unlock()
	log.Info().Msgf("provider.Logout identity=%s username=%s", a.Identity(), prev)
	return a.emit(ctx, broadcast.ActionDriverLogout)
}

// SwitchDriver logs the current driver out and the co-driver in.
func (a *App) SwitchDriver(ctx context.Context) error {
	if err := a.Logout(ctx); err != nil {
		return err
	}
	return a.Login(ctx, CoDriver)
}

// SetDutyStatus changes duty for the logged-in driver. Driving duty marks the
// driver as driving in the active driver list.
func (a *App) SetDutyStatus(_ context.Context, duty DutyStatus) error {
	duty, err := ParseDutyStatus(string(duty))
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.username == "" {
		return ErrNotLoggedIn
	}
	a.settings.Duty = duty
	for i := range a.drivers {
		if a.drivers[i].Username == a.username {
			a.drivers[i].Driving = duty == DutyDriving
		}
	}
	log.Debug().Msgf("provider.SetDutyStatus username=%s duty=%s", a.username, duty)
	return nil
}

// SetVehicle replaces the vehicle information and announces the change. A nil
// info detaches the vehicle.
func (a *App) SetVehicle(ctx context.Context, info *vehicle.Information) error {
	a.mu.Lock()
	a.settings.Vehicle = cloneVehicle(info)
	a.mu.Unlock()
	return a.emit(ctx, broadcast.ActionVehicleInformationChanged)
}

// SetToken switches how credentials carry their token and announces the
// identity change.
func (a *App) SetToken(ctx context.Context, mode TokenMode, static string) error {
	a.mu.Lock()
	next := a.settings.clone()
	next.TokenMode = mode
	next.StaticToken = static
	if mode == TokenJWT && len(next.SigningKey) == 0 {
		next.SigningKey = []byte(uuid.NewString())
	}
	if err := next.Validate(); err != nil {
		a.mu.Unlock()
		return err
	}
	a.settings = next
	a.mu.Unlock()
	return a.emit(ctx, broadcast.ActionIdentityInformationChanged)
}

// Configure applies fn to a copy of the settings and keeps it when valid.
// Identity cannot change once the app exists.
func (a *App) Configure(fn func(*Settings)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.settings.clone()
	fn(&next)
	if next.Identity != a.settings.Identity {
		return fmt.Errorf("%w: identity is fixed", ErrInvalidSettings)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	a.settings = next
	return nil
}

// Broadcast sends action as-is, for manual testing of receivers.
func (a *App) Broadcast(ctx context.Context, action string) error {
	return a.emit(ctx, action)
}

func (a *App) emit(ctx context.Context, action string) error {
	e := protocol.NewEvent(action, protocol.NewBundle())
	if err := a.bc.Broadcast(ctx, e); err != nil {
		log.Warn().Err(err).Msgf("provider.emit action=%s", action)
		return err
	}
	return nil
}

func (a *App) session() (Settings, string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings.clone(), a.username
}

func (a *App) credentialsFor(s Settings, username string) (*identity.LoginCredentials, error) {
	creds := &identity.LoginCredentials{Provider: s.Identity, Authority: identity.Authority}
	switch s.TokenMode {
	case TokenJWT:
		token, err := MintToken(username, s.SigningKey, a.now(), s.TokenTTL)
		if err != nil {
			return nil, err
		}
		creds.Token = token
	default:
		creds.Token = s.StaticToken
	}
	return creds, nil
}
