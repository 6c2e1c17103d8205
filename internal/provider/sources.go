package provider

import (
	"context"
	"time"

	"github.com/danmuck/opencab/internal/contracts/hos"
	"github.com/danmuck/opencab/internal/contracts/identity"
	"github.com/danmuck/opencab/internal/contracts/vehicle"
	"github.com/danmuck/opencab/internal/version"
	"github.com/rs/zerolog/log"
)

type hosSource struct{ app *App }

func (s hosSource) Status(ctx context.Context) (*hos.Status, error) {
	settings, username := s.app.session()
	if err := wait(ctx, settings.HOSDelay); err != nil {
		return nil, err
	}
	if username == "" {
		return nil, nil
	}
	st := buildStatus(s.app.now(), settings, username)
	return &st, nil
}

func (s hosSource) TeamStatuses(context.Context) ([]hos.Status, error) {
	settings, username := s.app.session()
	if !settings.TeamDriving || username == "" {
		return nil, nil
	}
	now := s.app.now()
	out := make([]hos.Status, 0, len(settings.TeamDrivers))
	for _, member := range settings.TeamDrivers {
		out = append(out, buildStatus(now, settings, member))
	}
	return out, nil
}

func (s hosSource) StartNavigation(_ context.Context, v version.Version) (bool, error) {
	return s.setNavigating(true, v), nil
}

func (s hosSource) EndNavigation(_ context.Context, v version.Version) (bool, error) {
	return s.setNavigating(false, v), nil
}

func (s hosSource) setNavigating(on bool, v version.Version) bool {
	s.app.mu.Lock()
	s.app.navigating = on
	s.app.mu.Unlock()
	log.Debug().Msgf("provider.navigation navigating=%t version=%s", on, v)
	return true
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type identitySource struct{ app *App }

func (s identitySource) LoginCredentials(context.Context) (*identity.LoginCredentials, error) {
	settings, username := s.app.session()
	if username == "" {
		return nil, nil
	}
	return s.app.credentialsFor(settings, username)
}

func (s identitySource) AllLoginCredentials(context.Context) ([]identity.DriverSession, error) {
	settings, _ := s.app.session()
	s.app.mu.RLock()
	drivers := append([]identity.Driver(nil), s.app.drivers...)
	s.app.mu.RUnlock()

	sessions := make([]identity.DriverSession, 0, len(drivers))
	for _, d := range drivers {
		creds, err := s.app.credentialsFor(settings, d.Username)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, identity.DriverSession{Username: d.Username, Credentials: creds})
	}
	return sessions, nil
}

func (s identitySource) ActiveDrivers(context.Context) ([]identity.Driver, error) {
	s.app.mu.RLock()
	defer s.app.mu.RUnlock()
	return append([]identity.Driver(nil), s.app.drivers...), nil
}

type vehicleSource struct{ app *App }

func (s vehicleSource) VehicleInformation(context.Context) (*vehicle.Information, error) {
	s.app.mu.RLock()
	defer s.app.mu.RUnlock()
	return cloneVehicle(s.app.settings.Vehicle), nil
}
