package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/opencab/internal/provider"
	"github.com/rs/zerolog/log"
)

var (
	ErrActionNotFound = errors.New("action not found")
	ErrBadRequest     = errors.New("bad request")
)

// providerAction drives one provider the way a driver would on the device.
type providerAction func(ctx context.Context, app *provider.App, req ActionRequest) error

var providerActions = map[string]providerAction{
	"login": func(ctx context.Context, app *provider.App, req ActionRequest) error {
		return app.Login(ctx, req.Username)
	},
	"logout": func(ctx context.Context, app *provider.App, _ ActionRequest) error {
		return app.Logout(ctx)
	},
	"switch-driver": func(ctx context.Context, app *provider.App, _ ActionRequest) error {
		return app.SwitchDriver(ctx)
	},
	"duty": func(ctx context.Context, app *provider.App, req ActionRequest) error {
		duty, err := provider.ParseDutyStatus(req.Duty)
		if err != nil {
			return err
		}
		return app.SetDutyStatus(ctx, duty)
	},
	"vehicle": func(ctx context.Context, app *provider.App, req ActionRequest) error {
		return app.SetVehicle(ctx, req.Vehicle)
	},
	"token": func(ctx context.Context, app *provider.App, req ActionRequest) error {
		mode := provider.TokenMode(strings.ToLower(strings.TrimSpace(req.TokenMode)))
		return app.SetToken(ctx, mode, req.StaticToken)
	},
	"broadcast": func(ctx context.Context, app *provider.App, req ActionRequest) error {
		if strings.TrimSpace(req.Action) == "" {
			return fmt.Errorf("%w: action is required", ErrBadRequest)
		}
		return app.Broadcast(ctx, req.Action)
	},
}

// ProviderActions lists the action names accepted by
// POST /providers/:provider/actions/:action.
func ProviderActions() []string {
	names := make([]string, 0, len(providerActions))
	for name := range providerActions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExecuteAction runs a named action against a provider and returns its state
// afterwards.
func (s *Server) ExecuteAction(ctx context.Context, identity, actionName string, req ActionRequest) (provider.State, error) {
	app, err := s.cab.Provider(identity)
	if err != nil {
		return provider.State{}, err
	}
	action, ok := providerActions[actionName]
	if !ok {
		return provider.State{}, fmt.Errorf("%w: %s", ErrActionNotFound, actionName)
	}
	if err := action(ctx, app, req); err != nil {
		log.Error().
			Str("admin", s.ID).
			Str("provider", identity).
			Str("action", actionName).
			Err(err).
			Msg("provider action failed")
		return provider.State{}, err
	}
	log.Info().
		Str("admin", s.ID).
		Str("provider", identity).
		Str("action", actionName).
		Msg("provider action executed")
	return app.State(), nil
}
