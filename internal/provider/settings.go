package provider

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/danmuck/opencab/internal/contracts/hos"
	"github.com/danmuck/opencab/internal/contracts/vehicle"
	"github.com/danmuck/opencab/internal/version"
)

// DutyStatus is the logged-in driver's duty state.
type DutyStatus string

const (
	DutyDriving DutyStatus = "d"
	DutyOnDuty  DutyStatus = "on"
	DutyOff     DutyStatus = "off"
)

// TokenMode selects how login credentials carry a token.
type TokenMode string

const (
	TokenJWT    TokenMode = "jwt"
	TokenStatic TokenMode = "static"
)

const (
	DefaultIdentity = "com.eleostech.opencabprovider"
	CoDriver        = "OPENCAB-CO"
)

var (
	ErrInvalidSettings = errors.New("provider: invalid settings")
	ErrInvalidDuty     = errors.New("provider: invalid duty status")
	ErrNotLoggedIn     = errors.New("provider: no driver logged in")
)

// ParseDutyStatus accepts d, on or off in any case.
func ParseDutyStatus(raw string) (DutyStatus, error) {
	switch d := DutyStatus(strings.ToLower(strings.TrimSpace(raw))); d {
	case DutyDriving, DutyOnDuty, DutyOff:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDuty, raw)
	}
}

// Settings is the provider's configurable state. Runtime changes go through
// App so every change is seen by the contract sources.
type Settings struct {
	Identity string

	Duty         DutyStatus
	TeamDriving  bool
	TeamDrivers  []string
	ManageAction bool
	// ToggleLogoutAction switches the 0.3+ logout action to the external
	// browser deep link.
	ToggleLogoutAction bool
	// HOSVersions forces the served HOS versions. Empty serves all of them.
	HOSVersions []version.Version
	HOSDelay    time.Duration

	TokenMode   TokenMode
	StaticToken string
	SigningKey  []byte
	TokenTTL    time.Duration

	Vehicle *vehicle.Information
}

func DefaultSettings() Settings {
	return Settings{
		Identity:     DefaultIdentity,
		Duty:         DutyOff,
		TeamDrivers:  []string{"OPENCAB_TEAM_DRIVER_1", "OPENCAB_TEAM_DRIVER_2"},
		ManageAction: true,
		TokenMode:    TokenJWT,
		TokenTTL:     730 * time.Hour,
		Vehicle: &vehicle.Information{
			VIN:       "QWERRTYUIOP12345",
			VehicleID: "Great Vehicle ID 1",
			InGear:    true,
		},
	}
}

// Validate checks settings before an App is built from them.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Identity) == "" {
		return fmt.Errorf("%w: identity is required", ErrInvalidSettings)
	}
	if _, err := ParseDutyStatus(string(s.Duty)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	switch s.TokenMode {
	case TokenJWT:
		if s.TokenTTL <= 0 {
			return fmt.Errorf("%w: token ttl must be > 0", ErrInvalidSettings)
		}
	case TokenStatic:
	default:
		return fmt.Errorf("%w: unknown token mode %q", ErrInvalidSettings, s.TokenMode)
	}
	if s.HOSDelay < 0 {
		return fmt.Errorf("%w: hos delay must be >= 0", ErrInvalidSettings)
	}
	for i, v := range s.HOSVersions {
		if !slices.ContainsFunc(hos.Versions(), v.Equal) {
			return fmt.Errorf("%w: no hos shape for version %q", ErrInvalidSettings, v)
		}
		if slices.ContainsFunc(s.HOSVersions[:i], v.Equal) {
			return fmt.Errorf("%w: duplicate hos version %s", ErrInvalidSettings, v)
		}
	}
	if s.TeamDriving && len(s.TeamDrivers) == 0 {
		return fmt.Errorf("%w: team driving needs team drivers", ErrInvalidSettings)
	}
	return nil
}

func (s Settings) clone() Settings {
	out := s
	out.TeamDrivers = append([]string(nil), s.TeamDrivers...)
	out.HOSVersions = append([]version.Version(nil), s.HOSVersions...)
	out.SigningKey = append([]byte(nil), s.SigningKey...)
	if s.Vehicle != nil {
		out.Vehicle = cloneVehicle(s.Vehicle)
	}
	return out
}

func cloneVehicle(in *vehicle.Information) *vehicle.Information {
	if in == nil {
		return nil
	}
	v := *in
	if in.Moving != nil {
		moving := *in.Moving
		v.Moving = &moving
	}
	return &v
}
