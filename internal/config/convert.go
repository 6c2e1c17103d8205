package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/opencab/internal/consumer"
	"github.com/danmuck/opencab/internal/contracts/vehicle"
	"github.com/danmuck/opencab/internal/provider"
	"github.com/danmuck/opencab/internal/version"
)

// ProviderSettings overlays p on the provider defaults and validates the
// result.
func ProviderSettings(p ProviderConfig) (provider.Settings, error) {
	s := provider.DefaultSettings()
	s.Identity = strings.TrimSpace(p.Identity)
	if p.Duty != "" {
		duty, err := provider.ParseDutyStatus(p.Duty)
		if err != nil {
			return provider.Settings{}, err
		}
		s.Duty = duty
	}
	s.TeamDriving = p.TeamDriving
	if len(p.TeamDrivers) > 0 {
		s.TeamDrivers = append([]string(nil), p.TeamDrivers...)
	}
	if p.ManageAction != nil {
		s.ManageAction = *p.ManageAction
	}
	s.ToggleLogoutAction = p.ToggleLogoutAction
	if len(p.HOSVersions) > 0 {
		raw := make([]string, len(p.HOSVersions))
		for i, s := range p.HOSVersions {
			raw[i] = strings.TrimSpace(s)
		}
		versions, err := version.ParseAll(raw)
		if err != nil {
			return provider.Settings{}, fmt.Errorf("hos_versions: %w", err)
		}
		s.HOSVersions = versions
	}
	if p.HOSDelay != "" {
		d, err := time.ParseDuration(p.HOSDelay)
		if err != nil {
			return provider.Settings{}, fmt.Errorf("hos_delay: %w", err)
		}
		s.HOSDelay = d
	}
	if p.TokenMode != "" {
		s.TokenMode = provider.TokenMode(strings.ToLower(p.TokenMode))
	}
	s.StaticToken = p.StaticToken
	if p.SigningKey != "" {
		s.SigningKey = []byte(p.SigningKey)
	}
	if p.TokenTTL != "" {
		ttl, err := time.ParseDuration(p.TokenTTL)
		if err != nil {
			return provider.Settings{}, fmt.Errorf("token_ttl: %w", err)
		}
		s.TokenTTL = ttl
	}
	if p.Vehicle != nil {
		s.Vehicle = &vehicle.Information{
			VIN:       p.Vehicle.VIN,
			VehicleID: p.Vehicle.VehicleID,
			InGear:    p.Vehicle.InGear,
			Moving:    p.Vehicle.Moving,
		}
	}
	if err := s.Validate(); err != nil {
		return provider.Settings{}, err
	}
	return s, nil
}

// ConsumerSettings overlays c on the consumer defaults and validates the
// result.
func ConsumerSettings(c ConsumerConfig) (consumer.Settings, error) {
	s := consumer.DefaultSettings()
	s.Identity = strings.TrimSpace(c.Identity)
	for _, f := range []struct {
		name string
		raw  string
		out  *version.Version
	}{
		{"hos_version", c.HOSVersion, &s.HOSVersion},
		{"identity_version", c.IdentityVersion, &s.IdentityVersion},
		{"vehicle_version", c.VehicleVersion, &s.VehicleVersion},
	} {
		raw := strings.TrimSpace(f.raw)
		if raw == "" {
			continue
		}
		v, err := version.Parse(raw)
		if err != nil {
			return consumer.Settings{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.out = v
	}
	if c.Parallelism != 0 {
		s.Parallelism = c.Parallelism
	}
	if c.LogLimit != 0 {
		s.LogLimit = c.LogLimit
	}
	if err := s.Validate(); err != nil {
		return consumer.Settings{}, err
	}
	return s, nil
}
