package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Manifest describes one simulated cab device and the apps installed on it.
type Manifest struct {
	Name        string           `toml:"name" yaml:"name"`
	Parallelism int              `toml:"parallelism" yaml:"parallelism"`
	Providers   []ProviderConfig `toml:"providers" yaml:"providers"`
	Consumers   []ConsumerConfig `toml:"consumers" yaml:"consumers"`
}

type ProviderConfig struct {
	Identity           string         `toml:"identity" yaml:"identity"`
	Login              string         `toml:"login" yaml:"login"`
	Duty               string         `toml:"duty" yaml:"duty"`
	TeamDriving        bool           `toml:"team_driving" yaml:"team_driving"`
	TeamDrivers        []string       `toml:"team_drivers" yaml:"team_drivers"`
	ManageAction       *bool          `toml:"manage_action" yaml:"manage_action"`
	ToggleLogoutAction bool           `toml:"toggle_logout_action" yaml:"toggle_logout_action"`
	HOSVersions        []string       `toml:"hos_versions" yaml:"hos_versions"`
	HOSDelay           string         `toml:"hos_delay" yaml:"hos_delay"`
	TokenMode          string         `toml:"token_mode" yaml:"token_mode"`
	StaticToken        string         `toml:"static_token" yaml:"static_token"`
	SigningKey         string         `toml:"signing_key" yaml:"signing_key"`
	TokenTTL           string         `toml:"token_ttl" yaml:"token_ttl"`
	Vehicle            *VehicleConfig `toml:"vehicle" yaml:"vehicle"`
}

type VehicleConfig struct {
	VIN       string `toml:"vin" yaml:"vin"`
	VehicleID string `toml:"vehicle_id" yaml:"vehicle_id"`
	InGear    bool   `toml:"in_gear" yaml:"in_gear"`
	Moving    *bool  `toml:"moving" yaml:"moving"`
}

type ConsumerConfig struct {
	Identity        string `toml:"identity" yaml:"identity"`
	HOSVersion      string `toml:"hos_version" yaml:"hos_version"`
	IdentityVersion string `toml:"identity_version" yaml:"identity_version"`
	VehicleVersion  string `toml:"vehicle_version" yaml:"vehicle_version"`
	Parallelism     int    `toml:"parallelism" yaml:"parallelism"`
	LogLimit        int    `toml:"log_limit" yaml:"log_limit"`
}

// Format is a manifest encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatFor picks the encoding from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported manifest extension: %s", path)
	}
}

func LoadManifest(path string) (Manifest, error) {
	format, err := FormatFor(path)
	if err != nil {
		return Manifest{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	m, err := ParseManifest(data, format)
	if err != nil {
		return Manifest{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return m, nil
}

// ParseManifest decodes, applies defaults and validates.
func ParseManifest(data []byte, format Format) (Manifest, error) {
	var m Manifest
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &m); err != nil {
			return Manifest{}, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return Manifest{}, err
		}
	default:
		return Manifest{}, fmt.Errorf("unknown manifest format: %s", format)
	}
	if m.Name == "" {
		m.Name = "cab"
	}
	if m.Parallelism == 0 {
		m.Parallelism = 1
	}
	if err := ValidateManifest(m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func ValidateManifest(m Manifest) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("manifest missing name")
	}
	if m.Parallelism < 0 {
		return fmt.Errorf("manifest parallelism must be >= 0")
	}
	seen := make(map[string]struct{})
	claim := func(identity string) error {
		if _, dup := seen[identity]; dup {
			return fmt.Errorf("duplicate identity %q", identity)
		}
		seen[identity] = struct{}{}
		return nil
	}
	for i, p := range m.Providers {
		if err := ValidateProvider(p); err != nil {
			return fmt.Errorf("provider[%d] invalid: %w", i, err)
		}
		if err := claim(p.Identity); err != nil {
			return fmt.Errorf("provider[%d] invalid: %w", i, err)
		}
	}
	for i, c := range m.Consumers {
		if err := ValidateConsumer(c); err != nil {
			return fmt.Errorf("consumer[%d] invalid: %w", i, err)
		}
		if err := claim(c.Identity); err != nil {
			return fmt.Errorf("consumer[%d] invalid: %w", i, err)
		}
	}
	return nil
}

func ValidateProvider(p ProviderConfig) error {
	if strings.TrimSpace(p.Identity) == "" {
		return fmt.Errorf("identity is required")
	}
	_, err := ProviderSettings(p)
	return err
}

func ValidateConsumer(c ConsumerConfig) error {
	if strings.TrimSpace(c.Identity) == "" {
		return fmt.Errorf("identity is required")
	}
	_, err := ConsumerSettings(c)
	return err
}
