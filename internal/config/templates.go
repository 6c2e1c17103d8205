package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(format Format) (string, error) {
	switch Format(strings.ToLower(strings.TrimSpace(string(format)))) {
	case FormatTOML:
		return tomlTemplate, nil
	case FormatYAML:
		return yamlTemplate, nil
	default:
		return "", fmt.Errorf("unknown manifest format: %s", format)
	}
}

// WriteTemplate writes the sample manifest in the format implied by path.
func WriteTemplate(path string, overwrite bool) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}
	template, err := Template(format)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const tomlTemplate = `name = "cab-1"
parallelism = 4

[[providers]]
identity = "com.eleostech.opencabprovider"
login = "driver1"
duty = "off"
team_driving = false
manage_action = true
hos_versions = ["0.2", "0.3", "0.4"]
token_mode = "jwt"
token_ttl = "730h"

[providers.vehicle]
vin = "QWERRTYUIOP12345"
vehicle_id = "Great Vehicle ID 1"
in_gear = true

[[providers]]
identity = "com.vendor.legacy"
hos_versions = ["0.2"]
token_mode = "static"
static_token = "legacy-token"

[[consumers]]
identity = "com.eleostech.exampleconsumer"
hos_version = "0.4"
identity_version = "0.3"
vehicle_version = "0.3"
`

const yamlTemplate = `name: cab-1
parallelism: 4
providers:
  - identity: com.eleostech.opencabprovider
    login: driver1
    duty: "off"
    manage_action: true
    hos_versions: ["0.2", "0.3", "0.4"]
    token_mode: jwt
    token_ttl: 730h
    vehicle:
      vin: QWERRTYUIOP12345
      vehicle_id: Great Vehicle ID 1
      in_gear: true
  - identity: com.vendor.legacy
    hos_versions: ["0.2"]
    token_mode: static
    static_token: legacy-token
consumers:
  - identity: com.eleostech.exampleconsumer
    hos_version: "0.4"
    identity_version: "0.3"
    vehicle_version: "0.3"
`
