package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

// serveConfig is the daemon config for `cabctl serve`. The cab itself is
// described by the manifest it points at.
type serveConfig struct {
	ID          string
	Addr        string
	Manifest    string
	CorsOrigins []string
	RPS         float64
	Burst       int
	Token       string
	LogLevel    zerolog.Level
}

type fileConfig struct {
	ID          string   `toml:"id"`
	Addr        string   `toml:"addr"`
	Manifest    string   `toml:"manifest"`
	CorsOrigins []string `toml:"cors_origins"`
	RPS         float64  `toml:"rps"`
	Burst       int      `toml:"burst"`
	Token       string   `toml:"admin_token"`
	LogLevel    string   `toml:"log_level"`
}

func defaultServeConfig() serveConfig {
	return serveConfig{
		ID:       "cabctl",
		Addr:     defaultAddr,
		Manifest: "cmd/cabctl/cab.toml",
		RPS:      20,
		Burst:    40,
		LogLevel: zerolog.InfoLevel,
	}
}

func loadServeConfig(path string) (serveConfig, error) {
	cfg := defaultServeConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serveConfig{}, fmt.Errorf("load cabctl config: %w", err)
	}

	if meta.IsDefined("id") {
		if id := strings.TrimSpace(raw.ID); id != "" {
			cfg.ID = id
		}
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("manifest") {
		cfg.Manifest = strings.TrimSpace(raw.Manifest)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}
	if meta.IsDefined("rps") {
		cfg.RPS = raw.RPS
	}
	if meta.IsDefined("burst") {
		cfg.Burst = raw.Burst
	}
	if meta.IsDefined("admin_token") {
		cfg.Token = strings.TrimSpace(raw.Token)
	}
	if meta.IsDefined("log_level") {
		level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw.LogLevel)))
		if err != nil {
			return serveConfig{}, fmt.Errorf("parse log_level: %w", err)
		}
		cfg.LogLevel = level
	}

	if cfg.Addr == "" {
		return serveConfig{}, fmt.Errorf("cabctl config: addr is required")
	}
	if cfg.Manifest == "" {
		return serveConfig{}, fmt.Errorf("cabctl config: manifest is required")
	}
	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
