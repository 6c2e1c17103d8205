package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/opencab/internal/admin"
	"github.com/danmuck/opencab/internal/cab"
	"github.com/danmuck/opencab/internal/config"
	"github.com/danmuck/opencab/internal/contracts/hos"
	"github.com/danmuck/opencab/internal/host"
	"github.com/danmuck/opencab/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestLoadServeConfigOverrides(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadServeConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ID != "cab.local" || cfg.Addr != "127.0.0.1:7310" || cfg.Manifest != "cab.toml" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.CorsOrigins) != 1 || cfg.RPS != 5.5 || cfg.Burst != 10 {
		t.Fatalf("unexpected limits: %+v", cfg)
	}
	if cfg.LogLevel != zerolog.DebugLevel {
		t.Fatalf("unexpected log level: %v", cfg.LogLevel)
	}
	if cfg.Token != "t0ken" {
		t.Fatalf("unexpected admin token: %q", cfg.Token)
	}
}

func TestLoadServeConfigDefaultsAndErrors(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.toml")
	writeFile(t, path, "")
	cfg, err := loadServeConfig(path)
	if err != nil {
		t.Fatalf("load empty config: %v", err)
	}
	if cfg.Addr != defaultAddr || cfg.LogLevel != zerolog.InfoLevel {
		t.Fatalf("defaults not kept: %+v", cfg)
	}

	writeFile(t, path, `log_level = "loud"`)
	if _, err := loadServeConfig(path); err == nil {
		t.Fatalf("expected log level error")
	}
	writeFile(t, path, `addr = " "`)
	if _, err := loadServeConfig(path); err == nil {
		t.Fatalf("expected addr error")
	}
	if _, err := loadServeConfig(filepath.Join(dir, "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestExampleManifestValidates(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	if err := run(context.Background(), []string{"validate", "-manifest", "cab.toml"}, &out); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out.String(), "2 providers, 1 consumers") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestInitWritesTemplate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "cab.yaml")
	var out bytes.Buffer
	if err := run(context.Background(), []string{"init", "-output", path}, &out); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := config.LoadManifest(path); err != nil {
		t.Fatalf("written manifest does not load: %v", err)
	}
	if err := run(context.Background(), []string{"init", "-output", path}, &out); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
}

func TestUnknownCommandIsUsage(t *testing.T) {
	testlog.Start(t)
	if err := run(context.Background(), nil, &bytes.Buffer{}); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if err := run(context.Background(), []string{"fly"}, &bytes.Buffer{}); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if err := run(context.Background(), []string{"discover", "-addr", "127.0.0.1:1"}, &bytes.Buffer{}); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error without pattern, got %v", err)
	}
}

func TestClientCommandsAgainstAdmin(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	m, err := config.LoadManifest("cab.toml")
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	c, err := cab.Assemble(context.Background(), m)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	ts := httptest.NewServer(admin.New("cabctl-test", ":0", c, admin.Options{}).HTTPRouter())
	defer ts.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	steps := []struct {
		args []string
		want string
	}{
		{[]string{"directory"}, "com.vendor.legacy"},
		{[]string{"discover", "-pattern", hos.Authority}, host.Endpoint("com.vendor.legacy", hos.Authority)},
		{[]string{"call", "-endpoint", host.Endpoint("com.vendor.legacy", hos.Authority), "-method", hos.MethodGetHOS, "-version", "0.4"}, `"served_version": "0.2"`},
		{[]string{"action", "-provider", "com.eleostech.opencabprovider", "-name", "duty", "-duty", "on"}, `"duty": "on"`},
		{[]string{"state", "-provider", "com.eleostech.opencabprovider"}, `"username": "driver1"`},
		{[]string{"broadcast", "-action", "com.opencabstandard.VEHICLE_INFORMATION_CHANGED"}, "event="},
		{[]string{"view", "-consumer", "com.eleostech.exampleconsumer", "-name", "events"}, "VEHICLE_INFORMATION_CHANGED"},
	}
	for _, step := range steps {
		var out bytes.Buffer
		args := append([]string{step.args[0], "-addr", ts.URL}, step.args[1:]...)
		if err := run(ctx, args, &out); err != nil {
			t.Fatalf("%s: %v", step.args[0], err)
		}
		if !strings.Contains(out.String(), step.want) {
			t.Fatalf("%s: expected %q in output:\n%s", step.args[0], step.want, out.String())
		}
	}
}
