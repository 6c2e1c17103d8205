// Package cab assembles a device from a manifest: one host, one broadcast
// fan-out, and the provider and consumer apps installed on it.
package cab

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/danmuck/opencab/internal/broadcast"
	"github.com/danmuck/opencab/internal/config"
	"github.com/danmuck/opencab/internal/consumer"
	"github.com/danmuck/opencab/internal/host"
	"github.com/danmuck/opencab/internal/provider"
	"github.com/rs/zerolog/log"
)

var ErrUnknownApp = errors.New("cab: unknown app")

type Cab struct {
	Device *host.Device
	Fanout *broadcast.Fanout

	providers map[string]*provider.App
	consumers map[string]*consumer.App
}

// Assemble installs every app in m. Providers with a login start logged in.
func Assemble(ctx context.Context, m config.Manifest) (*Cab, error) {
	if err := config.ValidateManifest(m); err != nil {
		return nil, err
	}
	d := host.NewDevice(m.Name)
	c := &Cab{
		Device:    d,
		Fanout:    &broadcast.Fanout{Source: d, Deliverer: d, Parallelism: m.Parallelism},
		providers: make(map[string]*provider.App, len(m.Providers)),
		consumers: make(map[string]*consumer.App, len(m.Consumers)),
	}

	// Consumers go first so initial logins reach their receivers.
	for _, cc := range m.Consumers {
		settings, err := config.ConsumerSettings(cc)
		if err != nil {
			return nil, fmt.Errorf("consumer %s: %w", cc.Identity, err)
		}
		app, err := consumer.New(settings, d)
		if err != nil {
			return nil, err
		}
		if err := d.Install(app.HostApp()); err != nil {
			return nil, err
		}
		c.consumers[settings.Identity] = app
	}
	for _, pc := range m.Providers {
		settings, err := config.ProviderSettings(pc)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Identity, err)
		}
		app, err := provider.New(settings, c.Fanout)
		if err != nil {
			return nil, err
		}
		pkg, err := app.HostApp()
		if err != nil {
			return nil, err
		}
		if err := d.Install(pkg); err != nil {
			return nil, err
		}
		c.providers[settings.Identity] = app
		if pc.Login != "" {
			if err := app.Login(ctx, pc.Login); err != nil {
				return nil, fmt.Errorf("provider %s login: %w", settings.Identity, err)
			}
		}
	}
	log.Info().Msgf("cab.Assemble device=%s providers=%d consumers=%d", m.Name, len(c.providers), len(c.consumers))
	return c, nil
}

func (c *Cab) Provider(identity string) (*provider.App, error) {
	app, ok := c.providers[identity]
	if !ok {
		return nil, fmt.Errorf("%w: provider %s", ErrUnknownApp, identity)
	}
	return app, nil
}

func (c *Cab) Consumer(identity string) (*consumer.App, error) {
	app, ok := c.consumers[identity]
	if !ok {
		return nil, fmt.Errorf("%w: consumer %s", ErrUnknownApp, identity)
	}
	return app, nil
}

func (c *Cab) Providers() []string {
	return sortedKeys(c.providers)
}

func (c *Cab) Consumers() []string {
	return sortedKeys(c.consumers)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
