// Package broadcast fans a one-way event out to every discovered receiver.
//
// Delivery is explicit per target, at most once, unacknowledged. A failure
// delivering to one receiver is logged and counted and never stops delivery to
// the others. Nothing about deliveries is returned to the originator.
package broadcast

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/opencab/internal/discovery"
	"github.com/danmuck/opencab/internal/observability"
	"github.com/danmuck/opencab/internal/protocol"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Event actions.
const (
	ActionDriverLogin                = "org.opencabstandard.ACTION_DRIVER_LOGIN"
	ActionDriverLogout               = "com.opencabstandard.ACTION_DRIVER_LOGOUT"
	ActionIdentityInformationChanged = "org.opencabstandard.ACTION_IDENTITY_INFORMATION_CHANGED"
	ActionVehicleInformationChanged  = "com.opencabstandard.VEHICLE_INFORMATION_CHANGED"
)

// Receiver name suffixes.
const (
	ReceiverIdentityChanged           = "IdentityChangedReceiver"
	ReceiverVehicleInformationChanged = "VehicleInformationChangedReceiver"
)

var ErrUnknownEvent = errors.New("broadcast: unknown event action")

var receiverByAction = map[string]string{
	ActionDriverLogin:                ReceiverIdentityChanged,
	ActionDriverLogout:               ReceiverIdentityChanged,
	ActionIdentityInformationChanged: ReceiverIdentityChanged,
	ActionVehicleInformationChanged:  ReceiverVehicleInformationChanged,
}

// ReceiverFor maps an action to the receiver suffix that handles it.
func ReceiverFor(action string) (string, bool) {
	r, ok := receiverByAction[action]
	return r, ok
}

// Deliverer is the host's explicit one-way delivery primitive.
type Deliverer interface {
	Deliver(ctx context.Context, target discovery.Descriptor, e protocol.Event) error
}

// DirectorySource supplies a fresh directory snapshot per broadcast.
type DirectorySource interface {
	Directory() discovery.Directory
}

// Fanout discovers receivers and delivers to each. Parallelism above 1 bounds
// concurrent deliveries; otherwise delivery is sequential in discovery order.
type Fanout struct {
	Source      DirectorySource
	Deliverer   Deliverer
	Parallelism int
}

// Broadcast delivers e to every receiver registered for its action. The only
// error is ErrUnknownEvent, returned before anything is delivered.
func (f *Fanout) Broadcast(ctx context.Context, e protocol.Event) error {
	suffix, ok := ReceiverFor(e.Action)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, e.Action)
	}
	targets := discovery.Discover(f.Source.Directory(), discovery.KindReceiver, suffix)
	log.Debug().
		Str("action", e.Action).
		Str("event_id", e.ID).
		Int("targets", len(targets)).
		Msg("broadcast.Broadcast")

	if f.Parallelism <= 1 {
		for _, target := range targets {
			f.deliverOne(ctx, target, e)
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(f.Parallelism)
	for _, target := range targets {
		g.Go(func() error {
			f.deliverOne(ctx, target, e)
			return nil
		})
	}
	_ = g.Wait()
	return nil
}

func (f *Fanout) deliverOne(ctx context.Context, target discovery.Descriptor, e protocol.Event) {
	defer func() {
		if r := recover(); r != nil {
			observability.RecordDelivery(e.Action, observability.OutcomePanic)
			log.Error().
				Str("action", e.Action).
				Str("target", target.String()).
				Interface("panic", r).
				Msg("broadcast.deliver panic")
		}
	}()
	if err := f.Deliverer.Deliver(ctx, target, e); err != nil {
		observability.RecordDelivery(e.Action, observability.OutcomeError)
		log.Warn().
			Err(fmt.Errorf("%w: %w", protocol.ErrDeliveryFailure, err)).
			Str("action", e.Action).
			Str("target", target.String()).
			Msg("broadcast.deliver")
		return
	}
	observability.RecordDelivery(e.Action, observability.OutcomeOK)
}
