// Package vehicle is the vehicle information contract.
//
// getVehicleInformation answers vehicle_info as {vin, moving} at 0.2 and
// {vin, vehicle_id, in_gear, moving} at 0.3, where vehicle_id and moving are
// optional.
package vehicle

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/opencab/internal/broadcast"
	"github.com/danmuck/opencab/internal/contract"
	"github.com/danmuck/opencab/internal/protocol"
	"github.com/danmuck/opencab/internal/version"
)

const (
	Authority = "org.opencabstandard.vehicleinformation"

	MethodGetVehicleInformation = "getVehicleInformation"
	KeyVehicleInformation       = "vehicle_info"

	Receiver                 = broadcast.ReceiverVehicleInformationChanged
	ActionInformationChanged = broadcast.ActionVehicleInformationChanged
)

var (
	V02 = version.MustParse("0.2")
	V03 = version.MustParse("0.3")

	Floor  = V02
	Latest = V03
)

var (
	ErrUnknownVersion   = errors.New("vehicle: no payload shape for version")
	ErrMalformedPayload = errors.New("vehicle: malformed payload")
)

func Versions() []version.Version {
	return []version.Version{V02, V03}
}

// Information is what the provider knows about the vehicle. Moving is nil
// when unknown.
type Information struct {
	VIN       string `json:"vin"`
	VehicleID string `json:"vehicle_id,omitempty"`
	InGear    bool   `json:"in_gear"`
	Moving    *bool  `json:"moving,omitempty"`
}

// Source returns nil when no vehicle is attached.
type Source interface {
	VehicleInformation(ctx context.Context) (*Information, error)
}

func Definition(src Source, supported ...version.Version) (contract.Contract, error) {
	if len(supported) == 0 {
		supported = Versions()
	}
	m := contract.Method{Name: MethodGetVehicleInformation}
	for _, v := range supported {
		var shape func(Information) Payload
		switch {
		case v.Equal(V02):
			shape = func(info Information) Payload {
				return PayloadV02{VIN: info.VIN, Moving: info.Moving != nil && *info.Moving}
			}
		case v.Equal(V03):
			shape = func(info Information) Payload {
				return PayloadV03{VIN: info.VIN, VehicleID: info.VehicleID, InGear: info.InGear, Moving: info.Moving}
			}
		default:
			return contract.Contract{}, fmt.Errorf("%w: %s", ErrUnknownVersion, v)
		}
		m.Variants = append(m.Variants, contract.Variant{Version: v, Handle: handler(src, shape)})
	}
	return contract.Contract{
		Name:      "vehicle",
		Authority: Authority,
		Floor:     Floor,
		Methods:   []contract.Method{m},
	}, nil
}

func handler(src Source, shape func(Information) Payload) contract.Handler {
	return func(ctx context.Context, _ protocol.Bundle) (protocol.Bundle, error) {
		info, err := src.VehicleInformation(ctx)
		if err != nil {
			return protocol.Bundle{}, err
		}
		if info == nil {
			return protocol.Bundle{}, fmt.Errorf("%w: no vehicle attached", protocol.ErrDataUnavailable)
		}
		return shape(*info).encode(), nil
	}
}
