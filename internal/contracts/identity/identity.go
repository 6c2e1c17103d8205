// Package identity is the active-driver identity contract.
//
// getLoginCredentials answers the current driver's credentials at 0.2; 0.3
// adds every logged-in driver session. getActiveDrivers answers the same
// driver list at both versions.
package identity

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
	Authority = "org.opencabstandard.identity"

	MethodGetLoginCredentials = "getLoginCredentials"
	MethodGetActiveDrivers    = "getActiveDrivers"

	KeyLoginCredentials    = "login_credentials"
	KeyAllLoginCredentials = "all_login_credentials"
	KeyActiveDrivers       = "activeDrivers"

	Receiver = broadcast.ReceiverIdentityChanged

	ActionDriverLogin        = broadcast.ActionDriverLogin
	ActionDriverLogout       = broadcast.ActionDriverLogout
	ActionInformationChanged = broadcast.ActionIdentityInformationChanged
)

var (
	V02 = version.MustParse("0.2")
	V03 = version.MustParse("0.3")

	Floor  = V02
	Latest = V03
)

var (
	ErrUnknownVersion   = errors.New("identity: no payload shape for version")
	ErrMalformedPayload = errors.New("identity: malformed payload")
)

func Versions() []version.Version {
	return []version.Version{V02, V03}
}

// LoginCredentials lets a consumer sign the driver in without a second login.
type LoginCredentials struct {
	Token     string `json:"token,omitempty"`
	Provider  string `json:"provider"`
	Authority string `json:"authority"`
}

// DriverSession pairs a logged-in driver with their credentials.
type DriverSession struct {
	Username    string            `json:"username"`
	Credentials *LoginCredentials `json:"login_credentials,omitempty"`
}

type Driver struct {
	Username string `json:"username"`
	Driving  bool   `json:"driving"`
}

// Source is the business-data collaborator behind the contract. A nil or
// empty result means there is nothing to report.
type Source interface {
	LoginCredentials(ctx context.Context) (*LoginCredentials, error)
	AllLoginCredentials(ctx context.Context) ([]DriverSession, error)
	ActiveDrivers(ctx context.Context) ([]Driver, error)
}

// Definition builds the contract served over src. supported defaults to
// Versions().
func Definition(src Source, supported ...version.Version) (contract.Contract, error) {
	if len(supported) == 0 {
		supported = Versions()
	}
	creds := contract.Method{Name: MethodGetLoginCredentials}
	drivers := contract.Method{Name: MethodGetActiveDrivers}
	for _, v := range supported {
		var shape func(context.Context, Source) (CredentialsPayload, error)
		switch {
		case v.Equal(V02):
			shape = shapeCredentialsV02
		case v.Equal(V03):
			shape = shapeCredentialsV03
		default:
			return contract.Contract{}, fmt.Errorf("%w: %s", ErrUnknownVersion, v)
		}
		creds.Variants = append(creds.Variants, contract.Variant{Version: v, Handle: credentialsHandler(src, shape)})
		drivers.Variants = append(drivers.Variants, contract.Variant{Version: v, Handle: driversHandler(src)})
	}
	return contract.Contract{
		Name:      "identity",
		Authority: Authority,
		Floor:     Floor,
		Methods:   []contract.Method{creds, drivers},
	}, nil
}

func shapeCredentialsV02(ctx context.Context, src Source) (CredentialsPayload, error) {
	c, err := src.LoginCredentials(ctx)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: no driver logged in", protocol.ErrDataUnavailable)
	}
	return CredentialsV02{Credentials: *c}, nil
}

func shapeCredentialsV03(ctx context.Context, src Source) (CredentialsPayload, error) {
	c, err := src.LoginCredentials(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := src.AllLoginCredentials(ctx)
	if err != nil {
		return nil, err
	}
	if c == nil && len(sessions) == 0 {
		return nil, fmt.Errorf("%w: no driver logged in", protocol.ErrDataUnavailable)
	}
	return CredentialsV03{Credentials: c, Sessions: sessions}, nil
}

func credentialsHandler(src Source, shape func(context.Context, Source) (CredentialsPayload, error)) contract.Handler {
	return func(ctx context.Context, _ protocol.Bundle) (protocol.Bundle, error) {
		p, err := shape(ctx, src)
		if err != nil {
			return protocol.Bundle{}, err
		}
		return p.encode(), nil
	}
}

func driversHandler(src Source) contract.Handler {
	return func(ctx context.Context, _ protocol.Bundle) (protocol.Bundle, error) {
		drivers, err := src.ActiveDrivers(ctx)
		if err != nil {
			return protocol.Bundle{}, err
		}
		if len(drivers) == 0 {
			return protocol.Bundle{}, fmt.Errorf("%w: no active drivers", protocol.ErrDataUnavailable)
		}
		return encodeDrivers(drivers), nil
	}
}
