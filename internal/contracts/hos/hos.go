// Package hos is the hours-of-service contract.
//
// getHOS has three payload shapes:
//   - 0.2: hos is an HOSStatus record of Clock records.
//   - 0.3: hos is an HOSStatusV2 record of ClockV2 records with an optional
//     logout action; hos_team lists one HOSStatusV2 per team driver.
//   - 0.4: hos is a self-describing JSON document carried as a blob; hos_team
//     is a grid holding one ClockV2 list per team driver.
//
// startNavigation and endNavigation answer navigation_result at every version.
package hos

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/opencab/internal/contract"
	"github.com/danmuck/opencab/internal/version"
)

const (
	Authority = "org.opencabstandard.hos"

	MethodGetHOS          = "getHOS"
	MethodStartNavigation = "startNavigation"
	MethodEndNavigation   = "endNavigation"

	KeyHOS              = "hos"
	KeyTeamHOS          = "hos_team"
	KeyNavigationResult = "navigation_result"

	StatusSchema = "org.opencabstandard.hos.status"
)

var (
	V02 = version.MustParse("0.2")
	V03 = version.MustParse("0.3")
	V04 = version.MustParse("0.4")

	Floor  = V02
	Latest = V04
)

var (
	ErrUnknownVersion   = errors.New("hos: no payload shape for version")
	ErrMalformedPayload = errors.New("hos: malformed payload")
)

// Versions returns every version this package can shape, ascending.
func Versions() []version.Version {
	return []version.Version{V02, V03, V04}
}

// ValueType tells a consumer how to render a clock value.
type ValueType string

const (
	ValueString    ValueType = "STRING"
	ValueDate      ValueType = "DATE"
	ValueCountUp   ValueType = "COUNTUP"
	ValueCountDown ValueType = "COUNTDOWN"
)

// Clock is one displayed HOS value. DurationSeconds only travels from 0.3 on.
type Clock struct {
	Label              string    `json:"label"`
	Value              string    `json:"value,omitempty"`
	ValueType          ValueType `json:"value_type"`
	Important          bool      `json:"important,omitempty"`
	LimitsDrivingRange bool      `json:"limits_driving_range,omitempty"`
	DurationSeconds    *float64  `json:"duration_seconds,omitempty"`
}

// Status is one driver's HOS state. LogoutAction only travels from 0.3 on.
type Status struct {
	Clocks       []Clock `json:"clocks"`
	ManageAction string  `json:"manage_action,omitempty"`
	LogoutAction string  `json:"logout_action,omitempty"`
}

// Source is the business-data collaborator behind the contract. Status
// returns nil when there is no current status. TeamStatuses returns nil when
// team driving is off. Any method may block.
type Source interface {
	Status(ctx context.Context) (*Status, error)
	TeamStatuses(ctx context.Context) ([]Status, error)
	StartNavigation(ctx context.Context, v version.Version) (bool, error)
	EndNavigation(ctx context.Context, v version.Version) (bool, error)
}

type shaper func(ctx context.Context, src Source) (Payload, error)

func shaperFor(v version.Version) (shaper, bool) {
	switch {
	case v.Equal(V02):
		return shapeV02, true
	case v.Equal(V03):
		return shapeV03, true
	case v.Equal(V04):
		return shapeV04, true
	default:
		return nil, false
	}
}

// Definition builds the contract served over src. supported selects the
// served versions and defaults to Versions().
func Definition(src Source, supported ...version.Version) (contract.Contract, error) {
	if len(supported) == 0 {
		supported = Versions()
	}
	getHOS := contract.Method{Name: MethodGetHOS}
	start := contract.Method{Name: MethodStartNavigation}
	end := contract.Method{Name: MethodEndNavigation}
	for _, v := range supported {
		shape, ok := shaperFor(v)
		if !ok {
			return contract.Contract{}, fmt.Errorf("%w: %s", ErrUnknownVersion, v)
		}
		getHOS.Variants = append(getHOS.Variants, contract.Variant{Version: v, Handle: statusHandler(src, shape)})
		start.Variants = append(start.Variants, contract.Variant{Version: v, Handle: navigationHandler(v, src.StartNavigation)})
		end.Variants = append(end.Variants, contract.Variant{Version: v, Handle: navigationHandler(v, src.EndNavigation)})
	}
	return contract.Contract{
		Name:      "hos",
		Authority: Authority,
		Floor:     Floor,
		Methods:   []contract.Method{getHOS, start, end},
	}, nil
}

func shapeV02(ctx context.Context, src Source) (Payload, error) {
	st, err := currentStatus(ctx, src)
	if err != nil {
		return nil, err
	}
	return PayloadV02{Status: *st}, nil
}

func shapeV03(ctx context.Context, src Source) (Payload, error) {
	st, err := currentStatus(ctx, src)
	if err != nil {
		return nil, err
	}
	team, err := src.TeamStatuses(ctx)
	if err != nil {
		return nil, err
	}
	return PayloadV03{Status: *st, Team: team}, nil
}

func shapeV04(ctx context.Context, src Source) (Payload, error) {
	st, err := currentStatus(ctx, src)
	if err != nil {
		return nil, err
	}
	team, err := src.TeamStatuses(ctx)
	if err != nil {
		return nil, err
	}
	var grid [][]Clock
	for _, member := range team {
		grid = append(grid, member.Clocks)
	}
	return PayloadV04{Status: *st, Team: grid}, nil
}
