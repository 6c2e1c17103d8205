package admin

import (
	"encoding/json"
	"strings"

	"github.com/danmuck/opencab/internal/client"
	"github.com/danmuck/opencab/internal/consumer"
	"github.com/danmuck/opencab/internal/contracts/hos"
	"github.com/danmuck/opencab/internal/contracts/identity"
	"github.com/danmuck/opencab/internal/contracts/vehicle"
	"github.com/danmuck/opencab/internal/protocol"
	"github.com/danmuck/opencab/internal/version"
)

// CallRequest is the body of POST /call. An empty Version sends a
// versionless request.
type CallRequest struct {
	Endpoint string `json:"endpoint"`
	Method   string `json:"method"`
	Version  string `json:"version,omitempty"`
}

type CallResponse struct {
	Endpoint string         `json:"endpoint"`
	Method   string         `json:"method"`
	Served   string         `json:"served_version,omitempty"`
	Error    string         `json:"error,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	Decoded  any            `json:"decoded,omitempty"`
}

type BroadcastRequest struct {
	Action string `json:"action"`
}

// ActionRequest carries the arguments of every provider action; each action
// reads the fields it needs.
type ActionRequest struct {
	Username    string               `json:"username,omitempty"`
	Duty        string               `json:"duty,omitempty"`
	Vehicle     *vehicle.Information `json:"vehicle,omitempty"`
	TokenMode   string               `json:"token_mode,omitempty"`
	StaticToken string               `json:"static_token,omitempty"`
	Action      string               `json:"action,omitempty"`
}

// ResultView is one provider's answer in a consumer fan-in.
type ResultView struct {
	Owner    string `json:"owner"`
	Endpoint string `json:"endpoint"`
	Served   string `json:"served_version,omitempty"`
	Value    any    `json:"value,omitempty"`
	Error    string `json:"error,omitempty"`
}

func views[T any](results []consumer.Result[T], served func(T) version.Version) []ResultView {
	out := make([]ResultView, 0, len(results))
	for _, r := range results {
		v := ResultView{Owner: r.Owner, Endpoint: r.Endpoint}
		if r.Err != nil {
			v.Error = r.Err.Error()
		} else {
			v.Value = r.Value
			if served != nil {
				v.Served = served(r.Value).String()
			}
		}
		out = append(out, v)
	}
	return out
}

// renderPayload shows scalar values as-is and JSON blobs inline. Records
// only show their kind; decodeTyped covers the known contracts.
func renderPayload(b protocol.Bundle) map[string]any {
	if b.Len() == 0 {
		return nil
	}
	out := make(map[string]any, b.Len())
	for _, key := range b.Keys() {
		v, _ := b.Get(key)
		switch v.Kind {
		case protocol.KindString:
			out[key] = v.String
		case protocol.KindBool:
			out[key] = v.Bool
		case protocol.KindBlob:
			if json.Valid(v.Blob) {
				out[key] = json.RawMessage(v.Blob)
			} else {
				out[key] = v.Blob
			}
		default:
			out[key] = v.Kind.String()
		}
	}
	return out
}

// decodeTyped decodes replies from the three standard contracts. Unknown
// authorities and methods return nil.
func decodeTyped(endpoint, method string, served version.Version, payload protocol.Bundle) (any, error) {
	switch {
	case strings.HasSuffix(endpoint, "."+hos.Authority):
		reply := client.Reply{Served: orFloor(served, hos.Floor), Payload: payload}
		switch method {
		case hos.MethodGetHOS:
			return hos.Decode(reply)
		case hos.MethodStartNavigation, hos.MethodEndNavigation:
			ok, _, err := payload.GetBool(hos.KeyNavigationResult)
			return ok, err
		}
	case strings.HasSuffix(endpoint, "."+identity.Authority):
		reply := client.Reply{Served: orFloor(served, identity.Floor), Payload: payload}
		switch method {
		case identity.MethodGetLoginCredentials:
			return client.Decode(reply, identity.CredentialsBranches()...)
		case identity.MethodGetActiveDrivers:
			return client.Decode(reply, identity.DriversBranches()...)
		}
	case strings.HasSuffix(endpoint, "."+vehicle.Authority):
		if method == vehicle.MethodGetVehicleInformation {
			reply := client.Reply{Served: orFloor(served, vehicle.Floor), Payload: payload}
			return client.Decode(reply, vehicle.Branches()...)
		}
	}
	return nil, nil
}

func orFloor(v, floor version.Version) version.Version {
	if v.IsZero() {
		return floor
	}
	return v
}
