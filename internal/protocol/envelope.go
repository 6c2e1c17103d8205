package protocol

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/opencab/internal/version"
	"github.com/google/uuid"
)

// Envelope keys shared by every contract.
const (
	KeyMethod        = "method"
	KeyVersion       = "version"
	KeyExtras        = "extras"
	KeyServedVersion = "key_version"
	KeyError         = "error"

	KeyEventID = "event_id"
	KeyAction  = "action"
	KeySentAt  = "sent_at"
)

// Request is one contract call. A zero Version means the caller never
// signaled a version.
type Request struct {
	Method  string
	Version version.Version
	Extras  Bundle
}

// Response is the result of one contract call. The payload shape is a function
// of ServedVersion, never of the requested version.
type Response struct {
	ServedVersion version.Version
	Error         string
	Payload       Bundle
}

// Failed reports whether the response carries an error.
func (r Response) Failed() bool {
	return strings.TrimSpace(r.Error) != ""
}

// Event is a one-way broadcast addressed to one receiver at a time.
type Event struct {
	ID     string
	Action string
	Extras Bundle
	SentAt time.Time
}

// NewEvent stamps a fresh event id and send time.
func NewEvent(action string, extras Bundle) Event {
	return Event{
		ID:     uuid.NewString(),
		Action: strings.TrimSpace(action),
		Extras: extras.Clone(),
		SentAt: time.Now().UTC(),
	}
}

func (r Request) ToBundle() Bundle {
	b := NewBundle()
	b.PutString(KeyMethod, r.Method)
	if !r.Version.IsZero() {
		b.PutString(KeyVersion, r.Version.String())
	}
	if r.Extras.Len() > 0 {
		b.PutBundle(KeyExtras, r.Extras)
	}
	return b
}

// RequestFromBundle rebuilds a request. A malformed version string is an error
// for the party that parses it.
func RequestFromBundle(b Bundle) (Request, error) {
	method, ok, err := b.GetString(KeyMethod)
	if err != nil {
		return Request{}, err
	}
	if !ok {
		return Request{}, fmt.Errorf("%w: %s", ErrMissingKey, KeyMethod)
	}
	req := Request{Method: method}
	raw, ok, err := b.GetString(KeyVersion)
	if err != nil {
		return Request{}, err
	}
	if ok {
		v, err := version.Parse(raw)
		if err != nil {
			return Request{}, err
		}
		req.Version = v
	}
	extras, ok, err := b.GetBundle(KeyExtras)
	if err != nil {
		return Request{}, err
	}
	if ok {
		req.Extras = extras
	}
	return req, nil
}

func (r Response) ToBundle() Bundle {
	b := r.Payload.Clone()
	if !r.ServedVersion.IsZero() {
		b.PutString(KeyServedVersion, r.ServedVersion.String())
	}
	if r.Failed() {
		b.PutString(KeyError, r.Error)
	}
	return b
}

// ResponseFromBundle splits envelope keys from the contract payload.
func ResponseFromBundle(b Bundle) (Response, error) {
	resp := Response{Payload: b.Clone()}
	raw, ok, err := b.GetString(KeyServedVersion)
	if err != nil {
		return Response{}, err
	}
	if ok {
		v, err := version.Parse(raw)
		if err != nil {
			return Response{}, err
		}
		resp.ServedVersion = v
		resp.Payload.Remove(KeyServedVersion)
	}
	msg, ok, err := b.GetString(KeyError)
	if err != nil {
		return Response{}, err
	}
	if ok {
		resp.Error = msg
		resp.Payload.Remove(KeyError)
	}
	return resp, nil
}

func (e Event) ToBundle() Bundle {
	b := NewBundle()
	b.PutString(KeyEventID, e.ID)
	b.PutString(KeyAction, e.Action)
	if !e.SentAt.IsZero() {
		b.PutString(KeySentAt, e.SentAt.UTC().Format(time.RFC3339Nano))
	}
	if e.Extras.Len() > 0 {
		b.PutBundle(KeyExtras, e.Extras)
	}
	return b
}

func EventFromBundle(b Bundle) (Event, error) {
	action, ok, err := b.GetString(KeyAction)
	if err != nil {
		return Event{}, err
	}
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrMissingKey, KeyAction)
	}
	e := Event{Action: action}
	if id, ok, err := b.GetString(KeyEventID); err != nil {
		return Event{}, err
	} else if ok {
		e.ID = id
	}
	if raw, ok, err := b.GetString(KeySentAt); err != nil {
		return Event{}, err
	} else if ok {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Event{}, fmt.Errorf("protocol: invalid %s: %w", KeySentAt, err)
		}
		e.SentAt = at
	}
	if extras, ok, err := b.GetBundle(KeyExtras); err != nil {
		return Event{}, err
	} else if ok {
		e.Extras = extras
	}
	return e, nil
}
