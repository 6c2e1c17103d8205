package identity

import (
	"fmt"

	"github.com/danmuck/opencab/internal/protocol"
	"github.com/danmuck/opencab/internal/protocol/schema"
	"github.com/danmuck/opencab/internal/protocol/tlv"
	"github.com/danmuck/opencab/internal/version"
)

// CredentialsPayload is the getLoginCredentials response for one served
// version: CredentialsV02 or CredentialsV03.
type CredentialsPayload interface {
	Served() version.Version
	// Current returns the current driver's credentials, nil when absent.
	Current() *LoginCredentials
	encode() protocol.Bundle
}

type CredentialsV02 struct {
	Credentials LoginCredentials
}

type CredentialsV03 struct {
	Credentials *LoginCredentials
	Sessions    []DriverSession
}

func (CredentialsV02) Served() version.Version { return V02 }
func (CredentialsV03) Served() version.Version { return V03 }

func (p CredentialsV02) Current() *LoginCredentials {
	c := p.Credentials
	return &c
}

func (p CredentialsV03) Current() *LoginCredentials { return p.Credentials }

func (p CredentialsV02) encode() protocol.Bundle {
	b := protocol.NewBundle()
	b.PutRecord(KeyLoginCredentials, encodeCredentials(p.Credentials))
	return b
}

func (p CredentialsV03) encode() protocol.Bundle {
	b := protocol.NewBundle()
	if p.Credentials != nil {
		b.PutRecord(KeyLoginCredentials, encodeCredentials(*p.Credentials))
	}
	if len(p.Sessions) > 0 {
		list := make([]protocol.Record, 0, len(p.Sessions))
		for _, s := range p.Sessions {
			rec := protocol.NewRecord(schema.RecDriverSession, tlv.String(schema.FieldUsername, s.Username))
			if s.Credentials != nil {
				raw, _ := encodeCredentials(*s.Credentials).MarshalBinary()
				rec.Fields = append(rec.Fields, tlv.Bytes(schema.FieldLoginCredentials, raw))
			}
			list = append(list, rec)
		}
		b.PutRecordList(KeyAllLoginCredentials, list)
	}
	return b
}

func DecodeCredentialsV02(b protocol.Bundle) (CredentialsV02, error) {
	rec, ok, err := b.GetRecord(KeyLoginCredentials)
	if err != nil {
		return CredentialsV02{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if !ok {
		return CredentialsV02{}, fmt.Errorf("%w: missing %s", ErrMalformedPayload, KeyLoginCredentials)
	}
	c, err := decodeCredentials(rec)
	if err != nil {
		return CredentialsV02{}, err
	}
	return CredentialsV02{Credentials: c}, nil
}

func DecodeCredentialsV03(b protocol.Bundle) (CredentialsV03, error) {
	var out CredentialsV03
	rec, ok, err := b.GetRecord(KeyLoginCredentials)
	if err != nil {
		return CredentialsV03{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if ok {
		c, err := decodeCredentials(rec)
		if err != nil {
			return CredentialsV03{}, err
		}
		out.Credentials = &c
	}
	list, _, err := b.GetRecordList(KeyAllLoginCredentials)
	if err != nil {
		return CredentialsV03{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	for _, rec := range list {
		if err := rec.Expect(schema.RecDriverSession); err != nil {
			return CredentialsV03{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		s := DriverSession{}
		s.Username, _ = rec.Str(schema.FieldUsername)
		if raw, ok := rec.Raw(schema.FieldLoginCredentials); ok {
			nested, err := protocol.UnmarshalRecord(raw)
			if err != nil {
				return CredentialsV03{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
			}
			c, err := decodeCredentials(nested)
			if err != nil {
				return CredentialsV03{}, err
			}
			s.Credentials = &c
		}
		out.Sessions = append(out.Sessions, s)
	}
	return out, nil
}

// DecodeDrivers reads the getActiveDrivers payload, which has one shape at
// every version.
func DecodeDrivers(b protocol.Bundle) ([]Driver, error) {
	list, ok, err := b.GetRecordList(KeyActiveDrivers)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedPayload, KeyActiveDrivers)
	}
	out := make([]Driver, 0, len(list))
	for _, rec := range list {
		if err := rec.Expect(schema.RecDriver); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		var d Driver
		d.Username, _ = rec.Str(schema.FieldUsername)
		d.Driving, _ = rec.Flag(schema.FieldDriving)
		out = append(out, d)
	}
	return out, nil
}

func encodeDrivers(drivers []Driver) protocol.Bundle {
	list := make([]protocol.Record, 0, len(drivers))
	for _, d := range drivers {
		list = append(list, protocol.NewRecord(schema.RecDriver,
			tlv.String(schema.FieldUsername, d.Username),
			tlv.Bool(schema.FieldDriving, d.Driving),
		))
	}
	b := protocol.NewBundle()
	b.PutRecordList(KeyActiveDrivers, list)
	return b
}

func encodeCredentials(c LoginCredentials) protocol.Record {
	rec := protocol.NewRecord(schema.RecLoginCredentials,
		tlv.String(schema.FieldProvider, c.Provider),
		tlv.String(schema.FieldAuthority, c.Authority),
	)
	if c.Token != "" {
		rec.Fields = append(rec.Fields, tlv.String(schema.FieldToken, c.Token))
	}
	return rec
}

func decodeCredentials(rec protocol.Record) (LoginCredentials, error) {
	if err := rec.Expect(schema.RecLoginCredentials); err != nil {
		return LoginCredentials{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	var c LoginCredentials
	c.Token, _ = rec.Str(schema.FieldToken)
	c.Provider, _ = rec.Str(schema.FieldProvider)
	c.Authority, _ = rec.Str(schema.FieldAuthority)
	return c, nil
}
