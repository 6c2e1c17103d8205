package vehicle

import (
	"fmt"

	"github.com/danmuck/opencab/internal/protocol"
	"github.com/danmuck/opencab/internal/protocol/schema"
	"github.com/danmuck/opencab/internal/protocol/tlv"
	"github.com/danmuck/opencab/internal/version"
)

// Payload is the getVehicleInformation response for one served version.
type Payload interface {
	Served() version.Version
	Information() Information
	encode() protocol.Bundle
}

type PayloadV02 struct {
	VIN    string
	Moving bool
}

type PayloadV03 struct {
	VIN       string
	VehicleID string
	InGear    bool
	Moving    *bool
}

func (PayloadV02) Served() version.Version { return V02 }
func (PayloadV03) Served() version.Version { return V03 }

func (p PayloadV02) Information() Information {
	moving := p.Moving
	return Information{VIN: p.VIN, Moving: &moving}
}

func (p PayloadV03) Information() Information {
	return Information{VIN: p.VIN, VehicleID: p.VehicleID, InGear: p.InGear, Moving: p.Moving}
}

func (p PayloadV02) encode() protocol.Bundle {
	b := protocol.NewBundle()
	b.PutRecord(KeyVehicleInformation, protocol.NewRecord(schema.RecVehicleInfo,
		tlv.String(schema.FieldVIN, p.VIN),
		tlv.Bool(schema.FieldMoving, p.Moving),
	))
	return b
}

func (p PayloadV03) encode() protocol.Bundle {
	rec := protocol.NewRecord(schema.RecVehicleInfoV2,
		tlv.String(schema.FieldVIN, p.VIN),
		tlv.Bool(schema.FieldInGear, p.InGear),
	)
	if p.VehicleID != "" {
		rec.Fields = append(rec.Fields, tlv.String(schema.FieldVehicleID, p.VehicleID))
	}
	if p.Moving != nil {
		rec.Fields = append(rec.Fields, tlv.Bool(schema.FieldMoving, *p.Moving))
	}
	b := protocol.NewBundle()
	b.PutRecord(KeyVehicleInformation, rec)
	return b
}

func DecodeV02(b protocol.Bundle) (PayloadV02, error) {
	rec, err := requireRecord(b, schema.RecVehicleInfo)
	if err != nil {
		return PayloadV02{}, err
	}
	var p PayloadV02
	p.VIN, _ = rec.Str(schema.FieldVIN)
	p.Moving, _ = rec.Flag(schema.FieldMoving)
	return p, nil
}

func DecodeV03(b protocol.Bundle) (PayloadV03, error) {
	rec, err := requireRecord(b, schema.RecVehicleInfoV2)
	if err != nil {
		return PayloadV03{}, err
	}
	var p PayloadV03
	p.VIN, _ = rec.Str(schema.FieldVIN)
	p.VehicleID, _ = rec.Str(schema.FieldVehicleID)
	p.InGear, _ = rec.Flag(schema.FieldInGear)
	if moving, ok := rec.Flag(schema.FieldMoving); ok {
		p.Moving = &moving
	}
	return p, nil
}

func requireRecord(b protocol.Bundle, recordType uint32) (protocol.Record, error) {
	rec, ok, err := b.GetRecord(KeyVehicleInformation)
	if err != nil {
		return protocol.Record{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if !ok {
		return protocol.Record{}, fmt.Errorf("%w: missing %s", ErrMalformedPayload, KeyVehicleInformation)
	}
	if err := rec.Expect(recordType); err != nil {
		return protocol.Record{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return rec, nil
}
