package hos

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/danmuck/opencab/internal/contract"
	"github.com/danmuck/opencab/internal/protocol"
	"github.com/danmuck/opencab/internal/protocol/schema"
	"github.com/danmuck/opencab/internal/protocol/tlv"
	"github.com/danmuck/opencab/internal/version"
)

// Payload is the getHOS response for one served version: PayloadV02,
// PayloadV03 or PayloadV04.
type Payload interface {
	Served() version.Version
	Primary() Status
	// TeamClocks returns one clock list per team driver, nil when team
	// driving is off or the version has no team data.
	TeamClocks() [][]Clock
	encode() (protocol.Bundle, error)
}

type PayloadV02 struct {
	Status Status
}

type PayloadV03 struct {
	Status Status
	Team   []Status
}

type PayloadV04 struct {
	Status Status
	Team   [][]Clock
}

func (PayloadV02) Served() version.Version { return V02 }
func (PayloadV03) Served() version.Version { return V03 }
func (PayloadV04) Served() version.Version { return V04 }

func (p PayloadV02) Primary() Status { return p.Status }
func (p PayloadV03) Primary() Status { return p.Status }
func (p PayloadV04) Primary() Status { return p.Status }

func (PayloadV02) TeamClocks() [][]Clock { return nil }

func (p PayloadV03) TeamClocks() [][]Clock {
	if len(p.Team) == 0 {
		return nil
	}
	out := make([][]Clock, 0, len(p.Team))
	for _, st := range p.Team {
		out = append(out, st.Clocks)
	}
	return out
}

func (p PayloadV04) TeamClocks() [][]Clock { return p.Team }

func (p PayloadV02) encode() (protocol.Bundle, error) {
	b := protocol.NewBundle()
	b.PutRecord(KeyHOS, encodeStatus(p.Status, schema.RecHOSStatus))
	return b, nil
}

func (p PayloadV03) encode() (protocol.Bundle, error) {
	b := protocol.NewBundle()
	b.PutRecord(KeyHOS, encodeStatus(p.Status, schema.RecHOSStatusV2))
	if len(p.Team) > 0 {
		team := make([]protocol.Record, 0, len(p.Team))
		for _, st := range p.Team {
			team = append(team, encodeStatus(st, schema.RecHOSStatusV2))
		}
		b.PutRecordList(KeyTeamHOS, team)
	}
	return b, nil
}

// statusDocument is the 0.4 hos blob.
type statusDocument struct {
	Schema  string `json:"schema"`
	Version string `json:"version"`
	Status  Status `json:"status"`
}

func (p PayloadV04) encode() (protocol.Bundle, error) {
	doc, err := json.Marshal(statusDocument{Schema: StatusSchema, Version: V04.String(), Status: p.Status})
	if err != nil {
		return protocol.Bundle{}, err
	}
	b := protocol.NewBundle()
	b.PutBlob(KeyHOS, doc)
	if len(p.Team) > 0 {
		grid := make([][]protocol.Record, 0, len(p.Team))
		for _, clocks := range p.Team {
			grid = append(grid, encodeClocks(clocks, schema.RecClockV2))
		}
		b.PutRecordGrid(KeyTeamHOS, grid)
	}
	return b, nil
}

func DecodeV02(b protocol.Bundle) (PayloadV02, error) {
	rec, err := requireRecord(b, KeyHOS)
	if err != nil {
		return PayloadV02{}, err
	}
	st, err := decodeStatus(rec, schema.RecHOSStatus)
	if err != nil {
		return PayloadV02{}, err
	}
	return PayloadV02{Status: st}, nil
}

func DecodeV03(b protocol.Bundle) (PayloadV03, error) {
	rec, err := requireRecord(b, KeyHOS)
	if err != nil {
		return PayloadV03{}, err
	}
	st, err := decodeStatus(rec, schema.RecHOSStatusV2)
	if err != nil {
		return PayloadV03{}, err
	}
	out := PayloadV03{Status: st}
	team, ok, err := b.GetRecordList(KeyTeamHOS)
	if err != nil {
		return PayloadV03{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if ok {
		for _, rec := range team {
			member, err := decodeStatus(rec, schema.RecHOSStatusV2)
			if err != nil {
				return PayloadV03{}, err
			}
			out.Team = append(out.Team, member)
		}
	}
	return out, nil
}

func DecodeV04(b protocol.Bundle) (PayloadV04, error) {
	raw, ok, err := b.GetBlob(KeyHOS)
	if err != nil {
		return PayloadV04{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if !ok {
		return PayloadV04{}, fmt.Errorf("%w: missing %s", ErrMalformedPayload, KeyHOS)
	}
	var doc statusDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return PayloadV04{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if doc.Schema != StatusSchema {
		return PayloadV04{}, fmt.Errorf("%w: schema %q", ErrMalformedPayload, doc.Schema)
	}
	if v, err := version.Parse(doc.Version); err != nil || !v.Equal(V04) {
		return PayloadV04{}, fmt.Errorf("%w: document version %q", ErrMalformedPayload, doc.Version)
	}
	out := PayloadV04{Status: doc.Status}
	grid, ok, err := b.GetRecordGrid(KeyTeamHOS)
	if err != nil {
		return PayloadV04{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if ok {
		for _, row := range grid {
			clocks, err := decodeClocks(row, schema.RecClockV2)
			if err != nil {
				return PayloadV04{}, err
			}
			out.Team = append(out.Team, clocks)
		}
	}
	return out, nil
}

func requireRecord(b protocol.Bundle, key string) (protocol.Record, error) {
	rec, ok, err := b.GetRecord(key)
	if err != nil {
		return protocol.Record{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if !ok {
		return protocol.Record{}, fmt.Errorf("%w: missing %s", ErrMalformedPayload, key)
	}
	return rec, nil
}

func clockTypeFor(statusType uint32) uint32 {
	if statusType == schema.RecHOSStatusV2 {
		return schema.RecClockV2
	}
	return schema.RecClock
}

func encodeStatus(st Status, statusType uint32) protocol.Record {
	clocks := encodeClocks(st.Clocks, clockTypeFor(statusType))
	rec := protocol.NewRecord(statusType, tlv.Bytes(schema.FieldClocks, protocol.EncodeRecordList(clocks)))
	if st.ManageAction != "" {
		rec.Fields = append(rec.Fields, tlv.String(schema.FieldManageAction, st.ManageAction))
	}
	if statusType == schema.RecHOSStatusV2 && st.LogoutAction != "" {
		rec.Fields = append(rec.Fields, tlv.String(schema.FieldLogoutAction, st.LogoutAction))
	}
	return rec
}

func decodeStatus(rec protocol.Record, statusType uint32) (Status, error) {
	if err := rec.Expect(statusType); err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	raw, _ := rec.Raw(schema.FieldClocks)
	list, err := protocol.DecodeRecordList(raw)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	clocks, err := decodeClocks(list, clockTypeFor(statusType))
	if err != nil {
		return Status{}, err
	}
	st := Status{Clocks: clocks}
	st.ManageAction, _ = rec.Str(schema.FieldManageAction)
	if statusType == schema.RecHOSStatusV2 {
		st.LogoutAction, _ = rec.Str(schema.FieldLogoutAction)
	}
	return st, nil
}

func encodeClocks(clocks []Clock, clockType uint32) []protocol.Record {
	out := make([]protocol.Record, 0, len(clocks))
	for _, c := range clocks {
		rec := protocol.NewRecord(clockType,
			tlv.String(schema.FieldLabel, c.Label),
			tlv.String(schema.FieldValueType, string(c.ValueType)),
			tlv.Bool(schema.FieldImportant, c.Important),
			tlv.Bool(schema.FieldLimitsDrivingRange, c.LimitsDrivingRange),
		)
		if c.Value != "" {
			rec.Fields = append(rec.Fields, tlv.String(schema.FieldValue, c.Value))
		}
		if clockType == schema.RecClockV2 && c.DurationSeconds != nil {
			rec.Fields = append(rec.Fields, tlv.F64(schema.FieldDurationSeconds, *c.DurationSeconds))
		}
		out = append(out, rec)
	}
	return out
}

func decodeClocks(list []protocol.Record, clockType uint32) ([]Clock, error) {
	out := make([]Clock, 0, len(list))
	for _, rec := range list {
		if err := rec.Expect(clockType); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		var c Clock
		c.Label, _ = rec.Str(schema.FieldLabel)
		c.Value, _ = rec.Str(schema.FieldValue)
		vt, _ := rec.Str(schema.FieldValueType)
		c.ValueType = ValueType(vt)
		c.Important, _ = rec.Flag(schema.FieldImportant)
		c.LimitsDrivingRange, _ = rec.Flag(schema.FieldLimitsDrivingRange)
		if clockType == schema.RecClockV2 {
			if d, ok := rec.Float(schema.FieldDurationSeconds); ok {
				c.DurationSeconds = &d
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func currentStatus(ctx context.Context, src Source) (*Status, error) {
	st, err := src.Status(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("%w: no current HOS status", protocol.ErrDataUnavailable)
	}
	return st, nil
}

func statusHandler(src Source, shape shaper) contract.Handler {
	return func(ctx context.Context, _ protocol.Bundle) (protocol.Bundle, error) {
		p, err := shape(ctx, src)
		if err != nil {
			return protocol.Bundle{}, err
		}
		return p.encode()
	}
}

func navigationHandler(v version.Version, fn func(context.Context, version.Version) (bool, error)) contract.Handler {
	return func(ctx context.Context, _ protocol.Bundle) (protocol.Bundle, error) {
		ok, err := fn(ctx, v)
		if err != nil {
			return protocol.Bundle{}, err
		}
		b := protocol.NewBundle()
		b.PutBool(KeyNavigationResult, ok)
		return b, nil
	}
}
