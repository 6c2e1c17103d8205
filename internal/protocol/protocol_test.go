package protocol

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/opencab/internal/protocol/schema"
	"github.com/danmuck/opencab/internal/protocol/tlv"
	"github.com/danmuck/opencab/internal/testutil/testlog"
	"github.com/danmuck/opencab/internal/version"
)

func clockRecord(label, value string) Record {
	return NewRecord(schema.RecClock,
		tlv.String(schema.FieldLabel, label),
		tlv.String(schema.FieldValue, value),
		tlv.String(schema.FieldValueType, "STRING"),
		tlv.Bool(schema.FieldImportant, true),
	)
}

func TestBundleKindMismatch(t *testing.T) {
	testlog.Start(t)
	b := NewBundle()
	b.PutString("hos", "not a record")
	if _, ok, err := b.GetRecord("hos"); !ok || !errors.Is(err, ErrValueKindMismatch) {
		t.Fatalf("expected kind mismatch, ok=%v err=%v", ok, err)
	}
	if _, ok, err := b.GetString("missing"); ok || err != nil {
		t.Fatalf("expected absent key, ok=%v err=%v", ok, err)
	}
}

func TestBundleCloneIsDeep(t *testing.T) {
	testlog.Start(t)
	b := NewBundle()
	b.PutBlob("blob", []byte{1, 2, 3})
	b.PutRecordList("clocks", []Record{clockRecord("Drive", "10:00")})

	c := b.Clone()
	c.PutString("extra", "x")
	list, _, _ := c.GetRecordList("clocks")
	list[0].Fields[0].Value[0] = 'X'

	if b.Has("extra") {
		t.Fatalf("clone write leaked into source")
	}
	orig, _, _ := b.GetRecordList("clocks")
	if label, _ := orig[0].Str(schema.FieldLabel); label != "Drive" {
		t.Fatalf("clone mutation leaked: %q", label)
	}
}

func TestBundleMergeOverwrites(t *testing.T) {
	testlog.Start(t)
	a := NewBundle()
	a.PutString("k", "old")
	a.PutBool("keep", true)
	b := NewBundle()
	b.PutString("k", "new")
	a.Merge(b)
	if got, _, _ := a.GetString("k"); got != "new" {
		t.Fatalf("merge did not overwrite: %q", got)
	}
	if !a.Has("keep") || a.Len() != 2 {
		t.Fatalf("unexpected merged keys: %v", a.Keys())
	}
}

func TestRecordExpect(t *testing.T) {
	testlog.Start(t)
	r := clockRecord("Drive", "10:00")
	if err := r.Expect(schema.RecClock); err != nil {
		t.Fatalf("expect clock: %v", err)
	}
	if err := r.Expect(schema.RecClockV2); !errors.Is(err, ErrRecordTypeMismatch) {
		t.Fatalf("expected record type mismatch, got %v", err)
	}
	missing := NewRecord(schema.RecClock, tlv.String(schema.FieldLabel, "Drive"))
	if err := missing.Expect(schema.RecClock); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestRecordListRoundTrip(t *testing.T) {
	testlog.Start(t)
	list := []Record{clockRecord("Drive", "10:00"), clockRecord("Shift", "12:00")}
	got, err := DecodeRecordList(EncodeRecordList(list))
	if err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if v, _ := got[1].Str(schema.FieldValue); v != "12:00" {
		t.Fatalf("unexpected second value: %q", v)
	}
	if important, ok := got[0].Flag(schema.FieldImportant); !ok || !important {
		t.Fatalf("important flag lost")
	}
}

func TestRecordListTruncated(t *testing.T) {
	testlog.Start(t)
	raw := EncodeRecordList([]Record{clockRecord("Drive", "10:00")})
	if _, err := DecodeRecordList(raw[:len(raw)-3]); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected invalid length, got %v", err)
	}
	if _, err := DecodeRecordList(raw[:2]); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected truncated, got %v", err)
	}
}

func TestRequestWireRoundTrip(t *testing.T) {
	testlog.Start(t)
	extras := NewBundle()
	extras.PutString("driver", "driver1")
	req := Request{Method: "getHOS", Version: version.MustParse("0.3"), Extras: extras}

	raw, err := MarshalRequest(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalRequest(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Method != "getHOS" || !got.Version.Equal(req.Version) {
		t.Fatalf("unexpected request: %+v", got)
	}
	if d, _, _ := got.Extras.GetString("driver"); d != "driver1" {
		t.Fatalf("extras lost: %q", d)
	}
}

func TestRequestAbsentVersionSurvivesWire(t *testing.T) {
	testlog.Start(t)
	raw, err := MarshalRequest(Request{Method: "getHOS"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalRequest(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.Version.IsZero() {
		t.Fatalf("expected absent version, got %q", got.Version)
	}
}

func TestRequestMalformedVersionRejected(t *testing.T) {
	testlog.Start(t)
	b := NewBundle()
	b.PutString(KeyMethod, "getHOS")
	b.PutString(KeyVersion, "0..3")
	if _, err := RequestFromBundle(b); !errors.Is(err, version.ErrMalformedVersion) {
		t.Fatalf("expected malformed version, got %v", err)
	}
}

func TestResponseWireRoundTrip(t *testing.T) {
	testlog.Start(t)
	payload := NewBundle()
	payload.PutRecord("hos", clockRecord("Drive", "10:00"))
	payload.PutRecordGrid("hos_team", [][]Record{
		{clockRecord("Drive", "1:00")},
		{clockRecord("Drive", "2:00"), clockRecord("Shift", "3:00")},
	})
	payload.PutBlob("blob", []byte(`{"a":1}`))
	resp := Response{ServedVersion: version.MustParse("0.4"), Payload: payload}

	raw, err := MarshalResponse(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalResponse(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.ServedVersion.Equal(version.MustParse("0.4")) || got.Failed() {
		t.Fatalf("unexpected envelope: %+v", got)
	}
	if got.Payload.Has(KeyServedVersion) {
		t.Fatalf("envelope key leaked into payload")
	}
	grid, ok, err := got.Payload.GetRecordGrid("hos_team")
	if err != nil || !ok || len(grid) != 2 || len(grid[1]) != 2 {
		t.Fatalf("unexpected grid: %v ok=%v err=%v", grid, ok, err)
	}
	blob, _, _ := got.Payload.GetBlob("blob")
	if !bytes.Equal(blob, []byte(`{"a":1}`)) {
		t.Fatalf("blob mismatch: %q", blob)
	}
}

func TestResponseErrorWithoutServedVersion(t *testing.T) {
	testlog.Start(t)
	raw, err := MarshalResponse(Response{Error: "unsupported version"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalResponse(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.Failed() || got.Error != "unsupported version" {
		t.Fatalf("unexpected error: %q", got.Error)
	}
	if !got.ServedVersion.IsZero() {
		t.Fatalf("expected no served version")
	}
}

func TestEventWireRoundTrip(t *testing.T) {
	testlog.Start(t)
	extras := NewBundle()
	extras.PutBool("in_gear", true)
	e := NewEvent("com.opencabstandard.VEHICLE_INFORMATION_CHANGED", extras)
	raw, err := MarshalEvent(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalEvent(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != e.ID || got.Action != e.Action {
		t.Fatalf("unexpected event: %+v", got)
	}
	if !got.SentAt.Equal(e.SentAt.Truncate(time.Nanosecond)) {
		t.Fatalf("sent_at mismatch: %v vs %v", got.SentAt, e.SentAt)
	}
	if g, _, _ := got.Extras.GetBool("in_gear"); !g {
		t.Fatalf("extras lost")
	}
}

func TestDecodeRejectsWrongMessageKind(t *testing.T) {
	testlog.Start(t)
	raw, err := MarshalRequest(Request{Method: "getHOS"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := UnmarshalResponse(raw); !errors.Is(err, ErrMessageKindMismatch) {
		t.Fatalf("expected kind mismatch, got %v", err)
	}
}

func TestDecodeHeaderErrors(t *testing.T) {
	testlog.Start(t)
	raw, err := MarshalRequest(Request{Method: "getHOS"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	badMagic := bytes.Clone(raw)
	badMagic[0] ^= 0xFF
	if _, _, err := Decode(bytes.NewReader(badMagic)); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected invalid magic, got %v", err)
	}

	badVersion := bytes.Clone(raw)
	badVersion[5] = 9
	if _, _, err := Decode(bytes.NewReader(badVersion)); !errors.Is(err, ErrUnsupportedWire) {
		t.Fatalf("expected unsupported wire, got %v", err)
	}

	if _, _, err := Decode(bytes.NewReader(raw[:len(raw)-1])); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected truncated, got %v", err)
	}
	if !IsWireError(ErrTruncated) || IsWireError(ErrDataUnavailable) {
		t.Fatalf("IsWireError classification wrong")
	}
}

func TestDecodeRejectsOversizedPayload(t *testing.T) {
	testlog.Start(t)
	head := encodeHeader(Header{
		Magic:      Magic,
		Version:    WireVersion,
		Kind:       MessageRequest,
		PayloadLen: MaxPayloadBytes + 1,
	})
	if _, _, err := Decode(bytes.NewReader(head)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected payload too large, got %v", err)
	}
}

func TestDecodeBundleRejectsUnknownKind(t *testing.T) {
	testlog.Start(t)
	b := NewBundle()
	b.PutString("k", "v")
	raw, err := EncodeBundle(b)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw[2+1] = 99
	if _, err := DecodeBundle(raw); !errors.Is(err, ErrValueKindMismatch) {
		t.Fatalf("expected value kind mismatch, got %v", err)
	}
}
