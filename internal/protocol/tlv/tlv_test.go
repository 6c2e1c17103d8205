package tlv

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	in := []Field{
		String(1, "Drive Time Remaining"),
		{ID: 9999, Type: TypeBytes, Value: []byte{0xAA, 0xBB}}, // unknown field id
	}
	b := EncodeFields(in)
	out, err := DecodeFields(b)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(out))
	}
	if out[1].ID != 9999 || out[1].Type != TypeBytes || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[1])
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestTypedAccessors(t *testing.T) {
	fields, err := DecodeFields(EncodeFields([]Field{
		String(1, "VIN123"),
		Bool(2, true),
		F64(3, 3600.5),
		Bytes(4, []byte{1, 2}),
	}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	s, err := fields[0].AsString()
	if err != nil || s != "VIN123" {
		t.Fatalf("string: %q %v", s, err)
	}
	b, err := fields[1].AsBool()
	if err != nil || !b {
		t.Fatalf("bool: %v %v", b, err)
	}
	f, err := fields[2].AsF64()
	if err != nil || f != 3600.5 {
		t.Fatalf("f64: %v %v", f, err)
	}
	raw, err := fields[3].AsBytes()
	if err != nil || !bytes.Equal(raw, []byte{1, 2}) {
		t.Fatalf("bytes: %v %v", raw, err)
	}
	if _, err := fields[0].AsBool(); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
}

func TestBoolRejectsInvalidByte(t *testing.T) {
	f := Field{ID: 1, Type: TypeBool, Value: []byte{7}}
	if _, err := f.AsBool(); err == nil {
		t.Fatalf("expected invalid bool error")
	}
	short := Field{ID: 1, Type: TypeF64, Value: []byte{1}}
	if _, err := short.AsF64(); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected invalid length, got %v", err)
	}
}
