package protocol

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/danmuck/opencab/internal/protocol/schema"
	"github.com/danmuck/opencab/internal/protocol/tlv"
)

// Record is one parcelled structured object: a record type tag plus its TLV
// fields. Contract packages build and read records; protocol only moves them.
type Record struct {
	Type   uint32
	Fields []tlv.Field
}

// NewRecord builds a record of the given type.
func NewRecord(recordType uint32, fields ...tlv.Field) Record {
	return Record{Type: recordType, Fields: fields}
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	out := Record{Type: r.Type, Fields: make([]tlv.Field, len(r.Fields))}
	for i, f := range r.Fields {
		out.Fields[i] = tlv.Field{ID: f.ID, Type: f.Type, Value: slices.Clone(f.Value)}
	}
	return out
}

// Expect checks the record type and validates fields against the schema table.
func (r Record) Expect(recordType uint32) error {
	if r.Type != recordType {
		return fmt.Errorf("%w: got %d want %d", ErrRecordTypeMismatch, r.Type, recordType)
	}
	return schema.Validate(recordType, r.Fields)
}

// Str returns the string field id. ok is false when the field is absent or not a string.
func (r Record) Str(id uint16) (string, bool) {
	f, ok := tlv.GetField(r.Fields, id)
	if !ok {
		return "", false
	}
	v, err := f.AsString()
	return v, err == nil
}

func (r Record) Flag(id uint16) (bool, bool) {
	f, ok := tlv.GetField(r.Fields, id)
	if !ok {
		return false, false
	}
	v, err := f.AsBool()
	return v, err == nil
}

func (r Record) Float(id uint16) (float64, bool) {
	f, ok := tlv.GetField(r.Fields, id)
	if !ok {
		return 0, false
	}
	v, err := f.AsF64()
	return v, err == nil
}

func (r Record) Raw(id uint16) ([]byte, bool) {
	f, ok := tlv.GetField(r.Fields, id)
	if !ok {
		return nil, false
	}
	v, err := f.AsBytes()
	return v, err == nil
}

// MarshalBinary encodes the record as u32 type followed by its TLV fields.
func (r Record) MarshalBinary() ([]byte, error) {
	body := tlv.EncodeFields(r.Fields)
	out := make([]byte, 4, 4+len(body))
	binary.BigEndian.PutUint32(out, r.Type)
	return append(out, body...), nil
}

// UnmarshalRecord decodes one record produced by MarshalBinary.
func UnmarshalRecord(b []byte) (Record, error) {
	if len(b) < 4 {
		return Record{}, ErrTruncated
	}
	fields, err := tlv.DecodeFields(b[4:])
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return Record{Type: binary.BigEndian.Uint32(b[:4]), Fields: fields}, nil
}

// EncodeRecordList encodes records as a sequence of u32 length-prefixed items.
func EncodeRecordList(list []Record) []byte {
	out := make([]byte, 0)
	for _, r := range list {
		body, _ := r.MarshalBinary()
		out = appendChunk(out, body)
	}
	return out
}

// DecodeRecordList reverses EncodeRecordList.
func DecodeRecordList(b []byte) ([]Record, error) {
	chunks, err := splitChunks(b)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(chunks))
	for _, chunk := range chunks {
		r, err := UnmarshalRecord(chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func appendChunk(out, chunk []byte) []byte {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(chunk)))
	out = append(out, n[:]...)
	return append(out, chunk...)
}

func splitChunks(b []byte) ([][]byte, error) {
	chunks := make([][]byte, 0)
	for offset := 0; offset < len(b); {
		if len(b)-offset < 4 {
			return nil, ErrTruncated
		}
		l := binary.BigEndian.Uint32(b[offset : offset+4])
		offset += 4
		if l > uint32(len(b)-offset) {
			return nil, ErrInvalidLength
		}
		end := offset + int(l)
		chunks = append(chunks, b[offset:end])
		offset = end
	}
	return chunks, nil
}
