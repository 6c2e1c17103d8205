package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	Magic       uint32 = 0x4F434142 // "OCAB"
	WireVersion uint16 = 1
	HeaderSize         = 16

	MaxPayloadBytes uint64 = 8 * 1024 * 1024

	entryHeaderSize = 1 + 4
)

// MessageKind tags what a frame carries.
type MessageKind uint16

const (
	MessageRequest  MessageKind = 1
	MessageResponse MessageKind = 2
	MessageEvent    MessageKind = 3
)

// Header is the fixed frame header.
type Header struct {
	Magic      uint32
	Version    uint16
	Kind       MessageKind
	PayloadLen uint64
}

// Encode writes one frame holding b to w.
func Encode(w io.Writer, kind MessageKind, b Bundle) error {
	payload, err := EncodeBundle(b)
	if err != nil {
		return err
	}
	if uint64(len(payload)) > MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	head := encodeHeader(Header{
		Magic:      Magic,
		Version:    WireVersion,
		Kind:       kind,
		PayloadLen: uint64(len(payload)),
	})
	if _, err := w.Write(head); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err = w.Write(payload)
	return err
}

// Decode reads one frame from r.
func Decode(r io.Reader) (MessageKind, Bundle, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return 0, Bundle{}, ErrTruncated
	}
	head, err := parseHeader(headerBytes)
	if err != nil {
		return 0, Bundle{}, err
	}
	if head.PayloadLen > MaxPayloadBytes {
		return 0, Bundle{}, ErrPayloadTooLarge
	}
	if head.PayloadLen == 0 {
		return head.Kind, NewBundle(), nil
	}
	payload := make([]byte, int(head.PayloadLen))
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, Bundle{}, ErrTruncated
	}
	b, err := DecodeBundle(payload)
	if err != nil {
		return 0, Bundle{}, err
	}
	return head.Kind, b, nil
}

func encodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Kind))
	binary.BigEndian.PutUint64(buf[8:16], h.PayloadLen)
	return buf
}

func parseHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, ErrTruncated
	}
	h := Header{
		Magic:      binary.BigEndian.Uint32(buf[0:4]),
		Version:    binary.BigEndian.Uint16(buf[4:6]),
		Kind:       MessageKind(binary.BigEndian.Uint16(buf[6:8])),
		PayloadLen: binary.BigEndian.Uint64(buf[8:16]),
	}
	if h.Magic != Magic {
		return Header{}, ErrInvalidMagic
	}
	if h.Version != WireVersion {
		return Header{}, ErrUnsupportedWire
	}
	return h, nil
}

// EncodeBundle encodes entries in key order: u16 key length, key, u8 kind,
// u32 value length, value.
func EncodeBundle(b Bundle) ([]byte, error) {
	out := make([]byte, 0)
	for _, key := range b.Keys() {
		if len(key) > int(^uint16(0)) {
			return nil, ErrInvalidLength
		}
		v := b.entries[key]
		value, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		if len(value) > int(^uint32(0)) {
			return nil, ErrInvalidLength
		}
		var keyLen [2]byte
		binary.BigEndian.PutUint16(keyLen[:], uint16(len(key)))
		out = append(out, keyLen[:]...)
		out = append(out, key...)
		out = append(out, byte(v.Kind))
		var valueLen [4]byte
		binary.BigEndian.PutUint32(valueLen[:], uint32(len(value)))
		out = append(out, valueLen[:]...)
		out = append(out, value...)
	}
	return out, nil
}

// DecodeBundle reverses EncodeBundle.
func DecodeBundle(payload []byte) (Bundle, error) {
	b := NewBundle()
	for offset := 0; offset < len(payload); {
		if len(payload)-offset < 2 {
			return Bundle{}, ErrTruncated
		}
		keyLen := int(binary.BigEndian.Uint16(payload[offset : offset+2]))
		offset += 2
		if len(payload)-offset < keyLen+entryHeaderSize {
			return Bundle{}, ErrTruncated
		}
		key := string(payload[offset : offset+keyLen])
		offset += keyLen
		kind := Kind(payload[offset])
		l := binary.BigEndian.Uint32(payload[offset+1 : offset+5])
		offset += entryHeaderSize
		if l > uint32(len(payload)-offset) {
			return Bundle{}, ErrInvalidLength
		}
		end := offset + int(l)
		v, err := decodeValue(kind, payload[offset:end])
		if err != nil {
			return Bundle{}, err
		}
		b.entries[key] = v
		offset = end
	}
	return b, nil
}

func encodeValue(v Value) ([]byte, error) {
	switch v.Kind {
	case KindString:
		return []byte(v.String), nil
	case KindBool:
		if v.Bool {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case KindRecord:
		return v.Record.MarshalBinary()
	case KindRecordList:
		return EncodeRecordList(v.List), nil
	case KindRecordGrid:
		out := make([]byte, 0)
		for _, row := range v.Grid {
			out = appendChunk(out, EncodeRecordList(row))
		}
		return out, nil
	case KindBlob:
		return bytes.Clone(v.Blob), nil
	case KindBundle:
		return EncodeBundle(v.Bundle)
	default:
		return nil, ErrValueKindMismatch
	}
}

func decodeValue(kind Kind, raw []byte) (Value, error) {
	v := Value{Kind: kind}
	switch kind {
	case KindString:
		v.String = string(raw)
	case KindBool:
		if len(raw) != 1 || raw[0] > 1 {
			return Value{}, ErrInvalidLength
		}
		v.Bool = raw[0] == 1
	case KindRecord:
		r, err := UnmarshalRecord(raw)
		if err != nil {
			return Value{}, err
		}
		v.Record = r
	case KindRecordList:
		list, err := DecodeRecordList(raw)
		if err != nil {
			return Value{}, err
		}
		v.List = list
	case KindRecordGrid:
		rows, err := splitChunks(raw)
		if err != nil {
			return Value{}, err
		}
		v.Grid = make([][]Record, 0, len(rows))
		for _, row := range rows {
			list, err := DecodeRecordList(row)
			if err != nil {
				return Value{}, err
			}
			v.Grid = append(v.Grid, list)
		}
	case KindBlob:
		v.Blob = bytes.Clone(raw)
	case KindBundle:
		nested, err := DecodeBundle(raw)
		if err != nil {
			return Value{}, err
		}
		v.Bundle = nested
	default:
		return Value{}, ErrValueKindMismatch
	}
	return v, nil
}

func marshal(kind MessageKind, b Bundle) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, kind, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshal(want MessageKind, raw []byte) (Bundle, error) {
	kind, b, err := Decode(bytes.NewReader(raw))
	if err != nil {
		return Bundle{}, err
	}
	if kind != want {
		return Bundle{}, ErrMessageKindMismatch
	}
	return b, nil
}

func MarshalRequest(req Request) ([]byte, error) {
	return marshal(MessageRequest, req.ToBundle())
}

func UnmarshalRequest(raw []byte) (Request, error) {
	b, err := unmarshal(MessageRequest, raw)
	if err != nil {
		return Request{}, err
	}
	return RequestFromBundle(b)
}

func MarshalResponse(resp Response) ([]byte, error) {
	return marshal(MessageResponse, resp.ToBundle())
}

func UnmarshalResponse(raw []byte) (Response, error) {
	b, err := unmarshal(MessageResponse, raw)
	if err != nil {
		return Response{}, err
	}
	return ResponseFromBundle(b)
}

func MarshalEvent(e Event) ([]byte, error) {
	return marshal(MessageEvent, e.ToBundle())
}

func UnmarshalEvent(raw []byte) (Event, error) {
	b, err := unmarshal(MessageEvent, raw)
	if err != nil {
		return Event{}, err
	}
	return EventFromBundle(b)
}

// IsWireError reports whether err came from frame or bundle decoding.
func IsWireError(err error) bool {
	for _, target := range []error{
		ErrInvalidMagic, ErrUnsupportedWire, ErrTruncated, ErrInvalidLength,
		ErrPayloadTooLarge, ErrMessageKindMismatch, ErrValueKindMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
