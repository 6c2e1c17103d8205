package protocol

import (
	"fmt"
	"maps"
	"slices"
)

// Kind tags the value stored under a bundle key.
type Kind uint8

const (
	KindString     Kind = 1
	KindBool       Kind = 2
	KindRecord     Kind = 3
	KindRecordList Kind = 4
	KindRecordGrid Kind = 5
	KindBlob       Kind = 6
	KindBundle     Kind = 7
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindRecord:
		return "record"
	case KindRecordList:
		return "record_list"
	case KindRecordGrid:
		return "record_grid"
	case KindBlob:
		return "blob"
	case KindBundle:
		return "bundle"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one typed bundle entry. Exactly one payload field is meaningful,
// selected by Kind.
type Value struct {
	Kind   Kind
	String string
	Bool   bool
	Record Record
	List   []Record
	Grid   [][]Record
	Blob   []byte
	Bundle Bundle
}

// Bundle is a typed key/value map. The zero Bundle is empty and ready to use
// for reads; writes allocate on first use.
type Bundle struct {
	entries map[string]Value
}

func NewBundle() Bundle {
	return Bundle{entries: make(map[string]Value)}
}

func (b *Bundle) put(key string, v Value) {
	if b.entries == nil {
		b.entries = make(map[string]Value)
	}
	b.entries[key] = v
}

func (b *Bundle) PutString(key, v string) {
	b.put(key, Value{Kind: KindString, String: v})
}

func (b *Bundle) PutBool(key string, v bool) {
	b.put(key, Value{Kind: KindBool, Bool: v})
}

func (b *Bundle) PutRecord(key string, r Record) {
	b.put(key, Value{Kind: KindRecord, Record: r.Clone()})
}

func (b *Bundle) PutRecordList(key string, list []Record) {
	out := make([]Record, len(list))
	for i, r := range list {
		out[i] = r.Clone()
	}
	b.put(key, Value{Kind: KindRecordList, List: out})
}

func (b *Bundle) PutRecordGrid(key string, grid [][]Record) {
	out := make([][]Record, len(grid))
	for i, row := range grid {
		out[i] = make([]Record, len(row))
		for j, r := range row {
			out[i][j] = r.Clone()
		}
	}
	b.put(key, Value{Kind: KindRecordGrid, Grid: out})
}

func (b *Bundle) PutBlob(key string, blob []byte) {
	b.put(key, Value{Kind: KindBlob, Blob: slices.Clone(blob)})
}

func (b *Bundle) PutBundle(key string, nested Bundle) {
	b.put(key, Value{Kind: KindBundle, Bundle: nested.Clone()})
}

// Remove deletes key if present.
func (b *Bundle) Remove(key string) {
	delete(b.entries, key)
}

func (b Bundle) Has(key string) bool {
	_, ok := b.entries[key]
	return ok
}

func (b Bundle) Len() int {
	return len(b.entries)
}

// Keys returns the keys in ascending order.
func (b Bundle) Keys() []string {
	return slices.Sorted(maps.Keys(b.entries))
}

// Get returns the raw value under key.
func (b Bundle) Get(key string) (Value, bool) {
	v, ok := b.entries[key]
	return v, ok
}

func (b Bundle) lookup(key string, kind Kind) (Value, bool, error) {
	v, ok := b.entries[key]
	if !ok {
		return Value{}, false, nil
	}
	if v.Kind != kind {
		return Value{}, true, fmt.Errorf("%w: key %q holds %s, want %s", ErrValueKindMismatch, key, v.Kind, kind)
	}
	return v, true, nil
}

// GetString returns the string under key. ok is false when the key is absent.
func (b Bundle) GetString(key string) (string, bool, error) {
	v, ok, err := b.lookup(key, KindString)
	return v.String, ok, err
}

func (b Bundle) GetBool(key string) (bool, bool, error) {
	v, ok, err := b.lookup(key, KindBool)
	return v.Bool, ok, err
}

func (b Bundle) GetRecord(key string) (Record, bool, error) {
	v, ok, err := b.lookup(key, KindRecord)
	return v.Record, ok, err
}

func (b Bundle) GetRecordList(key string) ([]Record, bool, error) {
	v, ok, err := b.lookup(key, KindRecordList)
	return v.List, ok, err
}

func (b Bundle) GetRecordGrid(key string) ([][]Record, bool, error) {
	v, ok, err := b.lookup(key, KindRecordGrid)
	return v.Grid, ok, err
}

func (b Bundle) GetBlob(key string) ([]byte, bool, error) {
	v, ok, err := b.lookup(key, KindBlob)
	return slices.Clone(v.Blob), ok, err
}

func (b Bundle) GetBundle(key string) (Bundle, bool, error) {
	v, ok, err := b.lookup(key, KindBundle)
	return v.Bundle, ok, err
}

// Clone returns a deep copy.
func (b Bundle) Clone() Bundle {
	if b.entries == nil {
		return Bundle{}
	}
	out := NewBundle()
	for k, v := range b.entries {
		switch v.Kind {
		case KindRecord:
			out.PutRecord(k, v.Record)
		case KindRecordList:
			out.PutRecordList(k, v.List)
		case KindRecordGrid:
			out.PutRecordGrid(k, v.Grid)
		case KindBlob:
			out.PutBlob(k, v.Blob)
		case KindBundle:
			out.PutBundle(k, v.Bundle)
		default:
			out.entries[k] = v
		}
	}
	return out
}

// Merge copies every entry of other into b, overwriting existing keys.
func (b *Bundle) Merge(other Bundle) {
	for _, k := range other.Keys() {
		v := other.entries[k]
		switch v.Kind {
		case KindRecord:
			b.PutRecord(k, v.Record)
		case KindRecordList:
			b.PutRecordList(k, v.List)
		case KindRecordGrid:
			b.PutRecordGrid(k, v.Grid)
		case KindBlob:
			b.PutBlob(k, v.Blob)
		case KindBundle:
			b.PutBundle(k, v.Bundle)
		default:
			b.put(k, v)
		}
	}
}
