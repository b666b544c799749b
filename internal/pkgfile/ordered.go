package pkgfile

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OrderedMap is an insertion-ordered string->string map, used for
// MetaData.Dependencies and MetaData.KV. Go's built-in map type has no
// iteration order; spec.md §9 requires manifests to preserve the order
// callers wrote entries in, so both of these fields use this slice-backed
// type instead of map[string]string.
type OrderedMap struct {
	keys   []string
	values map[string]string
}

// Set inserts or updates a key, preserving first-insertion position.
func (m *OrderedMap) Set(key, value string) {
	if m.values == nil {
		m.values = map[string]string{}
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key and whether it was present.
func (m *OrderedMap) Get(key string) (string, bool) {
	if m == nil || m.values == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Len returns the number of entries.
func (m *OrderedMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *OrderedMap) Keys() []string {
	if m == nil {
		return nil
	}
	return m.keys
}

// MarshalJSON encodes the map as a JSON object with keys in insertion order.
func (m OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving the key order in which
// json.Decoder's token stream yields them.
func (m *OrderedMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	out := OrderedMap{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected string key, got %v", keyTok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return err
		}
		out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}
