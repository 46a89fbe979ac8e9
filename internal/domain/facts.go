package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// FactLimit caps the number of learner facts kept per user. On overflow the
// oldest-inserted keys are evicted first.
const FactLimit = 100

// FactMap is an insertion-ordered mapping from free-form descriptive keys to
// arbitrary-shaped values (string, list, or boolean). Setting an existing key
// overwrites its value but keeps its original position, so iteration order is
// always first-insertion order. JSON round-trips preserve that order.
type FactMap struct {
	keys   []string
	values map[string]any
}

// NewFactMap returns an empty fact mapping.
func NewFactMap() *FactMap {
	return &FactMap{values: make(map[string]any)}
}

// Len returns the number of stored facts.
func (m *FactMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the fact keys in insertion order.
func (m *FactMap) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Get returns the value stored under key.
func (m *FactMap) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Set stores value under key. A new key is appended; an existing key keeps
// its position and has its value overwritten.
func (m *FactMap) Set(key string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Merge applies every entry of other, in other's iteration order. Colliding
// keys are overwritten: new values always take precedence over old.
func (m *FactMap) Merge(other *FactMap) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		m.Set(k, other.values[k])
	}
}

// Truncate drops the oldest-inserted keys until at most max remain.
func (m *FactMap) Truncate(max int) {
	if m == nil || max < 0 || len(m.keys) <= max {
		return
	}
	drop := m.keys[:len(m.keys)-max]
	for _, k := range drop {
		delete(m.values, k)
	}
	m.keys = append([]string(nil), m.keys[len(m.keys)-max:]...)
}

// Clone returns a deep-enough copy: key order and the key→value table are
// independent of the receiver. Values themselves are shared, which is safe
// because fact values are never mutated in place.
func (m *FactMap) Clone() *FactMap {
	out := NewFactMap()
	if m == nil {
		return out
	}
	out.keys = append(out.keys, m.keys...)
	for k, v := range m.values {
		out.values[k] = v
	}
	return out
}

// Equal reports structural equality: same keys in the same order with
// deeply-equal values.
func (m *FactMap) Equal(other *FactMap) bool {
	if m.Len() != other.Len() {
		return false
	}
	if m == nil || other == nil {
		return true
	}
	for i, k := range m.keys {
		if other.keys[i] != k {
			return false
		}
		if !reflect.DeepEqual(m.values[k], other.values[k]) {
			return false
		}
	}
	return true
}

// MarshalJSON renders the mapping as a JSON object in insertion order.
func (m *FactMap) MarshalJSON() ([]byte, error) {
	if m == nil || len(m.keys) == 0 {
		return []byte("{}"), nil
	}
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
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving its key order. JSON null
// decodes to an empty mapping.
func (m *FactMap) UnmarshalJSON(data []byte) error {
	m.keys = nil
	m.values = make(map[string]any)

	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode facts: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decode facts: expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode facts key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("decode facts key: unexpected token %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode facts value for %q: %w", key, err)
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("decode facts value for %q: %w", key, err)
		}
		m.Set(key, value)
	}
	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode facts: %w", err)
	}
	return nil
}

// NormalizeFacts coerces whatever shape the storage layer hands us into a
// canonical FactMap. Serialized JSON is parsed; nil, unparseable, or
// wrong-shaped input yields an empty mapping rather than an error, because
// callers must never fail a turn over a malformed fact payload.
func NormalizeFacts(v any) *FactMap {
	switch fv := v.(type) {
	case nil:
		return NewFactMap()
	case *FactMap:
		if fv == nil {
			return NewFactMap()
		}
		return fv
	case FactMap:
		return &fv
	case string:
		return factsFromJSON([]byte(fv))
	case []byte:
		return factsFromJSON(fv)
	case map[string]any:
		// Go map order is unspecified, so impose a stable one.
		out := NewFactMap()
		keys := make([]string, 0, len(fv))
		for k := range fv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out.Set(k, fv[k])
		}
		return out
	default:
		return NewFactMap()
	}
}

func factsFromJSON(data []byte) *FactMap {
	if strings.TrimSpace(string(data)) == "" {
		return NewFactMap()
	}
	out := NewFactMap()
	if err := out.UnmarshalJSON(data); err != nil {
		return NewFactMap()
	}
	return out
}
