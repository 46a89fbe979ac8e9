package domain

import (
	"encoding/json"
	"testing"
)

func TestFactMapPreservesInsertionOrder(t *testing.T) {
	t.Parallel()

	m := NewFactMap()
	m.Set("likes_tacos", true)
	m.Set("hometown", "Austin")
	m.Set("hobbies", []any{"climbing", "chess"})

	got := m.Keys()
	want := []string{"likes_tacos", "hometown", "hobbies"}
	for i, k := range want {
		if got[i] != k {
			t.Fatalf("key %d: got %q, want %q", i, got[i], k)
		}
	}
}

func TestFactMapSetExistingKeyKeepsPosition(t *testing.T) {
	t.Parallel()

	m := NewFactMap()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("a", 99)

	keys := m.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("unexpected key order: %v", keys)
	}
	v, _ := m.Get("a")
	if v != 99 {
		t.Fatalf("expected overwritten value 99, got %v", v)
	}
}

func TestFactMapJSONRoundTripPreservesOrder(t *testing.T) {
	t.Parallel()

	in := `{"z_first":"1","a_second":true,"m_third":["x","y"]}`
	var m FactMap
	if err := json.Unmarshal([]byte(in), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	out, err := json.Marshal(&m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != in {
		t.Fatalf("round trip changed order or content:\n in: %s\nout: %s", in, out)
	}
}

func TestFactMapUnmarshalNull(t *testing.T) {
	t.Parallel()

	var m FactMap
	if err := json.Unmarshal([]byte("null"), &m); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("expected empty mapping, got %d entries", m.Len())
	}
}

func TestFactMapTruncateEvictsOldest(t *testing.T) {
	t.Parallel()

	m := NewFactMap()
	m.Set("one", 1)
	m.Set("two", 2)
	m.Set("three", 3)
	m.Truncate(2)

	if m.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", m.Len())
	}
	if _, ok := m.Get("one"); ok {
		t.Fatal("oldest key should have been evicted")
	}
	keys := m.Keys()
	if keys[0] != "two" || keys[1] != "three" {
		t.Fatalf("unexpected survivors: %v", keys)
	}
}

func TestNormalizeFacts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      any
		wantLen int
	}{
		{"nil", nil, 0},
		{"serialized object", `{"a":"1","b":"2"}`, 2},
		{"empty string", "", 0},
		{"garbage string", "not json at all", 0},
		{"wrong shape", `["a","b"]`, 0},
		{"plain map", map[string]any{"x": true}, 1},
		{"bool", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NormalizeFacts(tt.in)
			if got == nil {
				t.Fatal("NormalizeFacts returned nil")
			}
			if got.Len() != tt.wantLen {
				t.Fatalf("expected %d entries, got %d", tt.wantLen, got.Len())
			}
		})
	}
}

func TestFactMapEqual(t *testing.T) {
	t.Parallel()

	a := NewFactMap()
	a.Set("k", "v")
	b := NewFactMap()
	b.Set("k", "v")
	if !a.Equal(b) {
		t.Fatal("expected structurally equal maps to compare equal")
	}

	b.Set("k2", "v2")
	if a.Equal(b) {
		t.Fatal("expected maps of different size to compare unequal")
	}

	c := NewFactMap()
	c.Set("k", "other")
	if a.Equal(c) {
		t.Fatal("expected maps with different values to compare unequal")
	}
}
