package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/charlalabs/charla/internal/domain"
	"github.com/charlalabs/charla/internal/llm"
)

type fakeCompleter struct {
	out   string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(_ context.Context, _ []llm.Message) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

func TestCadencePolicy(t *testing.T) {
	t.Parallel()

	e := NewExtractor(&fakeCompleter{}, nil)

	tests := []struct {
		turnCount int
		factCount int
		want      bool
	}{
		// Bootstrap phase: always extract, regardless of fact count.
		{0, 2, true},
		{0, 5, true},
		{1, 5, true},
		{5, 5, true},
		{6, 5, true},
		// Past bootstrap, off-interval, enough facts: skip.
		{7, 5, false},
		{9, 5, false},
		// Periodic refresh triggers independent of fact count.
		{8, 2, true},
		{8, 5, true},
		{16, 2, true},
		{16, 5, true},
		// Sparse fact store triggers off-interval too.
		{7, 2, true},
		{9, 0, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("turn=%d/facts=%d", tt.turnCount, tt.factCount), func(t *testing.T) {
			t.Parallel()
			if got := e.ShouldExtract(tt.turnCount, tt.factCount); got != tt.want {
				t.Fatalf("ShouldExtract(%d, %d) = %v, want %v", tt.turnCount, tt.factCount, got, tt.want)
			}
		})
	}
}

func TestUpdateSkipsCallOffCadence(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{out: `{"new": "fact"}`}
	e := NewExtractor(completer, nil)

	existing := domain.NewFactMap()
	existing.Set("a", "1")
	existing.Set("b", "2")
	existing.Set("c", "3")

	got := e.Update(context.Background(), "hola", "¡hola!", existing, 7)
	if completer.calls != 0 {
		t.Fatal("expected no extraction call off cadence")
	}
	if !got.Equal(existing) {
		t.Fatal("expected facts unchanged when cadence skips")
	}
}

func TestUpdateMergesNewFacts(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{out: `{"hometown": "Oaxaca", "a": "overwritten"}`}
	e := NewExtractor(completer, nil)

	existing := domain.NewFactMap()
	existing.Set("a", "original")

	got := e.Update(context.Background(), "soy de Oaxaca", "¡qué chido!", existing, 0)
	if completer.calls != 1 {
		t.Fatalf("expected one extraction call, got %d", completer.calls)
	}
	if got.Len() != 2 {
		t.Fatalf("expected 2 facts, got %d", got.Len())
	}
	if v, _ := got.Get("a"); v != "overwritten" {
		t.Fatalf("new values must take precedence on collision, got %v", v)
	}
	if v, _ := got.Get("hometown"); v != "Oaxaca" {
		t.Fatalf("expected new fact to be added, got %v", v)
	}
	// The input mapping is not mutated.
	if v, _ := existing.Get("a"); v != "original" {
		t.Fatal("Update must not mutate its input")
	}
}

func TestUpdateMergeIsIdempotent(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{out: `{"a": "1"}`}
	e := NewExtractor(completer, nil)

	existing := domain.NewFactMap()
	existing.Set("a", "1")

	got := e.Update(context.Background(), "hola", "hola", existing, 0)
	if !got.Equal(existing) {
		t.Fatal("merging an identical delta must be a no-op")
	}
}

func TestUpdateStripsCodeFences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		out  string
	}{
		{"plain", `{"k": "v"}`},
		{"fenced", "```\n{\"k\": \"v\"}\n```"},
		{"fenced with tag", "```json\n{\"k\": \"v\"}\n```"},
		{"fenced inline", "```{\"k\": \"v\"}```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := NewExtractor(&fakeCompleter{out: tt.out}, nil)
			got := e.Update(context.Background(), "u", "b", nil, 0)
			if v, _ := got.Get("k"); v != "v" {
				t.Fatalf("expected parsed fact from %q, got %v", tt.out, got.Keys())
			}
		})
	}
}

func TestUpdateMalformedOutputIsNoOp(t *testing.T) {
	t.Parallel()

	existing := domain.NewFactMap()
	existing.Set("keep", "me")
	before, err := json.Marshal(existing)
	if err != nil {
		t.Fatal(err)
	}

	for _, out := range []string{
		"Sure! Here are the facts I found about the user.",
		`["not", "an", "object"]`,
		"```json\nnot even json\n```",
		"",
	} {
		e := NewExtractor(&fakeCompleter{out: out}, nil)
		got := e.Update(context.Background(), "u", "b", existing, 0)

		after, err := json.Marshal(got)
		if err != nil {
			t.Fatal(err)
		}
		if string(before) != string(after) {
			t.Fatalf("malformed output %q changed facts: %s -> %s", out, before, after)
		}
	}
}

func TestUpdateTransportErrorIsNoOp(t *testing.T) {
	t.Parallel()

	e := NewExtractor(&fakeCompleter{err: errors.New("rate limited")}, nil)

	existing := domain.NewFactMap()
	existing.Set("keep", "me")

	got := e.Update(context.Background(), "u", "b", existing, 0)
	if !got.Equal(existing) {
		t.Fatal("transport failure must leave facts unchanged")
	}
}

func TestUpdateCoercesNilFacts(t *testing.T) {
	t.Parallel()

	e := NewExtractor(&fakeCompleter{out: `{"first": "fact"}`}, nil)

	got := e.Update(context.Background(), "u", "b", nil, 0)
	if got == nil {
		t.Fatal("expected a mapping, got nil")
	}
	if got.Len() != 1 {
		t.Fatalf("expected 1 fact after coercing nil input, got %d", got.Len())
	}
}

func TestUpdateCoercesSerializedFacts(t *testing.T) {
	t.Parallel()

	e := NewExtractor(&fakeCompleter{out: `{"new": true}`}, nil)

	got := e.Update(context.Background(), "u", "b", `{"old": "fact"}`, 0)
	if got.Len() != 2 {
		t.Fatalf("expected serialized input to be parsed then merged, got %v", got.Keys())
	}
}

func TestUpdateEnforcesFactCap(t *testing.T) {
	t.Parallel()

	// 95 existing + 10 new = 105 candidate keys; the cap keeps the newest 100.
	existing := domain.NewFactMap()
	for i := 0; i < 95; i++ {
		existing.Set(fmt.Sprintf("old_%02d", i), i)
	}

	delta := domain.NewFactMap()
	for i := 0; i < 10; i++ {
		delta.Set(fmt.Sprintf("new_%02d", i), true)
	}
	payload, err := json.Marshal(delta)
	if err != nil {
		t.Fatal(err)
	}

	e := NewExtractor(&fakeCompleter{out: string(payload)}, nil)
	got := e.Update(context.Background(), "u", "b", existing, 0)

	if got.Len() != domain.FactLimit {
		t.Fatalf("expected exactly %d facts, got %d", domain.FactLimit, got.Len())
	}
	// The 5 oldest-inserted keys are gone.
	for i := 0; i < 5; i++ {
		if _, ok := got.Get(fmt.Sprintf("old_%02d", i)); ok {
			t.Fatalf("expected old_%02d to be evicted", i)
		}
	}
	// Everything newer survives.
	if _, ok := got.Get("old_05"); !ok {
		t.Fatal("expected old_05 to survive")
	}
	for i := 0; i < 10; i++ {
		if _, ok := got.Get(fmt.Sprintf("new_%02d", i)); !ok {
			t.Fatalf("expected new_%02d to be present", i)
		}
	}
}
