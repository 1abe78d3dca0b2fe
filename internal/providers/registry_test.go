package providers

import (
	"context"
	"sort"
	"testing"
)

type fakeProvider struct{ name string }

func (f *fakeProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return &ChatResponse{Content: "ok"}, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	return &ChatResponse{Content: "ok"}, nil
}

func (f *fakeProvider) DefaultModel() string { return "fake-model" }
func (f *fakeProvider) Name() string         { return f.name }

func TestRegistry_GetUnregistered(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("anthropic"); err == nil {
		t.Error("Get() on empty registry returned nil error, want not-registered error")
	}
}

func TestRegistry_DefaultEmpty(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Default(); err == nil {
		t.Error("Default() on empty registry returned nil error, want no-provider error")
	}
}

func TestRegistry_FirstRegisteredIsDefault(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeProvider{name: "anthropic"})
	r.Register(&fakeProvider{name: "openai"})

	def, err := r.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if def.Name() != "anthropic" {
		t.Errorf("Default().Name() = %q, want %q", def.Name(), "anthropic")
	}
}

func TestRegistry_GetByName(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeProvider{name: "openai"})

	p, err := r.Get("openai")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("Get().Name() = %q, want %q", p.Name(), "openai")
	}
}

func TestRegistry_RegisterReplacesSameName(t *testing.T) {
	r := NewRegistry()
	first := &fakeProvider{name: "openai"}
	second := &fakeProvider{name: "openai"}
	r.Register(first)
	r.Register(second)

	p, _ := r.Get("openai")
	if p != Provider(second) {
		t.Error("Register() with a duplicate name did not replace the prior instance")
	}
	if len(r.Names()) != 1 {
		t.Errorf("Names() length = %d, want 1 (re-register should not duplicate)", len(r.Names()))
	}
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeProvider{name: "anthropic"})
	r.Register(&fakeProvider{name: "groq"})

	names := r.Names()
	sort.Strings(names)
	want := []string{"anthropic", "groq"}
	if len(names) != len(want) || names[0] != want[0] || names[1] != want[1] {
		t.Errorf("Names() = %v, want %v", names, want)
	}
}
