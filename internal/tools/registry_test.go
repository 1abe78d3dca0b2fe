package tools

import (
	"context"
	"testing"
)

type fakeTool struct {
	name   string
	result *Result
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake tool " + f.name }
func (f *fakeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (f *fakeTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	return f.result
}

func TestRegistry_RegisterGetCount(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "read_file", result: NewResult("ok")})

	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", r.Count())
	}
	tool, ok := r.Get("read_file")
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if tool.Name() != "read_file" {
		t.Errorf("tool.Name() = %q, want %q", tool.Name(), "read_file")
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "exec"})
	r.Unregister("exec")

	if _, ok := r.Get("exec"); ok {
		t.Error("Get() found a tool after Unregister, want not found")
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}

func TestRegistry_ListAndAll(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "a"})
	r.Register(&fakeTool{name: "b"})

	if len(r.List()) != 2 {
		t.Errorf("List() length = %d, want 2", len(r.List()))
	}
	if len(r.All()) != 2 {
		t.Errorf("All() length = %d, want 2", len(r.All()))
	}
}

func TestToProviderDef(t *testing.T) {
	tool := &fakeTool{name: "web_search"}
	def := ToProviderDef(tool)

	if def.Type != "function" {
		t.Errorf("def.Type = %q, want %q", def.Type, "function")
	}
	if def.Function.Name != "web_search" {
		t.Errorf("def.Function.Name = %q, want %q", def.Function.Name, "web_search")
	}
	if def.Function.Description != "fake tool web_search" {
		t.Errorf("def.Function.Description = %q, want %q", def.Function.Description, "fake tool web_search")
	}
}
