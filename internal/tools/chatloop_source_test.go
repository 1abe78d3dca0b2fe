package tools

import (
	"context"
	"errors"
	"testing"
)

func TestChatLoopSource_SuccessPassesThrough(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeTool{name: "read_file", result: NewResult("file contents")})

	src := NewChatLoopSource(reg)
	clTools := src.Tools()
	if len(clTools) != 1 {
		t.Fatalf("Tools() length = %d, want 1", len(clTools))
	}

	out, err := clTools[0].Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out != "file contents" {
		t.Errorf("Execute() = %q, want %q", out, "file contents")
	}
}

func TestChatLoopSource_ErrorWithExplicitErr(t *testing.T) {
	reg := NewRegistry()
	wantErr := errors.New("boom")
	reg.Register(&fakeTool{name: "exec", result: ErrorResult("exec failed").WithError(wantErr)})

	src := NewChatLoopSource(reg)
	out, err := src.Tools()[0].Execute(context.Background(), nil)
	if out != "" {
		t.Errorf("Execute() output = %q on error, want empty", out)
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("Execute() error = %v, want %v", err, wantErr)
	}
}

func TestChatLoopSource_ErrorWithoutExplicitErr(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeTool{name: "web_fetch", result: ErrorResult("fetch timed out")})

	src := NewChatLoopSource(reg)
	out, err := src.Tools()[0].Execute(context.Background(), nil)
	if out != "" {
		t.Errorf("Execute() output = %q on error, want empty", out)
	}
	if err == nil || err.Error() != "fetch timed out" {
		t.Errorf("Execute() error = %v, want %q", err, "fetch timed out")
	}
}

func TestChatLoopSource_DefinitionCarriesToolMetadata(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeTool{name: "sessions_send", result: NewResult("ok")})

	src := NewChatLoopSource(reg)
	def := src.Tools()[0].Definition
	if def.Function.Name != "sessions_send" {
		t.Errorf("Definition.Function.Name = %q, want %q", def.Function.Name, "sessions_send")
	}
}
