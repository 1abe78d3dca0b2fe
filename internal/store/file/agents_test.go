package file

import (
	"context"
	"testing"
)

func TestFileAgentStore_GetByKey_Deterministic(t *testing.T) {
	s := NewFileAgentStore()
	ctx := context.Background()

	a, err := s.GetByKey(ctx, "default")
	if err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}
	b, err := s.GetByKey(ctx, "default")
	if err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("GetByKey(%q) returned different UUIDs across calls: %v vs %v", "default", a.ID, b.ID)
	}
}

func TestFileAgentStore_GetByKey_EmptyKey(t *testing.T) {
	s := NewFileAgentStore()
	if _, err := s.GetByKey(context.Background(), ""); err == nil {
		t.Error("GetByKey(\"\") error = nil, want an error")
	}
}

func TestFileAgentStore_FirstInteractorIsImplicitWriter(t *testing.T) {
	s := NewFileAgentStore()
	ctx := context.Background()
	agent, _ := s.GetByKey(ctx, "default")

	ok, err := s.IsGroupFileWriter(ctx, agent.ID, "group1", "u1")
	if err != nil {
		t.Fatalf("IsGroupFileWriter() error = %v", err)
	}
	if !ok {
		t.Error("IsGroupFileWriter() = false for the first user in an empty group, want true")
	}
}

func TestFileAgentStore_AddThenOnlyListedWritersAllowed(t *testing.T) {
	s := NewFileAgentStore()
	ctx := context.Background()
	agent, _ := s.GetByKey(ctx, "default")

	if err := s.AddGroupFileWriter(ctx, agent.ID, "group1", "u1", "Alice", "alice"); err != nil {
		t.Fatalf("AddGroupFileWriter() error = %v", err)
	}

	ok, _ := s.IsGroupFileWriter(ctx, agent.ID, "group1", "u1")
	if !ok {
		t.Error("IsGroupFileWriter() = false for a registered writer, want true")
	}

	ok, _ = s.IsGroupFileWriter(ctx, agent.ID, "group1", "u2")
	if ok {
		t.Error("IsGroupFileWriter() = true for a non-writer once the writer list is non-empty, want false")
	}
}

func TestFileAgentStore_RemoveGroupFileWriter(t *testing.T) {
	s := NewFileAgentStore()
	ctx := context.Background()
	agent, _ := s.GetByKey(ctx, "default")

	s.AddGroupFileWriter(ctx, agent.ID, "group1", "u1", "Alice", "alice")
	if err := s.RemoveGroupFileWriter(ctx, agent.ID, "group1", "u1"); err != nil {
		t.Fatalf("RemoveGroupFileWriter() error = %v", err)
	}

	writers, _ := s.ListGroupFileWriters(ctx, agent.ID, "group1")
	if len(writers) != 0 {
		t.Errorf("ListGroupFileWriters() length = %d after removal, want 0", len(writers))
	}
}

func TestFileAgentStore_AddGroupFileWriter_NoDuplicate(t *testing.T) {
	s := NewFileAgentStore()
	ctx := context.Background()
	agent, _ := s.GetByKey(ctx, "default")

	s.AddGroupFileWriter(ctx, agent.ID, "group1", "u1", "Alice", "alice")
	s.AddGroupFileWriter(ctx, agent.ID, "group1", "u1", "Alice", "alice")

	writers, _ := s.ListGroupFileWriters(ctx, agent.ID, "group1")
	if len(writers) != 1 {
		t.Errorf("ListGroupFileWriters() length = %d after duplicate add, want 1", len(writers))
	}
}
