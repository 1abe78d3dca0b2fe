package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresDueAlarms(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	var fired []string
	f.Schedule("a", start.Add(2*time.Second), func() { fired = append(fired, "a") })
	f.Schedule("b", start.Add(5*time.Second), func() { fired = append(fired, "b") })

	f.Advance(3 * time.Second)
	if len(fired) != 1 || fired[0] != "a" {
		t.Fatalf("expected only a to fire, got %v", fired)
	}
	if f.Pending("a") {
		t.Fatal("a should no longer be pending after firing")
	}
	if !f.Pending("b") {
		t.Fatal("b should still be pending")
	}

	f.Advance(3 * time.Second)
	if len(fired) != 2 || fired[1] != "b" {
		t.Fatalf("expected b to fire next, got %v", fired)
	}
}

func TestFakeScheduleReplacesPending(t *testing.T) {
	start := time.Now()
	f := NewFake(start)

	var fired []string
	f.Schedule("s", start.Add(time.Second), func() { fired = append(fired, "first") })
	f.Schedule("s", start.Add(2*time.Second), func() { fired = append(fired, "second") })

	f.Advance(3 * time.Second)
	if len(fired) != 1 || fired[0] != "second" {
		t.Fatalf("expected only the replacement alarm to fire, got %v", fired)
	}
}

func TestFakeCancel(t *testing.T) {
	start := time.Now()
	f := NewFake(start)

	fired := false
	f.Schedule("s", start.Add(time.Second), func() { fired = true })
	f.Cancel("s")

	f.Advance(2 * time.Second)
	if fired {
		t.Fatal("canceled alarm should not fire")
	}
	if f.Pending("s") {
		t.Fatal("canceled alarm should not be pending")
	}
}

func TestFakeAlarmsFireInTimeOrder(t *testing.T) {
	start := time.Now()
	f := NewFake(start)

	var order []string
	f.Schedule("late", start.Add(3*time.Second), func() { order = append(order, "late") })
	f.Schedule("early", start.Add(time.Second), func() { order = append(order, "early") })

	f.Advance(5 * time.Second)
	if len(order) != 2 || order[0] != "early" || order[1] != "late" {
		t.Fatalf("expected early before late, got %v", order)
	}
}
