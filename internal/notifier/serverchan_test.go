package notifier

import (
	"testing"
	"time"
)

func TestUnconfiguredSkips(t *testing.T) {
	n := NewServerChan("", "", 5)
	sent, err := n.Send("title", "content")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent {
		t.Error("unconfigured notifier reported a send")
	}
	if n.Configured() {
		t.Error("Configured() = true without credentials")
	}
}

func TestRateLimitWindow(t *testing.T) {
	n := NewServerChan("uid", "key", 3)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !n.allow() {
			t.Fatalf("send %d blocked under limit", i+1)
		}
	}
	if n.allow() {
		t.Error("4th send within a minute allowed")
	}

	// Window slides: a minute later sends are allowed again.
	now = now.Add(61 * time.Second)
	if !n.allow() {
		t.Error("send blocked after window elapsed")
	}
}
