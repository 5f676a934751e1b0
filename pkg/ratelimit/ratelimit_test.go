package ratelimit

import (
	"testing"
	"time"
)

func TestAllowExhaustsAndRefills(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(3, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("fourth request within the window should be rejected")
	}
	if !l.Allow("5.6.7.8") {
		t.Fatal("other keys have their own bucket")
	}

	now = now.Add(20 * time.Second)
	if !l.Allow("1.2.3.4") {
		t.Fatal("one token should have refilled after a third of the window")
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("only one token should have refilled")
	}
}

func TestDisabledLimiter(t *testing.T) {
	l := New(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !l.Allow("k") {
			t.Fatal("zero limit should disable limiting")
		}
	}
}

func TestEvictAndReset(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(1, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("a")
	l.Allow("b")
	l.Reset("b")
	if !l.Allow("b") {
		t.Fatal("reset key should start with a full bucket")
	}

	now = now.Add(3 * time.Minute)
	l.evict()
	if len(l.entries) != 0 {
		t.Errorf("entries = %d, want 0 after eviction", len(l.entries))
	}
}
