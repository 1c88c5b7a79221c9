package service

import (
	"testing"
	"time"
)

func TestThrottleGateAllowsFirstCheck(t *testing.T) {
	gate := NewThrottleGate(24 * time.Hour)
	if !gate.Allow(nil, time.Now()) {
		t.Fatal("a player never checked before must pass the gate")
	}
}

func TestThrottleGateWithinCooldown(t *testing.T) {
	gate := NewThrottleGate(24 * time.Hour)
	now := time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC)

	recent := now.Add(-time.Hour)
	if gate.Allow(&recent, now) {
		t.Fatal("a check one hour ago must be rejected inside a 24h cooldown")
	}

	old := now.Add(-25 * time.Hour)
	if !gate.Allow(&old, now) {
		t.Fatal("a check 25 hours ago must pass a 24h cooldown")
	}
}

func TestThrottleGateRetryAfter(t *testing.T) {
	gate := NewThrottleGate(24 * time.Hour)
	last := time.Date(2024, 1, 5, 21, 0, 0, 0, time.UTC)
	want := last.Add(24 * time.Hour)
	if got := gate.RetryAfter(last); !got.Equal(want) {
		t.Fatalf("unexpected retry time: got %v, want %v", got, want)
	}
}

func TestThrottleGateDefaultCooldown(t *testing.T) {
	gate := NewThrottleGate(0)
	now := time.Now()
	recent := now.Add(-23 * time.Hour)
	if gate.Allow(&recent, now) {
		t.Fatal("zero cooldown must fall back to the one-day default")
	}
}
