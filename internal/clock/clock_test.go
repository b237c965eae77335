package clock

import (
	"testing"
	"time"
)

func TestManual_AdvanceAndSet(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewManual(start)

	if !m.Now().Equal(start) {
		t.Fatalf("expected %s, got %s", start, m.Now())
	}

	m.Advance(90 * time.Second)
	if got := m.Now().Sub(start); got != 90*time.Second {
		t.Fatalf("expected +90s, got %s", got)
	}

	m.Set(start)
	if !m.Now().Equal(start) {
		t.Fatalf("expected reset to start, got %s", m.Now())
	}
}

func TestOr_DefaultsToSystem(t *testing.T) {
	if _, ok := Or(nil).(System); !ok {
		t.Fatalf("expected System clock for nil")
	}
	m := NewManual(time.Unix(0, 0))
	if Or(m) != Clock(m) {
		t.Fatalf("expected provided clock to be returned")
	}
}
