package application

import (
	"testing"
	"time"

	"ephemeral-core/middleware/ratelimit/domain"
)

type fakeLimiter struct {
	dec    domain.Decision
	admits int
	left   int
}

func (f *fakeLimiter) Admit(domain.Key) domain.Decision {
	f.admits++
	return f.dec
}
func (f *fakeLimiter) Remaining(domain.Key) int { return f.left }
func (f *fakeLimiter) Limit() int              { return f.dec.Limit }
func (f *fakeLimiter) Window() time.Duration   { return f.dec.Window }

func TestService_Decide_AllowsWhenNoLimiter(t *testing.T) {
	svc := Service{}
	dec := svc.Decide("k")
	if !dec.Allowed {
		t.Fatalf("expected allowed")
	}
	if dec.RetryAfter != 0 {
		t.Fatalf("expected RetryAfter=0 when allowed, got %s", dec.RetryAfter)
	}
	if svc.Remaining("k") != -1 {
		t.Fatalf("expected unlimited remaining without limiter")
	}
}

func TestService_Decide_PassesThroughAllowed(t *testing.T) {
	lim := &fakeLimiter{dec: domain.Decision{Allowed: true, Limit: 10, Remaining: 7, Window: time.Minute}}
	svc := Service{Limiter: lim}

	dec := svc.Decide("k")
	if !dec.Allowed || dec.Remaining != 7 || dec.Limit != 10 {
		t.Fatalf("unexpected decision %+v", dec)
	}
	if lim.admits != 1 {
		t.Fatalf("expected one Admit call, got %d", lim.admits)
	}
}

func TestService_Decide_BlockedRetryAfterHasFloor(t *testing.T) {
	lim := &fakeLimiter{dec: domain.Decision{Allowed: false, RetryAfter: 200 * time.Millisecond}}
	svc := Service{Limiter: lim}

	dec := svc.Decide("k")
	if dec.Allowed {
		t.Fatalf("expected blocked")
	}
	if dec.RetryAfter != 1*time.Second {
		t.Fatalf("expected default floor 1s, got %s", dec.RetryAfter)
	}
}

func TestService_Decide_BlockedKeepsLongerRetryAfter(t *testing.T) {
	lim := &fakeLimiter{dec: domain.Decision{Allowed: false, RetryAfter: 42 * time.Second}}
	svc := Service{Limiter: lim, MinRetryAfter: 2 * time.Second}

	dec := svc.Decide("k")
	if dec.RetryAfter != 42*time.Second {
		t.Fatalf("expected RetryAfter=42s, got %s", dec.RetryAfter)
	}
}

func TestService_Remaining_DelegatesToLimiter(t *testing.T) {
	lim := &fakeLimiter{left: 3}
	svc := Service{Limiter: lim}

	if got := svc.Remaining("k"); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if lim.admits != 0 {
		t.Fatalf("Remaining must not admit")
	}
}
