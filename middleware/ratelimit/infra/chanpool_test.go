package infra

import (
	"context"
	"testing"
	"time"
)

func TestChanPool_BlocksUntilRelease(t *testing.T) {
	p := NewChanPool(1)

	release, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("expected second acquire to time out")
	}

	release()
	release2, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected acquire after release")
	}
	release2()
}

func TestChanPool_CancelledContextLoses(t *testing.T) {
	p := NewChanPool(4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("expected cancelled context to be refused")
	}
}

func TestChanPool_ReportsUsage(t *testing.T) {
	p := NewChanPool(0)
	if p.Cap() != 1 || p.InUse() != 0 {
		t.Fatalf("expected cap 1 and nothing in use, got cap=%d inUse=%d", p.Cap(), p.InUse())
	}

	release, _ := p.Acquire(context.Background())
	if p.InUse() != 1 {
		t.Fatalf("expected 1 in use, got %d", p.InUse())
	}
	release()
	if p.InUse() != 0 {
		t.Fatalf("expected slot returned, got %d", p.InUse())
	}
}
