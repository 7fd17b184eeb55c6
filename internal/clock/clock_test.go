package clock

import (
	"context"
	"testing"
	"time"
)

func TestFake_SleepAdvances(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFake(start)

	if err := c.Sleep(context.Background(), 3*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = c.Sleep(context.Background(), 2*time.Second)

	if got := c.Elapsed(start); got != 5*time.Second {
		t.Errorf("expected 5s elapsed, got %v", got)
	}
	if s := c.Sleeps(); len(s) != 2 || s[0] != 3*time.Second {
		t.Errorf("unexpected sleeps recorded: %v", s)
	}
}

func TestFake_SleepCancelled(t *testing.T) {
	c := NewFake(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Sleep(ctx, time.Second); err == nil {
		t.Fatal("expected context error")
	}
	if len(c.Sleeps()) != 0 {
		t.Error("cancelled sleep should not be recorded")
	}
}

func TestReal_SleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := Real().Sleep(ctx, time.Hour); err == nil {
		t.Fatal("expected context error")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("cancelled sleep should return immediately")
	}
}
