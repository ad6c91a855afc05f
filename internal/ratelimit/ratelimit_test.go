package ratelimit

import (
	"testing"
	"time"
)

func TestCheckAllowsUpToLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiterWithClock(func() time.Time { return now })

	for i := 1; i <= 3; i++ {
		res := l.Check("user-1", ActionTickets)
		if res.Limited {
			t.Fatalf("action %d unexpectedly limited", i)
		}
		if res.Count != i {
			t.Fatalf("count = %d, want %d", res.Count, i)
		}
	}

	res := l.Check("user-1", ActionTickets)
	if !res.Limited {
		t.Fatal("4th ticket within the hour should be limited")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Hour {
		t.Fatalf("RetryAfter = %v, want within (0, 1h]", res.RetryAfter)
	}
}

func TestCheckResetsAfterWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiterWithClock(func() time.Time { return now })

	for i := 0; i < 4; i++ {
		l.Check("user-1", ActionTickets)
	}

	now = now.Add(time.Hour + time.Second)
	res := l.Check("user-1", ActionTickets)
	if res.Limited {
		t.Fatal("action after window elapsed should not be limited")
	}
	if res.Count != 1 {
		t.Fatalf("count after reset = %d, want 1", res.Count)
	}
}

func TestCheckIsPerSubjectAndAction(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiterWithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		l.Check("user-1", ActionTickets)
	}
	if res := l.Check("user-2", ActionTickets); res.Limited {
		t.Fatal("user-2 should have an independent counter")
	}
	if res := l.Check("user-1", ActionMessages); res.Limited {
		t.Fatal("messages counter should be independent of tickets")
	}
}

func TestMessageLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiterWithClock(func() time.Time { return now })

	for i := 0; i < 30; i++ {
		if res := l.Check("user-1", ActionMessages); res.Limited {
			t.Fatalf("message %d unexpectedly limited", i+1)
		}
	}
	if res := l.Check("user-1", ActionMessages); !res.Limited {
		t.Fatal("31st message within the minute should be limited")
	}
}

func TestCheckCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiterWithClock(func() time.Time { return now })

	if res := l.CheckCooldown("user-1", "analytics"); res.Limited {
		t.Fatal("first use should not be on cooldown")
	}
	if res := l.CheckCooldown("user-1", "analytics"); !res.Limited {
		t.Fatal("immediate reuse should be on cooldown")
	}

	now = now.Add(time.Minute + time.Second)
	if res := l.CheckCooldown("user-1", "analytics"); res.Limited {
		t.Fatal("reuse after cooldown elapsed should be allowed")
	}
}

func TestCheckCooldownFallsBackToDefault(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiterWithClock(func() time.Time { return now })

	l.CheckCooldown("user-1", "unknown-command")
	res := l.CheckCooldown("user-1", "unknown-command")
	if !res.Limited {
		t.Fatal("unknown command should use default cooldown")
	}
	if res.RetryAfter > 3*time.Second {
		t.Fatalf("RetryAfter = %v, want at most the 3s default", res.RetryAfter)
	}
}

func TestEvictDropsExpiredCounters(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiterWithClock(func() time.Time { return now })

	l.Check("user-1", ActionMessages)
	l.Check("user-2", ActionTickets)
	now = now.Add(2 * time.Hour)
	l.Evict()

	l.mu.Lock()
	remaining := len(l.counters)
	l.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("counters after eviction = %d, want 0", remaining)
	}
}
