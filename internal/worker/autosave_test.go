package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type countingEvicter struct {
	calls atomic.Int64
}

func (c *countingEvicter) Evict() { c.calls.Add(1) }

func TestAutosaveTicksAndFlushesOnStop(t *testing.T) {
	var saves atomic.Int64
	evicter := &countingEvicter{}
	autosave := NewAutosave(10*time.Millisecond, SnapshotFunc(func() {
		saves.Add(1)
	}), zap.NewNop(), evicter)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		autosave.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	if saves.Load() < 2 {
		t.Fatalf("saves = %d, want at least one tick plus the final flush", saves.Load())
	}
	if evicter.calls.Load() < 1 {
		t.Fatal("evicter never ran")
	}
}

func TestAutosaveDefaultsInterval(t *testing.T) {
	autosave := NewAutosave(0, SnapshotFunc(func() {}), zap.NewNop())
	if autosave.interval != 5*time.Minute {
		t.Fatalf("interval = %v, want 5m", autosave.interval)
	}
}
