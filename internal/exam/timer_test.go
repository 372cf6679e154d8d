package exam

import (
	"sync/atomic"
	"testing"
)

func TestCountdownExpiresExactlyOnce(t *testing.T) {
	var fired atomic.Int32
	cd := NewCountdown(func() { fired.Add(1) })
	cd.Start(2)

	// Keep ticking well past zero: the expiry must not re-raise.
	for i := 0; i < 10; i++ {
		cd.Tick()
	}

	if got := fired.Load(); got != 1 {
		t.Fatalf("expiry fired %d times, want 1", got)
	}
	if cd.State() != CountdownExpired {
		t.Fatalf("state %s, want EXPIRED", cd.State())
	}
	if cd.Remaining() != 0 {
		t.Fatalf("remaining %d after expiry, want 0", cd.Remaining())
	}
}

func TestCountdownStopFreezesWithoutExpiry(t *testing.T) {
	var fired atomic.Int32
	cd := NewCountdown(func() { fired.Add(1) })
	cd.Start(5)
	cd.Tick()
	cd.Stop()

	for i := 0; i < 10; i++ {
		cd.Tick()
	}

	if fired.Load() != 0 {
		t.Fatal("stop raised expiry")
	}
	if cd.Remaining() != 4 {
		t.Fatalf("remaining %d, want 4 (frozen)", cd.Remaining())
	}

	cd.Resume()
	cd.Tick()
	if cd.Remaining() != 3 {
		t.Fatalf("remaining %d after resume+tick, want 3", cd.Remaining())
	}
}

func TestCountdownResetKeepsElapsed(t *testing.T) {
	cd := NewCountdown(nil)
	cd.Start(10)
	cd.Tick()
	cd.Tick()

	cd.Reset(30)
	if cd.Remaining() != 30 {
		t.Fatalf("remaining %d after reset, want 30", cd.Remaining())
	}
	if cd.Elapsed() != 2 {
		t.Fatalf("elapsed %d after reset, want 2", cd.Elapsed())
	}
}

func TestUntimedCountdownNeverExpires(t *testing.T) {
	var fired atomic.Int32
	cd := NewCountdown(func() { fired.Add(1) })
	cd.Start(0)

	for i := 0; i < 100; i++ {
		cd.Tick()
	}

	if fired.Load() != 0 {
		t.Fatal("untimed countdown expired")
	}
	if cd.Elapsed() != 100 {
		t.Fatalf("elapsed %d, want 100", cd.Elapsed())
	}
	if cd.State() != CountdownRunning {
		t.Fatalf("state %s, want RUNNING", cd.State())
	}
}

func TestCountdownSetElapsed(t *testing.T) {
	cd := NewCountdown(nil)
	cd.Start(10)
	cd.SetElapsed(120)
	cd.Tick()
	if cd.Elapsed() != 121 {
		t.Fatalf("elapsed %d, want 121", cd.Elapsed())
	}
}
