package chunkclient

import (
	"context"
	"testing"
	"time"
)

func TestInflightThrottleOverload(t *testing.T) {
	th := NewInflightThrottle(2)
	if th.IsOverLoad() {
		t.Fatalf("should not be overloaded initially")
	}
	th.Increment()
	th.Increment()
	if th.IsOverLoad() {
		t.Fatalf("should not be overloaded at exactly max")
	}
	th.Increment()
	if !th.IsOverLoad() {
		t.Fatalf("should be overloaded above max")
	}
	th.Decrement()
	if th.IsOverLoad() {
		t.Fatalf("should not be overloaded after release")
	}
}

func TestInflightThrottleAcquireBlocksUntilRelease(t *testing.T) {
	th := NewInflightThrottle(1)
	th.Increment()

	acquired := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := th.Acquire(ctx); err != nil {
			t.Errorf("Acquire failed: %v", err)
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatalf("Acquire returned before the slot was released")
	case <-time.After(20 * time.Millisecond):
	}

	th.Decrement()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("Acquire never returned after release")
	}
}

func TestInflightThrottleDisabledWhenMaxZero(t *testing.T) {
	th := NewInflightThrottle(0)
	for i := 0; i < 100; i++ {
		th.Increment()
	}
	if th.IsOverLoad() {
		t.Fatalf("a zero max should disable overload signaling")
	}
}
