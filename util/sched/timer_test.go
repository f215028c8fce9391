package sched

import (
	"testing"
	"time"
)

func TestAfterFuncRunsAndClearsPending(t *testing.T) {
	q := NewQueue()
	done := make(chan struct{})
	q.AfterFunc(10*time.Millisecond, func() { close(done) })
	if q.Pending() != 1 {
		t.Fatalf("expected 1 pending, got %d", q.Pending())
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	time.Sleep(5 * time.Millisecond)
	if q.Pending() != 0 {
		t.Fatalf("expected 0 pending after fire, got %d", q.Pending())
	}
}
