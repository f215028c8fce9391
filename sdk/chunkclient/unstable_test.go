package chunkclient

import (
	"testing"

	"github.com/opencurve/curvebs-client/proto"
)

func TestUnstableTrackerThresholds(t *testing.T) {
	u := NewUnstableTracker(FailureRequestOption{
		ChunkserverUnstableThreshold: 3,
		ServerUnstableThreshold:      2,
	})
	cs1 := proto.ChunkServerID(1)
	cs2 := proto.ChunkServerID(2)
	u.SetHost(cs1, "10.0.0.1")
	u.SetHost(cs2, "10.0.0.1")

	for i := 0; i < 2; i++ {
		if got := u.OnTimeout(cs1); got != NoUnstable {
			t.Fatalf("timeout %d: expected NoUnstable, got %v", i, got)
		}
	}
	if got := u.OnTimeout(cs1); got != ChunkServerUnstable {
		t.Fatalf("3rd timeout: expected ChunkServerUnstable, got %v", got)
	}

	for i := 0; i < 3; i++ {
		u.OnTimeout(cs2)
	}
	if got := u.OnTimeout(cs2); got != ServerUnstable {
		t.Fatalf("expected ServerUnstable once 2 chunk servers on host are unstable, got %v", got)
	}

	hosts := u.ChunkServersOnHost("10.0.0.1")
	if len(hosts) != 2 {
		t.Fatalf("expected 2 unstable chunk servers on host, got %d", len(hosts))
	}
}

func TestUnstableTrackerClearResetsCount(t *testing.T) {
	u := NewUnstableTracker(FailureRequestOption{ChunkserverUnstableThreshold: 2, ServerUnstableThreshold: 5})
	cs := proto.ChunkServerID(7)
	u.OnTimeout(cs)
	u.ClearTimeout(cs)
	if got := u.OnTimeout(cs); got != NoUnstable {
		t.Fatalf("expected NoUnstable after clear, got %v", got)
	}
}
