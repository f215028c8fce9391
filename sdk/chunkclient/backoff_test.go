package chunkclient

import "testing"

func testParam() BackoffParam {
	return NewBackoffParam(FailureRequestOption{
		ChunkserverRPCTimeoutMS:            1000,
		ChunkserverMaxRPCTimeoutMS:         16000,
		ChunkserverOPRetryIntervalUS:       500,
		ChunkserverMaxRetrySleepIntervalUS: 100000,
	})
}

func TestTimeoutBackOffMonotoneAndClamped(t *testing.T) {
	p := testParam()
	var prev int64
	for r := uint32(0); r < 10; r++ {
		v := p.TimeoutBackOff(r)
		if v < p.baseTimeoutMS || v > p.maxTimeoutMS {
			t.Fatalf("retries=%d: %d out of [%d,%d]", r, v, p.baseTimeoutMS, p.maxTimeoutMS)
		}
		if v < prev {
			t.Fatalf("retries=%d: timeout decreased from %d to %d", r, prev, v)
		}
		prev = v
	}
	if got := p.TimeoutBackOff(3); got != 8000 {
		t.Fatalf("TimeoutBackOff(3) = %d, want 8000", got)
	}
}

func TestOverLoadBackOffJitterWindow(t *testing.T) {
	p := testParam()
	wantRange := [][2]int64{{450, 550}, {900, 1100}, {1800, 2200}}
	for r, want := range wantRange {
		for i := 0; i < 200; i++ {
			v := p.OverLoadBackOff(uint32(r))
			if v < want[0] || v > want[1] {
				t.Fatalf("retries=%d: %d outside [%d,%d]", r, v, want[0], want[1])
			}
		}
	}
}

func TestOverLoadBackOffAlwaysClamped(t *testing.T) {
	p := testParam()
	for r := uint32(0); r < 40; r++ {
		v := p.OverLoadBackOff(r)
		if v < p.baseIntervalUS || v > p.maxSleepIntervalUS {
			t.Fatalf("retries=%d: %d out of [%d,%d]", r, v, p.baseIntervalUS, p.maxSleepIntervalUS)
		}
	}
}
