package chunkclient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencurve/curvebs-client/proto"
)

type staticResolver struct {
	cs       proto.ChunkServerID
	endpoint string
	hostIP   string
	calls    int
}

func (r *staticResolver) ResolveLeader(ctx context.Context, key proto.CopysetKey) (proto.ChunkServerID, string, string, error) {
	r.calls++
	return r.cs, r.endpoint, r.hostIP, nil
}

// blockingResolver holds every caller until release is closed, so a test
// can assert on how many callers actually reached ResolveLeader while they
// were all in flight at once.
type blockingResolver struct {
	cs       proto.ChunkServerID
	endpoint string
	hostIP   string
	calls    int32
	started  chan struct{}
	release  chan struct{}
}

func (r *blockingResolver) ResolveLeader(ctx context.Context, key proto.CopysetKey) (proto.ChunkServerID, string, string, error) {
	atomic.AddInt32(&r.calls, 1)
	r.started <- struct{}{}
	<-r.release
	return r.cs, r.endpoint, r.hostIP, nil
}

func TestMetadataCacheResolvesOnceThenCaches(t *testing.T) {
	res := &staticResolver{cs: 1, endpoint: "127.0.0.1:8200", hostIP: "127.0.0.1"}
	mc, err := NewMetadataCache(16, res)
	require.NoError(t, err)
	key := proto.CopysetKey{LogicalPoolID: 1, CopysetID: 2}

	cs, ep, err := mc.GetLeader(context.Background(), key, false)
	require.NoError(t, err)
	require.Equal(t, proto.ChunkServerID(1), cs)
	require.Equal(t, "127.0.0.1:8200", ep)

	_, _, err = mc.GetLeader(context.Background(), key, false)
	require.NoError(t, err)
	require.Equal(t, 1, res.calls, "expected a single resolver call")
}

func TestMetadataCacheSetChunkserverUnstableMarksEveryCopyset(t *testing.T) {
	res := &staticResolver{cs: 5, endpoint: "10.0.0.5:8200", hostIP: "10.0.0.5"}
	mc, _ := NewMetadataCache(16, res)

	keys := []proto.CopysetKey{
		{LogicalPoolID: 1, CopysetID: 1},
		{LogicalPoolID: 1, CopysetID: 2},
		{LogicalPoolID: 2, CopysetID: 1},
	}
	for _, k := range keys {
		if _, _, err := mc.GetLeader(context.Background(), k, false); err != nil {
			t.Fatalf("GetLeader(%v): %v", k, err)
		}
	}

	mc.SetChunkserverUnstable(5)

	for _, k := range keys {
		if !mc.IsLeaderMayChange(k) {
			t.Fatalf("expected leaderMayChange for %v after SetChunkserverUnstable", k)
		}
	}
}

func TestMetadataCacheRefreshForcesResolve(t *testing.T) {
	res := &staticResolver{cs: 1, endpoint: "127.0.0.1:8200", hostIP: "127.0.0.1"}
	mc, _ := NewMetadataCache(16, res)
	key := proto.CopysetKey{LogicalPoolID: 1, CopysetID: 1}

	mc.GetLeader(context.Background(), key, false)
	mc.GetLeader(context.Background(), key, true)
	if res.calls != 2 {
		t.Fatalf("expected refresh to force a second resolve, got %d calls", res.calls)
	}
}

func TestMetadataCacheEpochMonotone(t *testing.T) {
	mc, _ := NewMetadataCache(16, &staticResolver{})
	key := proto.CopysetKey{LogicalPoolID: 1, CopysetID: 1}

	require.Equal(t, uint64(0), mc.GetEpoch(key), "expected zero epoch before anything observed")

	mc.SetEpoch(key, 5)
	require.Equal(t, uint64(5), mc.GetEpoch(key))

	mc.SetEpoch(key, 3)
	require.Equal(t, uint64(5), mc.GetEpoch(key), "a lower epoch must never roll the cache back")

	mc.SetEpoch(key, 9)
	require.Equal(t, uint64(9), mc.GetEpoch(key))

	other := proto.CopysetKey{LogicalPoolID: 1, CopysetID: 2}
	require.Equal(t, uint64(0), mc.GetEpoch(other), "epoch tracking must be per-copyset")
}

func TestMetadataCacheGetLeaderDedupsConcurrentResolves(t *testing.T) {
	const callers = 8
	res := &blockingResolver{
		cs:       1,
		endpoint: "127.0.0.1:8200",
		hostIP:   "127.0.0.1",
		started:  make(chan struct{}, callers),
		release:  make(chan struct{}),
	}
	mc, err := NewMetadataCache(16, res)
	require.NoError(t, err)
	key := proto.CopysetKey{LogicalPoolID: 1, CopysetID: 1}

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cs, ep, err := mc.GetLeader(context.Background(), key, false)
			require.NoError(t, err)
			require.Equal(t, proto.ChunkServerID(1), cs)
			require.Equal(t, "127.0.0.1:8200", ep)
		}()
	}

	<-res.started
	close(res.release)
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&res.calls), "concurrent GetLeader calls for the same copyset must collapse into a single ResolveLeader")
}

func TestMetadataCacheLatestFileSnMonotone(t *testing.T) {
	mc, _ := NewMetadataCache(16, &staticResolver{})
	mc.SetLatestFileSn(5)
	mc.SetLatestFileSn(3)
	if got := mc.GetLatestFileSn(); got != 5 {
		t.Fatalf("expected monotone max of 5, got %d", got)
	}
	mc.SetLatestFileSn(9)
	if got := mc.GetLatestFileSn(); got != 9 {
		t.Fatalf("expected 9, got %d", got)
	}
}
