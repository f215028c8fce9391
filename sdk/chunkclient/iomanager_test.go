package chunkclient

import (
	"testing"

	"github.com/opencurve/curvebs-client/proto"
)

func TestSubmitFlushAndDiscardCompleteLocallyWithoutRPC(t *testing.T) {
	tr := &scriptedTransport{}
	res := &staticResolver{cs: 1, endpoint: "10.0.0.1:8200", hostIP: "10.0.0.1"}
	e, _ := NewEngine(smallOpt(), res, tr, nil)
	id := proto.ChunkIdInfo{LogicalPoolID: 1, CopysetID: 1, ChunkID: 1}

	done := make(chan *RequestClosure, 1)
	e.IOManager().SubmitFlush(id, func(rc *RequestClosure) { done <- rc })
	rc := waitDone(t, done)
	if rc.Status != proto.StatusSuccess {
		t.Fatalf("expected FLUSH to complete with success, got %v", rc.Status)
	}

	done = make(chan *RequestClosure, 1)
	e.IOManager().SubmitDiscard(id, 0, 4096, func(rc *RequestClosure) { done <- rc })
	rc = waitDone(t, done)
	if rc.Status != proto.StatusSuccess {
		t.Fatalf("expected DISCARD to complete with success, got %v", rc.Status)
	}

	if tr.callCount() != 0 {
		t.Fatalf("expected FLUSH/DISCARD to never reach the transport, got %d calls", tr.callCount())
	}
}

func TestSubmitGetChunkInfoCapturesDetail(t *testing.T) {
	tr := &scriptedTransport{script: []scriptedResponse{
		{resp: &RPCResponse{Status: proto.StatusSuccess, ChunkInfo: &proto.ChunkInfoDetail{ChunkSn: []uint64{1, 2, 3}}}},
	}}
	res := &staticResolver{cs: 1, endpoint: "10.0.0.1:8200", hostIP: "10.0.0.1"}
	e, _ := NewEngine(smallOpt(), res, tr, nil)

	done := make(chan *RequestClosure, 1)
	e.IOManager().SubmitGetChunkInfo(proto.ChunkIdInfo{LogicalPoolID: 1, CopysetID: 1, ChunkID: 1},
		func(rc *RequestClosure) { done <- rc })

	rc := waitDone(t, done)
	if rc.Status != proto.StatusSuccess {
		t.Fatalf("expected success, got %v", rc.Status)
	}
	info := rc.ChunkInfo()
	if info == nil || len(info.ChunkSn) != 3 {
		t.Fatalf("expected captured chunk info with 3 entries, got %v", info)
	}
}

func TestSubmitCreateCloneChunkAndRecoverChunk(t *testing.T) {
	tr := &scriptedTransport{script: []scriptedResponse{
		{resp: &RPCResponse{Status: proto.StatusSuccess}},
	}}
	res := &staticResolver{cs: 1, endpoint: "10.0.0.1:8200", hostIP: "10.0.0.1"}
	e, _ := NewEngine(smallOpt(), res, tr, nil)
	id := proto.ChunkIdInfo{LogicalPoolID: 1, CopysetID: 1, ChunkID: 9}

	done := make(chan *RequestClosure, 1)
	e.IOManager().SubmitCreateCloneChunk(id, proto.CloneSourceLocation("s3://bucket/obj"), 1, 0, 4<<20,
		func(rc *RequestClosure) { done <- rc })
	if rc := waitDone(t, done); rc.Status != proto.StatusSuccess {
		t.Fatalf("expected CreateCloneChunk success, got %v", rc.Status)
	}

	done = make(chan *RequestClosure, 1)
	e.IOManager().SubmitRecoverChunk(id, 0, 4096, func(rc *RequestClosure) { done <- rc })
	if rc := waitDone(t, done); rc.Status != proto.StatusSuccess {
		t.Fatalf("expected RecoverChunk success, got %v", rc.Status)
	}
}

func TestSubmitDeleteSnapshotOrCorrectSn(t *testing.T) {
	tr := &scriptedTransport{script: []scriptedResponse{
		{resp: &RPCResponse{Status: proto.StatusSuccess}},
	}}
	res := &staticResolver{cs: 1, endpoint: "10.0.0.1:8200", hostIP: "10.0.0.1"}
	e, _ := NewEngine(smallOpt(), res, tr, nil)

	done := make(chan *RequestClosure, 1)
	e.IOManager().SubmitDeleteSnapshotOrCorrectSn(proto.ChunkIdInfo{LogicalPoolID: 1, CopysetID: 1, ChunkID: 1}, 7,
		func(rc *RequestClosure) { done <- rc })
	if rc := waitDone(t, done); rc.Status != proto.StatusSuccess {
		t.Fatalf("expected success, got %v", rc.Status)
	}
}
