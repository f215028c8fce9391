package chunkclient

import (
	"context"
	"sync"
)

// scriptedResponse is one canned outcome a scriptedTransport hands back,
// in order, regardless of which endpoint it was sent to.
type scriptedResponse struct {
	resp *RPCResponse
	err  error
}

// scriptedTransport is the in-memory ChunkServerTransport fake used to
// drive the completion handler through the scenarios of spec §8 without
// a real chunk server. Sending past the end of the script repeats the
// last scripted entry, so a test only needs to script the attempts it
// cares about distinguishing.
type scriptedTransport struct {
	mu     sync.Mutex
	script []scriptedResponse
	calls  int
	onSend func(endpoint string, req *RequestContext)
}

func (t *scriptedTransport) Send(ctx context.Context, endpoint string, req *RequestContext) (*RPCResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.onSend != nil {
		t.onSend(endpoint, req)
	}
	idx := t.calls
	if idx >= len(t.script) {
		idx = len(t.script) - 1
	}
	t.calls++
	s := t.script[idx]
	return s.resp, s.err
}

func (t *scriptedTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
