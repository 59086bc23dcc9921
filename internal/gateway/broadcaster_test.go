package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func decodeFrame(t *testing.T, frame []byte) SSEEvent {
	t.Helper()
	if !bytes.HasPrefix(frame, []byte("data: ")) || !bytes.HasSuffix(frame, []byte("\n\n")) {
		t.Fatalf("frame not in SSE wire format: %q", frame)
	}
	var evt SSEEvent
	if err := json.Unmarshal(bytes.TrimPrefix(bytes.TrimSpace(frame), []byte("data: ")), &evt); err != nil {
		t.Fatalf("decode frame %q: %v", frame, err)
	}
	return evt
}

func TestBroadcasterDelivers(t *testing.T) {
	b := newBroadcaster()
	_, ch, replay := b.subscribe()
	if len(replay) != 0 {
		t.Fatalf("fresh broadcaster replays %d frames", len(replay))
	}

	b.send(SSEEvent{Type: "job.started", Payload: map[string]any{"job_id": 7}})

	select {
	case frame := <-ch:
		evt := decodeFrame(t, frame)
		if evt.Type != "job.started" {
			t.Errorf("event type = %q", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}
}

func TestBroadcasterReplaysRing(t *testing.T) {
	b := newBroadcaster()
	for i := 0; i < 3; i++ {
		b.send(SSEEvent{Type: fmt.Sprintf("evt.%d", i)})
	}

	_, _, replay := b.subscribe()
	if len(replay) != 3 {
		t.Fatalf("replay = %d frames, want 3", len(replay))
	}
	for i, frame := range replay {
		if evt := decodeFrame(t, frame); evt.Type != fmt.Sprintf("evt.%d", i) {
			t.Errorf("replay[%d] = %q, want oldest first", i, evt.Type)
		}
	}
}

func TestBroadcasterRingBounded(t *testing.T) {
	b := newBroadcaster()
	for i := 0; i < ringSize+10; i++ {
		b.send(SSEEvent{Type: fmt.Sprintf("evt.%d", i)})
	}

	_, _, replay := b.subscribe()
	if len(replay) != ringSize {
		t.Fatalf("replay = %d frames, want %d", len(replay), ringSize)
	}
	if evt := decodeFrame(t, replay[0]); evt.Type != "evt.10" {
		t.Errorf("oldest retained frame = %q, want evt.10", evt.Type)
	}
	if evt := decodeFrame(t, replay[ringSize-1]); evt.Type != fmt.Sprintf("evt.%d", ringSize+9) {
		t.Errorf("newest retained frame = %q", evt.Type)
	}
}

func TestBroadcasterUnsubscribe(t *testing.T) {
	b := newBroadcaster()
	id, ch, _ := b.subscribe()
	b.unsubscribe(id)
	b.send(SSEEvent{Type: "after.unsubscribe"})

	select {
	case frame := <-ch:
		t.Fatalf("unsubscribed channel received %q", frame)
	default:
	}
}

func TestBroadcasterSkipsSlowSubscriber(t *testing.T) {
	b := newBroadcaster()
	_, ch, _ := b.subscribe()

	// Fill well past the per-client buffer without draining; send must not
	// block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.send(SSEEvent{Type: "flood"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("send blocked on a slow subscriber")
	}
	if len(ch) != cap(ch) {
		t.Errorf("buffered frames = %d, want full buffer %d", len(ch), cap(ch))
	}
}

func TestEventsStream(t *testing.T) {
	gw := newTestGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rr := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		buildHandler(gw).ServeHTTP(rr, req)
		close(done)
	}()

	// The connected frame is written synchronously on subscription; give the
	// handler a beat to reach its select loop before publishing.
	time.Sleep(50 * time.Millisecond)
	gw.broadcaster.send(SSEEvent{Type: "probe"})
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `"connected"`) {
		t.Errorf("stream missing connected frame: %s", body)
	}
	if !strings.Contains(body, `"probe"`) {
		t.Errorf("stream missing published frame: %s", body)
	}
}
