package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ringSize bounds the frames replayed to a freshly connected SSE client.
const ringSize = 64

// Broadcaster fans SSEEvent values out to all active GET /events subscribers.
// Slow clients are skipped (non-blocking channel send with per-client buffer).
// The last ringSize frames are retained and replayed to new subscribers so a
// reconnecting client sees what it missed.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]chan []byte
	ring [][]byte
}

func newBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]chan []byte)}
}

// subscribe registers a new client and returns its id, a channel of
// ready-to-write SSE data frames, and a replay of recent frames (oldest
// first). The caller must call unsubscribe with the id when the HTTP
// connection closes.
func (b *Broadcaster) subscribe() (string, chan []byte, [][]byte) {
	id := uuid.NewString()
	ch := make(chan []byte, 32)
	b.mu.Lock()
	b.subs[id] = ch
	replay := make([][]byte, len(b.ring))
	copy(replay, b.ring)
	b.mu.Unlock()
	return id, ch, replay
}

func (b *Broadcaster) unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// send serialises evt as JSON, appends it to the replay ring, and fans the
// SSE frame to all active subscribers.
func (b *Broadcaster) send(evt SSEEvent) {
	raw, err := json.Marshal(evt)
	if err != nil {
		slog.Warn("gateway: failed to marshal SSE event", "type", evt.Type, "error", err)
		return
	}
	// SSE wire format: "data: <json>\n\n"
	frame := []byte("data: ")
	frame = append(frame, raw...)
	frame = append(frame, '\n', '\n')

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.ring) == ringSize {
		copy(b.ring, b.ring[1:])
		b.ring[ringSize-1] = frame
	} else {
		b.ring = append(b.ring, frame)
	}
	for _, ch := range b.subs {
		select {
		case ch <- frame:
		default:
			// slow subscriber, skip this frame
		}
	}
}
