package realtime

import (
	"encoding/json"
	"sync"
	"testing"
)

// recordingClient captures broadcast messages.
type recordingClient struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *recordingClient) Send(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, message)
	return true
}

func (c *recordingClient) Close() {}

func (c *recordingClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestHub_PublishReachesAllSubscribers(t *testing.T) {
	h := NewHub()
	a := &recordingClient{}
	b := &recordingClient{}
	h.Register(a)
	h.Register(b)

	h.Publish("lifecycle", "active")

	if a.count() != 1 || b.count() != 1 {
		t.Fatalf("expected both subscribers to receive the event, got %d and %d", a.count(), b.count())
	}

	var ev Event
	a.mu.Lock()
	err := json.Unmarshal(a.msgs[0], &ev)
	a.mu.Unlock()
	if err != nil {
		t.Fatalf("event must be valid JSON: %v", err)
	}
	if ev.Kind != "lifecycle" || ev.Detail != "active" {
		t.Fatalf("unexpected event payload: %+v", ev)
	}
}

func TestHub_UnregisterStopsDelivery(t *testing.T) {
	h := NewHub()
	c := &recordingClient{}
	h.Register(c)
	h.Unregister(c)

	h.Publish("sync", "replayed POST /v1/workouts/1/complete")

	if c.count() != 0 {
		t.Fatalf("unregistered client must not receive events")
	}
	if h.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", h.Subscribers())
	}
}
