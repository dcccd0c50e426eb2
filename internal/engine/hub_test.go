package engine

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func clientCount(h *EventHub) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func newTestHub(t *testing.T) (*EventHub, string) {
	t.Helper()
	hub := NewEventHub()
	go hub.Run()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestEventHub_BroadcastDelivery(t *testing.T) {
	hub, wsURL := newTestHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, func() bool { return clientCount(hub) == 1 })

	hub.Broadcast(Event{Type: "trade_settled", AgentID: "a1", Amount: "28"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(msg), `"trade_settled"`) {
		t.Errorf("message = %s, want trade_settled event", msg)
	}
}

func TestEventHub_PrunesDeadConnections(t *testing.T) {
	hub, wsURL := newTestHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, func() bool { return clientCount(hub) == 1 })

	conn.Close()

	// Broadcasting to a closed connection prunes it from the hub while the
	// keepalive goroutine is still reading the map.
	waitFor(t, func() bool {
		hub.Broadcast(Event{Type: "agent_died", AgentID: "a1"})
		return clientCount(hub) == 0
	})
}
