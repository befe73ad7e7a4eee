package wsserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codeframe-dev/codeframe/internal/events"
)

func newTestServer(t *testing.T, hub *Hub, projectID int64) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := hub.ServeWS(w, r, projectID); err != nil {
			t.Errorf("ServeWS: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

func TestHubDeliversProjectScopedEventToClient(t *testing.T) {
	bus := events.NewBus(nil)
	hub := NewHub(bus)
	_, wsURL := newTestServer(t, hub, 1)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	bus.Publish(events.New(events.TaskStarted, 1, "42", map[string]interface{}{"task_id": int64(42)}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if msg.Type != string(events.TaskStarted) {
		t.Errorf("expected type %q, got %q", events.TaskStarted, msg.Type)
	}
}

func TestHubAnswersPingWithPong(t *testing.T) {
	bus := events.NewBus(nil)
	hub := NewHub(bus)
	_, wsURL := newTestServer(t, hub, 0)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	ping, _ := json.Marshal(Message{Type: "ping"})
	if err := conn.WriteMessage(websocket.TextMessage, ping); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if msg.Type != "pong" {
		t.Errorf("expected pong, got %q", msg.Type)
	}
}

func TestHubClientCountTracksConnectDisconnect(t *testing.T) {
	bus := events.NewBus(nil)
	hub := NewHub(bus)
	_, wsURL := newTestServer(t, hub, 0)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 connected client, got %d", hub.ClientCount())
	}

	conn.Close()

	deadline = time.Now().Add(time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 connected clients after close, got %d", hub.ClientCount())
	}
}

func TestHubBroadcastEventReachesEveryProjectSubscriber(t *testing.T) {
	bus := events.NewBus(nil)
	hub := NewHub(bus)
	_, wsURL := newTestServer(t, hub, 0)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	bus.Publish(events.New(events.ProjectCreated, 99, "99", nil))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if msg.Type != string(events.ProjectCreated) {
		t.Errorf("expected project_created, got %q", msg.Type)
	}
}
