package gossip

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestStatusRoute(t *testing.T) {
	n := NewNode(func() interface{} { return map[string]int{"height": 3} })
	srv := httptest.NewServer(n.Router())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode status body: %v", err)
	}
	if body["height"] != 3 {
		t.Fatalf("expected height 3, got %d", body["height"])
	}
}

func TestInboundConnectAndDispatch(t *testing.T) {
	n := NewNode(nil)
	srv := httptest.NewServer(n.Router())
	defer srv.Close()

	received := make(chan Message, 1)
	n.On("greeting", func(raw []byte) {
		var payload string
		json.Unmarshal(raw, &payload)
		received <- Message{Type: "greeting", Payload: payload}
	})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	msg := Message{Type: "greeting", Payload: "hello"}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-received:
		if got.Payload != "hello" {
			t.Fatalf("expected payload hello, got %v", got.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler dispatch")
	}

	if n.PeerCount() != 1 {
		t.Fatalf("expected 1 connected peer, got %d", n.PeerCount())
	}
}

func TestBroadcastDropsDeadPeer(t *testing.T) {
	n := NewNode(nil)
	srv := httptest.NewServer(n.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close() // close immediately so the next broadcast write fails

	time.Sleep(50 * time.Millisecond)
	n.Broadcast("ping", map[string]string{"msg": "hi"})
	time.Sleep(50 * time.Millisecond)

	if n.PeerCount() != 0 {
		t.Fatalf("expected dead peer to be dropped, got %d peers", n.PeerCount())
	}
}
