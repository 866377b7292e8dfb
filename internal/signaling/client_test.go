package signaling

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// startRelayStub runs a websocket endpoint that records every message
// type it receives until the connection closes.
func startRelayStub(t *testing.T) (*httptest.Server, <-chan string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	received := make(chan string, 16)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				close(received)
				return
			}
			received <- msg.Type
		}
	}))
	t.Cleanup(srv.Close)
	return srv, received
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClientConnectAndSend(t *testing.T) {
	srv, received := startRelayStub(t)

	c := NewClient(wsURL(srv))
	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	c.SendHello("tester")

	select {
	case got := <-received:
		if got != TypeHello {
			t.Fatalf("relay saw %q, want %q", got, TypeHello)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("relay never received the hello")
	}
}

// Messages queued right before Close must still reach the wire ahead of
// the close frame.
func TestClientFlushesQueuedMessagesOnClose(t *testing.T) {
	srv, received := startRelayStub(t)

	c := NewClient(wsURL(srv))
	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}

	c.LeaveFlight()
	c.Close()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case got, ok := <-received:
			if !ok {
				t.Fatal("connection closed before the leave was delivered")
			}
			if got == TypeLeaveFlight {
				return
			}
		case <-deadline:
			t.Fatal("relay never received the leave")
		}
	}
}
