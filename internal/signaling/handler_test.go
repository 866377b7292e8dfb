package signaling

import (
	"testing"
	"time"
)

// startHandler runs a handler over a client that never dials: messages
// are pushed straight into the incoming channel.
func startHandler(t *testing.T) (*Client, *Handler) {
	t.Helper()
	client := NewClient("wss://example.invalid/ws")
	handler := NewHandler(client)
	go handler.Start()
	return client, handler
}

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func TestHandlerRoutesWelcome(t *testing.T) {
	client, handler := startHandler(t)

	client.incoming <- NewMessage(TypeWelcome, WelcomePayload{ID: "abc-123"})

	if id := recv(t, handler.Welcome, "welcome"); id != "abc-123" {
		t.Fatalf("id = %q", id)
	}
}

func TestHandlerRoutesFlightLifecycle(t *testing.T) {
	client, handler := startHandler(t)

	client.incoming <- NewMessage(TypeFlightCreated, CreateResultPayload{Code: "AB12CD"})
	client.incoming <- NewMessage(TypeJoinResult, JoinResultPayload{Success: false, Message: "flight full"})
	client.incoming <- NewMessage(TypeFlightUsers, FlightUsersPayload{
		OwnerID:        "o1",
		Members:        []string{"o1", "m2"},
		OwnerConnected: true,
	})

	if code := recv(t, handler.FlightCreated, "flightCreated"); code != "AB12CD" {
		t.Fatalf("code = %q", code)
	}

	result := recv(t, handler.JoinResult, "joinResult")
	if result.Success || result.Message != "flight full" {
		t.Fatalf("result = %+v", result)
	}

	users := recv(t, handler.FlightUsers, "flightUsers")
	if users.OwnerID != "o1" || len(users.Members) != 2 || !users.OwnerConnected {
		t.Fatalf("users = %+v", users)
	}
}

func TestHandlerRoutesSignals(t *testing.T) {
	client, handler := startHandler(t)

	client.incoming <- NewMessage(TypeOffer, SignalPayload{From: "peer-1", SDP: []byte(`{"type":"offer"}`)})
	client.incoming <- NewMessage(TypeCandidate, SignalPayload{From: "peer-1", Candidate: []byte(`{"candidate":"c"}`)})

	offer := recv(t, handler.Signals, "offer signal")
	if offer.Kind != TypeOffer || offer.From != "peer-1" || len(offer.SDP) == 0 {
		t.Fatalf("offer = %+v", offer)
	}

	cand := recv(t, handler.Signals, "candidate signal")
	if cand.Kind != TypeCandidate || len(cand.Candidate) == 0 {
		t.Fatalf("candidate = %+v", cand)
	}
}

func TestHandlerFreshestMembershipWins(t *testing.T) {
	client, handler := startHandler(t)

	// Overfill the membership channel; the consumer must see the newest
	// snapshot once it catches up.
	for i := 0; i < 20; i++ {
		client.incoming <- NewMessage(TypeFlightUsers, FlightUsersPayload{OwnerID: "o1", Members: make([]string, i+1)})
	}
	client.incoming <- NewMessage(TypeWelcome, WelcomePayload{ID: "sync"})
	recv(t, handler.Welcome, "sync marker")

	var last *FlightUsersPayload
	for {
		select {
		case users := <-handler.FlightUsers:
			last = users
			continue
		default:
		}
		break
	}

	if last == nil {
		t.Fatal("no membership snapshot delivered")
	}
	if len(last.Members) != 20 {
		t.Fatalf("last snapshot has %d members, want 20", len(last.Members))
	}
}

func TestHandlerClosesDisconnectedOnDrop(t *testing.T) {
	client, handler := startHandler(t)

	close(client.incoming)

	select {
	case <-handler.Disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnected not closed")
	}
}

func TestHandlerRoutesErrors(t *testing.T) {
	client, handler := startHandler(t)

	client.incoming <- NewMessage(TypeError, ErrorPayload{Error: "flight not found"})

	if msg := recv(t, handler.Error, "error"); msg != "flight not found" {
		t.Fatalf("error = %q", msg)
	}
}
