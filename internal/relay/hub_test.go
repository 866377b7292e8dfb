package relay

import (
	"encoding/json"
	"testing"

	"github.com/flightdrop/flightdrop/internal/config"
	"github.com/flightdrop/flightdrop/internal/signaling"
)

func newTestHub(policy string) *Hub {
	return NewHub(2, policy)
}

// addClient inserts a connected client the way the register path would,
// without spinning up the hub goroutine.
func addClient(h *Hub, id, name string) *Client {
	c := &Client{ID: id, Name: name, Send: make(chan *signaling.Message, 16)}
	h.clients[id] = c
	return c
}

func drain(t *testing.T, c *Client) []*signaling.Message {
	t.Helper()
	var msgs []*signaling.Message
	for {
		select {
		case msg := <-c.Send:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

// lastOfType returns the freshest message of the given type, or nil.
func lastOfType(msgs []*signaling.Message, msgType string) *signaling.Message {
	var found *signaling.Message
	for _, msg := range msgs {
		if msg.Type == msgType {
			found = msg
		}
	}
	return found
}

func createTestFlight(t *testing.T, h *Hub, owner *Client) string {
	t.Helper()
	h.dispatch(owner, signaling.NewMessage(signaling.TypeCreateFlight, struct{}{}))

	msg := lastOfType(drain(t, owner), signaling.TypeFlightCreated)
	if msg == nil {
		t.Fatal("no flightCreated message")
	}
	var created signaling.CreateResultPayload
	if err := json.Unmarshal(msg.Payload, &created); err != nil {
		t.Fatalf("parse flightCreated: %v", err)
	}
	if len(created.Code) != codeLength {
		t.Fatalf("code %q has wrong length", created.Code)
	}
	return created.Code
}

func joinTestFlight(t *testing.T, h *Hub, c *Client, code string) signaling.JoinResultPayload {
	t.Helper()
	h.dispatch(c, signaling.NewMessage(signaling.TypeJoinFlight, signaling.JoinPayload{Code: code}))

	msg := lastOfType(drain(t, c), signaling.TypeJoinResult)
	if msg == nil {
		t.Fatal("no joinResult message")
	}
	var result signaling.JoinResultPayload
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		t.Fatalf("parse joinResult: %v", err)
	}
	return result
}

func TestCreateAndJoinFlight(t *testing.T) {
	h := newTestHub(config.OwnerDisconnectDestroy)
	owner := addClient(h, "owner", "Alice")
	guest := addClient(h, "guest", "Bob")

	code := createTestFlight(t, h, owner)

	result := joinTestFlight(t, h, guest, code)
	if !result.Success {
		t.Fatalf("join failed: %s", result.Message)
	}

	flight := h.flights[code]
	if flight == nil {
		t.Fatal("flight missing from registry")
	}
	if !flight.HasMember("owner") || !flight.HasMember("guest") {
		t.Fatalf("unexpected members %v", flight.Members)
	}
	if flight.OwnerID != "owner" {
		t.Fatalf("owner = %q", flight.OwnerID)
	}

	// Both sides get the membership broadcast.
	users := lastOfType(drain(t, owner), signaling.TypeFlightUsers)
	if users == nil {
		t.Fatal("owner got no flightUsers broadcast")
	}
	var payload signaling.FlightUsersPayload
	if err := json.Unmarshal(users.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Members) != 2 || !payload.OwnerConnected {
		t.Fatalf("unexpected broadcast %+v", payload)
	}
}

func TestJoinIsCaseInsensitive(t *testing.T) {
	h := newTestHub(config.OwnerDisconnectDestroy)
	owner := addClient(h, "owner", "Alice")
	guest := addClient(h, "guest", "Bob")

	code := createTestFlight(t, h, owner)

	result := joinTestFlight(t, h, guest, "  "+toLower(code)+" ")
	if !result.Success {
		t.Fatalf("normalized join failed: %s", result.Message)
	}
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

func TestJoinUnknownFlightFails(t *testing.T) {
	h := newTestHub(config.OwnerDisconnectDestroy)
	guest := addClient(h, "guest", "Bob")

	result := joinTestFlight(t, h, guest, "ZZZZZZ")
	if result.Success {
		t.Fatal("join of unknown flight succeeded")
	}
	if result.Message != "flight not found" {
		t.Fatalf("message = %q", result.Message)
	}
}

func TestJoinFullFlightFails(t *testing.T) {
	h := newTestHub(config.OwnerDisconnectDestroy)
	owner := addClient(h, "owner", "Alice")
	first := addClient(h, "first", "Bob")
	second := addClient(h, "second", "Carol")

	code := createTestFlight(t, h, owner)

	if result := joinTestFlight(t, h, first, code); !result.Success {
		t.Fatalf("first join failed: %s", result.Message)
	}
	result := joinTestFlight(t, h, second, code)
	if result.Success {
		t.Fatal("join above member cap succeeded")
	}
	if result.Message != "flight full" {
		t.Fatalf("message = %q", result.Message)
	}
}

func TestRelaySignalRewritesAddress(t *testing.T) {
	h := newTestHub(config.OwnerDisconnectDestroy)
	sender := addClient(h, "sender", "Alice")
	target := addClient(h, "target", "Bob")

	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	h.dispatch(sender, signaling.NewMessage(signaling.TypeOffer, signaling.SignalPayload{To: "target", SDP: sdp}))

	msg := lastOfType(drain(t, target), signaling.TypeOffer)
	if msg == nil {
		t.Fatal("target got no offer")
	}
	var payload signaling.SignalPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.From != "sender" {
		t.Fatalf("from = %q", payload.From)
	}
	if payload.To != "" {
		t.Fatalf("to should be cleared, got %q", payload.To)
	}
	if string(payload.SDP) != string(sdp) {
		t.Fatalf("sdp not forwarded verbatim: %s", payload.SDP)
	}
}

func TestRelayToUnknownTargetDropsSilently(t *testing.T) {
	h := newTestHub(config.OwnerDisconnectDestroy)
	sender := addClient(h, "sender", "Alice")

	h.dispatch(sender, signaling.NewMessage(signaling.TypeCandidate, signaling.SignalPayload{To: "ghost"}))

	if msgs := drain(t, sender); len(msgs) != 0 {
		t.Fatalf("sender got %d messages, want none", len(msgs))
	}
}

func TestOwnerDisconnectDestroysFlight(t *testing.T) {
	h := newTestHub(config.OwnerDisconnectDestroy)
	owner := addClient(h, "owner", "Alice")
	guest := addClient(h, "guest", "Bob")

	code := createTestFlight(t, h, owner)
	if result := joinTestFlight(t, h, guest, code); !result.Success {
		t.Fatal("join failed")
	}
	drain(t, owner)
	drain(t, guest)

	h.removeFromFlight(owner)

	if _, ok := h.flights[code]; ok {
		t.Fatal("flight survived owner disconnect")
	}
	if guest.FlightCode != "" {
		t.Fatalf("guest still bound to flight %q", guest.FlightCode)
	}

	// The survivors learn the owner is gone before the flight dies.
	msg := lastOfType(drain(t, guest), signaling.TypeFlightUsers)
	if msg == nil {
		t.Fatal("guest got no final broadcast")
	}
	var payload signaling.FlightUsersPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.OwnerConnected {
		t.Fatal("broadcast still claims owner connected")
	}
}

func TestOwnerDisconnectTransfersOwnership(t *testing.T) {
	h := newTestHub(config.OwnerDisconnectTransfer)
	owner := addClient(h, "owner", "Alice")
	guest := addClient(h, "guest", "Bob")

	code := createTestFlight(t, h, owner)
	if result := joinTestFlight(t, h, guest, code); !result.Success {
		t.Fatal("join failed")
	}
	drain(t, guest)

	h.removeFromFlight(owner)

	flight, ok := h.flights[code]
	if !ok {
		t.Fatal("flight destroyed under transfer policy")
	}
	if flight.OwnerID != "guest" {
		t.Fatalf("ownership not transferred, owner = %q", flight.OwnerID)
	}

	msg := lastOfType(drain(t, guest), signaling.TypeFlightUsers)
	if msg == nil {
		t.Fatal("guest got no broadcast")
	}
	var payload signaling.FlightUsersPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.OwnerID != "guest" {
		t.Fatalf("broadcast owner = %q", payload.OwnerID)
	}
}

func TestMemberLeaveKeepsFlightAlive(t *testing.T) {
	h := newTestHub(config.OwnerDisconnectDestroy)
	owner := addClient(h, "owner", "Alice")
	guest := addClient(h, "guest", "Bob")

	code := createTestFlight(t, h, owner)
	if result := joinTestFlight(t, h, guest, code); !result.Success {
		t.Fatal("join failed")
	}

	h.dispatch(guest, signaling.NewMessage(signaling.TypeLeaveFlight, struct{}{}))

	flight, ok := h.flights[code]
	if !ok {
		t.Fatal("flight destroyed by member leave")
	}
	if flight.HasMember("guest") {
		t.Fatal("guest still listed as member")
	}
	if flight.OwnerID != "owner" {
		t.Fatalf("owner changed to %q", flight.OwnerID)
	}
}

func TestListNearbySkipsFlightMembers(t *testing.T) {
	h := newTestHub(config.OwnerDisconnectDestroy)
	owner := addClient(h, "aaa-owner", "Alice")
	idle := addClient(h, "bbb-idle", "Bob")
	asker := addClient(h, "ccc-asker", "Carol")

	h.dispatch(owner, signaling.NewMessage(signaling.TypeHello, signaling.HelloPayload{Name: "Alice"}))
	createTestFlight(t, h, owner)
	drain(t, idle)
	drain(t, asker)

	h.dispatch(asker, signaling.NewMessage(signaling.TypeListNearby, struct{}{}))

	msg := lastOfType(drain(t, asker), signaling.TypeNearbyUsers)
	if msg == nil {
		t.Fatal("no nearbyUsers reply")
	}
	var payload signaling.NearbyUsersPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Users) != 2 {
		t.Fatalf("got %d nearby users, want 2", len(payload.Users))
	}
	// Sorted by id, and the flight owner is absent.
	if payload.Users[0].ID != "bbb-idle" || payload.Users[1].ID != "ccc-asker" {
		t.Fatalf("unexpected nearby set %+v", payload.Users)
	}
}

func TestHelloSetsDisplayName(t *testing.T) {
	h := newTestHub(config.OwnerDisconnectDestroy)
	c := addClient(h, "c1", "")

	h.dispatch(c, signaling.NewMessage(signaling.TypeHello, signaling.HelloPayload{Name: "Dana"}))

	if c.Name != "Dana" {
		t.Fatalf("name = %q", c.Name)
	}
}

func TestCreateWhileInFlightLeavesOldFlight(t *testing.T) {
	h := newTestHub(config.OwnerDisconnectDestroy)
	owner := addClient(h, "owner", "Alice")

	first := createTestFlight(t, h, owner)
	second := createTestFlight(t, h, owner)

	if first == second {
		t.Fatal("same code generated twice")
	}
	if _, ok := h.flights[first]; ok {
		t.Fatal("old flight not destroyed")
	}
	if owner.FlightCode != second {
		t.Fatalf("owner bound to %q, want %q", owner.FlightCode, second)
	}
}
