package signaling

import "encoding/json"

// Message is the envelope for every message between peers and the relay.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message types, client to server.
const (
	TypeHello        = "hello"
	TypeCreateFlight = "createFlight"
	TypeJoinFlight   = "joinFlight"
	TypeLeaveFlight  = "leaveFlight"
	TypeListNearby   = "listNearby"
)

// Message types, server to client.
const (
	TypeWelcome       = "welcome"
	TypeFlightCreated = "flightCreated"
	TypeJoinResult    = "joinResult"
	TypeFlightUsers   = "flightUsers"
	TypeNearbyUsers   = "nearbyUsers"
	TypeError         = "error"
)

// Signaling relay types, forwarded verbatim between peers.
const (
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "ice-candidate"
)

// HelloPayload announces the client's display name after connecting.
type HelloPayload struct {
	Name string `json:"name"`
}

// WelcomePayload carries the identity the relay assigned to a connection.
type WelcomePayload struct {
	ID string `json:"id"`
}

// CreateResultPayload answers a createFlight request.
type CreateResultPayload struct {
	Code string `json:"code"`
}

// JoinPayload names the flight to join.
type JoinPayload struct {
	Code string `json:"code"`
}

// JoinResultPayload answers a joinFlight request.
type JoinResultPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// FlightUsersPayload is broadcast to every member on membership change.
type FlightUsersPayload struct {
	OwnerID        string   `json:"ownerId"`
	Members        []string `json:"members"`
	OwnerConnected bool     `json:"ownerConnected"`
}

// SignalPayload carries an SDP description or an ICE candidate between two
// peers. Outbound messages address a target; the relay rewrites the
// address to the sender before forwarding.
type SignalPayload struct {
	To        string          `json:"to,omitempty"`
	From      string          `json:"from,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// NearbyUser describes a connected client that is not in any flight.
type NearbyUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NearbyUsersPayload lists clients available for ad-hoc discovery.
type NearbyUsersPayload struct {
	Users []NearbyUser `json:"users"`
}

// ErrorPayload carries a human-readable error string.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewMessage marshals payload into a Message envelope. Marshal failures
// cannot happen for the payload types above, so they are swallowed.
func NewMessage(msgType string, payload any) *Message {
	raw, _ := json.Marshal(payload)
	return &Message{Type: msgType, Payload: raw}
}
