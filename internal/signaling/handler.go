package signaling

import "encoding/json"

// Signal is a relayed negotiation message from another peer.
type Signal struct {
	// Kind is TypeOffer, TypeAnswer, or TypeCandidate.
	Kind string

	// From is the identity of the peer that sent the signal.
	From string

	SDP       json.RawMessage
	Candidate json.RawMessage
}

// Handler routes incoming relay messages onto typed channels.
type Handler struct {
	client *Client

	Welcome       chan string
	FlightCreated chan string
	JoinResult    chan *JoinResultPayload
	FlightUsers   chan *FlightUsersPayload
	NearbyUsers   chan []NearbyUser
	Signals       chan *Signal
	Error         chan string

	// Disconnected is closed when the relay connection drops.
	Disconnected chan struct{}
}

// NewHandler creates a message handler for the client.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:        client,
		Welcome:       make(chan string, 1),
		FlightCreated: make(chan string, 1),
		JoinResult:    make(chan *JoinResultPayload, 1),
		FlightUsers:   make(chan *FlightUsersPayload, 8),
		NearbyUsers:   make(chan []NearbyUser, 8),
		Signals:       make(chan *Signal, 32),
		Error:         make(chan string, 1),
		Disconnected:  make(chan struct{}),
	}
}

// Start consumes the client's incoming stream and routes each message.
// It returns when the connection drops.
func (h *Handler) Start() {
	for msg := range h.client.Incoming() {
		switch msg.Type {

		case TypeWelcome:
			var welcome WelcomePayload
			if json.Unmarshal(msg.Payload, &welcome) == nil {
				h.Welcome <- welcome.ID
			}

		case TypeFlightCreated:
			var created CreateResultPayload
			if json.Unmarshal(msg.Payload, &created) == nil {
				h.FlightCreated <- created.Code
			}

		case TypeJoinResult:
			var result JoinResultPayload
			if json.Unmarshal(msg.Payload, &result) == nil {
				h.JoinResult <- &result
			}

		case TypeFlightUsers:
			var users FlightUsersPayload
			if json.Unmarshal(msg.Payload, &users) == nil {
				h.pushUsers(&users)
			}

		case TypeNearbyUsers:
			var nearby NearbyUsersPayload
			if json.Unmarshal(msg.Payload, &nearby) == nil {
				select {
				case h.NearbyUsers <- nearby.Users:
				default:
				}
			}

		case TypeOffer, TypeAnswer, TypeCandidate:
			h.pushSignal(msg)

		case TypeError:
			var errPayload ErrorPayload
			if json.Unmarshal(msg.Payload, &errPayload) != nil {
				errPayload.Error = "unknown error from relay"
			}
			select {
			case h.Error <- errPayload.Error:
			default:
			}
		}
	}

	close(h.Disconnected)
}

// pushUsers keeps only the freshest membership snapshot when the consumer
// lags behind.
func (h *Handler) pushUsers(users *FlightUsersPayload) {
	for {
		select {
		case h.FlightUsers <- users:
			return
		default:
			select {
			case <-h.FlightUsers:
			default:
			}
		}
	}
}

func (h *Handler) pushSignal(msg *Message) {
	var payload SignalPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		select {
		case h.Error <- "failed to parse signal payload":
		default:
		}
		return
	}

	h.Signals <- &Signal{
		Kind:      msg.Type,
		From:      payload.From,
		SDP:       payload.SDP,
		Candidate: payload.Candidate,
	}
}
