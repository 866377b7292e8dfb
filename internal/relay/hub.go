package relay

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/flightdrop/flightdrop/internal/config"
	"github.com/flightdrop/flightdrop/internal/signaling"
)

// Hub is the in-memory room registry and message router. All state is
// owned by the single goroutine running Run; connections talk to it
// through the Register, Unregister and Inbound channels.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	Inbound    chan inbound

	clients map[string]*Client
	flights map[string]*Flight

	memberCap       int
	ownerDisconnect string
}

// NewHub creates a hub with the given membership cap and owner-disconnect
// policy (config.OwnerDisconnectDestroy or config.OwnerDisconnectTransfer).
func NewHub(memberCap int, ownerDisconnect string) *Hub {
	if memberCap < 2 {
		memberCap = config.DefaultMemberCap
	}
	return &Hub{
		Register:        make(chan *Client),
		Unregister:      make(chan *Client),
		Inbound:         make(chan inbound, 64),
		clients:         make(map[string]*Client),
		flights:         make(map[string]*Flight),
		memberCap:       memberCap,
		ownerDisconnect: ownerDisconnect,
	}
}

// NewClientID allocates a fresh identity for a connection.
func NewClientID() string {
	return uuid.NewString()
}

// Run is the hub's main processing loop. It never returns.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.clients[client.ID] = client
			client.trySend(signaling.NewMessage(signaling.TypeWelcome, signaling.WelcomePayload{ID: client.ID}))
			h.broadcastNearby()
			log.Info().Str("client", client.ID).Msg("client registered")

		case client := <-h.Unregister:
			if _, ok := h.clients[client.ID]; !ok {
				continue
			}
			delete(h.clients, client.ID)
			h.removeFromFlight(client)
			h.broadcastNearby()
			close(client.Send)
			log.Info().Str("client", client.ID).Msg("client unregistered")

		case in := <-h.Inbound:
			h.dispatch(in.client, in.msg)
		}
	}
}

func (h *Hub) dispatch(c *Client, msg *signaling.Message) {
	switch msg.Type {
	case signaling.TypeHello:
		var hello signaling.HelloPayload
		if err := json.Unmarshal(msg.Payload, &hello); err == nil {
			c.Name = hello.Name
			h.broadcastNearby()
		}

	case signaling.TypeCreateFlight:
		h.createFlight(c)

	case signaling.TypeJoinFlight:
		h.joinFlight(c, msg.Payload)

	case signaling.TypeLeaveFlight:
		h.removeFromFlight(c)
		h.broadcastNearby()

	case signaling.TypeListNearby:
		c.trySend(signaling.NewMessage(signaling.TypeNearbyUsers, h.nearbyUsers()))

	case signaling.TypeOffer, signaling.TypeAnswer, signaling.TypeCandidate:
		h.relaySignal(c, msg)

	default:
		log.Debug().Str("type", msg.Type).Msg("unknown message type ignored")
	}
}

func (h *Hub) createFlight(c *Client) {
	if c.FlightCode != "" {
		h.removeFromFlight(c)
	}

	code := NewCode(func(code string) bool {
		_, taken := h.flights[code]
		return taken
	})

	h.flights[code] = &Flight{
		Code:           code,
		OwnerID:        c.ID,
		Members:        []string{c.ID},
		OwnerConnected: true,
	}
	c.FlightCode = code

	c.trySend(signaling.NewMessage(signaling.TypeFlightCreated, signaling.CreateResultPayload{Code: code}))
	h.broadcastUsers(code)
	h.broadcastNearby()
	log.Info().Str("flight", code).Str("owner", c.ID).Msg("flight created")
}

func (h *Hub) joinFlight(c *Client, payload json.RawMessage) {
	var join signaling.JoinPayload
	if err := json.Unmarshal(payload, &join); err != nil {
		c.trySend(signaling.NewMessage(signaling.TypeJoinResult, signaling.JoinResultPayload{Success: false, Message: "malformed join request"}))
		return
	}

	code := NormalizeCode(join.Code)
	flight, ok := h.flights[code]
	if !ok {
		c.trySend(signaling.NewMessage(signaling.TypeJoinResult, signaling.JoinResultPayload{Success: false, Message: "flight not found"}))
		return
	}
	if len(flight.Members) >= h.memberCap {
		c.trySend(signaling.NewMessage(signaling.TypeJoinResult, signaling.JoinResultPayload{Success: false, Message: "flight full"}))
		return
	}

	if c.FlightCode != "" && c.FlightCode != code {
		h.removeFromFlight(c)
	}

	flight.AddMember(c.ID)
	c.FlightCode = code

	c.trySend(signaling.NewMessage(signaling.TypeJoinResult, signaling.JoinResultPayload{Success: true}))
	h.broadcastUsers(code)
	h.broadcastNearby()
	log.Info().Str("flight", code).Str("client", c.ID).Msg("client joined flight")
}

// relaySignal forwards an offer, answer, or candidate payload verbatim to
// its target, tagged with the sender's identity. Unknown or disconnected
// targets are dropped silently: the sender cannot act on that information
// any differently than on a timeout.
func (h *Hub) relaySignal(c *Client, msg *signaling.Message) {
	var payload signaling.SignalPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.trySend(signaling.NewMessage(signaling.TypeError, signaling.ErrorPayload{Error: fmt.Sprintf("malformed %s payload", msg.Type)}))
		return
	}

	target, ok := h.clients[payload.To]
	if !ok {
		log.Debug().Str("type", msg.Type).Str("target", payload.To).Msg("relay target not connected, dropping")
		return
	}

	payload.From = c.ID
	payload.To = ""
	target.trySend(signaling.NewMessage(msg.Type, payload))
}

// removeFromFlight takes the client out of its flight, applies the
// owner-disconnect policy, and re-broadcasts membership.
func (h *Hub) removeFromFlight(c *Client) {
	if c.FlightCode == "" {
		return
	}
	code := c.FlightCode
	c.FlightCode = ""

	flight, ok := h.flights[code]
	if !ok {
		return
	}

	if flight.OwnerID == c.ID {
		switch h.ownerDisconnect {
		case config.OwnerDisconnectTransfer:
			flight.RemoveMember(c.ID)
			if len(flight.Members) == 0 {
				delete(h.flights, code)
				log.Info().Str("flight", code).Msg("flight deleted, no members left")
				return
			}
			flight.OwnerID = flight.Members[0]
			h.broadcastUsers(code)
			log.Info().Str("flight", code).Str("owner", flight.OwnerID).Msg("flight ownership transferred")

		default:
			// Observed upstream behavior: the flight dies with its owner.
			flight.OwnerConnected = false
			h.broadcastUsers(code)
			h.clearFlightMembers(flight)
			delete(h.flights, code)
			log.Info().Str("flight", code).Msg("flight deleted, owner disconnected")
		}
		return
	}

	flight.RemoveMember(c.ID)
	if len(flight.Members) == 0 {
		delete(h.flights, code)
		log.Info().Str("flight", code).Msg("flight deleted, empty")
		return
	}
	h.broadcastUsers(code)
}

func (h *Hub) clearFlightMembers(flight *Flight) {
	for _, id := range flight.Members {
		if member, ok := h.clients[id]; ok && member.FlightCode == flight.Code {
			member.FlightCode = ""
		}
	}
}

func (h *Hub) broadcastUsers(code string) {
	flight, ok := h.flights[code]
	if !ok {
		return
	}
	msg := signaling.NewMessage(signaling.TypeFlightUsers, flight.Users())
	for _, id := range flight.Members {
		if member, ok := h.clients[id]; ok {
			member.trySend(msg)
		}
	}
}

// broadcastNearby pushes the current nearby set to every client not in a
// flight, so ad-hoc discovery views stay live.
func (h *Hub) broadcastNearby() {
	msg := signaling.NewMessage(signaling.TypeNearbyUsers, h.nearbyUsers())
	for _, c := range h.clients {
		if c.FlightCode == "" {
			c.trySend(msg)
		}
	}
}

func (h *Hub) nearbyUsers() signaling.NearbyUsersPayload {
	users := make([]signaling.NearbyUser, 0)
	for _, c := range h.clients {
		if c.FlightCode == "" {
			users = append(users, signaling.NearbyUser{ID: c.ID, Name: c.Name})
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return signaling.NearbyUsersPayload{Users: users}
}
