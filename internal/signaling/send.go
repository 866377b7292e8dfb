package signaling

import "encoding/json"

// SendHello announces the client's display name.
func (c *Client) SendHello(name string) {
	c.Send(TypeHello, HelloPayload{Name: name})
}

// CreateFlight asks the relay for a new flight.
func (c *Client) CreateFlight() {
	c.Send(TypeCreateFlight, struct{}{})
}

// JoinFlight asks the relay to join an existing flight.
func (c *Client) JoinFlight(code string) {
	c.Send(TypeJoinFlight, JoinPayload{Code: code})
}

// LeaveFlight leaves the current flight, if any.
func (c *Client) LeaveFlight() {
	c.Send(TypeLeaveFlight, struct{}{})
}

// ListNearby requests the current set of unroomed peers.
func (c *Client) ListNearby() {
	c.Send(TypeListNearby, struct{}{})
}

// SendOffer relays an SDP offer to a target peer.
func (c *Client) SendOffer(to string, sdp json.RawMessage) {
	c.Send(TypeOffer, SignalPayload{To: to, SDP: sdp})
}

// SendAnswer relays an SDP answer to a target peer.
func (c *Client) SendAnswer(to string, sdp json.RawMessage) {
	c.Send(TypeAnswer, SignalPayload{To: to, SDP: sdp})
}

// SendCandidate relays an ICE candidate to a target peer.
func (c *Client) SendCandidate(to string, candidate json.RawMessage) {
	c.Send(TypeCandidate, SignalPayload{To: to, Candidate: candidate})
}
