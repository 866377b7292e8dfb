package relay

import "github.com/flightdrop/flightdrop/internal/signaling"

// inbound pairs a decoded wire message with the connection it came from.
// The hub's dispatch loop is the only consumer.
type inbound struct {
	msg    *signaling.Message
	client *Client
}
