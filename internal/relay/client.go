package relay

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/flightdrop/flightdrop/internal/signaling"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP descriptions are the
	// largest payloads the relay ever sees.
	maxMessageSize = 64 * 1024
)

// Client wraps a single websocket connection (one peer identity).
type Client struct {
	Hub *Hub

	Conn *websocket.Conn

	// ID is the identity the hub assigned to this connection.
	ID string

	// Name is the display name from the hello message.
	Name string

	// FlightCode is the code of the flight the client is in, or "".
	// Owned by the hub goroutine.
	FlightCode string

	// Send is the buffered channel of outbound messages. The write pump
	// is the only reader.
	Send chan *signaling.Message
}

// ReadPump pumps messages from the websocket connection to the hub. It
// runs in a per-connection goroutine and is the sole reader.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg signaling.Message
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Str("client", c.ID).Err(err).Msg("read error")
			}
			break
		}

		c.Hub.Inbound <- inbound{msg: &msg, client: c}
	}
}

// WritePump pumps messages from the hub to the websocket connection and
// sends periodic pings. It is the sole writer on the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteJSON(message); err != nil {
				log.Warn().Str("client", c.ID).Err(err).Msg("write error")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues a message without blocking the hub loop. A full send
// buffer means the client has stalled; the message is dropped.
func (c *Client) trySend(msg *signaling.Message) {
	select {
	case c.Send <- msg:
	default:
		log.Warn().Str("client", c.ID).Str("type", msg.Type).Msg("send buffer full, dropping")
	}
}
