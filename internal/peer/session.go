package peer

import (
	"github.com/pion/webrtc/v4"
)

// Interop-safe SCTP message ceiling. Some stacks reject user messages
// larger than this, so chunk sizing clamps against it.
const defaultMaxMessageSize = 64 * 1024

// ChannelSession adapts a pion data channel to the transfer engine's
// session surface.
type ChannelSession struct {
	dc *webrtc.DataChannel
}

// NewChannelSession wraps an open data channel.
func NewChannelSession(dc *webrtc.DataChannel) *ChannelSession {
	return &ChannelSession{dc: dc}
}

func (s *ChannelSession) SendText(data []byte) error {
	return s.dc.SendText(string(data))
}

func (s *ChannelSession) SendBinary(data []byte) error {
	return s.dc.Send(data)
}

func (s *ChannelSession) BufferedAmount() uint64 {
	return s.dc.BufferedAmount()
}

func (s *ChannelSession) SetBufferedAmountLowThreshold(threshold uint64) {
	s.dc.SetBufferedAmountLowThreshold(threshold)
}

func (s *ChannelSession) OnBufferedAmountLow(f func()) {
	s.dc.OnBufferedAmountLow(f)
}

func (s *ChannelSession) MaxMessageSize() int {
	return defaultMaxMessageSize
}

func (s *ChannelSession) Close() error {
	return s.dc.Close()
}

// OnMessage routes inbound frames: text carries control, binary carries
// payload.
func (s *ChannelSession) OnMessage(f func(data []byte, isText bool)) {
	s.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		f(msg.Data, msg.IsString)
	})
}

// OnClose fires when the underlying channel tears down.
func (s *ChannelSession) OnClose(f func()) {
	s.dc.OnClose(f)
}
