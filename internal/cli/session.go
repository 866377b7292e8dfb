package cli

import (
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/flightdrop/flightdrop/internal/config"
	"github.com/flightdrop/flightdrop/internal/peer"
	"github.com/flightdrop/flightdrop/internal/signaling"
	"github.com/flightdrop/flightdrop/internal/transfer"
	"github.com/flightdrop/flightdrop/internal/ui"
)

const (
	relayTimeout   = 10 * time.Second
	channelTimeout = 60 * time.Second
)

// ConnectionContext bundles the relay connection for one command run.
type ConnectionContext struct {
	Client  *signaling.Client
	Handler *signaling.Handler
	Config  *config.Config
	SelfID  string
}

// NewConnectionContext dials the relay, starts the message router, and
// completes the hello handshake.
func NewConnectionContext(cfg *config.Config) (*ConnectionContext, error) {
	client := signaling.NewClient(cfg.WebSocketURL)
	if err := client.Connect(); err != nil {
		return nil, transfer.NewError("connect to relay", err)
	}

	handler := signaling.NewHandler(client)
	go handler.Start()

	client.SendHello(cfg.DisplayName)

	select {
	case id := <-handler.Welcome:
		return &ConnectionContext{Client: client, Handler: handler, Config: cfg, SelfID: id}, nil
	case msg := <-handler.Error:
		client.Close()
		return nil, fmt.Errorf("relay rejected connection: %s", msg)
	case <-handler.Disconnected:
		client.Close()
		return nil, fmt.Errorf("relay connection dropped during handshake")
	case <-time.After(relayTimeout):
		client.Close()
		return nil, fmt.Errorf("timed out waiting for relay welcome")
	}
}

func (c *ConnectionContext) Close() {
	if c.Client != nil {
		c.Client.LeaveFlight()
		c.Client.Close()
	}
}

// LoadConfig resolves configuration and validates flag combinations.
func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, transfer.NewError("load config", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

// waitForChannel blocks until the link hands over an open data channel
// or fails.
func waitForChannel(link *peer.Link) (*webrtc.DataChannel, error) {
	var dc *webrtc.DataChannel
	deadline := time.After(channelTimeout)

	select {
	case dc = <-link.Channels():
	case status := <-discardUntilTerminal(link.States()):
		return nil, fmt.Errorf("connection failed: %v", status.Err)
	case <-deadline:
		return nil, fmt.Errorf("timed out waiting for data channel")
	}

	if dc.ReadyState() == webrtc.DataChannelStateOpen {
		return dc, nil
	}

	opened := make(chan struct{}, 1)
	dc.OnOpen(func() {
		select {
		case opened <- struct{}{}:
		default:
		}
	})
	// OnOpen can land between the ReadyState check and the callback
	// registration, so check once more.
	if dc.ReadyState() == webrtc.DataChannelStateOpen {
		return dc, nil
	}

	select {
	case <-opened:
		return dc, nil
	case <-deadline:
		return nil, fmt.Errorf("timed out waiting for data channel to open")
	}
}

// discardUntilTerminal filters the state stream down to failure states,
// so waits can select on "it broke" without consuming progress updates.
func discardUntilTerminal(states <-chan peer.Status) <-chan peer.Status {
	out := make(chan peer.Status, 1)
	go func() {
		for status := range states {
			if status.State == peer.StateFailed || status.State == peer.StateClosed {
				out <- status
				return
			}
		}
	}()
	return out
}

// buildEngine wires a transfer engine onto an open data channel. The
// envelope hook must be installed before messages start flowing, so it is
// taken here rather than set after the fact.
func buildEngine(dc *webrtc.DataChannel, cfg *config.Config, onEnvelope func(*transfer.Envelope)) *transfer.Engine {
	session := peer.NewChannelSession(dc)
	engine := transfer.NewEngine(session, cfg)
	engine.OnEnvelope = onEnvelope
	session.OnMessage(engine.HandleMessage)
	session.OnClose(engine.Close)
	return engine
}

// applyEvent folds one progress snapshot into the display model.
func applyEvent(model *ui.ProgressModel, p transfer.Progress) {
	model.Add(p.TransferID, p.Path, p.Total)
	model.SetProgress(p.TransferID, p.Bytes, p.Rate)

	switch p.Status {
	case transfer.StatusPaused:
		model.SetState(p.TransferID, ui.StatePaused, "")
	case transfer.StatusDone:
		model.SetState(p.TransferID, ui.StateDone, "")
	case transfer.StatusCanceled:
		model.SetState(p.TransferID, ui.StateCanceled, "")
	case transfer.StatusError:
		detail := ""
		if p.Err != nil {
			detail = p.Err.Error()
		}
		model.SetState(p.TransferID, ui.StateError, detail)
	default:
		model.SetState(p.TransferID, ui.StateActive, "")
	}
}
