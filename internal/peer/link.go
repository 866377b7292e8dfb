package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/flightdrop/flightdrop/internal/config"
	"github.com/flightdrop/flightdrop/internal/signaling"
)

// ErrNegotiationFailed is reported when a description could not be
// applied. The link is terminal at that point; recovery means joining a
// fresh flight with a brand-new link.
var ErrNegotiationFailed = errors.New("negotiation failed")

// State is the negotiation state of a link.
type State int

const (
	StateIdle State = iota
	StateOfferCreated
	StateAwaitingAnswer
	StateOfferReceived
	StateAnswerCreated
	StateConnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferCreated:
		return "offer-created"
	case StateAwaitingAnswer:
		return "awaiting-answer"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswerCreated:
		return "answer-created"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Status is a connection-state transition surfaced to the link's owner.
type Status struct {
	State State
	Err   error
}

// SignalSender is the outbound half of the signaling relay, satisfied by
// *signaling.Client.
type SignalSender interface {
	SendOffer(to string, sdp json.RawMessage)
	SendAnswer(to string, sdp json.RawMessage)
	SendCandidate(to string, candidate json.RawMessage)
}

// describer is the slice of *webrtc.PeerConnection the negotiation logic
// needs. The indirection keeps candidate-buffering testable without a
// network.
type describer interface {
	CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	LocalDescription() *webrtc.SessionDescription
	Close() error
}

// Link drives a single transport-session handshake to completion and
// surfaces connection-state transitions. One Link per flight.
type Link struct {
	pc  describer
	raw *webrtc.PeerConnection
	sig SignalSender

	mu        sync.Mutex
	state     State
	remoteID  string
	remoteSet bool
	pending   []webrtc.ICECandidateInit

	states    chan Status
	channels  chan *webrtc.DataChannel
	closed    chan struct{}
	closeOnce sync.Once
}

// NewLink builds a link over a fresh PeerConnection configured from cfg.
func NewLink(cfg *config.Config, sig SignalSender) (*Link, error) {
	iceServers := []webrtc.ICEServer{{URLs: cfg.GetSTUNServers()}}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || ShouldForceRelay()) {
		policy = webrtc.ICETransportPolicyRelay
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	l := newLink(pc, sig)
	l.raw = pc

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		candidate, _ := json.Marshal(c.ToJSON())
		l.mu.Lock()
		target := l.remoteID
		l.mu.Unlock()
		if target != "" {
			l.sig.SendCandidate(target, candidate)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			l.setState(StateConnected, nil)
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
			l.setState(StateFailed, fmt.Errorf("peer connection %s", state))
			l.Close()
		case webrtc.PeerConnectionStateClosed:
			l.setState(StateClosed, nil)
			l.Close()
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		select {
		case l.channels <- dc:
		default:
		}
	})

	return l, nil
}

func newLink(pc describer, sig SignalSender) *Link {
	return &Link{
		pc:       pc,
		sig:      sig,
		state:    StateIdle,
		states:   make(chan Status, 8),
		channels: make(chan *webrtc.DataChannel, 1),
		closed:   make(chan struct{}),
	}
}

// States returns the connection-state observable.
func (l *Link) States() <-chan Status { return l.states }

// Channels delivers the data channel once available: immediately for the
// offerer, on OnDataChannel for the answerer.
func (l *Link) Channels() <-chan *webrtc.DataChannel { return l.channels }

// RemoteID returns the identity of the peer on the far side, once known.
func (l *Link) RemoteID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remoteID
}

// Offer starts the initiator handshake toward target: creates the data
// channel, the offer, and relays it.
func (l *Link) Offer(target string) error {
	l.mu.Lock()
	l.remoteID = target
	l.mu.Unlock()

	if l.raw != nil {
		ordered := true
		dc, err := l.raw.CreateDataChannel("file-transfer", &webrtc.DataChannelInit{Ordered: &ordered})
		if err != nil {
			return l.fail(fmt.Errorf("create data channel: %w", err))
		}
		select {
		case l.channels <- dc:
		default:
		}
	}

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return l.fail(fmt.Errorf("create offer: %w", err))
	}
	l.setState(StateOfferCreated, nil)

	if err := l.pc.SetLocalDescription(offer); err != nil {
		return l.fail(fmt.Errorf("set local description: %w", err))
	}

	sdp, _ := json.Marshal(l.pc.LocalDescription())
	l.sig.SendOffer(target, sdp)
	l.setState(StateAwaitingAnswer, nil)
	return nil
}

// Run consumes relayed signals until the link closes or the channel
// drains. Handshake errors are surfaced on States; the loop keeps
// consuming so late candidates never back up the handler.
func (l *Link) Run(signals <-chan *signaling.Signal) {
	for {
		select {
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if err := l.HandleSignal(sig); err != nil {
				log.Warn().Err(err).Str("kind", sig.Kind).Msg("signal handling error")
			}
		case <-l.closed:
			return
		}
	}
}

// HandleSignal applies one relayed negotiation message.
func (l *Link) HandleSignal(sig *signaling.Signal) error {
	switch sig.Kind {
	case signaling.TypeOffer:
		return l.handleOffer(sig)
	case signaling.TypeAnswer:
		return l.handleAnswer(sig)
	case signaling.TypeCandidate:
		return l.handleCandidate(sig)
	default:
		return nil
	}
}

func (l *Link) handleOffer(sig *signaling.Signal) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(sig.SDP, &desc); err != nil {
		return fmt.Errorf("parse offer: %w", err)
	}

	l.mu.Lock()
	l.remoteID = sig.From
	l.mu.Unlock()
	l.setState(StateOfferReceived, nil)

	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return l.fail(fmt.Errorf("%w: set remote description: %v", ErrNegotiationFailed, err))
	}
	l.drainCandidates()

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return l.fail(fmt.Errorf("%w: create answer: %v", ErrNegotiationFailed, err))
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return l.fail(fmt.Errorf("%w: set local description: %v", ErrNegotiationFailed, err))
	}
	l.setState(StateAnswerCreated, nil)

	sdp, _ := json.Marshal(l.pc.LocalDescription())
	l.sig.SendAnswer(sig.From, sdp)
	return nil
}

func (l *Link) handleAnswer(sig *signaling.Signal) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(sig.SDP, &desc); err != nil {
		return fmt.Errorf("parse answer: %w", err)
	}

	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return l.fail(fmt.Errorf("%w: set remote description: %v", ErrNegotiationFailed, err))
	}
	l.drainCandidates()
	return nil
}

// handleCandidate applies a candidate, or buffers it while the remote
// description is still outstanding. Duplicate delivery is possible under
// relay retry semantics, so apply errors are logged and swallowed.
func (l *Link) handleCandidate(sig *signaling.Signal) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(sig.Candidate, &candidate); err != nil {
		return fmt.Errorf("parse candidate: %w", err)
	}

	l.mu.Lock()
	if !l.remoteSet {
		l.pending = append(l.pending, candidate)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	if err := l.pc.AddICECandidate(candidate); err != nil {
		log.Warn().Err(err).Msg("candidate apply failed, ignoring")
	}
	return nil
}

// drainCandidates applies every buffered candidate in arrival order,
// exactly once, after the remote description lands.
func (l *Link) drainCandidates() {
	l.mu.Lock()
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, candidate := range pending {
		if err := l.pc.AddICECandidate(candidate); err != nil {
			log.Warn().Err(err).Msg("buffered candidate apply failed, ignoring")
		}
	}
}

// State returns the current negotiation state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) setState(state State, err error) {
	l.mu.Lock()
	if l.state == StateFailed || l.state == StateClosed {
		l.mu.Unlock()
		return
	}
	l.state = state
	l.mu.Unlock()

	select {
	case l.states <- Status{State: state, Err: err}:
	default:
	}
}

func (l *Link) fail(err error) error {
	l.setState(StateFailed, err)
	return err
}

// Close tears down the link. Idempotent.
func (l *Link) Close() {
	l.closeOnce.Do(func() {
		close(l.closed)
		if err := l.pc.Close(); err != nil {
			log.Debug().Err(err).Msg("peer connection close")
		}
	})
}
