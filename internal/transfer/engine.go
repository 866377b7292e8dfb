package transfer

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/flightdrop/flightdrop/internal/config"
)

// Session is the transport surface the engine drives. Satisfied by
// peer.ChannelSession over a live data channel, and by in-memory fakes
// under test.
type Session interface {
	SendText(data []byte) error
	SendBinary(data []byte) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(threshold uint64)
	OnBufferedAmountLow(f func())
	MaxMessageSize() int
	Close() error
}

// Source describes one file handed to the engine for sending. Open is
// called per attempt so retries reread from the start.
type Source struct {
	Path string
	Size int64
	Mime string
	Open func() (io.ReadCloser, error)
}

// outgoing is the sender-side record of one transfer.
type outgoing struct {
	id    string
	path  string
	size  int64
	mime  string
	open  func() (io.ReadCloser, error)
	meter *progressMeter

	status Status
	paused atomic.Bool
	resume chan struct{}

	cancel     chan struct{}
	cancelOnce sync.Once
}

func (o *outgoing) markCancel() {
	o.cancelOnce.Do(func() { close(o.cancel) })
}

// Transfer ids are uuids, which fixes the framing overhead per message.
const idFrameOverhead = frameHeaderSize + 36

// Engine multiplexes file transfers over a single ordered session. One
// worker drains the send queue so payloads never interleave; inbound
// frames demultiplex by transfer id.
type Engine struct {
	session Session

	chunkSize   int
	threshold   uint64
	memoryLimit int64
	batchSize   int64
	retries     int
	idleTimeout time.Duration
	outputDir   string

	mu       sync.Mutex
	outgoing map[string]*outgoing
	incoming map[string]*incoming
	byPath   map[string]string

	sendQ  chan *outgoing
	events chan Progress
	wake   chan struct{}

	closed    chan struct{}
	closeOnce sync.Once

	totalSent     atomic.Int64
	totalReceived atomic.Int64

	// OnEnvelope, when set before traffic starts, receives auxiliary
	// envelopes (manifest, device info).
	OnEnvelope func(*Envelope)
}

// NewEngine wires an engine to an open session and starts the send
// worker.
func NewEngine(session Session, cfg *config.Config) *Engine {
	chunkSize := cfg.ChunkSize
	if ceiling := session.MaxMessageSize() - idFrameOverhead; chunkSize > ceiling {
		chunkSize = ceiling
	}

	e := &Engine{
		session:     session,
		chunkSize:   chunkSize,
		threshold:   uint64(chunkSize * cfg.BackpressureFactor),
		memoryLimit: cfg.MemorySinkLimit,
		batchSize:   int64(cfg.StreamBatchSize),
		retries:     cfg.SendRetries,
		idleTimeout: cfg.IdleTimeout,
		outputDir:   cfg.OutputDir,
		outgoing:    make(map[string]*outgoing),
		incoming:    make(map[string]*incoming),
		byPath:      make(map[string]string),
		sendQ:       make(chan *outgoing, 64),
		events:      make(chan Progress, 64),
		wake:        make(chan struct{}, 1),
		closed:      make(chan struct{}),
	}

	session.SetBufferedAmountLowThreshold(e.threshold / 2)
	session.OnBufferedAmountLow(func() {
		select {
		case e.wake <- struct{}{}:
		default:
		}
	})

	go e.runQueue()
	return e
}

// Events is the progress stream. Snapshots drop rather than block when
// the consumer lags; terminal states repeat until read only in the
// sense that the final snapshot always carries them.
func (e *Engine) Events() <-chan Progress { return e.events }

// Done closes when the engine shuts down.
func (e *Engine) Done() <-chan struct{} { return e.closed }

// ChunkSize is the effective payload size after clamping to the
// session's message ceiling.
func (e *Engine) ChunkSize() int { return e.chunkSize }

// Totals reports the payload bytes sent and received over the engine's
// lifetime, across every transfer including retried attempts.
func (e *Engine) Totals() (sent, received int64) {
	return e.totalSent.Load(), e.totalReceived.Load()
}

// EnqueueSend schedules a file and returns its transfer id. A path that
// is already queued or in flight is rejected; finished paths may be sent
// again.
func (e *Engine) EnqueueSend(src Source) (string, error) {
	if src.Open == nil || src.Path == "" {
		return "", NewFileError("enqueue", src.Path, ErrInvalidFile)
	}

	e.mu.Lock()
	if prev, ok := e.byPath[src.Path]; ok {
		if out, exists := e.outgoing[prev]; exists && !out.status.Terminal() {
			e.mu.Unlock()
			return "", NewFileError("enqueue", src.Path, ErrDuplicatePath)
		}
	}

	out := &outgoing{
		id:     uuid.NewString(),
		path:   src.Path,
		size:   src.Size,
		mime:   src.Mime,
		open:   src.Open,
		meter:  newProgressMeter(src.Size),
		status: StatusQueued,
		resume: make(chan struct{}, 1),
		cancel: make(chan struct{}),
	}
	e.outgoing[out.id] = out
	e.byPath[src.Path] = out.id
	e.mu.Unlock()

	select {
	case e.sendQ <- out:
	default:
		e.mu.Lock()
		delete(e.outgoing, out.id)
		delete(e.byPath, src.Path)
		e.mu.Unlock()
		return "", NewFileError("enqueue", src.Path, ErrQueueFull)
	}

	e.emit(e.outgoingProgress(out, StatusQueued, nil))
	return out.id, nil
}

// HandleMessage is the inbound demux, fed from the session's message
// callback. Text frames carry control, binary frames carry payload or
// an auxiliary envelope.
func (e *Engine) HandleMessage(data []byte, isText bool) {
	if isText {
		ctrl, err := DecodeControl(data)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed control frame")
			return
		}
		e.handleControl(ctrl)
		return
	}

	id, chunk, err := DecodeFrame(data)
	if err != nil {
		log.Warn().Err(err).Msg("dropping malformed binary frame")
		return
	}
	if id == "" {
		env, err := DecodeEnvelope(chunk)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed envelope")
			return
		}
		if e.OnEnvelope != nil {
			e.OnEnvelope(env)
		}
		return
	}
	e.handleChunk(id, chunk)
}

func (e *Engine) handleControl(ctrl *Control) {
	switch ctrl.Type {
	case ControlInit:
		e.handleInit(ctrl)
	case ControlDone:
		e.handleDone(ctrl)
	case ControlPause:
		e.handleRemotePause(ctrl.TransferID)
	case ControlResume:
		e.handleRemoteResume(ctrl.TransferID)
	case ControlCancel:
		e.handleRemoteCancel(ctrl.TransferID)
	case ControlError:
		e.handleRemoteError(ctrl)
	default:
		log.Debug().Str("type", ctrl.Type).Msg("ignoring unknown control type")
	}
}

// Pause suspends a transfer and tells the peer. For outgoing transfers
// the send loop parks; for incoming ones the remote sender is asked to
// stop.
func (e *Engine) Pause(id string) error {
	e.mu.Lock()
	if out, ok := e.outgoing[id]; ok {
		e.mu.Unlock()
		if e.pauseOutgoing(out) {
			e.sendControl(&Control{Type: ControlPause, TransferID: id})
		}
		return nil
	}
	if inc, ok := e.incoming[id]; ok {
		paused := e.pauseIncomingLocked(inc)
		e.mu.Unlock()
		if paused {
			e.sendControl(&Control{Type: ControlPause, TransferID: id})
		}
		return nil
	}
	e.mu.Unlock()
	return ErrUnknownTransfer
}

// Resume restarts a paused transfer and tells the peer.
func (e *Engine) Resume(id string) error {
	e.mu.Lock()
	if out, ok := e.outgoing[id]; ok {
		e.mu.Unlock()
		if e.resumeOutgoing(out) {
			e.sendControl(&Control{Type: ControlResume, TransferID: id})
		}
		return nil
	}
	if inc, ok := e.incoming[id]; ok {
		resumed := e.resumeIncomingLocked(inc)
		e.mu.Unlock()
		if resumed {
			e.sendControl(&Control{Type: ControlResume, TransferID: id})
		}
		return nil
	}
	e.mu.Unlock()
	return ErrUnknownTransfer
}

// Cancel terminates a transfer on both sides. Terminal and irreversible.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	if out, ok := e.outgoing[id]; ok {
		e.mu.Unlock()
		if e.cancelOutgoing(out) {
			e.sendControl(&Control{Type: ControlCancel, TransferID: id})
		}
		return nil
	}
	if inc, ok := e.incoming[id]; ok {
		sink := e.cancelIncomingLocked(inc)
		e.mu.Unlock()
		if sink != nil {
			sink.Abort()
			e.sendControl(&Control{Type: ControlCancel, TransferID: id})
			e.emit(e.incomingProgress(inc, StatusCanceled, ErrTransferCancelled))
		}
		return nil
	}
	e.mu.Unlock()
	return ErrUnknownTransfer
}

func (e *Engine) handleRemotePause(id string) {
	e.mu.Lock()
	if out, ok := e.outgoing[id]; ok {
		e.mu.Unlock()
		e.pauseOutgoing(out)
		return
	}
	if inc, ok := e.incoming[id]; ok {
		e.pauseIncomingLocked(inc)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	log.Debug().Str("transfer", id).Msg("pause for unknown transfer")
}

func (e *Engine) handleRemoteResume(id string) {
	e.mu.Lock()
	if out, ok := e.outgoing[id]; ok {
		e.mu.Unlock()
		e.resumeOutgoing(out)
		return
	}
	if inc, ok := e.incoming[id]; ok {
		e.resumeIncomingLocked(inc)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	log.Debug().Str("transfer", id).Msg("resume for unknown transfer")
}

func (e *Engine) handleRemoteCancel(id string) {
	e.mu.Lock()
	if out, ok := e.outgoing[id]; ok {
		e.mu.Unlock()
		e.cancelOutgoing(out)
		return
	}
	if inc, ok := e.incoming[id]; ok {
		sink := e.cancelIncomingLocked(inc)
		e.mu.Unlock()
		if sink != nil {
			sink.Abort()
			e.emit(e.incomingProgress(inc, StatusCanceled, ErrTransferCancelled))
		}
		return
	}
	e.mu.Unlock()
	log.Debug().Str("transfer", id).Msg("cancel for unknown transfer")
}

func (e *Engine) handleRemoteError(ctrl *Control) {
	err := WrapError("remote", ErrRemoteFailure, ctrl.Reason)

	e.mu.Lock()
	if out, ok := e.outgoing[ctrl.TransferID]; ok {
		e.mu.Unlock()
		out.markCancel()
		e.setOutgoingStatus(out, StatusError, err)
		return
	}
	if inc, ok := e.incoming[ctrl.TransferID]; ok {
		sink := e.failIncomingLocked(inc)
		e.mu.Unlock()
		if sink != nil {
			sink.Abort()
			e.emit(e.incomingProgress(inc, StatusError, err))
		}
		return
	}
	e.mu.Unlock()
}

// pauseOutgoing flips the pause gate. Returns false when the transfer
// was not pausable.
func (e *Engine) pauseOutgoing(out *outgoing) bool {
	e.mu.Lock()
	if out.status != StatusSending && out.status != StatusQueued {
		e.mu.Unlock()
		return false
	}
	out.status = StatusPaused
	e.mu.Unlock()

	// Drain a stale resume token so the gate actually parks.
	select {
	case <-out.resume:
	default:
	}
	out.paused.Store(true)

	e.emit(e.outgoingProgress(out, StatusPaused, nil))
	return true
}

func (e *Engine) resumeOutgoing(out *outgoing) bool {
	e.mu.Lock()
	if out.status != StatusPaused {
		e.mu.Unlock()
		return false
	}
	out.status = StatusSending
	e.mu.Unlock()

	out.paused.Store(false)
	select {
	case out.resume <- struct{}{}:
	default:
	}

	e.emit(e.outgoingProgress(out, StatusSending, nil))
	return true
}

func (e *Engine) cancelOutgoing(out *outgoing) bool {
	e.mu.Lock()
	if out.status.Terminal() {
		e.mu.Unlock()
		return false
	}
	out.status = StatusCanceled
	e.mu.Unlock()

	out.markCancel()
	// Wake a paused loop so it can observe the cancel.
	select {
	case out.resume <- struct{}{}:
	default:
	}

	e.emit(e.outgoingProgress(out, StatusCanceled, ErrTransferCancelled))
	return true
}

// setOutgoingStatus transitions unless the transfer is already terminal.
func (e *Engine) setOutgoingStatus(out *outgoing, status Status, err error) bool {
	e.mu.Lock()
	if out.status.Terminal() {
		e.mu.Unlock()
		return false
	}
	out.status = status
	e.mu.Unlock()

	e.emit(e.outgoingProgress(out, status, err))
	return true
}

func (e *Engine) outgoingStatus(out *outgoing) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return out.status
}

func (e *Engine) outgoingProgress(out *outgoing, status Status, err error) Progress {
	return Progress{
		TransferID: out.id,
		Path:       out.path,
		Direction:  DirectionOutgoing,
		Status:     status,
		Bytes:      out.meter.count(),
		Total:      out.size,
		Rate:       out.meter.rate(),
		Err:        err,
	}
}

func (e *Engine) emit(p Progress) {
	select {
	case e.events <- p:
	default:
		log.Debug().Str("transfer", p.TransferID).Msg("event consumer lagging, dropping snapshot")
	}
}

func (e *Engine) sendControl(ctrl *Control) {
	data, err := EncodeControl(ctrl)
	if err != nil {
		log.Warn().Err(err).Str("type", ctrl.Type).Msg("encode control frame")
		return
	}
	if err := e.session.SendText(data); err != nil {
		log.Warn().Err(err).Str("type", ctrl.Type).Msg("send control frame")
	}
}

// SendManifest announces the upcoming batch so the receiver can render
// it before bytes flow.
func (e *Engine) SendManifest(files []FileMeta) error {
	return e.sendEnvelope(AuxTypeManifest, files)
}

// SendDeviceInfo identifies this client to the peer.
func (e *Engine) SendDeviceInfo(name, version string) error {
	return e.sendEnvelope(AuxTypeDeviceInfo, DeviceInfo{Name: name, Version: version})
}

func (e *Engine) sendEnvelope(msgType string, payload any) error {
	env, err := NewEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	frame, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}
	if err := e.session.SendBinary(frame); err != nil {
		return WrapError("send envelope", err, msgType)
	}
	return nil
}

// Close tears the engine down: active transfers error out, incoming
// sinks are aborted, partial files removed. Idempotent.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.closed)

		e.mu.Lock()
		var sinks []Sink
		var failed []*incoming
		for _, inc := range e.incoming {
			if inc.status.Terminal() {
				continue
			}
			inc.status = StatusError
			if inc.watchdog != nil {
				inc.watchdog.Stop()
			}
			sinks = append(sinks, inc.sink)
			failed = append(failed, inc)
		}
		var stopped []*outgoing
		for _, out := range e.outgoing {
			if out.status.Terminal() {
				continue
			}
			out.status = StatusError
			stopped = append(stopped, out)
		}
		e.mu.Unlock()

		for _, sink := range sinks {
			sink.Abort()
		}
		for _, inc := range failed {
			e.emit(e.incomingProgress(inc, StatusError, ErrSessionClosed))
		}
		for _, out := range stopped {
			out.markCancel()
			e.emit(e.outgoingProgress(out, StatusError, ErrSessionClosed))
		}
	})
}
