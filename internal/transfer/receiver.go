package transfer

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// incoming is the receiver-side record of one transfer. All fields are
// guarded by the engine mutex except the meter, which has its own
// synchronization.
type incoming struct {
	id    string
	path  string
	size  int64
	mime  string
	sink  Sink
	meter *progressMeter

	status   Status
	paused   bool
	watchdog *time.Timer
}

// handleInit opens a sink for an announced transfer. A second init for
// an id that is still active means the sender restarted the attempt, so
// the old sink is discarded and a fresh one takes over.
func (e *Engine) handleInit(ctrl *Control) {
	if ctrl.TransferID == "" || ctrl.Size < 0 {
		log.Warn().Msg("dropping invalid init control")
		return
	}

	e.mu.Lock()
	var oldSink Sink
	if old, ok := e.incoming[ctrl.TransferID]; ok && !old.status.Terminal() {
		old.status = StatusError
		if old.watchdog != nil {
			old.watchdog.Stop()
		}
		oldSink = old.sink
	}
	e.mu.Unlock()
	if oldSink != nil {
		log.Info().Str("transfer", ctrl.TransferID).Msg("re-init for active transfer, restarting")
		oldSink.Abort()
	}

	dest, err := safeJoin(e.outputDir, ctrl.Path)
	if err != nil {
		log.Warn().Err(err).Str("path", ctrl.Path).Msg("rejecting transfer")
		e.sendControl(&Control{Type: ControlError, TransferID: ctrl.TransferID, Reason: err.Error()})
		return
	}
	dest = uniquePath(dest)

	sink, err := newSink(dest, ctrl.Size, e.memoryLimit, e.batchSize)
	if err != nil {
		log.Warn().Err(err).Str("dest", dest).Msg("cannot open sink")
		e.sendControl(&Control{Type: ControlError, TransferID: ctrl.TransferID, Reason: err.Error()})
		return
	}

	inc := &incoming{
		id:     ctrl.TransferID,
		path:   ctrl.Path,
		size:   ctrl.Size,
		mime:   ctrl.Mime,
		sink:   sink,
		meter:  newProgressMeter(ctrl.Size),
		status: StatusReceiving,
	}

	if ctrl.Size == 0 {
		ferr := sink.Finalize()
		status := StatusDone
		if ferr != nil {
			status = StatusError
		}
		inc.status = status
		e.mu.Lock()
		e.incoming[inc.id] = inc
		e.mu.Unlock()
		e.emit(e.incomingProgress(inc, status, ferr))
		return
	}

	inc.watchdog = time.AfterFunc(e.idleTimeout, func() {
		e.timeoutIncoming(ctrl.TransferID)
	})

	e.mu.Lock()
	e.incoming[inc.id] = inc
	e.mu.Unlock()
	e.emit(e.incomingProgress(inc, StatusReceiving, nil))
}

// handleChunk appends payload bytes to the right sink. Chunks for
// unknown or finished transfers drop silently; ordered delivery makes
// that safe for stragglers after a cancel.
func (e *Engine) handleChunk(id string, chunk []byte) {
	e.mu.Lock()
	inc, ok := e.incoming[id]
	if !ok || inc.status.Terminal() {
		e.mu.Unlock()
		log.Debug().Str("transfer", id).Msg("dropping chunk for unknown transfer")
		return
	}
	sink := inc.sink
	if inc.watchdog != nil && !inc.paused {
		inc.watchdog.Reset(e.idleTimeout)
	}
	e.mu.Unlock()

	if inc.meter.count()+int64(len(chunk)) > inc.size {
		e.failIncoming(inc, NewFileError("receive", inc.path, ErrSizeMismatch))
		return
	}

	if _, err := sink.Write(chunk); err != nil {
		e.failIncoming(inc, err)
		return
	}

	e.totalReceived.Add(int64(len(chunk)))
	total := inc.meter.add(len(chunk))
	if total == inc.size {
		e.mu.Lock()
		if inc.status.Terminal() {
			e.mu.Unlock()
			return
		}
		if inc.watchdog != nil {
			inc.watchdog.Stop()
		}
		e.mu.Unlock()

		if err := sink.Finalize(); err != nil {
			e.failIncoming(inc, err)
			return
		}
		e.mu.Lock()
		inc.status = StatusDone
		e.mu.Unlock()
		e.emit(e.incomingProgress(inc, StatusDone, nil))
		return
	}

	if inc.meter.shouldEmit() {
		e.emit(e.incomingProgress(inc, StatusReceiving, nil))
	}
}

// handleDone confirms completion. Arriving while bytes are still
// outstanding means the sender gave up early, which fails the transfer
// rather than leaving a silent truncation.
func (e *Engine) handleDone(ctrl *Control) {
	e.mu.Lock()
	inc, ok := e.incoming[ctrl.TransferID]
	if !ok || inc.status.Terminal() {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	err := WrapError("receive", ErrShortTransfer,
		fmt.Sprintf("%d of %d bytes", inc.meter.count(), inc.size))
	e.failIncoming(inc, err)
}

func (e *Engine) timeoutIncoming(id string) {
	e.mu.Lock()
	inc, ok := e.incoming[id]
	if !ok {
		e.mu.Unlock()
		return
	}
	sink := e.failIncomingLocked(inc)
	e.mu.Unlock()

	if sink != nil {
		log.Warn().Str("transfer", id).Str("path", inc.path).Msg("transfer idle timeout")
		sink.Abort()
		e.emit(e.incomingProgress(inc, StatusError, ErrIdleTimeout))
		e.sendControl(&Control{Type: ControlError, TransferID: id, Reason: ErrIdleTimeout.Error()})
	}
}

func (e *Engine) failIncoming(inc *incoming, err error) {
	e.mu.Lock()
	sink := e.failIncomingLocked(inc)
	e.mu.Unlock()

	if sink != nil {
		sink.Abort()
		e.emit(e.incomingProgress(inc, StatusError, err))
		e.sendControl(&Control{Type: ControlError, TransferID: inc.id, Reason: err.Error()})
	}
}

// failIncomingLocked transitions to error and hands back the sink for
// aborting outside the lock. Nil when the transfer was already terminal.
func (e *Engine) failIncomingLocked(inc *incoming) Sink {
	if inc.status.Terminal() {
		return nil
	}
	inc.status = StatusError
	if inc.watchdog != nil {
		inc.watchdog.Stop()
	}
	return inc.sink
}

func (e *Engine) cancelIncomingLocked(inc *incoming) Sink {
	if inc.status.Terminal() {
		return nil
	}
	inc.status = StatusCanceled
	if inc.watchdog != nil {
		inc.watchdog.Stop()
	}
	return inc.sink
}

func (e *Engine) pauseIncomingLocked(inc *incoming) bool {
	if inc.status != StatusReceiving {
		return false
	}
	inc.status = StatusPaused
	inc.paused = true
	if inc.watchdog != nil {
		inc.watchdog.Stop()
	}
	e.emit(e.incomingProgress(inc, StatusPaused, nil))
	return true
}

func (e *Engine) resumeIncomingLocked(inc *incoming) bool {
	if inc.status != StatusPaused {
		return false
	}
	inc.status = StatusReceiving
	inc.paused = false
	if inc.watchdog != nil {
		inc.watchdog.Reset(e.idleTimeout)
	}
	e.emit(e.incomingProgress(inc, StatusReceiving, nil))
	return true
}

func (e *Engine) incomingProgress(inc *incoming, status Status, err error) Progress {
	return Progress{
		TransferID: inc.id,
		Path:       inc.path,
		Dest:       inc.sink.Dest(),
		Direction:  DirectionIncoming,
		Status:     status,
		Bytes:      inc.meter.count(),
		Total:      inc.size,
		Rate:       inc.meter.rate(),
		Err:        err,
	}
}
