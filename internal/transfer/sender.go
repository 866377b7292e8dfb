package transfer

import (
	"io"
	"time"
)

const (
	// How long a full buffer may sit without draining at all before
	// the attempt is declared stuck.
	sendStallTimeout = 30 * time.Second
	// Upper bound on waiting for the final bytes to leave the buffer.
	drainTimeout = 60 * time.Second

	drainPollInterval = 50 * time.Millisecond
)

// sendOne streams one file over the session: init control, framed
// chunks under the backpressure window, then a done control once the
// buffer drains.
func (e *Engine) sendOne(out *outgoing) error {
	if !e.setOutgoingStatus(out, StatusSending, nil) {
		return ErrTransferCancelled
	}

	e.sendControl(&Control{
		Type:       ControlInit,
		TransferID: out.id,
		Path:       out.path,
		Size:       out.size,
		Mime:       out.mime,
	})

	reader, err := out.open()
	if err != nil {
		return NewFileError("open", out.path, err)
	}
	defer reader.Close()

	buf := make([]byte, e.chunkSize)
	for {
		if err := e.gates(out); err != nil {
			return err
		}

		n, rerr := reader.Read(buf)
		if n > 0 {
			frame := EncodeFrame(out.id, buf[:n])
			if serr := e.session.SendBinary(frame); serr != nil {
				return NewFileError("send chunk", out.path, serr)
			}
			out.meter.add(n)
			e.totalSent.Add(int64(n))
			if out.meter.shouldEmit() && e.outgoingStatus(out) == StatusSending {
				e.emit(e.outgoingProgress(out, StatusSending, nil))
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				if derr := e.waitForDrain(out); derr != nil {
					return derr
				}
				e.sendControl(&Control{Type: ControlDone, TransferID: out.id})
				e.setOutgoingStatus(out, StatusDone, nil)
				return nil
			}
			return NewFileError("read", out.path, rerr)
		}
	}
}

// gates blocks the send loop while anything forbids the next chunk.
// Order matters: cancel wins over pause, pause wins over backpressure.
func (e *Engine) gates(out *outgoing) error {
	select {
	case <-out.cancel:
		return ErrTransferCancelled
	case <-e.closed:
		return ErrSessionClosed
	default:
	}

	for out.paused.Load() {
		select {
		case <-out.resume:
		case <-out.cancel:
			return ErrTransferCancelled
		case <-e.closed:
			return ErrSessionClosed
		}
	}

	for e.session.BufferedAmount() >= e.threshold {
		before := e.session.BufferedAmount()
		select {
		case <-e.wake:
		case <-out.cancel:
			return ErrTransferCancelled
		case <-e.closed:
			return ErrSessionClosed
		case <-time.After(sendStallTimeout):
			if e.session.BufferedAmount() >= before {
				return WrapError("send", ErrBufferTimeout, "buffer not draining")
			}
		}
	}
	return nil
}

// waitForDrain lets the buffered tail flush before done is declared. A
// drain that never finishes is not fatal on its own; cancellation and
// shutdown still are.
func (e *Engine) waitForDrain(out *outgoing) error {
	deadline := time.Now().Add(drainTimeout)
	for e.session.BufferedAmount() > 0 && time.Now().Before(deadline) {
		select {
		case <-out.cancel:
			return ErrTransferCancelled
		case <-e.closed:
			return ErrSessionClosed
		case <-time.After(drainPollInterval):
		}
	}
	return nil
}
