package transfer

import (
	"errors"

	"github.com/rs/zerolog/log"
)

// runQueue is the single send worker. One transfer at a time keeps the
// channel's payload stream serialized; queued transfers wait their turn.
func (e *Engine) runQueue() {
	for {
		select {
		case <-e.closed:
			return
		case out := <-e.sendQ:
			e.process(out)
		}
	}
}

// process drives one transfer to a terminal state, retrying failed
// attempts from the start of the file. Cancellation is never retried.
func (e *Engine) process(out *outgoing) {
	for attempt := 0; ; attempt++ {
		select {
		case <-e.closed:
			return
		case <-out.cancel:
			return
		default:
		}
		if e.outgoingStatus(out).Terminal() {
			return
		}

		err := e.sendOne(out)
		if err == nil {
			return
		}
		if errors.Is(err, ErrTransferCancelled) || errors.Is(err, ErrSessionClosed) {
			return
		}

		if attempt >= e.retries {
			if e.setOutgoingStatus(out, StatusError, err) {
				e.sendControl(&Control{
					Type:       ControlError,
					TransferID: out.id,
					Reason:     err.Error(),
				})
			}
			return
		}

		log.Warn().Err(err).
			Str("transfer", out.id).
			Str("path", out.path).
			Int("attempt", attempt+1).
			Msg("send attempt failed, retrying")
		out.meter.reset()
	}
}
