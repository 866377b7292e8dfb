package transfer

import (
	"errors"
	"fmt"
)

var (
	ErrSessionClosed     = errors.New("session closed")
	ErrChannelNotOpen    = errors.New("channel not open")
	ErrTransferCancelled = errors.New("transfer cancelled")
	ErrBufferTimeout     = errors.New("buffer drain timeout")
	ErrUnknownTransfer   = errors.New("unknown transfer")
	ErrDuplicatePath     = errors.New("path already queued")
	ErrInvalidFile       = errors.New("invalid file")
	ErrIdleTimeout       = errors.New("transfer idle timeout")
	ErrSizeMismatch      = errors.New("received more bytes than announced")
	ErrShortTransfer     = errors.New("transfer ended before all bytes arrived")
	ErrUnsafePath        = errors.New("unsafe destination path")
	ErrQueueFull         = errors.New("send queue full")
	ErrRemoteFailure     = errors.New("remote side reported failure")
)

type TransferError struct {
	Op      string
	File    string
	Err     error
	Details string
}

func (e *TransferError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *TransferError {
	return &TransferError{Op: op, Err: err}
}

func NewFileError(op, file string, err error) *TransferError {
	return &TransferError{Op: op, File: file, Err: err}
}

func WrapError(op string, err error, details string) *TransferError {
	return &TransferError{Op: op, Err: err, Details: details}
}
