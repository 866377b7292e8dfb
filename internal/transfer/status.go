package transfer

// Direction tells which side of the session owns a transfer.
type Direction int

const (
	DirectionOutgoing Direction = iota
	DirectionIncoming
)

func (d Direction) String() string {
	if d == DirectionIncoming {
		return "incoming"
	}
	return "outgoing"
}

// Status is the lifecycle state of a single transfer.
type Status int

const (
	StatusQueued Status = iota
	StatusSending
	StatusReceiving
	StatusPaused
	StatusDone
	StatusError
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusSending:
		return "sending"
	case StatusReceiving:
		return "receiving"
	case StatusPaused:
		return "paused"
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	case StatusCanceled:
		return "canceled"
	}
	return "unknown"
}

// Terminal reports whether the transfer can never change state again.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusCanceled
}
