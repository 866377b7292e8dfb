package transfer

import (
	"encoding/binary"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Control frame types, sent as text messages so they never interleave
// with payload bytes.
const (
	ControlInit   = "init"
	ControlDone   = "done"
	ControlPause  = "pause"
	ControlResume = "resume"
	ControlCancel = "cancel"
	ControlError  = "error"
)

// Control is a transfer control frame. Pause, resume, and cancel work in
// both directions: the id decides which side's transfer they act on.
type Control struct {
	Type       string `json:"type"`
	TransferID string `json:"transferId"`
	Path       string `json:"path,omitempty"`
	Size       int64  `json:"size,omitempty"`
	Mime       string `json:"mime,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func EncodeControl(c *Control) ([]byte, error) {
	return json.Marshal(c)
}

func DecodeControl(data []byte) (*Control, error) {
	var c Control
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, NewError("parse control", err)
	}
	return &c, nil
}

// Binary frames are self-framed so ordered delivery alone is enough to
// demultiplex:
//
//	[u32 idLen][transferId][u32 chunkLen][chunk]
//
// idLen zero marks an auxiliary envelope instead of a payload chunk;
// the chunk part then holds a msgpack Envelope.
const frameHeaderSize = 8

// maxIDLength bounds the id field so a corrupt length prefix cannot
// force a huge allocation.
const maxIDLength = 128

var ErrMalformedFrame = NewError("decode frame", ErrInvalidFile)

// FrameOverhead is the per-message byte cost of the framing for a given
// transfer id. Chunk sizing subtracts it from the session's message
// ceiling.
func FrameOverhead(transferID string) int {
	return frameHeaderSize + len(transferID)
}

func EncodeFrame(transferID string, chunk []byte) []byte {
	frame := make([]byte, frameHeaderSize+len(transferID)+len(chunk))
	binary.BigEndian.PutUint32(frame, uint32(len(transferID)))
	n := 4 + copy(frame[4:], transferID)
	binary.BigEndian.PutUint32(frame[n:], uint32(len(chunk)))
	copy(frame[n+4:], chunk)
	return frame
}

// DecodeFrame splits a binary frame. An empty id with a nil error means
// the chunk holds an auxiliary envelope.
func DecodeFrame(data []byte) (string, []byte, error) {
	if len(data) < frameHeaderSize {
		return "", nil, ErrMalformedFrame
	}
	idLen := binary.BigEndian.Uint32(data)
	if idLen > maxIDLength || len(data) < int(4+idLen+4) {
		return "", nil, ErrMalformedFrame
	}
	id := string(data[4 : 4+idLen])
	chunkLen := binary.BigEndian.Uint32(data[4+idLen:])
	chunk := data[8+idLen:]
	if int(chunkLen) != len(chunk) {
		return "", nil, ErrMalformedFrame
	}
	return id, chunk, nil
}

// Auxiliary envelope types carried beside the transfer stream.
const (
	AuxTypeManifest   = "files_metadata"
	AuxTypeDeviceInfo = "device_info"
)

// Envelope is an out-of-band message on the data channel: the file
// manifest before a batch, or device info after connect.
type Envelope struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`
}

// FileMeta describes one manifest entry.
type FileMeta struct {
	Path string `msgpack:"path"`
	Size int64  `msgpack:"size"`
	Type string `msgpack:"type"`
}

// DeviceInfo identifies the peer's client.
type DeviceInfo struct {
	Name    string `msgpack:"name"`
	Version string `msgpack:"version"`
}

func NewEnvelope(msgType string, payload any) (*Envelope, error) {
	if payload == nil {
		return &Envelope{Type: msgType}, nil
	}
	raw, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, NewError("marshal envelope", err)
	}
	return &Envelope{Type: msgType, Payload: raw}, nil
}

// EncodeEnvelope wraps an envelope in a zero-id binary frame.
func EncodeEnvelope(env *Envelope) ([]byte, error) {
	data, err := msgpack.Marshal(env)
	if err != nil {
		return nil, NewError("marshal envelope", err)
	}
	return EncodeFrame("", data), nil
}

func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, NewError("parse envelope", err)
	}
	return &env, nil
}

func (e *Envelope) Decode(v any) error {
	if err := msgpack.Unmarshal(e.Payload, v); err != nil {
		return NewError("decode envelope payload", err)
	}
	return nil
}
