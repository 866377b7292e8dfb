package transfer

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	chunk := []byte("payload bytes")
	frame := EncodeFrame("transfer-1", chunk)

	id, got, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id != "transfer-1" {
		t.Errorf("id = %q, want transfer-1", id)
	}
	if !bytes.Equal(got, chunk) {
		t.Errorf("chunk = %q, want %q", got, chunk)
	}
}

func TestFrameEmptyChunk(t *testing.T) {
	frame := EncodeFrame("t", nil)
	id, chunk, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id != "t" || len(chunk) != 0 {
		t.Errorf("got id=%q len=%d", id, len(chunk))
	}
}

func TestDecodeFrameMalformed(t *testing.T) {
	cases := [][]byte{
		nil,
		{0, 0, 0},
		{0, 0, 0, 200, 0, 0, 0, 0}, // id length past the buffer
		{255, 255, 255, 255, 0, 0, 0, 0},
		append(EncodeFrame("x", []byte("data")), 'z'), // trailing garbage
	}
	for i, data := range cases {
		if _, _, err := DecodeFrame(data); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestEnvelopeFrameIsZeroID(t *testing.T) {
	env, err := NewEnvelope(AuxTypeDeviceInfo, DeviceInfo{Name: "cli", Version: "1.0"})
	if err != nil {
		t.Fatal(err)
	}
	frame, err := EncodeEnvelope(env)
	if err != nil {
		t.Fatal(err)
	}

	id, payload, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if id != "" {
		t.Fatalf("envelope frame carries id %q", id)
	}

	decoded, err := DecodeEnvelope(payload)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if decoded.Type != AuxTypeDeviceInfo {
		t.Errorf("type = %q", decoded.Type)
	}
	var info DeviceInfo
	if err := decoded.Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.Name != "cli" || info.Version != "1.0" {
		t.Errorf("info = %+v", info)
	}
}

func TestManifestEnvelope(t *testing.T) {
	files := []FileMeta{
		{Path: "a.txt", Size: 10, Type: "text/plain"},
		{Path: "dir/b.bin", Size: 1 << 20, Type: "application/octet-stream"},
	}
	env, err := NewEnvelope(AuxTypeManifest, files)
	if err != nil {
		t.Fatal(err)
	}

	var got []FileMeta
	if err := env.Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Path != "dir/b.bin" || got[1].Size != 1<<20 {
		t.Errorf("manifest = %+v", got)
	}
}

func TestControlRoundTrip(t *testing.T) {
	in := &Control{Type: ControlInit, TransferID: "t-9", Path: "photo.jpg", Size: 4096, Mime: "image/jpeg"}
	data, err := EncodeControl(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeControl(data)
	if err != nil {
		t.Fatal(err)
	}
	if *out != *in {
		t.Errorf("control = %+v, want %+v", out, in)
	}
}
