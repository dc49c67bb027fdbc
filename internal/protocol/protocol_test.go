package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// ---------------------------------------------------------------------------
// Frame round-trip tests
// ---------------------------------------------------------------------------

func TestFrameRoundTripText(t *testing.T) {
	original := &Frame{Type: FrameText, Payload: []byte(`{"id":1,"domain":"fs","command":"stat"}`)}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, original); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	decoded, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if decoded == nil {
		t.Fatal("ReadFrame returned nil frame")
	}
	if decoded.Type != FrameText {
		t.Errorf("Type = 0x%02x, want 0x%02x", decoded.Type, FrameText)
	}
	if !bytes.Equal(decoded.Payload, original.Payload) {
		t.Errorf("Payload = %q, want %q", decoded.Payload, original.Payload)
	}
}

func TestFrameRoundTripBinary(t *testing.T) {
	original := &Frame{Type: FrameBinary, Payload: []byte{0x2a, 0, 0, 0, 1, 2, 3}}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, original); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	decoded, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if decoded == nil {
		t.Fatal("ReadFrame returned nil frame")
	}
	if decoded.Type != FrameBinary {
		t.Errorf("Type = 0x%02x, want 0x%02x", decoded.Type, FrameBinary)
	}
	if !bytes.Equal(decoded.Payload, original.Payload) {
		t.Errorf("Payload = %v, want %v", decoded.Payload, original.Payload)
	}
}

func TestFrameCleanEOF(t *testing.T) {
	f, err := ReadFrame(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("ReadFrame on empty reader: %v", err)
	}
	if f != nil {
		t.Errorf("expected nil frame on clean EOF, got %+v", f)
	}
}

func TestFrameUnknownType(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0x7f)
	buf.Write([]byte{0, 0, 0, 0})

	if _, err := ReadFrame(&buf); err == nil {
		t.Error("expected error for unknown frame type")
	}
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(FrameText)
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], MaxPayload+1)
	buf.Write(length[:])

	if _, err := ReadFrame(&buf); err == nil {
		t.Error("expected error for oversized payload")
	}
}

// ---------------------------------------------------------------------------
// Binary response framing
// ---------------------------------------------------------------------------

func TestBinaryResponseLayout(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	frame := EncodeBinaryResponse(42, payload)

	if got := binary.LittleEndian.Uint32(frame[:4]); got != 42 {
		t.Errorf("id header = %d, want 42", got)
	}
	if !bytes.Equal(frame[4:], payload) {
		t.Errorf("payload = %v, want %v", frame[4:], payload)
	}
}

func TestBinaryResponseRoundTrip(t *testing.T) {
	frame := EncodeBinaryResponse(7, []byte{0xb0, 0xb1, 0xb2, 0xb3})

	want := []byte{0x07, 0x00, 0x00, 0x00, 0xb0, 0xb1, 0xb2, 0xb3}
	if !bytes.Equal(frame, want) {
		t.Fatalf("frame = % x, want % x", frame, want)
	}

	id, payload, err := DecodeBinaryResponse(frame)
	if err != nil {
		t.Fatalf("DecodeBinaryResponse: %v", err)
	}
	if id != 7 {
		t.Errorf("id = %d, want 7", id)
	}
	if !bytes.Equal(payload, []byte{0xb0, 0xb1, 0xb2, 0xb3}) {
		t.Errorf("payload = % x", payload)
	}
}

func TestBinaryResponseEmptyPayload(t *testing.T) {
	id, payload, err := DecodeBinaryResponse(EncodeBinaryResponse(9, nil))
	if err != nil {
		t.Fatalf("DecodeBinaryResponse: %v", err)
	}
	if id != 9 {
		t.Errorf("id = %d, want 9", id)
	}
	if len(payload) != 0 {
		t.Errorf("payload length = %d, want 0", len(payload))
	}
}

func TestBinaryResponseTooShort(t *testing.T) {
	if _, _, err := DecodeBinaryResponse([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated binary frame")
	}
}
