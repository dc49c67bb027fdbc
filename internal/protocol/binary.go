package protocol

import (
	"encoding/binary"
	"fmt"
)

// Binary response framing: a 4-byte little-endian uint32 request id followed
// by the opaque payload bytes. Sent only in place of a commandResponse
// envelope, never for errors or events. Because the header is 32 bits,
// request ids are allocated from a uint32 counter.

// EncodeBinaryResponse builds a binary response frame for id.
func EncodeBinaryResponse(id uint32, payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out[:4], id)
	copy(out[4:], payload)
	return out
}

// DecodeBinaryResponse splits a binary response frame into its request id
// and payload.
func DecodeBinaryResponse(frame []byte) (uint32, []byte, error) {
	if len(frame) < 4 {
		return 0, nil, fmt.Errorf("binary response frame too short: %d bytes", len(frame))
	}
	return binary.LittleEndian.Uint32(frame[:4]), frame[4:], nil
}
