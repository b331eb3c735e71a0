package probe

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PayloadSize is the length of every probe and reply payload
const PayloadSize = 8

// ErrPayloadLength is returned when a reply is not exactly PayloadSize bytes
var ErrPayloadLength = errors.New("invalid probe payload length")

// EncodeSequence builds the probe payload: the sequence number as a native
// endian uint64, echoed verbatim by the remote.
func EncodeSequence(seq uint64) []byte {
	buf := make([]byte, PayloadSize)
	binary.NativeEndian.PutUint64(buf, seq)
	return buf
}

// DecodeSequence extracts the sequence number from a reply payload
func DecodeSequence(payload []byte) (uint64, error) {
	if len(payload) != PayloadSize {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrPayloadLength, len(payload), PayloadSize)
	}
	return binary.NativeEndian.Uint64(payload), nil
}
