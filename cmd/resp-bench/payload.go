package main

import (
	"encoding/binary"
	"math/rand/v2"

	"github.com/zeebo/xxh3"
)

const checksumSize = 8

// mismatchError reports a value that does not match what was written.
// The server is healthy, the connection stays in use.
type mismatchError struct {
	message string
}

func (e *mismatchError) Error() string {
	return e.message
}

func (e *mismatchError) ShouldCloseConnection() bool {
	return false
}

func newPayload(r *rand.Rand, size int) []byte {
	payload := make([]byte, size)
	for i := 0; i < size; i += 8 {
		var word [8]byte
		binary.LittleEndian.PutUint64(word[:], r.Uint64())
		copy(payload[i:], word[:])
	}
	return payload
}

// sealPayload appends the xxh3 checksum of the payload.
func sealPayload(payload []byte) []byte {
	return binary.BigEndian.AppendUint64(payload, xxh3.Hash(payload))
}

// verifyPayload checks that a value read back still carries a valid checksum.
func verifyPayload(sealed []byte) error {
	if len(sealed) < checksumSize {
		return &mismatchError{message: "Value too short to carry a checksum"}
	}
	body := sealed[:len(sealed)-checksumSize]
	if binary.BigEndian.Uint64(sealed[len(body):]) != xxh3.Hash(body) {
		return &mismatchError{message: "Value checksum mismatch"}
	}
	return nil
}
