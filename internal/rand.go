package internal

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// SafeRandom is used when no randomness source was configured.
var SafeRandom io.Reader = rand.Reader

func source(r io.Reader) io.Reader {
	if r == nil {
		return SafeRandom
	}
	return r
}

// NewChallengeKey generates the base64 encoded 16 byte nonce sent in the
// Sec-WebSocket-Key header.
func NewChallengeKey(r io.Reader) (string, error) {
	nonce := [16]byte{}

	_, err := io.ReadFull(source(r), nonce[:])
	if err != nil {
		return "", fmt.Errorf("failed to read challenge key nonce: [%w]", err)
	}

	return base64.StdEncoding.EncodeToString(nonce[:]), nil
}

// NewMaskingKey generates a fresh 32 bit masking key for a client frame.
func NewMaskingKey(r io.Reader) ([4]byte, error) {
	var key [4]byte

	_, err := io.ReadFull(source(r), key[:])
	if err != nil {
		return key, fmt.Errorf("failed to read masking key: [%w]", err)
	}

	return key, nil
}
