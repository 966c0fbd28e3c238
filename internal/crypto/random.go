package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// RandBytes fills the provided slice with cryptographically secure random
// bytes.
func RandBytes(out []byte) ([]byte, error) {
	if len(out) == 0 {
		return out, fmt.Errorf("output slice is empty")
	}
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("rand read: %w", err)
	}
	return out, nil
}

// NewSessionID generates an 8-digit numeric session identifier, matching the
// format connected clients receive from the transport.
func NewSessionID() string {
	n, err := rand.Int(rand.Reader, big.NewInt(90000000))
	if err != nil {
		// crypto/rand never fails on supported platforms; keep the signature
		// allocation-free for callers.
		panic(fmt.Sprintf("rand int: %v", err))
	}
	return fmt.Sprintf("%d", 10000000+n.Int64())
}

// RandIntn returns a uniform random int in [0, n).
func RandIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Sprintf("rand int: %v", err))
	}
	return int(v.Int64())
}
