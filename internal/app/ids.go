package app

import (
	"crypto/rand"

	"github.com/google/uuid"
)

func newID() string {
	return uuid.NewString()
}

const labelAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
const labelLength = 6

// newSlotLabel generates a short human-readable slot label. Uniqueness is
// enforced by the store, not here.
func newSlotLabel() string {
	b := make([]byte, labelLength)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	for i := range b {
		b[i] = labelAlphabet[int(b[i])%len(labelAlphabet)]
	}
	return string(b)
}
