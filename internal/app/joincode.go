package app

import (
	"crypto/rand"
	"fmt"
)

// joinCodeLength is the number of characters in a join code. 6 characters
// over a 32-symbol alphabet is comfortably unique for concurrently active
// sessions while staying easy to type.
const joinCodeLength = 6

// joinCodeAlphabet omits 0/O/1/I to avoid look-alike characters.
const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newJoinCode() (string, error) {
	buf := make([]byte, joinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate join code: %w", err)
	}
	for i, b := range buf {
		buf[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(buf), nil
}
