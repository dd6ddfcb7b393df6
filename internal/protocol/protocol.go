package protocol

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxPayloadSize bounds a single text message.
	DefaultMaxPayloadSize = 10 * 1024 * 1024 // 10MB
	// DefaultDisconnectWord ends the sender's session when received as a whole message.
	DefaultDisconnectWord = "chao"
	// DefaultIncomingLabel prefixes every frame printed by the interactive client.
	DefaultIncomingLabel = "Message received from server: "
)

var (
	ErrInvalidUTF8     = errors.New("payload is not valid UTF-8")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Validate checks that data is a well-formed text payload no larger than max bytes.
// A max of zero or less disables the size check.
func Validate(data []byte, max int64) error {
	if max > 0 && int64(len(data)) > max {
		return fmt.Errorf("%w: %d exceeds maximum %d bytes", ErrPayloadTooLarge, len(data), max)
	}
	if !utf8.Valid(data) {
		return ErrInvalidUTF8
	}
	return nil
}

// IsDisconnect reports whether data is the disconnect word, ignoring case.
// An empty word never matches.
func IsDisconnect(data []byte, word string) bool {
	if word == "" {
		return false
	}
	return strings.EqualFold(string(data), word)
}

// FormatIncoming renders a received frame the way the interactive client prints it.
func FormatIncoming(label string, data []byte) string {
	return label + string(data)
}
