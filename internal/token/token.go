// Package token mints the short session tokens operators type back from a
// phone. Tokens are 8 symbols drawn from [A-Z0-9]: long enough that collision
// with a live session is vanishingly rare, short enough to retype from a
// notification.
package token

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
)

// Alphabet is the token symbol set. Upper-case only: phone keyboards
// capitalize by default and lookups are case-insensitive anyway.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of symbols in a token.
const Length = 8

// MaxMintAttempts bounds collision retries before giving up.
const MaxMintAttempts = 8

// ErrTokenSpaceExhausted is returned when minting collides with a live token
// MaxMintAttempts times in a row. With 36^8 possible tokens this indicates a
// corrupted store rather than genuine exhaustion.
var ErrTokenSpaceExhausted = errors.New("token space exhausted")

// Source yields random bytes. The default is crypto/rand; tests substitute a
// deterministic reader.
type Source func(b []byte) error

// CryptoSource reads from crypto/rand.
func CryptoSource(b []byte) error {
	_, err := rand.Read(b)
	return err
}

// New mints one token from the given randomness source.
func New(src Source) (string, error) {
	b := make([]byte, Length)
	if err := src(b); err != nil {
		return "", fmt.Errorf("reading randomness: %w", err)
	}
	out := make([]byte, Length)
	for i, v := range b {
		out[i] = Alphabet[int(v)%len(Alphabet)]
	}
	return string(out), nil
}

// Mint mints tokens until inUse reports one free, up to MaxMintAttempts.
func Mint(src Source, inUse func(token string) bool) (string, error) {
	for attempt := 0; attempt < MaxMintAttempts; attempt++ {
		tok, err := New(src)
		if err != nil {
			return "", err
		}
		if !inUse(tok) {
			return tok, nil
		}
	}
	return "", ErrTokenSpaceExhausted
}

// Normalize upper-cases a token for case-insensitive comparison.
func Normalize(tok string) string {
	return strings.ToUpper(strings.TrimSpace(tok))
}

// Valid reports whether tok is a well-formed token after normalization.
func Valid(tok string) bool {
	tok = Normalize(tok)
	if len(tok) != Length {
		return false
	}
	for _, r := range tok {
		if !strings.ContainsRune(Alphabet, r) {
			return false
		}
	}
	return true
}
