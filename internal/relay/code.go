package relay

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/rs/zerolog/log"
)

// Flight codes are short uppercase tokens, e.g. "AB12CD". Lookups
// uppercase the input so codes are case-insensitive.
const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

// NewCode generates a random flight code. taken reports whether a code is
// already registered; generation retries until a free code is found.
func NewCode(taken func(string) bool) string {
	for {
		code := randomCode()
		if !taken(code) {
			return code
		}
	}
}

// NormalizeCode maps user input onto the canonical code form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func randomCode() string {
	var b strings.Builder
	b.Grow(codeLength)
	for range codeLength {
		b.WriteByte(codeAlphabet[randomIndex(len(codeAlphabet))])
	}
	return b.String()
}

func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		log.Panic().Err(err).Msg("failed to generate random index")
	}
	return int(n.Int64())
}
