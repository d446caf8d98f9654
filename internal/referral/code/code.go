// Package code mints referral codes. Codes are short, uppercase alphanumeric
// tokens from a cryptographically secure source; predictability would let an
// attacker pre-register codes. Global uniqueness is enforced at insert time by
// the user store, not here.
package code

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Charset is the allowed referral code alphabet.
const Charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultLength is the standard referral code length.
const DefaultLength = 8

// Generate returns a random code of the given length drawn from Charset.
// A non-positive length falls back to DefaultLength.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}
	max := big.NewInt(int64(len(Charset)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		buf[i] = Charset[n.Int64()]
	}
	return string(buf), nil
}
