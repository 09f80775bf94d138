package security

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
)

const OneTimeCodeDigits = 6

var oneTimeCodeSpace = big.NewInt(1_000_000)

// CodeGenerator produces enrollment codes. Tests substitute a fixed generator.
type CodeGenerator func() (string, error)

// NewOneTimeCode returns a uniformly random six digit code, zero padded.
func NewOneTimeCode() (string, error) {
	n, err := rand.Int(rand.Reader, oneTimeCodeSpace)
	if err != nil {
		return "", fmt.Errorf("generate one-time code: %w", err)
	}
	return fmt.Sprintf("%0*d", OneTimeCodeDigits, n.Int64()), nil
}

func FixedCode(code string) CodeGenerator {
	return func() (string, error) { return code, nil }
}

// CodesEqual compares a submitted code to the stored one in constant time.
// Surrounding whitespace on either side is ignored.
func CodesEqual(stored, submitted string) bool {
	a := strings.TrimSpace(stored)
	b := strings.TrimSpace(submitted)
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
