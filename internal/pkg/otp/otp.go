package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Length is the number of digits in a one-time code.
const Length = 6

var upperBound = big.NewInt(1_000_000)

// NewCode returns a uniformly random zero-padded 6-digit code.
func NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, upperBound)
	if err != nil {
		return "", fmt.Errorf("generate one-time code: %w", err)
	}
	return fmt.Sprintf("%0*d", Length, n.Int64()), nil
}
