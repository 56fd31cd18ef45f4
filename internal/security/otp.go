package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// OTPValidity is how long an emailed one-time code stays usable.
const OTPValidity = 10 * time.Minute

const otpDigits = 6

// GenerateOTP returns a random numeric one-time code.
func GenerateOTP() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, errRand := rand.Int(rand.Reader, max)
	if errRand != nil {
		return "", fmt.Errorf("security: generate otp: %w", errRand)
	}
	return fmt.Sprintf("%0*d", otpDigits, n), nil
}
