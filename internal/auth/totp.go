package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// ErrInvalidTOTPSecret is returned when the configured secret is not valid base32
var ErrInvalidTOTPSecret = errors.New("invalid TOTP secret")

// TOTPGenerator produces second factor codes for one account.
// The secret uses the defaults of authenticator apps: SHA1, 6 digits, 30s.
type TOTPGenerator struct {
	secret string
	now    func() time.Time
}

// NewTOTPGenerator validates secret and returns a generator for it
func NewTOTPGenerator(secret string) (*TOTPGenerator, error) {
	secret = normalizeSecret(secret)
	if secret == "" {
		return nil, ErrInvalidTOTPSecret
	}

	g := &TOTPGenerator{secret: secret, now: time.Now}
	if _, err := g.Code(); err != nil {
		return nil, err
	}
	return g, nil
}

// Code returns the code valid at the current time
func (g *TOTPGenerator) Code() (string, error) {
	code, err := totp.GenerateCodeCustom(g.secret, g.now(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTOTPSecret, err)
	}
	return code, nil
}

// normalizeSecret strips the spacing and casing authenticator exports use
func normalizeSecret(secret string) string {
	secret = strings.ReplaceAll(secret, " ", "")
	return strings.ToUpper(strings.TrimSpace(secret))
}
