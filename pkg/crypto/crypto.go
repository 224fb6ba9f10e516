package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultPasswordCost is the bcrypt work factor used when no cost is supplied.
const DefaultPasswordCost = 12

// MinOTPLength is the smallest code length accepted by GenerateOTPCode.
const MinOTPLength = 6

// HashPassword returns a bcrypt hash of the supplied password using the given cost.
// A cost below bcrypt.MinCost falls back to DefaultPasswordCost.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost {
		cost = DefaultPasswordCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares the hashed password with the plaintext candidate.
func VerifyPassword(hashedPassword, password string) bool {
	if hashedPassword == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// GenerateOTPCode produces a one-time code of the requested length drawn from an
// uppercase hex alphabet, e.g. "A3F8C2". The bytes come from crypto/rand; lengths
// below MinOTPLength are rejected so the code stays unguessable within its window.
func GenerateOTPCode(length int) (string, error) {
	if length < MinOTPLength {
		return "", errors.New("crypto: otp length below minimum")
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	code := strings.ToUpper(hex.EncodeToString(buf))
	return code[:length], nil
}

// GenerateToken returns a random URL-safe token of the requested byte length.
func GenerateToken(length int) (string, error) {
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// HashSHA256Hex returns the hex-encoded SHA-256 digest of the value. OTP codes and
// reset tokens are persisted only in this form, never as plaintext.
func HashSHA256Hex(value string) string {
	digest := sha256.Sum256([]byte(value))
	return hex.EncodeToString(digest[:])
}
