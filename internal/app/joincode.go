package app

import (
	"crypto/rand"
	"math/big"
	"strings"

	"battle-room-service/internal/domain"
)

const (
	// joinCodeAlphabet leaves out characters that are easy to misread (0/O, 1/I).
	joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	joinCodeLength   = 6
)

// NewJoinCode samples a join code from crypto/rand.
func NewJoinCode() (string, error) {
	code := make([]byte, joinCodeLength)
	size := big.NewInt(int64(len(joinCodeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		code[i] = joinCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// NormalizeJoinCode upper-cases user input and rejects codes that could not have been issued.
func NormalizeJoinCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != joinCodeLength {
		return "", domain.ErrInvalidJoinCode
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(joinCodeAlphabet, code[i]) < 0 {
			return "", domain.ErrInvalidJoinCode
		}
	}
	return code, nil
}
