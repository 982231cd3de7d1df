package notes

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	// DefaultShareTokenLength is the number of characters in a generated share token.
	DefaultShareTokenLength = 32
	shareTokenAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// bytes at or above the ceiling are discarded so every character is equally likely
	shareTokenByteCeiling = 256 - 256%len(shareTokenAlphabet)
)

var errInvalidTokenLength = errors.New("share token length must be positive")

// IDProvider issues identifiers for new records.
type IDProvider interface {
	NewID() (string, error)
}

// TokenGenerator issues candidate share tokens. Uniqueness is enforced by the caller.
type TokenGenerator interface {
	NewToken() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

type randomTokenGenerator struct {
	length int
}

// NewRandomTokenGenerator returns a generator of alphanumeric tokens drawn from crypto/rand.
func NewRandomTokenGenerator(length int) (TokenGenerator, error) {
	if length <= 0 {
		return nil, errInvalidTokenLength
	}
	return &randomTokenGenerator{length: length}, nil
}

func (g *randomTokenGenerator) NewToken() (string, error) {
	token := make([]byte, 0, g.length)
	buffer := make([]byte, g.length*2)
	for len(token) < g.length {
		if _, err := rand.Read(buffer); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, value := range buffer {
			if int(value) >= shareTokenByteCeiling {
				continue
			}
			token = append(token, shareTokenAlphabet[int(value)%len(shareTokenAlphabet)])
			if len(token) == g.length {
				break
			}
		}
	}
	return string(token), nil
}
