package store

import (
	"crypto/rand"
	"errors"
	"fmt"

	"photo-guess/internal/domain"
)

const maxCodeAttempts = 16

var errCodeSpaceExhausted = errors.New("could not find an unused room code")

func newRoomCode() (string, error) {
	alphabet := domain.CodeAlphabet()
	buf := make([]byte, domain.CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("room code: %w", err)
	}
	for i := range buf {
		buf[i] = alphabet[int(buf[i])%len(alphabet)]
	}
	return string(buf), nil
}

// uniqueCode draws codes until taken reports an unused one.
func uniqueCode(taken func(code string) (bool, error)) (string, error) {
	for range maxCodeAttempts {
		code, err := newRoomCode()
		if err != nil {
			return "", err
		}
		used, err := taken(code)
		if err != nil {
			return "", err
		}
		if !used {
			return code, nil
		}
	}
	return "", errCodeSpaceExhausted
}
