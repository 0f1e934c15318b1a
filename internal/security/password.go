package security

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

const (
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars   = "0123456789"
	specialChars = "@$!%*?&"
	// DefaultGeneratedPasswordLen is the length used for accounts created through federated sign-in.
	DefaultGeneratedPasswordLen = 24
)

var passwordAlphabet = lowerChars + upperChars + digitChars + specialChars

// GeneratePassword returns a random password of length n drawn from crypto/rand. The result
// always contains a lowercase letter, an uppercase letter, a digit and a special character.
func GeneratePassword(n int) (string, error) {
	if n < 4 {
		return "", errors.New("security: generated password must be at least 4 characters")
	}
	max := big.NewInt(int64(len(passwordAlphabet)))
	buf := make([]byte, n)
	for {
		for i := range buf {
			idx, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			buf[i] = passwordAlphabet[idx.Int64()]
		}
		s := string(buf)
		if strings.ContainsAny(s, lowerChars) && strings.ContainsAny(s, upperChars) &&
			strings.ContainsAny(s, digitChars) && strings.ContainsAny(s, specialChars) {
			return s, nil
		}
	}
}
