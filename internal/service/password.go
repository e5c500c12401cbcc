package service

import (
	"crypto/rand"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// passwordAlphabet omits characters that are easy to misread.
const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

const minGeneratedPasswordLength = 8

func generatePassword(length int) (string, error) {
	if length < minGeneratedPasswordLength {
		length = minGeneratedPasswordLength
	}
	limit := big.NewInt(int64(len(passwordAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = passwordAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// resolvePassword returns the hash to store and, when it was generated, the
// plain password to hand to the user.
func resolvePassword(supplied string, length, cost int) (hash string, generated string, err error) {
	plain := supplied
	if plain == "" {
		if plain, err = generatePassword(length); err != nil {
			return "", "", err
		}
		generated = plain
	}
	raw, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", "", err
	}
	return string(raw), generated, nil
}
