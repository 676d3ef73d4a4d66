package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword rejects hashing of an empty plaintext.
var ErrEmptyPassword = errors.New("crypto: password must not be empty")

// HashPassword hashes plaintext with bcrypt. Each call salts
// independently, so equal plaintexts never produce equal records and
// hash equality must not be used for lookup.
func HashPassword(plain string) ([]byte, error) {
	if plain == "" {
		return nil, ErrEmptyPassword
	}
	return bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
}

// VerifyPassword reports whether plain matches the stored record. A
// mismatch is the normal false return; an error means the comparison
// engine itself failed (for example a malformed record).
func VerifyPassword(plain string, record []byte) (bool, error) {
	err := bcrypt.CompareHashAndPassword(record, []byte(plain))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("compare password: %w", err)
}
