package domain

import "time"

// Account is an authenticable identity. Accounts created through a
// delegate never hold a local password hash.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// WithoutHash returns a copy safe for API responses.
func (a *Account) WithoutHash() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.PasswordHash = nil
	return &clone
}

// Local reports whether the account authenticates against local storage.
func (a *Account) Local() bool {
	return len(a.PasswordHash) > 0
}
