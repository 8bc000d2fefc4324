package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// CredentialVerifier checks a username/password submission.
type CredentialVerifier interface {
	Verify(username, password string) bool
	Username() string
}

// StaticCredentials is the single configured admin identity.
// The password may be given as a bcrypt hash or as plaintext.
type StaticCredentials struct {
	username string
	password string
	hashed   bool
}

// NewStaticCredentials creates a verifier for one identity
func NewStaticCredentials(username, password string) *StaticCredentials {
	return &StaticCredentials{
		username: username,
		password: password,
		hashed:   isBcryptHash(password),
	}
}

// Username returns the configured admin username
func (s *StaticCredentials) Username() string {
	return s.username
}

// Verify reports whether username and password match the configured identity
func (s *StaticCredentials) Verify(username, password string) bool {
	if s.username == "" || s.password == "" {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1

	var passOK bool
	if s.hashed {
		passOK = bcrypt.CompareHashAndPassword([]byte(s.password), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
	}

	return userOK && passOK
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}
