package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidCredentials is returned on any login failure. Username and
// password failures are indistinguishable to the caller.
var ErrInvalidCredentials = errors.New("invalid username or password")

// DefaultAdminTokenTTL bounds how long a minted admin session lives.
const DefaultAdminTokenTTL = 12 * time.Hour

// AdminAuthenticator verifies the configured admin credentials and mints
// admin tokens. Admin identity is configuration, not a user table: this
// engine has no user accounts of its own, only the external bidder
// identity namespace and one operator.
type AdminAuthenticator struct {
	userID       int64
	username     string
	passwordHash string // argon2id encoded
	signer       *Signer
	tokenTTL     time.Duration
}

// NewAdminAuthenticator creates an authenticator for the single configured
// admin. passwordHash must be an argon2id hash produced by HashPassword.
func NewAdminAuthenticator(userID int64, username, passwordHash string, signer *Signer, tokenTTL time.Duration) (*AdminAuthenticator, error) {
	if username == "" || passwordHash == "" {
		return nil, errors.New("admin username and password hash must be set")
	}
	if tokenTTL <= 0 {
		tokenTTL = DefaultAdminTokenTTL
	}
	return &AdminAuthenticator{
		userID:       userID,
		username:     username,
		passwordHash: passwordHash,
		signer:       signer,
		tokenTTL:     tokenTTL,
	}, nil
}

// Login verifies the credentials and returns a signed admin token plus its
// lifetime. Every failure path returns ErrInvalidCredentials.
func (a *AdminAuthenticator) Login(username, password string) (string, time.Duration, error) {
	// Constant-time on the username too, so probing for the configured
	// name is no cheaper than probing the password.
	nameMatch := subtle.ConstantTimeCompare([]byte(a.username), []byte(username)) == 1

	valid, err := VerifyPassword(a.passwordHash, password)
	if err != nil || !valid || !nameMatch {
		return "", 0, ErrInvalidCredentials
	}

	token, err := a.signer.GenerateToken(a.userID, RoleAdmin, a.tokenTTL)
	if err != nil {
		return "", 0, fmt.Errorf("failed to mint admin token: %w", err)
	}
	return token, a.tokenTTL, nil
}
