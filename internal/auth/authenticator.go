package auth

import (
	"crypto/subtle"
	"time"

	"github.com/nerrad567/fritz-presence/internal/infrastructure/config"
)

// Authenticator checks operator credentials and issues tokens.
type Authenticator struct {
	username     string
	passwordHash string
	secret       string
	ttl          time.Duration
}

// NewAuthenticator builds an Authenticator from the security section.
func NewAuthenticator(cfg config.SecurityConfig) *Authenticator {
	return &Authenticator{
		username:     cfg.Admin.Username,
		passwordHash: cfg.Admin.PasswordHash,
		secret:       cfg.JWT.Secret,
		ttl:          time.Duration(cfg.JWT.AccessTokenTTL) * time.Minute,
	}
}

// Login verifies the credentials and returns a signed access token.
//
// Returns:
//   - string: Access token
//   - time.Time: Token expiry
//   - error: ErrInvalidCredentials on a wrong username or password
func (a *Authenticator) Login(username, password string) (string, time.Time, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1

	// Always run the hash so timing does not reveal the username.
	pwOK, err := VerifyPassword(password, a.passwordHash)
	if err != nil {
		return "", time.Time{}, err
	}
	if !userOK || !pwOK {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return GenerateAccessToken(a.username, a.secret, a.ttl)
}

// Validate parses a bearer token.
func (a *Authenticator) Validate(token string) (*Claims, error) {
	return ParseToken(token, a.secret)
}
