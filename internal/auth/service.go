// Package auth implements admin authentication for the quote admin surface:
// a single operator account verified with argon2id and short-lived HS256
// JWTs issued with jwx.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrInvalidCredentials is returned for a wrong username or password.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Service verifies admin credentials and issues access tokens.
type Service struct {
	username     string
	passwordHash string
	secret       []byte
	issuer       string
	audience     string
	accessTTL    time.Duration
	clockSkew    time.Duration
	now          func() time.Time
}

// Config groups Service construction parameters. PasswordHash must be an
// argon2id hash; plaintext admin passwords never reach the process.
type Config struct {
	Username     string
	PasswordHash string
	Secret       string
	Issuer       string
	Audience     string
	AccessTTL    time.Duration
	ClockSkew    time.Duration
}

// NewService constructs an auth service.
func NewService(cfg Config) (*Service, error) {
	if strings.TrimSpace(cfg.Username) == "" || strings.TrimSpace(cfg.PasswordHash) == "" {
		return nil, errors.New("auth: admin credentials not configured")
	}
	if len(cfg.Secret) < 32 {
		return nil, errors.New("auth: jwt secret must be at least 32 bytes")
	}
	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = 12 * time.Hour
	}
	skew := cfg.ClockSkew
	if skew < 0 {
		skew = 0
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "backend-quotes"
	}
	audience := cfg.Audience
	if audience == "" {
		audience = "backend-quotes-admin"
	}
	return &Service{
		username:     cfg.Username,
		passwordHash: cfg.PasswordHash,
		secret:       []byte(cfg.Secret),
		issuer:       issuer,
		audience:     audience,
		accessTTL:    accessTTL,
		clockSkew:    skew,
		now:          time.Now,
	}, nil
}

// HashPassword produces an argon2id hash for provisioning the admin account.
func HashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, argon2id.DefaultParams)
}

// Login verifies the credentials and returns a signed access token.
func (s *Service) Login(username, password string) (string, time.Time, error) {
	if username != s.username {
		// Burn comparable time so username probing looks like password probing.
		_, _ = argon2id.ComparePasswordAndHash(password, s.passwordHash)
		return "", time.Time{}, ErrInvalidCredentials
	}
	ok, err := argon2id.ComparePasswordAndHash(password, s.passwordHash)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: compare password: %w", err)
	}
	if !ok {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return s.signAccessToken()
}

// ParseAccessToken validates a token and returns the admin username.
func (s *Service) ParseAccessToken(raw string) (string, error) {
	now := s.now()
	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, s.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithAcceptableSkew(s.clockSkew),
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	)
	if err != nil {
		return "", fmt.Errorf("auth: parse token: %w", err)
	}
	subject := token.Subject()
	if subject == "" {
		return "", errors.New("auth: token missing subject")
	}
	return subject, nil
}

func (s *Service) signAccessToken() (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	token, err := jwt.NewBuilder().
		Subject(s.username).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}
