package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrNoSecret     = errors.New("token secret is empty")
)

// Claims represents access token claims.
type Claims struct {
	jwt.RegisteredClaims
	Album string `json:"album"`
}

// Issuer signs and verifies album access tokens.
type Issuer interface {
	Issue(claims Claims, ttl time.Duration) (string, time.Time, error)
	Verify(token string) (*Claims, error)
}

// Manager handles HS256 JWT operations. Tokens are stateless and cannot be revoked.
type Manager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used to stamp and check tokens.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a new JWT manager.
func NewManager(secret, issuer string, opts ...Option) (*Manager, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	m := &Manager{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue signs claims valid for ttl and returns the token with its expiry.
func (m *Manager) Issue(claims Claims, ttl time.Duration) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(ttl)

	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify validates a token and returns claims.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Album == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
