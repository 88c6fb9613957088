package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/codemuse/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTokenTTL is the lifetime of a session token
	DefaultTokenTTL = 7 * 24 * time.Hour

	issuer = "codemuse"
)

// Claims represents session token claims
type Claims struct {
	UserID uuid.UUID `json:"-"`
	jwt.RegisteredClaims
}

// Option configures a TokenAuthority
type Option func(*TokenAuthority)

// WithClock overrides the time source used for issuing and verifying
func WithClock(now func() time.Time) Option {
	return func(a *TokenAuthority) {
		a.now = now
	}
}

// TokenAuthority issues and verifies signed session tokens. Issuing and
// verifying always use the same secret and HS256.
type TokenAuthority struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenAuthority creates a token authority. An empty secret is rejected
// so a misconfigured process can never issue or accept tokens.
func NewTokenAuthority(secret string, ttl time.Duration, opts ...Option) (*TokenAuthority, error) {
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	a := &TokenAuthority{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Issue generates a token for the user that expires TTL from now
func (a *TokenAuthority) Issue(userID uuid.UUID) (string, time.Time, error) {
	now := a.now()
	// NumericDate has second precision; report the expiry that is actually encoded
	expiresAt := jwt.NewNumericDate(now.Add(a.ttl))
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: expiresAt,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt.Time, nil
}

// Verify validates the signature and expiry of a token and returns its claims.
// It never touches storage.
func (a *TokenAuthority) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, domain.ErrNoToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
	)

	var registered jwt.RegisteredClaims
	_, err := parser.ParseWithClaims(tokenString, &registered, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	userID, err := uuid.Parse(registered.Subject)
	if err != nil {
		return nil, domain.ErrTokenMalformed
	}

	return &Claims{UserID: userID, RegisteredClaims: registered}, nil
}

// TTL returns the token lifetime
func (a *TokenAuthority) TTL() time.Duration {
	return a.ttl
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return domain.ErrTokenSignature
	default:
		return domain.ErrTokenMalformed
	}
}
