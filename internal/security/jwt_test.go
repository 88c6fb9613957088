package security_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Rrens/codemuse/internal/domain"
	"github.com/Rrens/codemuse/internal/security"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "test-secret-key-with-32-chars!!"

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestTokenAuthority_IssueAndVerify(t *testing.T) {
	authority, err := security.NewTokenAuthority(testSecret, 0)
	if err != nil {
		t.Fatalf("failed to create authority: %v", err)
	}

	userID := uuid.New()
	token, expiresAt, err := authority.Issue(userID)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if token == "" {
		t.Fatal("token is empty")
	}

	if d := time.Until(expiresAt); d < security.DefaultTokenTTL-time.Minute || d > security.DefaultTokenTTL {
		t.Errorf("expiry not ~7 days out: %v", d)
	}

	claims, err := authority.Verify(token)
	if err != nil {
		t.Fatalf("failed to verify token: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("user ID mismatch: got %v, want %v", claims.UserID, userID)
	}
}

func TestTokenAuthority_ExpiresAtExactInstant(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	authority, err := security.NewTokenAuthority(testSecret, security.DefaultTokenTTL, security.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("failed to create authority: %v", err)
	}

	token, expiresAt, err := authority.Issue(uuid.New())
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if !expiresAt.Equal(clock.now.Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	clock.now = expiresAt.Add(-time.Second)
	if _, err := authority.Verify(token); err != nil {
		t.Errorf("token should be valid one second before expiry: %v", err)
	}

	clock.now = expiresAt
	if _, err := authority.Verify(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired at expiry, got %v", err)
	}

	clock.now = expiresAt.Add(time.Hour)
	if _, err := authority.Verify(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired after expiry, got %v", err)
	}
}

func TestTokenAuthority_InvalidTokens(t *testing.T) {
	authority, _ := security.NewTokenAuthority(testSecret, 0)

	if _, err := authority.Verify("invalid-token"); !errors.Is(err, domain.ErrTokenMalformed) {
		t.Errorf("expected ErrTokenMalformed, got %v", err)
	}

	if _, err := authority.Verify(""); !errors.Is(err, domain.ErrNoToken) {
		t.Errorf("expected ErrNoToken, got %v", err)
	}

	// Token signed with a different secret
	other, _ := security.NewTokenAuthority("different-secret-key-32-chars!!", 0)
	token, _, _ := other.Issue(uuid.New())
	if _, err := authority.Verify(token); !errors.Is(err, domain.ErrTokenSignature) {
		t.Errorf("expected ErrTokenSignature for foreign secret, got %v", err)
	}

	// Every auth failure is an unauthorized error
	if _, err := authority.Verify(token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized category, got %v", err)
	}
}

func TestTokenAuthority_RejectsOtherAlgorithms(t *testing.T) {
	authority, _ := security.NewTokenAuthority(testSecret, 0)

	claims := jwt.RegisteredClaims{
		Subject:   uuid.New().String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		Issuer:    "codemuse",
	}

	// Same secret, different HMAC variant
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if _, err := authority.Verify(hs512); !errors.Is(err, domain.ErrTokenSignature) {
		t.Errorf("expected ErrTokenSignature for HS512, got %v", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if _, err := authority.Verify(none); err == nil {
		t.Error("expected unsigned token to be rejected")
	}
}

func TestTokenAuthority_BadSubject(t *testing.T) {
	authority, _ := security.NewTokenAuthority(testSecret, 0)

	claims := jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		Issuer:    "codemuse",
	}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))

	if _, err := authority.Verify(token); !errors.Is(err, domain.ErrTokenMalformed) {
		t.Errorf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestNewTokenAuthority_EmptySecret(t *testing.T) {
	if _, err := security.NewTokenAuthority("", time.Hour); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := security.HashPassword("p1")
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}
	if !security.CheckPassword(hash, "p1") {
		t.Error("expected password to match")
	}
	if security.CheckPassword(hash, "p2") {
		t.Error("expected wrong password to fail")
	}
}
