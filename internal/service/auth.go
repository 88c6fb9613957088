package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Rrens/codemuse/internal/domain"
	"github.com/Rrens/codemuse/internal/security"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// PrincipalCache caches resolved users in front of the user repository
type PrincipalCache interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	Set(ctx context.Context, user *domain.User) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// AuthOption configures an AuthService
type AuthOption func(*AuthService)

// WithPrincipalCache puts a cache in front of FindByID
func WithPrincipalCache(cache PrincipalCache) AuthOption {
	return func(s *AuthService) {
		s.cache = cache
	}
}

// AuthService handles accounts and session tokens
type AuthService struct {
	users  domain.UserRepository
	tokens *security.TokenAuthority
	cache  PrincipalCache
}

// NewAuthService creates a new auth service
func NewAuthService(users domain.UserRepository, tokens *security.TokenAuthority, opts ...AuthOption) *AuthService {
	s := &AuthService{
		users:  users,
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new user. Emails are matched exactly.
func (s *AuthService) Create(ctx context.Context, name, email, password string) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return nil, domain.ErrMissingField
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, storageErr("failed to create user", err)
	}

	log.Info().Str("user_id", user.ID.String()).Msg("User created")

	public := user.Public()
	return &public, nil
}

// Authenticate checks credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, storageErr("failed to get user", err)
	}

	if user == nil || !user.Active() {
		security.BurnPasswordCheck(password)
		return nil, domain.ErrInvalidCredentials
	}
	if !security.CheckPassword(user.PasswordHash, password) {
		return nil, domain.ErrInvalidCredentials
	}

	public := user.Public()
	return &public, nil
}

// FindByID returns the active user without credential material, or nil
func (s *AuthService) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("user_id", id.String()).Msg("Principal cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("failed to get user", err)
	}
	if user == nil || !user.Active() {
		return nil, nil
	}

	public := user.Public()
	if s.cache != nil {
		if err := s.cache.Set(ctx, &public); err != nil {
			log.Warn().Err(err).Str("user_id", id.String()).Msg("Principal cache write failed")
		}
	}
	return &public, nil
}

// UpdateProfile applies a partial update. Nil or blank fields are unchanged.
func (s *AuthService) UpdateProfile(ctx context.Context, id uuid.UUID, update domain.ProfileUpdate) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("failed to get user", err)
	}
	if user == nil || !user.Active() {
		return nil, domain.ErrUserNotFound
	}

	if update.Name != nil {
		if name := strings.TrimSpace(*update.Name); name != "" {
			user.Name = name
		}
	}
	if update.Password != nil && strings.TrimSpace(*update.Password) != "" {
		hash, err := security.HashPassword(*update.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, storageErr("failed to update user", err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			log.Warn().Err(err).Str("user_id", id.String()).Msg("Principal cache invalidation failed")
		}
	}

	public := user.Public()
	return &public, nil
}

// Signup creates a user and issues a session token
func (s *AuthService) Signup(ctx context.Context, input domain.UserCreate) (*domain.AuthResult, error) {
	user, err := s.Create(ctx, input.Name, input.Email, input.Password)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Login authenticates a user and issues a session token
func (s *AuthService) Login(ctx context.Context, input domain.UserLogin) (*domain.AuthResult, error) {
	user, err := s.Authenticate(ctx, input.Email, input.Password)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

func (s *AuthService) issue(user *domain.User) (*domain.AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &domain.AuthResult{User: *user, Token: token, ExpiresAt: expiresAt}, nil
}

// Principal resolves a token to its active user
func (s *AuthService) Principal(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err := s.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// ListUsers returns every active user without credential material
func (s *AuthService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, storageErr("failed to list users", err)
	}
	out := make([]domain.User, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

// storageErr keeps classified errors and marks everything else as a
// persistence failure.
func storageErr(msg string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	log.Error().Err(err).Msg(msg)
	return domain.ErrStorageUnavailable
}
