package handler

import (
	"net/http"

	"github.com/Rrens/codemuse/internal/api/middleware"
	"github.com/Rrens/codemuse/internal/api/response"
	"github.com/Rrens/codemuse/internal/domain"
	"github.com/Rrens/codemuse/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService  *service.AuthService
	secureCookie bool
}

// NewAuthHandler creates a new auth handler. secureCookie marks the session
// cookie Secure, which browsers only honour over HTTPS.
func NewAuthHandler(authService *service.AuthService, secureCookie bool) *AuthHandler {
	return &AuthHandler{authService: authService, secureCookie: secureCookie}
}

type userResponse struct {
	User domain.User `json:"user"`
}

// Signup handles user registration
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var input domain.UserCreate
	if err := decode(w, r, &input); err != nil {
		response.Error(w, err)
		return
	}

	result, err := h.authService.Signup(r.Context(), input)
	if err != nil {
		response.Error(w, err)
		return
	}

	h.setCookie(w, result)
	response.Created(w, result)
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input domain.UserLogin
	if err := decode(w, r, &input); err != nil {
		response.Error(w, err)
		return
	}

	result, err := h.authService.Login(r.Context(), input)
	if err != nil {
		response.Error(w, err)
		return
	}

	h.setCookie(w, result)
	response.OK(w, result)
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, result *domain.AuthResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    result.Token,
		Path:     "/",
		Expires:  result.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// UpdateProfile changes the caller's name and/or password
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	var input domain.ProfileUpdate
	if err := decode(w, r, &input); err != nil {
		response.Error(w, err)
		return
	}

	user, err := h.authService.UpdateProfile(r.Context(), userID, input)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, userResponse{User: user.Public()})
}

// Me returns the current authenticated user
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		response.Error(w, domain.ErrNoToken)
		return
	}
	response.OK(w, userResponse{User: user.Public()})
}

// ListUsers lists every active user
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.authService.ListUsers(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, users)
}
