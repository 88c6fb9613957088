package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Rrens/codemuse/internal/api/middleware"
	"github.com/Rrens/codemuse/internal/api/response"
	"github.com/Rrens/codemuse/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// decode reads a JSON body into v and validates its struct tags
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidBody
	}

	if err := validate.Struct(v); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return fmt.Errorf("%w: %v", domain.ErrInvalidBody, err)
		}

		var missing, invalid []string
		for _, e := range validationErrors {
			field := e.Field()
			switch e.Tag() {
			case "required":
				missing = append(missing, field)
			case "email":
				invalid = append(invalid, field+" must be a valid email")
			case "max":
				invalid = append(invalid, field+" must be at most "+e.Param()+" characters")
			default:
				invalid = append(invalid, field+" failed "+e.Tag())
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: %s", domain.ErrMissingField, strings.Join(missing, ", "))
		}
		return fmt.Errorf("%w: %s", domain.ErrInvalidBody, strings.Join(invalid, "; "))
	}
	return nil
}

// caller returns the authenticated user's ID; routes using it sit behind
// the auth middleware
func caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Error(w, domain.ErrNoToken)
	}
	return userID, ok
}

// chatParam returns the caller and the chat named in the URL
func chatParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := caller(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	chatID, ok := middleware.GetChatID(r.Context())
	if !ok {
		response.Error(w, domain.ErrChatNotFound)
		return uuid.Nil, uuid.Nil, false
	}
	return userID, chatID, true
}
