package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-auth-otp/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AuthEnvelope wraps login/refresh responses.
type AuthEnvelope struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	User         *SafeUser `json:"user,omitempty"`
}

// SafeUser is the user shape exposed over the wire. It never carries the
// password hash or the persisted refresh token.
type SafeUser struct {
	UserID   string  `json:"user_id"`
	Phone    *string `json:"phone,omitempty"`
	Email    *string `json:"email,omitempty"`
	Verified bool    `json:"verified"`
}

func toSafeUser(u *domain.User) *SafeUser {
	if u == nil {
		return nil
	}
	return &SafeUser{UserID: u.UserID, Phone: u.Phone, Email: u.Email, Verified: u.Verified}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError translates a service error into a status code. Backend and
// delivery failures are reported with a generic message so infrastructure
// details never leak to clients.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrMismatch), errors.Is(err, domain.ErrExpired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrTokenExpired),
		errors.Is(err, domain.ErrTokenInvalid),
		errors.Is(err, domain.ErrSessionRevoked),
		errors.Is(err, domain.ErrMalformedHeader),
		errors.Is(err, domain.ErrAuthenticationFailed):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrDeliveryFailed):
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, try again later")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
