package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-auth-nosql/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message    string   `json:"message,omitempty"`
	Error      string   `json:"error,omitempty"`
	Violations []string `json:"violations,omitempty"`
	RetryAfter int      `json:"retry_after,omitempty"`
}

// SafeUser is the client view of a user. Hashes, counters and billing ids
// never leave the server.
type SafeUser struct {
	UserID          string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name,omitempty"`
	Role            string     `json:"role"`
	EmailVerified   *time.Time `json:"email_verified"`
	CredentialState string     `json:"credential_state"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created"`
}

// SafeSession is the client view of a session.
type SafeSession struct {
	SessionID string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt int64     `json:"expires_at"`
	CreatedAt time.Time `json:"created"`
}

// AuthEnvelope wraps login responses.
type AuthEnvelope struct {
	Bearer  string       `json:"Bearer,omitempty"`
	Session *SafeSession `json:"session,omitempty"`
	User    *SafeUser    `json:"user,omitempty"`
}

// SessionEnvelope wraps current-session responses.
type SessionEnvelope struct {
	Session *SafeSession `json:"session,omitempty"`
	User    *SafeUser    `json:"user,omitempty"`
}

// SignupEnvelope wraps the signup response.
type SignupEnvelope struct {
	User                 *SafeUser `json:"user"`
	RequiresVerification bool      `json:"requiresVerification"`
	ClaimedResources     int       `json:"claimedResources"`
	ClaimsTruncated      bool      `json:"claimsTruncated,omitempty"`
}

// VerifyEnvelope wraps the verify-email response.
type VerifyEnvelope struct {
	Message         string `json:"message"`
	AlreadyVerified bool   `json:"alreadyVerified"`
}

func toSafeUser(u *domain.User) *SafeUser {
	if u == nil {
		return nil
	}
	return &SafeUser{
		UserID:          u.UserID,
		Email:           u.Email,
		Name:            u.Name,
		Role:            u.Role,
		EmailVerified:   u.EmailVerified,
		CredentialState: string(u.State()),
		LastLoginAt:     u.LastLoginAt,
		CreatedAt:       u.CreatedAt,
	}
}

func toSafeSession(s *domain.Session) *SafeSession {
	if s == nil {
		return nil
	}
	return &SafeSession{SessionID: s.SessionID, UserID: s.UserID, ExpiresAt: s.ExpiresAt, CreatedAt: s.CreatedAt}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

func decode(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// httpError maps service errors to status codes. Internal causes are logged,
// never returned.
func httpError(w http.ResponseWriter, r *http.Request, err error) {
	var rl *domain.RateLimitError
	var pe *domain.PolicyError
	switch {
	case errors.As(err, &rl):
		secs := int(math.Ceil(rl.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusTooManyRequests, MessageEnvelope{Error: "too many requests, try again later", RetryAfter: secs})
	case errors.Is(err, domain.ErrBlocked), errors.Is(err, domain.ErrTooManyRequests):
		writeError(w, http.StatusTooManyRequests, "too many requests, try again later")
	case errors.As(err, &pe):
		writeJSON(w, http.StatusBadRequest, MessageEnvelope{Error: pe.Error(), Violations: pe.Violations})
	case errors.Is(err, domain.ErrTokenInvalid):
		writeError(w, http.StatusBadRequest, domain.ErrTokenInvalid.Error())
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, publicMessage(err))
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, publicMessage(err))
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict")
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// publicMessage strips the sentinel suffix from a wrapped client error so
// "invalid credentials: unauthorized" reads "invalid credentials".
func publicMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{domain.ErrBadRequest, domain.ErrUnauthorized} {
		if s, ok := strings.CutSuffix(msg, ": "+sentinel.Error()); ok && s != "" {
			return s
		}
	}
	return msg
}
