package handler

import (
	"context"
	"net/http"

	"github.com/go-auth-nosql/internal/application/audit"
	"github.com/go-auth-nosql/internal/application/session"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/transport/http/middleware"
)

func (h *AuthHandler) issueSession(w http.ResponseWriter, r *http.Request, u *domain.User) {
	res, err := h.sessions.Issue(r.Context(), u)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{
		Bearer:  res.Bearer,
		Session: toSafeSession(res.Session),
		User:    toSafeUser(u),
	})
}

type auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

// SessionHandler handles session endpoints.
type SessionHandler struct {
	svc   session.Service
	audit auditor
}

func NewSessionHandler(svc session.Service, audit auditor) *SessionHandler {
	return &SessionHandler{svc: svc, audit: audit}
}

func (h *SessionHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sess, err := h.svc.GetCurrent(r.Context(), claims.SessionID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionEnvelope{Session: toSafeSession(sess), User: toSafeUser(sess.User)})
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.Logout(r.Context(), claims.SessionID); err != nil {
		httpError(w, r, err)
		return
	}
	_ = h.audit.Record(r.Context(), audit.Entry{
		Event:    domain.EventLogout,
		UserID:   claims.UserID,
		Meta:     middleware.MetaFromRequest(r),
		Metadata: map[string]string{"session_id": claims.SessionID},
	})
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out"})
}
