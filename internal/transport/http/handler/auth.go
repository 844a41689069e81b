package handler

import (
	"net/http"

	"github.com/go-auth-nosql/internal/application/auth"
	"github.com/go-auth-nosql/internal/application/session"
	"github.com/go-auth-nosql/internal/pkg/validate"
	"github.com/go-auth-nosql/internal/transport/http/middleware"
)

// AnonCookie carries the anonymous identifier a visitor had before signing up.
const AnonCookie = "anon_id"

// AuthHandler handles signup, login and the credential flows.
type AuthHandler struct {
	svc           auth.Service
	sessions      session.Service
	secureCookies bool
}

func NewAuthHandler(svc auth.Service, sessions session.Service, secureCookies bool) *AuthHandler {
	return &AuthHandler{svc: svc, sessions: sessions, secureCookies: secureCookies}
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if c, err := r.Cookie(AnonCookie); err == nil {
		req.AnonID = c.Value
	}
	res, err := h.svc.Signup(r.Context(), req, middleware.MetaFromRequest(r))
	if err != nil {
		httpError(w, r, err)
		return
	}
	if req.AnonID != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     AnonCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
	writeJSON(w, http.StatusCreated, SignupEnvelope{
		User:                 toSafeUser(res.User),
		RequiresVerification: res.RequiresVerification,
		ClaimedResources:     res.ClaimedResources,
		ClaimsTruncated:      res.ClaimsTruncated,
	})
}

type emailRequest struct {
	Email string `json:"email" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) LoginEmailOnly(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.svc.LoginEmailOnly(r.Context(), req.Email, middleware.MetaFromRequest(r))
	if err != nil {
		httpError(w, r, err)
		return
	}
	h.issueSession(w, r, u)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.svc.LoginWithPassword(r.Context(), req.Email, req.Password, middleware.MetaFromRequest(r))
	if err != nil {
		httpError(w, r, err)
		return
	}
	h.issueSession(w, r, u)
}
