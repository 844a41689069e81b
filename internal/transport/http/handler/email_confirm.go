package handler

import (
	"net/http"

	"github.com/go-auth-nosql/internal/transport/http/middleware"
)

// resendMessage is returned whether or not the address has an account.
const resendMessage = "if an account exists for this email and is not yet verified, a new verification link has been sent"

type verifyRequest struct {
	Email string `json:"email" validate:"required"`
	Token string `json:"token" validate:"required"`
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.svc.VerifyEmail(r.Context(), req.Email, req.Token, middleware.MetaFromRequest(r))
	if err != nil {
		httpError(w, r, err)
		return
	}
	env := VerifyEnvelope{Message: "email verified"}
	if res.AlreadyVerified {
		env = VerifyEnvelope{Message: "email already verified", AlreadyVerified: true}
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if err := h.svc.ResendVerification(r.Context(), email, middleware.MetaFromRequest(r)); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: resendMessage})
}
