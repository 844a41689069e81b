package handler

import (
	"net/http"

	"github.com/go-auth-nosql/internal/pkg/token"
	"github.com/go-auth-nosql/internal/pkg/validate"
	"github.com/go-auth-nosql/internal/transport/http/middleware"
)

type upgradeRequest struct {
	Password string `json:"password" validate:"required"`
}

// UpgradeAccount sets the first password on an email-only account.
func (h *AuthHandler) UpgradeAccount(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req upgradeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := h.svc.UpgradeAccount(r.Context(), claims.UserID, req.Password, middleware.MetaFromRequest(r))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message string    `json:"message"`
		User    *SafeUser `json:"user"`
	}{Message: "account upgraded", User: toSafeUser(u)})
}

// CSRFToken issues a fresh double-submit token as both a cookie and the body.
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, _ *http.Request) {
	tok, err := token.New()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CSRFCookie,
		Value:    tok,
		Path:     "/",
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": tok})
}
