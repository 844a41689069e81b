package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-auth-nosql/internal/application/audit"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/validate"
	"github.com/go-auth-nosql/internal/transport/http/middleware"
)

type blockList interface {
	Block(ctx context.Context, ip, reason string, ttl time.Duration) (*domain.IPBlock, error)
	Unblock(ctx context.Context, ip string) error
}

type auditReader interface {
	Record(ctx context.Context, e audit.Entry) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.AuditLog, error)
}

// AdminHandler serves the admin-only block list and audit trail.
type AdminHandler struct {
	blocks blockList
	audit  auditReader
}

func NewAdminHandler(blocks blockList, audit auditReader) *AdminHandler {
	return &AdminHandler{blocks: blocks, audit: audit}
}

type blockRequest struct {
	IP         string `json:"ip" validate:"required,ip"`
	Reason     string `json:"reason" validate:"max=200"`
	TTLSeconds int64  `json:"ttl_seconds" validate:"gte=0"` // zero blocks permanently
}

func (h *AdminHandler) BlockIP(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := h.blocks.Block(r.Context(), req.IP, req.Reason, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		httpError(w, r, err)
		return
	}
	h.record(r, domain.EventIPBlocked, map[string]string{"blocked_ip": req.IP, "reason": req.Reason})
	writeJSON(w, http.StatusCreated, b)
}

func (h *AdminHandler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		writeError(w, http.StatusBadRequest, "ip query parameter required")
		return
	}
	if err := h.blocks.Unblock(r.Context(), ip); err != nil {
		httpError(w, r, err)
		return
	}
	h.record(r, domain.EventIPUnblocked, map[string]string{"blocked_ip": ip})
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "unblocked"})
}

func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.audit.ListByUser(r.Context(), userID, limit)
	if err != nil {
		httpError(w, r, err)
		return
	}
	if logs == nil {
		logs = []domain.AuditLog{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": logs})
}

func (h *AdminHandler) record(r *http.Request, event domain.AuditEvent, md map[string]string) {
	var actor string
	if c, ok := middleware.ClaimsFromContext(r.Context()); ok {
		actor = c.UserID
	}
	_ = h.audit.Record(r.Context(), audit.Entry{Event: event, UserID: actor, Meta: middleware.MetaFromRequest(r), Metadata: md})
}
