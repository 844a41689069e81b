// Package audit appends immutable records of security-relevant transitions.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/id"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_audit_events_total",
		Help: "Audit entries written, by event",
	}, []string{"event"})

	failuresCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_audit_failures_total",
		Help: "Audit entries that could not be written",
	})
)

// Writer is the append-only backend. There is deliberately no update or delete.
type Writer interface {
	Append(ctx context.Context, l *domain.AuditLog) error
}

// Reader lists entries for a user, newest first.
type Reader interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.AuditLog, error)
}

// Entry is what callers supply; the logger stamps the id and time.
type Entry struct {
	Event    domain.AuditEvent
	UserID   string
	Meta     domain.RequestMeta
	Metadata map[string]string
}

type Logger struct {
	writer Writer
	reader Reader
	now    func() time.Time
}

func NewLogger(writer Writer, reader Reader) *Logger {
	return &Logger{writer: writer, reader: reader, now: time.Now}
}

// Record appends one entry. Failures are logged and returned; flows treat
// them as non-fatal.
func (l *Logger) Record(ctx context.Context, e Entry) error {
	now := l.now().UTC()
	entry := &domain.AuditLog{
		LogID:     id.At(now),
		Event:     e.Event,
		Metadata:  e.Metadata,
		IP:        e.Meta.IP,
		UserAgent: e.Meta.UserAgent,
		CreatedAt: now,
	}
	if e.UserID != "" {
		uid := e.UserID
		entry.UserID = &uid
	}
	if err := l.writer.Append(ctx, entry); err != nil {
		failuresCounter.Inc()
		slog.Warn("failed to write audit entry", "event", e.Event, "user_id", e.UserID, "err", err)
		return fmt.Errorf("append audit entry: %w", err)
	}
	eventsCounter.WithLabelValues(string(e.Event)).Inc()
	return nil
}

func (l *Logger) ListByUser(ctx context.Context, userID string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return l.reader.ListByUser(ctx, userID, limit)
}
