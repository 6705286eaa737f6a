package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codesociety/authcore/pkg/domain"
	"github.com/codesociety/authcore/pkg/store"
)

// auditBufferSize bounds the in-process event buffer; oldest entries are
// evicted first.
const auditBufferSize = 100

// sinkTimeout caps each best-effort sink delivery.
const sinkTimeout = 5 * time.Second

// SecurityAuditLog is an append-only bounded event buffer. Every append is
// also handed to the audit sink, fire-and-forget: a sink failure never
// affects the buffer or blocks the caller.
type SecurityAuditLog struct {
	sink   store.AuditSink
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	events []domain.AuditEvent
}

// NewSecurityAuditLog creates an audit log forwarding to the sink.
// A nil sink disables forwarding; a nil logger falls back to the default.
func NewSecurityAuditLog(sink store.AuditSink, logger *slog.Logger) *SecurityAuditLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecurityAuditLog{
		sink:   sink,
		logger: logger,
		now:    time.Now,
		events: make([]domain.AuditEvent, 0, auditBufferSize),
	}
}

// Record appends an event and forwards it to the sink. Never fails.
func (l *SecurityAuditLog) Record(kind string, accountID *uuid.UUID, metadata map[string]any) {
	event := domain.AuditEvent{
		ID:        uuid.New(),
		Timestamp: l.now(),
		Kind:      kind,
		AccountID: accountID,
		Metadata:  metadata,
	}

	l.mu.Lock()
	if len(l.events) >= auditBufferSize {
		copy(l.events, l.events[1:])
		l.events = l.events[:len(l.events)-1]
	}
	l.events = append(l.events, event)
	l.mu.Unlock()

	l.logger.Info("security event",
		"kind", event.Kind,
		"account_id", accountID,
		"metadata", metadata,
	)

	if l.sink != nil {
		go l.forward(event)
	}
}

// forward delivers one event to the sink, best effort. Sinks needing
// guaranteed delivery implement their own retry.
func (l *SecurityAuditLog) forward(event domain.AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := l.sink.Record(ctx, &event); err != nil {
		l.logger.Warn("audit sink delivery failed",
			"kind", event.Kind,
			"error", err,
		)
	}
}

// Recent returns a copy of the buffered events, oldest first.
func (l *SecurityAuditLog) Recent() []domain.AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.AuditEvent, len(l.events))
	copy(out, l.events)
	return out
}
