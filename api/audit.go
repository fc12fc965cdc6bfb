package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies a security-relevant event seen at the HTTP layer.
// Wallet-level events are logged by the wallet package.
type AuditEvent string

const (
	AuditTokenRejected     AuditEvent = "token_rejected"
	AuditTokenRateLimited  AuditEvent = "token_rate_limited"
	AuditOriginRateLimited AuditEvent = "origin_rate_limited"
)

// auditLogger wraps slog.Logger for structured security audit logging.
type auditLogger struct {
	logger *slog.Logger
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry for r.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("path", r.URL.Path),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelWarn, "audit", baseAttrs...)
}
