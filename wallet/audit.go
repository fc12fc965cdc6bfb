package wallet

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditWalletCreated        AuditEvent = "wallet_created"
	AuditWalletImported       AuditEvent = "wallet_imported"
	AuditWalletReset          AuditEvent = "wallet_reset"
	AuditUnlockSuccess        AuditEvent = "unlock_success"
	AuditUnlockFailure        AuditEvent = "unlock_failure"
	AuditUnlockRateLimited    AuditEvent = "unlock_rate_limited"
	AuditLock                 AuditEvent = "lock"
	AuditAutoLock             AuditEvent = "auto_lock"
	AuditAccountCreated       AuditEvent = "account_created"
	AuditAccountImported      AuditEvent = "account_imported"
	AuditAccountRemoved       AuditEvent = "account_removed"
	AuditPrivateKeyExported   AuditEvent = "private_key_exported"
	AuditSiteConnected        AuditEvent = "site_connected"
	AuditSiteDisconnected     AuditEvent = "site_disconnected"
	AuditConnectionRejected   AuditEvent = "connection_rejected"
	AuditSigningApproved      AuditEvent = "signing_approved"
	AuditSigningRejected      AuditEvent = "signing_rejected"
	AuditTransactionBroadcast AuditEvent = "transaction_broadcast"
)

// auditLogger wraps slog.Logger for structured security audit logging.
// Callers must never pass passwords, mnemonics or secret keys as attributes.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
}

func newAuditLogger(logger *slog.Logger, metrics *metricsCollector) *auditLogger {
	return &auditLogger{
		logger:  logger.With("component", "audit"),
		metrics: metrics,
	}
}

func (al *auditLogger) log(ctx context.Context, event AuditEvent, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", baseAttrs...)
	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}
}

// logOrigin is a convenience for events triggered by a web origin.
func (al *auditLogger) logOrigin(ctx context.Context, event AuditEvent, origin string, extra ...slog.Attr) {
	attrs := append([]slog.Attr{slog.String("origin", origin)}, extra...)
	al.log(ctx, event, attrs...)
}

// logFailure logs a failed attempt with its reason.
func (al *auditLogger) logFailure(ctx context.Context, event AuditEvent, reason string, extra ...slog.Attr) {
	attrs := append([]slog.Attr{slog.String("reason", reason)}, extra...)
	al.log(ctx, event, attrs...)
}
