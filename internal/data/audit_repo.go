package data

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alumniverein/intranet-api/internal/ports"
)

// AuditRepo persists authentication audit events. Recording is best effort:
// a failed insert must never fail the login it describes, so errors are
// logged and swallowed.
type AuditRepo struct {
	Pool         *pgxpool.Pool
	Logger       *slog.Logger
	timeProvider TimeProvider
}

// NewAuditRepo creates an AuditRepo with the real time provider.
func NewAuditRepo(pool *pgxpool.Pool, logger *slog.Logger) *AuditRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRepo{Pool: pool, Logger: logger, timeProvider: &RealTimeProvider{}}
}

var _ ports.AuditSink = (*AuditRepo)(nil)

// Record inserts one audit event.
func (r *AuditRepo) Record(ctx context.Context, e ports.AuditEvent) {
	_, err := r.Pool.Exec(ctx, `
		INSERT INTO audit_log (subject_id, action, detail, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.SubjectID, e.Action, e.Detail, e.IP, e.UserAgent, r.timeProvider.Now().UTC(),
	)
	if err != nil {
		r.Logger.ErrorContext(ctx, "failed to record audit event",
			"action", e.Action, "err", err)
	}
}
