package activity

import (
	"context"
	"fmt"

	"github.com/edvin/tenancy/internal/core"
)

// Maintenance contains housekeeping activities run on a schedule.
type Maintenance struct {
	db core.DB
}

func NewMaintenance(db core.DB) *Maintenance {
	return &Maintenance{db: db}
}

// DeleteOldAuditLogs deletes audit log entries older than the specified number of days
// and returns the count of deleted rows.
func (a *Maintenance) DeleteOldAuditLogs(ctx context.Context, retentionDays int) (int64, error) {
	tag, err := a.db.Exec(ctx,
		"DELETE FROM audit_logs WHERE created_at < now() - make_interval(days => $1)", retentionDays)
	if err != nil {
		return 0, fmt.Errorf("delete old audit logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
