package reconcile

import (
	"context"
	"fmt"
	"time"
)

// LeadJobName identifies the lead expirer.
const LeadJobName = "lead_expiry"

// ExpiringLeads removes stale pending registrations.
type ExpiringLeads interface {
	DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error)
}

// LeadExpirer deletes pending registrations older than TTL in a single statement.
type LeadExpirer struct {
	Leads ExpiringLeads
	TTL   time.Duration
	Now   func() time.Time
}

// Name implements Job.
func (l *LeadExpirer) Name() string { return LeadJobName }

// Run removes every lead created strictly before now-TTL.
func (l *LeadExpirer) Run(ctx context.Context) Report {
	now := clock(l.Now)
	rep := begin(LeadJobName, now.now())

	n, err := l.Leads.DeleteOlderThan(ctx, rep.StartedAt.Add(-l.TTL))
	if err != nil {
		rep.Err = fmt.Errorf("delete expired leads: %w", err)
	} else {
		rep.Deleted = n
	}
	return finish(rep, now.now())
}
